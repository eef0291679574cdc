package verdict

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

type metric string

func (m metric) Name() string { return string(m) }

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})
	return &buf
}

func TestThresholdSemantics(t *testing.T) {
	tests := []struct {
		name      string
		threshold *float64
		result    float64
		wantPass  bool
	}{
		{"above", Threshold(0.9), 0.95, true},
		{"equal", Threshold(0.9), 0.9, true},
		{"below", Threshold(0.9), 0.8, false},
		{"no threshold low", nil, -100, true},
		{"no threshold high", nil, 100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			captureLog(t)
			v := Evaluate([]Request{{Metric: metric("Accuracy"), Threshold: tt.threshold}}, []float64{tt.result})
			if v.Passed != tt.wantPass {
				t.Errorf("Passed = %v, want %v", v.Passed, tt.wantPass)
			}
			if tt.wantPass && len(v.Failures) != 0 {
				t.Errorf("Unexpected failures %v", v.Failures)
			}
		})
	}
}

func TestEvaluateReportsEveryFailure(t *testing.T) {
	buf := captureLog(t)

	requests := []Request{
		{Metric: metric("Accuracy"), Threshold: Threshold(0.9)},
		{Metric: metric("Recall"), Threshold: Threshold(0.5)},
		{Metric: metric("F1"), Threshold: Threshold(0.7)},
		{Metric: metric("WallclockTime")},
	}
	v := Evaluate(requests, []float64{0.8, 0.6, 0.1, 3.2})

	if v.Passed {
		t.Fatalf("Expected failure")
	}
	if len(v.Failures) != 2 {
		t.Fatalf("Expected 2 failures, got %v", v.Failures)
	}
	if v.Failures[0] != (Failure{Metric: "Accuracy", Value: 0.8, Threshold: 0.9}) {
		t.Errorf("Unexpected first failure %+v", v.Failures[0])
	}
	if v.Failures[1].Metric != "F1" {
		t.Errorf("Expected F1 to fail, got %+v", v.Failures[1])
	}

	out := buf.String()
	if !strings.Contains(out, "FAIL Accuracy: 0.8 (Acceptable: 0.9)") {
		t.Errorf("Missing Accuracy diagnostic in %q", out)
	}
	if strings.Contains(out, "PASSED") {
		t.Errorf("Failing run must not log PASSED: %q", out)
	}
}

func TestEvaluatePassLogsOnce(t *testing.T) {
	buf := captureLog(t)

	v := Evaluate([]Request{{Metric: metric("Accuracy"), Threshold: Threshold(0.9)}, {Metric: metric("WallclockTime")}}, []float64{0.95, 1.2})
	if !v.Passed {
		t.Fatalf("Expected pass, got %v", v.Failures)
	}
	if got := strings.Count(buf.String(), "PASSED"); got != 1 {
		t.Errorf("Expected one PASSED line, got %d in %q", got, buf.String())
	}
}
