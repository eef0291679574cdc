// Package verdict decides whether a run's metrics meet their acceptance
// thresholds.
package verdict

import (
	"log"

	"github.com/siqueiraa/RecipeFlow/pkg/component"
)

// Request pairs a metric with its minimum acceptable value. A nil Threshold
// accepts any value.
type Request struct {
	Metric    component.Metric
	Threshold *float64
}

// Failure is a metric whose value fell below its threshold.
type Failure struct {
	Metric    string
	Value     float64
	Threshold float64
}

type Verdict struct {
	Passed   bool
	Failures []Failure
}

// Threshold returns a pointer to v, for building requests inline.
func Threshold(v float64) *float64 { return &v }

// Evaluate walks requests and results by position. Higher is better: a value
// strictly below its threshold fails, an equal value passes. Every failure is
// logged; a passing run logs a single confirmation.
func Evaluate(requests []Request, results []float64) Verdict {
	var failures []Failure
	for i, req := range requests {
		if i >= len(results) {
			break
		}
		if req.Threshold == nil {
			continue
		}
		if results[i] < *req.Threshold {
			f := Failure{Metric: req.Metric.Name(), Value: results[i], Threshold: *req.Threshold}
			log.Printf("FAIL %s: %v (Acceptable: %v)", f.Metric, f.Value, f.Threshold)
			failures = append(failures, f)
		}
	}

	if len(failures) > 0 {
		return Verdict{Passed: false, Failures: failures}
	}
	log.Println("PASSED")
	return Verdict{Passed: true}
}
