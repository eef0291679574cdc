package trainer

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/siqueiraa/RecipeFlow/pkg/component"
	"github.com/siqueiraa/RecipeFlow/pkg/component/componenttest"
	"github.com/siqueiraa/RecipeFlow/pkg/metrics"
)

func sample(input, label float32) component.Batch {
	return component.Batch{"input": {input}, "label": {label}}
}

func testTraining(events ...component.Event) (component.Training, *componenttest.Optimizer) {
	train := &componenttest.Handle{Samples: []component.Batch{sample(1, 1), sample(0, 0), sample(1, 1)}}
	validation := &componenttest.Handle{Samples: []component.Batch{sample(0.9, 1), sample(0.1, 0), sample(0.8, 0), sample(0.3, 1)}}
	ex := &componenttest.Executor{Net: &componenttest.Network{}}
	opt := &componenttest.Optimizer{Executor: ex, Loss: "loss"}

	return component.Training{
		RunID:             "run",
		Executor:          ex,
		TrainSampler:      train,
		ValidationSampler: validation,
		Optimizer:         opt,
		Epochs:            3,
		BatchSize:         1,
		OutputNode:        "output",
		Events:            events,
	}, opt
}

func TestTrainAndValidate(t *testing.T) {
	tr, opt := testTraining()
	tr.Metrics = []component.Metric{metrics.NewAccuracy(), metrics.NewWallclockTime()}

	results, err := New().TrainAndValidate(context.Background(), tr)
	if err != nil {
		t.Fatalf("TrainAndValidate failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %v", results)
	}
	if results[0] != 0.5 {
		t.Errorf("Expected accuracy 0.5, got %v", results[0])
	}
	if results[1] < 0 {
		t.Errorf("Expected non-negative wall-clock, got %v", results[1])
	}
	if opt.Steps != 9 {
		t.Errorf("Expected 9 optimizer steps (3 epochs x 3 samples), got %d", opt.Steps)
	}
}

func TestTrainAndValidateEvents(t *testing.T) {
	var stages []component.Stage
	var epochs []int
	ev := component.EventFunc(func(_ context.Context, n component.Notification) error {
		stages = append(stages, n.Stage)
		epochs = append(epochs, n.Epoch)
		if n.RunID != "run" || n.Network == nil {
			t.Errorf("Notification missing run id or network: %+v", n)
		}
		return nil
	})

	tr, _ := testTraining(ev)
	tr.Epochs = 2
	tr.Metrics = []component.Metric{metrics.NewAccuracy()}

	if _, err := New().TrainAndValidate(context.Background(), tr); err != nil {
		t.Fatalf("TrainAndValidate failed: %v", err)
	}

	wantStages := []component.Stage{
		component.StageTrainingBegin,
		component.StageEpochBegin, component.StageEpochEnd,
		component.StageEpochBegin, component.StageEpochEnd,
		component.StageTrainingEnd,
	}
	if !reflect.DeepEqual(stages, wantStages) {
		t.Errorf("Stages %v, want %v", stages, wantStages)
	}
	if !reflect.DeepEqual(epochs, []int{0, 1, 1, 2, 2, 2}) {
		t.Errorf("Epochs %v", epochs)
	}
}

func TestTrainAndValidateEventError(t *testing.T) {
	boom := errors.New("broker down")
	ev := component.EventFunc(func(context.Context, component.Notification) error { return boom })

	tr, opt := testTraining(ev)
	tr.Metrics = []component.Metric{metrics.NewAccuracy()}

	if _, err := New().TrainAndValidate(context.Background(), tr); err != boom {
		t.Errorf("Expected event error, got %v", err)
	}
	if opt.Steps != 0 {
		t.Errorf("Training should stop at the failing event, got %d steps", opt.Steps)
	}
}

func TestTrainAndValidateTrainingLoss(t *testing.T) {
	tr, _ := testTraining()
	tr.Epochs = 1
	// The fake executor echoes input as output; no loss output exists, so the
	// training loss stays at zero.
	tr.Metrics = []component.Metric{metrics.NewTrainingLoss("loss")}

	results, err := New().TrainAndValidate(context.Background(), tr)
	if err != nil {
		t.Fatalf("TrainAndValidate failed: %v", err)
	}
	if results[0] != 0 {
		t.Errorf("Expected 0 training loss, got %v", results[0])
	}
}

func TestTrainAndValidateZeroEpochs(t *testing.T) {
	tr, opt := testTraining()
	tr.Epochs = 0
	tr.Metrics = []component.Metric{metrics.NewAccuracy()}

	results, err := New().TrainAndValidate(context.Background(), tr)
	if err != nil {
		t.Fatalf("TrainAndValidate failed: %v", err)
	}
	if opt.Steps != 0 {
		t.Errorf("Expected no optimizer steps, got %d", opt.Steps)
	}
	if results[0] != 0.5 {
		t.Errorf("Expected validation pass to run once, got accuracy %v", results[0])
	}
}

func TestTrainAndValidateRejectsOpaqueMetric(t *testing.T) {
	tr, _ := testTraining()
	tr.Metrics = []component.Metric{componenttest.Metric("BLEU")}

	if _, err := New().TrainAndValidate(context.Background(), tr); err == nil {
		t.Errorf("Expected error for metric without hooks")
	}
}

func TestTrainAndValidateCancelled(t *testing.T) {
	tr, _ := testTraining()
	tr.Metrics = []component.Metric{metrics.NewAccuracy()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New().TrainAndValidate(ctx, tr); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
