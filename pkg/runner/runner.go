// Package runner drives one training run over a resolved pipeline.
package runner

import (
	"context"
	"fmt"
	"log"

	"github.com/siqueiraa/RecipeFlow/pkg/component"
	"github.com/siqueiraa/RecipeFlow/pkg/metrics"
	"github.com/siqueiraa/RecipeFlow/pkg/recipe"
	"github.com/siqueiraa/RecipeFlow/pkg/resolve"
)

// Result lines up measured values with the metrics that produced them. The
// last entry is always the wall-clock time of the run.
type Result struct {
	Metrics []component.Metric
	Values  []float64
}

type Runner struct {
	loop      component.TrainingLoop
	wallclock func() component.Metric
}

// New returns a runner that delegates the epoch loop to loop.
func New(loop component.TrainingLoop) *Runner {
	return &Runner{
		loop:      loop,
		wallclock: func() component.Metric { return metrics.NewWallclockTime() },
	}
}

// Run trains and validates p for the configured number of epochs. requested is
// not modified; the wall-clock metric is appended to a copy.
func (r *Runner) Run(
	ctx context.Context,
	runID string,
	p *resolve.Pipeline,
	cfg recipe.Config,
	requested []component.Metric,
	events []component.Event,
) (Result, error) {
	epochs, err := cfg.Int(recipe.KeyEpochs)
	if err != nil {
		return Result{}, err
	}
	if epochs < 0 {
		return Result{}, &recipe.ConfigurationError{
			Reason: fmt.Sprintf("epochs must not be negative, got %d", epochs),
			Keys:   []string{recipe.KeyEpochs},
		}
	}

	all := make([]component.Metric, 0, len(requested)+1)
	all = append(all, requested...)
	all = append(all, r.wallclock())

	log.Printf("[Runner] Training %d epoch(s) with batch size %d, %d metric(s)", epochs, p.BatchSize, len(all))

	values, err := r.loop.TrainAndValidate(ctx, component.Training{
		RunID:             runID,
		Executor:          p.Executor,
		TrainSampler:      p.TrainSampler,
		ValidationSampler: p.ValidationSampler,
		Optimizer:         p.Optimizer,
		Epochs:            epochs,
		BatchSize:         p.BatchSize,
		OutputNode:        p.OutputNode,
		Metrics:           all,
		Events:            events,
	})
	if err != nil {
		return Result{}, err
	}
	if len(values) != len(all) {
		return Result{}, fmt.Errorf("training loop returned %d value(s) for %d metric(s)", len(values), len(all))
	}

	return Result{Metrics: all, Values: values}, nil
}
