package component

import (
	"context"

	"github.com/siqueiraa/RecipeFlow/pkg/recipe"
)

// ModelFunc adapts a function to the Model interface.
type ModelFunc func(batchSize int, args recipe.Args, shape []int, kwargs recipe.Kwargs) (Network, string, string, error)

func (f ModelFunc) Create(batchSize int, args recipe.Args, shape []int, kwargs recipe.Kwargs) (Network, string, string, error) {
	return f(batchSize, args, shape, kwargs)
}

// SamplerFunc adapts a function to the SamplerFactory interface.
type SamplerFunc func(ds DatasetHandle, batchSize int, args recipe.Args, kwargs recipe.Kwargs) (Sampler, error)

func (f SamplerFunc) Construct(ds DatasetHandle, batchSize int, args recipe.Args, kwargs recipe.Kwargs) (Sampler, error) {
	return f(ds, batchSize, args, kwargs)
}

// ExecutorFunc adapts a function to the ExecutorFactory interface.
type ExecutorFunc func(net Network, args recipe.Args, kwargs recipe.Kwargs) (Executor, error)

func (f ExecutorFunc) Construct(net Network, args recipe.Args, kwargs recipe.Kwargs) (Executor, error) {
	return f(net, args, kwargs)
}

// OptimizerFunc adapts a function to the OptimizerFactory interface.
type OptimizerFunc func(ex Executor, loss string, args recipe.Args, kwargs recipe.Kwargs) (Optimizer, error)

func (f OptimizerFunc) Construct(ex Executor, loss string, args recipe.Args, kwargs recipe.Kwargs) (Optimizer, error) {
	return f(ex, loss, args, kwargs)
}

// EventFunc adapts a function to the Event interface.
type EventFunc func(ctx context.Context, n Notification) error

func (f EventFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// TrainingLoopFunc adapts a function to the TrainingLoop interface.
type TrainingLoopFunc func(ctx context.Context, t Training) ([]float64, error)

func (f TrainingLoopFunc) TrainAndValidate(ctx context.Context, t Training) ([]float64, error) {
	return f(ctx, t)
}
