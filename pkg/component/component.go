// Package component defines the capability interfaces a recipe is assembled
// from. Concrete datasets, models, executors and optimizers live outside the
// engine and only need to satisfy these contracts.
package component

import (
	"context"
	"time"

	"github.com/siqueiraa/RecipeFlow/pkg/recipe"
)

// Batch maps node names to flattened tensor data.
type Batch map[string][]float32

// Outputs maps node names to the values an executor produced.
type Outputs map[string][]float32

// Size returns the number of samples in the batch, judged by the label node.
func (b Batch) Size(label string) int { return len(b[label]) }

// Sampler iterates a dataset in mini-batches. Next returns io.EOF once the
// current pass is exhausted; Reset starts a new pass.
type Sampler interface {
	Reset()
	Next() (Batch, error)
}

// DatasetHandle is a loaded dataset split. It iterates on its own, so it can
// stand in for a sampler.
type DatasetHandle interface {
	Sampler
	Len() int
	Batch(indices []int) (Batch, error)
}

// Network is a model graph with a mutable operation list.
type Network interface {
	AddOperation(op Operation)
	Operations() []Operation
}

// ParameterStore is implemented by networks that expose their parameters.
type ParameterStore interface {
	Parameters() map[string][]float32
}

// GradientSource is implemented by executors that keep the gradients of the
// last backward pass.
type GradientSource interface {
	Gradients() map[string][]float32
}

// Executor runs a network's forward and backward passes.
type Executor interface {
	Network() Network
	Inference(ctx context.Context, in Batch) (Outputs, error)
	InferenceAndBackprop(ctx context.Context, in Batch, loss string) (Outputs, error)
}

// Optimizer mutates network parameters through an executor.
type Optimizer interface {
	Step(ctx context.Context, in Batch) (Outputs, error)
}

// Dataset describes a dataset: its metadata and how to load it.
type Dataset interface {
	// Loss returns the loss operation constructor suited to the dataset.
	Loss() (LossFactory, error)
	// Shape returns (num_classes, sample_shape...).
	Shape() ([]int, error)
	Load(input, label string, args recipe.Args, kwargs recipe.Kwargs) (train, validation DatasetHandle, err error)
}

// Model creates a network together with its input and output node names.
type Model interface {
	Create(batchSize int, args recipe.Args, shape []int, kwargs recipe.Kwargs) (net Network, input, output string, err error)
}

// SamplerFactory wraps a dataset split in an iteration strategy.
type SamplerFactory interface {
	Construct(ds DatasetHandle, batchSize int, args recipe.Args, kwargs recipe.Kwargs) (Sampler, error)
}

// ExecutorFactory binds an executor to a network.
type ExecutorFactory interface {
	Construct(net Network, args recipe.Args, kwargs recipe.Kwargs) (Executor, error)
}

// OptimizerFactory binds an optimizer to an executor and a loss operation.
type OptimizerFactory interface {
	Construct(ex Executor, loss string, args recipe.Args, kwargs recipe.Kwargs) (Optimizer, error)
}

// Metric is identified by its display name. How it is measured is up to the
// training loop.
type Metric interface {
	Name() string
}

// Stage marks a point of the training loop at which events are notified.
type Stage string

const (
	StageTrainingBegin Stage = "training_begin"
	StageEpochBegin    Stage = "epoch_begin"
	StageEpochEnd      Stage = "epoch_end"
	StageTrainingEnd   Stage = "training_end"
)

// Notification is what an Event receives at each stage.
type Notification struct {
	RunID   string
	Stage   Stage
	Epoch   int
	Epochs  int
	Time    time.Time
	Values  map[string]float64
	Network Network
}

// Event observes the training loop.
type Event interface {
	Notify(ctx context.Context, n Notification) error
}

// Training carries everything the training loop needs for one run.
type Training struct {
	RunID             string
	Executor          Executor
	TrainSampler      Sampler
	ValidationSampler Sampler
	Optimizer         Optimizer
	Epochs            int
	BatchSize         int
	OutputNode        string
	Metrics           []Metric
	Events            []Event
}

// TrainingLoop runs the epoch loop and returns one value per metric, in the
// order of Training.Metrics.
type TrainingLoop interface {
	TrainAndValidate(ctx context.Context, t Training) ([]float64, error)
}
