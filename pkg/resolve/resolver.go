// Package resolve instantiates the components of a normalized recipe in
// dependency order: dataset metadata, model, loss, dataset splits, samplers,
// executor, optimizer.
package resolve

import (
	"fmt"
	"log"

	"github.com/siqueiraa/RecipeFlow/pkg/component"
	"github.com/siqueiraa/RecipeFlow/pkg/recipe"
)

// Fixed node and operation names shared by model, dataset and optimizer.
const (
	LabelNode     = "label"
	LossOperation = "loss"
)

// Pipeline holds the live objects of one recipe run.
type Pipeline struct {
	Network           component.Network
	InputNode         string
	OutputNode        string
	NumClasses        int
	SampleShape       []int
	BatchSize         int
	TrainSet          component.DatasetHandle
	ValidationSet     component.DatasetHandle
	TrainSampler      component.Sampler
	ValidationSampler component.Sampler
	Executor          component.Executor
	Optimizer         component.Optimizer
}

// Identity is used when a recipe configures no sampler for a split: the
// dataset handle iterates itself.
var Identity component.SamplerFactory = component.SamplerFunc(
	func(ds component.DatasetHandle, _ int, _ recipe.Args, _ recipe.Kwargs) (component.Sampler, error) {
		return ds, nil
	},
)

// Resolver turns descriptors into components. Descriptors are either typed
// factories or names looked up in the registry.
type Resolver struct {
	registry *component.Registry
}

// New returns a resolver. reg may be nil when every descriptor is typed.
func New(reg *component.Registry) *Resolver {
	return &Resolver{registry: reg}
}

// Resolve builds a fresh pipeline. Missing required components and malformed
// arguments are configuration errors; collaborator failures are returned as is.
func (r *Resolver) Resolve(cfg recipe.Config) (*Pipeline, error) {
	p := &Pipeline{}

	// 1. dataset metadata
	dataset, err := r.dataset(cfg)
	if err != nil {
		return nil, err
	}
	lossOp, err := dataset.Loss()
	if err != nil {
		return nil, err
	}
	shape, err := dataset.Shape()
	if err != nil {
		return nil, err
	}
	if len(shape) == 0 {
		return nil, fmt.Errorf("dataset shape is empty")
	}
	p.NumClasses, p.SampleShape = shape[0], append([]int(nil), shape[1:]...)

	// 2. model
	model, err := r.model(cfg)
	if err != nil {
		return nil, err
	}
	if p.BatchSize, err = cfg.Int(recipe.KeyBatchSize); err != nil {
		return nil, err
	}
	args, kwargs, err := arguments(cfg, recipe.KeyModel)
	if err != nil {
		return nil, err
	}
	p.Network, p.InputNode, p.OutputNode, err = model.Create(p.BatchSize, args, p.SampleShape, kwargs)
	if err != nil {
		return nil, err
	}

	// 3. loss
	p.Network.AddOperation(lossOp([]string{p.OutputNode, LabelNode}, LossOperation))

	// 4. dataset splits
	if args, kwargs, err = arguments(cfg, recipe.KeyDataset); err != nil {
		return nil, err
	}
	p.TrainSet, p.ValidationSet, err = dataset.Load(p.InputNode, LabelNode, args, kwargs)
	if err != nil {
		return nil, err
	}

	// 5. samplers
	if p.TrainSampler, err = r.sampler(cfg, recipe.KeyTrainSampler, p.TrainSet, p.BatchSize); err != nil {
		return nil, err
	}
	if p.ValidationSampler, err = r.sampler(cfg, recipe.KeyValidationSampler, p.ValidationSet, p.BatchSize); err != nil {
		return nil, err
	}

	// 6. executor
	executor, err := r.executor(cfg)
	if err != nil {
		return nil, err
	}
	if args, kwargs, err = arguments(cfg, recipe.KeyExecutor); err != nil {
		return nil, err
	}
	if p.Executor, err = executor.Construct(p.Network, args, kwargs); err != nil {
		return nil, err
	}

	// 7. optimizer
	optimizer, err := r.optimizer(cfg)
	if err != nil {
		return nil, err
	}
	if args, kwargs, err = arguments(cfg, recipe.KeyOptimizer); err != nil {
		return nil, err
	}
	if p.Optimizer, err = optimizer.Construct(p.Executor, LossOperation, args, kwargs); err != nil {
		return nil, err
	}

	log.Printf("[Resolve] Pipeline ready: classes=%d shape=%v batch=%d input=%s output=%s",
		p.NumClasses, p.SampleShape, p.BatchSize, p.InputNode, p.OutputNode)
	return p, nil
}

// Events returns the events configured under the events key, or nil.
func (r *Resolver) Events(cfg recipe.Config) ([]component.Event, error) {
	raw, ok := cfg[recipe.KeyEvents]
	if !ok || raw == nil {
		return nil, nil
	}

	var items []any
	switch v := raw.(type) {
	case []component.Event:
		return v, nil
	case []any:
		items = v
	case []string:
		for _, s := range v {
			items = append(items, s)
		}
	default:
		items = []any{v}
	}

	events := make([]component.Event, 0, len(items))
	for _, item := range items {
		ev, err := descriptor(r, item, recipe.KeyEvents, (*component.Registry).Event)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func (r *Resolver) dataset(cfg recipe.Config) (component.Dataset, error) {
	return required(r, cfg, recipe.KeyDataset, (*component.Registry).Dataset)
}

func (r *Resolver) model(cfg recipe.Config) (component.Model, error) {
	return required(r, cfg, recipe.KeyModel, (*component.Registry).Model)
}

func (r *Resolver) executor(cfg recipe.Config) (component.ExecutorFactory, error) {
	return required(r, cfg, recipe.KeyExecutor, (*component.Registry).Executor)
}

func (r *Resolver) optimizer(cfg recipe.Config) (component.OptimizerFactory, error) {
	return required(r, cfg, recipe.KeyOptimizer, (*component.Registry).Optimizer)
}

func (r *Resolver) sampler(cfg recipe.Config, key string, ds component.DatasetHandle, batchSize int) (component.Sampler, error) {
	factory := Identity
	if cfg.Has(key) {
		f, err := descriptor(r, cfg[key], key, (*component.Registry).Sampler)
		if err != nil {
			return nil, err
		}
		factory = f
	}
	args, kwargs, err := arguments(cfg, key)
	if err != nil {
		return nil, err
	}
	return factory.Construct(ds, batchSize, args, kwargs)
}

func required[T any](r *Resolver, cfg recipe.Config, key string, byName func(*component.Registry, string) (T, error)) (T, error) {
	raw, ok := cfg[key]
	if !ok || raw == nil {
		var zero T
		return zero, recipe.MissingComponent(key)
	}
	return descriptor(r, raw, key, byName)
}

// descriptor accepts a typed factory or a registered name.
func descriptor[T any](r *Resolver, raw any, key string, byName func(*component.Registry, string) (T, error)) (T, error) {
	var zero T
	switch v := raw.(type) {
	case T:
		return v, nil
	case string:
		if r.registry == nil {
			return zero, &recipe.ConfigurationError{
				Reason: fmt.Sprintf("%s %q given by name but no registry is configured", key, v),
				Keys:   []string{key},
			}
		}
		return byName(r.registry, v)
	default:
		return zero, &recipe.ConfigurationError{
			Reason: fmt.Sprintf("%s has unsupported descriptor type %T", key, raw),
			Keys:   []string{key},
		}
	}
}

func arguments(cfg recipe.Config, key string) (recipe.Args, recipe.Kwargs, error) {
	args, err := cfg.Args(key)
	if err != nil {
		return nil, nil, err
	}
	kwargs, err := cfg.Kwargs(key)
	if err != nil {
		return nil, nil, err
	}
	return args, kwargs, nil
}
