package component

import (
	"fmt"
	"sort"
	"sync"

	"github.com/siqueiraa/RecipeFlow/pkg/recipe"
)

// MetricFactory creates a fresh metric for one run.
type MetricFactory func() Metric

// EventFactory creates an event for one run.
type EventFactory func() (Event, error)

// Registry maps the names used in recipe files to typed factories.
type Registry struct {
	mu         sync.RWMutex
	datasets   map[string]Dataset
	models     map[string]Model
	samplers   map[string]SamplerFactory
	executors  map[string]ExecutorFactory
	optimizers map[string]OptimizerFactory
	metrics    map[string]MetricFactory
	events     map[string]EventFactory
}

func NewRegistry() *Registry {
	return &Registry{
		datasets:   make(map[string]Dataset),
		models:     make(map[string]Model),
		samplers:   make(map[string]SamplerFactory),
		executors:  make(map[string]ExecutorFactory),
		optimizers: make(map[string]OptimizerFactory),
		metrics:    make(map[string]MetricFactory),
		events:     make(map[string]EventFactory),
	}
}

func (r *Registry) RegisterDataset(name string, d Dataset) { register(r, r.datasets, name, d) }
func (r *Registry) RegisterModel(name string, m Model)     { register(r, r.models, name, m) }
func (r *Registry) RegisterSampler(name string, s SamplerFactory) {
	register(r, r.samplers, name, s)
}
func (r *Registry) RegisterExecutor(name string, e ExecutorFactory) {
	register(r, r.executors, name, e)
}
func (r *Registry) RegisterOptimizer(name string, o OptimizerFactory) {
	register(r, r.optimizers, name, o)
}
func (r *Registry) RegisterMetric(name string, m MetricFactory) { register(r, r.metrics, name, m) }
func (r *Registry) RegisterEvent(name string, e EventFactory)   { register(r, r.events, name, e) }

func (r *Registry) Dataset(name string) (Dataset, error) {
	return lookup(r, r.datasets, recipe.KeyDataset, name)
}

func (r *Registry) Model(name string) (Model, error) {
	return lookup(r, r.models, recipe.KeyModel, name)
}

func (r *Registry) Sampler(name string) (SamplerFactory, error) {
	return lookup(r, r.samplers, "sampler", name)
}

func (r *Registry) Executor(name string) (ExecutorFactory, error) {
	return lookup(r, r.executors, recipe.KeyExecutor, name)
}

func (r *Registry) Optimizer(name string) (OptimizerFactory, error) {
	return lookup(r, r.optimizers, recipe.KeyOptimizer, name)
}

func (r *Registry) Metric(name string) (Metric, error) {
	f, err := lookup(r, r.metrics, "metric", name)
	if err != nil {
		return nil, err
	}
	return f(), nil
}

func (r *Registry) Event(name string) (Event, error) {
	f, err := lookup(r, r.events, recipe.KeyEvents, name)
	if err != nil {
		return nil, err
	}
	return f()
}

// Names lists every registered name per role, sorted.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		recipe.KeyDataset:   sortedKeys(r.datasets),
		recipe.KeyModel:     sortedKeys(r.models),
		"sampler":           sortedKeys(r.samplers),
		recipe.KeyExecutor:  sortedKeys(r.executors),
		recipe.KeyOptimizer: sortedKeys(r.optimizers),
		"metric":            sortedKeys(r.metrics),
		recipe.KeyEvents:    sortedKeys(r.events),
	}
}

func register[T any](r *Registry, m map[string]T, name string, v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m[name] = v
}

func lookup[T any](r *Registry, m map[string]T, role, name string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := m[name]
	if !ok {
		var zero T
		return zero, &recipe.ConfigurationError{
			Reason: fmt.Sprintf("unknown %s %q", role, name),
			Keys:   []string{role},
		}
	}
	return v, nil
}

func sortedKeys[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
