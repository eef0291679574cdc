// Package componenttest provides recording fakes of every component role.
package componenttest

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/siqueiraa/RecipeFlow/pkg/component"
	"github.com/siqueiraa/RecipeFlow/pkg/recipe"
)

// Recorder collects the order in which collaborators were called.
type Recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *Recorder) record(format string, a ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, fmt.Sprintf(format, a...))
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Network records added operations.
type Network struct {
	mu  sync.Mutex
	ops []component.Operation
}

func (n *Network) AddOperation(op component.Operation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ops = append(n.ops, op)
}

func (n *Network) Operations() []component.Operation {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]component.Operation(nil), n.ops...)
}

// Handle is an in-memory dataset split of single-sample batches.
type Handle struct {
	Name    string
	Input   string
	Label   string
	Samples []component.Batch
	pos     int
}

func (h *Handle) Len() int { return len(h.Samples) }
func (h *Handle) Reset()   { h.pos = 0 }

func (h *Handle) Next() (component.Batch, error) {
	if h.pos >= len(h.Samples) {
		return nil, io.EOF
	}
	b := h.Samples[h.pos]
	h.pos++
	return b, nil
}

func (h *Handle) Batch(indices []int) (component.Batch, error) {
	out := component.Batch{}
	for _, i := range indices {
		if i < 0 || i >= len(h.Samples) {
			return nil, fmt.Errorf("index %d out of range", i)
		}
		for k, v := range h.Samples[i] {
			out[k] = append(out[k], v...)
		}
	}
	return out, nil
}

// Dataset reports a fixed shape and returns Train and Validation on load.
type Dataset struct {
	Rec        *Recorder
	ShapeValue []int
	Train      *Handle
	Validation *Handle
	LoadErr    error
	LoadArgs   recipe.Args
	LoadKwargs recipe.Kwargs
}

func (d *Dataset) Loss() (component.LossFactory, error) {
	d.Rec.record("dataset.loss")
	return component.LabelCrossEntropy, nil
}

func (d *Dataset) Shape() ([]int, error) {
	d.Rec.record("dataset.shape")
	if d.ShapeValue == nil {
		return []int{10, 28, 28}, nil
	}
	return d.ShapeValue, nil
}

func (d *Dataset) Load(input, label string, args recipe.Args, kwargs recipe.Kwargs) (component.DatasetHandle, component.DatasetHandle, error) {
	d.Rec.record("dataset.load(%s,%s)", input, label)
	if d.LoadErr != nil {
		return nil, nil, d.LoadErr
	}
	d.LoadArgs, d.LoadKwargs = args, kwargs
	train, validation := d.Train, d.Validation
	if train == nil {
		train = &Handle{Name: "train"}
	}
	if validation == nil {
		validation = &Handle{Name: "validation"}
	}
	train.Input, train.Label = input, label
	validation.Input, validation.Label = input, label
	return train, validation, nil
}

// Model creates a Network with nodes "input" and "output".
type Model struct {
	Rec       *Recorder
	Net       *Network
	BatchSize int
	Shape     []int
	Args      recipe.Args
	Kwargs    recipe.Kwargs
}

func (m *Model) Create(batchSize int, args recipe.Args, shape []int, kwargs recipe.Kwargs) (component.Network, string, string, error) {
	m.Rec.record("model.create(%d)", batchSize)
	m.BatchSize, m.Shape, m.Args, m.Kwargs = batchSize, shape, args, kwargs
	if m.Net == nil {
		m.Net = &Network{}
	}
	return m.Net, "input", "output", nil
}

// Sampler wraps a handle and remembers how it was built.
type Sampler struct {
	component.DatasetHandle
	BatchSize int
}

// SamplerFactory builds Samplers.
type SamplerFactory struct {
	Rec  *Recorder
	Name string
}

func (f *SamplerFactory) Construct(ds component.DatasetHandle, batchSize int, _ recipe.Args, _ recipe.Kwargs) (component.Sampler, error) {
	f.Rec.record("%s.construct(%d)", f.Name, batchSize)
	return &Sampler{DatasetHandle: ds, BatchSize: batchSize}, nil
}

// Executor echoes the input node as the output node.
type Executor struct {
	Net component.Network
}

func (e *Executor) Network() component.Network { return e.Net }

func (e *Executor) Inference(_ context.Context, in component.Batch) (component.Outputs, error) {
	return component.Outputs{"output": in["input"]}, nil
}

func (e *Executor) InferenceAndBackprop(ctx context.Context, in component.Batch, _ string) (component.Outputs, error) {
	return e.Inference(ctx, in)
}

// ExecutorFactory builds Executors.
type ExecutorFactory struct {
	Rec *Recorder
}

func (f *ExecutorFactory) Construct(net component.Network, _ recipe.Args, _ recipe.Kwargs) (component.Executor, error) {
	f.Rec.record("executor.construct")
	return &Executor{Net: net}, nil
}

// Optimizer counts steps.
type Optimizer struct {
	Executor component.Executor
	Loss     string
	Steps    int
}

func (o *Optimizer) Step(ctx context.Context, in component.Batch) (component.Outputs, error) {
	o.Steps++
	return o.Executor.InferenceAndBackprop(ctx, in, o.Loss)
}

// OptimizerFactory builds Optimizers.
type OptimizerFactory struct {
	Rec  *Recorder
	Last *Optimizer
}

func (f *OptimizerFactory) Construct(ex component.Executor, loss string, _ recipe.Args, _ recipe.Kwargs) (component.Optimizer, error) {
	f.Rec.record("optimizer.construct(%s)", loss)
	f.Last = &Optimizer{Executor: ex, Loss: loss}
	return f.Last, nil
}

// TrainingLoop returns Results, padded with Pad for any extra metric.
type TrainingLoop struct {
	Rec      *Recorder
	Results  []float64
	Pad      float64
	Err      error
	Training component.Training
}

func (l *TrainingLoop) TrainAndValidate(_ context.Context, t component.Training) ([]float64, error) {
	l.Rec.record("loop.train(%d)", t.Epochs)
	l.Training = t
	if l.Err != nil {
		return nil, l.Err
	}
	out := append([]float64(nil), l.Results...)
	for len(out) < len(t.Metrics) {
		out = append(out, l.Pad)
	}
	return out[:len(t.Metrics)], nil
}

// Metric is a named metric with no measurement logic.
type Metric string

func (m Metric) Name() string { return string(m) }

// Kit bundles one fake per role sharing a recorder.
type Kit struct {
	Rec       *Recorder
	Dataset   *Dataset
	Model     *Model
	Executor  *ExecutorFactory
	Optimizer *OptimizerFactory
	Loop      *TrainingLoop
}

func NewKit() *Kit {
	rec := &Recorder{}
	return &Kit{
		Rec:       rec,
		Dataset:   &Dataset{Rec: rec},
		Model:     &Model{Rec: rec},
		Executor:  &ExecutorFactory{Rec: rec},
		Optimizer: &OptimizerFactory{Rec: rec},
		Loop:      &TrainingLoop{Rec: rec},
	}
}
