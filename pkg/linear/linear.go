// Package linear is a small reference backend: a softmax regression network,
// an executor that computes its forward and backward passes, and plain SGD.
package linear

import (
	"context"
	"fmt"
	"math"
	"math/rand" // weight initialization only
	"sync"

	"github.com/siqueiraa/RecipeFlow/pkg/component"
	"github.com/siqueiraa/RecipeFlow/pkg/recipe"
)

const (
	InputNode  = "input"
	OutputNode = "output"

	paramWeights = "weights"
	paramBias    = "bias"
)

// Network is a single dense layer followed by softmax.
type Network struct {
	mu       sync.Mutex
	Features int
	Classes  int
	params   map[string][]float32
	ops      []component.Operation
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

// Parameters returns the live parameter slices.
func (n *Network) Parameters() map[string][]float32 { return n.params }

// Model creates a Network sized from the sample shape.
//
// kwargs: classes (int, default 2), seed (int).
var Model component.Model = component.ModelFunc(
	func(_ int, _ recipe.Args, shape []int, kwargs recipe.Kwargs) (component.Network, string, string, error) {
		features := 1
		for _, d := range shape {
			features *= d
		}
		classes := kwargs.Int("classes", 2)
		if features <= 0 || classes <= 0 {
			return nil, "", "", fmt.Errorf("invalid linear model size: features=%d classes=%d", features, classes)
		}

		rng := rand.New(rand.NewSource(int64(kwargs.Int("seed", 0)))) //nolint:gosec // not security sensitive
		limit := math.Sqrt(6.0 / float64(features+classes))
		weights := make([]float32, features*classes)
		for i := range weights {
			weights[i] = float32((rng.Float64()*2 - 1) * limit)
		}

		return &Network{
			Features: features,
			Classes:  classes,
			params: map[string][]float32{
				paramWeights: weights,
				paramBias:    make([]float32, classes),
			},
		}, InputNode, OutputNode, nil
	},
)

// Executor runs a linear Network.
type Executor struct {
	net   *Network
	grads map[string][]float32
}

var ExecutorFactory component.ExecutorFactory = component.ExecutorFunc(
	func(net component.Network, _ recipe.Args, _ recipe.Kwargs) (component.Executor, error) {
		ln, ok := net.(*Network)
		if !ok {
			return nil, fmt.Errorf("linear executor cannot run %T", net)
		}
		return &Executor{net: ln}, nil
	},
)

func (e *Executor) Network() component.Network { return e.net }

// Gradients returns the gradients of the last backward pass.
func (e *Executor) Gradients() map[string][]float32 { return e.grads }

func (e *Executor) Inference(_ context.Context, in component.Batch) (component.Outputs, error) {
	probs, _, err := e.forward(in)
	if err != nil {
		return nil, err
	}
	return component.Outputs{OutputNode: probs}, nil
}

func (e *Executor) InferenceAndBackprop(_ context.Context, in component.Batch, loss string) (component.Outputs, error) {
	op, ok := component.FindOperation(e.net, loss)
	if !ok {
		return nil, fmt.Errorf("network has no operation %q", loss)
	}
	if op.Type != component.OpLabelCrossEntropy {
		return nil, fmt.Errorf("linear executor does not support loss %s", op.Type)
	}
	if len(op.Inputs) != 2 {
		return nil, fmt.Errorf("loss %q expects 2 inputs, got %d", loss, len(op.Inputs))
	}

	probs, x, err := e.forward(in)
	if err != nil {
		return nil, err
	}
	labels := in[op.Inputs[1]]
	n := len(labels)
	if n == 0 || len(probs) != n*e.net.Classes {
		return nil, fmt.Errorf("batch has %d label(s) for %d prediction(s)", n, len(probs))
	}

	f, c := e.net.Features, e.net.Classes
	gw := make([]float32, f*c)
	gb := make([]float32, c)
	losses := make([]float32, n)
	for i := 0; i < n; i++ {
		y := int(labels[i])
		if y < 0 || y >= c {
			return nil, &recipe.ConfigurationError{
				Reason: fmt.Sprintf("label %d out of range for a %d-class model, set classes to the dataset's class count", y, c),
				Keys:   []string{recipe.KwargsKey(recipe.KeyModel)},
			}
		}
		row := probs[i*c : (i+1)*c]
		losses[i] = float32(-math.Log(math.Max(float64(row[y]), 1e-12)))
		for j := 0; j < c; j++ {
			d := row[j]
			if j == y {
				d--
			}
			d /= float32(n)
			gb[j] += d
			for k := 0; k < f; k++ {
				gw[k*c+j] += x[i*f+k] * d
			}
		}
	}
	e.grads = map[string][]float32{paramWeights: gw, paramBias: gb}

	return component.Outputs{OutputNode: probs, op.Name: losses}, nil
}

func (e *Executor) forward(in component.Batch) (probs, x []float32, err error) {
	x, ok := in[InputNode]
	if !ok {
		return nil, nil, fmt.Errorf("batch has no %s node", InputNode)
	}
	f, c := e.net.Features, e.net.Classes
	if len(x)%f != 0 {
		return nil, nil, fmt.Errorf("input of length %d is not a multiple of %d features", len(x), f)
	}
	n := len(x) / f
	w, b := e.net.params[paramWeights], e.net.params[paramBias]

	probs = make([]float32, n*c)
	for i := 0; i < n; i++ {
		row := probs[i*c : (i+1)*c]
		for j := 0; j < c; j++ {
			s := b[j]
			for k := 0; k < f; k++ {
				s += x[i*f+k] * w[k*c+j]
			}
			row[j] = s
		}
		softmax(row)
	}
	return probs, x, nil
}

func softmax(row []float32) {
	maxVal := row[0]
	for _, v := range row[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	var sum float64
	for j, v := range row {
		e := math.Exp(float64(v - maxVal))
		row[j] = float32(e)
		sum += e
	}
	for j := range row {
		row[j] = float32(float64(row[j]) / sum)
	}
}

// SGD is stochastic gradient descent with optional momentum.
type SGD struct {
	executor     component.Executor
	loss         string
	learningRate float32
	momentum     float32
	velocity     map[string][]float32
}

// SGDFactory builds SGD optimizers.
//
// kwargs: learning_rate (float, default 0.01), momentum (float, default 0).
var SGDFactory component.OptimizerFactory = component.OptimizerFunc(
	func(ex component.Executor, loss string, _ recipe.Args, kwargs recipe.Kwargs) (component.Optimizer, error) {
		if _, ok := ex.(component.GradientSource); !ok {
			return nil, fmt.Errorf("sgd needs an executor that exposes gradients, got %T", ex)
		}
		if _, ok := ex.Network().(component.ParameterStore); !ok {
			return nil, fmt.Errorf("sgd needs a network that exposes parameters, got %T", ex.Network())
		}
		return &SGD{
			executor:     ex,
			loss:         loss,
			learningRate: float32(kwargs.Float("learning_rate", 0.01)),
			momentum:     float32(kwargs.Float("momentum", 0)),
			velocity:     make(map[string][]float32),
		}, nil
	},
)

func (o *SGD) Step(ctx context.Context, in component.Batch) (component.Outputs, error) {
	out, err := o.executor.InferenceAndBackprop(ctx, in, o.loss)
	if err != nil {
		return nil, err
	}
	params := o.executor.Network().(component.ParameterStore).Parameters()
	for name, grad := range o.executor.(component.GradientSource).Gradients() {
		p, ok := params[name]
		if !ok || len(p) != len(grad) {
			return nil, fmt.Errorf("gradient %s does not match a parameter", name)
		}
		v := o.velocity[name]
		if v == nil {
			v = make([]float32, len(p))
			o.velocity[name] = v
		}
		for i := range p {
			v[i] = o.momentum*v[i] - o.learningRate*grad[i]
			p[i] += v[i]
		}
	}
	return out, nil
}
