package linear

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/siqueiraa/RecipeFlow/pkg/component"
	"github.com/siqueiraa/RecipeFlow/pkg/recipe"
)

func build(t *testing.T, features, classes int) (*Network, *Executor) {
	t.Helper()
	net, in, out, err := Model.Create(1, nil, []int{features}, recipe.Kwargs{"classes": classes, "seed": 1})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if in != InputNode || out != OutputNode {
		t.Fatalf("Unexpected nodes %s/%s", in, out)
	}
	net.AddOperation(component.LabelCrossEntropy([]string{out, "label"}, "loss"))
	ex, err := ExecutorFactory.Construct(net, nil, nil)
	if err != nil {
		t.Fatalf("Executor failed: %v", err)
	}
	return net.(*Network), ex.(*Executor)
}

func TestInferenceProducesProbabilities(t *testing.T) {
	_, ex := build(t, 3, 4)

	out, err := ex.Inference(context.Background(), component.Batch{InputNode: {1, 2, 3, -1, 0, 1}})
	if err != nil {
		t.Fatalf("Inference failed: %v", err)
	}
	probs := out[OutputNode]
	if len(probs) != 8 {
		t.Fatalf("Expected 2x4 outputs, got %d", len(probs))
	}
	for i := 0; i < 2; i++ {
		var s float64
		for _, p := range probs[i*4 : (i+1)*4] {
			s += float64(p)
		}
		if math.Abs(s-1) > 1e-5 {
			t.Errorf("Row %d sums to %v", i, s)
		}
	}
}

func TestGradientMatchesFiniteDifference(t *testing.T) {
	net, ex := build(t, 2, 3)
	batch := component.Batch{InputNode: {0.5, -1.2, 1.5, 0.3}, "label": {2, 0}}
	ctx := context.Background()

	lossOf := func() float64 {
		out, err := ex.InferenceAndBackprop(ctx, batch, "loss")
		if err != nil {
			t.Fatalf("Backprop failed: %v", err)
		}
		var s float64
		for _, l := range out["loss"] {
			s += float64(l)
		}
		return s / float64(len(out["loss"]))
	}

	lossOf()
	analytic := append([]float32(nil), ex.Gradients()[paramWeights]...)

	const eps = 1e-3
	w := net.Parameters()[paramWeights]
	for i := range w {
		orig := w[i]
		w[i] = orig + eps
		up := lossOf()
		w[i] = orig - eps
		down := lossOf()
		w[i] = orig

		numeric := (up - down) / (2 * eps)
		if math.Abs(numeric-float64(analytic[i])) > 1e-2 {
			t.Errorf("weight %d: analytic %v, numeric %v", i, analytic[i], numeric)
		}
	}
}

func TestSGDLearnsSeparableData(t *testing.T) {
	_, ex := build(t, 2, 2)
	opt, err := SGDFactory.Construct(ex, "loss", nil, recipe.Kwargs{"learning_rate": 0.5})
	if err != nil {
		t.Fatalf("SGD failed: %v", err)
	}

	rng := rand.New(rand.NewSource(42))
	var xs, ys []float32
	for len(ys) < 200 {
		a, b := float32(rng.Float64()*2-1), float32(rng.Float64()*2-1)
		if math.Abs(float64(a-b)) < 0.1 {
			continue
		}
		label := float32(0)
		if a > b {
			label = 1
		}
		xs = append(xs, a, b)
		ys = append(ys, label)
	}
	batch := component.Batch{InputNode: xs, "label": ys}

	ctx := context.Background()
	for i := 0; i < 300; i++ {
		if _, err := opt.Step(ctx, batch); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
	}

	out, err := ex.Inference(ctx, batch)
	if err != nil {
		t.Fatalf("Inference failed: %v", err)
	}
	correct := 0
	probs := out[OutputNode]
	for i, y := range ys {
		pred := 0
		if probs[i*2+1] > probs[i*2] {
			pred = 1
		}
		if pred == int(y) {
			correct++
		}
	}
	if acc := float64(correct) / float64(len(ys)); acc < 0.95 {
		t.Errorf("Expected accuracy >= 0.95 after training, got %v", acc)
	}
}

func TestBackpropErrors(t *testing.T) {
	_, ex := build(t, 2, 2)
	ctx := context.Background()

	if _, err := ex.InferenceAndBackprop(ctx, component.Batch{InputNode: {1, 2}, "label": {0}}, "missing"); err == nil {
		t.Errorf("Expected error for unknown loss op")
	}
	if _, err := ex.InferenceAndBackprop(ctx, component.Batch{InputNode: {1, 2}, "label": {5}}, "loss"); !errors.Is(err, recipe.ErrConfiguration) {
		t.Errorf("Expected configuration error for out-of-range label, got %v", err)
	}
	if _, err := ex.Inference(ctx, component.Batch{InputNode: {1, 2, 3}}); err == nil {
		t.Errorf("Expected error for ragged input")
	}
}
