// Package trainer is the default training loop: optimizer steps over the
// training sampler, inference over the validation sampler, events at every
// stage.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/siqueiraa/RecipeFlow/pkg/component"
	"github.com/siqueiraa/RecipeFlow/pkg/metrics"
)

const (
	defaultLabelNode = "label"
	defaultLossOp    = "loss"
)

type Loop struct {
	LabelNode string
	LossOp    string
	// LogEvery logs the running training loss every n steps; 0 disables it.
	LogEvery int

	now func() time.Time
}

func New() *Loop {
	return &Loop{LabelNode: defaultLabelNode, LossOp: defaultLossOp, now: time.Now}
}

type measured struct {
	timed     []metrics.Timed
	validated []metrics.Validated
	trained   []metrics.Trained
	all       []metrics.Measurer
}

func classify(ms []component.Metric) (*measured, error) {
	m := &measured{}
	for _, metric := range ms {
		meas, ok := metric.(metrics.Measurer)
		if !ok {
			return nil, fmt.Errorf("metric %s cannot be measured by the training loop", metric.Name())
		}
		m.all = append(m.all, meas)
		switch v := metric.(type) {
		case metrics.Timed:
			m.timed = append(m.timed, v)
		case metrics.Validated:
			m.validated = append(m.validated, v)
		case metrics.Trained:
			m.trained = append(m.trained, v)
		default:
			return nil, fmt.Errorf("metric %s has no training loop hook", metric.Name())
		}
	}
	return m, nil
}

// TrainAndValidate runs t.Epochs epochs and returns one value per metric in
// t.Metrics order. Trained and validated metrics reflect the final epoch.
func (l *Loop) TrainAndValidate(ctx context.Context, t component.Training) ([]float64, error) {
	m, err := classify(t.Metrics)
	if err != nil {
		return nil, err
	}

	for _, tm := range m.timed {
		tm.Begin()
	}
	if err := l.notify(ctx, t, component.StageTrainingBegin, 0, nil); err != nil {
		return nil, err
	}

	for epoch := 1; epoch <= t.Epochs; epoch++ {
		if err := l.notify(ctx, t, component.StageEpochBegin, epoch, nil); err != nil {
			return nil, err
		}
		if err := l.train(ctx, t, m, epoch); err != nil {
			return nil, err
		}
		if err := l.validate(ctx, t, m); err != nil {
			return nil, err
		}
		if err := l.notify(ctx, t, component.StageEpochEnd, epoch, m.values()); err != nil {
			return nil, err
		}
	}
	if t.Epochs == 0 {
		if err := l.validate(ctx, t, m); err != nil {
			return nil, err
		}
	}

	for _, tm := range m.timed {
		tm.End()
	}
	if err := l.notify(ctx, t, component.StageTrainingEnd, t.Epochs, m.values()); err != nil {
		return nil, err
	}

	results := make([]float64, len(m.all))
	for i, meas := range m.all {
		results[i] = meas.Result()
	}
	return results, nil
}

func (l *Loop) train(ctx context.Context, t component.Training, m *measured, epoch int) error {
	for _, tm := range m.trained {
		tm.Reset()
	}

	t.TrainSampler.Reset()
	var (
		steps   int
		lossSum float64
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := t.TrainSampler.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		out, err := t.Optimizer.Step(ctx, batch)
		if err != nil {
			return err
		}
		for _, tm := range m.trained {
			tm.Observe(out)
		}
		steps++
		lossSum += mean(out[l.lossOp()])
		if l.LogEvery > 0 && steps%l.LogEvery == 0 {
			log.Printf("[Trainer] epoch %d/%d step %d loss=%.6f", epoch, t.Epochs, steps, lossSum/float64(steps))
		}
	}
	if steps > 0 {
		log.Printf("[Trainer] epoch %d/%d: %d step(s), mean loss %.6f", epoch, t.Epochs, steps, lossSum/float64(steps))
	}
	return nil
}

func (l *Loop) validate(ctx context.Context, t component.Training, m *measured) error {
	for _, vm := range m.validated {
		vm.Reset()
	}

	t.ValidationSampler.Reset()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := t.ValidationSampler.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		out, err := t.Executor.Inference(ctx, batch)
		if err != nil {
			return err
		}
		predictions, ok := out[t.OutputNode]
		if !ok {
			return fmt.Errorf("executor produced no output for node %s", t.OutputNode)
		}
		for _, vm := range m.validated {
			vm.Update(predictions, batch[l.label()])
		}
	}
}

func (l *Loop) notify(ctx context.Context, t component.Training, stage component.Stage, epoch int, values map[string]float64) error {
	if len(t.Events) == 0 {
		return nil
	}
	n := component.Notification{
		RunID:   t.RunID,
		Stage:   stage,
		Epoch:   epoch,
		Epochs:  t.Epochs,
		Time:    l.clock(),
		Values:  values,
		Network: t.Executor.Network(),
	}
	for _, ev := range t.Events {
		if err := ev.Notify(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loop) clock() time.Time {
	if l.now == nil {
		return time.Now()
	}
	return l.now()
}

func (l *Loop) lossOp() string {
	if l.LossOp == "" {
		return defaultLossOp
	}
	return l.LossOp
}

func (l *Loop) label() string {
	if l.LabelNode == "" {
		return defaultLabelNode
	}
	return l.LabelNode
}

// values snapshots the metrics that have a meaningful value mid-run.
func (m *measured) values() map[string]float64 {
	out := make(map[string]float64, len(m.trained)+len(m.validated))
	for _, tm := range m.trained {
		out[tm.Name()] = tm.Result()
	}
	for _, vm := range m.validated {
		out[vm.Name()] = vm.Result()
	}
	return out
}

func mean(v []float32) float64 {
	if len(v) == 0 {
		return 0
	}
	var s float64
	for _, x := range v {
		s += float64(x)
	}
	return s / float64(len(v))
}
