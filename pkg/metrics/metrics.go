// Package metrics implements the measurements a recipe can request. The
// training loop drives them through the Timed, Validated and Trained hooks.
package metrics

import (
	"time"

	"github.com/siqueiraa/RecipeFlow/pkg/component"
)

// Measurer yields the scalar value of a metric after a run.
type Measurer interface {
	component.Metric
	Result() float64
}

// Timed metrics bracket the whole training run.
type Timed interface {
	Measurer
	Begin()
	End()
}

// Validated metrics observe every validation batch of the final epoch.
type Validated interface {
	Measurer
	Reset()
	Update(predictions, labels []float32)
}

// Trained metrics observe every optimizer step of the final epoch.
type Trained interface {
	Measurer
	Reset()
	Observe(out component.Outputs)
}

// WallclockTime measures the total run time in seconds, once.
type WallclockTime struct {
	start   time.Time
	elapsed time.Duration
	now     func() time.Time
}

func NewWallclockTime() *WallclockTime {
	return &WallclockTime{now: time.Now}
}

func (w *WallclockTime) Name() string { return "WallclockTime" }
func (w *WallclockTime) Begin()       { w.start = w.now() }
func (w *WallclockTime) End()         { w.elapsed = w.now().Sub(w.start) }

func (w *WallclockTime) Result() float64 { return w.elapsed.Seconds() }

// Accuracy is the fraction of validation samples classified correctly.
type Accuracy struct {
	correct int
	total   int
}

func NewAccuracy() *Accuracy { return &Accuracy{} }

func (a *Accuracy) Name() string { return "Accuracy" }

func (a *Accuracy) Reset() {
	a.correct = 0
	a.total = 0
}

// Update compares predictions to integer labels. One prediction per label is
// read as a binary probability; otherwise predictions are per-class scores.
func (a *Accuracy) Update(predictions, labels []float32) {
	if len(labels) == 0 {
		return
	}
	if len(predictions) == len(labels) {
		for i := range labels {
			predClass := 0
			if predictions[i] >= 0.5 {
				predClass = 1
			}
			if predClass == int(labels[i]) {
				a.correct++
			}
			a.total++
		}
		return
	}

	numClasses := len(predictions) / len(labels)
	if numClasses == 0 {
		return
	}
	for i := range labels {
		row := predictions[i*numClasses : (i+1)*numClasses]
		if argmax(row) == int(labels[i]) {
			a.correct++
		}
		a.total++
	}
}

func (a *Accuracy) Result() float64 {
	if a.total == 0 {
		return 0
	}
	return float64(a.correct) / float64(a.total)
}

// TrainingLoss is the mean loss over the optimizer steps of the final epoch.
type TrainingLoss struct {
	op    string
	sum   float64
	steps int
}

// NewTrainingLoss reads the output called op from every optimizer step.
func NewTrainingLoss(op string) *TrainingLoss { return &TrainingLoss{op: op} }

func (l *TrainingLoss) Name() string { return "TrainingLoss" }

func (l *TrainingLoss) Reset() {
	l.sum = 0
	l.steps = 0
}

func (l *TrainingLoss) Observe(out component.Outputs) {
	v, ok := out[l.op]
	if !ok || len(v) == 0 {
		return
	}
	var s float64
	for _, x := range v {
		s += float64(x)
	}
	l.sum += s / float64(len(v))
	l.steps++
}

func (l *TrainingLoss) Result() float64 {
	if l.steps == 0 {
		return 0
	}
	return l.sum / float64(l.steps)
}

func argmax(row []float32) int {
	best := 0
	for j := 1; j < len(row); j++ {
		if row[j] > row[best] {
			best = j
		}
	}
	return best
}
