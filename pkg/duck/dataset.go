package duck

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/siqueiraa/RecipeFlow/pkg/component"
	"github.com/siqueiraa/RecipeFlow/pkg/config"
	"github.com/siqueiraa/RecipeFlow/pkg/recipe"
)

// Loss names accepted in a dataset config.
const (
	LossCrossEntropy = "cross_entropy"
	LossMSE          = "mse"
)

// Dataset serves train and validation splits from SQL queries. The setup
// statements run once per Load, before the splits are read.
type Dataset struct {
	Name   string
	cfg    config.DatasetConfig
	engine *DBEngine
}

// NewDataset validates both split queries up front so a bad recipe fails at
// registration rather than mid-resolution.
func NewDataset(name string, cfg config.DatasetConfig, engine *DBEngine) (*Dataset, error) {
	if engine == nil {
		return nil, fmt.Errorf("dataset %s: nil engine", name)
	}
	if len(cfg.Features) == 0 || cfg.Label == "" {
		return nil, fmt.Errorf("dataset %s needs features and a label", name)
	}
	for split, q := range map[string]string{"train": cfg.TrainQuery, "validation": cfg.ValidationQuery} {
		if _, err := ValidateSelect(q); err != nil {
			return nil, fmt.Errorf("dataset %s %s query: %w", name, split, err)
		}
	}
	switch cfg.Loss {
	case "", LossCrossEntropy, LossMSE:
	default:
		return nil, fmt.Errorf("dataset %s: unknown loss %q", name, cfg.Loss)
	}
	return &Dataset{Name: name, cfg: cfg, engine: engine}, nil
}

func (d *Dataset) Loss() (component.LossFactory, error) {
	if d.cfg.Loss == LossMSE {
		return component.MeanSquaredError, nil
	}
	return component.LabelCrossEntropy, nil
}

// Shape is (classes, features). Regression datasets report one class.
func (d *Dataset) Shape() ([]int, error) {
	classes := d.cfg.Classes
	if classes <= 0 {
		classes = 1
	}
	return []int{classes, len(d.cfg.Features)}, nil
}

// Load accepts a "timeout" keyword in seconds bounding the whole load.
func (d *Dataset) Load(input, label string, _ recipe.Args, kwargs recipe.Kwargs) (component.DatasetHandle, component.DatasetHandle, error) {
	ctx := context.Background()
	if timeout := kwargs.Float("timeout", 0); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeout*float64(time.Second)))
		defer cancel()
	}

	if err := d.engine.Exec(ctx, d.cfg.Setup...); err != nil {
		return nil, nil, fmt.Errorf("dataset %s setup: %w", d.Name, err)
	}

	columns := append(append([]string{}, d.cfg.Features...), d.cfg.Label)
	var train, validation *Table

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		train, err = d.split(gctx, "train", d.cfg.TrainQuery, input, label, columns)
		return err
	})
	g.Go(func() error {
		var err error
		validation, err = d.split(gctx, "validation", d.cfg.ValidationQuery, input, label, columns)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	log.Printf("[DuckDB] Dataset %s loaded: %d train, %d validation sample(s)", d.Name, train.Len(), validation.Len())
	return train, validation, nil
}

func (d *Dataset) split(ctx context.Context, split, query, input, label string, columns []string) (*Table, error) {
	rows, err := d.engine.FloatRows(ctx, query, columns)
	if err != nil {
		return nil, fmt.Errorf("dataset %s %s split: %w", d.Name, split, err)
	}
	return NewTable(d.Name+"/"+split, input, label, rows)
}
