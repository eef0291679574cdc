// Package app assembles a component registry from the built-in components
// and the backends enabled in the application config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/siqueiraa/RecipeFlow/pkg/checkpoint"
	"github.com/siqueiraa/RecipeFlow/pkg/component"
	"github.com/siqueiraa/RecipeFlow/pkg/config"
	"github.com/siqueiraa/RecipeFlow/pkg/duck"
	"github.com/siqueiraa/RecipeFlow/pkg/events"
	"github.com/siqueiraa/RecipeFlow/pkg/kafka"
	"github.com/siqueiraa/RecipeFlow/pkg/linear"
	"github.com/siqueiraa/RecipeFlow/pkg/metrics"
	"github.com/siqueiraa/RecipeFlow/pkg/resolve"
	"github.com/siqueiraa/RecipeFlow/pkg/sampler"
	"github.com/siqueiraa/RecipeFlow/pkg/trainer"
)

// Registered names of the built-in components.
const (
	ModelLinear        = "linear"
	ExecutorReference  = "reference"
	OptimizerSGD       = "sgd"
	SamplerSequential  = "sequential"
	SamplerShuffle     = "shuffle"
	MetricAccuracy     = "accuracy"
	MetricTrainingLoss = "training_loss"
	MetricWallclock    = "wallclock"
	EventLog           = "log"
	EventKafka         = "kafka"
	EventCheckpoint    = "checkpoint"
)

// App owns the registry and every backend opened for it.
type App struct {
	Registry *component.Registry
	Loop     *trainer.Loop

	closers []func() error
}

// RegisterBuiltins adds the components that need no configuration.
func RegisterBuiltins(reg *component.Registry) {
	reg.RegisterModel(ModelLinear, linear.Model)
	reg.RegisterExecutor(ExecutorReference, linear.ExecutorFactory)
	reg.RegisterOptimizer(OptimizerSGD, linear.SGDFactory)
	reg.RegisterSampler(SamplerSequential, sampler.Sequential)
	reg.RegisterSampler(SamplerShuffle, sampler.Shuffle)

	reg.RegisterMetric(MetricAccuracy, func() component.Metric { return metrics.NewAccuracy() })
	reg.RegisterMetric(MetricTrainingLoss, func() component.Metric { return metrics.NewTrainingLoss(resolve.LossOperation) })
	reg.RegisterMetric(MetricWallclock, func() component.Metric { return metrics.NewWallclockTime() })
	reg.RegisterEvent(EventLog, func() (component.Event, error) { return events.Log{}, nil })
}

// New builds an App from config. On error every backend opened so far is
// closed again.
func New(ctx context.Context, cfg config.AppConfig) (*App, error) {
	a := &App{Registry: component.NewRegistry(), Loop: trainer.New()}
	a.Loop.LogEvery = cfg.Trainer.LogEvery
	RegisterBuiltins(a.Registry)

	steps := []func(context.Context, config.AppConfig) error{
		a.setupDatasets,
		a.setupKafka,
		a.setupCheckpoints,
	}
	for _, step := range steps {
		if err := step(ctx, cfg); err != nil {
			return nil, errors.Join(err, a.Close())
		}
	}
	log.Printf("[App] Registry ready: %v", a.Registry.Names())
	return a, nil
}

func (a *App) setupDatasets(_ context.Context, cfg config.AppConfig) error {
	if len(cfg.Datasets) == 0 {
		return nil
	}
	engine, err := duck.NewDuckDBEngine("")
	if err != nil {
		return err
	}
	a.closers = append(a.closers, engine.Cleanup)

	for name, dc := range cfg.Datasets {
		ds, err := duck.NewDataset(name, dc, engine)
		if err != nil {
			return err
		}
		a.Registry.RegisterDataset(name, ds)
	}
	return nil
}

func (a *App) setupKafka(_ context.Context, cfg config.AppConfig) error {
	if !cfg.Kafka.Enabled {
		return nil
	}
	producer, codec, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, producer.Close)

	var registrar events.SchemaRegistrar
	if codec != nil {
		registrar = codec
	}
	publisher, err := events.NewKafkaPublisher(producer, cfg.Kafka.Topic, registrar, cfg.Kafka.Buffered)
	if err != nil {
		return err
	}
	a.Registry.RegisterEvent(EventKafka, func() (component.Event, error) { return publisher, nil })
	return nil
}

func (a *App) setupCheckpoints(ctx context.Context, cfg config.AppConfig) error {
	if !cfg.Checkpoint.Enabled {
		return nil
	}
	store, err := checkpoint.Open(cfg.Checkpoint.Path)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, store.Close)
	if stats, err := store.StatsByRun(); err == nil && len(stats) > 0 {
		log.Printf("[App] Checkpoint store holds %d run(s): %v", len(stats), stats)
	}

	ev := &checkpoint.Event{Store: store, Every: cfg.Checkpoint.Every, Resume: cfg.Checkpoint.Resume}
	if cfg.Checkpoint.S3.Enabled {
		archive, err := checkpoint.NewS3Archive(ctx, cfg.Checkpoint.S3)
		if err != nil {
			return fmt.Errorf("checkpoint archive: %w", err)
		}
		ev.Archive = archive
	}
	a.Registry.RegisterEvent(EventCheckpoint, func() (component.Event, error) { return ev, nil })
	return nil
}

// Close releases backends in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
