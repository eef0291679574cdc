package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/siqueiraa/RecipeFlow/pkg/config"
	"github.com/siqueiraa/RecipeFlow/pkg/engine"
	"github.com/siqueiraa/RecipeFlow/pkg/faker"
	"github.com/siqueiraa/RecipeFlow/pkg/recipe"
)

func writeBlobs(t *testing.T) (string, faker.Generator) {
	t.Helper()
	g := faker.Generator{Classes: 2, Features: 2, Samples: 200, Spread: 0.2, Seed: 3}
	path := filepath.Join(t.TempDir(), "blobs.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create CSV: %v", err)
	}
	defer f.Close()
	if err := g.WriteCSV(f); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}
	return path, g
}

func testConfig(t *testing.T) config.AppConfig {
	t.Helper()
	csvPath, g := writeBlobs(t)

	cfg := config.Default()
	cfg.Checkpoint.Enabled = true
	cfg.Checkpoint.Path = filepath.Join(t.TempDir(), "checkpoints")
	cfg.Datasets["blobs"] = config.DatasetConfig{
		Setup:           []string{fmt.Sprintf("CREATE OR REPLACE TABLE blobs AS SELECT * FROM read_csv_auto('%s')", csvPath)},
		TrainQuery:      "SELECT * FROM blobs WHERE id % 5 <> 0",
		ValidationQuery: "SELECT * FROM blobs WHERE id % 5 = 0",
		Features:        g.FeatureColumns(),
		Label:           "label",
		Classes:         2,
	}
	return cfg
}

func blobsRecipe(threshold float64) recipe.File {
	return recipe.File{
		Name: "blobs-softmax",
		Fixed: recipe.Components{
			recipe.KeyDataset:  "blobs",
			recipe.KeyModel:    ModelLinear,
			recipe.KeyExecutor: ExecutorReference,
			"model_kwargs":     map[string]any{"classes": 2, "seed": 1},
		},
		Mutable: recipe.Components{
			recipe.KeyBatchSize:    16,
			recipe.KeyEpochs:       5,
			recipe.KeyTrainSampler: SamplerShuffle,
			recipe.KeyOptimizer:    OptimizerSGD,
			"optimizer_kwargs":     map[string]any{"learning_rate": 0.5},
			recipe.KeyEvents:       []any{EventLog, EventCheckpoint},
		},
		Metrics: []recipe.MetricSpec{
			{Metric: MetricAccuracy, Threshold: &threshold},
			{Metric: MetricTrainingLoss},
		},
	}
}

func TestEndToEndRecipe(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	rep, err := engine.NewEngine(a.Registry, a.Loop).RunFile(context.Background(), blobsRecipe(0.9))
	if err != nil {
		t.Fatalf("RunFile failed: %v", err)
	}

	if rep.State() != engine.StateDone {
		t.Errorf("Expected state done, got %s", rep.State())
	}
	if !rep.Verdict.Passed {
		t.Errorf("Expected recipe to pass, failures: %+v", rep.Verdict.Failures)
	}
	// accuracy, training loss and the implicit wall-clock time
	if len(rep.Result.Values) != 3 {
		t.Fatalf("Expected 3 results, got %v", rep.Result.Values)
	}
	if rep.Result.Metrics[2].Name() != "WallclockTime" {
		t.Errorf("Expected wall-clock metric last, got %s", rep.Result.Metrics[2].Name())
	}
}

func TestEndToEndRecipeFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blobs.yaml")
	content := `
name: blobs-yaml
fixed:
  dataset: blobs
  model: linear
  model_kwargs:
    classes: 2
    seed: 1
  executor: reference
mutable:
  batch_size: 16
  epochs: 5
  train_sampler: shuffle
  train_sampler_kwargs:
    seed: 7
  optimizer: sgd
  optimizer_kwargs:
    learning_rate: 0.5
  events: [log, checkpoint]
metrics:
  - metric: accuracy
    threshold: 0.9
  - metric: training_loss
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write recipe: %v", err)
	}

	file, err := recipe.LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	a, err := New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	rep, err := engine.NewEngine(a.Registry, a.Loop).RunFile(context.Background(), file)
	if err != nil {
		t.Fatalf("RunFile failed: %v", err)
	}
	if rep.State() != engine.StateDone {
		t.Fatalf("Expected state done, got %s", rep.State())
	}
	if !rep.Verdict.Passed {
		t.Errorf("Expected recipe to pass, failures: %+v", rep.Verdict.Failures)
	}
}

func TestEndToEndRecipeFailsThreshold(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	rep, err := engine.NewEngine(a.Registry, a.Loop).RunFile(context.Background(), blobsRecipe(1.01))
	if err != nil {
		t.Fatalf("RunFile failed: %v", err)
	}
	if rep.Verdict.Passed {
		t.Errorf("Expected an unreachable accuracy threshold to fail")
	}
	if len(rep.Verdict.Failures) != 1 || rep.Verdict.Failures[0].Metric != "Accuracy" {
		t.Errorf("Unexpected failures %+v", rep.Verdict.Failures)
	}
}

func TestNewRejectsBadDataset(t *testing.T) {
	cfg := config.Default()
	cfg.Datasets["bad"] = config.DatasetConfig{
		TrainQuery:      "DROP TABLE x",
		ValidationQuery: "SELECT * FROM x",
		Features:        []string{"a"},
		Label:           "y",
	}
	if _, err := New(context.Background(), cfg); err == nil {
		t.Errorf("Expected invalid dataset query to be rejected")
	}
}

func TestBuiltinsRegistered(t *testing.T) {
	a, err := New(context.Background(), config.Default())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer a.Close()

	for _, name := range []string{MetricAccuracy, MetricTrainingLoss, MetricWallclock} {
		if _, err := a.Registry.Metric(name); err != nil {
			t.Errorf("Metric %s not registered: %v", name, err)
		}
	}
	if _, err := a.Registry.Event(EventLog); err != nil {
		t.Errorf("Log event not registered: %v", err)
	}
	if _, err := a.Registry.Event(EventCheckpoint); err == nil {
		t.Errorf("Checkpoint event must only exist when enabled")
	}
}
