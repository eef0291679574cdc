package recipe

import (
	"errors"
	"reflect"
	"testing"
)

func TestMergeRejectsOverlap(t *testing.T) {
	fixed := Components{"model": "m", "executor": "e"}
	mutable := Components{"model": "m2", "dataset": "d"}

	cfg, err := Merge(fixed, mutable)
	if err == nil {
		t.Fatalf("Expected overlap error, got config %v", cfg)
	}
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("Expected ErrConfiguration, got %v", err)
	}

	var cerr *ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("Expected *ConfigurationError, got %T", err)
	}
	if !reflect.DeepEqual(cerr.Keys, []string{"model"}) {
		t.Errorf("Expected overlapping keys [model], got %v", cerr.Keys)
	}
}

func TestMergeUnion(t *testing.T) {
	fixed := Components{"model": "m", "executor": "e"}
	mutable := Components{"dataset": "d", "batch_size": 32, "epochs": 5, "optimizer": "o"}

	cfg, err := Merge(fixed, mutable)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	for k, v := range fixed {
		if cfg[k] != v {
			t.Errorf("Expected %s=%v, got %v", k, v, cfg[k])
		}
	}
	for k, v := range mutable {
		if cfg[k] != v {
			t.Errorf("Expected %s=%v, got %v", k, v, cfg[k])
		}
	}
}

func TestMergeCompletesArgsAndKwargs(t *testing.T) {
	fixed := Components{"model": "m"}
	mutable := Components{"dataset": "d", "batch_size": 8, "epochs": 1, "events": nil}

	cfg, err := Merge(fixed, mutable)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	for _, k := range []string{"model", "dataset"} {
		args, ok := cfg[ArgsKey(k)].(Args)
		if !ok || len(args) != 0 {
			t.Errorf("Expected empty %s, got %#v", ArgsKey(k), cfg[ArgsKey(k)])
		}
		kwargs, ok := cfg[KwargsKey(k)].(Kwargs)
		if !ok || len(kwargs) != 0 {
			t.Errorf("Expected empty %s, got %#v", KwargsKey(k), cfg[KwargsKey(k)])
		}
	}

	for _, k := range []string{"batch_size", "epochs", "events"} {
		if cfg.Has(ArgsKey(k)) || cfg.Has(KwargsKey(k)) {
			t.Errorf("Reserved key %s should not get companions", k)
		}
	}
}

func TestMergeKeepsCallerArguments(t *testing.T) {
	fixed := Components{
		"model":        "m",
		"model_args":   Args{1, 2},
		"model_kwargs": Kwargs{"classes": 3},
	}
	mutable := Components{"optimizer": "sgd", "optimizer_kwargs": map[string]any{"learning_rate": 0.5}}

	cfg, err := Merge(fixed, mutable)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	if !reflect.DeepEqual(cfg["model_args"], Args{1, 2}) {
		t.Errorf("model_args overwritten: %#v", cfg["model_args"])
	}
	if !reflect.DeepEqual(cfg["model_kwargs"], Kwargs{"classes": 3}) {
		t.Errorf("model_kwargs overwritten: %#v", cfg["model_kwargs"])
	}
	if _, ok := cfg["optimizer_args"].(Args); !ok {
		t.Errorf("optimizer_args missing: %#v", cfg["optimizer_args"])
	}

	kwargs, err := cfg.Kwargs("optimizer")
	if err != nil {
		t.Fatalf("Kwargs failed: %v", err)
	}
	if kwargs.Float("learning_rate", 0) != 0.5 {
		t.Errorf("Expected learning_rate 0.5, got %v", kwargs["learning_rate"])
	}

	// Companion keys are not normalized themselves.
	for _, k := range []string{"model_args_args", "model_kwargs_kwargs", "optimizer_kwargs_args"} {
		if cfg.Has(k) {
			t.Errorf("Unexpected key %s", k)
		}
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	fixed := Components{"model": "m"}
	mutable := Components{"dataset": "d"}

	if _, err := Merge(fixed, mutable); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if len(fixed) != 1 || len(mutable) != 1 {
		t.Errorf("Inputs mutated: fixed=%v mutable=%v", fixed, mutable)
	}
}
