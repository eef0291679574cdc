package recipe

import (
	"fmt"
	"math"
)

// Component keys understood by the resolver and runner.
const (
	KeyDataset           = "dataset"
	KeyModel             = "model"
	KeyTrainSampler      = "train_sampler"
	KeyValidationSampler = "validation_sampler"
	KeyExecutor          = "executor"
	KeyOptimizer         = "optimizer"
	KeyBatchSize         = "batch_size"
	KeyEpochs            = "epochs"
	KeyEvents            = "events"
)

const (
	argsSuffix   = "_args"
	kwargsSuffix = "_kwargs"
)

// reservedKeys are scalar entries that never get _args/_kwargs companions.
var reservedKeys = map[string]struct{}{
	KeyBatchSize: {},
	KeyEpochs:    {},
	KeyEvents:    {},
}

// Args are positional arguments applied when a component is instantiated.
type Args []any

// Kwargs are keyword arguments applied when a component is instantiated.
type Kwargs map[string]any

// Components is one namespace of a recipe (fixed or mutable). Values are
// component descriptors (typed factories or registered names) or scalars.
type Components map[string]any

// Config is the merged, normalized recipe. Every non-reserved component key k
// has k_args and k_kwargs entries.
type Config map[string]any

// ArgsKey returns the key holding the positional arguments of component k.
func ArgsKey(k string) string { return k + argsSuffix }

// KwargsKey returns the key holding the keyword arguments of component k.
func KwargsKey(k string) string { return k + kwargsSuffix }

// Has reports whether key is present in the config.
func (c Config) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// Args returns the positional arguments of component k.
func (c Config) Args(k string) (Args, error) {
	raw, ok := c[ArgsKey(k)]
	if !ok || raw == nil {
		return Args{}, nil
	}
	switch v := raw.(type) {
	case Args:
		return v, nil
	case []any:
		return Args(v), nil
	default:
		return nil, &ConfigurationError{
			Reason: fmt.Sprintf("%s must be a sequence, got %T", ArgsKey(k), raw),
			Keys:   []string{ArgsKey(k)},
		}
	}
}

// Kwargs returns the keyword arguments of component k.
func (c Config) Kwargs(k string) (Kwargs, error) {
	raw, ok := c[KwargsKey(k)]
	if !ok || raw == nil {
		return Kwargs{}, nil
	}
	switch v := raw.(type) {
	case Kwargs:
		return v, nil
	case map[string]any:
		return Kwargs(v), nil
	case Components:
		return Kwargs(v), nil
	case Config:
		return Kwargs(v), nil
	default:
		return nil, &ConfigurationError{
			Reason: fmt.Sprintf("%s must be a mapping, got %T", KwargsKey(k), raw),
			Keys:   []string{KwargsKey(k)},
		}
	}
}

// Int returns a required integer entry such as batch_size or epochs.
func (c Config) Int(key string) (int, error) {
	raw, ok := c[key]
	if !ok {
		return 0, MissingComponent(key)
	}
	n, ok := toInt(raw)
	if !ok {
		return 0, &ConfigurationError{
			Reason: fmt.Sprintf("%s must be an integer, got %v (%T)", key, raw, raw),
			Keys:   []string{key},
		}
	}
	return n, nil
}

// String returns the keyword argument key as a string, or def when absent.
func (k Kwargs) String(key, def string) string {
	if v, ok := k[key].(string); ok {
		return v
	}
	return def
}

// Int returns the keyword argument key as an int, or def when absent or not
// an integer.
func (k Kwargs) Int(key string, def int) int {
	if n, ok := toInt(k[key]); ok {
		return n
	}
	return def
}

// Float returns the keyword argument key as a float64, or def when absent.
func (k Kwargs) Float(key string, def float64) float64 {
	switch v := k[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	}
	if n, ok := toInt(k[key]); ok {
		return float64(n)
	}
	return def
}

// Strings returns the keyword argument key as a string slice.
func (k Kwargs) Strings(key string) []string {
	switch v := k[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func toInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		if v == math.Trunc(v) {
			return int(v), true
		}
	}
	return 0, false
}
