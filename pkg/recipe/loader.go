package recipe

import (
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is a recipe as written on disk.
//
//	name: mnist-softmax
//	fixed:
//	  model: linear
//	  executor: reference
//	mutable:
//	  dataset: iris
//	  batch_size: 32
//	  epochs: 5
//	  optimizer: sgd
//	  optimizer_kwargs:
//	    learning_rate: 0.1
//	metrics:
//	  - metric: accuracy
//	    threshold: 0.9
type File struct {
	Name    string       `yaml:"name"`
	Fixed   Components   `yaml:"fixed"`
	Mutable Components   `yaml:"mutable"`
	Metrics []MetricSpec `yaml:"metrics"`
}

// MetricSpec names a registered metric and its optional acceptance threshold.
type MetricSpec struct {
	Metric    string   `yaml:"metric"`
	Threshold *float64 `yaml:"threshold,omitempty"`
}

func LoadFromFile(path string) (File, error) {
	var f File

	data, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}

	if len(data) == 0 {
		return f, fmt.Errorf("empty recipe file")
	}

	if unmarshalErr := yaml.Unmarshal(data, &f); unmarshalErr != nil {
		return f, unmarshalErr
	}

	if f.Name == "" {
		return f, fmt.Errorf("recipe name is required")
	}

	if len(f.Fixed) == 0 && len(f.Mutable) == 0 {
		return f, fmt.Errorf("recipe %s defines no components", f.Name)
	}

	for i, m := range f.Metrics {
		if strings.TrimSpace(m.Metric) == "" {
			return f, fmt.Errorf("recipe %s: metric #%d has no name", f.Name, i)
		}
	}

	if len(f.Metrics) == 0 {
		log.Printf("[Recipe] %s requests no metrics. Only wall-clock time will be measured.", f.Name)
	}

	f.Fixed = normalizeComponents(f.Fixed)
	f.Mutable = normalizeComponents(f.Mutable)

	return f, nil
}

// yaml.v3 decodes nested mappings of a Components field as Components and
// sequences as []any. Argument entries are turned into Args and Kwargs, and
// mappings deeper down into plain map[string]any.
func normalizeComponents(c Components) Components {
	out := make(Components, len(c))
	for k, v := range c {
		switch {
		case strings.HasSuffix(k, kwargsSuffix):
			if m, ok := v.(Components); ok {
				v = Kwargs(normalizeMap(m))
			}
		case strings.HasSuffix(k, argsSuffix):
			if s, ok := v.([]any); ok {
				v = Args(normalizeSlice(s))
			}
		default:
			v = normalizeValue(v)
		}
		out[k] = v
	}
	return out
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case Components:
		return normalizeMap(x)
	case map[string]any:
		return normalizeMap(x)
	case []any:
		return normalizeSlice(x)
	default:
		return v
	}
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeSlice(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = normalizeValue(v)
	}
	return out
}
