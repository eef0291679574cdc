// Package engine runs a recipe end to end: merge the fixed and mutable
// namespaces, resolve the pipeline, train, and evaluate the metrics.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/siqueiraa/RecipeFlow/pkg/component"
	"github.com/siqueiraa/RecipeFlow/pkg/recipe"
	"github.com/siqueiraa/RecipeFlow/pkg/resolve"
	"github.com/siqueiraa/RecipeFlow/pkg/runner"
	"github.com/siqueiraa/RecipeFlow/pkg/verdict"
)

// State is a step of the linear run state machine.
type State string

const (
	StateMerging            State = "merging"
	StateResolving          State = "resolving"
	StateRunning            State = "running"
	StateEvaluating         State = "evaluating"
	StateDone               State = "done"
	StateConfigurationError State = "configuration_error"
	StateFailed             State = "failed"
)

// Report describes one recipe run.
type Report struct {
	RunID       string
	Recipe      string
	Fingerprint uint64
	States      []State
	Requests    []verdict.Request
	Result      runner.Result
	Verdict     verdict.Verdict
}

// State returns the state the run ended in.
func (r *Report) State() State {
	if len(r.States) == 0 {
		return ""
	}
	return r.States[len(r.States)-1]
}

type Engine struct {
	registry *component.Registry
	resolver *resolve.Resolver
	runner   *runner.Runner
	newRunID func() string
}

// NewEngine wires a resolver over reg and a runner over loop. reg may be nil
// when every descriptor and metric is typed.
func NewEngine(reg *component.Registry, loop component.TrainingLoop) *Engine {
	return &Engine{
		registry: reg,
		resolver: resolve.New(reg),
		runner:   runner.New(loop),
		newRunID: uuid.NewString,
	}
}

// RunFile runs a recipe loaded from disk, looking metric names up in the
// registry.
func (e *Engine) RunFile(ctx context.Context, f recipe.File) (Report, error) {
	requests := make([]verdict.Request, 0, len(f.Metrics))
	for _, spec := range f.Metrics {
		if e.registry == nil {
			return Report{Recipe: f.Name, States: []State{StateConfigurationError}},
				&recipe.ConfigurationError{Reason: "metrics given by name but no registry is configured", Keys: []string{spec.Metric}}
		}
		m, err := e.registry.Metric(spec.Metric)
		if err != nil {
			return Report{Recipe: f.Name, States: []State{StateConfigurationError}}, err
		}
		requests = append(requests, verdict.Request{Metric: m, Threshold: spec.Threshold})
	}
	return e.Run(ctx, f.Name, f.Fixed, f.Mutable, requests)
}

// Run executes one recipe. Configuration and collaborator errors are
// returned; metric failures are reported through Report.Verdict.
func (e *Engine) Run(
	ctx context.Context,
	name string,
	fixed, mutable recipe.Components,
	requests []verdict.Request,
) (Report, error) {
	rep := Report{RunID: e.newRunID(), Recipe: name}

	rep.States = append(rep.States, StateMerging)
	cfg, err := recipe.Merge(fixed, mutable)
	if err != nil {
		return e.fail(&rep, err)
	}
	rep.Fingerprint = Fingerprint(cfg)
	log.Printf("[Recipe] %s run=%s fingerprint=%016x", name, rep.RunID, rep.Fingerprint)

	rep.States = append(rep.States, StateResolving)
	pipeline, err := e.resolver.Resolve(cfg)
	if err != nil {
		return e.fail(&rep, err)
	}
	events, err := e.resolver.Events(cfg)
	if err != nil {
		return e.fail(&rep, err)
	}

	rep.States = append(rep.States, StateRunning)
	requested := make([]component.Metric, len(requests))
	for i, r := range requests {
		requested[i] = r.Metric
	}
	rep.Result, err = e.runner.Run(ctx, rep.RunID, pipeline, cfg, requested, events)
	if err != nil {
		return e.fail(&rep, err)
	}

	rep.States = append(rep.States, StateEvaluating)
	rep.Requests = make([]verdict.Request, 0, len(rep.Result.Metrics))
	rep.Requests = append(rep.Requests, requests...)
	for _, m := range rep.Result.Metrics[len(requests):] {
		rep.Requests = append(rep.Requests, verdict.Request{Metric: m})
	}
	rep.Verdict = verdict.Evaluate(rep.Requests, rep.Result.Values)

	rep.States = append(rep.States, StateDone)
	log.Printf("[Recipe] %s run=%s finished: passed=%v failures=%d", name, rep.RunID, rep.Verdict.Passed, len(rep.Verdict.Failures))
	return rep, nil
}

func (e *Engine) fail(rep *Report, err error) (Report, error) {
	if errors.Is(err, recipe.ErrConfiguration) {
		rep.States = append(rep.States, StateConfigurationError)
		log.Printf("[Recipe] %s run=%s rejected: %v", rep.Recipe, rep.RunID, err)
	} else {
		rep.States = append(rep.States, StateFailed)
		log.Printf("[Recipe] %s run=%s failed: %v", rep.Recipe, rep.RunID, err)
	}
	return *rep, err
}

// Fingerprint hashes the normalized config. Scalars and argument values are
// hashed by value; typed descriptors by their type.
func Fingerprint(cfg recipe.Config) uint64 {
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(describe(cfg[k]))
		sb.WriteByte(';')
	}
	return xxhash.Sum64String(sb.String())
}

func describe(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprintf("%T:%v", x, x)
	case recipe.Args:
		return describeSlice([]any(x))
	case []any:
		return describeSlice(x)
	case recipe.Kwargs:
		return describeMap(map[string]any(x))
	case map[string]any:
		return describeMap(x)
	case recipe.Components:
		return describeMap(map[string]any(x))
	case recipe.Config:
		return describeMap(map[string]any(x))
	default:
		return fmt.Sprintf("%T", x)
	}
}

func describeSlice(items []any) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = describe(item)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func describeMap(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ":" + describe(m[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}
