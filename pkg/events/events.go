// Package events holds training loop observers: a console logger and a
// publisher that streams notifications to Kafka.
package events

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/siqueiraa/RecipeFlow/pkg/component"
)

// Log writes one line per notification.
type Log struct {
	// Stages limits logging to the listed stages; empty logs every stage.
	Stages []component.Stage
}

func (l Log) Notify(_ context.Context, n component.Notification) error {
	if len(l.Stages) > 0 && !containsStage(l.Stages, n.Stage) {
		return nil
	}
	log.Printf("[Event] run=%s %s epoch %d/%d%s", n.RunID, n.Stage, n.Epoch, n.Epochs, formatValues(n.Values))
	return nil
}

func containsStage(stages []component.Stage, s component.Stage) bool {
	for _, st := range stages {
		if st == s {
			return true
		}
	}
	return false
}

func formatValues(values map[string]float64) string {
	if len(values) == 0 {
		return ""
	}
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, k := range names {
		fmt.Fprintf(&sb, " %s=%g", k, values[k])
	}
	return sb.String()
}
