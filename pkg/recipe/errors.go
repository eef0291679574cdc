package recipe

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfiguration is matched by every ConfigurationError via errors.Is.
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError is a fatal, non-retryable problem with the recipe itself.
type ConfigurationError struct {
	Reason string
	Keys   []string
}

func (e *ConfigurationError) Error() string {
	if len(e.Keys) == 0 {
		return fmt.Sprintf("%v: %s", ErrConfiguration, e.Reason)
	}
	return fmt.Sprintf("%v: %s [%s]", ErrConfiguration, e.Reason, strings.Join(e.Keys, ", "))
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// MissingComponent reports a required component absent from the recipe.
func MissingComponent(key string) error {
	return &ConfigurationError{
		Reason: fmt.Sprintf("%s must be specified in recipe", key),
		Keys:   []string{key},
	}
}
