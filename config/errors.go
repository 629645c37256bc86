package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfigNotFound indicates the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// ErrUnknownEnvironment indicates an environment name outside the fixed set.
var ErrUnknownEnvironment = errors.New("unknown environment")

// ValidationError reports every invariant violation found in a snapshot.
// Validation never stops at the first problem; Violations carries the full
// list in the order the checks run.
type ValidationError struct {
	Environment string
	Violations  []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration for %q is invalid: %s",
		e.Environment, strings.Join(e.Violations, "; "))
}

// FieldError reports an attempt to update a field that does not exist on the
// snapshot. Typos are rejected, never silently ignored.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("unknown configuration field %q", e.Field)
}
