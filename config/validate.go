package config

import (
	"fmt"
	"strconv"

	"github.com/hashicorp/go-multierror"
)

var validBrowsers = map[string]bool{
	"chromium": true,
	"firefox":  true,
	"webkit":   true,
}

var validLogLevels = map[string]bool{
	"DEBUG":    true,
	"INFO":     true,
	"WARNING":  true,
	"ERROR":    true,
	"CRITICAL": true,
}

// Validate checks every snapshot invariant and returns all violations found,
// never just the first. An empty environment name means the active one.
func (r *Resolver) Validate(env string) (bool, []string) {
	snap, err := r.Snapshot(env)
	if err != nil {
		return false, []string{err.Error()}
	}

	violations := snap.validate()
	return len(violations) == 0, violations
}

// EnsureValid is Validate in error form. It returns a *ValidationError
// carrying the full violation list, or nil when the snapshot is valid.
func (r *Resolver) EnsureValid(env string) error {
	snap, err := r.Snapshot(env)
	if err != nil {
		return err
	}

	if violations := snap.validate(); len(violations) > 0 {
		return &ValidationError{Environment: snap.Environment, Violations: violations}
	}
	return nil
}

// validate runs every invariant check and collects the results.
func (s *Snapshot) validate() []string {
	var result *multierror.Error

	if !knownEnvironment(s.Environment) {
		result = multierror.Append(result, fmt.Errorf(
			"environment must be one of dev, test, staging, prod, got %q", s.Environment))
	}

	for _, check := range []struct {
		name  string
		value int
	}{
		{"api_timeout", s.APITimeout},
		{"browser_timeout", s.BrowserTimeout},
		{"max_retries", s.MaxRetries},
		{"retry_delay", s.RetryDelay},
	} {
		if check.value < 0 {
			result = multierror.Append(result, fmt.Errorf(
				"%s must be non-negative, got %d", check.name, check.value))
		}
	}

	if !validBrowsers[s.Browser] {
		result = multierror.Append(result, fmt.Errorf(
			"browser must be one of chromium, firefox, webkit, got %q", s.Browser))
	}

	if !validLogLevels[s.LogLevel] {
		result = multierror.Append(result, fmt.Errorf(
			"log_level must be one of DEBUG, INFO, WARNING, ERROR, CRITICAL, got %q", s.LogLevel))
	}

	if s.ParallelWorkers != "auto" {
		if n, err := strconv.Atoi(s.ParallelWorkers); err != nil || n < 1 {
			result = multierror.Append(result, fmt.Errorf(
				"parallel_workers must be \"auto\" or a positive integer, got %q", s.ParallelWorkers))
		}
	}

	// Production runs must not talk to an unverified or unset endpoint.
	if s.Environment == EnvProd {
		if !s.VerifySSL {
			result = multierror.Append(result, fmt.Errorf(
				"verify_ssl must be true in the prod environment"))
		}
		if s.APIBaseURL == "" {
			result = multierror.Append(result, fmt.Errorf(
				"api_base_url must not be empty in the prod environment"))
		}
	}

	result = multierror.Append(result, validateExtensions("extensions", s.Extensions)...)

	errs := result.WrappedErrors()
	violations := make([]string, 0, len(errs))
	for _, err := range errs {
		violations = append(violations, err.Error())
	}
	return violations
}

// validateExtensions enforces the closed set of extension value shapes:
// strings, numbers, booleans, and nested maps of the same.
func validateExtensions(path string, values map[string]any) []error {
	var errs []error
	for _, key := range sortedKeys(values) {
		keyPath := path + "." + key
		switch v := values[key].(type) {
		case string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64,
			nil:
			// permitted leaf shapes
		case map[string]any:
			errs = append(errs, validateExtensions(keyPath, v)...)
		default:
			errs = append(errs, fmt.Errorf(
				"%s has unsupported type %T; extension values must be strings, numbers, booleans, or nested maps",
				keyPath, v))
		}
	}
	return errs
}
