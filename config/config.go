// Package config resolves the test harness's layered runtime configuration.
//
// A Resolver merges three precedence tiers for each environment, lowest to
// highest: built-in defaults, an optional configuration file, and a fixed set
// of process environment variables. The merged result is an immutable
// Snapshot. Switching environments or updating fields installs a freshly
// built Snapshot under a write lock, so concurrent readers always observe a
// complete snapshot, never a partially-updated one.
package config

import (
	"fmt"
	"os"
	"sync"
)

// RedactionMarker replaces credential values in Summary output.
const RedactionMarker = "[REDACTED]"

// credentialFields are redacted by Summary and never logged verbatim.
var credentialFields = map[string]bool{
	"bearer_token":    true,
	"api_key":         true,
	"basic_auth_pass": true,
}

// Resolver owns the per-environment snapshots and the active-environment
// pointer. All state behind the mutex is replaced wholesale, never mutated,
// so getters hand out snapshot references that remain safe to read after the
// lock is released.
type Resolver struct {
	mu        sync.RWMutex
	active    string
	snapshots map[string]*Snapshot
	filePath  string
	fileData  map[string]map[string]any // top-level env key -> raw field map
	warnings  []string
}

// Option adjusts Resolver construction.
type Option func(*options)

type options struct {
	file string
	env  string
}

// WithFile attaches a configuration file as the middle precedence tier.
// JSON is the primary format; YAML and TOML files are also accepted.
func WithFile(path string) Option {
	return func(o *options) { o.file = path }
}

// WithEnvironment overrides the initial environment selection. Without it
// the TEST_ENV variable decides, falling back to "test".
func WithEnvironment(env string) Option {
	return func(o *options) { o.env = env }
}

// New builds a Resolver and resolves the initial environment's snapshot.
// A missing or malformed configuration file is an immediate error; so is an
// initial environment outside the fixed set.
func New(opts ...Option) (*Resolver, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	r := &Resolver{
		snapshots: make(map[string]*Snapshot),
		fileData:  make(map[string]map[string]any),
	}

	if o.file != "" {
		if err := r.loadFile(o.file); err != nil {
			return nil, err
		}
	}

	env := o.env
	if env == "" {
		env = os.Getenv(EnvVarEnvironment)
	}
	if env == "" {
		env = EnvTest
	}

	if _, err := r.Resolve(env); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.active = env
	r.mu.Unlock()

	return r, nil
}

// Resolve builds the snapshot for an environment by layering defaults, file
// values, and environment variables, then installs it. Missing optional
// fields keep their zero values; invariant violations are only reported by
// Validate, never here.
func (r *Resolver) Resolve(env string) (*Snapshot, error) {
	if !knownEnvironment(env) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEnvironment, env)
	}

	snap, warnings, err := r.build(env)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.snapshots[env] = snap
	r.warnings = warnings
	r.mu.Unlock()

	return snap, nil
}

// Switch atomically replaces the active snapshot with a freshly resolved one
// for the requested environment.
func (r *Resolver) Switch(env string) error {
	if !knownEnvironment(env) {
		return fmt.Errorf("%w: %q", ErrUnknownEnvironment, env)
	}

	snap, warnings, err := r.build(env)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.snapshots[env] = snap
	r.active = env
	r.warnings = warnings
	r.mu.Unlock()

	return nil
}

// SwitchValidated resolves a fresh snapshot for the requested environment,
// validates that same snapshot, and only then installs it as active. Neither
// the active pointer nor the environment's cached snapshot changes when the
// freshly built snapshot is invalid, so an invalid configuration is never
// installed.
func (r *Resolver) SwitchValidated(env string) error {
	if !knownEnvironment(env) {
		return fmt.Errorf("%w: %q", ErrUnknownEnvironment, env)
	}

	snap, warnings, err := r.build(env)
	if err != nil {
		return err
	}
	if violations := snap.validate(); len(violations) > 0 {
		return &ValidationError{Environment: env, Violations: violations}
	}

	r.mu.Lock()
	r.snapshots[env] = snap
	r.active = env
	r.warnings = warnings
	r.mu.Unlock()

	return nil
}

// Active returns the active environment's name.
func (r *Resolver) Active() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Current returns the active environment's snapshot.
func (r *Resolver) Current() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshots[r.active]
}

// Snapshot returns the snapshot for an environment, resolving it on first
// use. An empty name means the active environment.
func (r *Resolver) Snapshot(env string) (*Snapshot, error) {
	r.mu.RLock()
	if env == "" {
		env = r.active
	}
	snap, ok := r.snapshots[env]
	r.mu.RUnlock()

	if ok {
		return snap, nil
	}
	return r.Resolve(env)
}

// Update installs a new snapshot for an environment that differs from the
// current one only in the named fields. Unknown field names are rejected
// with a *FieldError. An empty environment name means the active one.
func (r *Resolver) Update(env string, fields map[string]any) error {
	for name := range fields {
		if !fieldNames[name] {
			return &FieldError{Field: name}
		}
		if name == "environment" {
			// The environment name keys the snapshot; use Switch instead.
			return &FieldError{Field: name}
		}
	}

	// Copy-modify-install happens under one write lock so concurrent updates
	// to the same environment serialize instead of overwriting each other.
	r.mu.Lock()
	defer r.mu.Unlock()

	if env == "" {
		env = r.active
	}
	snap, ok := r.snapshots[env]
	if !ok {
		if !knownEnvironment(env) {
			return fmt.Errorf("%w: %q", ErrUnknownEnvironment, env)
		}
		built, warnings, err := buildFrom(env, r.fileData[env], r.filePath)
		if err != nil {
			return err
		}
		r.snapshots[env] = built
		r.warnings = warnings
		snap = built
	}

	base, err := snap.toMap()
	if err != nil {
		return err
	}
	for name, value := range fields {
		base[name] = value
	}

	updated, err := decodeSnapshot(base, env)
	if err != nil {
		return err
	}

	r.snapshots[env] = updated
	return nil
}

// Summary returns the snapshot's fields with every credential value replaced
// by the redaction marker. Safe to log.
func (r *Resolver) Summary(env string) (map[string]any, error) {
	snap, err := r.Snapshot(env)
	if err != nil {
		return nil, err
	}

	out, err := snap.toMap()
	if err != nil {
		return nil, err
	}
	for name := range credentialFields {
		if v, ok := out[name].(string); ok && v != "" {
			out[name] = RedactionMarker
		}
	}
	return out, nil
}

// Warnings returns the unknown-field warnings collected by the most recent
// Resolve or Switch. Unknown nested names in a file are reported here rather
// than failing the load.
func (r *Resolver) Warnings() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.warnings))
	copy(out, r.warnings)
	return out
}

// FilePath returns the attached configuration file path, if any.
func (r *Resolver) FilePath() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filePath
}
