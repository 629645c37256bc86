// Package harness wires the test-automation run-time core together: the
// layered configuration resolver, the shared cache, and the identifier
// generator. A Runtime is built once per test process and passed by
// reference to everything that needs it; "singleton" means exactly one
// instance exists for the process lifetime, enforced by construction
// discipline rather than global mutable state.
package harness

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"harness/cache"
	"harness/config"
	"harness/snowflake"
)

// Runtime is the composition root for one test process.
type Runtime struct {
	resolver *config.Resolver
	store    *cache.Store
	gen      *snowflake.Generator
	runID    uuid.UUID
	logger   hclog.Logger
}

// Option adjusts Runtime construction.
type Option func(*settings)

type settings struct {
	configFile  string
	environment string
	store       *cache.Store
	logger      hclog.Logger
}

// WithConfigFile attaches a configuration file to the resolver.
func WithConfigFile(path string) Option {
	return func(s *settings) { s.configFile = path }
}

// WithEnvironment overrides the TEST_ENV environment selection.
func WithEnvironment(env string) Option {
	return func(s *settings) { s.environment = env }
}

// WithCache injects the shared cache instance instead of the process-wide
// default.
func WithCache(store *cache.Store) Option {
	return func(s *settings) { s.store = store }
}

// WithLogger injects a logger instead of the default hclog one.
func WithLogger(logger hclog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// New resolves the configuration, refuses to start on validation failure,
// and constructs the identifier generator from the resolved parallel-worker
// settings. A process that cannot resolve a valid configuration for the
// requested environment must not proceed to execute tests.
func New(opts ...Option) (*Runtime, error) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	var resolverOpts []config.Option
	if s.configFile != "" {
		resolverOpts = append(resolverOpts, config.WithFile(s.configFile))
	}
	if s.environment != "" {
		resolverOpts = append(resolverOpts, config.WithEnvironment(s.environment))
	}

	resolver, err := config.New(resolverOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve configuration: %w", err)
	}
	if err := resolver.EnsureValid(""); err != nil {
		return nil, err
	}

	snap := resolver.Current()

	logger := s.logger
	if logger == nil {
		logger = hclog.New(&hclog.LoggerOptions{
			Name:  "harness",
			Level: logLevel(snap.LogLevel),
		})
	}
	for _, warning := range resolver.Warnings() {
		logger.Warn("configuration warning", "detail", warning)
	}

	gen, err := snowflake.FromConfig(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to build identifier generator: %w", err)
	}

	store := s.store
	if store == nil {
		store = cache.Shared()
	}

	rt := &Runtime{
		resolver: resolver,
		store:    store,
		gen:      gen,
		runID:    uuid.New(),
		logger:   logger,
	}

	logger.Info("runtime ready",
		"environment", snap.Environment,
		"workers", snap.WorkerCount(),
		"worker_index", gen.Worker(),
		"run_id", rt.runID.String(),
	)
	return rt, nil
}

// Environment returns the active environment's name.
func (r *Runtime) Environment() string {
	return r.resolver.Active()
}

// Snapshot returns the snapshot for an environment, or the active one for "".
func (r *Runtime) Snapshot(env string) (*config.Snapshot, error) {
	return r.resolver.Snapshot(env)
}

// SwitchEnvironment resolves the target environment fresh, validates the
// resolved snapshot, and makes it active. A snapshot that fails validation is
// never installed.
func (r *Runtime) SwitchEnvironment(env string) error {
	if err := r.resolver.SwitchValidated(env); err != nil {
		return err
	}
	r.logger.Info("environment switched", "environment", env)
	return nil
}

// Validate reports whether an environment's snapshot satisfies every
// invariant, with the full violation list. "" means the active environment.
func (r *Runtime) Validate(env string) (bool, []string) {
	return r.resolver.Validate(env)
}

// Summary returns the redacted configuration summary for logging.
func (r *Runtime) Summary(env string) (map[string]any, error) {
	return r.resolver.Summary(env)
}

// Config returns the configuration resolver.
func (r *Runtime) Config() *config.Resolver {
	return r.resolver
}

// Cache returns the shared cache instance.
func (r *Runtime) Cache() *cache.Store {
	return r.store
}

// NextID issues the next correlation identifier.
func (r *Runtime) NextID() (snowflake.ID, error) {
	return r.gen.Next()
}

// RunID returns the identifier correlating every artifact of this test run.
func (r *Runtime) RunID() string {
	return r.runID.String()
}

// Logger returns the runtime logger.
func (r *Runtime) Logger() hclog.Logger {
	return r.logger
}

// logLevel maps the snapshot's log_level field onto hclog levels.
func logLevel(name string) hclog.Level {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return hclog.Debug
	case "WARNING":
		return hclog.Warn
	case "ERROR", "CRITICAL":
		return hclog.Error
	default:
		return hclog.Info
	}
}
