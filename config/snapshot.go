package config

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"runtime"
	"strconv"
	"strings"
)

// Environment names form a closed set. Resolve rejects anything else.
const (
	EnvDev     = "dev"
	EnvTest    = "test"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

// Environments returns the fixed set of known environment names.
func Environments() []string {
	return []string{EnvDev, EnvTest, EnvStaging, EnvProd}
}

// EnvVarEnvironment selects the active environment at process start.
const EnvVarEnvironment = "TEST_ENV"

// EnvVarWorker carries the parallel worker identity assigned by the test
// runner. Both plain integers ("3") and runner-prefixed names ("gw3") are
// accepted.
const EnvVarWorker = "TEST_WORKER"

// Snapshot is one environment's fully-resolved settings. A Snapshot is
// immutable once built: Resolver operations that "change" configuration
// construct a new Snapshot and install it wholesale, they never mutate an
// installed one. Callers may therefore read a Snapshot reference without
// holding any lock.
type Snapshot struct {
	Environment string `json:"environment"`

	APIBaseURL string `json:"api_base_url"`
	APITimeout int    `json:"api_timeout"` // seconds
	VerifySSL  bool   `json:"verify_ssl"`

	Browser        string `json:"browser"` // chromium, firefox, webkit
	Headless       bool   `json:"headless"`
	BrowserTimeout int    `json:"browser_timeout"` // milliseconds

	BearerToken   string `json:"bearer_token"`
	APIKey        string `json:"api_key"`
	BasicAuthUser string `json:"basic_auth_user"`
	BasicAuthPass string `json:"basic_auth_pass"`

	LogLevel string `json:"log_level"`

	MaxRetries  int  `json:"max_retries"`
	RetryDelay  int  `json:"retry_delay"` // seconds
	EnableRetry bool `json:"enable_retry"`

	ParallelWorkers string `json:"parallel_workers"` // "auto" or a positive integer
	EnableParallel  bool   `json:"enable_parallel"`

	// Extensions is an open-ended bag for project-specific settings. Values
	// are restricted to strings, numbers, booleans, and nested maps of the
	// same; Validate reports anything else.
	Extensions map[string]any `json:"extensions"`
}

// defaults returns the built-in snapshot for an environment. These are the
// lowest precedence tier; file and environment-variable values override them.
func defaults(env string) *Snapshot {
	s := &Snapshot{
		Environment:     env,
		APIBaseURL:      "http://localhost:8000",
		APITimeout:      30,
		VerifySSL:       true,
		Browser:         "chromium",
		Headless:        true,
		BrowserTimeout:  30000,
		LogLevel:        "INFO",
		MaxRetries:      3,
		RetryDelay:      1,
		EnableRetry:     false,
		ParallelWorkers: "auto",
		EnableParallel:  true,
		Extensions:      map[string]any{},
	}

	switch env {
	case EnvDev:
		s.Headless = false
		s.LogLevel = "DEBUG"
	case EnvStaging:
		s.APIBaseURL = "https://staging.example.com"
	case EnvProd:
		s.APIBaseURL = "https://api.example.com"
		s.EnableRetry = true
	}

	return s
}

// WorkerCount resolves the parallel_workers setting to a concrete count.
// "auto" maps to the number of CPUs; parallel execution disabled maps to 1.
func (s *Snapshot) WorkerCount() int {
	if !s.EnableParallel {
		return 1
	}
	if s.ParallelWorkers == "" || s.ParallelWorkers == "auto" {
		return runtime.NumCPU()
	}
	n, err := strconv.Atoi(s.ParallelWorkers)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// WorkerIndex reports this process's worker index from the TEST_WORKER
// variable set by the test runner. A single-worker run reports 0.
func WorkerIndex() int {
	raw, ok := os.LookupEnv(EnvVarWorker)
	if !ok {
		return 0
	}
	raw = strings.TrimSpace(raw)
	// some runners name workers "gw" followed by the index
	raw = strings.TrimPrefix(raw, "gw")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// clone returns a deep copy. Only Extensions needs real copying; every other
// field is a value.
func (s *Snapshot) clone() *Snapshot {
	out := *s
	out.Extensions = deepCopyMap(s.Extensions)
	return &out
}

func deepCopyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if nested, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// toMap renders the snapshot as the flat field map used by Summary, Update,
// and Persist. Going through the json codec keeps the map shape identical to
// the configuration-file shape.
func (s *Snapshot) toMap() (map[string]any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	out := make(map[string]any)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot map: %w", err)
	}
	return out, nil
}

// fieldNames is the set of valid snapshot field names (json tag spelling),
// built once from the struct definition.
var fieldNames = buildFieldNames()

func buildFieldNames() map[string]bool {
	names := make(map[string]bool)
	t := reflect.TypeOf(Snapshot{})
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		names[strings.Split(tag, ",")[0]] = true
	}
	return names
}

// FieldNames returns the valid snapshot field names in unspecified order.
func FieldNames() []string {
	out := make([]string, 0, len(fieldNames))
	for name := range fieldNames {
		out = append(out, name)
	}
	return out
}

func knownEnvironment(env string) bool {
	switch env {
	case EnvDev, EnvTest, EnvStaging, EnvProd:
		return true
	}
	return false
}
