package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// envVarFields is the fixed mapping from process environment variables to
// snapshot fields. Environment variables are the highest precedence tier and
// override both file values and defaults.
var envVarFields = map[string]string{
	"CONFIG_API_BASE_URL":     "api_base_url",
	"CONFIG_API_TIMEOUT":      "api_timeout",
	"CONFIG_VERIFY_SSL":       "verify_ssl",
	"CONFIG_BROWSER":          "browser",
	"CONFIG_HEADLESS":         "headless",
	"CONFIG_BROWSER_TIMEOUT":  "browser_timeout",
	"CONFIG_BEARER_TOKEN":     "bearer_token",
	"CONFIG_API_KEY":          "api_key",
	"CONFIG_BASIC_AUTH_USER":  "basic_auth_user",
	"CONFIG_BASIC_AUTH_PASS":  "basic_auth_pass",
	"CONFIG_LOG_LEVEL":        "log_level",
	"CONFIG_MAX_RETRIES":      "max_retries",
	"CONFIG_RETRY_DELAY":      "retry_delay",
	"CONFIG_ENABLE_RETRY":     "enable_retry",
	"CONFIG_PARALLEL_WORKERS": "parallel_workers",
	"CONFIG_ENABLE_PARALLEL":  "enable_parallel",
}

// build layers the three precedence tiers for one environment and decodes
// the merged map into a Snapshot. Returns unknown-field warnings alongside.
func (r *Resolver) build(env string) (*Snapshot, []string, error) {
	r.mu.RLock()
	fileFields := r.fileData[env]
	filePath := r.filePath
	r.mu.RUnlock()

	return buildFrom(env, fileFields, filePath)
}

// buildFrom merges the tiers without touching resolver state, so it is safe
// to call while holding the resolver's write lock.
func buildFrom(env string, fileFields map[string]any, filePath string) (*Snapshot, []string, error) {
	merged, err := defaults(env).toMap()
	if err != nil {
		return nil, nil, err
	}

	var warnings []string

	// File tier: only the environment's own top-level key applies.
	for _, name := range sortedKeys(fileFields) {
		if !fieldNames[name] {
			warnings = append(warnings,
				fmt.Sprintf("unknown field %q for environment %q in %s", name, env, filePath))
			continue
		}
		merged[name] = fileFields[name]
	}

	// Environment-variable tier. Values stay strings here; the weakly-typed
	// decode below converts them to the field's type.
	for envVar, field := range envVarFields {
		if value, ok := os.LookupEnv(envVar); ok {
			merged[field] = value
		}
	}

	snap, err := decodeSnapshot(merged, env)
	if err != nil {
		return nil, nil, err
	}
	return snap, warnings, nil
}

// decodeSnapshot converts a merged field map into a Snapshot.
func decodeSnapshot(fields map[string]any, env string) (*Snapshot, error) {
	snap := &Snapshot{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           snap,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot decoder: %w", err)
	}
	if err := decoder.Decode(fields); err != nil {
		return nil, fmt.Errorf("failed to decode configuration for %q: %w", env, err)
	}

	snap.Environment = env
	if snap.Extensions == nil {
		snap.Extensions = map[string]any{}
	}
	return snap, nil
}

// loadFile reads and parses a configuration file into per-environment raw
// field maps. Unknown top-level keys are ignored.
func (r *Resolver) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	format := detectFileFormat(path)
	if format == "" {
		format = detectFormatFromContent(raw)
		if format == "" {
			return fmt.Errorf("unable to determine config format for file '%s'", path)
		}
	}

	parsed := make(map[string]any)
	switch format {
	case "json":
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return fmt.Errorf("failed to parse JSON config file '%s': %w", path, err)
		}
	case "yaml":
		if err := yaml.Unmarshal(raw, &parsed); err != nil {
			return fmt.Errorf("failed to parse YAML config file '%s': %w", path, err)
		}
	case "toml":
		if err := toml.Unmarshal(raw, &parsed); err != nil {
			return fmt.Errorf("failed to parse TOML config file '%s': %w", path, err)
		}
	}

	fileData := make(map[string]map[string]any)
	for env, value := range parsed {
		if !knownEnvironment(env) {
			continue
		}
		fields, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("environment %q in '%s' is not a table of fields", env, path)
		}
		fileData[env] = fields
	}

	r.mu.Lock()
	r.filePath = path
	r.fileData = fileData
	r.mu.Unlock()

	return nil
}

// AvailableIn lists the environment names a configuration file provides
// values for, without attaching the file to the resolver.
func AvailableIn(path string) ([]string, error) {
	probe := &Resolver{
		snapshots: make(map[string]*Snapshot),
		fileData:  make(map[string]map[string]any),
	}
	if err := probe.loadFile(path); err != nil {
		return nil, err
	}

	envs := make([]string, 0, len(probe.fileData))
	for env := range probe.fileData {
		envs = append(envs, env)
	}
	sort.Strings(envs)
	return envs, nil
}

// detectFileFormat determines format from the file extension.
func detectFileFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".toml", ".tml":
		return "toml"
	default:
		return ""
	}
}

// detectFormatFromContent attempts detection by parsing. JSON first because
// it is the strictest, YAML before TOML because YAML is a JSON superset.
func detectFormatFromContent(data []byte) string {
	var probe any
	if err := json.Unmarshal(data, &probe); err == nil {
		return "json"
	}
	if err := yaml.Unmarshal(data, &probe); err == nil {
		return "yaml"
	}
	if err := toml.Unmarshal(data, &probe); err == nil {
		return "toml"
	}
	return ""
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
