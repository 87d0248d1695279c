package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadConfig reads <configDir>/base.yaml, overlays <configDir>/<env>.yaml when
// it exists, then expands ${VAR} placeholders from secrets.env and finally
// from the process environment. configDir defaults to "config".
func LoadConfig(env string, configDir string) (map[string]any, error) {
	if configDir == "" {
		configDir = "config"
	}

	merged, err := loadYAMLFile(filepath.Join(configDir, "base.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to load base.yaml: %w", err)
	}

	if env != "" && env != "base" {
		overlay, err := loadYAMLFile(filepath.Join(configDir, env+".yaml"))
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to load %s.yaml: %w", env, err)
		default:
			merged = mergeMaps(merged, overlay)
		}
	}

	secrets, err := loadEnvFile(filepath.Join(configDir, "secrets.env"))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to load secrets.env: %w", err)
	default:
		merged = substituteEnvVars(merged, secrets)
	}

	return substituteEnvVars(merged, systemEnv()), nil
}

func loadYAMLFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// loadEnvFile parses KEY=VALUE lines. Blank lines, comments and lines without
// '=' are ignored; one pair of matching quotes around a value is removed.
func loadEnvFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	env := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		env[strings.TrimSpace(key)] = unquote(strings.TrimSpace(value))
	}
	return env, sc.Err()
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// mergeMaps returns dst overlaid with src, merging nested maps. Neither input
// is modified.
func mergeMaps(dst, src map[string]any) map[string]any {
	result := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		result[k] = v
	}

	for k, v := range src {
		dstMap, dstOK := result[k].(map[string]any)
		srcMap, srcOK := v.(map[string]any)
		if dstOK && srcOK {
			result[k] = mergeMaps(dstMap, srcMap)
			continue
		}
		result[k] = v
	}
	return result
}

// substituteEnvVars expands ${VAR} in every string value, including inside
// lists. Unknown variables are left as written.
func substituteEnvVars(config map[string]any, env map[string]string) map[string]any {
	result := make(map[string]any, len(config))
	for k, v := range config {
		result[k] = substituteValue(v, env)
	}
	return result
}

func substituteValue(v any, env map[string]string) any {
	switch val := v.(type) {
	case string:
		return substituteString(val, env)
	case map[string]any:
		return substituteEnvVars(val, env)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = substituteValue(item, env)
		}
		return out
	default:
		return v
	}
}

func substituteString(s string, env map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		if value, ok := env[m[2:len(m)-1]]; ok {
			return value
		}
		return m
	})
}

func systemEnv() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// LoadInto loads the layered config and decodes it into out, which must be a
// pointer to a struct with yaml tags.
func LoadInto(env, configDir string, out any) error {
	cfgMap, err := LoadConfig(env, configDir)
	if err != nil {
		return err
	}

	cfgData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := yaml.Unmarshal(cfgData, out); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

// GetEnv returns the environment variable key, or defaultValue when unset.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetConfigEnv returns CONFIG_ENV, defaulting to local.
func GetConfigEnv() string {
	return GetEnv("CONFIG_ENV", "local")
}
