// Package config loads the fleet and AI configuration documents: YAML (or
// JSON/JSON5) with `$include` merge and environment-variable expansion.
// The core never sees raw bytes, only the parsed structs this package
// produces.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"

	"github.com/agentcore/agentcore/internal/mcpfleet"
)

const includeKey = "$include"

// FleetConfig is the parsed form of fleet.yaml: a map of server
// name to its connection parameters.
type FleetConfig struct {
	Servers map[string]ServerEntry `yaml:"servers"`
}

// ServerEntry is one fleet.yaml server block.
type ServerEntry struct {
	Transport mcpfleet.TransportKind `yaml:"transport"`
	Command   string                 `yaml:"command"`
	Args      []string               `yaml:"args"`
	Env       map[string]string      `yaml:"env"`
	WorkDir   string                 `yaml:"workdir"`
	URL       string                 `yaml:"url"`
	Headers   map[string]string      `yaml:"headers"`
	AutoStart bool                   `yaml:"auto_start"`
}

// ToServerConfigs converts the parsed fleet config into the
// []*mcpfleet.ServerConfig the Server Manager consumes, validating each
// entry so a malformed config never reaches subprocess spawning.
func (f *FleetConfig) ToServerConfigs() ([]*mcpfleet.ServerConfig, error) {
	out := make([]*mcpfleet.ServerConfig, 0, len(f.Servers))
	for name, e := range f.Servers {
		cfg := &mcpfleet.ServerConfig{
			Name:      name,
			Transport: e.Transport,
			Command:   e.Command,
			Args:      e.Args,
			Env:       e.Env,
			WorkDir:   e.WorkDir,
			URL:       e.URL,
			Headers:   e.Headers,
			AutoStart: e.AutoStart,
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("fleet config: %w", err)
		}
		out = append(out, cfg)
	}
	return out, nil
}

// AIConfig is the parsed form of ai.yaml.
type AIConfig struct {
	DefaultProvider string                    `yaml:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers"`
}

// ProviderConfig is one ai.yaml provider block.
type ProviderConfig struct {
	ProviderKind string  `yaml:"provider_kind"`
	Model        string  `yaml:"model"`
	APIKeyEnv    string  `yaml:"api_key_env"`
	APIKey       string  `yaml:"api_key"`
	Temperature  float64 `yaml:"temperature"`
}

// LoadFleetConfig loads and validates fleet.yaml (or .json/.json5).
func LoadFleetConfig(path string) (*FleetConfig, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	var cfg FleetConfig
	if err := decodeRaw(raw, &cfg); err != nil {
		return nil, fmt.Errorf("fleet config: %w", err)
	}
	return &cfg, nil
}

// LoadAIConfig loads ai.yaml (or .json/.json5).
func LoadAIConfig(path string) (*AIConfig, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	var cfg AIConfig
	if err := decodeRaw(raw, &cfg); err != nil {
		return nil, fmt.Errorf("ai config: %w", err)
	}
	return &cfg, nil
}

// LoadRaw reads a configuration file into a merged raw map, resolving
// $include directives with cycle detection.
func LoadRaw(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	seen := map[string]bool{}
	return loadRawRecursive(path, seen)
}

func loadRawRecursive(path string, seen map[string]bool) (map[string]any, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if seen[absPath] {
		return nil, fmt.Errorf("config include cycle detected at %s", absPath)
	}
	seen[absPath] = true
	defer delete(seen, absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	expanded := os.ExpandEnv(string(data))
	raw, err := parseRawBytes([]byte(expanded), absPath)
	if err != nil {
		return nil, err
	}

	includes, err := extractIncludes(raw)
	if err != nil {
		return nil, err
	}

	merged := map[string]any{}
	if len(includes) > 0 {
		baseDir := filepath.Dir(absPath)
		for _, inc := range includes {
			if strings.TrimSpace(inc) == "" {
				continue
			}
			incPath := inc
			if !filepath.IsAbs(incPath) {
				incPath = filepath.Join(baseDir, incPath)
			}
			incRaw, err := loadRawRecursive(incPath, seen)
			if err != nil {
				return nil, err
			}
			merged = mergeMaps(merged, incRaw)
		}
	}

	merged = mergeMaps(merged, raw)
	return merged, nil
}

func parseRawBytes(data []byte, pathHint string) (map[string]any, error) {
	format := strings.ToLower(filepath.Ext(pathHint))
	if format == ".json" || format == ".json5" {
		var raw map[string]any
		if err := json5.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		if raw == nil {
			raw = map[string]any{}
		}
		return raw, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func extractIncludes(raw map[string]any) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	var includeVal any
	if val, ok := raw[includeKey]; ok {
		includeVal = val
		delete(raw, includeKey)
	}
	if includeVal == nil {
		return nil, nil
	}

	switch typed := includeVal.(type) {
	case string:
		return []string{typed}, nil
	case []string:
		return typed, nil
	case []any:
		paths := make([]string, 0, len(typed))
		for _, entry := range typed {
			value, ok := entry.(string)
			if !ok {
				return nil, fmt.Errorf("include entries must be strings")
			}
			paths = append(paths, value)
		}
		return paths, nil
	default:
		return nil, fmt.Errorf("include must be a string or list of strings")
	}
}

func mergeMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, value := range src {
		if valueMap, ok := value.(map[string]any); ok {
			if existing, ok := dst[key].(map[string]any); ok {
				dst[key] = mergeMaps(existing, valueMap)
				continue
			}
		}
		dst[key] = value
	}
	return dst
}

func decodeRaw(raw map[string]any, target any) error {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(false)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("failed to parse config: expected single document")
	}
	return nil
}
