package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

// LoadFile overlays a TOML, YAML or JSON file onto cfg. Keys missing from the
// file keep their current value.
func LoadFile(cfg *Config, path string) error {
	fileInfo, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("error accessing config file: %w", err)
	}
	if fileInfo.IsDir() {
		return fmt.Errorf("%s is a directory, not a file", path)
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	var values map[string]any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		tree, err := toml.LoadBytes(data)
		if err != nil {
			return fmt.Errorf("error parsing TOML file: %w", err)
		}
		values = tree.ToMap()
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &values); err != nil {
			return fmt.Errorf("error parsing YAML file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &values); err != nil {
			return fmt.Errorf("error parsing JSON file: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	// Every format goes through YAML so durations like "90s" decode the same way.
	normalized, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("error normalizing config file: %w", err)
	}
	if err := yaml.Unmarshal(normalized, cfg); err != nil {
		return fmt.Errorf("error applying config file %s: %w", path, err)
	}

	return nil
}
