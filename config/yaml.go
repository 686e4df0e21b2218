//go:build !tinygo

package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

// LoadConfigYAML parses a YAML configuration and fills in defaults
func LoadConfigYAML(data []byte) (*OutputConfig, error) {
	var cfg OutputConfig

	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// LoadFile reads a configuration file, choosing the format by extension
func LoadFile(path string) (*OutputConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadConfigYAML(data)
	default:
		return LoadConfig(data)
	}
}
