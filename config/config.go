// Package config loads the YAML settings shared by the rufs binaries.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/rufs-project/rufs/common"
	"github.com/rufs-project/rufs/super"
)

type DiskConfig struct {
	Path          string `yaml:"path"`
	BlockSize     uint64 `yaml:"block_size"`
	MaxInodes     uint64 `yaml:"max_inodes"`
	MaxDataBlocks uint64 `yaml:"max_data_blocks"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type MCPConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type Config struct {
	Disk DiskConfig `yaml:"disk"`
	Log  LogConfig  `yaml:"log"`
	MCP  MCPConfig  `yaml:"mcp"`
}

func Default() *Config {
	geo := super.DefaultGeometry()
	return &Config{
		Disk: DiskConfig{
			Path:          "rufs.img",
			BlockSize:     geo.BlockSize,
			MaxInodes:     geo.MaxInodes,
			MaxDataBlocks: geo.MaxDataBlocks,
		},
		Log: LogConfig{Level: "info"},
		MCP: MCPConfig{Name: "rufs", Version: "1.0.0"},
	}
}

// Load reads the config at path. A missing file is created with the
// defaults, which are returned. Keys absent from an existing file keep their
// default values.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create config directory: %w", err)
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshal default config: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", common.ErrInvalid, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) Geometry() super.Geometry {
	return super.Geometry{
		BlockSize:     cfg.Disk.BlockSize,
		MaxInodes:     cfg.Disk.MaxInodes,
		MaxDataBlocks: cfg.Disk.MaxDataBlocks,
	}
}

func (cfg *Config) Validate() error {
	if cfg.Disk.Path == "" {
		return fmt.Errorf("%w: disk.path is empty", common.ErrInvalid)
	}
	if err := cfg.Geometry().Validate(); err != nil {
		return fmt.Errorf("disk: %w", err)
	}
	return nil
}
