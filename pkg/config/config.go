// Package config handles gavel.toml runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents a gavel.toml configuration.
type Config struct {
	Runtime Runtime `toml:"runtime"`
	Heap    Heap    `toml:"heap"`

	// Dir is the directory containing the gavel.toml file (set at
	// load time).
	Dir string `toml:"-"`
}

// Runtime configures class resolution and interpreter limits.
type Runtime struct {
	ClassPath     []string `toml:"classpath"`
	MaxFrameDepth int      `toml:"max-frame-depth"`
}

// Heap configures the garbage collector.
type Heap struct {
	GCThreshold int `toml:"gc-threshold"`
}

// Default returns the configuration used when no gavel.toml exists.
func Default() *Config {
	return &Config{
		Runtime: Runtime{ClassPath: []string{"."}},
	}
}

// Load parses a gavel.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "gavel.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(c.Runtime.ClassPath) == 0 {
		c.Runtime.ClassPath = []string{"."}
	}

	return &c, nil
}

// FindAndLoad walks up from startDir to find a gavel.toml file, then
// loads and returns the configuration. Returns the defaults if no
// file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "gavel.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// ClassPathDirs returns absolute paths for the configured class path
// entries.
func (c *Config) ClassPathDirs() []string {
	var paths []string
	for _, d := range c.Runtime.ClassPath {
		if filepath.IsAbs(d) || c.Dir == "" {
			paths = append(paths, d)
		} else {
			paths = append(paths, filepath.Join(c.Dir, d))
		}
	}
	return paths
}
