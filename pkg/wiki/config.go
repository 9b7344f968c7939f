package wiki

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config controls which files the workspace index covers.
type Config struct {
	// Title names the workspace in hovers and log messages.
	Title string `toml:"title" yaml:"title"`

	// Globs selects the content files, relative to the workspace
	// root.
	Globs []string `toml:"globs" yaml:"globs"`

	// Exclude lists directory names skipped while watching.
	Exclude []string `toml:"exclude" yaml:"exclude"`
}

// DefaultConfig is used when the workspace has no config file.
func DefaultConfig() *Config {
	return &Config{
		Globs:   []string{"**/*.md"},
		Exclude: []string{".git", "node_modules", "output"},
	}
}

// configNames are tried in order inside the workspace root.
var configNames = []string{
	"wiki.toml",
	"wiki.yaml",
	"wiki.yml",
}

// LoadConfig finds and parses the workspace config, falling back to
// defaults when no config file exists.
func LoadConfig(rootPath string) (*Config, error) {
	for _, name := range configNames {
		path := filepath.Join(rootPath, name)
		content, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}

		cfg := DefaultConfig()
		if strings.HasSuffix(name, ".toml") {
			if err := toml.Unmarshal(content, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		} else {
			if err := yaml.Unmarshal(content, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
		if len(cfg.Globs) == 0 {
			cfg.Globs = DefaultConfig().Globs
		}
		return cfg, nil
	}

	return DefaultConfig(), nil
}
