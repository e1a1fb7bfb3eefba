package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Affinity binds documents whose type matches a glob pattern to a
// kernel provider.
type Affinity struct {
	DocumentType string `yaml:"documentType"`
	Provider     string `yaml:"provider"`
}

// Config is the application configuration. Everything has a usable
// zero-config default.
type Config struct {
	// Kernel selection.
	KernelAffinity []Affinity `yaml:"kernelAffinity"`

	// Languages offered when creating new code cells; the first entry
	// is the default.
	Languages []string `yaml:"languages"`

	// List view tuning.
	DefaultCellHeight int `yaml:"defaultCellHeight"`
	Overscan          int `yaml:"overscan"`

	// Logging.
	LogEnabled bool `yaml:"logEnabled"`
	LogVerbose bool `yaml:"logVerbose"`
}

func Default() *Config {
	return &Config{
		Languages:         []string{"sh", "python", "javascript"},
		DefaultCellHeight: 60,
		Overscan:          2,
	}
}

// ParseYAML parses a config document over the defaults.
func ParseYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if cfg.DefaultCellHeight <= 0 {
		cfg.DefaultCellHeight = Default().DefaultCellHeight
	}
	if cfg.Overscan < 0 {
		cfg.Overscan = Default().Overscan
	}
	return cfg, nil
}

// Load reads a config file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return ParseYAML(data)
}
