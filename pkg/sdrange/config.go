package sdrange

import (
	"fmt"
	"os"
	"runtime"

	yaml "gopkg.in/yaml.v3"

	"github.com/715d/sdrange/internal/marker"
	"github.com/715d/sdrange/pkg/exclude"
)

// Config is the file form of the analysis settings. Command-line flags
// override individual fields.
type Config struct {
	// OutputDir receives the artifacts and their numbered copies.
	OutputDir string `yaml:"output_dir"`

	// Hierarchy is the class-hierarchy description consulted for subclasses.
	Hierarchy string `yaml:"hierarchy,omitempty"`

	// Intrinsic is the name of the checked-dispatch marker function.
	Intrinsic string `yaml:"intrinsic"`

	// MaxHops bounds the consumer chain followed from a marker to its call.
	MaxHops int `yaml:"max_hops"`

	// Jobs is the number of modules processed concurrently.
	Jobs int `yaml:"jobs"`

	// Exclude lists callees that are never recorded as static call sites.
	Exclude ExcludeConfig `yaml:"exclude"`
}

// ExcludeConfig configures the static call filter.
type ExcludeConfig struct {
	Prefixes []string `yaml:"prefixes"`
	Names    []string `yaml:"names"`
}

// DefaultConfig returns the settings used when no config file is given.
func DefaultConfig() Config {
	return Config{
		OutputDir: ".",
		Intrinsic: marker.DefaultIntrinsic,
		MaxHops:   marker.DefaultMaxHops,
		Jobs:      runtime.NumCPU(),
		Exclude: ExcludeConfig{
			Prefixes: exclude.DefaultPrefixes,
			Names:    exclude.DefaultNames,
		},
	}
}

// LoadConfig reads path on top of the defaults. Fields missing from the file
// keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decoding config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the settings for values the analysis cannot work with.
func (c Config) Validate() error {
	if c.Intrinsic == "" {
		return fmt.Errorf("intrinsic must not be empty")
	}
	if c.MaxHops < 1 {
		return fmt.Errorf("max_hops must be at least 1, got %d", c.MaxHops)
	}
	if c.Jobs < 0 {
		return fmt.Errorf("jobs must not be negative, got %d", c.Jobs)
	}
	if _, err := exclude.NewFilter(c.Exclude.Prefixes, c.Exclude.Names); err != nil {
		return err
	}
	return nil
}

// Filter builds the static call filter described by the config.
func (c Config) Filter() (*exclude.Filter, error) {
	return exclude.NewFilter(c.Exclude.Prefixes, c.Exclude.Names)
}
