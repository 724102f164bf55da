package runner

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the run configuration, usually loaded from testrig.yaml.
type Config struct {
	// Include restricts the run to cases matching any pattern. A pattern is
	// either a bare suite name or a path.Match glob over "Suite.Case".
	// Empty means everything runs.
	Include []string `yaml:"include,omitempty"`

	// Exclude removes matching cases after Include is applied.
	Exclude []string `yaml:"exclude,omitempty"`

	// Repeat runs every selected case this many times. Defaults to 1.
	Repeat int `yaml:"repeat,omitempty"`

	// Timeout bounds a single case execution (e.g. "30s"). Zero disables.
	// The bound is enforced by the runner racing the invocation against a
	// deadline; an overrunning case is abandoned, never killed.
	Timeout Duration `yaml:"timeout,omitempty"`

	// Workers is the number of suites run in parallel. Cases within one
	// suite always run sequentially so lifecycle hooks stay ordered.
	// Defaults to 1.
	Workers int `yaml:"workers,omitempty"`

	// History is a SQLite file run summaries are appended to. Empty
	// disables history.
	History string `yaml:"history,omitempty"`

	// NoColor disables ANSI colour in console output.
	NoColor bool `yaml:"no_color,omitempty"`

	// Verbose enables [rig] diagnostics on stderr.
	Verbose bool `yaml:"verbose,omitempty"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "1m30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("timeout must be a duration string: %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{Repeat: 1, Workers: 1}
}

// LoadConfig reads and parses a testrig.yaml file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses testrig.yaml content from bytes.
// The path argument is used only for error messages.
func ParseConfig(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	return &cfg, nil
}

// FindConfig searches for testrig.yaml starting from dir and walking up
// parent directories. Returns the path and nil if found, or empty string and
// nil if no config exists anywhere up the tree.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}
	for {
		for _, base := range []string{"testrig.yaml", "testrig.yml"} {
			candidate := filepath.Join(dir, base)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func (c *Config) validate(cfgPath string) error {
	if c.Repeat < 0 {
		return fmt.Errorf("%s: repeat must not be negative", cfgPath)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%s: workers must not be negative", cfgPath)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%s: timeout must not be negative", cfgPath)
	}
	for _, p := range append(append([]string{}, c.Include...), c.Exclude...) {
		if _, err := path.Match(p, "probe"); err != nil {
			return fmt.Errorf("%s: bad pattern %q: %w", cfgPath, p, err)
		}
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Repeat == 0 {
		c.Repeat = 1
	}
	if c.Workers == 0 {
		c.Workers = 1
	}
}

// repeatCount never reports less than one attempt, even for a hand-built
// zero-value Config.
func (c *Config) repeatCount() int {
	if c.Repeat < 1 {
		return 1
	}
	return c.Repeat
}

// Selected reports whether a case passes the include/exclude filters.
func (c *Config) Selected(suite, name string) bool {
	full := suite + "." + name
	if len(c.Include) > 0 && !matchAny(c.Include, suite, full) {
		return false
	}
	return !matchAny(c.Exclude, suite, full)
}

func matchAny(patterns []string, suite, full string) bool {
	for _, p := range patterns {
		if p == suite || p == full {
			return true
		}
		if ok, _ := path.Match(p, full); ok {
			return true
		}
	}
	return false
}
