package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"knlsetup/internal/hostenv"
)

// DefaultSourceRepo is the GitHub repository knl is installed from.
const DefaultSourceRepo = "knowledge-retention/knl"

// Keys shared by the config file, KNL_SETUP_* environment variables and
// command-line flags.
const (
	KeySourceRepo      = "source_repo"
	KeyDefaultScope    = "default_scope"
	KeyPythonMin       = "python_min"
	KeyProbeTimeout    = "probe_timeout"
	KeyDownloadTimeout = "download_timeout"
	KeyReleaseCacheTTL = "release_cache_ttl"
	KeyNonInteractive  = "non_interactive"
	KeyExtraSearchDirs = "extra_search_dirs"
)

// Config captures user preferences for the installer.
type Config struct {
	Version         int           `yaml:"version"`
	SourceRepo      string        `yaml:"source_repo"`
	DefaultScope    string        `yaml:"default_scope,omitempty"`
	PythonMin       string        `yaml:"python_min,omitempty"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`
	ReleaseCacheTTL time.Duration `yaml:"release_cache_ttl"`
	NonInteractive  bool          `yaml:"non_interactive"`
	ExtraSearchDirs []string      `yaml:"extra_search_dirs,omitempty"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Version:         1,
		SourceRepo:      DefaultSourceRepo,
		ProbeTimeout:    3 * time.Second,
		DownloadTimeout: 5 * time.Minute,
		ReleaseCacheTTL: time.Hour,
	}
}

// Path returns the config file location, $XDG_CONFIG_HOME/knl/setup.yaml.
func Path(env hostenv.Environment) string {
	return filepath.Join(env.XDGConfigHome(), "knl", "setup.yaml")
}

// Load reads the YAML configuration from disk if it exists, otherwise returns
// the default configuration.
func Load(path string) (Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults restores zero-valued fields the YAML blanked out.
func (c *Config) ApplyDefaults() {
	defaults := Default()

	if c.Version == 0 {
		c.Version = defaults.Version
	}
	if c.SourceRepo == "" {
		c.SourceRepo = defaults.SourceRepo
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = defaults.ProbeTimeout
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = defaults.DownloadTimeout
	}
	if c.ReleaseCacheTTL <= 0 {
		c.ReleaseCacheTTL = defaults.ReleaseCacheTTL
	}
}

// Settings flattens the configuration into key/value pairs so it can seed the
// lowest-precedence layer of the flag and environment resolver.
func (c Config) Settings() map[string]any {
	return map[string]any{
		KeySourceRepo:      c.SourceRepo,
		KeyDefaultScope:    c.DefaultScope,
		KeyPythonMin:       c.PythonMin,
		KeyProbeTimeout:    c.ProbeTimeout,
		KeyDownloadTimeout: c.DownloadTimeout,
		KeyReleaseCacheTTL: c.ReleaseCacheTTL,
		KeyNonInteractive:  c.NonInteractive,
		KeyExtraSearchDirs: c.ExtraSearchDirs,
	}
}

// Marshal returns the YAML encoding of the configuration.
func (c Config) Marshal() ([]byte, error) {
	buf, err := yaml.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return buf, nil
}
