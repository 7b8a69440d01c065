package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"knlsetup/internal/config"
	"knlsetup/internal/hostenv"
	"knlsetup/internal/paths"
	"knlsetup/internal/provision"
	"knlsetup/internal/pyenv"
)

// EnvPrefix namespaces the environment overrides, e.g. KNL_SETUP_SOURCE_REPO.
const EnvPrefix = "KNL_SETUP"

// keyGitHubAPI has no config file entry; it exists for mirrors and tests.
const keyGitHubAPI = "github_api"

// flagKeys maps command-line flags onto setting keys.
var flagKeys = map[string]string{
	"source-repo":      config.KeySourceRepo,
	"min-python":       config.KeyPythonMin,
	"non-interactive":  config.KeyNonInteractive,
	"probe-timeout":    config.KeyProbeTimeout,
	"download-timeout": config.KeyDownloadTimeout,
	"search-dir":       config.KeyExtraSearchDirs,
}

// settings is the merged view: flag > KNL_SETUP_* env > config file > default.
type settings struct {
	v    *viper.Viper
	path string
}

func configPath(env hostenv.Environment) string {
	if configFile != "" {
		return env.ExpandHome(configFile)
	}
	return config.Path(env)
}

func loadSettings(flags *pflag.FlagSet, env hostenv.Environment) (*settings, error) {
	path := configPath(env)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	for key, value := range cfg.Settings() {
		v.SetDefault(key, value)
	}
	v.SetDefault(keyGitHubAPI, provision.DefaultGitHubAPI)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}
	return &settings{v: v, path: path}, nil
}

func (s *settings) sourceRepo() string {
	if repo := strings.TrimSpace(s.v.GetString(config.KeySourceRepo)); repo != "" {
		return repo
	}
	return config.DefaultSourceRepo
}

func (s *settings) defaultScope() string { return s.v.GetString(config.KeyDefaultScope) }
func (s *settings) pythonMin() string { return strings.TrimSpace(s.v.GetString(config.KeyPythonMin)) }
func (s *settings) nonInteractive() bool { return s.v.GetBool(config.KeyNonInteractive) }
func (s *settings) githubAPI() string { return s.v.GetString(keyGitHubAPI) }
func (s *settings) extraSearchDirs() []string { return s.v.GetStringSlice(config.KeyExtraSearchDirs) }
func (s *settings) releaseCacheTTL() time.Duration { return s.v.GetDuration(config.KeyReleaseCacheTTL) }

func (s *settings) probeTimeout() time.Duration {
	if d := s.v.GetDuration(config.KeyProbeTimeout); d > 0 {
		return d
	}
	return pyenv.DefaultProbeTimeout
}

func (s *settings) downloadTimeout() time.Duration {
	if d := s.v.GetDuration(config.KeyDownloadTimeout); d > 0 {
		return d
	}
	return provision.DefaultDownloadTimeout
}

// effective rebuilds a Config from the merged settings for display.
func (s *settings) effective() config.Config {
	cfg := config.Default()
	cfg.SourceRepo = s.sourceRepo()
	cfg.DefaultScope = s.defaultScope()
	cfg.PythonMin = s.pythonMin()
	cfg.ProbeTimeout = s.probeTimeout()
	cfg.DownloadTimeout = s.downloadTimeout()
	cfg.ReleaseCacheTTL = s.releaseCacheTTL()
	cfg.NonInteractive = s.nonInteractive()
	cfg.ExtraSearchDirs = s.extraSearchDirs()
	cfg.ApplyDefaults()
	return cfg
}

// validate rejects settings the installer cannot run with.
func (s *settings) validate(env hostenv.Environment) error {
	if errs := config.Errors(s.effective().Validate(env)); len(errs) > 0 {
		return fmt.Errorf("invalid settings (%s): %s", s.path, errs[0].Message)
	}
	return nil
}

func (s *settings) locator(env hostenv.Environment) *pyenv.Locator {
	return &pyenv.Locator{
		Runner:    processRunner,
		Env:       env,
		Timeout:   s.probeTimeout(),
		ExtraDirs: s.extraSearchDirs(),
	}
}

func userAgent(version string) string {
	return "knl-setup/" + version
}

// releaseSource reads GitHub releases through the on-disk cache of the
// install root.
func (s *settings) releaseSource(ip paths.InstallPaths, version string) provision.ReleaseSource {
	gh := provision.NewGitHubReleases(userAgent(version))
	gh.BaseURL = s.githubAPI()
	return &provision.CachedReleases{Source: gh, Path: ip.ReleaseCache, TTL: s.releaseCacheTTL()}
}
