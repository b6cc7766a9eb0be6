// Package config loads the engine's on-disk configuration: where the
// sysroot and repository live, default pull/fetch tuning, and logging
// level. It follows the same NewDefault/Complete/Validate shape used
// throughout this codebase for config types.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/coreos/ostree-engine/internal/fetcher"
	"github.com/coreos/ostree-engine/internal/pull"
	"github.com/coreos/ostree-engine/internal/repo"
	"sigs.k8s.io/yaml"
)

const (
	// DefaultConfigFile is the path read by cmd/ostree when no --config
	// flag is given.
	DefaultConfigFile = "/etc/ostree-engine/config.yaml"
	// DefaultSysrootPath is the default sysroot location (spec §3).
	DefaultSysrootPath = "/ostree"
	// DefaultRepoPath is the default repository path, relative to nothing
	// in particular: by convention it lives under the sysroot at
	// ostree/repo, so this is joined onto Sysroot at Complete() time
	// unless explicitly overridden.
	DefaultRepoPath = "ostree/repo"
	// DefaultLogLevel is used when LogLevel is unset.
	DefaultLogLevel = "info"
	// DefaultMaxPerHost mirrors fetcher.DefaultMaxPerHost.
	DefaultMaxPerHost = fetcher.DefaultMaxPerHost
	// DefaultContentConcurrency mirrors pull.DefaultContentConcurrency.
	DefaultContentConcurrency = pull.DefaultContentConcurrency
	// DefaultPullTimeout bounds a single `admin upgrade`/`pull` invocation.
	DefaultPullTimeout = 30 * time.Minute
)

// Config is the top-level engine configuration, loaded from a YAML file
// (or defaulted when none is given) and completed/validated before use.
type Config struct {
	// SysrootPath is where boot/, ostree/, and the default repo live.
	SysrootPath string `json:"sysroot-path,omitempty"`
	// RepoPath overrides the repository location. Empty means
	// <SysrootPath>/ostree/repo.
	RepoPath string `json:"repo-path,omitempty"`
	// RepoMode is the mode new repositories are initialized with when
	// `repo init` gets no --mode flag; it has no effect on an existing
	// repository, whose mode is fixed at creation (spec §4.3).
	RepoMode string `json:"repo-mode,omitempty"`
	// Verity selects the fsverity enablement policy for newly staged
	// content of a repository created by `repo init` without a --verity
	// flag (spec §4.3's "Verity").
	Verity string `json:"verity,omitempty"`

	// MaxPerHost bounds concurrent in-flight fetches per mirror host.
	MaxPerHost int64 `json:"max-per-host,omitempty"`
	// ContentConcurrency bounds concurrent content-object fetches during
	// a pull.
	ContentConcurrency int `json:"content-concurrency,omitempty"`
	// PullTimeout bounds a single pull invocation, in Go duration syntax
	// (e.g. "30m"). Complete replaces an empty value with
	// DefaultPullTimeout; a zero duration ("0s") leaves the pull unbounded.
	PullTimeout string `json:"pull-timeout,omitempty"`

	// LogLevel is the logrus level name ("panic".."trace"); unrecognized
	// values are treated as "info" by pkg/log.
	LogLevel string `json:"log-level,omitempty"`

	// Remotes are statically configured pull sources, keyed by name; the
	// CLI's pulls look up the remote named in a "remote:ref" refspec here.
	Remotes map[string]RemoteConfig `json:"remotes,omitempty"`
}

// RemoteConfig describes one statically configured pull remote.
type RemoteConfig struct {
	URL           string   `json:"url"`
	Mirrorlist    []string `json:"mirrorlist,omitempty"`
	GPGVerify     bool     `json:"gpg-verify,omitempty"`
	TLSClientCert string   `json:"tls-client-cert,omitempty"`
	TLSClientKey  string   `json:"tls-client-key,omitempty"`
}

// NewDefault returns a Config populated with every DefaultX constant.
func NewDefault() *Config {
	return &Config{
		SysrootPath:        DefaultSysrootPath,
		RepoMode:           repo.ModeBare.String(),
		Verity:             "off",
		MaxPerHost:         DefaultMaxPerHost,
		ContentConcurrency: DefaultContentConcurrency,
		PullTimeout:        DefaultPullTimeout.String(),
		LogLevel:           DefaultLogLevel,
	}
}

// ParsedPullTimeout parses PullTimeout, returning 0 (unbounded) if unset.
func (cfg *Config) ParsedPullTimeout() (time.Duration, error) {
	if cfg.PullTimeout == "" {
		return 0, nil
	}
	return time.ParseDuration(cfg.PullTimeout)
}

// Load reads path (falling back to NewDefault's values for anything the
// file omits) and returns a completed, validated Config. An absent file at
// the default path is not an error; an absent file at an explicitly
// requested path is.
func Load(path string) (*Config, error) {
	cfg := NewDefault()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && path == DefaultConfigFile {
			return finish(cfg)
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.Complete()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Complete fills in defaults for anything the config file left at its zero
// value but that a default alone (not NewDefault's struct literal) can
// still supply, such as RepoPath deriving from SysrootPath.
func (cfg *Config) Complete() {
	if cfg.SysrootPath == "" {
		cfg.SysrootPath = DefaultSysrootPath
	}
	if cfg.RepoPath == "" {
		cfg.RepoPath = filepath.Join(cfg.SysrootPath, DefaultRepoPath)
	}
	if cfg.RepoMode == "" {
		cfg.RepoMode = repo.ModeBare.String()
	}
	if cfg.MaxPerHost == 0 {
		cfg.MaxPerHost = DefaultMaxPerHost
	}
	if cfg.ContentConcurrency == 0 {
		cfg.ContentConcurrency = DefaultContentConcurrency
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.PullTimeout == "" {
		cfg.PullTimeout = DefaultPullTimeout.String()
	}
}

// Validate checks that required fields resolve to sane values.
func (cfg *Config) Validate() error {
	if !filepath.IsAbs(cfg.SysrootPath) {
		return fmt.Errorf("sysroot-path must be absolute: %q", cfg.SysrootPath)
	}
	switch cfg.RepoMode {
	case "bare", "bare-user", "archive":
	default:
		return fmt.Errorf("repo-mode must be one of bare, bare-user, archive: %q", cfg.RepoMode)
	}
	switch cfg.Verity {
	case "off", "opportunistic", "required":
	default:
		return fmt.Errorf("verity must be one of off, opportunistic, required: %q", cfg.Verity)
	}
	if cfg.MaxPerHost <= 0 {
		return fmt.Errorf("max-per-host must be positive: %d", cfg.MaxPerHost)
	}
	if cfg.ContentConcurrency <= 0 {
		return fmt.Errorf("content-concurrency must be positive: %d", cfg.ContentConcurrency)
	}
	if _, err := cfg.ParsedPullTimeout(); err != nil {
		return fmt.Errorf("pull-timeout: %w", err)
	}
	for name, r := range cfg.Remotes {
		if r.URL == "" {
			return fmt.Errorf("remote %q: url is required", name)
		}
	}
	return nil
}

// PullFlags derives pull.Flags from the configured defaults.
func (cfg *Config) PullFlags() pull.Flags {
	return pull.Flags{ContentConcurrency: cfg.ContentConcurrency}
}
