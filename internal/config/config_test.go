package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

var yamlConfig = `sysroot-path: /var/lib/ostree-engine
max-per-host: 16
verity: required
remotes:
  stable:
    url: https://updates.example.com/repo
    gpg-verify: true
`

func TestLoadOverridesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "/var/lib/ostree-engine", cfg.SysrootPath)
	require.Equal(t, int64(16), cfg.MaxPerHost)
	require.Equal(t, "required", cfg.Verity)
	require.Equal(t, filepath.Join(cfg.SysrootPath, DefaultRepoPath), cfg.RepoPath, "repo-path derives from sysroot-path")

	// defaults fill in what the file didn't set
	require.Equal(t, DefaultContentConcurrency, cfg.ContentConcurrency)
	require.Equal(t, DefaultLogLevel, cfg.LogLevel)

	require.Equal(t, "https://updates.example.com/repo", cfg.Remotes["stable"].URL)
	require.True(t, cfg.Remotes["stable"].GPGVerify)
}

func TestLoadMissingDefaultPathIsNotAnError(t *testing.T) {
	cfg, err := Load(DefaultConfigFile)
	require.NoError(t, err)
	require.Equal(t, DefaultSysrootPath, cfg.SysrootPath)
}

func TestLoadMissingExplicitPathIsAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.Error(t, err)
}

func TestValidateRejectsUnknownRepoMode(t *testing.T) {
	cfg := NewDefault()
	cfg.RepoMode = "weird"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsRemoteWithoutURL(t *testing.T) {
	cfg := NewDefault()
	cfg.Remotes = map[string]RemoteConfig{"bad": {}}
	cfg.Complete()
	require.Error(t, cfg.Validate())
}

func TestParsedPullTimeout(t *testing.T) {
	cfg := NewDefault()
	d, err := cfg.ParsedPullTimeout()
	require.NoError(t, err)
	require.Equal(t, DefaultPullTimeout, d)
}
