package main

import (
	"fmt"
	"os"

	cfgpkg "github.com/coreos/ostree-engine/internal/config"
	"github.com/coreos/ostree-engine/internal/repo"
	"github.com/coreos/ostree-engine/internal/sysroot"
	"github.com/coreos/ostree-engine/pkg/executer"
	"github.com/coreos/ostree-engine/pkg/log"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := NewOstreeCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions carries the global flags every admin subcommand needs to open
// a config, repository, and sysroot.
type rootOptions struct {
	configFile string
	sysroot    string
}

func NewOstreeCommand() *cobra.Command {
	o := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "ostree",
		Short: "ostree manages a content-addressed OS tree repository and its deployments",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(0)
		},
	}
	cmd.PersistentFlags().StringVar(&o.configFile, "config", cfgpkg.DefaultConfigFile, "path to the engine's configuration file")
	cmd.PersistentFlags().StringVar(&o.sysroot, "sysroot", "", "override the configured sysroot path")

	admin := &cobra.Command{
		Use:   "admin",
		Short: "manage deployments in a sysroot",
	}
	admin.AddCommand(
		newStatusCommand(o),
		newDeployCommand(o),
		newUpgradeCommand(o),
		newSwitchCommand(o),
		newUndeployCommand(o),
		newPinCommand(o),
		newCleanupCommand(o),
		newUnlockCommand(o),
		newKargsCommand(o),
		newPrepareSoftRebootCommand(o),
	)
	cmd.AddCommand(admin)
	cmd.AddCommand(newRepoCommand(o))
	return cmd
}

// loadConfig reads o.configFile and applies any --sysroot override.
func (o *rootOptions) loadConfig() (*cfgpkg.Config, error) {
	cfg, err := cfgpkg.Load(o.configFile)
	if err != nil {
		return nil, err
	}
	if o.sysroot != "" {
		cfg.SysrootPath = o.sysroot
		cfg.RepoPath = ""
		cfg.Complete()
	}
	return cfg, nil
}

// engineContext bundles everything a CLI subcommand needs against an
// already-initialized repository and sysroot.
type engineContext struct {
	cfg  *cfgpkg.Config
	log  *log.PrefixLogger
	repo *repo.Repository
	sys  *sysroot.Sysroot
}

// openEngine loads the config and opens the existing repository/sysroot at
// its configured paths. `repo init` does not use it: it loads the config
// and creates the repository itself.
func (o *rootOptions) openEngine() (*engineContext, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := log.NewPrefixLogger("ostree")
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	r, err := repo.Open(cfg.RepoPath)
	if err != nil {
		return nil, fmt.Errorf("opening repository %s: %w", cfg.RepoPath, err)
	}
	exec := executer.NewCommonExecuter()
	s, err := sysroot.Open(cfg.SysrootPath, r, exec)
	if err != nil {
		return nil, fmt.Errorf("opening sysroot %s: %w", cfg.SysrootPath, err)
	}
	return &engineContext{cfg: cfg, log: logger, repo: r, sys: s}, nil
}
