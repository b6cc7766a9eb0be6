package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/ostree-engine/internal/fetcher"
	"github.com/coreos/ostree-engine/internal/pull"
	"github.com/coreos/ostree-engine/internal/repo"
	"github.com/spf13/cobra"
)

func newRepoCommand(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "manage the object repository",
	}
	cmd.AddCommand(newRepoInitCommand(o), newRepoPullCommand(o))
	return cmd
}

func newRepoInitCommand(o *rootOptions) *cobra.Command {
	var mode, verity string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "create a new repository at the configured path",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			if mode == "" {
				mode = cfg.RepoMode
			}
			if verity == "" {
				verity = cfg.Verity
			}
			m, err := parseRepoMode(mode)
			if err != nil {
				return err
			}
			v, err := parseVerityMode(verity)
			if err != nil {
				return err
			}
			if _, err := repo.Init(cfg.RepoPath, m, v); err != nil {
				return fmt.Errorf("initializing repository %s: %w", cfg.RepoPath, err)
			}
			fmt.Printf("Initialized %s repository at %s\n", m, cfg.RepoPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "repository mode: bare, bare-user, or archive (default: the config's repo-mode)")
	cmd.Flags().StringVar(&verity, "verity", "", "fsverity policy: off, opportunistic, or required (default: the config's verity)")
	return cmd
}

func newRepoPullCommand(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pull REMOTE:REF",
		Short: "fetch REF from a configured remote without deploying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := o.openEngine()
			if err != nil {
				return err
			}
			return runPullRef(cmd.Context(), eng, args[0])
		},
	}
	return cmd
}

// runPullRef pulls the "remote:ref" named by refspec using the remote's
// statically configured mirrorlist.
func runPullRef(ctx context.Context, eng *engineContext, refspec string) error {
	remoteName, branch, ok := strings.Cut(refspec, ":")
	if !ok {
		return fmt.Errorf("refspec %q must be of the form remote:ref to pull", refspec)
	}
	rc, ok := eng.cfg.Remotes[remoteName]
	if !ok {
		return fmt.Errorf("no remote named %q configured", remoteName)
	}

	f := fetcher.New(fetcher.WithMaxPerHost(eng.cfg.MaxPerHost))
	engine := pull.New(eng.repo, f)

	mirrors := rc.Mirrorlist
	if len(mirrors) == 0 {
		mirrors = []string{rc.URL}
	}
	remote := pull.Remote{Name: remoteName, Mirrors: mirrors}

	if timeout, err := eng.cfg.ParsedPullTimeout(); err == nil && timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	report, err := engine.Pull(ctx, remote, []string{branch}, eng.cfg.PullFlags())
	if err != nil {
		return fmt.Errorf("pulling %s: %w", refspec, err)
	}
	fmt.Printf("Pulled %s: %d metadata, %d content objects, %s in %s\n",
		refspec, report.MetadataFetched, report.ContentFetched, fetcher.FormatContentLength(report.TotalBytes), report.Elapsed)
	return nil
}

func parseRepoMode(s string) (repo.Mode, error) {
	switch s {
	case "bare":
		return repo.ModeBare, nil
	case "bare-user":
		return repo.ModeBareUser, nil
	case "archive", "archive-z2":
		return repo.ModeArchive, nil
	default:
		return 0, fmt.Errorf("unknown repo mode %q", s)
	}
}

func parseVerityMode(s string) (repo.VerityMode, error) {
	switch s {
	case "off":
		return repo.VerityOff, nil
	case "opportunistic":
		return repo.VerityOpportunistic, nil
	case "required":
		return repo.VerityRequired, nil
	default:
		return 0, fmt.Errorf("unknown verity mode %q", s)
	}
}
