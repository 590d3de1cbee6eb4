package cmd

import (
	"fmt"

	"github.com/brewkeg/core/internal/config"
	"github.com/brewkeg/core/internal/keg"
	"github.com/brewkeg/core/internal/logger"
	"github.com/spf13/cobra"
)

// NewLinkCmd creates the link command.
func NewLinkCmd(cfg *config.Config) *cobra.Command {
	var (
		overwrite bool
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "link [OPTIONS] FORMULA...",
		Short: "Symlink a formula's installed files into the shared prefix",
		Long: `Symlink a formula's installed files into the shared prefix. This happens
automatically after install, but is useful to re-run after a conflicting
file has been removed.

The newest installed version directory is linked. The formula's keg-only
flag is not consulted here, so a keg-only formula named on this command is
linked too.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLink(cfg, args, keg.LinkOptions{Overwrite: overwrite, DryRun: dryRun})
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing conflicting symlinks")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be linked without linking")

	return cmd
}

// NewUnlinkCmd creates the unlink command.
func NewUnlinkCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unlink FORMULA...",
		Short: "Remove a formula's symlinks from the shared prefix",
		Long: `Remove symlinks for a formula's installed files from the shared prefix.
This does not delete the installed files themselves, only the links to them.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnlink(cfg, args)
		},
	}

	return cmd
}

func runLink(cfg *config.Config, names []string, opts keg.LinkOptions) error {
	for _, name := range names {
		versions, err := installedVersionsOf(cfg, name)
		if err != nil || len(versions) == 0 {
			return fmt.Errorf("%s is not installed", name)
		}
		latest := versions[len(versions)-1]
		k := keg.New(name, latest, cfg.HomebrewCellar, cfg.HomebrewPrefix)

		result, err := k.Link(opts)
		if err != nil {
			return fmt.Errorf("failed to link %s: %w", name, err)
		}
		if !result.Success {
			if conflictErr := result.ConflictError(); conflictErr != nil {
				return conflictErr
			}
		}

		if opts.DryRun {
			logger.Info("Would link %d files for %s", len(result.Files), name)
			continue
		}
		logger.Success("Linked %d files for %s", len(result.Files), name)
	}
	return nil
}

func runUnlink(cfg *config.Config, names []string) error {
	for _, name := range names {
		versions, err := installedVersionsOf(cfg, name)
		if err != nil || len(versions) == 0 {
			return fmt.Errorf("%s is not installed", name)
		}
		linkedVersion, linked := keg.LinkedVersion(cfg.HomebrewPrefix, name)
		if !linked {
			logger.Info("%s is not linked", name)
			continue
		}

		k := keg.New(name, linkedVersion, cfg.HomebrewCellar, cfg.HomebrewPrefix)
		result, err := k.Unlink()
		if err != nil {
			return fmt.Errorf("failed to unlink %s: %w", name, err)
		}
		logger.Success("Unlinked %d files for %s", len(result.Files), name)
	}
	return nil
}
