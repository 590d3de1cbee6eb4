package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/brewkeg/core/internal/config"
	"github.com/brewkeg/core/internal/formula"
	"github.com/brewkeg/core/internal/installer"
	"github.com/brewkeg/core/internal/logger"
	"github.com/brewkeg/core/internal/tap"
	"github.com/spf13/cobra"
)

// NewInstallCmd creates the install command.
func NewInstallCmd(cfg *config.Config) *cobra.Command {
	var (
		buildFromSource    bool
		forceBottle        bool
		ignoreDependencies bool
		onlyDependencies   bool
		buildBottle        bool
		keepTmp            bool
		interactive        bool
		git                bool
		cc                 string
		bottleArch         string
	)

	cmd := &cobra.Command{
		Use:   "install [OPTIONS] FORMULA...",
		Short: "Install a formula",
		Long: `Install one or more formulae, recursively satisfying their dependency
graph. Each formula is poured from a prebuilt bottle when eligible,
otherwise built from source, then linked into the shared prefix.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := installer.Options{
				BuildFromSource:    buildFromSource || cfg.BuildFromSource,
				ForceBottle:        forceBottle || cfg.ForceBottle,
				IgnoreDependencies: ignoreDependencies,
				OnlyDependencies:   onlyDependencies,
				BuildBottle:        buildBottle || cfg.BuildBottle,
				KeepTmp:            keepTmp || cfg.KeepTmp,
				Interactive:        interactive || cfg.Interactive,
				Git:                git || cfg.Git,
				CC:                 cc,
				BottleArch:         bottleArch,
				Force:              cfg.Force,
			}
			return runInstall(cfg, args, opts)
		},
	}

	cmd.Flags().BoolVarP(&buildFromSource, "build-from-source", "s", false, "Compile formula from source even if a bottle is available")
	cmd.Flags().BoolVar(&forceBottle, "force-bottle", false, "Install from a bottle if one exists, even if it would not normally be used")
	cmd.Flags().BoolVar(&ignoreDependencies, "ignore-dependencies", false, "Skip installing any dependencies")
	cmd.Flags().BoolVar(&onlyDependencies, "only-dependencies", false, "Install dependencies but not the formula itself")
	cmd.Flags().BoolVar(&buildBottle, "build-bottle", false, "Build a bottle-suitable installation")
	cmd.Flags().BoolVar(&keepTmp, "keep-tmp", false, "Retain the temporary files created during installation")
	cmd.Flags().BoolVar(&interactive, "interactive", false, "Download and patch the formula, then open a shell")
	cmd.Flags().BoolVar(&git, "git", false, "Initialize a git repository in the source tree after install")
	cmd.Flags().StringVar(&cc, "cc", "", "Attempt to compile using the specified compiler")
	cmd.Flags().StringVar(&bottleArch, "bottle-arch", "", "Optimize the bottle for the specified architecture")

	return cmd
}

func runInstall(cfg *config.Config, names []string, opts installer.Options) error {
	timer := logger.NewTimer("Total install time")
	defer timer.Stop()

	tapManager := tap.NewManager(cfg)
	locker := installer.NewLocker(filepath.Join(cfg.HomebrewCache, "locks"))
	ctx := installer.NewContext(locker)
	platform := installer.CurrentPlatform()

	for _, name := range names {
		f, err := tapManager.Resolve(name)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", name, err)
		}

		if cfg.DryRun {
			logger.Info("Would install %s %s", f.Name, f.Version)
			continue
		}

		inst := installer.New(installer.NewPrefetchResolver(tapManager), cfg, ctx, f, opts, platform, cfg.HomebrewCache, cfg.HomebrewLogs)
		result, err := inst.Install()
		if err != nil {
			return fmt.Errorf("failed to install %s: %w", name, err)
		}

		via := "source"
		if result.PouredFromBottle {
			via = "bottle"
		}
		logger.Success("Installed %s %s (from %s)", f.Name, f.Version, via)
	}

	return nil
}

func isFormulaInstalled(cfg *config.Config, name string) (bool, error) {
	f := &formula.Formula{Name: name}
	_, err := os.Stat(f.Rack(cfg.HomebrewCellar))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}
