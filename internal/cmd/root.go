// Package cmd wires the brewkeg command-line surface: install, uninstall,
// link, unlink, tap, untap, and a version command, each a thin cobra
// layer over internal/installer, internal/keg, and internal/tap.
package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/brewkeg/core/internal/config"
	"github.com/brewkeg/core/internal/logger"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root brewkeg command.
func NewRootCmd(cfg *config.Config, version, gitCommit, buildDate string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "brewkeg",
		Short:   "A formula installer for a shared package prefix",
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := cfg.EnsureDirectories(); err != nil {
				logger.Error("failed to create directories: %v", err)
				os.Exit(1)
			}
		},
	}

	cmd.SetVersionTemplate(fmt.Sprintf(`brewkeg %s
git revision %s; built %s
Go: %s
Platform: %s
`, version, gitCommit, buildDate, runtime.Version(), runtime.GOOS+"/"+runtime.GOARCH))

	cmd.PersistentFlags().BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug mode")
	cmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(&cfg.Quiet, "quiet", "q", cfg.Quiet, "Suppress output")
	cmd.PersistentFlags().BoolVar(&cfg.Force, "force", cfg.Force, "Force the operation")
	cmd.PersistentFlags().BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "Show what would be done without doing it")

	cmd.AddCommand(NewInstallCmd(cfg))
	cmd.AddCommand(NewUninstallCmd(cfg))
	cmd.AddCommand(NewLinkCmd(cfg))
	cmd.AddCommand(NewUnlinkCmd(cfg))
	cmd.AddCommand(NewTapCmd(cfg))
	cmd.AddCommand(NewUntapCmd(cfg))
	cmd.AddCommand(NewVersionCmd(cfg, version, gitCommit, buildDate))

	return cmd
}

// Execute builds and runs the root command using process configuration.
func Execute(version, gitCommit, buildDate string) error {
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	logger.Init(cfg.Debug, cfg.Verbose, cfg.Quiet)

	return NewRootCmd(cfg, version, gitCommit, buildDate).Execute()
}
