package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/brewkeg/core/internal/config"
	"github.com/brewkeg/core/internal/formula"
	"github.com/brewkeg/core/internal/keg"
	"github.com/brewkeg/core/internal/logger"
	"github.com/brewkeg/core/internal/tap"
	"github.com/spf13/cobra"
)

// NewUninstallCmd creates the uninstall command.
func NewUninstallCmd(cfg *config.Config) *cobra.Command {
	var ignoreDeps bool

	cmd := &cobra.Command{
		Use:     "uninstall [OPTIONS] FORMULA...",
		Aliases: []string{"remove", "rm"},
		Short:   "Uninstall a formula",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUninstall(cfg, args, ignoreDeps)
		},
	}

	cmd.Flags().BoolVar(&ignoreDeps, "ignore-dependencies", false, "Don't fail if other installed formulae depend on this one")

	return cmd
}

func runUninstall(cfg *config.Config, names []string, ignoreDeps bool) error {
	for _, name := range names {
		installed, err := isFormulaInstalled(cfg, name)
		if err != nil {
			return fmt.Errorf("failed to check if %s is installed: %w", name, err)
		}
		if !installed {
			if cfg.Force {
				logger.Warn("%s is not installed", name)
				continue
			}
			return fmt.Errorf("%s is not installed", name)
		}

		if !ignoreDeps {
			dependents, err := findDependents(cfg, name)
			if err != nil {
				return fmt.Errorf("failed to find dependents of %s: %w", name, err)
			}
			if len(dependents) > 0 {
				return fmt.Errorf("cannot uninstall %s: required by %s", name, strings.Join(dependents, ", "))
			}
		}

		versions, err := installedVersionsOf(cfg, name)
		if err != nil {
			return fmt.Errorf("failed to list installed versions of %s: %w", name, err)
		}

		for _, version := range versions {
			k := keg.New(name, version, cfg.HomebrewCellar, cfg.HomebrewPrefix)
			if k.IsLinked() {
				if _, err := k.Unlink(); err != nil {
					logger.Warn("failed to unlink %s %s: %v", name, version, err)
				}
			}
			if err := os.RemoveAll(k.Path()); err != nil {
				return fmt.Errorf("failed to remove %s %s: %w", name, version, err)
			}
		}

		rack := (&formula.Formula{Name: name}).Rack(cfg.HomebrewCellar)
		if entries, err := os.ReadDir(rack); err == nil && len(entries) == 0 {
			_ = os.Remove(rack)
		}

		logger.Success("Uninstalled %s", name)
	}

	return nil
}

func installedVersionsOf(cfg *config.Config, name string) ([]string, error) {
	rack := (&formula.Formula{Name: name}).Rack(cfg.HomebrewCellar)
	entries, err := os.ReadDir(rack)
	if err != nil {
		return nil, err
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	return versions, nil
}

// findDependents scans every other installed formula for a declared
// dependency edge on name, resolving each through the tap manager.
func findDependents(cfg *config.Config, name string) ([]string, error) {
	entries, err := os.ReadDir(cfg.HomebrewCellar)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	tapManager := tap.NewManager(cfg)
	var dependents []string
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == name {
			continue
		}
		versions, err := installedVersionsOf(cfg, entry.Name())
		if err != nil || len(versions) == 0 {
			continue
		}
		f, err := tapManager.Resolve(entry.Name())
		if err != nil {
			continue
		}
		if _, ok := f.GetDependency(name); ok {
			dependents = append(dependents, entry.Name())
		}
	}
	return dependents, nil
}
