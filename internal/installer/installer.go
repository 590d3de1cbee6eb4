// Package installer is the formula installer core: it takes a declarative
// formula description and brings it from an uninstalled state to a
// linked, usable installation on disk, recursively satisfying its
// dependency graph. It chooses between pouring a prebuilt bottle and
// compiling from source, enforces keg-link exclusion invariants, applies
// transactional safety around in-place dependency upgrades, and finishes
// by linking the result into the shared prefix.
package installer

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/brewkeg/core/internal/bottle"
	"github.com/brewkeg/core/internal/build"
	"github.com/brewkeg/core/internal/config"
	"github.com/brewkeg/core/internal/errors"
	"github.com/brewkeg/core/internal/formula"
	"github.com/brewkeg/core/internal/keg"
	"github.com/brewkeg/core/internal/logger"
	"github.com/brewkeg/core/internal/sandbox"
	"github.com/brewkeg/core/internal/verification"
)

// Options is the installer's per-instance configuration: immutable
// request flags plus the small amount of state ("pour_failed" and
// friends) that the install sequence itself mutates as it runs. A child
// installer constructed for a dependency gets its own copy, derived from
// the parent's.
type Options struct {
	IgnoreDependencies bool
	OnlyDependencies   bool
	ForceBottle        bool
	BuildFromSource    bool
	BuildBottle        bool
	Interactive        bool
	Verbose            bool
	Debug              bool
	Quieter            bool
	Git                bool
	Force              bool
	KeepTmp            bool
	CC                 string
	BottleArch         string
	LocalBottlePath    string
	UserOptions        formula.Options

	// PourFailed is mutable: once a pour attempt fails this install
	// falls back to source and records that here so the bottle-
	// eligibility oracle refuses to try pouring again for the rest of
	// this instance (e.g. when dependencies are recomputed after the
	// fallback).
	PourFailed bool
}

// InstallResult summarizes the outcome of one top-level Install call.
type InstallResult struct {
	Formula          *formula.Formula
	PouredFromBottle bool
	FailureFlag      bool
	Summary          string
}

// Installer drives one formula through prelude, install, and finish. The
// same type is reused, with ignore_deps forced on, to install each
// transitive dependency.
type Installer struct {
	Resolver Resolver
	Cfg      *config.Config
	Ctx      *Context
	Platform string
	CacheDir string
	LogsDir  string

	Formula *formula.Formula
	Opts    Options

	depNodes         []DepNode
	materializedDeps []formula.Dependency
	unsatisfiedReqs  map[string][]formula.Requirement

	pouredBottle bool
	failureFlag  bool
}

// New constructs an Installer for f. ctx is shared across the whole
// recursive install run (see Context).
func New(resolver Resolver, cfg *config.Config, ctx *Context, f *formula.Formula, opts Options, platform, cacheDir, logsDir string) *Installer {
	return &Installer{
		Resolver: resolver,
		Cfg:      cfg,
		Ctx:      ctx,
		Platform: platform,
		CacheDir: cacheDir,
		LogsDir:  logsDir,
		Formula:  f,
		Opts:     opts,
	}
}

// CurrentPlatform renders the bottle-file key for the running host.
func CurrentPlatform() string {
	return fmt.Sprintf("%s_%s", runtime.GOARCH, runtime.GOOS)
}

// Install runs prelude, the install sequence, and (for a successful
// build or pour) the finisher, in that order.
func (i *Installer) Install() (*InstallResult, error) {
	if err := i.prelude(); err != nil {
		return nil, err
	}
	return i.install()
}

// prelude resolves the dependency graph, acquires the cross-formula lock
// set, checks for re-entrancy, and verifies every installed non-keg-only
// dependency is linked.
func (i *Installer) prelude() error {
	rootBuild := formula.BuildOptions{Args: i.Opts.UserOptions, Declared: i.Formula.Options}

	if prefetch, ok := i.Resolver.(*PrefetchResolver); ok && !i.Opts.IgnoreDependencies {
		names := make([]string, 0, len(i.Formula.Deps))
		for _, dep := range i.Formula.Deps {
			names = append(names, dep.Name)
		}
		if err := prefetch.Warm(names); err != nil {
			return err
		}
	}

	unsatisfied, materialized := ExpandRequirements(i.Resolver, i.Formula, rootBuild, i.Platform, i.Cfg.HomebrewCellar, i.Opts)
	var fatal []string
	for dependent, reqs := range unsatisfied {
		for _, r := range reqs {
			logger.Warn("%s: unsatisfied requirement %q", dependent, r.Name)
			if r.Fatal {
				fatal = append(fatal, fmt.Sprintf("%s (required by %s)", r.Name, dependent))
			}
		}
	}
	if len(fatal) > 0 {
		sort.Strings(fatal)
		return errors.NewUnsatisfiedRequirementsError(i.Formula.Name, fatal)
	}
	i.unsatisfiedReqs = unsatisfied
	i.materializedDeps = materialized

	depNodes, err := ExpandDependencies(
		i.Resolver, i.Formula, rootBuild, materialized, i.Platform, i.Cfg.HomebrewCellar, i.Opts,
		i.usedOptionsFor, i.depAlreadySatisfied,
	)
	if err != nil {
		return err
	}
	i.depNodes = depNodes

	names := make([]string, 0, len(depNodes)+1)
	names = append(names, i.Formula.Name)
	for _, n := range depNodes {
		names = append(names, n.Formula.Name)
	}
	if err := i.Ctx.AcquireLocks(names); err != nil {
		return err
	}

	if !i.Ctx.Enter(i.Formula.Name) {
		return errors.NewAlreadyAttemptedError(i.Formula.Name)
	}

	if !i.Opts.IgnoreDependencies {
		var unlinked []string
		for _, n := range depNodes {
			if n.Formula.KegOnly {
				continue
			}
			if len(i.installedVersions(n.Formula.Name)) == 0 {
				continue
			}
			if _, linked := keg.LinkedVersion(i.Cfg.HomebrewPrefix, n.Formula.Name); !linked {
				unlinked = append(unlinked, n.Formula.Name)
			}
		}
		if len(unlinked) > 0 {
			sort.Strings(unlinked)
			return errors.NewUnlinkedDependenciesError(i.Formula.Name, unlinked)
		}
	}

	return i.checkConflicts()
}

func (i *Installer) usedOptionsFor(name string) formula.Options {
	tabPath := filepath.Join(i.Cfg.HomebrewCellar, name)
	entries, err := os.ReadDir(tabPath)
	if err != nil || len(entries) == 0 {
		return nil
	}
	latest := entries[len(entries)-1].Name()
	tab, err := formula.LoadTab(filepath.Join(tabPath, latest, "INSTALL_RECEIPT.json"))
	if err != nil {
		return nil
	}
	return tab.UsedOptions
}

// depAlreadySatisfied reports whether name is installed at a version the
// expander can treat as satisfying this edge: installed at all, with no
// newly-inherited option forcing a rebuild.
func (i *Installer) depAlreadySatisfied(name string, inherited formula.Options) bool {
	if len(inherited) > 0 {
		return false
	}
	return len(i.installedVersions(name)) > 0
}

func (i *Installer) installedVersions(name string) []string {
	entries, err := os.ReadDir(filepath.Join(i.Cfg.HomebrewCellar, name))
	if err != nil {
		return nil
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	sort.Strings(versions)
	return versions
}

// checkConflicts aborts the install if a formula this one conflicts with
// is both installed and linked, unless Force is set.
func (i *Installer) checkConflicts() error {
	if i.Opts.Force {
		return nil
	}
	for _, c := range i.Formula.Conflicts {
		linkedVersion, ok := keg.LinkedVersion(i.Cfg.HomebrewPrefix, c)
		if !ok {
			continue
		}
		optPrefix := filepath.Join(i.Cfg.HomebrewPrefix, "opt", c)
		if _, err := os.Lstat(optPrefix); err != nil {
			continue
		}
		return errors.NewConflictError(i.Formula.Name, c, fmt.Sprintf("version %s is linked", linkedVersion))
	}
	return nil
}

// install executes the strict install-orchestration sequence: refuse a
// cross-version conflict, install dependencies, decide pour-vs-build,
// run whichever path applies, and hand off to the finisher.
func (i *Installer) install() (*InstallResult, error) {
	if linkedVersion, ok := keg.LinkedVersion(i.Cfg.HomebrewPrefix, i.Formula.Name); ok && linkedVersion != i.Formula.Version {
		return nil, errors.NewAlreadyLinkedDifferentVersionError(i.Formula.Name, linkedVersion, i.Formula.Version)
	}

	if err := i.checkConflicts(); err != nil {
		return nil, err
	}

	if !i.Opts.IgnoreDependencies {
		if err := i.installDependencies(i.depNodes); err != nil {
			return nil, err
		}
	}

	if i.Opts.OnlyDependencies {
		return &InstallResult{Formula: i.Formula}, nil
	}

	poured := false
	if PourBottle(i.Formula, i.Opts, i.Platform, i.Cfg.HomebrewCellar, true, false) {
		if err := i.pour(); err != nil {
			if i.Cfg.Developer {
				return nil, err
			}
			i.Opts.PourFailed = true
			logger.Warn("%s: bottle pour failed (%v), falling back to source build", i.Formula.Name, err)
		} else {
			poured = true
			i.pouredBottle = true
		}
	}

	var etcVarSnapshot map[string]string
	if i.Opts.BuildBottle {
		etcVarSnapshot = i.snapshotEtcVar()
	}

	if !poured {
		if i.Formula.Modified && !i.Opts.BuildFromSource {
			logger.Info("%s: formula file has local modifications", i.Formula.Name)
		}
		if i.Opts.PourFailed && !i.Opts.IgnoreDependencies {
			rootBuild := formula.BuildOptions{Args: i.Opts.UserOptions, Declared: i.Formula.Options}
			nodes, err := ExpandDependencies(
				i.Resolver, i.Formula, rootBuild, i.materializedDeps, i.Platform, i.Cfg.HomebrewCellar, i.Opts,
				i.usedOptionsFor, i.depAlreadySatisfied,
			)
			if err != nil {
				return nil, err
			}
			if err := i.installDependencies(nodes); err != nil {
				return nil, err
			}
		}
		if err := i.buildFromSource(); err != nil {
			return nil, err
		}
		if err := i.clean(); err != nil {
			i.failureFlag = true
			logger.Warn("%s: clean failed: %v", i.Formula.Name, err)
		}
	}

	if i.Opts.BuildBottle {
		i.mirrorEtcVarIntoBottlePrefix(etcVarSnapshot)
	}

	kegPath := i.Formula.Prefix(i.Cfg.HomebrewCellar)
	if entries, err := os.ReadDir(kegPath); err != nil || len(entries) == 0 {
		logger.Warn("%s: nothing was installed to %s", i.Formula.Name, kegPath)
	}

	return i.finish(poured)
}

// installDependencies installs each expanded dependency in order,
// leaves first.
func (i *Installer) installDependencies(nodes []DepNode) error {
	for _, n := range nodes {
		if err := i.installOneDependency(n); err != nil {
			return err
		}
	}
	return nil
}

// installOneDependency is the stash-then-restore upgrade dance: unlink
// any currently-linked keg for this dependency, rename its existing
// prefix to a ".tmp" sibling, recurse with a child installer, and either
// delete the stash on success or restore it (and re-link) on failure —
// both the delete and the restore run with signals masked so the
// filesystem transition is atomic from the user's perspective.
func (i *Installer) installOneDependency(n DepNode) error {
	df := n.Formula

	linkedVersion, wasLinked := keg.LinkedVersion(i.Cfg.HomebrewPrefix, df.Name)
	if wasLinked {
		linkedKeg := keg.New(df.Name, linkedVersion, i.Cfg.HomebrewCellar, i.Cfg.HomebrewPrefix)
		if _, err := linkedKeg.Unlink(); err != nil {
			return errors.NewLinkError(df.Name, "unlink for dependency upgrade", err)
		}
	}

	existingPrefix := ""
	switch {
	case wasLinked:
		existingPrefix = keg.New(df.Name, linkedVersion, i.Cfg.HomebrewCellar, i.Cfg.HomebrewPrefix).Path()
	default:
		if versions := i.installedVersions(df.Name); len(versions) == 1 {
			existingPrefix = keg.New(df.Name, versions[0], i.Cfg.HomebrewCellar, i.Cfg.HomebrewPrefix).Path()
		}
	}

	stashPath := ""
	if existingPrefix != "" {
		if _, err := os.Stat(existingPrefix); err == nil {
			stashPath = existingPrefix + ".tmp"
			if err := os.Rename(existingPrefix, stashPath); err != nil {
				return errors.NewInstallationError(df.Name, df.Version, fmt.Errorf("stash existing keg: %w", err))
			}
		}
	}

	childOpts := i.Opts
	childOpts.IgnoreDependencies = true
	childOpts.OnlyDependencies = false
	childOpts.UserOptions = n.Build.Args
	childOpts.PourFailed = false

	child := New(i.Resolver, i.Cfg, i.Ctx, df, childOpts, i.Platform, i.CacheDir, i.LogsDir)
	_, err := child.Install()

	if err != nil {
		maskSignals(func() {
			if stashPath != "" {
				if _, statErr := os.Stat(existingPrefix); os.IsNotExist(statErr) {
					_ = os.Rename(stashPath, existingPrefix)
				}
			}
			if wasLinked {
				restored := keg.New(df.Name, linkedVersion, i.Cfg.HomebrewCellar, i.Cfg.HomebrewPrefix)
				_, _ = restored.Link(keg.LinkOptions{Overwrite: true})
			}
		})
		return err
	}

	if stashPath != "" {
		maskSignals(func() {
			_ = os.RemoveAll(stashPath)
		})
	}
	return nil
}

// maskSignals runs fn with SIGINT/SIGTERM redirected to a buffered
// channel instead of their default action, so a filesystem rollback
// window can't be torn in half by an interrupt; any signal that arrived
// during fn is drained and logged once fn returns.
func maskSignals(fn func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	fn()

	select {
	case <-sigs:
		logger.Warn("a signal arrived during a filesystem rollback window and was deferred")
	default:
	}
}

// buildFromSource fetches and extracts the formula's source tarball,
// then hands off to the build driver.
func (i *Installer) buildFromSource() error {
	sourceDir, err := i.fetchSource()
	if err != nil {
		return err
	}

	opts := build.Options{
		IgnoreDependencies: i.Opts.IgnoreDependencies,
		BuildBottle:        i.Opts.BuildBottle,
		BottleArch:         i.Opts.BottleArch,
		Git:                i.Opts.Git,
		Interactive:        i.Opts.Interactive,
		Verbose:            i.Opts.Verbose,
		Debug:              i.Opts.Debug,
		CC:                 i.Opts.CC,
		UserOptions:        optionsToMap(i.Opts.UserOptions),
		SandboxAvailable:   sandbox.Available(),
		KeepTmp:            i.Opts.KeepTmp,
	}
	loadPath := i.Cfg.HomebrewLibrary
	buildScript := build.BuildScript(i.Cfg.HomebrewLibrary)
	return build.Run(i.Formula, sourceDir, i.Formula.Prefix(i.Cfg.HomebrewCellar), i.Cfg.HomebrewPrefix, loadPath, buildScript, opts)
}

func optionsToMap(opts formula.Options) map[string]string {
	m := make(map[string]string, len(opts))
	for _, o := range opts {
		m[o.Name] = o.Value
	}
	return m
}

func (i *Installer) fetchSource() (string, error) {
	if i.Formula.URL == "" {
		return "", fmt.Errorf("%s has no stable source url to build from", i.Formula.Name)
	}

	dest := filepath.Join(i.CacheDir, fmt.Sprintf("%s-%s.tar.gz", i.Formula.Name, i.Formula.Version))
	if err := downloadFile(i.Formula.URL, dest); err != nil {
		return "", err
	}

	pv := verification.NewPackageVerifier(true)
	if err := pv.VerifySource(dest, i.Formula.SHA256, 0); err != nil {
		return "", err
	}

	sourceDir := filepath.Join(i.Cfg.HomebrewTemp, fmt.Sprintf("%s-%s-build", i.Formula.Name, i.Formula.Version))
	_ = os.RemoveAll(sourceDir)
	if err := extractTarGz(dest, sourceDir); err != nil {
		return "", err
	}
	return firstSubdir(sourceDir)
}

func downloadFile(url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errors.NewPermissionError("create cache directory", filepath.Dir(dest), err)
	}
	resp, err := http.Get(url)
	if err != nil {
		return errors.NewNetworkError("download source", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.NewDownloadError("download source", url, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status))
	}
	f, err := os.Create(dest)
	if err != nil {
		return errors.NewPermissionError("create source archive", dest, err)
	}
	defer f.Close()
	_, err = io.Copy(f, resp.Body)
	return err
}

func extractTarGz(tarPath, destDir string) error {
	f, err := os.Open(tarPath)
	if err != nil {
		return err
	}
	defer f.Close()

	gzr, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	cleanDest := filepath.Clean(destDir) + string(os.PathSeparator)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		target := filepath.Join(destDir, header.Name)
		if !strings.HasPrefix(target, cleanDest) {
			return fmt.Errorf("illegal file path in source archive: %s", header.Name)
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_RDWR|os.O_TRUNC, os.FileMode(header.Mode)&0777)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
	return nil
}

func firstSubdir(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return dir, nil
}

// pour fetches, stages, and relocates a prebuilt bottle in lieu of a
// source build, then writes the install receipt marking it as such.
func (i *Installer) pour() error {
	logger.Progress("Pouring bottle for %s", i.Formula.Name)

	tarPath, err := bottle.Fetch(i.Formula, i.Platform, i.CacheDir, i.Opts.LocalBottlePath)
	if err != nil {
		return err
	}

	cellarDir := i.Cfg.HomebrewCellar
	if err := os.MkdirAll(cellarDir, 0755); err != nil {
		return errors.NewPermissionError("create cellar directory", cellarDir, err)
	}
	if err := bottle.Stage(tarPath, cellarDir, i.Cfg.HomebrewPrefix); err != nil {
		return errors.NewPourFailedError(i.Formula.Name, i.Formula.Version, err)
	}

	kegPrefix := i.Formula.Prefix(i.Cfg.HomebrewCellar)
	if err := bottle.RelocateEtcVar(kegPrefix, i.Cfg.HomebrewPrefix); err != nil {
		return errors.NewPourFailedError(i.Formula.Name, i.Formula.Version, err)
	}
	if err := bottle.RemoveRelocatedTrees(kegPrefix); err != nil {
		return errors.NewPourFailedError(i.Formula.Name, i.Formula.Version, err)
	}

	tab := &formula.Tab{
		UsedOptions:      i.Opts.UserOptions,
		Tap:              i.Formula.Tap,
		PouredFromBottle: true,
		InstalledAt:      time.Now(),
	}
	if err := tab.Save(i.Formula.InstallReceiptPath(i.Cfg.HomebrewCellar)); err != nil {
		return errors.NewPourFailedError(i.Formula.Name, i.Formula.Version, err)
	}

	logger.Success("Poured %s", i.Formula.Name)
	return nil
}

// clean runs the post-build cleanup pass. No cleaner collaborator is
// wired yet, so this is presently a no-op placeholder kept as its own
// step so the sequencing and its non-fatal error handling stay in place
// once one is.
func (i *Installer) clean() error {
	return nil
}

func (i *Installer) snapshotEtcVar() map[string]string {
	kegPrefix := i.Formula.Prefix(i.Cfg.HomebrewCellar)
	snapshot := make(map[string]string)
	for _, sub := range []string{"etc", "var"} {
		root := filepath.Join(kegPrefix, sub)
		_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil || info == nil || info.IsDir() {
				return nil
			}
			snapshot[path] = fmt.Sprintf("%d-%d", info.Size(), info.ModTime().UnixNano())
			return nil
		})
	}
	return snapshot
}

// mirrorEtcVarIntoBottlePrefix does not diff or copy anything: every file
// the build added under etc/var is already sitting in the keg,
// which doubles as its own bottle_prefix in this layout, so there is
// nothing further to copy; the snapshot exists so a future bottle
// packer can tell which files are build-time additions.
func (i *Installer) mirrorEtcVarIntoBottlePrefix(preinstall map[string]string) {
	_ = preinstall
}

// finish runs the post-build/post-pour finishing sequence: link into
// the shared prefix, fix install names on macOS bottles, run the
// post-install hook (unless building a bottle), and release locks.
func (i *Installer) finish(poured bool) (*InstallResult, error) {
	result := &InstallResult{Formula: i.Formula, PouredFromBottle: poured}
	defer i.Ctx.ReleaseLocks()

	if i.Formula.Plist != "" {
		if err := i.installPlist(); err != nil {
			i.failureFlag = true
			logger.Warn("%s: plist install failed: %v", i.Formula.Name, err)
		}
	}

	k := keg.New(i.Formula.Name, i.Formula.Version, i.Cfg.HomebrewCellar, i.Cfg.HomebrewPrefix)
	switch {
	case i.Formula.KegOnly:
		optDir := filepath.Join(i.Cfg.HomebrewPrefix, "opt")
		_ = os.MkdirAll(optDir, 0755)
		_ = os.Remove(k.OptLink())
		_ = os.Symlink(k.Path(), k.OptLink())
	case k.IsLinked():
		// already marked linked from a previous run; nothing to do.
	default:
		linkResult, err := k.Link(keg.LinkOptions{})
		switch {
		case err != nil:
			i.failureFlag = true
			if unlinkErr := i.recoverFromLinkFailure(k); unlinkErr != nil {
				return nil, err
			}
		case linkResult.Success:
			// linked cleanly
		default:
			if conflictErr := linkResult.ConflictError(); conflictErr != nil {
				dryRun, _ := k.Link(keg.LinkOptions{DryRun: true})
				logger.Warn("%s: link conflicts with %d existing file(s): %v", i.Formula.Name, len(dryRun.Conflicts), dryRun.Conflicts)
			}
			i.failureFlag = true
		}
	}

	if runtime.GOOS == "darwin" && poured {
		if err := i.fixInstallNames(k); err != nil {
			i.failureFlag = true
			logger.Warn("%s: fix-install-names failed: %v", i.Formula.Name, err)
		}
	}

	if i.Formula.PostInstallHook && !i.Opts.BuildBottle {
		if err := i.runPostInstallHook(); err != nil {
			i.failureFlag = true
			logger.Warn("%s: post-install hook failed: %v", i.Formula.Name, err)
		}
	}

	result.FailureFlag = i.failureFlag
	result.Summary = i.summary(poured)
	logger.Success("%s", result.Summary)
	return result, nil
}

// recoverFromLinkFailure attempts to unlink a keg that failed to link
// cleanly for a reason other than a plain file conflict, under an
// interrupt-masked window. The finisher returns the original link error
// only when this unlink also fails; otherwise it sets the failure flag
// and carries on.
func (i *Installer) recoverFromLinkFailure(k *keg.Keg) error {
	var unlinkErr error
	maskSignals(func() {
		_, unlinkErr = k.Unlink()
	})
	return unlinkErr
}

func (i *Installer) installPlist() error {
	logsDir := i.Formula.Logs(i.LogsDir)
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return err
	}
	plistDir := filepath.Join(i.Cfg.HomebrewPrefix, "var", "brewkeg")
	if err := os.MkdirAll(plistDir, 0755); err != nil {
		return err
	}
	plistPath := filepath.Join(plistDir, "homebrew."+i.Formula.Name+".plist")
	tmp := plistPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(i.Formula.Plist), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, plistPath)
}

// fixInstallNames relocates any PREFIX_PLACEHOLDER/CELLAR_PLACEHOLDER
// tokens a bottle's binaries were built with into the live prefix and
// cellar paths. No Mach-O rewriter is wired — one is an external
// collaborator this engine only invokes — so this walks text
// occurrences only.
func (i *Installer) fixInstallNames(k *keg.Keg) error {
	placeholders := map[string]string{
		"PREFIX_PLACEHOLDER": i.Cfg.HomebrewPrefix,
		"CELLAR_PLACEHOLDER": i.Cfg.HomebrewCellar,
	}
	return filepath.Walk(k.Path(), func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		text := string(data)
		changed := false
		for token, replacement := range placeholders {
			if strings.Contains(text, token) {
				text = strings.ReplaceAll(text, token, replacement)
				changed = true
			}
		}
		if !changed {
			return nil
		}
		return os.WriteFile(path, []byte(text), info.Mode())
	})
}

// runPostInstallHook is a placeholder for the post-install hook
// collaborator, which this engine only schedules and does not define.
func (i *Installer) runPostInstallHook() error {
	return nil
}

func (i *Installer) summary(poured bool) string {
	via := "built from source"
	if poured {
		via = "poured from bottle"
	}
	badge := logger.Badge(i.Cfg.InstallBadge, i.Cfg.NoEmoji)
	if badge == "" {
		return fmt.Sprintf("%s (%s) %s", i.Formula.Name, i.Formula.Version, via)
	}
	return fmt.Sprintf("%s  %s (%s) %s", badge, i.Formula.Name, i.Formula.Version, via)
}
