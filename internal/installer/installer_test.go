package installer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/brewkeg/core/internal/config"
	"github.com/brewkeg/core/internal/formula"
)

type stubResolver struct {
	formulae map[string]*formula.Formula
}

func (s *stubResolver) Resolve(name string) (*formula.Formula, error) {
	f, ok := s.formulae[name]
	if !ok {
		return nil, &resolveError{name}
	}
	return f, nil
}

type resolveError struct{ name string }

func (e *resolveError) Error() string { return "formula not found: " + e.name }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	return &config.Config{
		HomebrewPrefix:     root,
		HomebrewRepository: root,
		HomebrewCellar:     filepath.Join(root, "Cellar"),
		HomebrewCache:      filepath.Join(root, "cache"),
		HomebrewLogs:       filepath.Join(root, "logs"),
		HomebrewTemp:       filepath.Join(root, "tmp"),
	}
}

func newTestContext(t *testing.T) *Context {
	t.Helper()
	return NewContext(NewLocker(t.TempDir()))
}

func TestCurrentPlatform(t *testing.T) {
	platform := CurrentPlatform()
	if platform == "" {
		t.Fatal("CurrentPlatform() returned empty string")
	}
}

func TestContextEnterIsMonotonic(t *testing.T) {
	ctx := newTestContext(t)

	if !ctx.Enter("widget") {
		t.Fatal("first Enter(widget) should succeed")
	}
	if ctx.Enter("widget") {
		t.Fatal("second Enter(widget) should fail: formula already attempted")
	}
	if !ctx.Attempted("widget") {
		t.Error("Attempted(widget) should be true after Enter")
	}
	if ctx.Attempted("gadget") {
		t.Error("Attempted(gadget) should be false: never entered")
	}
}

func TestContextAcquireLocksIsNoOpForNestedInstaller(t *testing.T) {
	ctx := newTestContext(t)

	if err := ctx.AcquireLocks([]string{"widget", "gadget"}); err != nil {
		t.Fatalf("AcquireLocks() error = %v", err)
	}
	if len(ctx.locked) != 2 {
		t.Fatalf("expected 2 locks held, got %d", len(ctx.locked))
	}

	// A nested installer call with a different name set must be a no-op:
	// the parent installer already owns the lock list.
	if err := ctx.AcquireLocks([]string{"unrelated"}); err != nil {
		t.Fatalf("nested AcquireLocks() error = %v", err)
	}
	if len(ctx.locked) != 2 {
		t.Fatal("nested AcquireLocks should not alter the held lock set")
	}

	ctx.ReleaseLocks()
	if ctx.ownsLocks {
		t.Error("ReleaseLocks should clear ownsLocks")
	}
}

func TestContextAcquireLocksRollsBackOnPartialFailure(t *testing.T) {
	dir := t.TempDir()
	locker := NewLocker(dir)

	// Pre-lock "gadget" with a second, independent locker to simulate
	// another process holding it.
	blocker := NewLocker(dir)
	if err := blocker.Lock("gadget"); err != nil {
		t.Fatalf("blocker.Lock() error = %v", err)
	}
	defer blocker.Unlock("gadget")

	ctx := NewContext(locker)
	err := ctx.AcquireLocks([]string{"gadget", "widget"})
	if err == nil {
		t.Fatal("expected AcquireLocks to fail when gadget is already locked")
	}
	if len(ctx.locked) != 0 {
		t.Error("AcquireLocks should roll back any partially-acquired locks on failure")
	}
}

func TestPourBottlePositiveBypass(t *testing.T) {
	f := &formula.Formula{
		Name:    "widget",
		Version: "1.0.0",
		Bottle: &formula.Bottle{
			Stable: &formula.BottleSpec{
				Files: map[string]formula.BottleFile{
					"x86_64_linux": {SHA256: "abc", Cellar: "any"},
				},
			},
		},
	}

	if !PourBottle(f, Options{}, "x86_64_linux", "/opt/brewkeg/Cellar", false, false) {
		t.Fatal("expected a bottle to be eligible with no negative gates")
	}

	if !PourBottle(f, Options{PourFailed: true}, "x86_64_linux", "/opt/brewkeg/Cellar", false, true) {
		t.Error("externalClaim must bypass every negative gate, including pour_failed")
	}
}

func TestPourBottleNegativeGates(t *testing.T) {
	bottled := &formula.Formula{
		Name:    "widget",
		Version: "1.0.0",
		Bottle: &formula.Bottle{
			Stable: &formula.BottleSpec{
				Files: map[string]formula.BottleFile{
					"x86_64_linux": {SHA256: "abc", Cellar: "any"},
				},
			},
		},
	}

	cases := []struct {
		name string
		opts Options
		f    *formula.Formula
	}{
		{"pour already failed this instance", Options{PourFailed: true}, bottled},
		{"build-from-source requested", Options{BuildFromSource: true}, bottled},
		{"building a bottle", Options{BuildBottle: true}, bottled},
		{"interactive install", Options{Interactive: true}, bottled},
		{"user-supplied options force a rebuild", Options{UserOptions: formula.Options{{Name: "with-ssl"}}}, bottled},
		{"no bottle for this platform", Options{}, &formula.Formula{Name: "gadget", Version: "1.0.0"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if PourBottle(tc.f, tc.opts, "x86_64_linux", "/opt/brewkeg/Cellar", false, false) {
				t.Errorf("expected pour to be refused: %s", tc.name)
			}
		})
	}
}

func TestPourBottleModifiedFormulaRequiresLocalBottlePath(t *testing.T) {
	f := &formula.Formula{
		Name:     "widget",
		Version:  "1.0.0",
		Modified: true,
		Bottle: &formula.Bottle{
			Stable: &formula.BottleSpec{
				Files: map[string]formula.BottleFile{
					"x86_64_linux": {SHA256: "abc", Cellar: "any"},
				},
			},
		},
	}

	if PourBottle(f, Options{}, "x86_64_linux", "/opt/brewkeg/Cellar", false, false) {
		t.Fatal("a locally-modified formula with no local bottle path must not pour")
	}
	if !PourBottle(f, Options{LocalBottlePath: "/tmp/widget.bottle.tar.gz"}, "x86_64_linux", "/opt/brewkeg/Cellar", false, false) {
		t.Fatal("a locally-modified formula with an explicit local bottle path may still pour")
	}
}

func TestPourBottleCellarIncompatible(t *testing.T) {
	f := &formula.Formula{
		Name:    "widget",
		Version: "1.0.0",
		Bottle: &formula.Bottle{
			Stable: &formula.BottleSpec{
				Files: map[string]formula.BottleFile{
					"x86_64_linux": {SHA256: "abc", Cellar: "/usr/local/Cellar"},
				},
			},
		},
	}

	if PourBottle(f, Options{}, "x86_64_linux", "/opt/brewkeg/Cellar", false, false) {
		t.Fatal("a bottle baked for a different, non-relocatable cellar must not pour")
	}
}

func TestExpandDependenciesOrdersLeavesFirst(t *testing.T) {
	leaf := &formula.Formula{Name: "leaf", Version: "1.0.0"}
	mid := &formula.Formula{Name: "mid", Version: "1.0.0", Deps: []formula.Dependency{{Name: "leaf", Tags: []formula.DependencyTag{formula.TagRun}}}}
	root := &formula.Formula{Name: "root", Version: "1.0.0", Deps: []formula.Dependency{{Name: "mid", Tags: []formula.DependencyTag{formula.TagRun}}}}

	resolver := &stubResolver{formulae: map[string]*formula.Formula{
		"leaf": leaf,
		"mid":  mid,
	}}

	nodes, err := ExpandDependencies(resolver, root, formula.BuildOptions{}, nil, "x86_64_linux", "/opt/brewkeg/Cellar", Options{},
		func(string) formula.Options { return nil },
		func(string, formula.Options) bool { return false },
	)
	if err != nil {
		t.Fatalf("ExpandDependencies() error = %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("expected 2 dependency nodes, got %d", len(nodes))
	}
	if nodes[0].Formula.Name != "leaf" || nodes[1].Formula.Name != "mid" {
		t.Errorf("expected [leaf mid] order, got [%s %s]", nodes[0].Formula.Name, nodes[1].Formula.Name)
	}
}

func TestExpandDependenciesPrunesOptionalWithout(t *testing.T) {
	optional := &formula.Formula{Name: "optional-dep", Version: "1.0.0"}
	root := &formula.Formula{
		Name:    "root",
		Version: "1.0.0",
		Deps: []formula.Dependency{
			{Name: "optional-dep", Tags: []formula.DependencyTag{formula.TagOptional}},
		},
	}
	resolver := &stubResolver{formulae: map[string]*formula.Formula{"optional-dep": optional}}

	nodes, err := ExpandDependencies(resolver, root, formula.BuildOptions{}, nil, "x86_64_linux", "/opt/brewkeg/Cellar", Options{},
		func(string) formula.Options { return nil },
		func(string, formula.Options) bool { return false },
	)
	if err != nil {
		t.Fatalf("ExpandDependencies() error = %v", err)
	}
	if len(nodes) != 0 {
		t.Fatalf("expected optional dependency to be pruned by default, got %d nodes", len(nodes))
	}
}

func TestExpandDependenciesSkipsAlreadySatisfied(t *testing.T) {
	dep := &formula.Formula{Name: "dep", Version: "1.0.0"}
	root := &formula.Formula{
		Name:    "root",
		Version: "1.0.0",
		Deps:    []formula.Dependency{{Name: "dep", Tags: []formula.DependencyTag{formula.TagRun}}},
	}
	resolver := &stubResolver{formulae: map[string]*formula.Formula{"dep": dep}}

	nodes, err := ExpandDependencies(resolver, root, formula.BuildOptions{}, nil, "x86_64_linux", "/opt/brewkeg/Cellar", Options{},
		func(string) formula.Options { return nil },
		func(name string, _ formula.Options) bool { return name == "dep" },
	)
	if err != nil {
		t.Fatalf("ExpandDependencies() error = %v", err)
	}
	if len(nodes) != 0 {
		t.Fatalf("expected an already-satisfied dependency to be skipped, got %d nodes", len(nodes))
	}
}

func TestInstallerPreludeFailsOnReentrantAttempt(t *testing.T) {
	cfg := testConfig(t)
	ctx := newTestContext(t)
	f := &formula.Formula{Name: "widget", Version: "1.0.0"}
	resolver := &stubResolver{formulae: map[string]*formula.Formula{"widget": f}}

	first := New(resolver, cfg, ctx, f, Options{IgnoreDependencies: true}, "x86_64_linux", cfg.HomebrewCache, cfg.HomebrewLogs)
	if err := first.prelude(); err != nil {
		t.Fatalf("first prelude() error = %v", err)
	}

	second := New(resolver, cfg, ctx, f, Options{IgnoreDependencies: true}, "x86_64_linux", cfg.HomebrewCache, cfg.HomebrewLogs)
	if err := second.prelude(); err == nil {
		t.Fatal("expected the second prelude() for the same formula to fail: already attempted")
	}
}

func TestInstallerCheckConflictsRefusesLinkedConflict(t *testing.T) {
	cfg := testConfig(t)
	ctx := newTestContext(t)

	conflicting := &formula.Formula{Name: "old-widget", Version: "2.0.0"}
	f := &formula.Formula{Name: "widget", Version: "1.0.0", Conflicts: []string{"old-widget"}}

	// Fabricate a linked keg for "old-widget" directly on disk.
	kegDir := filepath.Join(cfg.HomebrewCellar, "old-widget", "2.0.0", "bin")
	if err := os.MkdirAll(kegDir, 0755); err != nil {
		t.Fatalf("setup MkdirAll() error = %v", err)
	}
	optDir := filepath.Join(cfg.HomebrewPrefix, "opt")
	if err := os.MkdirAll(optDir, 0755); err != nil {
		t.Fatalf("setup MkdirAll() error = %v", err)
	}
	if err := os.Symlink(filepath.Join(cfg.HomebrewCellar, "old-widget", "2.0.0"), filepath.Join(optDir, "old-widget")); err != nil {
		t.Fatalf("setup Symlink() error = %v", err)
	}
	linkedDir := filepath.Join(cfg.HomebrewPrefix, "bin")
	if err := os.MkdirAll(linkedDir, 0755); err != nil {
		t.Fatalf("setup MkdirAll() error = %v", err)
	}

	resolver := &stubResolver{formulae: map[string]*formula.Formula{"widget": f, "old-widget": conflicting}}
	inst := New(resolver, cfg, ctx, f, Options{}, "x86_64_linux", cfg.HomebrewCache, cfg.HomebrewLogs)

	// The opt symlink doubles as old-widget's linked_keg marker, so the
	// conflict is linked and the check must refuse it.
	if err := inst.checkConflicts(); err == nil {
		t.Fatal("checkConflicts() with a linked conflicting formula should error, got nil")
	}
}

func TestInstallerCheckConflictsSkippedWhenForced(t *testing.T) {
	cfg := testConfig(t)
	ctx := newTestContext(t)
	f := &formula.Formula{Name: "widget", Version: "1.0.0", Conflicts: []string{"anything"}}
	resolver := &stubResolver{formulae: map[string]*formula.Formula{"widget": f}}

	inst := New(resolver, cfg, ctx, f, Options{Force: true}, "x86_64_linux", cfg.HomebrewCache, cfg.HomebrewLogs)
	if err := inst.checkConflicts(); err != nil {
		t.Fatalf("checkConflicts() with Force should never error, got %v", err)
	}
}

func TestOptionsToMap(t *testing.T) {
	opts := formula.Options{{Name: "with-ssl", Value: "true"}, {Name: "without-docs"}}
	m := optionsToMap(opts)
	if m["with-ssl"] != "true" {
		t.Errorf("expected with-ssl=true, got %q", m["with-ssl"])
	}
	if _, ok := m["without-docs"]; !ok {
		t.Error("expected without-docs to be present")
	}
}

func TestInstallerFinishLinksKegOnlyIntoOptOnly(t *testing.T) {
	cfg := testConfig(t)
	ctx := newTestContext(t)
	f := &formula.Formula{Name: "widget", Version: "1.0.0", KegOnly: true}
	resolver := &stubResolver{formulae: map[string]*formula.Formula{"widget": f}}

	kegDir := filepath.Join(cfg.HomebrewCellar, "widget", "1.0.0", "bin")
	if err := os.MkdirAll(kegDir, 0755); err != nil {
		t.Fatalf("setup MkdirAll() error = %v", err)
	}

	inst := New(resolver, cfg, ctx, f, Options{}, "x86_64_linux", cfg.HomebrewCache, cfg.HomebrewLogs)
	result, err := inst.finish(false)
	if err != nil {
		t.Fatalf("finish() error = %v", err)
	}
	if result.FailureFlag {
		t.Error("a clean keg-only finish should not raise the failure flag")
	}

	optLink := filepath.Join(cfg.HomebrewPrefix, "opt", "widget")
	if _, err := os.Lstat(optLink); err != nil {
		t.Errorf("expected an opt-prefix symlink for a keg-only formula, got %v", err)
	}
	linkedBin := filepath.Join(cfg.HomebrewPrefix, "bin")
	if _, err := os.Stat(linkedBin); err == nil {
		t.Error("a keg-only formula must not be linked into the shared prefix")
	}
}

func TestInstallerFinishLinksNormalFormula(t *testing.T) {
	cfg := testConfig(t)
	ctx := newTestContext(t)
	f := &formula.Formula{Name: "widget", Version: "1.0.0"}
	resolver := &stubResolver{formulae: map[string]*formula.Formula{"widget": f}}

	kegDir := filepath.Join(cfg.HomebrewCellar, "widget", "1.0.0", "bin")
	if err := os.MkdirAll(kegDir, 0755); err != nil {
		t.Fatalf("setup MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(kegDir, "widget"), []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatalf("setup WriteFile() error = %v", err)
	}

	inst := New(resolver, cfg, ctx, f, Options{}, "x86_64_linux", cfg.HomebrewCache, cfg.HomebrewLogs)
	result, err := inst.finish(true)
	if err != nil {
		t.Fatalf("finish() error = %v", err)
	}
	if !result.PouredFromBottle {
		t.Error("expected PouredFromBottle to reflect the poured argument")
	}

	linkedBin := filepath.Join(cfg.HomebrewPrefix, "bin", "widget")
	if _, err := os.Lstat(linkedBin); err != nil {
		t.Errorf("expected widget to be linked into the shared prefix, got %v", err)
	}
}

func TestMaskSignalsRunsFn(t *testing.T) {
	ran := false
	maskSignals(func() {
		ran = true
	})
	if !ran {
		t.Error("maskSignals must run the supplied function")
	}
}
