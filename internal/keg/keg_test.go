package keg

import (
	"os"
	"path/filepath"
	"testing"
)

func setupKeg(t *testing.T, name, version string) (*Keg, string) {
	t.Helper()
	root := t.TempDir()
	cellar := filepath.Join(root, "Cellar")
	prefix := filepath.Join(root, "prefix")

	k := New(name, version, cellar, prefix)
	kegPath := k.Path()
	if err := os.MkdirAll(filepath.Join(kegPath, "bin"), 0755); err != nil {
		t.Fatalf("setup bin dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(kegPath, "bin", name), []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatalf("setup binary: %v", err)
	}
	return k, prefix
}

func TestLinkCreatesOptAndBinLinks(t *testing.T) {
	k, prefix := setupKeg(t, "widget", "1.0.0")

	result, err := k.Link(LinkOptions{})
	if err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("expected Link() to succeed, conflicts: %v", result.Conflicts)
	}

	optTarget, err := os.Readlink(filepath.Join(prefix, "opt", "widget"))
	if err != nil {
		t.Fatalf("expected opt symlink: %v", err)
	}
	if optTarget != k.Path() {
		t.Errorf("opt link target = %v, want %v", optTarget, k.Path())
	}

	binLink := filepath.Join(prefix, "bin", "widget")
	if _, err := os.Lstat(binLink); err != nil {
		t.Fatalf("expected bin symlink: %v", err)
	}
	if !k.IsLinked() {
		t.Error("expected IsLinked() to be true after Link()")
	}
}

func TestLinkConflictWithoutOverwrite(t *testing.T) {
	k, prefix := setupKeg(t, "widget", "1.0.0")

	binDir := filepath.Join(prefix, "bin")
	if err := os.MkdirAll(binDir, 0755); err != nil {
		t.Fatalf("mkdir bin: %v", err)
	}
	if err := os.WriteFile(filepath.Join(binDir, "widget"), []byte("other owner\n"), 0755); err != nil {
		t.Fatalf("write conflicting file: %v", err)
	}

	result, err := k.Link(LinkOptions{})
	if err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if result.Success {
		t.Error("expected Link() to report failure on conflict")
	}
	if len(result.Conflicts) != 1 || result.Conflicts[0] != "widget" {
		t.Errorf("Conflicts = %v, want [widget]", result.Conflicts)
	}

	data, err := os.ReadFile(filepath.Join(binDir, "widget"))
	if err != nil {
		t.Fatalf("conflicting file should be left untouched: %v", err)
	}
	if string(data) != "other owner\n" {
		t.Error("conflicting file content should be preserved without overwrite")
	}
}

func TestLinkOverwriteResolvesConflict(t *testing.T) {
	k, prefix := setupKeg(t, "widget", "1.0.0")

	binDir := filepath.Join(prefix, "bin")
	_ = os.MkdirAll(binDir, 0755)
	_ = os.WriteFile(filepath.Join(binDir, "widget"), []byte("other owner\n"), 0755)

	result, err := k.Link(LinkOptions{Overwrite: true})
	if err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if !result.Success {
		t.Errorf("expected success with overwrite, conflicts: %v", result.Conflicts)
	}

	target, err := os.Readlink(filepath.Join(binDir, "widget"))
	if err != nil {
		t.Fatalf("expected symlink after overwrite: %v", err)
	}
	if target != filepath.Join(k.Path(), "bin", "widget") {
		t.Errorf("link target = %v", target)
	}
}

func TestLinkDryRunMakesNoChanges(t *testing.T) {
	k, prefix := setupKeg(t, "widget", "1.0.0")

	result, err := k.Link(LinkOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Link() error = %v", err)
	}
	if len(result.Files) != 1 {
		t.Errorf("expected 1 enumerated file, got %v", result.Files)
	}
	if _, err := os.Lstat(filepath.Join(prefix, "opt", "widget")); !os.IsNotExist(err) {
		t.Error("dry run must not create the opt symlink")
	}
	if _, err := os.Lstat(filepath.Join(prefix, "bin", "widget")); !os.IsNotExist(err) {
		t.Error("dry run must not create bin symlinks")
	}
}

func TestUnlinkRemovesOwnedSymlinksOnly(t *testing.T) {
	k, prefix := setupKeg(t, "widget", "1.0.0")
	if _, err := k.Link(LinkOptions{}); err != nil {
		t.Fatalf("Link() error = %v", err)
	}

	other := New("gizmo", "2.0.0", filepath.Join(prefix, "..", "Cellar"), prefix)
	_ = os.MkdirAll(filepath.Join(prefix, "bin"), 0755)
	_ = os.Symlink("/somewhere/else/gizmo", filepath.Join(prefix, "bin", "gizmo"))
	_ = other

	result, err := k.Unlink()
	if err != nil {
		t.Fatalf("Unlink() error = %v", err)
	}
	if len(result.Files) != 1 || result.Files[0] != "widget" {
		t.Errorf("Unlink() Files = %v, want [widget]", result.Files)
	}

	if _, err := os.Lstat(filepath.Join(prefix, "bin", "widget")); !os.IsNotExist(err) {
		t.Error("expected widget symlink to be removed")
	}
	if _, err := os.Lstat(filepath.Join(prefix, "opt", "widget")); !os.IsNotExist(err) {
		t.Error("expected opt/widget symlink to be removed")
	}
	if _, err := os.Lstat(filepath.Join(prefix, "bin", "gizmo")); err != nil {
		t.Error("expected unrelated gizmo symlink to survive unlink")
	}
	if k.IsLinked() {
		t.Error("expected IsLinked() to be false after Unlink()")
	}
}

func TestLinkedVersionMissing(t *testing.T) {
	prefix := t.TempDir()
	if _, ok := LinkedVersion(prefix, "nope"); ok {
		t.Error("expected LinkedVersion() to report false for an unlinked formula")
	}
}
