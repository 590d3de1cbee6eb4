package bottle

import (
	"archive/tar"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
)

func buildGzipTar(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.tar.gz")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	defer f.Close()

	gzw := gzip.NewWriter(f)
	tw := tar.NewWriter(gzw)

	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header: %v", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("write content: %v", err)
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := gzw.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return path
}

func TestStageExtractsGzipBottle(t *testing.T) {
	tarPath := buildGzipTar(t, map[string]string{
		"widget/1.0.0/bin/widget": "#!/bin/sh\necho hi\n",
	})

	cellarDir := t.TempDir()
	prefixDir := t.TempDir()

	if err := Stage(tarPath, cellarDir, prefixDir); err != nil {
		t.Fatalf("Stage() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(cellarDir, "widget", "1.0.0", "bin", "widget"))
	if err != nil {
		t.Fatalf("expected extracted binary: %v", err)
	}
	if string(data) != "#!/bin/sh\necho hi\n" {
		t.Errorf("unexpected extracted content: %q", data)
	}
}

func TestStageRejectsZipSlip(t *testing.T) {
	dir := t.TempDir()
	tarPath := filepath.Join(dir, "evil.tar.gz")

	f, err := os.Create(tarPath)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	gzw := gzip.NewWriter(f)
	tw := tar.NewWriter(gzw)
	hdr := &tar.Header{Name: "../../etc/passwd", Mode: 0644, Size: 4}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("write header: %v", err)
	}
	if _, err := tw.Write([]byte("evil")); err != nil {
		t.Fatalf("write content: %v", err)
	}
	tw.Close()
	gzw.Close()
	f.Close()

	cellarDir := t.TempDir()
	if err := Stage(tarPath, cellarDir, t.TempDir()); err == nil {
		t.Error("expected Stage() to reject a path-traversal entry")
	}
}

func TestIsSafeSymlink(t *testing.T) {
	cellar := "/cellar"
	prefix := "/prefix"

	if !isSafeSymlink(cellar, prefix, "/cellar/widget/1.0/lib/libfoo.so", "../../../lib/libfoo.so.1") {
		t.Error("expected a symlink resolving inside the cellar to be safe")
	}
	if isSafeSymlink(cellar, prefix, "/cellar/widget/1.0/lib/libfoo.so", "/etc/passwd") {
		t.Error("expected a symlink escaping both cellar and prefix to be unsafe")
	}
}

func TestRelocateEtcVarCopiesNewAndPreservesEdited(t *testing.T) {
	kegPrefix := t.TempDir()
	sharedPrefix := t.TempDir()

	if err := os.MkdirAll(filepath.Join(kegPrefix, "etc"), 0755); err != nil {
		t.Fatalf("mkdir keg etc: %v", err)
	}
	if err := os.WriteFile(filepath.Join(kegPrefix, "etc", "widget.conf"), []byte("fresh\n"), 0644); err != nil {
		t.Fatalf("write keg config: %v", err)
	}

	// simulate a pre-existing, user-edited config at the shared prefix
	if err := os.MkdirAll(filepath.Join(sharedPrefix, "etc"), 0755); err != nil {
		t.Fatalf("mkdir shared etc: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sharedPrefix, "etc", "widget.conf"), []byte("edited by user\n"), 0644); err != nil {
		t.Fatalf("write shared config: %v", err)
	}

	if err := RelocateEtcVar(kegPrefix, sharedPrefix); err != nil {
		t.Fatalf("RelocateEtcVar() error = %v", err)
	}

	edited, err := os.ReadFile(filepath.Join(sharedPrefix, "etc", "widget.conf"))
	if err != nil {
		t.Fatalf("expected edited config to survive: %v", err)
	}
	if string(edited) != "edited by user\n" {
		t.Error("expected user-edited config to be left untouched")
	}

	defaulted, err := os.ReadFile(filepath.Join(sharedPrefix, "etc", "widget.conf.default"))
	if err != nil {
		t.Fatalf("expected .default variant to be written: %v", err)
	}
	if string(defaulted) != "fresh\n" {
		t.Errorf("unexpected .default content: %q", defaulted)
	}
}

func TestRemoveRelocatedTrees(t *testing.T) {
	kegPrefix := t.TempDir()
	_ = os.MkdirAll(filepath.Join(kegPrefix, "etc"), 0755)
	_ = os.MkdirAll(filepath.Join(kegPrefix, "var"), 0755)
	_ = os.MkdirAll(filepath.Join(kegPrefix, "bin"), 0755)

	if err := RemoveRelocatedTrees(kegPrefix); err != nil {
		t.Fatalf("RemoveRelocatedTrees() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(kegPrefix, "etc")); !os.IsNotExist(err) {
		t.Error("expected etc/ to be removed")
	}
	if _, err := os.Stat(filepath.Join(kegPrefix, "var")); !os.IsNotExist(err) {
		t.Error("expected var/ to be removed")
	}
	if _, err := os.Stat(filepath.Join(kegPrefix, "bin")); err != nil {
		t.Error("expected bin/ to survive")
	}
}
