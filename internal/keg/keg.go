// Package keg implements the tree-linking primitives for a single installed
// formula version: symlinking its bin/lib/include/etc tree into the shared
// prefix, tearing that link back down, and the opt-prefix sentinel that
// marks which version is currently active.
package keg

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/brewkeg/core/internal/errors"
)

// linkDirs are the top-level keg subdirectories whose contents get
// symlinked into the shared prefix. Frameworks only applies on macOS.
var linkDirs = []string{"bin", "sbin", "lib", "include", "share", "etc"}

func platformLinkDirs() []string {
	dirs := append([]string(nil), linkDirs...)
	if runtime.GOOS == "darwin" {
		dirs = append(dirs, "Frameworks")
	}
	return dirs
}

// Keg is one installed version of one formula, rooted at cellar/name/version.
type Keg struct {
	Name    string
	Version string
	Cellar  string
	Prefix  string
}

// New builds a Keg handle for a formula version already extracted or built
// under cellar/name/version.
func New(name, version, cellar, prefix string) *Keg {
	return &Keg{Name: name, Version: version, Cellar: cellar, Prefix: prefix}
}

// Path is the keg's own root directory: cellar/name/version.
func (k *Keg) Path() string {
	return filepath.Join(k.Cellar, k.Name, k.Version)
}

// Rack is the parent directory housing every version of this formula.
func (k *Keg) Rack() string {
	return filepath.Join(k.Cellar, k.Name)
}

// OptLink is the stable symlink alias for this formula's active keg —
// the opt_prefix. It doubles as the linked_keg sentinel: whichever keg
// opt/<name> resolves to is the linked one.
func (k *Keg) OptLink() string {
	return filepath.Join(k.Prefix, "opt", k.Name)
}

// LinkedVersion reports the version currently linked at opt/<name>, if any.
func LinkedVersion(prefix, name string) (string, bool) {
	optLink := filepath.Join(prefix, "opt", name)
	target, err := os.Readlink(optLink)
	if err != nil {
		return "", false
	}
	return filepath.Base(target), true
}

// IsLinked reports whether this exact keg is the one currently linked.
func (k *Keg) IsLinked() bool {
	version, ok := LinkedVersion(k.Prefix, k.Name)
	return ok && version == k.Version
}

// LinkResult summarizes the outcome of a Link or Unlink pass.
type LinkResult struct {
	Name      string
	Files     []string
	Conflicts []string
	Success   bool
}

// LinkOptions controls how Link resolves pre-existing files at the
// destination path.
type LinkOptions struct {
	// Overwrite removes any conflicting file/symlink and replaces it.
	Overwrite bool
	// DryRun performs no filesystem mutation; it only enumerates what
	// would conflict, for reporting a link-conflict error in detail.
	DryRun bool
}

// Link symlinks this keg's tree into the shared prefix. If keg_only is
// desired, the caller should only invoke OptLink's directory creation and
// skip Link entirely — see the finisher's use of this type.
func (k *Keg) Link(opts LinkOptions) (*LinkResult, error) {
	result := &LinkResult{Name: k.Name, Success: true}
	kegPath := k.Path()

	optDir := filepath.Join(k.Prefix, "opt")
	optLink := k.OptLink()
	if !opts.DryRun {
		if err := os.MkdirAll(optDir, 0755); err != nil {
			return nil, errors.NewLinkError(k.Name, "mkdir opt", err)
		}
		if existing, err := os.Lstat(optLink); err == nil && existing.Mode()&os.ModeSymlink != 0 {
			_ = os.Remove(optLink)
		}
		if err := os.Symlink(kegPath, optLink); err != nil {
			return nil, errors.NewLinkError(k.Name, "opt link", err)
		}
	}

	for _, dir := range platformLinkDirs() {
		srcDir := filepath.Join(kegPath, dir)
		if _, err := os.Stat(srcDir); os.IsNotExist(err) {
			continue
		}
		targetDir := filepath.Join(k.Prefix, dir)
		if !opts.DryRun {
			if err := os.MkdirAll(targetDir, 0755); err != nil {
				return nil, errors.NewLinkError(k.Name, "mkdir "+dir, err)
			}
		}
		k.linkTree(srcDir, targetDir, kegPath, opts, result)
	}

	sort.Strings(result.Files)
	sort.Strings(result.Conflicts)
	if len(result.Conflicts) > 0 && !opts.Overwrite {
		result.Success = false
	}
	return result, nil
}

func (k *Keg) linkTree(srcDir, targetDir, kegPath string, opts LinkOptions, result *LinkResult) {
	_ = filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || path == srcDir {
			return nil
		}

		rel, relErr := filepath.Rel(srcDir, path)
		if relErr != nil {
			return nil
		}
		dst := filepath.Join(targetDir, rel)

		if info.IsDir() {
			if !opts.DryRun {
				_ = os.MkdirAll(dst, 0755)
			}
			return nil
		}

		result.Files = append(result.Files, rel)

		existing, lstatErr := os.Lstat(dst)
		if lstatErr == nil {
			if existing.Mode()&os.ModeSymlink != 0 {
				if target, readErr := os.Readlink(dst); readErr == nil && target == path {
					return nil // already linked to this exact file
				}
				if !opts.Overwrite {
					result.Conflicts = append(result.Conflicts, rel)
					return nil
				}
			} else {
				// a real file owns this path — always a conflict
				result.Conflicts = append(result.Conflicts, rel)
				if !opts.Overwrite {
					return nil
				}
			}
			if !opts.DryRun {
				_ = os.Remove(dst)
			}
		}

		if opts.DryRun {
			return nil
		}

		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			result.Conflicts = append(result.Conflicts, rel)
			return nil
		}
		if err := os.Symlink(path, dst); err != nil {
			result.Conflicts = append(result.Conflicts, rel)
		}

		return nil
	})
	_ = kegPath
}

// Unlink removes every symlink this keg owns from the shared prefix,
// including the opt sentinel, without touching the keg directory itself.
func (k *Keg) Unlink() (*LinkResult, error) {
	result := &LinkResult{Name: k.Name, Success: true}
	kegPath := k.Path()

	if info, err := os.Lstat(k.OptLink()); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if target, err := os.Readlink(k.OptLink()); err == nil && target == kegPath {
			_ = os.Remove(k.OptLink())
		}
	}

	for _, dir := range platformLinkDirs() {
		srcDir := filepath.Join(kegPath, dir)
		if _, err := os.Stat(srcDir); os.IsNotExist(err) {
			continue
		}
		targetDir := filepath.Join(k.Prefix, dir)
		k.unlinkTree(srcDir, targetDir, kegPath, result)
	}

	sort.Strings(result.Files)
	return result, nil
}

func (k *Keg) unlinkTree(srcDir, targetDir, kegPath string, result *LinkResult) {
	_ = filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(srcDir, path)
		if relErr != nil {
			return nil
		}
		linkPath := filepath.Join(targetDir, rel)

		linfo, statErr := os.Lstat(linkPath)
		if statErr != nil || linfo.Mode()&os.ModeSymlink == 0 {
			return nil
		}

		target, readErr := os.Readlink(linkPath)
		if readErr != nil || target != path {
			return nil
		}

		if err := os.Remove(linkPath); err == nil {
			result.Files = append(result.Files, rel)
		}
		return nil
	})
	_ = kegPath
}

// ConflictError builds the typed error a caller should surface when Link's
// result carries unresolved conflicts.
func (r *LinkResult) ConflictError() error {
	if len(r.Conflicts) == 0 {
		return nil
	}
	return errors.NewLinkConflictError(r.Name, fmt.Sprintf("%d file(s): %v", len(r.Conflicts), r.Conflicts))
}
