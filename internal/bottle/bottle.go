// Package bottle fetches, stages, and relocates a prebuilt binary bottle
// archive in lieu of a source build.
package bottle

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/brewkeg/core/internal/errors"
	"github.com/brewkeg/core/internal/formula"
	"github.com/brewkeg/core/internal/logger"
	"github.com/brewkeg/core/internal/verification"
)

// progressReader mirrors the installer's download progress reporting so
// bottle fetches show the same pulse as a source download.
type progressReader struct {
	reader     io.Reader
	total      int64
	current    int64
	filename   string
	lastUpdate time.Time
}

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	pr.current += int64(n)

	now := time.Now()
	if now.Sub(pr.lastUpdate) > 100*time.Millisecond || err == io.EOF {
		pr.lastUpdate = now
		percent := float64(pr.current) / float64(pr.total) * 100
		if err == io.EOF {
			logger.Progress("%s: 100%%", pr.filename)
		} else {
			logger.Progress("%s: %.0f%%", pr.filename, percent)
		}
	}
	return n, err
}

// Fetch resolves the bottle artifact for f on the given platform tag: a
// local path bypasses integrity checking entirely (it is assumed to have
// been produced locally), otherwise the formula's bottle descriptor is
// downloaded and its checksum verified.
func Fetch(f *formula.Formula, platform, cacheDir, localPath string) (string, error) {
	if localPath != "" {
		return localPath, nil
	}

	bf, ok := f.BottleFileFor(platform)
	if !ok {
		return "", errors.NewPourFailedError(f.Name, f.Version, fmt.Errorf("no bottle for platform %s", platform))
	}

	dest := filepath.Join(cacheDir, fmt.Sprintf("%s-%s.%s.bottle.tar.gz", f.Name, f.Version, platform))
	if err := download(bf.URL, dest); err != nil {
		return "", errors.NewPourFailedError(f.Name, f.Version, err)
	}

	if bf.SHA256 != "" {
		pv := verification.NewPackageVerifier(true)
		if err := pv.VerifyBottle(dest, bf.SHA256, 0); err != nil {
			return "", errors.NewChecksumError(f.Name, f.Version, bf.SHA256, "")
		}
	}

	return dest, nil
}

func download(url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errors.NewPermissionError("create cache directory", filepath.Dir(dest), err)
	}

	resp, err := http.Get(url)
	if err != nil {
		return errors.NewNetworkError("download bottle", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.NewDownloadError("download bottle", url, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status))
	}

	file, err := os.Create(dest)
	if err != nil {
		return errors.NewPermissionError("create bottle file", dest, err)
	}
	defer file.Close()

	var reader io.Reader = resp.Body
	if resp.ContentLength > 0 && !logger.IsQuiet() {
		reader = &progressReader{reader: resp.Body, total: resp.ContentLength, filename: filepath.Base(dest)}
	}

	if _, err := io.Copy(file, reader); err != nil {
		return errors.NewDownloadError("save bottle", url, err)
	}
	return nil
}

// Stage extracts the archive at tarPath into cellarDir, the cellar root
// (bottle archives carry <name>/<version>/... paths).
// It auto-detects gzip or zstd compression from the stream's magic bytes
// and guards against path traversal (ZipSlip) and symlinks that would
// escape either the cellar or the shared prefix.
func Stage(tarPath, cellarDir, prefixDir string) error {
	f, err := os.Open(tarPath)
	if err != nil {
		return err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	magic, err := br.Peek(4)
	if err != nil {
		return fmt.Errorf("failed to detect bottle compression format: %w", err)
	}

	var decompReader io.Reader
	var decompCloser io.Closer

	switch {
	case len(magic) >= 2 && magic[0] == 0x1f && magic[1] == 0x8b:
		gzr, err := gzip.NewReader(br)
		if err != nil {
			return err
		}
		decompReader, decompCloser = gzr, gzr
	case len(magic) >= 4 && magic[0] == 0x28 && magic[1] == 0xb5 && magic[2] == 0x2f && magic[3] == 0xfd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return err
		}
		decompReader, decompCloser = zr, zr.IOReadCloser()
	default:
		return fmt.Errorf("unsupported bottle compression (magic: %x)", magic)
	}
	defer decompCloser.Close()

	return extractTar(tar.NewReader(decompReader), cellarDir, prefixDir)
}

func extractTar(tr *tar.Reader, cellarDir, prefixDir string) error {
	cleanCellar := filepath.Clean(cellarDir) + string(os.PathSeparator)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		target := filepath.Join(cellarDir, header.Name)
		if !strings.HasPrefix(target, cleanCellar) {
			return fmt.Errorf("illegal file path in bottle archive: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("failed to create directory for %s: %w", target, err)
			}
			outFile, err := os.OpenFile(target, os.O_CREATE|os.O_RDWR|os.O_TRUNC, os.FileMode(header.Mode)&0777)
			if err != nil {
				return fmt.Errorf("failed to create file %s: %w", target, err)
			}
			if _, err := io.Copy(outFile, tr); err != nil {
				outFile.Close()
				return fmt.Errorf("failed to write file %s: %w", target, err)
			}
			if err := outFile.Close(); err != nil {
				return fmt.Errorf("failed to close file %s: %w", target, err)
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("failed to create directory for symlink %s: %w", target, err)
			}
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove existing %s: %w", target, err)
			}
			if !isSafeSymlink(cellarDir, prefixDir, target, header.Linkname) {
				return fmt.Errorf("unsafe symlink target %q for %s", header.Linkname, header.Name)
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("failed to create symlink %s: %w", target, err)
			}
		case tar.TypeLink:
			linkTarget := filepath.Join(cellarDir, header.Linkname)
			if !strings.HasPrefix(linkTarget, cleanCellar) {
				return fmt.Errorf("illegal hard link target %q for %s", header.Linkname, header.Name)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("failed to create directory for hard link %s: %w", target, err)
			}
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove existing %s: %w", target, err)
			}
			if err := os.Link(linkTarget, target); err != nil {
				return fmt.Errorf("failed to create hard link %s: %w", target, err)
			}
		default:
			if header.Typeflag != 0 {
				logger.Debug("skipping unsupported bottle entry type %d for %s", header.Typeflag, header.Name)
			}
		}
	}
	return nil
}

func isSafeSymlink(cellarDir, prefixDir, target, linkname string) bool {
	var resolved string
	if filepath.IsAbs(linkname) {
		resolved = filepath.Clean(linkname)
	} else {
		resolved = filepath.Clean(filepath.Join(filepath.Dir(target), linkname))
	}
	cleanCellar := filepath.Clean(cellarDir) + string(os.PathSeparator)
	cleanPrefix := filepath.Clean(prefixDir) + string(os.PathSeparator)
	return strings.HasPrefix(resolved, cleanCellar) || strings.HasPrefix(resolved, cleanPrefix)
}

// RelocateEtcVar rewrites the freshly-extracted keg's etc/ and var/ trees
// into the shared prefix using a copy-with-renaming policy: a destination
// file that already exists with different content is assumed user-edited
// and is left alone, with the bottle's version written alongside it under
// a ".default" suffix instead of clobbering it.
func RelocateEtcVar(kegPrefix, sharedPrefix string) error {
	for _, sub := range []string{"etc", "var"} {
		src := filepath.Join(kegPrefix, sub)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		if err := relocateTree(src, filepath.Join(sharedPrefix, sub)); err != nil {
			return err
		}
	}
	return nil
}

func relocateTree(srcDir, destDir string) error {
	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || path == srcDir {
			return nil
		}
		rel, relErr := filepath.Rel(srcDir, path)
		if relErr != nil {
			return nil
		}
		dst := filepath.Join(destDir, rel)

		if info.IsDir() {
			return os.MkdirAll(dst, 0755)
		}

		if _, err := os.Stat(dst); os.IsNotExist(err) {
			if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
				return err
			}
			return copyFile(path, dst, info.Mode())
		}

		if sameContent(path, dst) {
			return nil
		}
		return copyFile(path, dst+".default", info.Mode())
	})
}

func sameContent(a, b string) bool {
	ab, errA := os.ReadFile(a)
	bb, errB := os.ReadFile(b)
	return errA == nil && errB == nil && string(ab) == string(bb)
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// RemoveRelocatedTrees deletes the keg's own etc/ and var/ after their
// contents have been mirrored into the shared prefix, so the cellar tree
// contains only the formula's keg.
func RemoveRelocatedTrees(kegPrefix string) error {
	for _, sub := range []string{"etc", "var"} {
		if err := os.RemoveAll(filepath.Join(kegPrefix, sub)); err != nil {
			return err
		}
	}
	return nil
}
