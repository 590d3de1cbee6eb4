// Package verification checksums downloaded bottles and source archives
// before they're extracted: a SHA256 mismatch means a corrupted or
// tampered download, and the installer refuses to unpack it.
package verification

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/brewkeg/core/internal/errors"
	"github.com/brewkeg/core/internal/logger"
)

// Result is the outcome of verifying one downloaded artifact.
type Result struct {
	Path          string
	Exists        bool
	SizeMatches   bool
	ChecksumMatch bool
	Err           error
}

// Passed reports whether the artifact exists, matches its checksum, and
// recorded no error. A size mismatch fails it only in strict mode, where
// verify records the mismatch as an error.
func (r *Result) Passed() bool {
	return r.Exists && r.ChecksumMatch && r.Err == nil
}

// Summary renders a human-readable description of the result.
func (r *Result) Summary() string {
	if r.Passed() {
		return "✓ checksum verified"
	}
	var issues []string
	if !r.Exists {
		issues = append(issues, "file does not exist")
	}
	if !r.SizeMatches {
		issues = append(issues, "size mismatch")
	}
	if !r.ChecksumMatch {
		issues = append(issues, "sha256 mismatch")
	}
	if r.Err != nil {
		issues = append(issues, r.Err.Error())
	}
	return fmt.Sprintf("✗ verification failed: %s", strings.Join(issues, ", "))
}

// PackageVerifier verifies downloaded Homebrew artifacts (bottles and
// source tarballs) against an expected SHA256 digest.
type PackageVerifier struct {
	strictMode bool
}

// NewPackageVerifier creates a verifier. In strict mode a size mismatch
// against a known expected size is itself a failure; otherwise it's
// logged as a warning only, since upstream download sizes can drift.
func NewPackageVerifier(strict bool) *PackageVerifier {
	return &PackageVerifier{strictMode: strict}
}

func (pv *PackageVerifier) verify(path, expectedSHA256 string, expectedSize int64) *Result {
	result := &Result{Path: path}

	stat, err := os.Stat(path)
	if err != nil {
		result.Err = errors.NewPermissionError("file access", path, err)
		return result
	}
	result.Exists = true

	if expectedSize > 0 {
		result.SizeMatches = stat.Size() == expectedSize
		if !result.SizeMatches {
			msg := fmt.Sprintf("size mismatch: expected %d bytes, got %d bytes", expectedSize, stat.Size())
			if pv.strictMode {
				result.Err = fmt.Errorf("%s", msg)
			} else {
				logger.Warn(msg)
			}
		}
	} else {
		result.SizeMatches = true
	}

	if expectedSHA256 == "" {
		result.ChecksumMatch = true
		return result
	}

	actual, err := sha256sum(path)
	if err != nil {
		result.Err = err
		return result
	}
	result.ChecksumMatch = strings.EqualFold(actual, expectedSHA256)
	if !result.ChecksumMatch {
		result.Err = errors.NewChecksumError("", "", strings.ToLower(expectedSHA256), actual)
	}
	return result
}

func sha256sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.NewPermissionError("read file for checksum", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to compute sha256 checksum: %w", err)
	}
	return strings.ToLower(hex.EncodeToString(h.Sum(nil))), nil
}

// VerifyBottle verifies a downloaded bottle archive.
func (pv *PackageVerifier) VerifyBottle(bottlePath, expectedSHA256 string, expectedSize int64) error {
	result := pv.verify(bottlePath, expectedSHA256, expectedSize)
	logResult("bottle", result)
	if !result.Passed() {
		return fmt.Errorf("bottle verification failed: %s", result.Summary())
	}
	return nil
}

// VerifySource verifies a downloaded source archive.
func (pv *PackageVerifier) VerifySource(sourcePath, expectedSHA256 string, expectedSize int64) error {
	result := pv.verify(sourcePath, expectedSHA256, expectedSize)
	logResult("source", result)
	if !result.Passed() {
		return fmt.Errorf("source verification failed: %s", result.Summary())
	}
	return nil
}

func logResult(kind string, result *Result) {
	if result.Passed() {
		logger.Success("%s verification: %s", kind, result.Summary())
		return
	}
	logger.Error("%s verification failed for %s: %s", kind, result.Path, result.Summary())
}
