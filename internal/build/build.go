// Package build drives the source-build subprocess: argv construction,
// pristine-environment child process, optional sandboxed exec, and
// post-fork verification of the resulting prefix.
package build

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/brewkeg/core/internal/errors"
	"github.com/brewkeg/core/internal/formula"
	"github.com/brewkeg/core/internal/logger"
	"github.com/brewkeg/core/internal/sandbox"
)

// Options mirrors the installer flags that feed into the build driver's
// argv reconstruction and pristine environment.
type Options struct {
	IgnoreDependencies bool
	BuildBottle        bool
	BottleArch         string
	Git                bool
	Interactive        bool
	Verbose            bool
	Debug              bool
	CC                 string
	Env                string // explicit --env override, "" if none
	HeadOnly           bool
	Devel              bool
	UserOptions        map[string]string // name=value pairs the user passed

	SandboxAvailable bool
	SandboxDisabled  bool // auto-disabled for this formula
	KeepTmp          bool
}

// SanitizedArgs reconstructs a reproducible command line from opts, the
// same flags printed in the argv a build child is invoked with.
func SanitizedArgs(opts Options) []string {
	var args []string

	if opts.IgnoreDependencies {
		args = append(args, "--ignore-dependencies")
	}
	if opts.BuildBottle {
		args = append(args, "--build-bottle")
		if opts.BottleArch != "" {
			args = append(args, "--bottle-arch="+opts.BottleArch)
		}
	}
	if opts.Git {
		args = append(args, "--git")
	}
	if opts.Interactive {
		args = append(args, "--interactive")
	}
	if opts.Verbose {
		args = append(args, "--verbose")
	}
	if opts.Debug {
		args = append(args, "--debug")
	}
	if opts.CC != "" {
		args = append(args, "--cc="+opts.CC)
	}

	env := opts.Env
	if env == "" && opts.standardEnv() {
		env = "std"
	}
	if env != "" {
		args = append(args, "--env="+env)
	}

	if opts.HeadOnly {
		args = append(args, "--HEAD")
	} else if opts.Devel {
		args = append(args, "--devel")
	}

	names := make([]string, 0, len(opts.UserOptions))
	for name := range opts.UserOptions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		args = append(args, fmt.Sprintf("%s=%s", name, opts.UserOptions[name]))
	}

	return args
}

// standardEnv decides whether this build should be reported as running in
// the standard (as opposed to super) environment: true when no explicit
// --cc override is present, matching formulae that don't need a
// non-standard toolchain.
func (o Options) standardEnv() bool {
	return o.CC == ""
}

// Argv renders the fixed-shape command line for a build invocation, for
// logging/reproducibility purposes.
func Argv(f *formula.Formula, formulaPath, loadPath, buildScript string, opts Options) []string {
	argv := []string{"nice", interpreter(), "-W0", "-I", loadPath, "--", buildScript, formulaPath}
	argv = append(argv, SanitizedArgs(opts)...)
	return argv
}

func interpreter() string {
	return "ruby"
}

// PristineEnv constructs a clean environment for the build child: the
// ambient process environment with every HOMEBREW_* variable stripped
// (so per-formula mutations from a sibling build can't leak in) plus the
// install-time essentials the build needs.
func PristineEnv(cellarPath, homebrewPrefix, cc string) []string {
	var env []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "HOMEBREW_") {
			continue
		}
		env = append(env, kv)
	}
	env = append(env, "PREFIX="+cellarPath)
	env = append(env, "HOMEBREW_PREFIX="+homebrewPrefix)
	if cc != "" {
		env = append(env, "CC="+cc)
	}
	return env
}

// BuildScript locates the external build.rb collaborator beneath a
// Homebrew Library directory — the script that actually knows how to
// compile a formula. This package never execs anything else.
func BuildScript(library string) string {
	return filepath.Join(library, "Homebrew", "build.rb")
}

// Run forks the build child described by Argv(f, f.Path, loadPath,
// buildScript, opts) with a pristine environment, optionally confined by
// sandbox, waits for it, then verifies the resulting prefix is non-empty.
// This package never inspects sourceDir for build-system markers or execs
// make/cmake/cargo/etc itself — build.rb is an external collaborator that
// does the actual compiling; Run only constructs its argv and forks it.
// On any failure it removes the (possibly partial) prefix and, if the
// rack is now empty, the rack itself.
func Run(f *formula.Formula, sourceDir, cellarPath, homebrewPrefix, loadPath, buildScript string, opts Options) error {
	logger.Progress("Building and installing %s", f.Name)

	if err := os.MkdirAll(cellarPath, 0755); err != nil {
		return errors.NewPermissionError("create cellar directory", cellarPath, err)
	}

	argv := Argv(f, f.Path, loadPath, buildScript, opts)
	env := PristineEnv(cellarPath, homebrewPrefix, opts.CC)

	var sb *sandbox.Sandbox
	useSandbox := opts.SandboxAvailable && !opts.SandboxDisabled && sandbox.Available()
	if useSandbox {
		sb = sandbox.New()
		sb.AllowWrite(os.TempDir())
		sb.AllowWrite(cellarPath)
	}

	if err := runChild(f, sourceDir, env, argv, sb); err != nil {
		cleanup(cellarPath)
		return err
	}

	entries, err := os.ReadDir(cellarPath)
	if err != nil || len(entries) == 0 {
		cleanup(cellarPath)
		return errors.NewBuildError(f.Name, f.Version, fmt.Errorf("empty installation"))
	}

	return nil
}

func runChild(f *formula.Formula, sourceDir string, env []string, argv []string, sb *sandbox.Sandbox) error {
	logger.Step("Running: %s", strings.Join(argv, " "))

	var cmd *exec.Cmd
	if sb != nil {
		cmd = sb.Exec(argv, sourceDir, env)
	} else {
		cmd = exec.Command(argv[0], argv[1:]...)
		cmd.Dir = sourceDir
		cmd.Env = env
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = io.MultiWriter(&stdout, os.Stdout)
	cmd.Stderr = io.MultiWriter(&stderr, os.Stderr)
	if logger.IsQuiet() {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	if err := cmd.Run(); err != nil {
		buildErr := errors.NewBuildError(f.Name, f.Version, err)
		buildErr.Suggestions = append(buildErr.Suggestions,
			"Check the build output above for the underlying failure",
			fmt.Sprintf("Build script invoked: %s", buildScriptName(argv)))
		if logger.IsQuiet() && stderr.Len() > 0 {
			logger.Error("Build stderr output:")
			logger.Error(stderr.String())
		}
		return buildErr
	}

	logger.Success("Build completed")
	return nil
}

func buildScriptName(argv []string) string {
	for i, a := range argv {
		if a == "--" && i+1 < len(argv) {
			return argv[i+1]
		}
	}
	if len(argv) > 0 {
		return argv[0]
	}
	return ""
}

func cleanup(cellarPath string) {
	_ = os.RemoveAll(cellarPath)
	rack := filepath.Dir(cellarPath)
	if entries, err := os.ReadDir(rack); err == nil && len(entries) == 0 {
		_ = os.Remove(rack)
	}
}
