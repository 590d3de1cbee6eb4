// Package sandbox provides the optional write-confinement wrapper the
// build driver execs formula builds under: when sandboxing is available,
// requested, and not auto-disabled for the formula, the build child runs
// inside a sandbox permitting writes only to the paths passed to
// AllowWrite. The build driver allows the temp directory and the
// formula's own cellar location; no cache or log directory is allowed.
package sandbox

import (
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Sandbox confines a build subprocess's filesystem writes to an explicit
// allowlist. On platforms without a native confinement mechanism it
// degrades to a passthrough that execs the command unconfined.
type Sandbox struct {
	allowedWrites []string
}

// New constructs an empty Sandbox; call AllowWrite to populate the
// allowlist before Exec.
func New() *Sandbox {
	return &Sandbox{}
}

// AllowWrite grants the sandboxed child write access to path (and,
// conventionally, everything beneath it).
func (s *Sandbox) AllowWrite(path string) {
	if path == "" {
		return
	}
	s.allowedWrites = append(s.allowedWrites, path)
}

// Available reports whether this platform has a native sandbox mechanism
// this package knows how to drive.
func Available() bool {
	if runtime.GOOS != "darwin" {
		return false
	}
	_, err := exec.LookPath("sandbox-exec")
	return err == nil
}

// Exec runs argv (with env and working directory dir) confined to the
// sandbox's allowlist when Available() and the caller requested
// confinement; otherwise it execs argv directly. It does not wait for
// completion — the caller drives the returned *exec.Cmd the same way it
// would any other child process (Start/Wait, or Run).
func (s *Sandbox) Exec(argv []string, dir string, env []string) *exec.Cmd {
	if !Available() || len(argv) == 0 {
		return rawCommand(argv, dir, env)
	}

	profile := s.profile()
	sandboxArgv := append([]string{"-p", profile}, argv...)
	cmd := exec.Command("sandbox-exec", sandboxArgv...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

func rawCommand(argv []string, dir string, env []string) *exec.Cmd {
	if len(argv) == 0 {
		return exec.Command("true")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

// profile renders a minimal Seatbelt profile (everything allowed except
// file writes, with one allow clause per permitted write path) for
// sandbox-exec's -p flag.
func (s *Sandbox) profile() string {
	var b strings.Builder
	b.WriteString("(version 1)\n(allow default)\n(deny file-write*)\n")
	for _, path := range s.allowedWrites {
		b.WriteString("(allow file-write* (subpath \"")
		b.WriteString(path)
		b.WriteString("\"))\n")
	}
	return b.String()
}
