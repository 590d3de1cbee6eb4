package installer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	flock "github.com/theckman/go-flock"
)

// Context carries the two pieces of state that must stay coherent across
// an entire install run, including every recursively spawned dependency
// installer: the monotonic record of formulae already entered, and the
// ordered list of formula locks currently held. One Context is created by
// the root installer and threaded down through every child installer it
// constructs for a dependency.
type Context struct {
	attempted map[string]struct{}
	locked    []string
	ownsLocks bool
	locker    *Locker
}

// NewContext returns an empty Context backed by locker.
func NewContext(locker *Locker) *Context {
	return &Context{attempted: make(map[string]struct{}), locker: locker}
}

// Enter records name as attempted, returning false if it was already
// present. A false return means the caller must fail fast rather than
// install the same formula twice within one process.
func (c *Context) Enter(name string) bool {
	if _, ok := c.attempted[name]; ok {
		return false
	}
	c.attempted[name] = struct{}{}
	return true
}

// Attempted reports whether name has already been entered.
func (c *Context) Attempted(name string) bool {
	_, ok := c.attempted[name]
	return ok
}

// AcquireLocks takes the per-formula advisory locks for names, in a
// stable (sorted) order. If this Context already holds locks — meaning a
// parent installer earlier in the recursive chain populated them first —
// this is a no-op: nested installers observe a non-empty lock list and
// perform no lock work of their own.
func (c *Context) AcquireLocks(names []string) error {
	if len(c.locked) > 0 {
		return nil
	}

	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	for _, n := range sorted {
		if err := c.locker.Lock(n); err != nil {
			for _, held := range c.locked {
				_ = c.locker.Unlock(held)
			}
			c.locked = nil
			return fmt.Errorf("acquire lock for %s: %w", n, err)
		}
		c.locked = append(c.locked, n)
	}
	c.ownsLocks = true
	return nil
}

// ReleaseLocks releases every lock this Context owns, exactly once. A
// nested installer that never owned the lock list is a no-op here too.
func (c *Context) ReleaseLocks() {
	if !c.ownsLocks {
		return
	}
	for _, n := range c.locked {
		_ = c.locker.Unlock(n)
	}
	c.locked = nil
	c.ownsLocks = false
}

// Locker hands out advisory, cross-process per-formula locks backed by
// flock(2) lockfiles under a shared directory.
type Locker struct {
	dir   string
	held  map[string]*flock.Flock
}

// NewLocker returns a Locker that places its lockfiles under dir.
func NewLocker(dir string) *Locker {
	return &Locker{dir: dir, held: make(map[string]*flock.Flock)}
}

// Lock acquires the advisory lock for name, failing immediately (rather
// than blocking) if another process already holds it.
func (l *Locker) Lock(name string) error {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return err
	}
	fl := flock.NewFlock(filepath.Join(l.dir, name+".formula.lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("formula %s is locked by another process", name)
	}
	l.held[name] = fl
	return nil
}

// Unlock releases the lock for name, if this Locker holds it.
func (l *Locker) Unlock(name string) error {
	fl, ok := l.held[name]
	if !ok {
		return nil
	}
	delete(l.held, name)
	return fl.Unlock()
}
