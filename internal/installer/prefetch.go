package installer

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/brewkeg/core/internal/formula"
)

// PrefetchResolver wraps a Resolver with a cache and a parallel warm-up
// pass: the prelude fans out resolution of a formula's direct
// dependencies concurrently before the (inherently sequential)
// leaves-first expansion walk, since those lookups are independent of
// one another and tap/network I/O dominates resolution cost.
type PrefetchResolver struct {
	inner Resolver
	cache sync.Map // name -> *formula.Formula
}

// NewPrefetchResolver wraps inner.
func NewPrefetchResolver(inner Resolver) *PrefetchResolver {
	return &PrefetchResolver{inner: inner}
}

// Warm resolves every name in names concurrently and populates the
// cache, returning the first error encountered (if any); the cache is
// populated for every name that did resolve regardless.
func (p *PrefetchResolver) Warm(names []string) error {
	var g errgroup.Group
	for _, name := range names {
		name := name
		if _, ok := p.cache.Load(name); ok {
			continue
		}
		g.Go(func() error {
			f, err := p.inner.Resolve(name)
			if err != nil {
				return err
			}
			p.cache.Store(name, f)
			return nil
		})
	}
	return g.Wait()
}

// Resolve returns the cached formula if Warm already fetched it,
// otherwise falls back to a direct synchronous resolve.
func (p *PrefetchResolver) Resolve(name string) (*formula.Formula, error) {
	if v, ok := p.cache.Load(name); ok {
		return v.(*formula.Formula), nil
	}
	f, err := p.inner.Resolve(name)
	if err != nil {
		return nil, err
	}
	p.cache.Store(name, f)
	return f, nil
}
