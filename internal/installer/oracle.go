package installer

import (
	"github.com/brewkeg/core/internal/formula"
	"github.com/brewkeg/core/internal/logger"
)

// PourBottle decides, for the formula this installer instance targets,
// whether it will be poured from a prebuilt bottle rather than compiled
// from source. externalClaim models an out-of-band collaborator (e.g. a
// vendor hook) that unconditionally claims the pour; callers with no
// such collaborator pass false.
func PourBottle(f *formula.Formula, opts Options, platform, localCellar string, warn, externalClaim bool) bool {
	if externalClaim {
		return true
	}
	if opts.ForceBottle && f.Bottle != nil {
		return true
	}

	if opts.PourFailed {
		return false
	}
	if opts.BuildFromSource || opts.BuildBottle || opts.Interactive {
		return false
	}
	if len(opts.UserOptions) > 0 {
		return false
	}
	if f.Modified && opts.LocalBottlePath == "" {
		return false
	}

	bf, ok := f.BottleFileFor(platform)
	if !ok || f.Disabled {
		return false
	}
	if !cellarCompatible(bf, localCellar) {
		if warn {
			logger.Warn("%s: bottle cellar %q is incompatible with %q, building from source", f.Name, bf.Cellar, localCellar)
		}
		return false
	}
	return true
}

// InstallBottleFor answers the same question for a transitive dependency
// encountered during expansion: it has a bottle, carries no user-supplied
// options (a bottle was built for the default configuration only), and
// its baked-in cellar matches the local one. The root formula's own
// answer is PourBottle, not this function.
func InstallBottleFor(dep *formula.Formula, build formula.BuildOptions, platform, localCellar string) bool {
	bf, ok := dep.BottleFileFor(platform)
	if !ok || dep.Disabled {
		return false
	}
	if len(build.Args) > 0 {
		return false
	}
	return cellarCompatible(bf, localCellar)
}

func cellarCompatible(bf formula.BottleFile, localCellar string) bool {
	switch bf.Cellar {
	case "", "any", ":any", "any_skip_relocation", ":any_skip_relocation":
		return true
	default:
		return bf.Cellar == localCellar
	}
}
