package installer

import (
	"github.com/brewkeg/core/internal/formula"
)

// Resolver loads a formula by name, the collaborator internal/tap's
// Manager.Resolve satisfies: auto-tapping on a cold miss and returning a
// typed error when no tap provides the name.
type Resolver interface {
	Resolve(name string) (*formula.Formula, error)
}

// DepNode is one entry in an expanded, leaves-first install plan: the
// dependency's own formula, the edge that reached it, and its effective
// build configuration.
type DepNode struct {
	Formula *formula.Formula
	Dep     formula.Dependency
	Build   formula.BuildOptions
}

// ExpandRequirements walks the transitive requirement graph starting at
// root, draining a stack so indirectly-pulled-in formulae (via a
// materialized default-formula requirement) get their own requirements
// walked too. It returns the unsatisfied, non-fatal-or-fatal requirements
// keyed by the dependent that declared them, plus any dependency edges
// materialized from defaulted requirements (prepended, so they are
// installed before the formula that needed them).
func ExpandRequirements(resolver Resolver, root *formula.Formula, rootBuild formula.BuildOptions, platform, localCellar string, opts Options) (map[string][]formula.Requirement, []formula.Dependency) {
	unsatisfied := make(map[string][]formula.Requirement)
	var materialized []formula.Dependency

	type entry struct {
		f     *formula.Formula
		build formula.BuildOptions
	}
	stack := []entry{{root, rootBuild}}
	visited := make(map[string]bool)

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur.f.Name] {
			continue
		}
		visited[cur.f.Name] = true

		poured := PourBottle(cur.f, opts, platform, localCellar, false, false)

		for _, req := range cur.f.Requirements {
			if (req.HasTag(formula.TagOptional) || req.HasTag(formula.TagRecommended)) && cur.build.Without(req.Name) {
				continue // prune
			}
			if req.HasTag(formula.TagBuild) && poured {
				continue // prune
			}
			if req.HasDefaultFormula() {
				satisfiedAsRun := req.Satisfied != nil && req.Satisfied(cur.build) && req.HasTag(formula.TagRun)
				if !satisfiedAsRun && (poured || opts.BuildBottle) {
					dep := req.ToDependency()
					materialized = append([]formula.Dependency{dep}, materialized...)
					if depFormula, err := resolver.Resolve(dep.Name); err == nil {
						stack = append(stack, entry{depFormula, cur.build})
					}
					continue // prune
				}
			}
			if req.Satisfied != nil && req.Satisfied(cur.build) {
				continue // prune
			}
			unsatisfied[cur.f.Name] = append(unsatisfied[cur.f.Name], req)
		}
	}

	return unsatisfied, materialized
}

// ExpandDependencies performs the topological, leaves-first expansion of
// root's dependency graph (root.Deps unioned with extraDeps, the
// materialized requirement edges). depSatisfied reports whether a dep is
// already installed at a version compatible with inherited, in which
// case the node is skipped from the install plan but its own subtree is
// still traversed for indirect, not-yet-satisfied deps.
func ExpandDependencies(
	resolver Resolver,
	root *formula.Formula,
	rootBuild formula.BuildOptions,
	extraDeps []formula.Dependency,
	platform, localCellar string,
	opts Options,
	usedOptionsFor func(name string) formula.Options,
	depSatisfied func(name string, inherited formula.Options) bool,
) ([]DepNode, error) {
	allDeps := append(append([]formula.Dependency(nil), extraDeps...), root.Deps...)

	var order []DepNode
	visited := make(map[string]bool)

	var visit func(dependent *formula.Formula, dependentBuild formula.BuildOptions, deps []formula.Dependency) error
	visit = func(dependent *formula.Formula, dependentBuild formula.BuildOptions, deps []formula.Dependency) error {
		for _, dep := range deps {
			df, err := resolver.Resolve(dep.Name)
			if err != nil {
				return err
			}

			inherited := inheritedOptions(dependentBuild, df, dep)
			used := formula.Options{}
			if usedOptionsFor != nil {
				used = usedOptionsFor(dep.Name)
			}
			build := formula.BuildOptions{
				Args:     used.Union(inherited).Union(dep.Options),
				Declared: df.Options,
			}

			if (dep.HasTag(formula.TagOptional) || dep.HasTag(formula.TagRecommended)) && build.Without(dep.Name) {
				continue // prune
			}

			poured := PourBottle(dependent, opts, platform, localCellar, false, false)
			if dep.HasTag(formula.TagBuild) && poured {
				continue // prune
			}

			alreadyQueued := visited[df.Name]
			if !alreadyQueued {
				if err := visit(df, build, df.Deps); err != nil {
					return err
				}
			}

			if depSatisfied != nil && depSatisfied(df.Name, inherited) {
				continue // skip: traversed above, not scheduled for install
			}

			if !visited[df.Name] {
				visited[df.Name] = true
				order = append(order, DepNode{Formula: df, Dep: dep, Build: build})
			}
		}
		return nil
	}

	if err := visit(root, rootBuild, allDeps); err != nil {
		return nil, err
	}
	return order, nil
}

// inheritedOptions propagates the "universal" option to dep when the
// dependent's build args request it, the edge isn't build-only, and dep
// itself declares the option. A formula-level "requires universal deps"
// setting does not exist and is not consulted.
func inheritedOptions(dependentBuild formula.BuildOptions, dep *formula.Formula, edge formula.Dependency) formula.Options {
	if edge.HasTag(formula.TagBuild) {
		return nil
	}
	if !dependentBuild.With("universal") {
		return nil
	}
	if !dep.HasOption("universal") {
		return nil
	}
	return formula.Options{{Name: "universal"}}
}
