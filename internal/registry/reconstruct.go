package registry

import (
	"errors"
	"fmt"
)

// ErrRegistryCorruption is returned when a version's base_version chain
// cannot be walked back to a root (full-storage) version — e.g. a
// base_version referencing a version that was never recorded. The
// original Python implementation silently stopped the walk and returned
// a partial, wrong dependency set; this implementation refuses to guess.
var ErrRegistryCorruption = errors.New("registry: corrupt base_version chain")

// versionChain walks target's base_version pointers back to a root
// (BaseVersion == nil) version, returning the chain oldest-first.
func versionChain(pkg *Package, target string) ([]*Version, error) {
	var chain []*Version
	seen := make(map[string]bool)
	cur := target
	for {
		v, ok := pkg.FindVersion(cur)
		if !ok {
			return nil, fmt.Errorf("%w: version %q of package %q not found", ErrRegistryCorruption, cur, pkg.Name)
		}
		if seen[cur] {
			return nil, fmt.Errorf("%w: cycle in base_version chain at %q", ErrRegistryCorruption, cur)
		}
		seen[cur] = true
		chain = append(chain, v)
		if v.BaseVersion == nil {
			break
		}
		cur = *v.BaseVersion
	}
	// reverse to oldest-first
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Reconstruct replays a package's version chain from its root version up
// to target, applying each version's added/removed/modified deltas and
// overlaying its compatibility_changes in order, and returns the fully
// materialized Hatch dependency set, Python dependency set, and
// compatibility dict for target.
func Reconstruct(pkg *Package, target string) ([]Dependency, []PyDependency, map[string]string, error) {
	chain, err := versionChain(pkg, target)
	if err != nil {
		return nil, nil, nil, err
	}

	deps := make(map[string]Dependency)
	pyDeps := make(map[string]PyDependency)
	compat := make(map[string]string)

	for _, v := range chain {
		for _, d := range v.DepsAdded {
			deps[d.Name] = d
		}
		for _, d := range v.DepsModified {
			deps[d.Name] = d
		}
		for _, d := range v.DepsRemoved {
			delete(deps, d.Name)
		}
		for _, d := range v.PyDepsAdded {
			pyDeps[d.Name] = d
		}
		for _, d := range v.PyDepsModified {
			pyDeps[d.Name] = d
		}
		for _, d := range v.PyDepsRemoved {
			delete(pyDeps, d.Name)
		}
		for k, val := range v.CompatibilityChanges {
			compat[k] = val
		}
	}

	outDeps := make([]Dependency, 0, len(deps))
	for _, d := range deps {
		outDeps = append(outDeps, d)
	}
	outPyDeps := make([]PyDependency, 0, len(pyDeps))
	for _, d := range pyDeps {
		outPyDeps = append(outPyDeps, d)
	}
	return outDeps, outPyDeps, compat, nil
}
