package depresolve

import (
	"fmt"

	"github.com/hatchling-go/hatchling/internal/registry"
)

// MissingReason classifies why a dependency could not be satisfied.
type MissingReason string

const (
	ReasonNotFound      MissingReason = "not_found"
	ReasonVersionMismatch MissingReason = "version_mismatch"
	ReasonParseError    MissingReason = "parse_error"
	ReasonNotInstalled  MissingReason = "not_installed"
)

// Missing describes one unsatisfied dependency.
type Missing struct {
	Name       string
	Constraint string
	Reason     MissingReason
	Detail     string
}

// ResolvedDependency is one entry in a resolved dependency tree, in
// pre-order (a package always appears before the dependencies it pulls
// in), mirroring the original's append-then-recurse DFS ordering.
// RepoURL and Path locate where the package version can actually be
// downloaded from, so a registry install never has to guess an endpoint.
type ResolvedDependency struct {
	Name    string
	Version string
	RepoURL string
	Path    string
}

// GetMissingHatchDependencies checks each Hatch-package dependency
// against what is actually available (availableVersions maps package
// name to the set of versions the registry has), and reports any that
// are absent or version-incompatible.
func GetMissingHatchDependencies(deps []registry.Dependency, availableVersions map[string][]string) []Missing {
	var missing []Missing
	for _, d := range deps {
		versions, ok := availableVersions[d.Name]
		if !ok {
			missing = append(missing, Missing{Name: d.Name, Constraint: d.Version, Reason: ReasonNotFound})
			continue
		}
		c, err := ParseConstraint(d.Version)
		if err != nil {
			missing = append(missing, Missing{Name: d.Name, Constraint: d.Version, Reason: ReasonParseError, Detail: err.Error()})
			continue
		}
		satisfied := false
		for _, v := range versions {
			if ok, _ := c.IsCompatible(v); ok {
				satisfied = true
				break
			}
		}
		if !satisfied {
			missing = append(missing, Missing{Name: d.Name, Constraint: d.Version, Reason: ReasonVersionMismatch})
		}
	}
	return missing
}

// GetMissingPythonDependencies checks each Python dependency against the
// installed set (name -> installed version). A missing name is
// "not_installed"; a present-but-incompatible name is "version_mismatch".
func GetMissingPythonDependencies(deps []registry.PyDependency, installed map[string]string) []Missing {
	var missing []Missing
	for _, d := range deps {
		installedVersion, ok := installed[d.Name]
		if !ok {
			missing = append(missing, Missing{Name: d.Name, Constraint: d.Version, Reason: ReasonNotInstalled})
			continue
		}
		c, err := ParseConstraint(d.Version)
		if err != nil {
			missing = append(missing, Missing{Name: d.Name, Constraint: d.Version, Reason: ReasonParseError, Detail: err.Error()})
			continue
		}
		if ok, _ := c.IsCompatible(installedVersion); !ok {
			missing = append(missing, Missing{Name: d.Name, Constraint: d.Version, Reason: ReasonVersionMismatch})
		}
	}
	return missing
}

// Resolver resolves Hatch-package dependency trees against a registry.
type Resolver struct {
	reg *registry.Registry
}

// NewResolver creates a Resolver over the given registry document.
func NewResolver(reg *registry.Registry) *Resolver {
	return &Resolver{reg: reg}
}

// FindLatestVersion searches every repository for the highest version of
// name satisfying c — a global search across the whole registry, not
// scoped to a single repository, matching the original's behavior.
func (r *Resolver) FindLatestVersion(name string, c Constraint) (string, bool) {
	var best []int
	var bestStr string
	found := false
	for _, repo := range r.reg.Repositories {
		for _, pkg := range repo.Packages {
			if pkg.Name != name {
				continue
			}
			for _, v := range pkg.Versions {
				ver, err := parseVersion(v.Version)
				if err != nil {
					continue
				}
				ok, err := c.IsCompatible(v.Version)
				if err != nil || !ok {
					continue
				}
				if !found || CompareVersions(ver, best) > 0 {
					best = ver
					bestStr = v.Version
					found = true
				}
			}
		}
	}
	return bestStr, found
}

// ResolveDependencies resolves the full transitive Hatch-package
// dependency tree of (name, version) via a DFS that appends each package
// to the result before recursing into its own dependencies (pre-order),
// exactly as the original algorithm does. Python dependencies encountered
// anywhere in the tree are merged with last-writer-wins — the Resolver's
// traversal order, not insertion order, determines which entry survives
// a name collision, matching the preserved (not fixed) original behavior.
func (r *Resolver) ResolveDependencies(name, version string) ([]ResolvedDependency, map[string]string, error) {
	visited := make(map[string]bool)
	var resolved []ResolvedDependency
	pyDeps := make(map[string]string)

	var visit func(name, version string) error
	visit = func(name, version string) error {
		key := name + "@" + version
		if visited[key] {
			return nil
		}
		visited[key] = true

		repo, pkg, ok := r.reg.FindPackage(name)
		if !ok {
			return fmt.Errorf("depresolve: package %q not found", name)
		}
		v, ok := pkg.FindVersion(version)
		if !ok {
			return fmt.Errorf("depresolve: version %q of %q not found", version, name)
		}

		resolved = append(resolved, ResolvedDependency{Name: name, Version: version, RepoURL: repo.URL, Path: v.Path})

		deps, pyd, _, err := registry.Reconstruct(pkg, version)
		if err != nil {
			return err
		}

		ResolvePythonDependenciesLastWriterWins(pyDeps, pyd)

		for _, d := range deps {
			c, err := ParseConstraint(d.Version)
			if err != nil {
				return fmt.Errorf("depresolve: dependency %q of %q: %w", d.Name, name, err)
			}
			depVersion, found := r.FindLatestVersion(d.Name, c)
			if !found {
				return fmt.Errorf("depresolve: no version of %q satisfies %q (required by %q)", d.Name, d.Version, name)
			}
			if err := visit(d.Name, depVersion); err != nil {
				return err
			}
		}
		return nil
	}

	if err := visit(name, version); err != nil {
		return nil, nil, err
	}
	return resolved, pyDeps, nil
}

// ResolvePythonDependenciesLastWriterWins merges newly discovered Python
// dependency versions into acc, overwriting any existing entry for the
// same name. This is a faithful preservation of the original resolver's
// conflict policy (whichever package's dependency is visited last in
// the DFS wins, with no constraint-compatibility check across
// requesters) — not a fix. A real conflict-resolution pass (intersecting
// constraints, or erroring on incompatible requests) is a follow-up.
func ResolvePythonDependenciesLastWriterWins(acc map[string]string, incoming []registry.PyDependency) {
	for _, d := range incoming {
		acc[d.Name] = d.Version
	}
}

// CheckCircularDependencies performs a DFS over the Hatch-dependency
// graph starting at (name, version), returning whether a cycle exists and
// the cycle itself as a sequence of package names, using a path-stack so
// the cycle is reported from its entry point forward (matching the
// original's path[cycle_start_idx:] + [pkg_id] extraction).
func (r *Resolver) CheckCircularDependencies(name, version string) (bool, []string) {
	var path []string
	pathIndex := make(map[string]int)
	safe := make(map[string]bool)

	var visit func(name, version string) (bool, []string)
	visit = func(name, version string) (bool, []string) {
		id := name + "@" + version
		if safe[id] {
			return false, nil
		}
		if idx, onPath := pathIndex[id]; onPath {
			cycle := append(append([]string{}, path[idx:]...), name)
			return true, cycle
		}

		pathIndex[id] = len(path)
		path = append(path, name)
		defer func() {
			delete(pathIndex, id)
			path = path[:len(path)-1]
		}()

		_, pkg, ok := r.reg.FindPackage(name)
		if !ok {
			safe[id] = true
			return false, nil
		}
		deps, _, _, err := registry.Reconstruct(pkg, version)
		if err != nil {
			safe[id] = true
			return false, nil
		}
		for _, d := range deps {
			c, err := ParseConstraint(d.Version)
			if err != nil {
				continue
			}
			depVersion, found := r.FindLatestVersion(d.Name, c)
			if !found {
				continue
			}
			if cyclic, cyclePath := visit(d.Name, depVersion); cyclic {
				return true, cyclePath
			}
		}
		safe[id] = true
		return false, nil
	}

	return visit(name, version)
}
