package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store persists a Registry to a single JSON file, written atomically
// (write to a temp file in the same directory, then rename) so a crash
// mid-write never leaves a corrupt registry on disk.
type Store struct {
	path string
	reg  *Registry
}

// Load reads the registry JSON document at path. A missing file yields an
// empty Registry rather than an error, matching a freshly initialized
// installation.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Store{path: path, reg: &Registry{SchemaVersion: 1, LastUpdated: time.Time{}}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry: read %q: %w", path, err)
	}
	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("registry: parse %q: %w", path, err)
	}
	return &Store{path: path, reg: &reg}, nil
}

// Registry returns the in-memory document. Callers must call Save after
// mutating it.
func (s *Store) Registry() *Registry { return s.reg }

// Save writes the registry document atomically.
func (s *Store) Save() error {
	s.reg.LastUpdated = time.Now()
	data, err := json.MarshalIndent(s.reg, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: marshal: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".registry-*.json.tmp")
	if err != nil {
		return fmt.Errorf("registry: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("registry: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("registry: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("registry: rename temp file: %w", err)
	}
	return nil
}

// AddRepository registers a repository at the given URL, appending it if
// absent. It is idempotent: a second call for a name that already exists
// is a no-op and reports added=false ("already exists"), rather than
// overwriting the recorded URL.
func (s *Store) AddRepository(name, url string) (added bool) {
	for i := range s.reg.Repositories {
		if s.reg.Repositories[i].Name == name {
			return false
		}
	}
	s.reg.Repositories = append(s.reg.Repositories, Repository{
		Name:        name,
		URL:         url,
		LastIndexed: time.Now(),
	})
	return true
}

// AddPackage adds a new package with no versions yet to the named
// repository, creating the repository if it does not already exist.
func (s *Store) AddPackage(repoName string, pkg Package) {
	for i := range s.reg.Repositories {
		if s.reg.Repositories[i].Name == repoName {
			s.reg.Repositories[i].Packages = append(s.reg.Repositories[i].Packages, pkg)
			return
		}
	}
	s.reg.Repositories = append(s.reg.Repositories, Repository{
		Name:        repoName,
		Packages:    []Package{pkg},
		LastIndexed: time.Now(),
	})
}

// AddPackageVersion appends a new version to an existing package. If the
// package already has a latest version, the new version's dependency sets
// are diffed against it (added/removed/modified) and stored as a delta
// with BaseVersion pointing at the prior latest version. Diffing is a
// pure function of (prior full deps, new full deps); fullDeps/fullPyDeps
// are the complete dependency sets of the new version, not deltas.
func (s *Store) AddPackageVersion(repoName, pkgName string, v Version, fullDeps []Dependency, fullPyDeps []PyDependency) error {
	repo, pkg, ok := s.findMutable(repoName, pkgName)
	if !ok {
		return fmt.Errorf("registry: package %q not found in repository %q", pkgName, repoName)
	}

	if pkg.LatestVersion == "" {
		v.BaseVersion = nil
		v.DepsAdded = fullDeps
		v.PyDepsAdded = fullPyDeps
	} else {
		prior, ok := pkg.FindVersion(pkg.LatestVersion)
		if !ok {
			// Fall back to full (non-differential) storage if the
			// previously recorded latest version is missing.
			v.BaseVersion = nil
			v.DepsAdded = fullDeps
			v.PyDepsAdded = fullPyDeps
		} else {
			base := pkg.LatestVersion
			v.BaseVersion = &base
			priorDeps, priorPyDeps, _, err := Reconstruct(pkg, prior.Version)
			if err != nil {
				v.BaseVersion = nil
				v.DepsAdded = fullDeps
				v.PyDepsAdded = fullPyDeps
			} else {
				v.DepsAdded, v.DepsRemoved, v.DepsModified = diffDeps(priorDeps, fullDeps)
				v.PyDepsAdded, v.PyDepsRemoved, v.PyDepsModified = diffPyDeps(priorPyDeps, fullPyDeps)
			}
		}
	}

	pkg.Versions = append(pkg.Versions, v)
	pkg.LatestVersion = v.Version
	_ = repo
	return nil
}

func (s *Store) findMutable(repoName, pkgName string) (*Repository, *Package, bool) {
	for i := range s.reg.Repositories {
		if s.reg.Repositories[i].Name != repoName {
			continue
		}
		repo := &s.reg.Repositories[i]
		for j := range repo.Packages {
			if repo.Packages[j].Name == pkgName {
				return repo, &repo.Packages[j], true
			}
		}
	}
	return nil, nil, false
}

func diffDeps(prior, next []Dependency) (added, removed, modified []Dependency) {
	priorByName := make(map[string]Dependency, len(prior))
	for _, d := range prior {
		priorByName[d.Name] = d
	}
	nextByName := make(map[string]Dependency, len(next))
	for _, d := range next {
		nextByName[d.Name] = d
		if old, ok := priorByName[d.Name]; !ok {
			added = append(added, d)
		} else if old.Version != d.Version {
			modified = append(modified, d)
		}
	}
	for _, d := range prior {
		if _, ok := nextByName[d.Name]; !ok {
			removed = append(removed, d)
		}
	}
	return
}

func diffPyDeps(prior, next []PyDependency) (added, removed, modified []PyDependency) {
	priorByName := make(map[string]PyDependency, len(prior))
	for _, d := range prior {
		priorByName[d.Name] = d
	}
	nextByName := make(map[string]PyDependency, len(next))
	for _, d := range next {
		nextByName[d.Name] = d
		if old, ok := priorByName[d.Name]; !ok {
			added = append(added, d)
		} else if old.Version != d.Version {
			modified = append(modified, d)
		}
	}
	for _, d := range prior {
		if _, ok := nextByName[d.Name]; !ok {
			removed = append(removed, d)
		}
	}
	return
}
