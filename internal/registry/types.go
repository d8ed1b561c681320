// Package registry implements the Registry Store: a JSON document
// describing repositories of packages, each with a differentially-stored
// version chain (a version's dependency set is recorded as an add/remove/
// modify delta against its base_version, except the first version of a
// package, which is stored in full).
package registry

import "time"

// Registry is the top-level JSON document.
type Registry struct {
	SchemaVersion int          `json:"schema_version"`
	LastUpdated   time.Time    `json:"last_updated"`
	Repositories  []Repository `json:"repositories"`
}

// Repository groups packages published from one source.
type Repository struct {
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Packages    []Package `json:"packages"`
	LastIndexed time.Time `json:"last_indexed"`
}

// Package is one named package and all of its published versions.
type Package struct {
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	Tags          []string  `json:"tags"`
	LatestVersion string    `json:"latest_version"`
	Versions      []Version `json:"versions"`
}

// Dependency is a single Hatch-package dependency with a version
// constraint expression (e.g. ">=1.2.0").
type Dependency struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// PyDependency is a single Python package dependency.
type PyDependency struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Version is one published version of a package. BaseVersion is nil for
// the first version of a package (dependencies stored in full via
// DepsAdded/PyDepsAdded); every later version stores a delta against its
// BaseVersion.
type Version struct {
	Version      string            `json:"version"`
	Path         string            `json:"path"`
	BaseVersion  *string           `json:"base_version,omitempty"`
	AddedDate    time.Time         `json:"added_date"`
	Artifacts    []string          `json:"artifacts,omitempty"`

	DepsAdded    []Dependency `json:"dependencies_added,omitempty"`
	DepsRemoved  []Dependency `json:"dependencies_removed,omitempty"`
	DepsModified []Dependency `json:"dependencies_modified,omitempty"`

	PyDepsAdded    []PyDependency `json:"python_dependencies_added,omitempty"`
	PyDepsRemoved  []PyDependency `json:"python_dependencies_removed,omitempty"`
	PyDepsModified []PyDependency `json:"python_dependencies_modified,omitempty"`

	CompatibilityChanges map[string]string `json:"compatibility_changes,omitempty"`
}

// FindPackage returns the named package and the repository it belongs to,
// searching every repository in order.
func (r *Registry) FindPackage(name string) (*Repository, *Package, bool) {
	for i := range r.Repositories {
		repo := &r.Repositories[i]
		for j := range repo.Packages {
			if repo.Packages[j].Name == name {
				return repo, &repo.Packages[j], true
			}
		}
	}
	return nil, nil, false
}

// FindVersion returns the named version of the named package.
func (p *Package) FindVersion(version string) (*Version, bool) {
	for i := range p.Versions {
		if p.Versions[i].Version == version {
			return &p.Versions[i], true
		}
	}
	return nil, false
}
