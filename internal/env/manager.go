package env

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/hatchling-go/hatchling/internal/depresolve"
	"github.com/hatchling-go/hatchling/internal/pkgloader"
	"github.com/hatchling-go/hatchling/internal/registry"
)

// hatchMetadata is the subset of a local package's hatch_metadata.json
// this manager needs to recursively install its dependencies.
type hatchMetadata struct {
	Name                string                 `json:"name"`
	Version             string                 `json:"version"`
	HatchDependencies   []registry.Dependency  `json:"dependencies"`
	PythonDependencies  []registry.PyDependency `json:"python_dependencies"`
}

// Manager owns environments.json and the current-environment pointer
// file, loading both once into memory and keeping them in sync on every
// mutation.
type Manager struct {
	fs       afero.Fs
	rootDir  string // directory holding environments.json, current_env, and per-env package dirs
	envsPath string
	curPath  string

	environments map[string]Environment
	currentName  string

	loader   *pkgloader.Loader
	resolver *depresolve.Resolver
}

// New creates a Manager rooted at rootDir, loading (or initializing)
// environments.json and the current-environment pointer file.
func New(fs afero.Fs, rootDir string, loader *pkgloader.Loader, resolver *depresolve.Resolver) (*Manager, error) {
	m := &Manager{
		fs:       fs,
		rootDir:  rootDir,
		envsPath: filepath.Join(rootDir, "environments.json"),
		curPath:  filepath.Join(rootDir, "current_env"),
		loader:   loader,
		resolver: resolver,
	}
	if err := fs.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("env: create root dir: %w", err)
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) load() error {
	data, err := afero.ReadFile(m.fs, m.envsPath)
	if err != nil {
		m.environments = map[string]Environment{
			DefaultEnvironment: {Name: DefaultEnvironment, Description: "Default environment", CreatedAt: time.Now()},
		}
		if err := m.save(); err != nil {
			return err
		}
	} else {
		var doc document
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("env: parse environments.json: %w", err)
		}
		m.environments = doc.Environments
		if m.environments == nil {
			m.environments = make(map[string]Environment)
		}
		if _, ok := m.environments[DefaultEnvironment]; !ok {
			m.environments[DefaultEnvironment] = Environment{Name: DefaultEnvironment, CreatedAt: time.Now()}
		}
	}

	cur, err := afero.ReadFile(m.fs, m.curPath)
	if err != nil {
		m.currentName = DefaultEnvironment
		return m.saveCurrent()
	}
	m.currentName = strings.TrimSpace(string(cur))
	if m.currentName == "" {
		m.currentName = DefaultEnvironment
	}
	return nil
}

func (m *Manager) save() error {
	doc := document{Environments: m.environments}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("env: marshal environments.json: %w", err)
	}
	return afero.WriteFile(m.fs, m.envsPath, data, 0o644)
}

func (m *Manager) saveCurrent() error {
	return afero.WriteFile(m.fs, m.curPath, []byte(m.currentName), 0o644)
}

// CreateEnvironment creates a new named environment. Names must consist
// solely of alphanumerics and underscores.
func (m *Manager) CreateEnvironment(name, description string) error {
	if !isValidName(name) {
		return fmt.Errorf("env: invalid environment name %q", name)
	}
	if _, exists := m.environments[name]; exists {
		return fmt.Errorf("env: environment %q already exists", name)
	}
	m.environments[name] = Environment{Name: name, Description: description, CreatedAt: time.Now()}
	return m.save()
}

func isValidName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

// RemoveEnvironment deletes a named environment. The default environment
// can never be removed. If the removed environment was current, current
// switches to the default environment.
func (m *Manager) RemoveEnvironment(name string) error {
	if name == DefaultEnvironment {
		return fmt.Errorf("env: cannot remove the default environment")
	}
	if _, exists := m.environments[name]; !exists {
		return fmt.Errorf("env: environment %q does not exist", name)
	}
	delete(m.environments, name)
	if m.currentName == name {
		m.currentName = DefaultEnvironment
		if err := m.saveCurrent(); err != nil {
			return err
		}
	}
	_ = m.fs.RemoveAll(m.GetEnvironmentPath(name))
	return m.save()
}

// EnvironmentExists reports whether name has been created.
func (m *Manager) EnvironmentExists(name string) bool {
	_, ok := m.environments[name]
	return ok
}

// SwitchEnvironment sets the current environment pointer.
func (m *Manager) SwitchEnvironment(name string) error {
	if !m.EnvironmentExists(name) {
		return fmt.Errorf("env: environment %q does not exist", name)
	}
	m.currentName = name
	return m.saveCurrent()
}

// CurrentEnvironment returns the name of the active environment.
func (m *Manager) CurrentEnvironment() string { return m.currentName }

// ListEnvironments returns every environment name along with whether it
// is the current one.
func (m *Manager) ListEnvironments() map[string]bool {
	out := make(map[string]bool, len(m.environments))
	for name := range m.environments {
		out[name] = name == m.currentName
	}
	return out
}

// GetEnvironmentPath returns the directory packages for name are
// installed into.
func (m *Manager) GetEnvironmentPath(name string) string {
	return filepath.Join(m.rootDir, "envs", name)
}

// ListPackagesInEnvironment returns the installed packages of name.
func (m *Manager) ListPackagesInEnvironment(name string) ([]InstalledPackage, error) {
	e, ok := m.environments[name]
	if !ok {
		return nil, fmt.Errorf("env: environment %q does not exist", name)
	}
	return e.Packages, nil
}

// RemovePackageFromEnvironment deletes a package's installed files and
// its record from the named environment.
func (m *Manager) RemovePackageFromEnvironment(envName, packageName string) error {
	e, ok := m.environments[envName]
	if !ok {
		return fmt.Errorf("env: environment %q does not exist", envName)
	}
	idx := -1
	for i, p := range e.Packages {
		if p.Name == packageName {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("env: package %q not installed in %q", packageName, envName)
	}
	_ = m.fs.RemoveAll(e.Packages[idx].Path)
	e.Packages = append(e.Packages[:idx], e.Packages[idx+1:]...)
	m.environments[envName] = e
	return m.save()
}

// AddLocalPackage installs a local package directory (and its missing
// Hatch dependencies, recursively, before the package itself) into
// envName, reading hatch_metadata.json from sourcePath.
func (m *Manager) AddLocalPackage(envName, sourcePath string) error {
	e, ok := m.environments[envName]
	if !ok {
		return fmt.Errorf("env: environment %q does not exist", envName)
	}

	metaBytes, err := afero.ReadFile(m.fs, filepath.Join(sourcePath, "hatch_metadata.json"))
	if err != nil {
		return fmt.Errorf("env: read hatch_metadata.json: %w", err)
	}
	var meta hatchMetadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return fmt.Errorf("env: parse hatch_metadata.json: %w", err)
	}

	installed := installedVersions(e)
	missing := depresolve.GetMissingHatchDependencies(meta.HatchDependencies, installed)
	for _, dep := range missing {
		if err := m.installMissingDependency(&e, dep); err != nil {
			return fmt.Errorf("env: install dependency %q: %w", dep.Name, err)
		}
	}
	// Dependency installs record themselves in m.environments; pick up
	// those records before adding the package itself.
	e = m.environments[envName]

	target := m.GetEnvironmentPath(envName)
	installedPath, err := m.loader.InstallLocalPackage(sourcePath, target, meta.Name)
	if err != nil {
		return err
	}

	e = upsertPackage(e, InstalledPackage{
		Name:      meta.Name,
		Version:   meta.Version,
		AddedDate: time.Now(),
		Path:      installedPath,
		Source:    PackageSource{Type: SourceLocal, URI: "file://" + sourcePath},
	})
	m.environments[envName] = e
	return m.save()
}

// AddRegistryPackage resolves the full transitive dependency tree of
// (packageName, version) and installs every package in the tree, in
// dependency-first order (the resolver's DFS already appends a package
// before its dependencies, so installation proceeds in reverse of that
// list), each into envName.
func (m *Manager) AddRegistryPackage(envName, packageName, version string) error {
	e, ok := m.environments[envName]
	if !ok {
		return fmt.Errorf("env: environment %q does not exist", envName)
	}
	if m.resolver == nil {
		return fmt.Errorf("env: no registry resolver configured")
	}

	if cyclic, cycle := m.resolver.CheckCircularDependencies(packageName, version); cyclic {
		return fmt.Errorf("env: circular dependency detected: %s", strings.Join(cycle, " -> "))
	}

	resolved, _, err := m.resolver.ResolveDependencies(packageName, version)
	if err != nil {
		return fmt.Errorf("env: resolve dependencies: %w", err)
	}

	// resolved is pre-order (package, then its dependencies); install in
	// reverse so every dependency is in place before its dependent.
	for i := len(resolved) - 1; i >= 0; i-- {
		dep := resolved[i]
		if hasPackage(e, dep.Name) {
			continue
		}
		if dep.RepoURL == "" {
			return fmt.Errorf("env: no repository URL recorded for %q@%q in the registry", dep.Name, dep.Version)
		}
		downloadURL := strings.TrimRight(dep.RepoURL, "/") + "/" + strings.TrimLeft(dep.Path, "/")
		target := m.GetEnvironmentPath(envName)
		path, err := m.loader.InstallRemotePackage(downloadURL, dep.Name, dep.Version, target)
		if err != nil {
			return fmt.Errorf("env: install %q@%q: %w", dep.Name, dep.Version, err)
		}
		e = upsertPackage(e, InstalledPackage{
			Name:      dep.Name,
			Version:   dep.Version,
			AddedDate: time.Now(),
			Path:      path,
			Source:    PackageSource{Type: SourceRegistry, URI: downloadURL},
		})
	}
	m.environments[envName] = e
	return m.save()
}

func (m *Manager) installMissingDependency(e *Environment, dep depresolve.Missing) error {
	// Every missing dependency is installed from the registry: the latest
	// version satisfying its constraint is looked up by name. Local
	// file:// dependency URIs are not resolved against the filesystem;
	// a dependency that exists only locally fails here.
	if m.resolver == nil {
		return fmt.Errorf("no resolver configured to satisfy %q", dep.Name)
	}
	c, err := depresolve.ParseConstraint(dep.Constraint)
	if err != nil {
		return err
	}
	version, found := m.resolver.FindLatestVersion(dep.Name, c)
	if !found {
		return fmt.Errorf("no version of %q satisfies %q", dep.Name, dep.Constraint)
	}
	return m.AddRegistryPackage(e.Name, dep.Name, version)
}

func installedVersions(e Environment) map[string][]string {
	out := make(map[string][]string, len(e.Packages))
	for _, p := range e.Packages {
		out[p.Name] = append(out[p.Name], p.Version)
	}
	return out
}

func hasPackage(e Environment, name string) bool {
	for _, p := range e.Packages {
		if p.Name == name {
			return true
		}
	}
	return false
}

func upsertPackage(e Environment, p InstalledPackage) Environment {
	for i, existing := range e.Packages {
		if existing.Name == p.Name {
			e.Packages[i] = p
			return e
		}
	}
	e.Packages = append(e.Packages, p)
	return e
}
