package env

import (
	"archive/zip"
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hatchling-go/hatchling/internal/depresolve"
	"github.com/hatchling-go/hatchling/internal/pkgloader"
	"github.com/hatchling-go/hatchling/internal/registry"
)

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newTestManager(t *testing.T) (*Manager, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	loader := pkgloader.New(fs, "/root/.hatch/cache", nil)
	reg := &registry.Registry{}
	resolver := depresolve.NewResolver(reg)
	mgr, err := New(fs, "/root/.hatch", loader, resolver)
	require.NoError(t, err)
	return mgr, fs
}

func TestNew_CreatesDefaultEnvironment(t *testing.T) {
	mgr, _ := newTestManager(t)
	assert.True(t, mgr.EnvironmentExists(DefaultEnvironment))
	assert.Equal(t, DefaultEnvironment, mgr.CurrentEnvironment())
}

func TestCreateAndSwitchEnvironment(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.CreateEnvironment("staging", "staging env"))
	assert.True(t, mgr.EnvironmentExists("staging"))

	require.NoError(t, mgr.SwitchEnvironment("staging"))
	assert.Equal(t, "staging", mgr.CurrentEnvironment())
}

func TestCreateEnvironment_RejectsDuplicateAndInvalidNames(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.CreateEnvironment("dev", ""))
	assert.Error(t, mgr.CreateEnvironment("dev", ""))
	assert.Error(t, mgr.CreateEnvironment("has space", ""))
}

func TestRemoveEnvironment_DefaultIsProtected(t *testing.T) {
	mgr, _ := newTestManager(t)
	assert.Error(t, mgr.RemoveEnvironment(DefaultEnvironment))
}

func TestRemoveEnvironment_SwitchesAwayIfCurrent(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.CreateEnvironment("staging", ""))
	require.NoError(t, mgr.SwitchEnvironment("staging"))
	require.NoError(t, mgr.RemoveEnvironment("staging"))
	assert.Equal(t, DefaultEnvironment, mgr.CurrentEnvironment())
}

func TestAddLocalPackage_InstallsFromMetadata(t *testing.T) {
	mgr, fs := newTestManager(t)
	require.NoError(t, afero.WriteFile(fs, "/pkgsrc/hatch_metadata.json",
		[]byte(`{"name":"widgets","version":"1.0.0","dependencies":[],"python_dependencies":[]}`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/pkgsrc/main.py", []byte("print('hi')"), 0o644))

	require.NoError(t, mgr.AddLocalPackage(DefaultEnvironment, "/pkgsrc"))

	pkgs, err := mgr.ListPackagesInEnvironment(DefaultEnvironment)
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, "widgets", pkgs[0].Name)
	assert.Equal(t, SourceLocal, pkgs[0].Source.Type)

	content, err := afero.ReadFile(fs, pkgs[0].Path+"/main.py")
	require.NoError(t, err)
	assert.Equal(t, "print('hi')", string(content))
}

func TestRemovePackageFromEnvironment(t *testing.T) {
	mgr, fs := newTestManager(t)
	require.NoError(t, afero.WriteFile(fs, "/pkgsrc/hatch_metadata.json",
		[]byte(`{"name":"widgets","version":"1.0.0"}`), 0o644))
	require.NoError(t, mgr.AddLocalPackage(DefaultEnvironment, "/pkgsrc"))

	require.NoError(t, mgr.RemovePackageFromEnvironment(DefaultEnvironment, "widgets"))
	pkgs, err := mgr.ListPackagesInEnvironment(DefaultEnvironment)
	require.NoError(t, err)
	assert.Empty(t, pkgs)
}

func TestRemovePackageFromEnvironment_NotInstalled(t *testing.T) {
	mgr, _ := newTestManager(t)
	assert.Error(t, mgr.RemovePackageFromEnvironment(DefaultEnvironment, "ghost"))
}

func TestAddRegistryPackage_DownloadsFromTheRegistrysRepositoryURL(t *testing.T) {
	archive := zipArchive(t, map[string]string{"main.py": "print('hi')"})
	var requestedPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.Path
		w.Write(archive)
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	loader := pkgloader.New(fs, "/root/.hatch/cache", srv.Client())
	reg := &registry.Registry{
		Repositories: []registry.Repository{{
			Name: "core",
			URL:  srv.URL,
			Packages: []registry.Package{{
				Name:          "widgets",
				LatestVersion: "1.0.0",
				Versions: []registry.Version{{
					Version: "1.0.0",
					Path:    "/pkgs/widgets-1.0.0.zip",
				}},
			}},
		}},
	}
	resolver := depresolve.NewResolver(reg)
	mgr, err := New(fs, "/root/.hatch", loader, resolver)
	require.NoError(t, err)

	require.NoError(t, mgr.AddRegistryPackage(DefaultEnvironment, "widgets", "1.0.0"))
	assert.Equal(t, "/pkgs/widgets-1.0.0.zip", requestedPath, "downloads from the repository URL + the version's recorded path")

	pkgs, err := mgr.ListPackagesInEnvironment(DefaultEnvironment)
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	assert.Equal(t, "widgets", pkgs[0].Name)
	assert.Equal(t, SourceRegistry, pkgs[0].Source.Type)
}

func TestAddRegistryPackage_FailsWithoutRepositoryURL(t *testing.T) {
	fs := afero.NewMemMapFs()
	loader := pkgloader.New(fs, "/root/.hatch/cache", nil)
	reg := &registry.Registry{
		Repositories: []registry.Repository{{
			Name: "core",
			Packages: []registry.Package{{
				Name:          "widgets",
				LatestVersion: "1.0.0",
				Versions:      []registry.Version{{Version: "1.0.0"}},
			}},
		}},
	}
	resolver := depresolve.NewResolver(reg)
	mgr, err := New(fs, "/root/.hatch", loader, resolver)
	require.NoError(t, err)

	assert.Error(t, mgr.AddRegistryPackage(DefaultEnvironment, "widgets", "1.0.0"))
}
