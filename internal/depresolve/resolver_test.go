package depresolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hatchling-go/hatchling/internal/registry"
)

func buildRegistry() *registry.Registry {
	return &registry.Registry{
		Repositories: []registry.Repository{
			{
				Name: "core",
				Packages: []registry.Package{
					{
						Name:          "app",
						LatestVersion: "1.0.0",
						Versions: []registry.Version{
							{
								Version:   "1.0.0",
								DepsAdded: []registry.Dependency{{Name: "lib", Version: ">=1.0.0"}},
							},
						},
					},
					{
						Name:          "lib",
						LatestVersion: "1.2.0",
						Versions: []registry.Version{
							{Version: "1.0.0", DepsAdded: nil},
							{Version: "1.2.0", BaseVersion: strPtr("1.0.0")},
						},
					},
				},
			},
		},
	}
}

func strPtr(s string) *string { return &s }

func TestFindLatestVersion_GlobalSearch(t *testing.T) {
	r := NewResolver(buildRegistry())
	c, err := ParseConstraint(">=1.0.0")
	require.NoError(t, err)

	v, found := r.FindLatestVersion("lib", c)
	require.True(t, found)
	assert.Equal(t, "1.2.0", v)
}

func TestResolveDependencies_PreOrder(t *testing.T) {
	r := NewResolver(buildRegistry())
	resolved, _, err := r.ResolveDependencies("app", "1.0.0")
	require.NoError(t, err)

	require.Len(t, resolved, 2)
	assert.Equal(t, "app", resolved[0].Name, "the package itself is appended before its dependencies")
	assert.Equal(t, "lib", resolved[1].Name)
	assert.Equal(t, "1.2.0", resolved[1].Version)
}

func TestCheckCircularDependencies_DetectsCycle(t *testing.T) {
	reg := &registry.Registry{
		Repositories: []registry.Repository{
			{
				Name: "core",
				Packages: []registry.Package{
					{
						Name:          "a",
						LatestVersion: "1.0.0",
						Versions: []registry.Version{
							{Version: "1.0.0", DepsAdded: []registry.Dependency{{Name: "b", Version: ">=1.0.0"}}},
						},
					},
					{
						Name:          "b",
						LatestVersion: "1.0.0",
						Versions: []registry.Version{
							{Version: "1.0.0", DepsAdded: []registry.Dependency{{Name: "a", Version: ">=1.0.0"}}},
						},
					},
				},
			},
		},
	}
	r := NewResolver(reg)
	cyclic, cycle := r.CheckCircularDependencies("a", "1.0.0")
	assert.True(t, cyclic)
	assert.Contains(t, cycle, "a")
	assert.Contains(t, cycle, "b")
}

func TestResolvePythonDependenciesLastWriterWins(t *testing.T) {
	acc := map[string]string{"requests": "2.0.0"}
	ResolvePythonDependenciesLastWriterWins(acc, []registry.PyDependency{{Name: "requests", Version: "2.5.0"}})
	assert.Equal(t, "2.5.0", acc["requests"], "later visit overwrites, no compatibility check")
}

func TestGetMissingHatchDependencies(t *testing.T) {
	deps := []registry.Dependency{{Name: "lib", Version: ">=2.0.0"}, {Name: "ghost", Version: "*"}}
	available := map[string][]string{"lib": {"1.0.0"}}
	missing := GetMissingHatchDependencies(deps, available)

	require.Len(t, missing, 2)
	reasons := map[string]MissingReason{}
	for _, m := range missing {
		reasons[m.Name] = m.Reason
	}
	assert.Equal(t, ReasonVersionMismatch, reasons["lib"])
	assert.Equal(t, ReasonNotFound, reasons["ghost"])
}
