package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pkgWithChain() *Package {
	v1 := "1.0.0"
	v2 := "2.0.0"
	return &Package{
		Name:          "widgets",
		LatestVersion: "3.0.0",
		Versions: []Version{
			{
				Version:     "1.0.0",
				BaseVersion: nil,
				DepsAdded:   []Dependency{{Name: "a", Version: ">=1.0.0"}, {Name: "b", Version: ">=1.0.0"}},
			},
			{
				Version:              "2.0.0",
				BaseVersion:          &v1,
				DepsRemoved:          []Dependency{{Name: "b", Version: ">=1.0.0"}},
				DepsModified:         []Dependency{{Name: "a", Version: ">=1.1.0"}},
				DepsAdded:            []Dependency{{Name: "c", Version: ">=1.0.0"}},
				CompatibilityChanges: map[string]string{"python": ">=3.9"},
			},
			{
				Version:     "3.0.0",
				BaseVersion: &v2,
				DepsAdded:   []Dependency{{Name: "d", Version: ">=1.0.0"}},
			},
		},
	}
}

func TestReconstruct_AppliesChainInOrder(t *testing.T) {
	pkg := pkgWithChain()
	deps, _, compat, err := Reconstruct(pkg, "3.0.0")
	require.NoError(t, err)

	byName := make(map[string]Dependency)
	for _, d := range deps {
		byName[d.Name] = d
	}

	assert.Len(t, deps, 3, "b was removed at 2.0.0, a/c/d remain")
	assert.Equal(t, ">=1.1.0", byName["a"].Version, "a was modified at 2.0.0")
	assert.Contains(t, byName, "c")
	assert.Contains(t, byName, "d")
	assert.NotContains(t, byName, "b")
	assert.Equal(t, ">=3.9", compat["python"], "compatibility_changes from 2.0.0 is overlaid")
}

func TestReconstruct_FirstVersionIsFullStorage(t *testing.T) {
	pkg := pkgWithChain()
	deps, _, _, err := Reconstruct(pkg, "1.0.0")
	require.NoError(t, err)
	assert.Len(t, deps, 2)
}

func TestReconstruct_MissingBaseVersionIsCorruption(t *testing.T) {
	missingBase := "9.9.9"
	pkg := &Package{
		Name: "broken",
		Versions: []Version{
			{Version: "1.0.0", BaseVersion: &missingBase},
		},
	}
	_, _, _, err := Reconstruct(pkg, "1.0.0")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRegistryCorruption))
}

func TestReconstruct_CyclicChainIsCorruption(t *testing.T) {
	a := "b"
	b := "a"
	pkg := &Package{
		Name: "cyclic",
		Versions: []Version{
			{Version: "a", BaseVersion: &a},
			{Version: "b", BaseVersion: &b},
		},
	}
	_, _, _, err := Reconstruct(pkg, "a")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRegistryCorruption))
}
