package depresolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConstraint_Any(t *testing.T) {
	for _, expr := range []string{"", "*"} {
		c, err := ParseConstraint(expr)
		require.NoError(t, err)
		assert.True(t, c.Any)
	}
}

func TestParseConstraint_Operators(t *testing.T) {
	cases := []struct {
		expr string
		op   Op
		ver  []int
	}{
		{">=1.2.0", OpGE, []int{1, 2, 0}},
		{"==2", OpEQ, []int{2}},
		{"!=1.0", OpNE, []int{1, 0}},
		{"~=1.4.2", OpCompatible, []int{1, 4, 2}},
	}
	for _, tc := range cases {
		c, err := ParseConstraint(tc.expr)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.op, c.Op)
		assert.Equal(t, tc.ver, c.Version)
	}
}

func TestParseConstraint_Invalid(t *testing.T) {
	_, err := ParseConstraint("bogus")
	assert.Error(t, err)
}

func TestCompareVersions_PadsShorter(t *testing.T) {
	assert.Equal(t, 0, CompareVersions([]int{1, 2}, []int{1, 2, 0}))
	assert.Equal(t, -1, CompareVersions([]int{1, 2}, []int{1, 3}))
	assert.Equal(t, 1, CompareVersions([]int{2}, []int{1, 9, 9}))
}

func TestConstraint_IsCompatible(t *testing.T) {
	c, err := ParseConstraint(">=1.2.0")
	require.NoError(t, err)

	ok, err := c.IsCompatible("1.5.0")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.IsCompatible("1.1.0")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConstraint_CompatibleRelease(t *testing.T) {
	c, err := ParseConstraint("~=1.4.2")
	require.NoError(t, err)

	ok, _ := c.IsCompatible("1.4.5")
	assert.True(t, ok, "1.4.5 satisfies ~=1.4.2")

	ok, _ = c.IsCompatible("1.5.0")
	assert.False(t, ok, "1.5.0 changes the compatible-release prefix")

	ok, _ = c.IsCompatible("1.4.1")
	assert.False(t, ok, "below the floor version")
}

func TestSplitNameConstraint(t *testing.T) {
	name, c, err := ParseHatchDependency("my-pkg>=1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "my-pkg", name)
	assert.Equal(t, OpGE, c.Op)

	name, c, err = ParseHatchDependency("bare-name")
	require.NoError(t, err)
	assert.Equal(t, "bare-name", name)
	assert.True(t, c.Any)
}
