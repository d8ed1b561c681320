package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger_FiltersBelowLevel(t *testing.T) {
	l := New(LevelWarn, 10)
	l.Infof("should be dropped")
	l.Warnf("should be kept")
	assert.Equal(t, []string{"[warn] should be kept"}, l.Recent(10))
}

func TestLogger_RingBufferCapsRetention(t *testing.T) {
	l := New(LevelDebug, 2)
	l.Infof("one")
	l.Infof("two")
	l.Infof("three")
	assert.Equal(t, []string{"[info] two", "[info] three"}, l.Recent(10))
}

func TestLogger_SetLevelChangesFilter(t *testing.T) {
	l := New(LevelError, 10)
	l.Warnf("dropped")
	l.SetLevel(LevelDebug)
	l.Warnf("kept")
	assert.Equal(t, []string{"[warn] kept"}, l.Recent(10))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("warn"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("whatever"))
}
