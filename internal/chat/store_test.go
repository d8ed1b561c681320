package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AppendTurnEnforcesMaxTurns(t *testing.T) {
	s := NewStore(time.Hour, 2)
	defer s.Close()

	s.AppendTurn("sess-1", Turn{UserMsg: "q1", Assistant: "a1"})
	s.AppendTurn("sess-1", Turn{UserMsg: "q2", Assistant: "a2"})
	s.AppendTurn("sess-1", Turn{UserMsg: "q3", Assistant: "a3"})

	turns, _ := s.GetSessionContext("sess-1")
	require.Len(t, turns, 2)
	assert.Equal(t, "q2", turns[0].UserMsg)
	assert.Equal(t, "q3", turns[1].UserMsg)
}

func TestStore_Compact(t *testing.T) {
	s := NewStore(time.Hour, 10)
	defer s.Close()

	for i := 0; i < 5; i++ {
		s.AppendTurn("sess-1", Turn{UserMsg: "q", Assistant: "a"})
	}
	compacted := s.Compact("sess-1", "summary text", 2)
	assert.Equal(t, 3, compacted)

	turns, summary := s.GetSessionContext("sess-1")
	assert.Len(t, turns, 2)
	assert.Equal(t, "summary text", summary)
}

func TestStore_DeleteRemovesSession(t *testing.T) {
	s := NewStore(time.Hour, 10)
	defer s.Close()

	s.AppendTurn("sess-1", Turn{UserMsg: "q", Assistant: "a"})
	require.Equal(t, 1, s.Count())
	s.Delete("sess-1")
	assert.Equal(t, 0, s.Count())
}

func TestStore_GetSessionContext_UnknownSessionIsEmpty(t *testing.T) {
	s := NewStore(time.Hour, 10)
	defer s.Close()
	turns, summary := s.GetSessionContext("ghost")
	assert.Nil(t, turns)
	assert.Empty(t, summary)
}
