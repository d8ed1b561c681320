package llmapi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStreamDecoder drives DecodeStream from a canned event list, standing
// in for either provider's real decoder.
type fakeStreamDecoder struct {
	events []fakeEvent
	i      int
	err    error
}

type fakeEvent struct {
	content string
	tc      *ToolCallDelta
}

func (f *fakeStreamDecoder) Next() bool {
	if f.i >= len(f.events) {
		return false
	}
	f.i++
	return true
}

func (f *fakeStreamDecoder) Err() error { return f.err }
func (f *fakeStreamDecoder) IsDone() bool {
	return f.i == len(f.events)
}
func (f *fakeStreamDecoder) ContentDelta() string {
	return f.events[f.i-1].content
}
func (f *fakeStreamDecoder) ToolCallDelta() (ToolCallDelta, bool) {
	tc := f.events[f.i-1].tc
	if tc == nil {
		return ToolCallDelta{}, false
	}
	return *tc, true
}

func TestDecodeStream_AccumulatesContentAndFiresOnChunk(t *testing.T) {
	dec := &fakeStreamDecoder{events: []fakeEvent{
		{content: "hel"}, {content: "lo"},
	}}
	var chunks []string
	msg, err := DecodeStream(dec, func(c string) { chunks = append(chunks, c) })
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, []string{"hel", "lo"}, chunks)
	assert.Equal(t, RoleAssistant, msg.Role)
}

func TestDecodeStream_ConcatenatesToolCallArgumentsByIndex(t *testing.T) {
	dec := &fakeStreamDecoder{events: []fakeEvent{
		{tc: &ToolCallDelta{Index: 0, ID: "call_1", Name: "search"}},
		{tc: &ToolCallDelta{Index: 0, ArgumentsFragment: `{"q":`}},
		{tc: &ToolCallDelta{Index: 0, ArgumentsFragment: `"go"}`}},
	}}
	msg, err := DecodeStream(dec, nil)
	require.NoError(t, err)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "call_1", msg.ToolCalls[0].ID)
	assert.Equal(t, "search", msg.ToolCalls[0].Name)
	assert.JSONEq(t, `{"q":"go"}`, string(msg.ToolCalls[0].Arguments))
}

func TestDecodeStream_InterleavedToolCallsStayInIndexOrder(t *testing.T) {
	dec := &fakeStreamDecoder{events: []fakeEvent{
		{tc: &ToolCallDelta{Index: 1, ID: "call_b", Name: "second", ArgumentsFragment: `{}`}},
		{tc: &ToolCallDelta{Index: 0, ID: "call_a", Name: "first", ArgumentsFragment: `{}`}},
	}}
	msg, err := DecodeStream(dec, nil)
	require.NoError(t, err)
	require.Len(t, msg.ToolCalls, 2)
	assert.Equal(t, "first", msg.ToolCalls[0].Name)
	assert.Equal(t, "second", msg.ToolCalls[1].Name)
}

func TestDecodeStream_CompleteRecordDeltaNeedsNoConcatenation(t *testing.T) {
	dec := &fakeStreamDecoder{events: []fakeEvent{
		{tc: &ToolCallDelta{Index: 0, Name: "lookup", ArgumentsFragment: `{"id":1}`}},
	}}
	msg, err := DecodeStream(dec, nil)
	require.NoError(t, err)
	require.Len(t, msg.ToolCalls, 1)
	assert.JSONEq(t, `{"id":1}`, string(msg.ToolCalls[0].Arguments))
}

func TestDecodeStream_PropagatesDecoderError(t *testing.T) {
	dec := &fakeStreamDecoder{err: errors.New("boom")}
	_, err := DecodeStream(dec, nil)
	assert.ErrorContains(t, err, "boom")
}

func TestDecodeStream_EmptyArgumentsDefaultToEmptyObject(t *testing.T) {
	dec := &fakeStreamDecoder{events: []fakeEvent{
		{tc: &ToolCallDelta{Index: 0, Name: "noop"}},
	}}
	msg, err := DecodeStream(dec, nil)
	require.NoError(t, err)
	require.Len(t, msg.ToolCalls, 1)
	assert.JSONEq(t, `{}`, string(msg.ToolCalls[0].Arguments))
}
