package llmapi

import (
	"encoding/json"
	"sort"
	"strings"
)

// DecodeStream drives dec to completion, forwarding content deltas to
// onChunk as they arrive and accumulating tool-call deltas by Index into
// complete ToolCall values. The same accumulation runs regardless of
// which wire format dec wraps, so both providers share this one driver
// rather than each reimplementing it.
func DecodeStream(dec StreamDecoder, onChunk StreamCallback) (Message, error) {
	var content strings.Builder

	type partial struct {
		id, name string
		args     strings.Builder
	}
	calls := make(map[int]*partial)
	var order []int

	for dec.Next() {
		if d := dec.ContentDelta(); d != "" {
			content.WriteString(d)
			if onChunk != nil {
				onChunk(d)
			}
		}
		if tcd, ok := dec.ToolCallDelta(); ok {
			p, seen := calls[tcd.Index]
			if !seen {
				p = &partial{}
				calls[tcd.Index] = p
				order = append(order, tcd.Index)
			}
			if tcd.ID != "" {
				p.id = tcd.ID
			}
			if tcd.Name != "" {
				p.name = tcd.Name
			}
			p.args.WriteString(tcd.ArgumentsFragment)
		}
	}
	if err := dec.Err(); err != nil {
		return Message{}, err
	}

	sort.Ints(order)
	msg := Message{Role: RoleAssistant, Content: content.String()}
	for _, idx := range order {
		p := calls[idx]
		args := p.args.String()
		if args == "" {
			args = "{}"
		}
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{ID: p.id, Name: p.name, Arguments: json.RawMessage(args)})
	}
	return msg, nil
}
