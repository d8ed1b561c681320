// Package chat implements the Chat Session: per-session turn history plus
// the send-message flow that drives the tool execution manager's chain
// controller and formats the final/partial answer.
package chat

import (
	"time"

	"github.com/hatchling-go/hatchling/internal/llmapi"
)

// Turn represents one complete exchange (user question + assistant answer).
type Turn struct {
	UserMsg   string
	Assistant string
	UsedTools bool
}

// ToMessages converts session turns into a provider message list, trimming
// the oldest turns until the total character count is within budget.
// budget == 0 means no limit. At least the newest turn is always included,
// even when it alone exceeds the budget.
func ToMessages(turns []Turn, budget int, summary ...string) []llmapi.Message {
	if len(turns) == 0 && (len(summary) == 0 || summary[0] == "") {
		return nil
	}

	start := 0
	if budget > 0 && len(turns) > 0 {
		total := 0
		for i := len(turns) - 1; i >= 0; i-- {
			cost := len([]rune(turns[i].UserMsg)) + len([]rune(turns[i].Assistant))
			if total+cost > budget {
				start = i + 1
				break
			}
			total += cost
		}
		if start >= len(turns) {
			start = len(turns) - 1
		}
	}

	var msgs []llmapi.Message
	if len(summary) > 0 && summary[0] != "" {
		msgs = append(msgs, llmapi.Message{Role: llmapi.RoleSystem, Content: "[conversation summary]\n" + summary[0]})
	}
	for _, t := range turns[start:] {
		msgs = append(msgs,
			llmapi.Message{Role: llmapi.RoleUser, Content: t.UserMsg},
			llmapi.Message{Role: llmapi.RoleAssistant, Content: t.Assistant},
		)
	}
	return msgs
}

// minCleanupInterval prevents a degenerate ticker interval.
const minCleanupInterval = time.Millisecond
