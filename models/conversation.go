package models

import "strings"

// ChatRole identifies the author of a conversation turn.
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatTurn is one message in a session's conversation history.
type ChatTurn struct {
	Role    ChatRole `json:"role"`
	Message string   `json:"message"`
}

// Conversation is the explicit per-session context passed into each pipeline
// call. It replaces ambient session state so the pipeline stays a pure
// function of its inputs.
type Conversation struct {
	Turns []ChatTurn `json:"turns"`
}

// HistoryText renders the conversation as the ユーザー/ボット transcript the
// prompts expect. Returns "" for an empty conversation.
func (c Conversation) HistoryText() string {
	if len(c.Turns) == 0 {
		return ""
	}
	var b strings.Builder
	for _, t := range c.Turns {
		switch t.Role {
		case RoleAssistant:
			b.WriteString("ボット: ")
		default:
			b.WriteString("ユーザー: ")
		}
		b.WriteString(t.Message)
		b.WriteString("\n")
	}
	return b.String()
}
