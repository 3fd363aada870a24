package models

import (
	"encoding/json"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// PartType tags one segment of a message.
type PartType string

const (
	PartTypeText      PartType = "text"
	PartTypeReasoning PartType = "reasoning"
	PartTypeData      PartType = "data"
)

// MessagePart is one typed segment of a message. Text and reasoning parts
// carry Text; data parts carry an opaque JSON payload (tool results etc.).
type MessagePart struct {
	Type PartType        `json:"type"`
	Text string          `json:"text,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MessageMetadata is persisted alongside the parts.
type MessageMetadata struct {
	CreatedAt time.Time `json:"createdAt"`
}

// Message is one entry in a chat's append-only message log. Messages are
// never mutated after persistence; they are removed only when their chat
// is deleted.
type Message struct {
	ID        string          `json:"id"`
	ChatID    string          `json:"chatId"`
	Role      Role            `json:"role"`
	Parts     []MessagePart   `json:"parts"`
	Metadata  MessageMetadata `json:"metadata"`
	CreatedAt time.Time       `json:"createdAt"`
}

// FirstText returns the text of the first text part, or "".
func (m *Message) FirstText() string {
	for _, p := range m.Parts {
		if p.Type == PartTypeText {
			return p.Text
		}
	}
	return ""
}
