package models

import "time"

// Visibility controls who may read a chat.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Valid reports whether v is a known visibility value.
func (v Visibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

// Chat is one conversation. The ID is chosen by the client on the first
// message (must be a UUID) and the caller becomes the immutable owner.
type Chat struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	Title         string     `json:"title"`
	Visibility    Visibility `json:"visibility"`
	SelectedModel string     `json:"selectedModel"`
	CreatedAt     time.Time  `json:"createdAt"`
}
