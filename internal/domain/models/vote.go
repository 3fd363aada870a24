package models

// Vote records a thumbs-up or thumbs-down on a single message. At most one
// vote exists per (chat, message); a new vote overwrites the prior one.
type Vote struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
	IsUpvoted bool   `json:"isUpvoted"`
}
