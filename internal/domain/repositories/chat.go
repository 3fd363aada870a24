package repositories

import (
	"context"

	"parley/internal/domain/models"
)

// ChatPage is one page of a principal's chat listing, newest first.
// NextCursor is nil on the last page.
type ChatPage struct {
	Chats      []models.Chat `json:"chats"`
	NextCursor *Cursor       `json:"-"`
}

// ChatRepository persists chats, their append-only message logs, and votes.
//
// Message appends for a single chat are serialized at this layer: the store
// orders messages by (created_at, id), and concurrent turns against the same
// chat land in commit order. Callers must not assume at-most-one in-flight
// turn per chat.
type ChatRepository interface {
	// CreateChat inserts a new chat. The chat's ID is chosen by the caller.
	CreateChat(ctx context.Context, chat *models.Chat) error

	// GetChat retrieves a chat by id regardless of owner. Ownership and
	// visibility decisions belong to the authorization guard.
	GetChat(ctx context.Context, chatID string) (*models.Chat, error)

	// DeleteChat removes a chat and cascades to its messages and votes
	// atomically. Returns the deleted chat.
	DeleteChat(ctx context.Context, chatID string) (*models.Chat, error)

	// ListChats returns one page of a user's chats, newest first, starting
	// after the cursor (nil for the first page).
	ListChats(ctx context.Context, userID string, limit int, cursor *Cursor) (*ChatPage, error)

	// AppendMessage appends one message to a chat's log.
	AppendMessage(ctx context.Context, msg *models.Message) error

	// GetMessages returns a chat's messages in creation order.
	GetMessages(ctx context.Context, chatID string) ([]models.Message, error)

	// GetVotes returns the votes for a chat's messages.
	GetVotes(ctx context.Context, chatID string) ([]models.Vote, error)

	// UpsertVote records a vote, overwriting any prior vote on the message.
	UpsertVote(ctx context.Context, vote *models.Vote) error
}
