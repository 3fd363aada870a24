package auth

import (
	"context"
	"errors"
	"fmt"

	"parley/internal/domain"
	"parley/internal/domain/models"
	"parley/internal/domain/repositories"
)

// Action is one guarded operation on a chat.
type Action string

const (
	ActionRead   Action = "read"
	ActionAppend Action = "appendMessage"
	ActionDelete Action = "delete"
	ActionVote   Action = "vote"
)

// Guard decides read/write/delete eligibility for a principal on a chat.
//
// Ownership is the only grant for mutations; reads additionally allow public
// chats. The guard runs after request validation and before any persistence
// work - skipping or reordering those stages can leak existence information
// or allow partial writes under a denied principal.
type Guard struct {
	chats repositories.ChatRepository
}

// NewGuard creates an ownership-based authorization guard.
func NewGuard(chats repositories.ChatRepository) *Guard {
	return &Guard{chats: chats}
}

// Authorize fetches the chat and decides whether principalID may perform
// action on it. On success the chat is returned so callers avoid a second
// fetch. A missing chat is not_found:chat for every action; creation on
// first write is the streaming session's job, not the guard's.
func (g *Guard) Authorize(ctx context.Context, principalID, chatID string, action Action) (*models.Chat, error) {
	chat, err := g.chats.GetChat(ctx, chatID)
	if err != nil {
		var cerr *domain.ChatError
		if errors.As(err, &cerr) && cerr.Kind == domain.KindNotFound {
			return nil, cerr
		}
		return nil, fmt.Errorf("get chat for auth: %w", err)
	}

	switch action {
	case ActionRead:
		if chat.Visibility == models.VisibilityPublic || (principalID != "" && chat.UserID == principalID) {
			return chat, nil
		}
		return nil, domain.NewError(domain.KindForbidden, domain.SurfaceChat)

	case ActionAppend, ActionDelete:
		// Owner only. The anonymous principal never owns a chat.
		if principalID != "" && chat.UserID == principalID {
			return chat, nil
		}
		return nil, domain.NewError(domain.KindForbidden, domain.SurfaceChat)

	case ActionVote:
		if principalID != "" && chat.UserID == principalID {
			return chat, nil
		}
		return nil, domain.NewError(domain.KindForbidden, domain.SurfaceVote)

	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}
