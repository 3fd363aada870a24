// Package chat implements the non-streaming chat operations: read, delete,
// history listing, and votes.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"parley/internal/domain"
	"parley/internal/domain/models"
	"parley/internal/domain/repositories"
	authsvc "parley/internal/service/auth"
)

// DefaultHistoryLimit is the page size when the client does not ask for one.
const DefaultHistoryLimit = 20

// MaxHistoryLimit caps a single history page.
const MaxHistoryLimit = 100

// Service handles the non-streaming chat operations. Every operation
// authorizes through the guard before touching state.
type Service struct {
	chats  repositories.ChatRepository
	tx     repositories.TransactionManager
	guard  *authsvc.Guard
	logger *slog.Logger
}

// NewService creates a chat service.
func NewService(
	chats repositories.ChatRepository,
	tx repositories.TransactionManager,
	guard *authsvc.Guard,
	logger *slog.Logger,
) *Service {
	return &Service{
		chats:  chats,
		tx:     tx,
		guard:  guard,
		logger: logger,
	}
}

// ChatDetail is a chat plus its ordered message log.
type ChatDetail struct {
	Chat     *models.Chat     `json:"chat"`
	Messages []models.Message `json:"messages"`
}

// GetChat returns a chat and its messages for a read-authorized principal.
func (s *Service) GetChat(ctx context.Context, principalID, chatID string) (*ChatDetail, error) {
	chat, err := s.guard.Authorize(ctx, principalID, chatID, authsvc.ActionRead)
	if err != nil {
		return nil, err
	}

	messages, err := s.chats.GetMessages(ctx, chatID)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, domain.SurfaceDatabase, err)
	}

	return &ChatDetail{Chat: chat, Messages: messages}, nil
}

// DeleteChat removes a chat and everything under it. Owner only. Returns
// the deleted chat for confirmation; a repeat delete is not_found:chat,
// never a second success.
func (s *Service) DeleteChat(ctx context.Context, principalID, chatID string) (*models.Chat, error) {
	if _, err := s.guard.Authorize(ctx, principalID, chatID, authsvc.ActionDelete); err != nil {
		return nil, err
	}

	var deleted *models.Chat
	err := s.tx.ExecTx(ctx, func(txCtx context.Context) error {
		var err error
		deleted, err = s.chats.DeleteChat(txCtx, chatID)
		return err
	})
	if err != nil {
		var cerr *domain.ChatError
		if errors.As(err, &cerr) {
			return nil, cerr
		}
		return nil, domain.WrapError(domain.KindInternal, domain.SurfaceDatabase, err)
	}

	s.logger.Info("chat deleted", "chat_id", chatID, "user_id", principalID)
	return deleted, nil
}

// HistoryPage is one page of the caller's chat listing.
type HistoryPage struct {
	Chats      []models.Chat `json:"chats"`
	NextCursor string        `json:"nextCursor,omitempty"`
	HasMore    bool          `json:"hasMore"`
}

// ListChats pages through the caller's own chats, newest first. The cursor
// token is opaque to clients; a garbled one is bad_request:history.
func (s *Service) ListChats(ctx context.Context, principalID string, limit int, cursorToken string) (*HistoryPage, error) {
	if principalID == "" {
		return nil, domain.NewError(domain.KindUnauthorized, domain.SurfaceAuth)
	}

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	var cursor *repositories.Cursor
	if cursorToken != "" {
		var err error
		cursor, err = repositories.DecodeCursor(cursorToken)
		if err != nil {
			return nil, domain.WrapError(domain.KindBadRequest, domain.SurfaceHistory, err)
		}
	}

	page, err := s.chats.ListChats(ctx, principalID, limit, cursor)
	if err != nil {
		var cerr *domain.ChatError
		if errors.As(err, &cerr) {
			return nil, cerr
		}
		return nil, domain.WrapError(domain.KindInternal, domain.SurfaceDatabase, err)
	}

	out := &HistoryPage{Chats: page.Chats}
	if page.NextCursor != nil {
		out.NextCursor = page.NextCursor.Encode()
		out.HasMore = true
	}
	return out, nil
}

// GetVotes returns the votes on a chat's messages for a read-authorized
// principal.
func (s *Service) GetVotes(ctx context.Context, principalID, chatID string) ([]models.Vote, error) {
	if _, err := s.guard.Authorize(ctx, principalID, chatID, authsvc.ActionRead); err != nil {
		return nil, err
	}

	votes, err := s.chats.GetVotes(ctx, chatID)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, domain.SurfaceDatabase, err)
	}
	return votes, nil
}

// VoteMessage upserts a vote on a message. Owner only; a new vote
// overwrites the prior one.
func (s *Service) VoteMessage(ctx context.Context, principalID, chatID, messageID string, isUpvoted bool) error {
	if messageID == "" {
		return domain.WrapError(domain.KindBadRequest, domain.SurfaceAPI, fmt.Errorf("messageId is required"))
	}

	if _, err := s.guard.Authorize(ctx, principalID, chatID, authsvc.ActionVote); err != nil {
		return err
	}

	vote := &models.Vote{ChatID: chatID, MessageID: messageID, IsUpvoted: isUpvoted}
	if err := s.chats.UpsertVote(ctx, vote); err != nil {
		var cerr *domain.ChatError
		if errors.As(err, &cerr) {
			return cerr
		}
		return domain.WrapError(domain.KindInternal, domain.SurfaceDatabase, err)
	}
	return nil
}
