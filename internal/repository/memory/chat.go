package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"parley/internal/domain"
	"parley/internal/domain/models"
	"parley/internal/domain/repositories"
)

// ChatRepository keeps chats, messages, and votes in-process. It backs the
// handler and service tests; the Postgres implementation is the production
// store.
type ChatRepository struct {
	mu       sync.RWMutex
	chats    map[string]models.Chat
	messages map[string][]models.Message // chatID -> ordered log
	votes    map[string]map[string]models.Vote
}

// NewChatRepository initializes an empty in-memory store.
func NewChatRepository() *ChatRepository {
	return &ChatRepository{
		chats:    make(map[string]models.Chat),
		messages: make(map[string][]models.Message),
		votes:    make(map[string]map[string]models.Vote),
	}
}

// NoopTransactionManager satisfies repositories.TransactionManager for the
// in-memory store; mutations under the repository mutex are already atomic
// enough for tests.
type NoopTransactionManager struct{}

// ExecTx runs fn without an enclosing transaction.
func (NoopTransactionManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	return fn(ctx)
}

func (r *ChatRepository) CreateChat(ctx context.Context, chat *models.Chat) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.chats[chat.ID]; exists {
		return domain.WrapError(domain.KindBadRequest, domain.SurfaceChat,
			fmt.Errorf("chat %s already exists", chat.ID))
	}
	r.chats[chat.ID] = *chat
	return nil
}

func (r *ChatRepository) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chat, ok := r.chats[chatID]
	if !ok {
		return nil, fmt.Errorf("chat %s: %w", chatID, domain.NewError(domain.KindNotFound, domain.SurfaceChat))
	}
	return &chat, nil
}

func (r *ChatRepository) DeleteChat(ctx context.Context, chatID string) (*models.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chat, ok := r.chats[chatID]
	if !ok {
		return nil, fmt.Errorf("chat %s: %w", chatID, domain.NewError(domain.KindNotFound, domain.SurfaceChat))
	}
	delete(r.chats, chatID)
	delete(r.messages, chatID)
	delete(r.votes, chatID)
	return &chat, nil
}

func (r *ChatRepository) ListChats(ctx context.Context, userID string, limit int, cursor *repositories.Cursor) (*repositories.ChatPage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owned := []models.Chat{}
	for _, chat := range r.chats {
		if chat.UserID == userID {
			owned = append(owned, chat)
		}
	}

	// Newest first on the same compound key the SQL implementation uses
	sort.Slice(owned, func(i, j int) bool {
		if !owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].CreatedAt.After(owned[j].CreatedAt)
		}
		return owned[i].ID > owned[j].ID
	})

	if cursor != nil {
		after := []models.Chat{}
		for _, chat := range owned {
			if chat.CreatedAt.Before(cursor.CreatedAt) ||
				(chat.CreatedAt.Equal(cursor.CreatedAt) && chat.ID < cursor.ID) {
				after = append(after, chat)
			}
		}
		owned = after
	}

	page := &repositories.ChatPage{Chats: owned}
	if len(owned) > limit {
		page.Chats = owned[:limit]
		last := page.Chats[limit-1]
		page.NextCursor = &repositories.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	return page, nil
}

func (r *ChatRepository) AppendMessage(ctx context.Context, msg *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.chats[msg.ChatID]; !ok {
		return fmt.Errorf("chat %s: %w", msg.ChatID, domain.NewError(domain.KindNotFound, domain.SurfaceChat))
	}
	r.messages[msg.ChatID] = append(r.messages[msg.ChatID], *msg)
	return nil
}

func (r *ChatRepository) GetMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	log := r.messages[chatID]
	out := make([]models.Message, len(log))
	copy(out, log)
	return out, nil
}

func (r *ChatRepository) GetVotes(ctx context.Context, chatID string) ([]models.Vote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byMessage := r.votes[chatID]
	votes := []models.Vote{}
	for _, vote := range byMessage {
		votes = append(votes, vote)
	}
	sort.Slice(votes, func(i, j int) bool { return votes[i].MessageID < votes[j].MessageID })
	return votes, nil
}

func (r *ChatRepository) UpsertVote(ctx context.Context, vote *models.Vote) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := false
	for _, msg := range r.messages[vote.ChatID] {
		if msg.ID == vote.MessageID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("message %s: %w", vote.MessageID, domain.NewError(domain.KindNotFound, domain.SurfaceVote))
	}

	if r.votes[vote.ChatID] == nil {
		r.votes[vote.ChatID] = make(map[string]models.Vote)
	}
	r.votes[vote.ChatID][vote.MessageID] = *vote
	return nil
}
