package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"parley/internal/domain"
	"parley/internal/domain/models"
	"parley/internal/domain/repositories"
)

// PostgresChatRepository implements the ChatRepository interface using PostgreSQL
type PostgresChatRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewChatRepository creates a new PostgresChatRepository
func NewChatRepository(config *RepositoryConfig) repositories.ChatRepository {
	return &PostgresChatRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreateChat inserts a new chat with a caller-chosen id
func (r *PostgresChatRepository) CreateChat(ctx context.Context, chat *models.Chat) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, title, visibility, selected_model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.tables.Chats)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		chat.ID,
		chat.UserID,
		chat.Title,
		chat.Visibility,
		chat.SelectedModel,
		chat.CreatedAt,
	)

	if err != nil {
		if isDuplicateKeyError(err) {
			return domain.WrapError(domain.KindBadRequest, domain.SurfaceChat,
				fmt.Errorf("chat %s already exists", chat.ID))
		}
		return fmt.Errorf("create chat: %w", err)
	}

	return nil
}

// GetChat retrieves a chat by id regardless of owner
func (r *PostgresChatRepository) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, title, visibility, selected_model, created_at
		FROM %s
		WHERE id = $1
	`, r.tables.Chats)

	var chat models.Chat
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, chatID).Scan(
		&chat.ID,
		&chat.UserID,
		&chat.Title,
		&chat.Visibility,
		&chat.SelectedModel,
		&chat.CreatedAt,
	)

	if err != nil {
		if isNoRowsError(err) || isInvalidUUIDError(err) {
			return nil, fmt.Errorf("chat %s: %w", chatID, domain.NewError(domain.KindNotFound, domain.SurfaceChat))
		}
		return nil, fmt.Errorf("get chat: %w", err)
	}

	return &chat, nil
}

// DeleteChat removes a chat and cascades to its messages and votes.
// The three deletes run in one transaction; a chat is never left partially
// deleted.
func (r *PostgresChatRepository) DeleteChat(ctx context.Context, chatID string) (*models.Chat, error) {
	deleteVotes := fmt.Sprintf(`DELETE FROM %s WHERE chat_id = $1`, r.tables.Votes)
	deleteMessages := fmt.Sprintf(`DELETE FROM %s WHERE chat_id = $1`, r.tables.Messages)
	deleteChat := fmt.Sprintf(`
		DELETE FROM %s
		WHERE id = $1
		RETURNING id, user_id, title, visibility, selected_model, created_at
	`, r.tables.Chats)

	executor := GetExecutor(ctx, r.pool)

	if _, err := executor.Exec(ctx, deleteVotes, chatID); err != nil {
		if isInvalidUUIDError(err) {
			return nil, fmt.Errorf("chat %s: %w", chatID, domain.NewError(domain.KindNotFound, domain.SurfaceChat))
		}
		return nil, fmt.Errorf("delete votes: %w", err)
	}
	if _, err := executor.Exec(ctx, deleteMessages, chatID); err != nil {
		return nil, fmt.Errorf("delete messages: %w", err)
	}

	var chat models.Chat
	err := executor.QueryRow(ctx, deleteChat, chatID).Scan(
		&chat.ID,
		&chat.UserID,
		&chat.Title,
		&chat.Visibility,
		&chat.SelectedModel,
		&chat.CreatedAt,
	)

	if err != nil {
		if isNoRowsError(err) || isInvalidUUIDError(err) {
			return nil, fmt.Errorf("chat %s: %w", chatID, domain.NewError(domain.KindNotFound, domain.SurfaceChat))
		}
		return nil, fmt.Errorf("delete chat: %w", err)
	}

	return &chat, nil
}

// ListChats returns one page of a user's chats, newest first, using keyset
// pagination on (created_at, id). The compound key keeps paging stable under
// concurrent inserts and deletes.
func (r *PostgresChatRepository) ListChats(ctx context.Context, userID string, limit int, cursor *repositories.Cursor) (*repositories.ChatPage, error) {
	executor := GetExecutor(ctx, r.pool)

	var query string
	var args []interface{}
	if cursor != nil {
		query = fmt.Sprintf(`
			SELECT id, user_id, title, visibility, selected_model, created_at
			FROM %s
			WHERE user_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		`, r.tables.Chats)
		args = []interface{}{userID, cursor.CreatedAt, cursor.ID, limit + 1}
	} else {
		query = fmt.Sprintf(`
			SELECT id, user_id, title, visibility, selected_model, created_at
			FROM %s
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`, r.tables.Chats)
		args = []interface{}{userID, limit + 1}
	}

	rows, err := executor.Query(ctx, query, args...)
	if err != nil {
		if isInvalidUUIDError(err) {
			// A decodable cursor carrying a non-uuid id is still malformed
			return nil, domain.WrapError(domain.KindBadRequest, domain.SurfaceHistory, err)
		}
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	chats := []models.Chat{}
	for rows.Next() {
		var chat models.Chat
		err := rows.Scan(
			&chat.ID,
			&chat.UserID,
			&chat.Title,
			&chat.Visibility,
			&chat.SelectedModel,
			&chat.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, chat)
	}

	if err := rows.Err(); err != nil {
		// pgx can defer a query-time failure to iteration
		if isInvalidUUIDError(err) {
			return nil, domain.WrapError(domain.KindBadRequest, domain.SurfaceHistory, err)
		}
		return nil, fmt.Errorf("iterate chats: %w", err)
	}

	page := &repositories.ChatPage{Chats: chats}
	if len(chats) > limit {
		// One extra row means another page exists
		page.Chats = chats[:limit]
		last := page.Chats[limit-1]
		page.NextCursor = &repositories.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	return page, nil
}

// AppendMessage appends one message to a chat's log
func (r *PostgresChatRepository) AppendMessage(ctx context.Context, msg *models.Message) error {
	parts, err := json.Marshal(msg.Parts)
	if err != nil {
		return fmt.Errorf("marshal message parts: %w", err)
	}
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("marshal message metadata: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, chat_id, role, parts, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)
	_, err = executor.Exec(ctx, query,
		msg.ID,
		msg.ChatID,
		msg.Role,
		parts,
		metadata,
		msg.CreatedAt,
	)

	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("chat %s: %w", msg.ChatID, domain.NewError(domain.KindNotFound, domain.SurfaceChat))
		}
		return fmt.Errorf("append message: %w", err)
	}

	return nil
}

// GetMessages returns a chat's messages in creation order. The (created_at,
// id) sort key gives a total order even when concurrent turns share a
// timestamp.
func (r *PostgresChatRepository) GetMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	query := fmt.Sprintf(`
		SELECT id, chat_id, role, parts, metadata, created_at
		FROM %s
		WHERE chat_id = $1
		ORDER BY created_at ASC, id ASC
	`, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var msg models.Message
		var parts, metadata []byte
		err := rows.Scan(
			&msg.ID,
			&msg.ChatID,
			&msg.Role,
			&parts,
			&metadata,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := json.Unmarshal(parts, &msg.Parts); err != nil {
			return nil, fmt.Errorf("unmarshal message parts: %w", err)
		}
		if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal message metadata: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

// GetVotes returns the votes for a chat's messages
func (r *PostgresChatRepository) GetVotes(ctx context.Context, chatID string) ([]models.Vote, error) {
	query := fmt.Sprintf(`
		SELECT chat_id, message_id, is_upvoted
		FROM %s
		WHERE chat_id = $1
		ORDER BY message_id ASC
	`, r.tables.Votes)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("get votes: %w", err)
	}
	defer rows.Close()

	votes := []models.Vote{}
	for rows.Next() {
		var vote models.Vote
		if err := rows.Scan(&vote.ChatID, &vote.MessageID, &vote.IsUpvoted); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		votes = append(votes, vote)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate votes: %w", err)
	}

	return votes, nil
}

// UpsertVote records a vote, overwriting any prior vote on the message
func (r *PostgresChatRepository) UpsertVote(ctx context.Context, vote *models.Vote) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (chat_id, message_id, is_upvoted)
		VALUES ($1, $2, $3)
		ON CONFLICT (chat_id, message_id) DO UPDATE SET is_upvoted = EXCLUDED.is_upvoted
	`, r.tables.Votes)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query, vote.ChatID, vote.MessageID, vote.IsUpvoted)
	if err != nil {
		if isForeignKeyError(err) || isInvalidUUIDError(err) {
			return fmt.Errorf("message %s: %w", vote.MessageID, domain.NewError(domain.KindNotFound, domain.SurfaceVote))
		}
		return fmt.Errorf("upsert vote: %w", err)
	}

	return nil
}
