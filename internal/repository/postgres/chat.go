package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hemantsingh443/allchat-sub000/internal/domain"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/repositories"
	"github.com/jackc/pgx/v5/pgxpool"
)

const chatColumns = `id, user_id, title, model_id, source_chat_id, branched_from_message_id,
		share_id, is_public, created_at, updated_at`

// PostgresChatRepository implements repositories.ChatRepository.
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChat(row rowScanner, chat *models.Chat) error {
	return row.Scan(
		&chat.ID,
		&chat.UserID,
		&chat.Title,
		&chat.ModelID,
		&chat.SourceChatID,
		&chat.BranchedFromMessageID,
		&chat.ShareID,
		&chat.IsPublic,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	)
}

// CreateChat inserts a chat
func (r *PostgresChatRepository) CreateChat(ctx context.Context, chat *models.Chat) error {
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}
	if chat.UpdatedAt.IsZero() {
		chat.UpdatedAt = chat.CreatedAt
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, title, model_id, source_chat_id, branched_from_message_id,
			share_id, is_public, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, r.tables.Chats)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query,
		chat.ID,
		chat.UserID,
		chat.Title,
		chat.ModelID,
		chat.SourceChatID,
		chat.BranchedFromMessageID,
		chat.ShareID,
		chat.IsPublic,
		chat.CreatedAt,
		chat.UpdatedAt,
	)
	if err != nil {
		if IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("chat %s already exists", chat.ID),
				ResourceType: "chat",
				ResourceID:   chat.ID,
			}
		}
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("source chat: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("create chat: %w", err)
	}
	return nil
}

// GetChat retrieves a chat by ID
func (r *PostgresChatRepository) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, chatColumns, r.tables.Chats)
	return r.getOne(ctx, query, chatID, "chat "+chatID)
}

// GetChatByShareID retrieves a chat by its share id
func (r *PostgresChatRepository) GetChatByShareID(ctx context.Context, shareID string) (*models.Chat, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE share_id = $1`, chatColumns, r.tables.Chats)
	return r.getOne(ctx, query, shareID, "share "+shareID)
}

func (r *PostgresChatRepository) getOne(ctx context.Context, query, arg, label string) (*models.Chat, error) {
	var chat models.Chat
	executor := GetExecutor(ctx, r.pool)
	if err := scanChat(executor.QueryRow(ctx, query, arg), &chat); err != nil {
		if IsPgNoRowsError(err) || IsPgInvalidTextError(err) {
			return nil, fmt.Errorf("%s: %w", label, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return &chat, nil
}

// ListChats returns a user's chats, most recently updated first
func (r *PostgresChatRepository) ListChats(ctx context.Context, userID string) ([]models.Chat, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE user_id = $1
		ORDER BY updated_at DESC, created_at DESC
	`, chatColumns, r.tables.Chats)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	chats := []models.Chat{}
	for rows.Next() {
		var chat models.Chat
		if err := scanChat(rows, &chat); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}
	return chats, nil
}

// UpdateChat updates a chat's mutable fields
func (r *PostgresChatRepository) UpdateChat(ctx context.Context, chat *models.Chat) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET title = $1, model_id = $2, share_id = $3, is_public = $4, updated_at = $5
		WHERE id = $6
	`, r.tables.Chats)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query,
		chat.Title,
		chat.ModelID,
		chat.ShareID,
		chat.IsPublic,
		chat.UpdatedAt,
		chat.ID,
	)
	if err != nil {
		if IsPgDuplicateError(err) {
			return fmt.Errorf("share id in use: %w", domain.ErrConflict)
		}
		return fmt.Errorf("update chat: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("chat %s: %w", chat.ID, domain.ErrNotFound)
	}
	return nil
}

// ClearBranchReferences promotes branches of chatID to top-level chats
func (r *PostgresChatRepository) ClearBranchReferences(ctx context.Context, chatID string) (int, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET source_chat_id = NULL, branched_from_message_id = NULL
		WHERE source_chat_id = $1
	`, r.tables.Chats)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, chatID)
	if err != nil {
		return 0, fmt.Errorf("clear branch references: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// DeleteChat hard-deletes a chat; messages cascade by foreign key
func (r *PostgresChatRepository) DeleteChat(ctx context.Context, chatID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.tables.Chats)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, chatID)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("chat %s: %w", chatID, domain.ErrNotFound)
	}
	return nil
}
