package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hemantsingh443/allchat-sub000/internal/domain"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/models"
	"github.com/hemantsingh443/allchat-sub000/internal/domain/repositories"
	"github.com/jackc/pgx/v5/pgxpool"
)

const messageColumns = `id, seq, chat_id, role, content, image_url, file, used_web_search,
		edit_count, model_id, search_results, reasoning, reply_to_id, created_at`

// PostgresMessageRepository implements repositories.MessageRepository.
type PostgresMessageRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewMessageRepository creates a new PostgresMessageRepository
func NewMessageRepository(config *RepositoryConfig) repositories.MessageRepository {
	return &PostgresMessageRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

func scanMessage(row rowScanner, msg *models.Message) error {
	var role string
	var fileJSON, resultsJSON []byte
	err := row.Scan(
		&msg.ID,
		&msg.Seq,
		&msg.ChatID,
		&role,
		&msg.Content,
		&msg.ImageURL,
		&fileJSON,
		&msg.UsedWebSearch,
		&msg.EditCount,
		&msg.ModelID,
		&resultsJSON,
		&msg.Reasoning,
		&msg.ReplyToID,
		&msg.CreatedAt,
	)
	if err != nil {
		return err
	}
	msg.Role = models.Role(role)
	if len(fileJSON) > 0 {
		msg.File = &models.FileMeta{}
		if err := json.Unmarshal(fileJSON, msg.File); err != nil {
			return fmt.Errorf("decode file metadata: %w", err)
		}
	}
	if len(resultsJSON) > 0 {
		if err := json.Unmarshal(resultsJSON, &msg.SearchResults); err != nil {
			return fmt.Errorf("decode search results: %w", err)
		}
	}
	return nil
}

// jsonbArg encodes v for a JSONB column, mapping empty values to NULL.
func jsonbArg(v any, empty bool) (*string, error) {
	if empty {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

// CreateMessage inserts a message
func (r *PostgresMessageRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	fileArg, err := jsonbArg(msg.File, msg.File == nil)
	if err != nil {
		return fmt.Errorf("encode file metadata: %w", err)
	}
	resultsArg, err := jsonbArg(msg.SearchResults, len(msg.SearchResults) == 0)
	if err != nil {
		return fmt.Errorf("encode search results: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, chat_id, role, content, image_url, file, used_web_search,
			edit_count, model_id, search_results, reasoning, reply_to_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10::jsonb, $11, $12, $13)
		RETURNING seq
	`, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)
	err = executor.QueryRow(ctx, query,
		msg.ID,
		msg.ChatID,
		string(msg.Role),
		msg.Content,
		msg.ImageURL,
		fileArg,
		msg.UsedWebSearch,
		msg.EditCount,
		msg.ModelID,
		resultsArg,
		msg.Reasoning,
		msg.ReplyToID,
		msg.CreatedAt,
	).Scan(&msg.Seq)
	if err != nil {
		if IsPgForeignKeyError(err) {
			return fmt.Errorf("chat %s: %w", msg.ChatID, domain.ErrNotFound)
		}
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// GetMessage retrieves a message by ID
func (r *PostgresMessageRepository) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, messageColumns, r.tables.Messages)

	var msg models.Message
	executor := GetExecutor(ctx, r.pool)
	if err := scanMessage(executor.QueryRow(ctx, query, messageID), &msg); err != nil {
		if IsPgNoRowsError(err) || IsPgInvalidTextError(err) {
			return nil, fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &msg, nil
}

// ListMessages returns a chat's messages in conversation order
func (r *PostgresMessageRepository) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE chat_id = $1
		ORDER BY created_at ASC, seq ASC
	`, messageColumns, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var msg models.Message
		if err := scanMessage(rows, &msg); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// UpdateMessage writes content and edit count
func (r *PostgresMessageRepository) UpdateMessage(ctx context.Context, msg *models.Message) error {
	query := fmt.Sprintf(`
		UPDATE %s SET content = $1, edit_count = $2
		WHERE id = $3
	`, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, msg.Content, msg.EditCount, msg.ID)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("message %s: %w", msg.ID, domain.ErrNotFound)
	}
	return nil
}

// DeleteMessages removes the listed messages from a chat
func (r *PostgresMessageRepository) DeleteMessages(ctx context.Context, chatID string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		DELETE FROM %s WHERE chat_id = $1 AND id = ANY($2::uuid[])
	`, r.tables.Messages)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, chatID, messageIDs); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}
