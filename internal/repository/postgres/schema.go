package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the prefixed tables and indexes if they are missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, prefix string, logger *slog.Logger) error {
	for _, stmt := range strings.Split(fmt.Sprintf(schemaSQL, prefix), ";\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	logger.Info("schema ensured", "prefix", prefix)
	return nil
}
