package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hemantsingh443/allchat-sub000/internal/domain/repositories"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryConfig holds configuration for repository implementations
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds dynamically prefixed table names
type TableNames struct {
	Chats    string
	Messages string
}

// NewTableNames creates table names with the given prefix
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Chats:    fmt.Sprintf("%schats", prefix),
		Messages: fmt.Sprintf("%smessages", prefix),
	}
}

// PoolOptions sizes the connection pool. Zero values keep pgx defaults.
type PoolOptions struct {
	MaxConns int32
	MinConns int32
}

// pingTimeout bounds the startup connectivity check.
const pingTimeout = 5 * time.Second

// CreateConnectionPool creates a pgx pool and verifies connectivity.
//
// Port 6543 is the Supabase transaction pooler (PgBouncer), which does not
// support prepared statements. Unless the connection string already picks a
// mode, QueryExecModeCacheDescribe is used there: it keeps the extended
// protocol (needed for JSONB parameters) without server-side statements.
func CreateConnectionPool(ctx context.Context, databaseURL string, opts PoolOptions, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	if opts.MaxConns > 0 {
		poolConfig.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 && opts.MinConns <= poolConfig.MaxConns {
		poolConfig.MinConns = opts.MinConns
	}

	conn := poolConfig.ConnConfig
	if conn.Port == 6543 && conn.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		conn.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
		logger.Debug("using cache_describe exec mode behind transaction pooler", "host", conn.Host)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database %s: %w", conn.Host, err)
	}

	logger.Info("database connected",
		"host", conn.Host,
		"database", conn.Database,
		"max_conns", poolConfig.MaxConns,
	)
	return pool, nil
}

// GetExecutor returns the transaction stored in ctx, or pool when there is none.
func GetExecutor(ctx context.Context, pool *pgxpool.Pool) repositories.DBTX {
	if tx := repositories.GetTx(ctx); tx != nil {
		return tx
	}
	return pool
}
