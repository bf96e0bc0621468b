// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/purifier-console/internal/store"
)

const defaultActionTable = "console_actions"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ActionStoreConfig controls the Postgres connection pool used for audit rows.
type ActionStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Ping(context.Context) error
	Close()
}

// ActionStore writes the operator audit log into Postgres.
type ActionStore struct {
	pool  pool
	table string
}

// NewActionStore creates a Postgres-backed ActionStore using the provided config.
func NewActionStore(ctx context.Context, cfg ActionStoreConfig) (*ActionStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("audit.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ActionStore{pool: p, table: table}, nil
}

// NewActionStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewActionStoreWithPool(p pool, table string) (*ActionStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ActionStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultActionTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *ActionStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks the database connection.
func (s *ActionStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the audit table when it is missing.
func (s *ActionStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id          UUID PRIMARY KEY,
	action      TEXT NOT NULL,
	feed_id     BIGINT,
	episode_ids BIGINT[] NOT NULL DEFAULT '{}',
	affected    INTEGER NOT NULL DEFAULT 0,
	detail      TEXT NOT NULL DEFAULT '',
	at          TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// RecordAction inserts one audit row.
func (s *ActionStore) RecordAction(ctx context.Context, action store.Action) error {
	episodeIDs := action.EpisodeIDs
	if episodeIDs == nil {
		episodeIDs = []int64{}
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	action,
	feed_id,
	episode_ids,
	affected,
	detail,
	at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)`, s.table)
	args := []any{
		action.ID,
		string(action.Kind),
		action.FeedID,
		episodeIDs,
		action.Affected,
		action.Detail,
		action.At,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

// ListActions returns audit rows newest first.
func (s *ActionStore) ListActions(ctx context.Context, limit, offset int) ([]store.Action, error) {
	query := fmt.Sprintf(`
SELECT id, action, feed_id, episode_ids, affected, detail, at
FROM %s
ORDER BY at DESC, id DESC
LIMIT $1 OFFSET $2`, s.table)
	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	actions := []store.Action{}
	for rows.Next() {
		var (
			action store.Action
			kind   string
		)
		if err := rows.Scan(
			&action.ID,
			&kind,
			&action.FeedID,
			&action.EpisodeIDs,
			&action.Affected,
			&action.Detail,
			&action.At,
		); err != nil {
			return nil, fmt.Errorf("scan action row: %w", err)
		}
		action.Kind = store.ActionKind(kind)
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action rows: %w", err)
	}
	return actions, nil
}
