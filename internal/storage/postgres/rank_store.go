// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultRankTable is used when no table is configured.
const DefaultRankTable = "page_ranks"

// RankStoreConfig controls the Postgres connection pool used for rank rows.
type RankStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// RankRow is one ranked page.
type RankRow struct {
	ID   int
	URL  string
	Rank float64
}

type txPool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// RankStore replaces the contents of a rank table with the latest solve.
type RankStore struct {
	pool  txPool
	table string
}

// NewRankStore creates a Postgres-backed RankStore using the provided config.
func NewRankStore(ctx context.Context, cfg RankStoreConfig) (*RankStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("rank.postgres.dsn is required")
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
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RankStore{pool: pool, table: table}, nil
}

// NewRankStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRankStoreWithPool(pool txPool, table string) (*RankStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &RankStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultRankTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *RankStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the rank table when it does not exist.
func (s *RankStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id   integer PRIMARY KEY,
	url  text NOT NULL,
	rank double precision NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Replace swaps the table contents for rows in a single transaction, so
// readers see either the previous ranking or the new one.
func (s *RankStore) Replace(ctx context.Context, rows []RankRow) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("rank store is not configured")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := s.replace(ctx, tx, rows); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *RankStore) replace(ctx context.Context, tx pgx.Tx, rows []RankRow) error {
	if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", s.table)); err != nil {
		return fmt.Errorf("clear %s: %w", s.table, err)
	}
	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{s.table},
		[]string{"id", "url", "rank"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			return []any{rows[i].ID, rows[i].URL, rows[i].Rank}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy ranks: %w", err)
	}
	if copied != int64(len(rows)) {
		return fmt.Errorf("copy ranks: wrote %d of %d rows", copied, len(rows))
	}
	return nil
}
