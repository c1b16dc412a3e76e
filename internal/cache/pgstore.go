package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PGStore persists cache entries in Postgres, for caches shared across
// CI runners. The database serializes concurrent writers.
type PGStore struct {
	pool *pgxpool.Pool
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS test_result_cache (
	test_name TEXT PRIMARY KEY,
	test_path TEXT NOT NULL,
	file_hash TEXT NOT NULL,
	result JSONB NOT NULL,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL,
	dependencies TEXT[] NOT NULL DEFAULT '{}',
	ttl_hours INT NOT NULL,
	business_value DOUBLE PRECISION NOT NULL DEFAULT 0,
	access_count INT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_test_result_cache_created_at
	ON test_result_cache(created_at);
`

// NewPGStore connects to Postgres and ensures the cache schema exists
func NewPGStore(ctx context.Context, databaseURL string) (*PGStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure cache schema: %w", err)
	}

	log.Info().Str("host", config.ConnConfig.Host).Msg("connected to shared cache database")

	return &PGStore{pool: pool}, nil
}

// Get returns the entry for a test name, or nil if absent
func (s *PGStore) Get(ctx context.Context, testName string) (*Entry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT test_name, test_path, file_hash, result, created_at,
		       dependencies, ttl_hours, business_value, access_count
		FROM test_result_cache WHERE test_name = $1`, testName)

	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

// Put creates or overwrites an entry
func (s *PGStore) Put(ctx context.Context, entry *Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO test_result_cache
			(test_name, test_path, file_hash, result, created_at,
			 dependencies, ttl_hours, business_value, access_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (test_name) DO UPDATE SET
			test_path = EXCLUDED.test_path,
			file_hash = EXCLUDED.file_hash,
			result = EXCLUDED.result,
			created_at = EXCLUDED.created_at,
			dependencies = EXCLUDED.dependencies,
			ttl_hours = EXCLUDED.ttl_hours,
			business_value = EXCLUDED.business_value,
			access_count = EXCLUDED.access_count`,
		entry.TestName, entry.TestPath, entry.FileHash, entry.Result,
		entry.Timestamp, entry.Dependencies, entry.TTLHours,
		entry.BusinessValue, entry.AccessCount)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

// Delete removes an entry
func (s *PGStore) Delete(ctx context.Context, testName string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM test_result_cache WHERE test_name = $1`, testName)
	return err
}

// List returns all entries
func (s *PGStore) List(ctx context.Context) ([]*Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT test_name, test_path, file_hash, result, created_at,
		       dependencies, ttl_hours, business_value, access_count
		FROM test_result_cache`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteOlderThan removes entries created before the cutoff
func (s *PGStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM test_result_cache WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Compact asks Postgres to reclaim space after bulk deletes
func (s *PGStore) Compact(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `VACUUM test_result_cache`)
	return err
}

// SizeBytes reports the relation's total on-disk size
func (s *PGStore) SizeBytes(ctx context.Context) (int64, error) {
	var size int64
	err := s.pool.QueryRow(ctx,
		`SELECT pg_total_relation_size('test_result_cache')`).Scan(&size)
	return size, err
}

// Close releases the connection pool
func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var entry Entry
	err := row.Scan(&entry.TestName, &entry.TestPath, &entry.FileHash,
		&entry.Result, &entry.Timestamp, &entry.Dependencies,
		&entry.TTLHours, &entry.BusinessValue, &entry.AccessCount)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
