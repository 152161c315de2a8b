package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// PostgreSQL driver registered as "postgres".
	_ "github.com/lib/pq"

	"cleanplate/internal/establishment/models"
	"cleanplate/internal/platform/metrics"
	"cleanplate/pkg/requestcontext"
)

// Schema creates the establishment cache table.
const Schema = `
CREATE TABLE IF NOT EXISTS establishment_cache (
	camis      TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL
)`

// PostgresCache persists establishment snapshots in PostgreSQL.
type PostgresCache struct {
	db       *sql.DB
	cacheTTL time.Duration
	metrics  *metrics.Metrics
}

// OpenPostgres opens a database handle for dsn and verifies it.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewPostgresCache constructs a PostgreSQL-backed establishment cache.
func NewPostgresCache(db *sql.DB, cacheTTL time.Duration, m *metrics.Metrics) *PostgresCache {
	return &PostgresCache{db: db, cacheTTL: cacheTTL, metrics: m}
}

// EnsureSchema creates the cache table when missing.
func (c *PostgresCache) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create establishment cache table: %w", err)
	}
	return nil
}

// Save upserts e. A newer fetch always replaces the stored snapshot.
func (c *PostgresCache) Save(ctx context.Context, e models.Establishment) error {
	if e.CAMIS == "" {
		return nil
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode establishment: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO establishment_cache (camis, payload, fetched_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (camis) DO UPDATE
		SET payload = EXCLUDED.payload, fetched_at = EXCLUDED.fetched_at`,
		e.CAMIS, string(payload), requestcontext.Now(ctx))
	if err != nil {
		return fmt.Errorf("save establishment cache: %w", err)
	}
	return nil
}

// Find returns the snapshot for camis if it was fetched within the TTL.
func (c *PostgresCache) Find(ctx context.Context, camis string) (*models.Establishment, error) {
	cutoff := requestcontext.Now(ctx).Add(-c.cacheTTL)
	var payload []byte
	err := c.db.QueryRowContext(ctx, `
		SELECT payload FROM establishment_cache
		WHERE camis = $1 AND fetched_at > $2`, camis, cutoff).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.metrics.RecordCacheMiss("postgres")
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find establishment cache: %w", err)
	}
	var e models.Establishment
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("decode establishment cache: %w", err)
	}
	c.metrics.RecordCacheHit("postgres")
	return &e, nil
}

// Delete drops the snapshot for camis.
func (c *PostgresCache) Delete(ctx context.Context, camis string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM establishment_cache WHERE camis = $1`, camis); err != nil {
		return fmt.Errorf("delete establishment cache: %w", err)
	}
	return nil
}

// Purge removes every snapshot older than the TTL and reports how many went.
func (c *PostgresCache) Purge(ctx context.Context) (int64, error) {
	cutoff := requestcontext.Now(ctx).Add(-c.cacheTTL)
	res, err := c.db.ExecContext(ctx, `DELETE FROM establishment_cache WHERE fetched_at <= $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge establishment cache: %w", err)
	}
	return res.RowsAffected()
}
