package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/medforge/contentgen/internal/domain/model"
)

// GenerationCacheRepo stores content-addressed generation results in Postgres.
type GenerationCacheRepo struct {
	DB *sql.DB
}

// NewGenerationCacheRepo creates a new GenerationCacheRepo.
func NewGenerationCacheRepo(db *sql.DB) *GenerationCacheRepo {
	return &GenerationCacheRepo{DB: db}
}

const cacheColumns = `key, mode, context, response, model, tokens_used, cost::float8, hits, created_at, last_accessed_at, expires_at`

func scanCacheEntry(scanner jobRowScanner) (*model.CacheEntry, error) {
	var e model.CacheEntry
	var ctxJSON, respJSON []byte
	if err := scanner.Scan(
		&e.Key, &e.Mode, &ctxJSON, &respJSON, &e.Model, &e.TokensUsed, &e.Cost, &e.Hits,
		&e.CreatedAt, &e.LastAccessedAt, &e.ExpiresAt,
	); err != nil {
		return nil, err
	}
	e.Context = append([]byte(nil), ctxJSON...)
	e.Response = append([]byte(nil), respJSON...)
	e.CreatedAt = e.CreatedAt.UTC()
	e.LastAccessedAt = e.LastAccessedAt.UTC()
	e.ExpiresAt = e.ExpiresAt.UTC()
	return &e, nil
}

// Lookup records a hit on a live entry and returns it. An expired entry is deleted and
// reported as a miss.
func (r *GenerationCacheRepo) Lookup(ctx context.Context, key string, now time.Time) (*model.CacheEntry, error) {
	now = now.UTC()
	row := r.DB.QueryRowContext(ctx, `
		UPDATE generation_cache
		SET hits = hits + 1,
		    last_accessed_at = $2
		WHERE key = $1 AND expires_at >= $2
		RETURNING `+cacheColumns, key, now)
	entry, err := scanCacheEntry(row)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cache lookup: %w", err)
	}

	if _, err := r.DB.ExecContext(ctx, `DELETE FROM generation_cache WHERE key = $1 AND expires_at < $2`, key, now); err != nil {
		return nil, fmt.Errorf("evict expired cache entry: %w", err)
	}
	return nil, nil
}

// Upsert writes entry. On key collision the response and metadata are replaced; hits are kept.
func (r *GenerationCacheRepo) Upsert(ctx context.Context, e *model.CacheEntry) error {
	if e == nil || e.Key == "" {
		return errors.New("cache entry with key is required")
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO generation_cache
			(key, mode, context, response, model, tokens_used, cost, hits, created_at, last_accessed_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $8, $9)
		ON CONFLICT (key) DO UPDATE SET
			mode = EXCLUDED.mode,
			context = EXCLUDED.context,
			response = EXCLUDED.response,
			model = EXCLUDED.model,
			tokens_used = EXCLUDED.tokens_used,
			cost = EXCLUDED.cost,
			created_at = EXCLUDED.created_at,
			last_accessed_at = EXCLUDED.last_accessed_at,
			expires_at = EXCLUDED.expires_at
	`, e.Key, e.Mode, []byte(e.Context), []byte(e.Response), e.Model, e.TokensUsed, e.Cost,
		e.CreatedAt.UTC(), e.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("cache upsert: %w", err)
	}
	return nil
}

// PurgeExpired deletes up to batchSize expired entries.
func (r *GenerationCacheRepo) PurgeExpired(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	var n int64
	_, err := withAdvisoryLock(ctx, r.DB, advisoryLockPurgeCache, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM generation_cache
			WHERE key IN (
				SELECT key FROM generation_cache
				WHERE expires_at < $1
				ORDER BY expires_at
				LIMIT $2
			)
		`, now.UTC(), batchSize)
		if err != nil {
			return fmt.Errorf("purge expired cache entries: %w", err)
		}
		n, err = rowsAffected(res)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
