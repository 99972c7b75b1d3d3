package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var errCacheEntryInsertRace = errors.New("sqlstore: cache entry insert race")

// CacheEntryStore keeps lock metadata and cancellation tokens in
// lifecycle_cache_entries so they survive process restarts. Expired rows
// read as misses; PurgeExpired reclaims them from the sweeper.
type CacheEntryStore struct {
	db   *bun.DB
	repo repository.Repository[*cacheEntryRecord]
}

func NewCacheEntryStore(db *bun.DB) (*CacheEntryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*cacheEntryRecord](db, cacheEntryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid cache entry repository wiring: %w", err)
		}
	}
	return &CacheEntryStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *CacheEntryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, fmt.Errorf("sqlstore: cache entry store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, fmt.Errorf("sqlstore: cache key is required")
	}
	record := &cacheEntryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	if record.ExpiresAt != nil && !record.ExpiresAt.After(time.Now().UTC()) {
		return nil, false, nil
	}
	return append([]byte(nil), record.Value...), true, nil
}

func (s *CacheEntryStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: cache entry store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("sqlstore: cache key is required")
	}

	err := s.put(ctx, key, value, ttl)
	if errors.Is(err, errCacheEntryInsertRace) {
		// A concurrent writer inserted the row first; retry on the update path.
		err = s.put(ctx, key, value, ttl)
	}
	return err
}

func (s *CacheEntryStore) put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now().UTC()
		var expiresAt *time.Time
		if ttl > 0 {
			deadline := now.Add(ttl)
			expiresAt = &deadline
		}

		existing := &cacheEntryRecord{}
		err := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.key = ?", key).
			Limit(1).
			Scan(ctx)
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		if err == sql.ErrNoRows {
			record := &cacheEntryRecord{
				ID:        uuid.NewString(),
				Key:       key,
				Value:     append([]byte(nil), value...),
				ExpiresAt: expiresAt,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				if isUniqueViolation(insertErr) {
					return errCacheEntryInsertRace
				}
				return insertErr
			}
			return nil
		}

		existing.Value = append([]byte(nil), value...)
		existing.ExpiresAt = expiresAt
		existing.UpdatedAt = now
		_, updateErr := tx.NewUpdate().
			Model(existing).
			Where("id = ?", existing.ID).
			Exec(ctx)
		return updateErr
	})
}

func (s *CacheEntryStore) Forget(ctx context.Context, key string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: cache entry store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("sqlstore: cache key is required")
	}
	result, err := s.db.NewDelete().
		Model((*cacheEntryRecord)(nil)).
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *CacheEntryStore) PurgeExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: cache entry store is not configured")
	}
	if limit <= 0 {
		limit = defaultOperationListLimit
	}

	var ids []string
	err := s.db.NewSelect().
		Model((*cacheEntryRecord)(nil)).
		Column("id").
		Where("?TableAlias.expires_at IS NOT NULL").
		Where("?TableAlias.expires_at < ?", before.UTC()).
		OrderExpr("?TableAlias.expires_at ASC").
		Limit(limit).
		Scan(ctx, &ids)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := s.db.NewDelete().
		Model((*cacheEntryRecord)(nil)).
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}
