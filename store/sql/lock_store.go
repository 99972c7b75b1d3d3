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

const defaultLockTTL = 30 * time.Second

var errLockInsertRace = errors.New("sqlstore: lock insert race")

// LockStore backs the named mutex with lifecycle_locks rows. Acquisition
// is a transactional check-and-write keyed on the unique lock name, so
// two processes contending for a name resolve through the database.
type LockStore struct {
	db   *bun.DB
	repo repository.Repository[*lockRecord]
}

func NewLockStore(db *bun.DB) (*LockStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*lockRecord](db, lockHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid lock repository wiring: %w", err)
		}
	}
	return &LockStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *LockStore) TryAcquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: lock store is not configured")
	}
	name = strings.TrimSpace(name)
	owner = strings.TrimSpace(owner)
	if name == "" {
		return false, fmt.Errorf("sqlstore: lock name is required")
	}
	if owner == "" {
		return false, fmt.Errorf("sqlstore: lock owner is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	acquired := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now().UTC()
		until := now.Add(ttl)

		existing := &lockRecord{}
		err := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.name = ?", name).
			Limit(1).
			Scan(ctx)
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		if err == sql.ErrNoRows {
			record := &lockRecord{
				ID:        uuid.NewString(),
				Name:      name,
				Owner:     owner,
				HeldUntil: until,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				if isUniqueViolation(insertErr) {
					return errLockInsertRace
				}
				return insertErr
			}
			acquired = true
			return nil
		}

		if existing.Owner != owner && existing.HeldUntil.After(now) {
			return nil
		}

		existing.Owner = owner
		existing.HeldUntil = until
		existing.UpdatedAt = now
		if _, updateErr := tx.NewUpdate().
			Model(existing).
			Where("id = ?", existing.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		acquired = true
		return nil
	})
	if err != nil {
		if errors.Is(err, errLockInsertRace) {
			return false, nil
		}
		return false, err
	}
	return acquired, nil
}

func (s *LockStore) Release(ctx context.Context, name, owner string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: lock store is not configured")
	}
	name = strings.TrimSpace(name)
	owner = strings.TrimSpace(owner)
	if name == "" {
		return false, fmt.Errorf("sqlstore: lock name is required")
	}
	if owner == "" {
		return false, fmt.Errorf("sqlstore: lock owner is required")
	}

	live := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &lockRecord{}
		err := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.name = ?", name).
			Where("?TableAlias.owner = ?", owner).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return err
		}
		if _, deleteErr := tx.NewDelete().
			Model((*lockRecord)(nil)).
			Where("id = ?", existing.ID).
			Exec(ctx); deleteErr != nil {
			return deleteErr
		}
		live = existing.HeldUntil.After(time.Now().UTC())
		return nil
	})
	if err != nil {
		return false, err
	}
	return live, nil
}

func (s *LockStore) ForceRelease(ctx context.Context, name string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: lock store is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return false, fmt.Errorf("sqlstore: lock name is required")
	}
	result, err := s.db.NewDelete().
		Model((*lockRecord)(nil)).
		Where("name = ?", name).
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

// PurgeExpired drops lock rows whose lease lapsed before the cutoff.
// Live semantics do not depend on it; expired rows already read as free.
func (s *LockStore) PurgeExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: lock store is not configured")
	}
	if limit <= 0 {
		limit = defaultOperationListLimit
	}

	var ids []string
	err := s.db.NewSelect().
		Model((*lockRecord)(nil)).
		Column("id").
		Where("?TableAlias.held_until < ?", before.UTC()).
		OrderExpr("?TableAlias.held_until ASC").
		Limit(limit).
		Scan(ctx, &ids)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := s.db.NewDelete().
		Model((*lockRecord)(nil)).
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
