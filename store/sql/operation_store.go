package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-lifecycle/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

const defaultOperationListLimit = 50

// OperationStore is the bun-backed operation record store. Save relies on
// a conditional UPDATE against the stored version, so concurrent writers
// race on the row instead of on an in-process mutex.
type OperationStore struct {
	db   *bun.DB
	repo repository.Repository[*operationRecord]
}

func NewOperationStore(db *bun.DB) (*OperationStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*operationRecord](db, operationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid operation repository wiring: %w", err)
		}
	}
	return &OperationStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *OperationStore) Find(ctx context.Context, id string) (core.Operation, error) {
	if s == nil || s.db == nil {
		return core.Operation{}, fmt.Errorf("sqlstore: operation store is not configured")
	}
	id = strings.TrimSpace(id)
	record := &operationRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Operation{}, fmt.Errorf("%w: id %q", core.ErrOperationNotFound, id)
		}
		return core.Operation{}, err
	}
	return record.toDomain(), nil
}

func (s *OperationStore) Save(ctx context.Context, op core.Operation, expectedVersion int64) (core.Operation, error) {
	if s == nil || s.db == nil {
		return core.Operation{}, fmt.Errorf("sqlstore: operation store is not configured")
	}
	id := strings.TrimSpace(op.ID)
	if id == "" {
		return core.Operation{}, fmt.Errorf("sqlstore: operation id is required")
	}
	op.ID = id

	if expectedVersion == 0 {
		op.Version = 1
		record := newOperationRecord(op)
		if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return core.Operation{}, fmt.Errorf("%w: id %q", core.ErrOperationExists, id)
			}
			return core.Operation{}, err
		}
		return record.toDomain(), nil
	}

	op.Version = expectedVersion + 1
	record := newOperationRecord(op)
	result, err := s.db.NewUpdate().
		Model(record).
		Where("id = ?", id).
		Where("version = ?", expectedVersion).
		Exec(ctx)
	if err != nil {
		return core.Operation{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return core.Operation{}, err
	}
	if affected == 0 {
		stored := &operationRecord{}
		scanErr := s.db.NewSelect().
			Model(stored).
			Column("version").
			Where("?TableAlias.id = ?", id).
			Limit(1).
			Scan(ctx)
		if scanErr != nil {
			if scanErr == sql.ErrNoRows {
				return core.Operation{}, fmt.Errorf("%w: id %q", core.ErrOperationNotFound, id)
			}
			return core.Operation{}, scanErr
		}
		return core.Operation{}, fmt.Errorf("%w: id %q expected version %d, stored version %d",
			core.ErrOperationVersionConflict, id, expectedVersion, stored.Version)
	}
	return record.toDomain(), nil
}

func (s *OperationStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: operation store is not configured")
	}
	id = strings.TrimSpace(id)
	result, err := s.db.NewDelete().
		Model((*operationRecord)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: id %q", core.ErrOperationNotFound, id)
	}
	return nil
}

func (s *OperationStore) List(ctx context.Context, filter core.OperationListFilter) (core.OperationPage, error) {
	if s == nil || s.db == nil {
		return core.OperationPage{}, fmt.Errorf("sqlstore: operation store is not configured")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultOperationListLimit
	}

	records := make([]operationRecord, 0, limit+1)
	query := s.db.NewSelect().
		Model(&records).
		OrderExpr("?TableAlias.created_at ASC, ?TableAlias.id ASC").
		Limit(limit + 1)
	query = applyOperationFilter(query, filter)

	if cursor := strings.TrimSpace(filter.Cursor); cursor != "" {
		anchor := &operationRecord{}
		err := s.db.NewSelect().
			Model(anchor).
			Column("created_at", "id").
			Where("?TableAlias.id = ?", cursor).
			Limit(1).
			Scan(ctx)
		if err != nil && err != sql.ErrNoRows {
			return core.OperationPage{}, err
		}
		// Unknown cursors restart from the top rather than failing the read.
		if err == nil {
			query = query.Where(
				"(?TableAlias.created_at > ?) OR (?TableAlias.created_at = ? AND ?TableAlias.id > ?)",
				anchor.CreatedAt, anchor.CreatedAt, anchor.ID,
			)
		}
	}

	if err := query.Scan(ctx); err != nil {
		return core.OperationPage{}, err
	}

	page := core.OperationPage{Items: make([]core.Operation, 0, len(records))}
	if len(records) > limit {
		records = records[:limit]
		page.HasMore = true
	}
	for index := range records {
		page.Items = append(page.Items, records[index].toDomain())
	}
	if page.HasMore && len(page.Items) > 0 {
		page.NextCursor = page.Items[len(page.Items)-1].ID
	}
	return page, nil
}

func (s *OperationStore) CountActiveByOwner(ctx context.Context, ownerID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: operation store is not configured")
	}
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return 0, nil
	}
	return s.db.NewSelect().
		Model((*operationRecord)(nil)).
		Where("?TableAlias.owner_id = ?", ownerID).
		Where("?TableAlias.status NOT IN (?)", bun.In(terminalOperationStatuses())).
		Count(ctx)
}

func (s *OperationStore) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: operation store is not configured")
	}
	if limit <= 0 {
		limit = defaultOperationListLimit
	}

	var ids []string
	err := s.db.NewSelect().
		Model((*operationRecord)(nil)).
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
		Model((*operationRecord)(nil)).
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

func applyOperationFilter(query *bun.SelectQuery, filter core.OperationListFilter) *bun.SelectQuery {
	if function := strings.TrimSpace(filter.Function); function != "" {
		query = query.Where("?TableAlias.function = ?", function)
	}
	if ownerID := strings.TrimSpace(filter.OwnerID); ownerID != "" {
		query = query.Where("?TableAlias.owner_id = ?", ownerID)
	}
	if filter.Status != "" {
		query = query.Where("?TableAlias.status = ?", string(filter.Status))
	}
	if filter.Active {
		query = query.Where("?TableAlias.status NOT IN (?)", bun.In(terminalOperationStatuses()))
	}
	return query
}

func terminalOperationStatuses() []string {
	return []string{
		string(core.OperationStatusCompleted),
		string(core.OperationStatusFailed),
		string(core.OperationStatusCancelled),
	}
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
