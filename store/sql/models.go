package sqlstore

import (
	"time"

	"github.com/goliatone/go-lifecycle/core"
	"github.com/uptrace/bun"
)

type operationRecord struct {
	bun.BaseModel `bun:"table:lifecycle_operations,alias:lop"`

	ID          string                `bun:"id,pk"`
	Function    string                `bun:"function,notnull"`
	FnVersion   string                `bun:"fn_version"`
	OwnerID     string                `bun:"owner_id"`
	Status      string                `bun:"status,notnull"`
	Progress    *float64              `bun:"progress"`
	Result      map[string]any        `bun:"result,type:jsonb"`
	Errors      []core.OperationError `bun:"errors,type:jsonb"`
	Metadata    map[string]any        `bun:"metadata,type:jsonb,notnull"`
	CallbackURL string                `bun:"callback_url"`
	Version     int64                 `bun:"version,notnull"`
	StartedAt   *time.Time            `bun:"started_at,nullzero"`
	CompletedAt *time.Time            `bun:"completed_at,nullzero"`
	CancelledAt *time.Time            `bun:"cancelled_at,nullzero"`
	ExpiresAt   *time.Time            `bun:"expires_at,nullzero"`
	CreatedAt   time.Time             `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time             `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type cacheEntryRecord struct {
	bun.BaseModel `bun:"table:lifecycle_cache_entries,alias:lce"`

	ID        string     `bun:"id,pk"`
	Key       string     `bun:"key,notnull"`
	Value     []byte     `bun:"value,notnull"`
	ExpiresAt *time.Time `bun:"expires_at,nullzero"`
	CreatedAt time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type lockRecord struct {
	bun.BaseModel `bun:"table:lifecycle_locks,alias:llk"`

	ID        string    `bun:"id,pk"`
	Name      string    `bun:"name,notnull"`
	Owner     string    `bun:"owner,notnull"`
	HeldUntil time.Time `bun:"held_until,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
