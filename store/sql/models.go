package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type syncRunRecord struct {
	bun.BaseModel `bun:"table:unified_sync_runs,alias:usr"`

	ID            string         `bun:"id,pk"`
	CustomerID    string         `bun:"customer_id,notnull"`
	ProviderName  string         `bun:"provider_name,notnull"`
	ObjectTypes   []string       `bun:"object_types,type:jsonb,notnull"`
	Status        string         `bun:"status,notnull"`
	FailureReason string         `bun:"failure_reason"`
	StartedAt     *time.Time     `bun:"started_at,nullzero"`
	CompletedAt   *time.Time     `bun:"completed_at,nullzero"`
	Metadata      map[string]any `bun:"metadata,type:jsonb"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type syncStateRecord struct {
	bun.BaseModel `bun:"table:unified_sync_state,alias:uss"`

	ID           string    `bun:"id,pk"`
	CustomerID   string    `bun:"customer_id,notnull"`
	ProviderName string    `bun:"provider_name,notnull"`
	Document     []byte    `bun:"document,type:jsonb,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type syncLeaseRecord struct {
	bun.BaseModel `bun:"table:unified_sync_leases,alias:usl"`

	ID           string    `bun:"id,pk"`
	CustomerID   string    `bun:"customer_id,notnull"`
	ProviderName string    `bun:"provider_name,notnull"`
	Owner        string    `bun:"owner,notnull"`
	AcquiredAt   time.Time `bun:"acquired_at,notnull"`
	ExpiresAt    time.Time `bun:"expires_at,notnull"`
}

type rateLimitStateRecord struct {
	bun.BaseModel `bun:"table:unified_rate_limit_states,alias:urls"`

	ID           string         `bun:"id,pk"`
	CustomerID   string         `bun:"customer_id,notnull"`
	ProviderName string         `bun:"provider_name,notnull"`
	BucketKey    string         `bun:"bucket_key,notnull"`
	Limit        int            `bun:"rate_limit,notnull"`
	Remaining    int            `bun:"remaining,notnull"`
	ResetAt      *time.Time     `bun:"reset_at,nullzero"`
	RetryAfter   *int           `bun:"retry_after_seconds,nullzero"`
	Metadata     map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt    time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
