package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-unified/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// LeaseStore backs the per-pair exclusive run lease with a single row per
// (customer, provider). Acquire, renew, and release all run inside one
// transaction so two workers cannot both win the same pair.
type LeaseStore struct {
	db *bun.DB

	// Now is swappable for expiry tests.
	Now func() time.Time
}

func NewLeaseStore(db *bun.DB) (*LeaseStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &LeaseStore{
		db:  db,
		Now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *LeaseStore) Acquire(ctx context.Context, pair core.PairKey, owner string, ttl time.Duration) (core.RunLease, error) {
	if s == nil || s.db == nil {
		return core.RunLease{}, fmt.Errorf("sqlstore: lease store is not configured")
	}
	owner = strings.TrimSpace(owner)
	if err := pair.Validate(); err != nil {
		return core.RunLease{}, err
	}
	if owner == "" {
		return core.RunLease{}, fmt.Errorf("sqlstore: lease owner is required")
	}
	if ttl <= 0 {
		return core.RunLease{}, fmt.Errorf("sqlstore: lease ttl must be positive")
	}

	now := s.Now()
	var out core.RunLease
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		stored, err := findLeaseTx(ctx, tx, pair)
		if err != nil {
			return err
		}
		if stored != nil && stored.Owner != owner && now.Before(stored.ExpiresAt) {
			return core.ErrLeaseHeld
		}

		record := &syncLeaseRecord{
			CustomerID:   pair.CustomerID,
			ProviderName: pair.ProviderName,
			Owner:        owner,
			AcquiredAt:   now,
			ExpiresAt:    now.Add(ttl),
		}
		if stored == nil {
			record.ID = uuid.NewString()
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				if isUniqueViolation(insertErr) {
					return core.ErrLeaseHeld
				}
				return insertErr
			}
			out = record.toDomain()
			return nil
		}

		record.ID = stored.ID
		if _, updateErr := tx.NewUpdate().
			Model(record).
			Where("id = ?", record.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.RunLease{}, err
	}
	return out, nil
}

func (s *LeaseStore) Renew(ctx context.Context, pair core.PairKey, owner string, ttl time.Duration) (core.RunLease, error) {
	if s == nil || s.db == nil {
		return core.RunLease{}, fmt.Errorf("sqlstore: lease store is not configured")
	}
	owner = strings.TrimSpace(owner)
	if err := pair.Validate(); err != nil {
		return core.RunLease{}, err
	}
	if owner == "" {
		return core.RunLease{}, fmt.Errorf("sqlstore: lease owner is required")
	}

	now := s.Now()
	var out core.RunLease
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		stored, err := findLeaseTx(ctx, tx, pair)
		if err != nil {
			return err
		}
		if stored == nil || stored.Owner != owner || !now.Before(stored.ExpiresAt) {
			return core.ErrLeaseNotHeld
		}

		stored.ExpiresAt = now.Add(ttl)
		if _, updateErr := tx.NewUpdate().
			Model(stored).
			Where("id = ?", stored.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = stored.toDomain()
		return nil
	})
	if err != nil {
		return core.RunLease{}, err
	}
	return out, nil
}

func (s *LeaseStore) Release(ctx context.Context, pair core.PairKey, owner string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: lease store is not configured")
	}
	owner = strings.TrimSpace(owner)
	if err := pair.Validate(); err != nil {
		return err
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		stored, err := findLeaseTx(ctx, tx, pair)
		if err != nil {
			return err
		}
		if stored == nil || stored.Owner != owner {
			return core.ErrLeaseNotHeld
		}
		if _, deleteErr := tx.NewDelete().
			Model((*syncLeaseRecord)(nil)).
			Where("id = ?", stored.ID).
			Exec(ctx); deleteErr != nil {
			return deleteErr
		}
		return nil
	})
}

func findLeaseTx(ctx context.Context, tx bun.Tx, pair core.PairKey) (*syncLeaseRecord, error) {
	record := &syncLeaseRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.customer_id = ?", pair.CustomerID).
		Where("?TableAlias.provider_name = ?", pair.ProviderName).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}
