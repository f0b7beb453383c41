package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-unified/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type SyncStateStore struct {
	db   *bun.DB
	repo repository.Repository[*syncStateRecord]
}

func NewSyncStateStore(db *bun.DB) (*SyncStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*syncStateRecord](db, syncStateHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid sync state repository wiring: %w", err)
		}
	}
	return &SyncStateStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *SyncStateStore) Get(ctx context.Context, pair core.PairKey) (core.SyncState, error) {
	if s == nil || s.repo == nil {
		return core.SyncState{}, fmt.Errorf("sqlstore: sync state store is not configured")
	}
	if err := pair.Validate(); err != nil {
		return core.SyncState{}, err
	}

	record, err := s.findByPair(ctx, pair)
	if err != nil {
		return core.SyncState{}, err
	}
	if record == nil {
		return core.SyncState{}, core.ErrSyncStateNotFound
	}
	return record.toDomain()
}

// Save upserts the single watermark row per pair. Concurrent first writes race
// on the pair's unique index; the loser retries as an update.
func (s *SyncStateStore) Save(ctx context.Context, state core.SyncState) (core.SyncState, error) {
	if s == nil || s.repo == nil {
		return core.SyncState{}, fmt.Errorf("sqlstore: sync state store is not configured")
	}
	state.CustomerID = strings.TrimSpace(state.CustomerID)
	state.ProviderName = strings.TrimSpace(state.ProviderName)
	if err := state.Pair().Validate(); err != nil {
		return core.SyncState{}, err
	}
	now := time.Now().UTC()
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = now
	}

	stored, err := s.findByPair(ctx, state.Pair())
	if err != nil {
		return core.SyncState{}, err
	}
	if stored == nil {
		record, err := newSyncStateRecord(state)
		if err != nil {
			return core.SyncState{}, err
		}
		record.ID = uuid.NewString()
		if record.CreatedAt.IsZero() {
			record.CreatedAt = now
		}
		created, createErr := s.repo.Create(ctx, record)
		if createErr == nil {
			return created.toDomain()
		}
		if !isUniqueViolation(createErr) {
			return core.SyncState{}, createErr
		}
		stored, err = s.findByPair(ctx, state.Pair())
		if err != nil {
			return core.SyncState{}, err
		}
		if stored == nil {
			return core.SyncState{}, createErr
		}
	}

	updated, err := newSyncStateRecord(state)
	if err != nil {
		return core.SyncState{}, err
	}
	updated.ID = stored.ID
	updated.CreatedAt = stored.CreatedAt
	saved, err := s.repo.Update(ctx, updated, repository.UpdateByID(updated.ID))
	if err != nil {
		return core.SyncState{}, err
	}
	return saved.toDomain()
}

func (s *SyncStateStore) findByPair(ctx context.Context, pair core.PairKey) (*syncStateRecord, error) {
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("customer_id", "=", pair.CustomerID),
		repository.SelectBy("provider_name", "=", pair.ProviderName),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}
