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

type SyncRunStore struct {
	db   *bun.DB
	repo repository.Repository[*syncRunRecord]
}

func NewSyncRunStore(db *bun.DB) (*SyncRunStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*syncRunRecord](db, syncRunHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid sync run repository wiring: %w", err)
		}
	}
	return &SyncRunStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *SyncRunStore) Create(ctx context.Context, run core.SyncRun) (core.SyncRun, error) {
	if s == nil || s.repo == nil {
		return core.SyncRun{}, fmt.Errorf("sqlstore: sync run store is not configured")
	}
	run.ID = strings.TrimSpace(run.ID)
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = run.CreatedAt
	}

	created, err := s.repo.Create(ctx, newSyncRunRecord(run))
	if err != nil {
		if isUniqueViolation(err) {
			return core.SyncRun{}, fmt.Errorf("sqlstore: sync run %s already exists", run.ID)
		}
		return core.SyncRun{}, err
	}
	return created.toDomain(), nil
}

func (s *SyncRunStore) Get(ctx context.Context, id string) (core.SyncRun, error) {
	if s == nil || s.repo == nil {
		return core.SyncRun{}, fmt.Errorf("sqlstore: sync run store is not configured")
	}
	record, err := s.findByID(ctx, id)
	if err != nil {
		return core.SyncRun{}, err
	}
	return record.toDomain(), nil
}

// Update rejects writes against rows that already reached a terminal status.
// A cancel and a worker completion can race; the first terminal write wins.
func (s *SyncRunStore) Update(ctx context.Context, run core.SyncRun) (core.SyncRun, error) {
	if s == nil || s.repo == nil {
		return core.SyncRun{}, fmt.Errorf("sqlstore: sync run store is not configured")
	}
	run.ID = strings.TrimSpace(run.ID)
	if run.ID == "" {
		return core.SyncRun{}, fmt.Errorf("sqlstore: sync run id is required")
	}

	stored, err := s.findByID(ctx, run.ID)
	if err != nil {
		return core.SyncRun{}, err
	}
	if core.SyncRunStatus(stored.Status).IsTerminal() {
		return core.SyncRun{}, core.ErrSyncRunTerminal
	}

	record := newSyncRunRecord(run)
	record.CreatedAt = stored.CreatedAt
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}
	updated, err := s.repo.Update(ctx, record, repository.UpdateByID(record.ID))
	if err != nil {
		return core.SyncRun{}, err
	}
	return updated.toDomain(), nil
}

func (s *SyncRunStore) List(ctx context.Context, filter core.SyncRunFilter) ([]core.SyncRun, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: sync run store is not configured")
	}

	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
	}
	if customerID := strings.TrimSpace(filter.CustomerID); customerID != "" {
		selectors = append(selectors, repository.SelectBy("customer_id", "=", customerID))
	}
	if providerName := strings.TrimSpace(filter.ProviderName); providerName != "" {
		selectors = append(selectors, repository.SelectBy("provider_name", "=", providerName))
	}
	if status := strings.TrimSpace(string(filter.Status)); status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", status))
	}
	if filter.Limit > 0 {
		selectors = append(selectors, repository.SelectPaginate(filter.Limit, 0))
	}

	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	out := make([]core.SyncRun, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *SyncRunStore) findByID(ctx context.Context, id string) (*syncRunRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("sqlstore: sync run id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", id),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, core.ErrSyncRunNotFound
	}
	return records[0], nil
}
