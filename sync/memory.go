package sync

import (
	"context"
	"fmt"
	"strings"
	gosync "sync"
	"time"

	"github.com/goliatone/go-unified/core"
)

// MemorySyncRunStore keeps sync runs in process memory. It enforces the same
// terminal-row immutability the SQL store does, so tests exercise the real
// lifecycle rules.
type MemorySyncRunStore struct {
	mu   gosync.Mutex
	runs map[string]core.SyncRun
}

func NewMemorySyncRunStore() *MemorySyncRunStore {
	return &MemorySyncRunStore{runs: make(map[string]core.SyncRun)}
}

func (s *MemorySyncRunStore) Create(_ context.Context, run core.SyncRun) (core.SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(run.ID) == "" {
		return core.SyncRun{}, fmt.Errorf("sync: run id is required")
	}
	if _, exists := s.runs[run.ID]; exists {
		return core.SyncRun{}, fmt.Errorf("sync: run %s already exists", run.ID)
	}
	s.runs[run.ID] = cloneRun(run)
	return run, nil
}

func (s *MemorySyncRunStore) Get(_ context.Context, id string) (core.SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[strings.TrimSpace(id)]
	if !ok {
		return core.SyncRun{}, core.ErrSyncRunNotFound
	}
	return cloneRun(run), nil
}

func (s *MemorySyncRunStore) Update(_ context.Context, run core.SyncRun) (core.SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.runs[run.ID]
	if !ok {
		return core.SyncRun{}, core.ErrSyncRunNotFound
	}
	if existing.Status.IsTerminal() {
		return core.SyncRun{}, core.ErrSyncRunTerminal
	}
	s.runs[run.ID] = cloneRun(run)
	return run, nil
}

func (s *MemorySyncRunStore) List(_ context.Context, filter core.SyncRunFilter) ([]core.SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.SyncRun
	for _, run := range s.runs {
		if filter.CustomerID != "" && run.CustomerID != filter.CustomerID {
			continue
		}
		if filter.ProviderName != "" && run.ProviderName != filter.ProviderName {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		out = append(out, cloneRun(run))
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func cloneRun(run core.SyncRun) core.SyncRun {
	out := run
	if run.ObjectTypes != nil {
		out.ObjectTypes = append([]string(nil), run.ObjectTypes...)
	}
	if run.Metadata != nil {
		out.Metadata = make(map[string]any, len(run.Metadata))
		for key, value := range run.Metadata {
			out.Metadata[key] = value
		}
	}
	return out
}

// MemorySyncStateStore keeps one state document per pair.
type MemorySyncStateStore struct {
	mu     gosync.Mutex
	states map[core.PairKey]core.SyncState
}

func NewMemorySyncStateStore() *MemorySyncStateStore {
	return &MemorySyncStateStore{states: make(map[core.PairKey]core.SyncState)}
}

func (s *MemorySyncStateStore) Get(_ context.Context, pair core.PairKey) (core.SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[pair]
	if !ok {
		return core.SyncState{}, core.ErrSyncStateNotFound
	}
	state.Document = state.Document.Clone()
	return state, nil
}

func (s *MemorySyncStateStore) Save(_ context.Context, state core.SyncState) (core.SyncState, error) {
	if err := state.Pair().Validate(); err != nil {
		return core.SyncState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := state
	stored.Document = state.Document.Clone()
	s.states[state.Pair()] = stored
	return state, nil
}

// MemoryLeaseStore implements atomic acquire-if-absent-or-expired lease
// semantics under one mutex.
type MemoryLeaseStore struct {
	mu     gosync.Mutex
	leases map[core.PairKey]core.RunLease

	// Now is swappable for tests; nil means wall clock.
	Now func() time.Time
}

func NewMemoryLeaseStore() *MemoryLeaseStore {
	return &MemoryLeaseStore{leases: make(map[core.PairKey]core.RunLease)}
}

func (s *MemoryLeaseStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *MemoryLeaseStore) Acquire(_ context.Context, pair core.PairKey, owner string, ttl time.Duration) (core.RunLease, error) {
	if err := pair.Validate(); err != nil {
		return core.RunLease{}, err
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return core.RunLease{}, fmt.Errorf("sync: lease owner is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.leases[pair]; ok && !existing.Expired(now) && existing.Owner != owner {
		return core.RunLease{}, core.ErrLeaseHeld
	}
	lease := core.RunLease{
		CustomerID:   pair.CustomerID,
		ProviderName: pair.ProviderName,
		Owner:        owner,
		AcquiredAt:   now,
		ExpiresAt:    now.Add(ttl),
	}
	s.leases[pair] = lease
	return lease, nil
}

func (s *MemoryLeaseStore) Renew(_ context.Context, pair core.PairKey, owner string, ttl time.Duration) (core.RunLease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.leases[pair]
	if !ok || existing.Owner != strings.TrimSpace(owner) {
		return core.RunLease{}, core.ErrLeaseNotHeld
	}
	now := s.now()
	existing.ExpiresAt = now.Add(ttl)
	s.leases[pair] = existing
	return existing, nil
}

func (s *MemoryLeaseStore) Release(_ context.Context, pair core.PairKey, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.leases[pair]
	if !ok || existing.Owner != strings.TrimSpace(owner) {
		return core.ErrLeaseNotHeld
	}
	delete(s.leases, pair)
	return nil
}

var (
	_ core.SyncRunStore   = (*MemorySyncRunStore)(nil)
	_ core.SyncStateStore = (*MemorySyncStateStore)(nil)
	_ core.LeaseStore     = (*MemoryLeaseStore)(nil)
)
