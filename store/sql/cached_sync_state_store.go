package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-unified/core"
)

const syncStateCacheKeyPrefix = "go-unified::sync_state::v1"

// CachedSyncStateStore serves watermark reads from cache between checkpoints.
// Save writes through to the base store and invalidates the pair's entry, so a
// resuming run always observes the last durable checkpoint.
type CachedSyncStateStore struct {
	base  core.SyncStateStore
	cache repositorycache.CacheService
}

func NewCachedSyncStateStore(
	base core.SyncStateStore,
	cacheService repositorycache.CacheService,
) (*CachedSyncStateStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base sync state store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: sync state cache service is required")
	}
	return &CachedSyncStateStore{base: base, cache: cacheService}, nil
}

// SyncStateCacheKey returns the deterministic cache key contract for sync
// state reads: go-unified::sync_state::v1::<customer>::<provider> with each
// segment URL-path escaped.
func SyncStateCacheKey(pair core.PairKey) (string, error) {
	pair.CustomerID = strings.TrimSpace(pair.CustomerID)
	pair.ProviderName = strings.TrimSpace(pair.ProviderName)
	if err := pair.Validate(); err != nil {
		return "", err
	}
	segments := []string{
		url.PathEscape(pair.CustomerID),
		url.PathEscape(pair.ProviderName),
	}
	return strings.Join(append([]string{syncStateCacheKeyPrefix}, segments...), "::"), nil
}

func (s *CachedSyncStateStore) Get(ctx context.Context, pair core.PairKey) (core.SyncState, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.SyncState{}, fmt.Errorf("sqlstore: cached sync state store is not configured")
	}
	cacheKey, err := SyncStateCacheKey(pair)
	if err != nil {
		return core.SyncState{}, err
	}

	state, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.SyncState, error) {
		fetched, fetchErr := s.base.Get(ctx, pair)
		if fetchErr != nil {
			return core.SyncState{}, fetchErr
		}
		return cloneSyncState(fetched), nil
	})
	if err != nil {
		return core.SyncState{}, err
	}
	return cloneSyncState(state), nil
}

func (s *CachedSyncStateStore) Save(ctx context.Context, state core.SyncState) (core.SyncState, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.SyncState{}, fmt.Errorf("sqlstore: cached sync state store is not configured")
	}
	cacheKey, err := SyncStateCacheKey(state.Pair())
	if err != nil {
		return core.SyncState{}, err
	}

	saved, err := s.base.Save(ctx, state)
	if err != nil {
		return core.SyncState{}, err
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return core.SyncState{}, err
	}
	return saved, nil
}

func cloneSyncState(state core.SyncState) core.SyncState {
	cloned := state
	cloned.Document = state.Document.Clone()
	return cloned
}

var _ core.SyncStateStore = (*CachedSyncStateStore)(nil)
