package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-unified/core"
	unifiedmigrations "github.com/goliatone/go-unified/migrations"
	"github.com/goliatone/go-unified/ratelimit"
	sqlstore "github.com/goliatone/go-unified/store/sql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-unified-tests"
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:unified-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = unifiedmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != unifiedmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, unifiedmigrations.WithValidationTargets(unifiedmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func newFactory(t *testing.T) (*sqlstore.RepositoryFactory, func()) {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		cleanup()
		t.Fatalf("new repository factory: %v", err)
	}
	return factory, cleanup
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"unified_sync_runs",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "unified_sync_runs" {
		t.Fatalf("expected unified_sync_runs table, got %q", tableName)
	}
}

func TestSyncRunStore_TerminalRowsRejectUpdates(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	store := factory.SyncRunStore()
	now := time.Now().UTC()
	run, err := store.Create(ctx, core.SyncRun{
		CustomerID:   "cust_1",
		ProviderName: "hubspot",
		ObjectTypes:  []string{core.ObjectTypeAccount},
		Status:       core.SyncRunStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("create run: %v", err)
	}

	if err := run.TransitionTo(core.SyncRunStatusRunning, "", now); err != nil {
		t.Fatalf("transition running: %v", err)
	}
	if run, err = store.Update(ctx, run); err != nil {
		t.Fatalf("update running: %v", err)
	}
	if err := run.TransitionTo(core.SyncRunStatusSucceeded, "", now); err != nil {
		t.Fatalf("transition succeeded: %v", err)
	}
	if run, err = store.Update(ctx, run); err != nil {
		t.Fatalf("update succeeded: %v", err)
	}

	run.Status = core.SyncRunStatusCancelled
	if _, err := store.Update(ctx, run); !errors.Is(err, core.ErrSyncRunTerminal) {
		t.Fatalf("expected terminal rejection, got %v", err)
	}

	loaded, err := store.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if loaded.Status != core.SyncRunStatusSucceeded {
		t.Fatalf("expected terminal row untouched, got %s", loaded.Status)
	}
}

func TestSyncRunStore_GetMissingReturnsNotFound(t *testing.T) {
	factory, cleanup := newFactory(t)
	defer cleanup()

	if _, err := factory.SyncRunStore().Get(context.Background(), "missing"); !errors.Is(err, core.ErrSyncRunNotFound) {
		t.Fatalf("expected ErrSyncRunNotFound, got %v", err)
	}
}

func TestSyncRunStore_ListFiltersByPairAndStatus(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	store := factory.SyncRunStore()
	now := time.Now().UTC()
	seed := []core.SyncRun{
		{CustomerID: "cust_1", ProviderName: "hubspot", Status: core.SyncRunStatusPending, CreatedAt: now},
		{CustomerID: "cust_1", ProviderName: "apollo", Status: core.SyncRunStatusPending, CreatedAt: now},
		{CustomerID: "cust_2", ProviderName: "hubspot", Status: core.SyncRunStatusPending, CreatedAt: now},
	}
	for _, run := range seed {
		if _, err := store.Create(ctx, run); err != nil {
			t.Fatalf("create run: %v", err)
		}
	}

	runs, err := store.List(ctx, core.SyncRunFilter{CustomerID: "cust_1", ProviderName: "hubspot"})
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ProviderName != "hubspot" || runs[0].CustomerID != "cust_1" {
		t.Fatalf("expected single cust_1/hubspot run, got %v", runs)
	}
}

func TestSyncStateStore_UpsertRoundTrip(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	store := factory.SyncStateStore()
	pair := core.PairKey{CustomerID: "cust_1", ProviderName: "hubspot"}

	if _, err := store.Get(ctx, pair); !errors.Is(err, core.ErrSyncStateNotFound) {
		t.Fatalf("expected ErrSyncStateNotFound, got %v", err)
	}

	document := core.NewStateDocument()
	document.SetObjectState(core.ObjectTypeAccount, core.ObjectState{Cursor: "abc"})
	if _, err := store.Save(ctx, core.SyncState{
		CustomerID:   pair.CustomerID,
		ProviderName: pair.ProviderName,
		Document:     document,
	}); err != nil {
		t.Fatalf("save initial state: %v", err)
	}

	completed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	document.SetObjectState(core.ObjectTypeAccount, core.ObjectState{CompletedAt: &completed})
	if _, err := store.Save(ctx, core.SyncState{
		CustomerID:   pair.CustomerID,
		ProviderName: pair.ProviderName,
		Document:     document,
	}); err != nil {
		t.Fatalf("save updated state: %v", err)
	}

	loaded, err := store.Get(ctx, pair)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	accountState, ok := loaded.Document.ObjectState(core.ObjectTypeAccount)
	if !ok {
		t.Fatalf("expected account watermark")
	}
	if accountState.Cursor != "" {
		t.Fatalf("expected cleared cursor after completion, got %q", accountState.Cursor)
	}
	if accountState.CompletedAt == nil || !accountState.CompletedAt.Equal(completed) {
		t.Fatalf("expected completion timestamp %s, got %v", completed, accountState.CompletedAt)
	}
}

func TestLeaseStore_AcquireRenewReleaseExpiry(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	store := factory.LeaseStore()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }
	pair := core.PairKey{CustomerID: "cust_1", ProviderName: "hubspot"}

	lease, err := store.Acquire(ctx, pair, "run_1", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if lease.Owner != "run_1" {
		t.Fatalf("expected run_1 owner, got %s", lease.Owner)
	}

	if _, err := store.Acquire(ctx, pair, "run_2", time.Minute); !errors.Is(err, core.ErrLeaseHeld) {
		t.Fatalf("expected ErrLeaseHeld, got %v", err)
	}
	if _, err := store.Renew(ctx, pair, "run_2", time.Minute); !errors.Is(err, core.ErrLeaseNotHeld) {
		t.Fatalf("expected non-owner renew rejection, got %v", err)
	}

	now = now.Add(30 * time.Second)
	renewed, err := store.Renew(ctx, pair, "run_1", time.Minute)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if !renewed.ExpiresAt.After(lease.ExpiresAt) {
		t.Fatalf("expected renewal to extend expiry, got %s", renewed.ExpiresAt)
	}

	now = now.Add(2 * time.Minute)
	takeover, err := store.Acquire(ctx, pair, "run_2", time.Minute)
	if err != nil {
		t.Fatalf("expected expired lease takeover, got %v", err)
	}
	if takeover.Owner != "run_2" {
		t.Fatalf("expected run_2 owner after expiry, got %s", takeover.Owner)
	}

	if err := store.Release(ctx, pair, "run_1"); !errors.Is(err, core.ErrLeaseNotHeld) {
		t.Fatalf("expected stale owner release rejection, got %v", err)
	}
	if err := store.Release(ctx, pair, "run_2"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := store.Acquire(ctx, pair, "run_3", time.Minute); err != nil {
		t.Fatalf("expected acquire after release, got %v", err)
	}
}

func TestRateLimitStateStore_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	factory, cleanup := newFactory(t)
	defer cleanup()

	store := factory.RateLimitStateStore()
	key := core.RateLimitKey{CustomerID: "cust_1", ProviderName: "hubspot", BucketKey: "api"}

	if _, err := store.Get(ctx, key); !errors.Is(err, ratelimit.ErrStateNotFound) {
		t.Fatalf("expected ErrStateNotFound, got %v", err)
	}

	retryAfter := 7 * time.Second
	if err := store.Upsert(ctx, ratelimit.State{
		Key:        key,
		Limit:      100,
		Remaining:  0,
		RetryAfter: &retryAfter,
		LastStatus: 429,
		Attempts:   2,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	state, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.Limit != 100 || state.Remaining != 0 {
		t.Fatalf("expected limit/remaining round trip, got %+v", state)
	}
	if state.RetryAfter == nil || *state.RetryAfter != retryAfter {
		t.Fatalf("expected retry-after %s, got %v", retryAfter, state.RetryAfter)
	}
	if state.LastStatus != 429 || state.Attempts != 2 {
		t.Fatalf("expected status metadata round trip, got %+v", state)
	}
}
