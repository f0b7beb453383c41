package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-unified/core"
	"github.com/goliatone/go-unified/providers"
)

type stubAdapter struct {
	providers.Unimplemented

	listFn   func(ctx context.Context, req core.ListRecordsRequest) (core.RecordPage, error)
	upsertFn func(ctx context.Context, req core.UpsertRecordRequest) (core.WriteResult, error)
	listed   int
}

func (s *stubAdapter) ListRecords(ctx context.Context, req core.ListRecordsRequest) (core.RecordPage, error) {
	s.listed++
	if s.listFn != nil {
		return s.listFn(ctx, req)
	}
	return core.RecordPage{}, nil
}

func (s *stubAdapter) UpsertRecord(ctx context.Context, req core.UpsertRecordRequest) (core.WriteResult, error) {
	if s.upsertFn != nil {
		return s.upsertFn(ctx, req)
	}
	return core.WriteResult{}, nil
}

func newTestDispatcher(t *testing.T, adapter core.ProviderAdapter, opts ...Option) (*Dispatcher, *int) {
	t.Helper()
	registry := core.NewAdapterRegistry()
	builds := 0
	factory := core.AdapterFactoryFunc{
		Name: "hubspot",
		Build: func(context.Context, core.AdapterDeps) (core.ProviderAdapter, error) {
			builds++
			return adapter, nil
		},
	}
	if err := registry.Register(factory); err != nil {
		t.Fatalf("expected factory registration, got %v", err)
	}
	opts = append([]Option{WithSleep(func(context.Context, time.Duration) error { return nil })}, opts...)
	return New(registry, opts...), &builds
}

func testPair() core.PairKey {
	return core.PairKey{CustomerID: "cust_1", ProviderName: "hubspot"}
}

func TestListRecordsAppliesDefaultsAndPageSize(t *testing.T) {
	adapter := &stubAdapter{
		listFn: func(_ context.Context, req core.ListRecordsRequest) (core.RecordPage, error) {
			if req.PageSize != 100 {
				return core.RecordPage{}, core.NewKindError(core.ErrorKindInternal, "missing default page size")
			}
			return core.RecordPage{
				Items:       []core.CanonicalRecord{{"id": "1", "name": "Globex"}},
				HasNextPage: true,
				NextCursor:  "abc",
			}, nil
		},
	}
	dispatcher, _ := newTestDispatcher(t, adapter)

	page, err := dispatcher.ListRecords(context.Background(), testPair(), core.ListRecordsRequest{
		ObjectType: core.ObjectTypeAccount,
	})
	if err != nil {
		t.Fatalf("expected page, got error %v", err)
	}
	record := page.Items[0]
	if record["domain"] != "" || record["number_of_employees"] != float64(0) {
		t.Fatalf("expected schema defaults applied, got %#v", record)
	}
	if !page.HasNextPage || page.NextCursor != "abc" {
		t.Fatalf("pagination envelope not preserved: %#v", page)
	}
}

func TestUnknownObjectTypeFailsValidationWithoutAdapterCall(t *testing.T) {
	adapter := &stubAdapter{}
	dispatcher, _ := newTestDispatcher(t, adapter)

	_, err := dispatcher.ListRecords(context.Background(), testPair(), core.ListRecordsRequest{
		ObjectType: "invoice",
	})
	if core.KindOf(err) != core.ErrorKindValidationFailed {
		t.Fatalf("expected validation_failed, got %v", err)
	}
	if adapter.listed != 0 {
		t.Fatalf("adapter must not be called, got %d calls", adapter.listed)
	}
}

func TestUnknownProviderIsNotFound(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t, &stubAdapter{})

	_, err := dispatcher.ListRecords(context.Background(), core.PairKey{
		CustomerID:   "cust_1",
		ProviderName: "zoho",
	}, core.ListRecordsRequest{ObjectType: core.ObjectTypeAccount})
	if core.KindOf(err) != core.ErrorKindNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestInvalidPairFailsValidation(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t, &stubAdapter{})

	_, err := dispatcher.ListRecords(context.Background(), core.PairKey{CustomerID: "cust_1"},
		core.ListRecordsRequest{ObjectType: core.ObjectTypeAccount})
	if core.KindOf(err) != core.ErrorKindValidationFailed {
		t.Fatalf("expected validation_failed, got %v", err)
	}
}

func TestUpsertKeyMustBeAllowedBySchema(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t, &stubAdapter{})

	_, err := dispatcher.UpsertRecord(context.Background(), testPair(), core.UpsertRecordRequest{
		ObjectType: core.ObjectTypeAccount,
		Key:        core.UpsertKey{Name: "email", Values: []string{"ana@globex.test"}},
		Values:     map[string]any{"name": "Globex"},
	})
	if core.KindOf(err) != core.ErrorKindValidationFailed {
		t.Fatalf("expected validation_failed for disallowed key, got %v", err)
	}
}

func TestRetriesRateLimitedUntilSuccess(t *testing.T) {
	var delays []time.Duration
	attempts := 0
	adapter := &stubAdapter{
		listFn: func(context.Context, core.ListRecordsRequest) (core.RecordPage, error) {
			attempts++
			if attempts < 3 {
				return core.RecordPage{}, core.NewKindError(core.ErrorKindRateLimited, "hubspot: throttled")
			}
			return core.RecordPage{Items: []core.CanonicalRecord{{"id": "1"}}}, nil
		},
	}
	dispatcher, _ := newTestDispatcher(t, adapter,
		WithSleep(func(_ context.Context, delay time.Duration) error {
			delays = append(delays, delay)
			return nil
		}))

	page, err := dispatcher.ListRecords(context.Background(), testPair(), core.ListRecordsRequest{
		ObjectType: core.ObjectTypeAccount,
	})
	if err != nil {
		t.Fatalf("expected retried success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected final page, got %#v", page)
	}
	if len(delays) != 2 || delays[0] != 500*time.Millisecond || delays[1] != time.Second {
		t.Fatalf("expected exponential backoff 500ms/1s, got %v", delays)
	}
}

func TestRetryHonorsProviderRetryHint(t *testing.T) {
	var delays []time.Duration
	attempts := 0
	adapter := &stubAdapter{
		listFn: func(context.Context, core.ListRecordsRequest) (core.RecordPage, error) {
			attempts++
			if attempts == 1 {
				throttled := core.NewKindError(core.ErrorKindRateLimited, "hubspot: throttled")
				return core.RecordPage{}, core.WithRetryHint(throttled, 7*time.Second)
			}
			return core.RecordPage{}, nil
		},
	}
	dispatcher, _ := newTestDispatcher(t, adapter,
		WithSleep(func(_ context.Context, delay time.Duration) error {
			delays = append(delays, delay)
			return nil
		}))

	if _, err := dispatcher.ListRecords(context.Background(), testPair(), core.ListRecordsRequest{
		ObjectType: core.ObjectTypeAccount,
	}); err != nil {
		t.Fatalf("expected success after hinted retry, got %v", err)
	}
	if len(delays) != 1 || delays[0] != 7*time.Second {
		t.Fatalf("expected provider hint 7s, got %v", delays)
	}
}

func TestValidationErrorsAreNotRetried(t *testing.T) {
	attempts := 0
	adapter := &stubAdapter{
		listFn: func(context.Context, core.ListRecordsRequest) (core.RecordPage, error) {
			attempts++
			return core.RecordPage{}, core.NewKindError(core.ErrorKindValidationFailed, "hubspot: invalid cursor")
		},
	}
	dispatcher, _ := newTestDispatcher(t, adapter)

	_, err := dispatcher.ListRecords(context.Background(), testPair(), core.ListRecordsRequest{
		ObjectType: core.ObjectTypeAccount,
	})
	if core.KindOf(err) != core.ErrorKindValidationFailed {
		t.Fatalf("expected validation_failed, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestRetriesStopAtMaxAttempts(t *testing.T) {
	attempts := 0
	adapter := &stubAdapter{
		listFn: func(context.Context, core.ListRecordsRequest) (core.RecordPage, error) {
			attempts++
			return core.RecordPage{}, core.NewKindError(core.ErrorKindProviderUnavailable, "hubspot: upstream down")
		},
	}
	dispatcher, _ := newTestDispatcher(t, adapter)

	_, err := dispatcher.ListRecords(context.Background(), testPair(), core.ListRecordsRequest{
		ObjectType: core.ObjectTypeAccount,
	})
	if core.KindOf(err) != core.ErrorKindProviderUnavailable {
		t.Fatalf("expected provider_unavailable, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestCallerCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	adapter := &stubAdapter{
		listFn: func(context.Context, core.ListRecordsRequest) (core.RecordPage, error) {
			attempts++
			cancel()
			return core.RecordPage{}, core.NewKindError(core.ErrorKindRateLimited, "hubspot: throttled")
		},
	}
	dispatcher, _ := newTestDispatcher(t, adapter)

	_, err := dispatcher.ListRecords(ctx, testPair(), core.ListRecordsRequest{
		ObjectType: core.ObjectTypeAccount,
	})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if attempts != 1 {
		t.Fatalf("expected no retry after cancellation, got %d attempts", attempts)
	}
}

func TestAdapterInstancesAreCachedPerPair(t *testing.T) {
	adapter := &stubAdapter{}
	dispatcher, builds := newTestDispatcher(t, adapter)

	for i := 0; i < 3; i++ {
		if _, err := dispatcher.ListRecords(context.Background(), testPair(), core.ListRecordsRequest{
			ObjectType: core.ObjectTypeAccount,
		}); err != nil {
			t.Fatalf("expected page, got error %v", err)
		}
	}
	if *builds != 1 {
		t.Fatalf("expected one factory build, got %d", *builds)
	}
}

func TestEvictAdapterForcesRebuild(t *testing.T) {
	adapter := &stubAdapter{}
	dispatcher, builds := newTestDispatcher(t, adapter)

	if _, err := dispatcher.ListRecords(context.Background(), testPair(), core.ListRecordsRequest{
		ObjectType: core.ObjectTypeAccount,
	}); err != nil {
		t.Fatalf("expected page, got error %v", err)
	}
	dispatcher.EvictAdapter(testPair())
	if _, err := dispatcher.ListRecords(context.Background(), testPair(), core.ListRecordsRequest{
		ObjectType: core.ObjectTypeAccount,
	}); err != nil {
		t.Fatalf("expected page, got error %v", err)
	}
	if *builds != 2 {
		t.Fatalf("expected rebuild after eviction, got %d builds", *builds)
	}
}

func TestNotSupportedPassesThroughUnretried(t *testing.T) {
	adapter := &stubAdapter{}
	dispatcher, _ := newTestDispatcher(t, adapter)

	_, err := dispatcher.CreateObject(context.Background(), testPair(), core.CreateObjectRequest{
		Name: "invoice",
	})
	if core.KindOf(err) != core.ErrorKindNotSupported {
		t.Fatalf("expected not_supported from base adapter, got %v", err)
	}
}
