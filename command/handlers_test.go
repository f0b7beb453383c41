package command

import (
	"context"
	"fmt"
	"testing"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-unified/core"
	unifiedsync "github.com/goliatone/go-unified/sync"
)

type stubSyncMutatingService struct {
	startFn  func(ctx context.Context, req unifiedsync.StartRunRequest) (core.SyncRun, error)
	cancelFn func(ctx context.Context, runID string) (core.SyncRun, error)
}

func (s stubSyncMutatingService) StartRun(ctx context.Context, req unifiedsync.StartRunRequest) (core.SyncRun, error) {
	if s.startFn == nil {
		return core.SyncRun{}, fmt.Errorf("unexpected StartRun call")
	}
	return s.startFn(ctx, req)
}

func (s stubSyncMutatingService) CancelRun(ctx context.Context, runID string) (core.SyncRun, error) {
	if s.cancelFn == nil {
		return core.SyncRun{}, fmt.Errorf("unexpected CancelRun call")
	}
	return s.cancelFn(ctx, runID)
}

type stubRecordMutatingService struct {
	createFn func(ctx context.Context, pair core.PairKey, req core.CreateRecordRequest) (core.WriteResult, error)
	updateFn func(ctx context.Context, pair core.PairKey, req core.UpdateRecordRequest) (core.WriteResult, error)
	upsertFn func(ctx context.Context, pair core.PairKey, req core.UpsertRecordRequest) (core.WriteResult, error)
}

func (s stubRecordMutatingService) CreateRecord(ctx context.Context, pair core.PairKey, req core.CreateRecordRequest) (core.WriteResult, error) {
	if s.createFn == nil {
		return core.WriteResult{}, fmt.Errorf("unexpected CreateRecord call")
	}
	return s.createFn(ctx, pair, req)
}

func (s stubRecordMutatingService) UpdateRecord(ctx context.Context, pair core.PairKey, req core.UpdateRecordRequest) (core.WriteResult, error) {
	if s.updateFn == nil {
		return core.WriteResult{}, fmt.Errorf("unexpected UpdateRecord call")
	}
	return s.updateFn(ctx, pair, req)
}

func (s stubRecordMutatingService) UpsertRecord(ctx context.Context, pair core.PairKey, req core.UpsertRecordRequest) (core.WriteResult, error) {
	if s.upsertFn == nil {
		return core.WriteResult{}, fmt.Errorf("unexpected UpsertRecord call")
	}
	return s.upsertFn(ctx, pair, req)
}

func TestStartSyncCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.SyncRun{ID: "run-1", Status: core.SyncRunStatusPending}
	called := false

	svc := stubSyncMutatingService{
		startFn: func(_ context.Context, req unifiedsync.StartRunRequest) (core.SyncRun, error) {
			called = true
			if req.CustomerID != "cust-1" || req.ProviderName != "hubspot" {
				t.Fatalf("unexpected start request: %#v", req)
			}
			return expected, nil
		},
	}

	cmd := NewStartSyncCommand(svc)
	collector := gocmd.NewResult[core.SyncRun]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, StartSyncMessage{Request: unifiedsync.StartRunRequest{
		CustomerID:   "cust-1",
		ProviderName: "hubspot",
		ObjectTypes:  []string{"contact"},
	}})
	if err != nil {
		t.Fatalf("execute start sync: %v", err)
	}
	if !called {
		t.Fatalf("expected start run invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.ID != expected.ID || result.Status != expected.Status {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestCancelSyncCommand_ExecuteDelegates(t *testing.T) {
	called := false
	svc := stubSyncMutatingService{
		cancelFn: func(_ context.Context, runID string) (core.SyncRun, error) {
			called = true
			if runID != "run-9" {
				t.Fatalf("unexpected run id %q", runID)
			}
			return core.SyncRun{ID: runID, Status: core.SyncRunStatusCancelled}, nil
		},
	}

	cmd := NewCancelSyncCommand(svc)
	collector := gocmd.NewResult[core.SyncRun]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, CancelSyncMessage{RunID: "run-9"}); err != nil {
		t.Fatalf("execute cancel sync: %v", err)
	}
	if !called {
		t.Fatalf("expected cancel run invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected cancelled run result")
	}
	if result.Status != core.SyncRunStatusCancelled {
		t.Fatalf("expected cancelled status, got %q", result.Status)
	}
}

func TestRecordCommands_DelegateToService(t *testing.T) {
	pair := core.PairKey{CustomerID: "cust-1", ProviderName: "salesforce"}

	t.Run("create", func(t *testing.T) {
		called := false
		svc := stubRecordMutatingService{
			createFn: func(_ context.Context, gotPair core.PairKey, req core.CreateRecordRequest) (core.WriteResult, error) {
				called = true
				if gotPair != pair {
					t.Fatalf("unexpected pair %#v", gotPair)
				}
				if req.ObjectType != "account" {
					t.Fatalf("unexpected object type %q", req.ObjectType)
				}
				return core.WriteResult{RecordID: "a-1"}, nil
			},
		}
		cmd := NewCreateRecordCommand(svc)
		collector := gocmd.NewResult[core.WriteResult]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		err := cmd.Execute(ctx, CreateRecordMessage{
			Pair: pair,
			Request: core.CreateRecordRequest{
				ObjectType: "account",
				Values:     map[string]any{"name": "Initech"},
			},
		})
		if err != nil {
			t.Fatalf("execute create record: %v", err)
		}
		if !called {
			t.Fatalf("expected create record invocation")
		}
		result, ok := collector.Load()
		if !ok || result.RecordID != "a-1" {
			t.Fatalf("unexpected create result: %#v ok=%v", result, ok)
		}
	})

	t.Run("update", func(t *testing.T) {
		called := false
		svc := stubRecordMutatingService{
			updateFn: func(_ context.Context, _ core.PairKey, req core.UpdateRecordRequest) (core.WriteResult, error) {
				called = true
				if req.RecordID != "c-2" {
					t.Fatalf("unexpected record id %q", req.RecordID)
				}
				return core.WriteResult{RecordID: req.RecordID}, nil
			},
		}
		cmd := NewUpdateRecordCommand(svc)
		err := cmd.Execute(context.Background(), UpdateRecordMessage{
			Pair: pair,
			Request: core.UpdateRecordRequest{
				ObjectType: "contact",
				RecordID:   "c-2",
				Values:     map[string]any{"name": "Ada"},
			},
		})
		if err != nil {
			t.Fatalf("execute update record: %v", err)
		}
		if !called {
			t.Fatalf("expected update record invocation")
		}
	})

	t.Run("upsert", func(t *testing.T) {
		called := false
		svc := stubRecordMutatingService{
			upsertFn: func(_ context.Context, _ core.PairKey, req core.UpsertRecordRequest) (core.WriteResult, error) {
				called = true
				if req.Key.Name != "email" {
					t.Fatalf("unexpected upsert key %#v", req.Key)
				}
				return core.WriteResult{RecordID: "c-3"}, nil
			},
		}
		cmd := NewUpsertRecordCommand(svc)
		err := cmd.Execute(context.Background(), UpsertRecordMessage{
			Pair: pair,
			Request: core.UpsertRecordRequest{
				ObjectType: "contact",
				Key:        core.UpsertKey{Name: "email", Values: []string{"ada@example.com"}},
				Values:     map[string]any{"name": "Ada"},
			},
		})
		if err != nil {
			t.Fatalf("execute upsert record: %v", err)
		}
		if !called {
			t.Fatalf("expected upsert record invocation")
		}
	})
}

func TestCommands_PropagateServiceErrors(t *testing.T) {
	svc := stubSyncMutatingService{
		startFn: func(context.Context, unifiedsync.StartRunRequest) (core.SyncRun, error) {
			return core.SyncRun{}, core.NewKindError(core.ErrorKindConflict, "a run is already active")
		},
	}
	cmd := NewStartSyncCommand(svc)
	err := cmd.Execute(context.Background(), StartSyncMessage{Request: unifiedsync.StartRunRequest{
		CustomerID:   "cust-1",
		ProviderName: "hubspot",
	}})
	if err == nil {
		t.Fatalf("expected conflict error")
	}
	if kind := core.KindOf(err); kind != core.ErrorKindConflict {
		t.Fatalf("expected conflict kind, got %q", kind)
	}
}
