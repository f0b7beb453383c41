// Package sync drives incremental record synchronization per (customer,
// provider) pair: it owns the SyncRun lifecycle, the exclusive run lease, and
// the durable watermark document that makes runs resumable after a crash.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-unified/core"
	"github.com/google/uuid"
)

// RecordLister is the slice of the dispatcher the orchestrator drives.
type RecordLister interface {
	ListRecords(ctx context.Context, pair core.PairKey, req core.ListRecordsRequest) (core.RecordPage, error)
}

var defaultObjectTypes = []string{
	core.ObjectTypeAccount,
	core.ObjectTypeContact,
	core.ObjectTypeLead,
	core.ObjectTypeOpportunity,
	core.ObjectTypeUser,
}

type Orchestrator struct {
	lister  RecordLister
	runs    core.SyncRunStore
	states  core.SyncStateStore
	leases  core.LeaseStore
	sink    core.RecordSink
	config  core.SyncConfig
	logger  core.Logger
	metrics core.MetricsRecorder
	nowFn   func() time.Time
	idFn    func() string
}

type Option func(*Orchestrator)

func WithConfig(config core.SyncConfig) Option {
	return func(o *Orchestrator) {
		o.config = config
	}
}

func WithRecordSink(sink core.RecordSink) Option {
	return func(o *Orchestrator) {
		o.sink = sink
	}
}

func WithLogger(logger core.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(o *Orchestrator) {
		o.metrics = recorder
	}
}

func WithNow(nowFn func() time.Time) Option {
	return func(o *Orchestrator) {
		o.nowFn = nowFn
	}
}

func WithIDGenerator(idFn func() string) Option {
	return func(o *Orchestrator) {
		o.idFn = idFn
	}
}

func New(lister RecordLister, runs core.SyncRunStore, states core.SyncStateStore, leases core.LeaseStore, opts ...Option) *Orchestrator {
	orchestrator := &Orchestrator{
		lister:  lister,
		runs:    runs,
		states:  states,
		leases:  leases,
		config:  core.DefaultConfig().Sync,
		logger:  glog.Ensure(nil),
		metrics: core.NopMetricsRecorder{},
		nowFn:   func() time.Time { return time.Now().UTC() },
		idFn:    uuid.NewString,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(orchestrator)
	}
	orchestrator.logger = glog.Ensure(orchestrator.logger)
	if orchestrator.metrics == nil {
		orchestrator.metrics = core.NopMetricsRecorder{}
	}
	return orchestrator
}

type StartRunRequest struct {
	CustomerID   string
	ProviderName string
	ObjectTypes  []string
	Metadata     map[string]any
}

// StartRun acquires the pair's exclusive lease and records a pending run.
// Losing the lease race is a conflict; the caller retries later or watches the
// active run instead.
func (o *Orchestrator) StartRun(ctx context.Context, req StartRunRequest) (core.SyncRun, error) {
	pair := core.PairKey{
		CustomerID:   strings.TrimSpace(req.CustomerID),
		ProviderName: strings.TrimSpace(req.ProviderName),
	}
	if err := pair.Validate(); err != nil {
		return core.SyncRun{}, core.NewKindError(core.ErrorKindValidationFailed, err.Error())
	}
	objectTypes := normalizeObjectTypes(req.ObjectTypes)
	if len(objectTypes) == 0 {
		objectTypes = append([]string(nil), defaultObjectTypes...)
	}

	runID := o.idFn()
	if _, err := o.leases.Acquire(ctx, pair, runID, o.config.LeaseTTL()); err != nil {
		if errors.Is(err, core.ErrLeaseHeld) {
			return core.SyncRun{}, core.NewKindError(core.ErrorKindConflict,
				fmt.Sprintf("sync: a run is already active for %s", pair))
		}
		return core.SyncRun{}, core.MapError(err)
	}

	now := o.nowFn()
	run := core.SyncRun{
		ID:           runID,
		CustomerID:   pair.CustomerID,
		ProviderName: pair.ProviderName,
		ObjectTypes:  objectTypes,
		Status:       core.SyncRunStatusPending,
		Metadata:     req.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	created, err := o.runs.Create(ctx, run)
	if err != nil {
		o.releaseLease(ctx, pair, runID)
		return core.SyncRun{}, core.MapError(err)
	}
	o.logger.Info("sync run created", "run_id", runID, "pair", pair.String(), "object_types", strings.Join(objectTypes, ","))
	return created, nil
}

// Execute drives one pending run to a terminal status. SyncState is persisted
// only at object-type boundaries, so a crash mid-type resumes from the last
// durable watermark and may replay the in-flight page.
func (o *Orchestrator) Execute(ctx context.Context, runID string) error {
	run, err := o.runs.Get(ctx, strings.TrimSpace(runID))
	if err != nil {
		if errors.Is(err, core.ErrSyncRunNotFound) {
			return core.NewKindError(core.ErrorKindNotFound, fmt.Sprintf("sync: run %s not found", runID))
		}
		return core.MapError(err)
	}
	if run.Status != core.SyncRunStatusPending {
		return core.NewKindError(core.ErrorKindConflict,
			fmt.Sprintf("sync: run %s is %s, only pending runs execute", run.ID, run.Status))
	}
	pair := run.Pair()

	if err := run.TransitionTo(core.SyncRunStatusRunning, "", o.nowFn()); err != nil {
		return core.MapError(err)
	}
	if run, err = o.runs.Update(ctx, run); err != nil {
		return core.MapError(err)
	}
	defer o.releaseLease(ctx, pair, run.ID)

	state, err := o.states.Get(ctx, pair)
	if err != nil {
		if !errors.Is(err, core.ErrSyncStateNotFound) {
			return o.failRun(ctx, &run, err)
		}
		state = core.SyncState{
			CustomerID:   pair.CustomerID,
			ProviderName: pair.ProviderName,
			Document:     core.NewStateDocument(),
		}
	}
	watermarks := state.Document.Clone()
	lastHeartbeat := o.nowFn()
	startedAt := lastHeartbeat

	for _, objectType := range run.ObjectTypes {
		cancelled, err := o.syncObjectType(ctx, &run, pair, &state, &watermarks, objectType, &lastHeartbeat)
		if err != nil {
			return err
		}
		if cancelled {
			return nil
		}
	}

	if err := run.TransitionTo(core.SyncRunStatusSucceeded, "", o.nowFn()); err != nil {
		return core.MapError(err)
	}
	if _, err := o.runs.Update(ctx, run); err != nil {
		if errors.Is(err, core.ErrSyncRunTerminal) {
			return nil
		}
		return core.MapError(err)
	}
	o.metrics.ObserveHistogram(ctx, "unified.sync.run.duration_ms",
		float64(o.nowFn().Sub(startedAt).Milliseconds()),
		map[string]string{"provider_name": pair.ProviderName, "status": string(core.SyncRunStatusSucceeded)})
	o.logger.Info("sync run succeeded", "run_id", run.ID, "pair", pair.String())
	return nil
}

// syncObjectType pages one object type to completion. It reports cancelled
// when cooperative cancellation ended the run between pages.
func (o *Orchestrator) syncObjectType(
	ctx context.Context,
	run *core.SyncRun,
	pair core.PairKey,
	state *core.SyncState,
	watermarks *core.StateDocument,
	objectType string,
	lastHeartbeat *time.Time,
) (bool, error) {
	prior, _ := watermarks.ObjectState(objectType)
	cursor := prior.Cursor
	modifiedAfter := prior.CompletedAt
	firstPage := true

	for {
		cancelled, err := o.checkCancelled(ctx, run)
		if err != nil {
			return false, err
		}
		if cancelled {
			o.logger.Info("sync run cancelled", "run_id", run.ID, "pair", pair.String(), "object_type", objectType)
			return true, nil
		}
		if err := o.heartbeat(ctx, pair, run.ID, lastHeartbeat); err != nil {
			return false, o.failRun(ctx, run, err)
		}

		page, err := o.lister.ListRecords(ctx, pair, core.ListRecordsRequest{
			ObjectType:    objectType,
			Cursor:        cursor,
			PageSize:      o.config.PageSize,
			ModifiedAfter: modifiedAfter,
		})
		if err != nil {
			if firstPage && core.KindOf(err) == core.ErrorKindNotSupported {
				o.logger.Warn("sync skipped unsupported object type",
					"run_id", run.ID, "pair", pair.String(), "object_type", objectType)
				return false, nil
			}
			return false, o.failRun(ctx, run, err)
		}
		firstPage = false

		if o.sink != nil && len(page.Items) > 0 {
			if err := o.sink.WriteRecords(ctx, pair, objectType, page.Items); err != nil {
				return false, o.failRun(ctx, run, err)
			}
		}
		o.metrics.IncCounter(ctx, "unified.sync.records.total", int64(len(page.Items)),
			map[string]string{"provider_name": pair.ProviderName, "object_type": objectType})

		if page.HasNextPage {
			cursor = page.NextCursor
			watermarks.SetObjectState(objectType, core.ObjectState{Cursor: cursor})
			continue
		}

		completedAt := o.nowFn()
		watermarks.SetObjectState(objectType, core.ObjectState{CompletedAt: &completedAt})
		state.Document = watermarks.Clone()
		state.UpdatedAt = completedAt
		saved, err := o.states.Save(ctx, *state)
		if err != nil {
			return false, o.failRun(ctx, run, err)
		}
		*state = saved
		return false, nil
	}
}

// CancelRun flags a pending or running run as cancelled. The executing worker
// observes the terminal status at its next page boundary. Only a pending run
// releases its lease here; a running run keeps the pair locked until its
// worker finishes the in-flight page and releases on the way out, so no new
// run can interleave writes with it.
func (o *Orchestrator) CancelRun(ctx context.Context, runID string) (core.SyncRun, error) {
	run, err := o.runs.Get(ctx, strings.TrimSpace(runID))
	if err != nil {
		if errors.Is(err, core.ErrSyncRunNotFound) {
			return core.SyncRun{}, core.NewKindError(core.ErrorKindNotFound, fmt.Sprintf("sync: run %s not found", runID))
		}
		return core.SyncRun{}, core.MapError(err)
	}
	if run.Status.IsTerminal() {
		return core.SyncRun{}, core.NewKindError(core.ErrorKindConflict,
			fmt.Sprintf("sync: run %s is already %s", run.ID, run.Status))
	}
	wasPending := run.Status == core.SyncRunStatusPending
	if err := run.TransitionTo(core.SyncRunStatusCancelled, "", o.nowFn()); err != nil {
		return core.SyncRun{}, core.MapError(err)
	}
	updated, err := o.runs.Update(ctx, run)
	if err != nil {
		return core.SyncRun{}, core.MapError(err)
	}
	if wasPending {
		o.releaseLease(ctx, run.Pair(), run.ID)
	}
	o.logger.Info("sync run cancel requested", "run_id", run.ID, "pair", run.Pair().String())
	return updated, nil
}

func (o *Orchestrator) checkCancelled(ctx context.Context, run *core.SyncRun) (bool, error) {
	if ctx.Err() != nil {
		// Process shutdown leaves the run as-is; the unrenewed lease expires
		// and a later start reclaims the pair.
		return false, core.MapError(ctx.Err())
	}
	latest, err := o.runs.Get(ctx, run.ID)
	if err != nil {
		return false, core.MapError(err)
	}
	if latest.Status == core.SyncRunStatusCancelled {
		*run = latest
		return true, nil
	}
	return false, nil
}

func (o *Orchestrator) heartbeat(ctx context.Context, pair core.PairKey, owner string, lastHeartbeat *time.Time) error {
	now := o.nowFn()
	if now.Sub(*lastHeartbeat) < o.config.Heartbeat() {
		return nil
	}
	if _, err := o.leases.Renew(ctx, pair, owner, o.config.LeaseTTL()); err != nil {
		return fmt.Errorf("sync: lease heartbeat: %w", err)
	}
	*lastHeartbeat = now
	return nil
}

// failRun records the failure reason and transitions the run. SyncState stays
// untouched: the last durable watermark is still the resume point.
func (o *Orchestrator) failRun(ctx context.Context, run *core.SyncRun, cause error) error {
	mapped := core.MapError(cause)
	if err := run.TransitionTo(core.SyncRunStatusFailed, mapped.Error(), o.nowFn()); err != nil {
		if errors.Is(err, core.ErrSyncRunTerminal) {
			return mapped
		}
		return core.MapError(err)
	}
	if _, err := o.runs.Update(ctx, *run); err != nil && !errors.Is(err, core.ErrSyncRunTerminal) {
		o.logger.Error("sync run failure not recorded", "run_id", run.ID, "error", err.Error())
	}
	o.logger.Error("sync run failed", "run_id", run.ID, "reason", mapped.Error())
	return mapped
}

func (o *Orchestrator) releaseLease(ctx context.Context, pair core.PairKey, owner string) {
	if err := o.leases.Release(ctx, pair, owner); err != nil && !errors.Is(err, core.ErrLeaseNotHeld) {
		o.logger.Warn("sync lease release failed", "pair", pair.String(), "error", err.Error())
	}
}

func normalizeObjectTypes(objectTypes []string) []string {
	seen := make(map[string]struct{}, len(objectTypes))
	out := make([]string, 0, len(objectTypes))
	for _, objectType := range objectTypes {
		trimmed := strings.TrimSpace(objectType)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
