package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-unified/core"
	unifiedsync "github.com/goliatone/go-unified/sync"
)

type SyncMutatingService interface {
	StartRun(ctx context.Context, req unifiedsync.StartRunRequest) (core.SyncRun, error)
	CancelRun(ctx context.Context, runID string) (core.SyncRun, error)
}

type RecordMutatingService interface {
	CreateRecord(ctx context.Context, pair core.PairKey, req core.CreateRecordRequest) (core.WriteResult, error)
	UpdateRecord(ctx context.Context, pair core.PairKey, req core.UpdateRecordRequest) (core.WriteResult, error)
	UpsertRecord(ctx context.Context, pair core.PairKey, req core.UpsertRecordRequest) (core.WriteResult, error)
}

type StartSyncCommand struct {
	service SyncMutatingService
}

func NewStartSyncCommand(service SyncMutatingService) *StartSyncCommand {
	return &StartSyncCommand{service: service}
}

func (c *StartSyncCommand) Execute(ctx context.Context, msg StartSyncMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sync service is required")
	}
	out, err := c.service.StartRun(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CancelSyncCommand struct {
	service SyncMutatingService
}

func NewCancelSyncCommand(service SyncMutatingService) *CancelSyncCommand {
	return &CancelSyncCommand{service: service}
}

func (c *CancelSyncCommand) Execute(ctx context.Context, msg CancelSyncMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sync service is required")
	}
	out, err := c.service.CancelRun(ctx, msg.RunID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CreateRecordCommand struct {
	service RecordMutatingService
}

func NewCreateRecordCommand(service RecordMutatingService) *CreateRecordCommand {
	return &CreateRecordCommand{service: service}
}

func (c *CreateRecordCommand) Execute(ctx context.Context, msg CreateRecordMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: record service is required")
	}
	out, err := c.service.CreateRecord(ctx, msg.Pair, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpdateRecordCommand struct {
	service RecordMutatingService
}

func NewUpdateRecordCommand(service RecordMutatingService) *UpdateRecordCommand {
	return &UpdateRecordCommand{service: service}
}

func (c *UpdateRecordCommand) Execute(ctx context.Context, msg UpdateRecordMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: record service is required")
	}
	out, err := c.service.UpdateRecord(ctx, msg.Pair, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpsertRecordCommand struct {
	service RecordMutatingService
}

func NewUpsertRecordCommand(service RecordMutatingService) *UpsertRecordCommand {
	return &UpsertRecordCommand{service: service}
}

func (c *UpsertRecordCommand) Execute(ctx context.Context, msg UpsertRecordMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: record service is required")
	}
	out, err := c.service.UpsertRecord(ctx, msg.Pair, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
