// Package command exposes the mutating operations of the unified layer as
// go-command messages so callers can dispatch them through a shared
// command bus.
package command

import (
	"strings"

	"github.com/goliatone/go-unified/core"
	unifiedsync "github.com/goliatone/go-unified/sync"
)

const (
	TypeStartSync    = "unified.command.sync.start"
	TypeCancelSync   = "unified.command.sync.cancel"
	TypeCreateRecord = "unified.command.record.create"
	TypeUpdateRecord = "unified.command.record.update"
	TypeUpsertRecord = "unified.command.record.upsert"
)

type StartSyncMessage struct {
	Request unifiedsync.StartRunRequest
}

func (StartSyncMessage) Type() string { return TypeStartSync }

func (m StartSyncMessage) Validate() error {
	if strings.TrimSpace(m.Request.CustomerID) == "" {
		return commandValidationError("customer_id", "customer id is required")
	}
	if strings.TrimSpace(m.Request.ProviderName) == "" {
		return commandValidationError("provider_name", "provider name is required")
	}
	return nil
}

type CancelSyncMessage struct {
	RunID string
}

func (CancelSyncMessage) Type() string { return TypeCancelSync }

func (m CancelSyncMessage) Validate() error {
	if strings.TrimSpace(m.RunID) == "" {
		return commandValidationError("run_id", "run id is required")
	}
	return nil
}

type CreateRecordMessage struct {
	Pair    core.PairKey
	Request core.CreateRecordRequest
}

func (CreateRecordMessage) Type() string { return TypeCreateRecord }

func (m CreateRecordMessage) Validate() error {
	if err := validatePair(m.Pair); err != nil {
		return err
	}
	if strings.TrimSpace(m.Request.ObjectType) == "" {
		return commandValidationError("object_type", "object type is required")
	}
	if len(m.Request.Values) == 0 {
		return commandValidationError("values", "record values are required")
	}
	return nil
}

type UpdateRecordMessage struct {
	Pair    core.PairKey
	Request core.UpdateRecordRequest
}

func (UpdateRecordMessage) Type() string { return TypeUpdateRecord }

func (m UpdateRecordMessage) Validate() error {
	if err := validatePair(m.Pair); err != nil {
		return err
	}
	if strings.TrimSpace(m.Request.ObjectType) == "" {
		return commandValidationError("object_type", "object type is required")
	}
	if strings.TrimSpace(m.Request.RecordID) == "" {
		return commandValidationError("record_id", "record id is required")
	}
	if len(m.Request.Values) == 0 {
		return commandValidationError("values", "record values are required")
	}
	return nil
}

type UpsertRecordMessage struct {
	Pair    core.PairKey
	Request core.UpsertRecordRequest
}

func (UpsertRecordMessage) Type() string { return TypeUpsertRecord }

func (m UpsertRecordMessage) Validate() error {
	if err := validatePair(m.Pair); err != nil {
		return err
	}
	if strings.TrimSpace(m.Request.ObjectType) == "" {
		return commandValidationError("object_type", "object type is required")
	}
	if strings.TrimSpace(m.Request.Key.Name) == "" {
		return commandValidationError("key.name", "upsert key name is required")
	}
	if len(m.Request.Key.Values) == 0 {
		return commandValidationError("key.values", "upsert key values are required")
	}
	return nil
}

func validatePair(pair core.PairKey) error {
	if err := pair.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid provider pair")
	}
	return nil
}
