// Package query exposes the read side of the unified layer as go-command
// query messages.
package query

import (
	"strings"

	"github.com/goliatone/go-unified/core"
)

const (
	TypeGetSyncRun    = "unified.query.sync_run.get"
	TypeListSyncRuns  = "unified.query.sync_run.list"
	TypeLoadSyncState = "unified.query.sync_state.load"
	TypeListRecords   = "unified.query.record.list"
	TypeGetRecord     = "unified.query.record.get"
)

type GetSyncRunMessage struct {
	RunID string
}

func (GetSyncRunMessage) Type() string { return TypeGetSyncRun }

func (m GetSyncRunMessage) Validate() error {
	if strings.TrimSpace(m.RunID) == "" {
		return queryValidationError("run_id", "run id is required")
	}
	return nil
}

type ListSyncRunsMessage struct {
	Filter core.SyncRunFilter
}

func (ListSyncRunsMessage) Type() string { return TypeListSyncRuns }

func (m ListSyncRunsMessage) Validate() error {
	if m.Filter.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	return nil
}

type LoadSyncStateMessage struct {
	Pair core.PairKey
}

func (LoadSyncStateMessage) Type() string { return TypeLoadSyncState }

func (m LoadSyncStateMessage) Validate() error {
	if err := m.Pair.Validate(); err != nil {
		return queryWrapValidation(err, "query: invalid provider pair")
	}
	return nil
}

type ListRecordsMessage struct {
	Pair    core.PairKey
	Request core.ListRecordsRequest
}

func (ListRecordsMessage) Type() string { return TypeListRecords }

func (m ListRecordsMessage) Validate() error {
	if err := m.Pair.Validate(); err != nil {
		return queryWrapValidation(err, "query: invalid provider pair")
	}
	if strings.TrimSpace(m.Request.ObjectType) == "" {
		return queryValidationError("object_type", "object type is required")
	}
	if m.Request.PageSize < 0 {
		return queryValidationError("page_size", "page size must be >= 0")
	}
	return nil
}

type GetRecordMessage struct {
	Pair    core.PairKey
	Request core.GetRecordRequest
}

func (GetRecordMessage) Type() string { return TypeGetRecord }

func (m GetRecordMessage) Validate() error {
	if err := m.Pair.Validate(); err != nil {
		return queryWrapValidation(err, "query: invalid provider pair")
	}
	if strings.TrimSpace(m.Request.ObjectType) == "" {
		return queryValidationError("object_type", "object type is required")
	}
	if strings.TrimSpace(m.Request.RecordID) == "" {
		return queryValidationError("record_id", "record id is required")
	}
	return nil
}
