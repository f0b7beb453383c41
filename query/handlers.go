package query

import (
	"context"

	"github.com/goliatone/go-unified/core"
)

type SyncRunReader interface {
	Get(ctx context.Context, runID string) (core.SyncRun, error)
	List(ctx context.Context, filter core.SyncRunFilter) ([]core.SyncRun, error)
}

type SyncStateReader interface {
	Get(ctx context.Context, pair core.PairKey) (core.SyncState, error)
}

type RecordReader interface {
	ListRecords(ctx context.Context, pair core.PairKey, req core.ListRecordsRequest) (core.RecordPage, error)
	GetRecord(ctx context.Context, pair core.PairKey, req core.GetRecordRequest) (core.RecordWithRaw, error)
}

type GetSyncRunQuery struct {
	reader SyncRunReader
}

func NewGetSyncRunQuery(reader SyncRunReader) *GetSyncRunQuery {
	return &GetSyncRunQuery{reader: reader}
}

func (q *GetSyncRunQuery) Query(ctx context.Context, msg GetSyncRunMessage) (core.SyncRun, error) {
	if q == nil || q.reader == nil {
		return core.SyncRun{}, queryDependencyError("query: sync run reader is required")
	}
	return q.reader.Get(ctx, msg.RunID)
}

type ListSyncRunsQuery struct {
	reader SyncRunReader
}

func NewListSyncRunsQuery(reader SyncRunReader) *ListSyncRunsQuery {
	return &ListSyncRunsQuery{reader: reader}
}

func (q *ListSyncRunsQuery) Query(ctx context.Context, msg ListSyncRunsMessage) ([]core.SyncRun, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: sync run reader is required")
	}
	return q.reader.List(ctx, msg.Filter)
}

type LoadSyncStateQuery struct {
	reader SyncStateReader
}

func NewLoadSyncStateQuery(reader SyncStateReader) *LoadSyncStateQuery {
	return &LoadSyncStateQuery{reader: reader}
}

func (q *LoadSyncStateQuery) Query(ctx context.Context, msg LoadSyncStateMessage) (core.SyncState, error) {
	if q == nil || q.reader == nil {
		return core.SyncState{}, queryDependencyError("query: sync state reader is required")
	}
	return q.reader.Get(ctx, msg.Pair)
}

type ListRecordsQuery struct {
	reader RecordReader
}

func NewListRecordsQuery(reader RecordReader) *ListRecordsQuery {
	return &ListRecordsQuery{reader: reader}
}

func (q *ListRecordsQuery) Query(ctx context.Context, msg ListRecordsMessage) (core.RecordPage, error) {
	if q == nil || q.reader == nil {
		return core.RecordPage{}, queryDependencyError("query: record reader is required")
	}
	return q.reader.ListRecords(ctx, msg.Pair, msg.Request)
}

type GetRecordQuery struct {
	reader RecordReader
}

func NewGetRecordQuery(reader RecordReader) *GetRecordQuery {
	return &GetRecordQuery{reader: reader}
}

func (q *GetRecordQuery) Query(ctx context.Context, msg GetRecordMessage) (core.RecordWithRaw, error) {
	if q == nil || q.reader == nil {
		return core.RecordWithRaw{}, queryDependencyError("query: record reader is required")
	}
	return q.reader.GetRecord(ctx, msg.Pair, msg.Request)
}
