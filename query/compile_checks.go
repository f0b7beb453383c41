package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-unified/core"
)

var (
	_ gocmd.Querier[GetSyncRunMessage, core.SyncRun]      = (*GetSyncRunQuery)(nil)
	_ gocmd.Querier[ListSyncRunsMessage, []core.SyncRun]  = (*ListSyncRunsQuery)(nil)
	_ gocmd.Querier[LoadSyncStateMessage, core.SyncState] = (*LoadSyncStateQuery)(nil)
	_ gocmd.Querier[ListRecordsMessage, core.RecordPage]  = (*ListRecordsQuery)(nil)
	_ gocmd.Querier[GetRecordMessage, core.RecordWithRaw] = (*GetRecordQuery)(nil)
)
