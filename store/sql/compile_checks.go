package sqlstore

import "github.com/goliatone/go-unified/core"

var (
	_ core.SyncRunStore   = (*SyncRunStore)(nil)
	_ core.SyncStateStore = (*SyncStateStore)(nil)
	_ core.LeaseStore     = (*LeaseStore)(nil)
)
