package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[StartSyncMessage]    = (*StartSyncCommand)(nil)
	_ gocmd.Commander[CancelSyncMessage]   = (*CancelSyncCommand)(nil)
	_ gocmd.Commander[CreateRecordMessage] = (*CreateRecordCommand)(nil)
	_ gocmd.Commander[UpdateRecordMessage] = (*UpdateRecordCommand)(nil)
	_ gocmd.Commander[UpsertRecordMessage] = (*UpsertRecordCommand)(nil)
)
