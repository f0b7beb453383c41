// Package unified is the composition root for the provider abstraction
// layer. It re-exports the core contract types and wires the dispatcher,
// sync orchestrator, stores and HTTP surface behind one facade so
// downstream applications depend on a single import path.
package unified

import "github.com/goliatone/go-unified/core"

type Config = core.Config

type SyncConfig = core.SyncConfig

type DispatchConfig = core.DispatchConfig

type PairKey = core.PairKey

type CanonicalRecord = core.CanonicalRecord

type RecordPage = core.RecordPage

type WriteResult = core.WriteResult

type SyncRun = core.SyncRun

type SyncRunStatus = core.SyncRunStatus

type SyncState = core.SyncState

type StateDocument = core.StateDocument

type ErrorKind = core.ErrorKind

type ProviderAdapter = core.ProviderAdapter

type AdapterFactory = core.AdapterFactory

type TransportAdapter = core.TransportAdapter

type TransportResolver = core.TransportResolver

type MetricsRecorder = core.MetricsRecorder

type RecordSink = core.RecordSink

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// DefaultSchemaRegistry returns the canonical entity schemas every adapter
// maps into.
func DefaultSchemaRegistry() *core.SchemaRegistry {
	return core.DefaultSchemaRegistry()
}
