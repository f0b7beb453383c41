package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// CanonicalRecord is one normalized record. The dispatcher guarantees every
// field the entity schema declares is present, defaulted when the provider
// had nothing for it.
type CanonicalRecord map[string]any

// RecordPage is the single pagination envelope every list-shaped operation
// returns. NextCursor is opaque: it is produced and consumed only by the
// adapter that issued it.
type RecordPage struct {
	Items       []CanonicalRecord
	HasNextPage bool
	NextCursor  string
	Warnings    []string
}

// RecordWithRaw pairs the canonical view of a record with the provider-native
// payload it was projected from.
type RecordWithRaw struct {
	Record CanonicalRecord
	Raw    map[string]any
}

// WriteResult is the envelope for create/update/upsert. Warnings carry
// per-field drop notices for values the provider could not represent.
type WriteResult struct {
	RecordID string
	Record   CanonicalRecord
	Warnings []string
}

type ListRecordsRequest struct {
	ObjectType    string
	Cursor        string
	PageSize      int
	ModifiedAfter *time.Time
	Filter        map[string]any
}

type GetRecordRequest struct {
	ObjectType string
	RecordID   string
}

type BatchReadRequest struct {
	ObjectType string
	RecordIDs  []string
	Properties []string
}

type CreateRecordRequest struct {
	ObjectType string
	Values     map[string]any
}

type UpdateRecordRequest struct {
	ObjectType string
	RecordID   string
	Values     map[string]any
}

// UpsertKey names the match field and the candidate values to match with.
// Multiple values OR together; more than one distinct matched record is a
// conflict.
type UpsertKey struct {
	Name   string
	Values []string
}

type UpsertRecordRequest struct {
	ObjectType string
	Key        UpsertKey
	Values     map[string]any
}

type CountRequest struct {
	ObjectType string
}

type ObjectMetadata struct {
	Name   string
	Label  string
	Custom bool
}

type PropertyMetadata struct {
	ID          string
	Label       string
	Type        string
	Required    bool
	Description string
}

type ObjectPropertiesRequest struct {
	ObjectName string
}

type FieldDefinition struct {
	ID          string
	Label       string
	Type        string
	Required    bool
	Description string
}

type CreateObjectRequest struct {
	Name         string
	Label        string
	Description  string
	PrimaryField string
	Fields       []FieldDefinition
}

type CreateAssociationRequest struct {
	SourceObject    string
	TargetObject    string
	SourceRecordID  string
	TargetRecordID  string
	AssociationType string
}

type ListCustomObjectRecordsRequest struct {
	ObjectName string
	Cursor     string
	PageSize   int
}

type CreateCustomObjectRecordRequest struct {
	ObjectName string
	Values     map[string]any
}

// ProviderAdapter is the full canonical operation surface one provider
// integration implements. Adapters embed providers.Unimplemented and override
// what the provider actually supports; everything else fails with
// not_supported.
type ProviderAdapter interface {
	ProviderName() string

	ListRecords(ctx context.Context, req ListRecordsRequest) (RecordPage, error)
	GetRecord(ctx context.Context, req GetRecordRequest) (RecordWithRaw, error)
	BatchReadRecords(ctx context.Context, req BatchReadRequest) (RecordPage, error)
	CreateRecord(ctx context.Context, req CreateRecordRequest) (WriteResult, error)
	UpdateRecord(ctx context.Context, req UpdateRecordRequest) (WriteResult, error)
	UpsertRecord(ctx context.Context, req UpsertRecordRequest) (WriteResult, error)
	CountRecords(ctx context.Context, req CountRequest) (int64, error)

	ListObjects(ctx context.Context) ([]ObjectMetadata, error)
	ListObjectProperties(ctx context.Context, req ObjectPropertiesRequest) ([]PropertyMetadata, error)
	CreateObject(ctx context.Context, req CreateObjectRequest) (WriteResult, error)
	CreateAssociation(ctx context.Context, req CreateAssociationRequest) (WriteResult, error)
	ListCustomObjectRecords(ctx context.Context, req ListCustomObjectRecordsRequest) (RecordPage, error)
	CreateCustomObjectRecord(ctx context.Context, req CreateCustomObjectRecordRequest) (WriteResult, error)
}

// AdapterDeps is what the init hook receives when an adapter instance is
// built for one (customer, provider) pair.
type AdapterDeps struct {
	CustomerID   string
	ProviderName string
	Transport    TransportAdapter
	Logger       Logger
}

// AdapterFactory builds adapter instances lazily, one per pair.
type AdapterFactory interface {
	ProviderName() string
	New(ctx context.Context, deps AdapterDeps) (ProviderAdapter, error)
}

// AdapterFactoryFunc adapts a plain function into an AdapterFactory.
type AdapterFactoryFunc struct {
	Name  string
	Build func(ctx context.Context, deps AdapterDeps) (ProviderAdapter, error)
}

func (f AdapterFactoryFunc) ProviderName() string { return f.Name }

func (f AdapterFactoryFunc) New(ctx context.Context, deps AdapterDeps) (ProviderAdapter, error) {
	return f.Build(ctx, deps)
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	Idempotency          string
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// TransportResolver hands each pair its proxy transport. Implementations
// inject credentials and rate-limit bookkeeping before the request leaves the
// process.
type TransportResolver interface {
	ResolveTransport(ctx context.Context, pair PairKey) (TransportAdapter, error)
}

type RateLimitKey struct {
	CustomerID   string
	ProviderName string
	BucketKey    string
}

type ProviderResponseMeta struct {
	StatusCode int
	Headers    map[string]string
	RetryAfter *time.Duration
	Metadata   map[string]any
}

type RateLimitPolicy interface {
	BeforeCall(ctx context.Context, key RateLimitKey) error
	AfterCall(ctx context.Context, key RateLimitKey, res ProviderResponseMeta) error
}

type SyncRunFilter struct {
	CustomerID   string
	ProviderName string
	Status       SyncRunStatus
	Limit        int
}

type SyncRunStore interface {
	Create(ctx context.Context, run SyncRun) (SyncRun, error)
	Get(ctx context.Context, id string) (SyncRun, error)
	Update(ctx context.Context, run SyncRun) (SyncRun, error)
	List(ctx context.Context, filter SyncRunFilter) ([]SyncRun, error)
}

type SyncStateStore interface {
	Get(ctx context.Context, pair PairKey) (SyncState, error)
	Save(ctx context.Context, state SyncState) (SyncState, error)
}

// LeaseStore grants exclusive TTL leases per pair. Acquire succeeds only when
// no live lease exists; losing the race is a conflict, never a queue.
type LeaseStore interface {
	Acquire(ctx context.Context, pair PairKey, owner string, ttl time.Duration) (RunLease, error)
	Renew(ctx context.Context, pair PairKey, owner string, ttl time.Duration) (RunLease, error)
	Release(ctx context.Context, pair PairKey, owner string) error
}

// RecordSink receives each fetched page. Delivery is at-least-once: a page
// may be replayed when a run resumes from the last object-type boundary.
type RecordSink interface {
	WriteRecords(ctx context.Context, pair PairKey, objectType string, records []CanonicalRecord) error
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type CommandMessage interface {
	Type() string
}

type CommandDispatcher interface {
	Dispatch(ctx context.Context, msg any) error
}

// JobExecutionMessage carries one queued unit of sync work. Parameters hold
// the run id and provider pair so a worker can resume the run it dequeues.
type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}
