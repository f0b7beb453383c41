// Package dispatch routes canonical operations to provider adapters: it
// resolves one adapter instance per (customer, provider) pair, validates
// inputs against the schema registry, normalizes failures into the canonical
// error taxonomy, and retries the transient kinds with bounded backoff.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-unified/core"
)

type Dispatcher struct {
	adapters  *core.AdapterRegistry
	schemas   *core.SchemaRegistry
	transport core.TransportResolver
	cache     *adapterCache
	config    core.DispatchConfig
	logger    core.Logger
	metrics   core.MetricsRecorder
	nowFn     func() time.Time
	sleepFn   func(ctx context.Context, delay time.Duration) error
}

type Option func(*Dispatcher)

func WithSchemas(schemas *core.SchemaRegistry) Option {
	return func(d *Dispatcher) {
		d.schemas = schemas
	}
}

func WithTransportResolver(resolver core.TransportResolver) Option {
	return func(d *Dispatcher) {
		d.transport = resolver
	}
}

func WithConfig(config core.DispatchConfig) Option {
	return func(d *Dispatcher) {
		d.config = config
	}
}

func WithLogger(logger core.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(d *Dispatcher) {
		d.metrics = recorder
	}
}

func WithNow(nowFn func() time.Time) Option {
	return func(d *Dispatcher) {
		d.nowFn = nowFn
	}
}

// WithSleep overrides the retry sleep. Tests use it to skip real delays.
func WithSleep(sleepFn func(ctx context.Context, delay time.Duration) error) Option {
	return func(d *Dispatcher) {
		d.sleepFn = sleepFn
	}
}

func New(adapters *core.AdapterRegistry, opts ...Option) *Dispatcher {
	dispatcher := &Dispatcher{
		adapters: adapters,
		schemas:  core.DefaultSchemaRegistry(),
		config:   core.DefaultConfig().Dispatch,
		logger:   glog.Ensure(nil),
		metrics:  core.NopMetricsRecorder{},
		nowFn:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(dispatcher)
	}
	if dispatcher.adapters == nil {
		dispatcher.adapters = core.NewAdapterRegistry()
	}
	if dispatcher.schemas == nil {
		dispatcher.schemas = core.DefaultSchemaRegistry()
	}
	dispatcher.logger = glog.Ensure(dispatcher.logger)
	if dispatcher.metrics == nil {
		dispatcher.metrics = core.NopMetricsRecorder{}
	}
	dispatcher.cache = newAdapterCache(dispatcher.config.AdapterTTL(), dispatcher.nowFn)
	return dispatcher
}

// EvictAdapter drops the cached adapter instance for a pair. Call it when the
// pair's credentials rotate so the next operation rebuilds against fresh
// transport state.
func (d *Dispatcher) EvictAdapter(pair core.PairKey) {
	if d == nil {
		return
	}
	d.cache.evict(pair)
}

func (d *Dispatcher) Schemas() *core.SchemaRegistry {
	if d == nil {
		return nil
	}
	return d.schemas
}

func (d *Dispatcher) ListRecords(ctx context.Context, pair core.PairKey, req core.ListRecordsRequest) (core.RecordPage, error) {
	schema, err := d.schemaFor(req.ObjectType)
	if err != nil {
		return core.RecordPage{}, err
	}
	req.ObjectType = strings.TrimSpace(req.ObjectType)
	if req.PageSize <= 0 {
		req.PageSize = defaultListPageSize
	}
	page, err := invoke(ctx, d, pair, "list_records", req.ObjectType,
		func(ctx context.Context, adapter core.ProviderAdapter) (core.RecordPage, error) {
			return adapter.ListRecords(ctx, req)
		})
	if err != nil {
		return core.RecordPage{}, err
	}
	return defaultedPage(schema, page), nil
}

func (d *Dispatcher) GetRecord(ctx context.Context, pair core.PairKey, req core.GetRecordRequest) (core.RecordWithRaw, error) {
	schema, err := d.schemaFor(req.ObjectType)
	if err != nil {
		return core.RecordWithRaw{}, err
	}
	if strings.TrimSpace(req.RecordID) == "" {
		return core.RecordWithRaw{}, core.NewKindError(core.ErrorKindValidationFailed, "dispatch: record id is required")
	}
	req.ObjectType = strings.TrimSpace(req.ObjectType)
	req.RecordID = strings.TrimSpace(req.RecordID)
	result, err := invoke(ctx, d, pair, "get_record", req.ObjectType,
		func(ctx context.Context, adapter core.ProviderAdapter) (core.RecordWithRaw, error) {
			return adapter.GetRecord(ctx, req)
		})
	if err != nil {
		return core.RecordWithRaw{}, err
	}
	result.Record = schema.ApplyDefaults(result.Record)
	return result, nil
}

func (d *Dispatcher) BatchReadRecords(ctx context.Context, pair core.PairKey, req core.BatchReadRequest) (core.RecordPage, error) {
	schema, err := d.schemaFor(req.ObjectType)
	if err != nil {
		return core.RecordPage{}, err
	}
	if len(req.RecordIDs) == 0 {
		return core.RecordPage{}, core.NewKindError(core.ErrorKindValidationFailed, "dispatch: record ids are required")
	}
	req.ObjectType = strings.TrimSpace(req.ObjectType)
	page, err := invoke(ctx, d, pair, "batch_read_records", req.ObjectType,
		func(ctx context.Context, adapter core.ProviderAdapter) (core.RecordPage, error) {
			return adapter.BatchReadRecords(ctx, req)
		})
	if err != nil {
		return core.RecordPage{}, err
	}
	return defaultedPage(schema, page), nil
}

func (d *Dispatcher) CreateRecord(ctx context.Context, pair core.PairKey, req core.CreateRecordRequest) (core.WriteResult, error) {
	schema, err := d.schemaFor(req.ObjectType)
	if err != nil {
		return core.WriteResult{}, err
	}
	if len(req.Values) == 0 {
		return core.WriteResult{}, core.NewKindError(core.ErrorKindValidationFailed, "dispatch: create values are required")
	}
	req.ObjectType = strings.TrimSpace(req.ObjectType)
	result, err := invoke(ctx, d, pair, "create_record", req.ObjectType,
		func(ctx context.Context, adapter core.ProviderAdapter) (core.WriteResult, error) {
			return adapter.CreateRecord(ctx, req)
		})
	if err != nil {
		return core.WriteResult{}, err
	}
	return defaultedWrite(schema, result), nil
}

func (d *Dispatcher) UpdateRecord(ctx context.Context, pair core.PairKey, req core.UpdateRecordRequest) (core.WriteResult, error) {
	schema, err := d.schemaFor(req.ObjectType)
	if err != nil {
		return core.WriteResult{}, err
	}
	if strings.TrimSpace(req.RecordID) == "" {
		return core.WriteResult{}, core.NewKindError(core.ErrorKindValidationFailed, "dispatch: record id is required")
	}
	if len(req.Values) == 0 {
		return core.WriteResult{}, core.NewKindError(core.ErrorKindValidationFailed, "dispatch: update values are required")
	}
	req.ObjectType = strings.TrimSpace(req.ObjectType)
	req.RecordID = strings.TrimSpace(req.RecordID)
	result, err := invoke(ctx, d, pair, "update_record", req.ObjectType,
		func(ctx context.Context, adapter core.ProviderAdapter) (core.WriteResult, error) {
			return adapter.UpdateRecord(ctx, req)
		})
	if err != nil {
		return core.WriteResult{}, err
	}
	return defaultedWrite(schema, result), nil
}

func (d *Dispatcher) UpsertRecord(ctx context.Context, pair core.PairKey, req core.UpsertRecordRequest) (core.WriteResult, error) {
	schema, err := d.schemaFor(req.ObjectType)
	if err != nil {
		return core.WriteResult{}, err
	}
	keyName := strings.TrimSpace(req.Key.Name)
	if keyName == "" {
		return core.WriteResult{}, core.NewKindError(core.ErrorKindValidationFailed, "dispatch: upsert key name is required")
	}
	if len(req.Key.Values) == 0 {
		return core.WriteResult{}, core.NewKindError(core.ErrorKindValidationFailed, "dispatch: upsert key values are required")
	}
	if !schema.AllowsUpsertKey(keyName) {
		return core.WriteResult{}, core.NewKindError(
			core.ErrorKindValidationFailed,
			fmt.Sprintf("dispatch: %s does not support upsert key %q", schema.ObjectType, keyName),
		)
	}
	if len(req.Values) == 0 {
		return core.WriteResult{}, core.NewKindError(core.ErrorKindValidationFailed, "dispatch: upsert values are required")
	}
	req.ObjectType = strings.TrimSpace(req.ObjectType)
	req.Key.Name = keyName
	result, err := invoke(ctx, d, pair, "upsert_record", req.ObjectType,
		func(ctx context.Context, adapter core.ProviderAdapter) (core.WriteResult, error) {
			return adapter.UpsertRecord(ctx, req)
		})
	if err != nil {
		return core.WriteResult{}, err
	}
	return defaultedWrite(schema, result), nil
}

func (d *Dispatcher) CountRecords(ctx context.Context, pair core.PairKey, req core.CountRequest) (int64, error) {
	if _, err := d.schemaFor(req.ObjectType); err != nil {
		return 0, err
	}
	req.ObjectType = strings.TrimSpace(req.ObjectType)
	return invoke(ctx, d, pair, "count_records", req.ObjectType,
		func(ctx context.Context, adapter core.ProviderAdapter) (int64, error) {
			return adapter.CountRecords(ctx, req)
		})
}

func (d *Dispatcher) ListObjects(ctx context.Context, pair core.PairKey) ([]core.ObjectMetadata, error) {
	return invoke(ctx, d, pair, "list_objects", "",
		func(ctx context.Context, adapter core.ProviderAdapter) ([]core.ObjectMetadata, error) {
			return adapter.ListObjects(ctx)
		})
}

func (d *Dispatcher) ListObjectProperties(ctx context.Context, pair core.PairKey, req core.ObjectPropertiesRequest) ([]core.PropertyMetadata, error) {
	if strings.TrimSpace(req.ObjectName) == "" {
		return nil, core.NewKindError(core.ErrorKindValidationFailed, "dispatch: object name is required")
	}
	req.ObjectName = strings.TrimSpace(req.ObjectName)
	return invoke(ctx, d, pair, "list_object_properties", req.ObjectName,
		func(ctx context.Context, adapter core.ProviderAdapter) ([]core.PropertyMetadata, error) {
			return adapter.ListObjectProperties(ctx, req)
		})
}

func (d *Dispatcher) CreateObject(ctx context.Context, pair core.PairKey, req core.CreateObjectRequest) (core.WriteResult, error) {
	if strings.TrimSpace(req.Name) == "" {
		return core.WriteResult{}, core.NewKindError(core.ErrorKindValidationFailed, "dispatch: object name is required")
	}
	req.Name = strings.TrimSpace(req.Name)
	return invoke(ctx, d, pair, "create_object", req.Name,
		func(ctx context.Context, adapter core.ProviderAdapter) (core.WriteResult, error) {
			return adapter.CreateObject(ctx, req)
		})
}

func (d *Dispatcher) CreateAssociation(ctx context.Context, pair core.PairKey, req core.CreateAssociationRequest) (core.WriteResult, error) {
	if strings.TrimSpace(req.SourceObject) == "" || strings.TrimSpace(req.TargetObject) == "" {
		return core.WriteResult{}, core.NewKindError(core.ErrorKindValidationFailed, "dispatch: association source and target objects are required")
	}
	if strings.TrimSpace(req.SourceRecordID) == "" || strings.TrimSpace(req.TargetRecordID) == "" {
		return core.WriteResult{}, core.NewKindError(core.ErrorKindValidationFailed, "dispatch: association source and target record ids are required")
	}
	return invoke(ctx, d, pair, "create_association", req.SourceObject,
		func(ctx context.Context, adapter core.ProviderAdapter) (core.WriteResult, error) {
			return adapter.CreateAssociation(ctx, req)
		})
}

func (d *Dispatcher) ListCustomObjectRecords(ctx context.Context, pair core.PairKey, req core.ListCustomObjectRecordsRequest) (core.RecordPage, error) {
	if strings.TrimSpace(req.ObjectName) == "" {
		return core.RecordPage{}, core.NewKindError(core.ErrorKindValidationFailed, "dispatch: object name is required")
	}
	req.ObjectName = strings.TrimSpace(req.ObjectName)
	if req.PageSize <= 0 {
		req.PageSize = defaultListPageSize
	}
	return invoke(ctx, d, pair, "list_custom_object_records", req.ObjectName,
		func(ctx context.Context, adapter core.ProviderAdapter) (core.RecordPage, error) {
			return adapter.ListCustomObjectRecords(ctx, req)
		})
}

func (d *Dispatcher) CreateCustomObjectRecord(ctx context.Context, pair core.PairKey, req core.CreateCustomObjectRecordRequest) (core.WriteResult, error) {
	if strings.TrimSpace(req.ObjectName) == "" {
		return core.WriteResult{}, core.NewKindError(core.ErrorKindValidationFailed, "dispatch: object name is required")
	}
	if len(req.Values) == 0 {
		return core.WriteResult{}, core.NewKindError(core.ErrorKindValidationFailed, "dispatch: record values are required")
	}
	req.ObjectName = strings.TrimSpace(req.ObjectName)
	return invoke(ctx, d, pair, "create_custom_object_record", req.ObjectName,
		func(ctx context.Context, adapter core.ProviderAdapter) (core.WriteResult, error) {
			return adapter.CreateCustomObjectRecord(ctx, req)
		})
}

const defaultListPageSize = 100

func (d *Dispatcher) schemaFor(objectType string) (core.EntitySchema, error) {
	if d == nil || d.schemas == nil {
		return core.EntitySchema{}, core.NewKindError(core.ErrorKindInternal, "dispatch: schema registry is not configured")
	}
	objectType = strings.TrimSpace(objectType)
	if objectType == "" {
		return core.EntitySchema{}, core.NewKindError(core.ErrorKindValidationFailed, "dispatch: object type is required")
	}
	schema, ok := d.schemas.Schema(objectType)
	if !ok {
		return core.EntitySchema{}, core.NewKindError(
			core.ErrorKindValidationFailed,
			fmt.Sprintf("dispatch: unknown object type %q", objectType),
		)
	}
	return schema, nil
}

func (d *Dispatcher) resolveAdapter(ctx context.Context, pair core.PairKey) (core.ProviderAdapter, error) {
	if adapter, ok := d.cache.get(pair); ok {
		return adapter, nil
	}
	factory, ok := d.adapters.Get(pair.ProviderName)
	if !ok {
		return nil, core.NewKindError(
			core.ErrorKindNotFound,
			fmt.Sprintf("dispatch: provider %q not registered", pair.ProviderName),
		)
	}

	deps := core.AdapterDeps{
		CustomerID:   pair.CustomerID,
		ProviderName: pair.ProviderName,
		Logger:       d.logger,
	}
	if d.transport != nil {
		proxied, err := d.transport.ResolveTransport(ctx, pair)
		if err != nil {
			return nil, core.MapError(err)
		}
		deps.Transport = proxied
	}
	adapter, err := factory.New(ctx, deps)
	if err != nil {
		return nil, core.MapError(err)
	}
	if adapter == nil {
		return nil, core.NewKindError(
			core.ErrorKindInternal,
			fmt.Sprintf("dispatch: factory for %q returned nil adapter", pair.ProviderName),
		)
	}
	d.cache.put(pair, adapter)
	return adapter, nil
}

func invoke[T any](
	ctx context.Context,
	d *Dispatcher,
	pair core.PairKey,
	operation string,
	objectType string,
	fn func(ctx context.Context, adapter core.ProviderAdapter) (T, error),
) (T, error) {
	var zero T
	if d == nil {
		return zero, core.NewKindError(core.ErrorKindInternal, "dispatch: dispatcher is nil")
	}
	if err := pair.Validate(); err != nil {
		return zero, core.NewKindError(core.ErrorKindValidationFailed, err.Error())
	}

	adapter, err := d.resolveAdapter(ctx, pair)
	if err != nil {
		return zero, err
	}

	maxAttempts := d.config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	startedAt := d.nowFn()
	var lastErr error
	attemptsUsed := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptsUsed = attempt
		out, opErr := callOnce(ctx, d, adapter, fn)
		if opErr == nil {
			d.observeOperation(ctx, startedAt, operation, attempt, pair, objectType, nil)
			return out, nil
		}
		lastErr = opErr

		if ctx.Err() != nil {
			break
		}
		if !core.IsRetryable(opErr) || attempt == maxAttempts {
			break
		}
		delay := d.retryDelay(attempt, opErr)
		if sleepErr := d.sleep(ctx, delay); sleepErr != nil {
			lastErr = core.MapError(sleepErr)
			break
		}
	}
	d.observeOperation(ctx, startedAt, operation, attemptsUsed, pair, objectType, lastErr)
	return zero, lastErr
}

// callOnce runs one attempt under the per-call timeout. A deadline hit inside
// the attempt maps to provider_unavailable so the retry loop can try again;
// caller-level cancellation never does.
func callOnce[T any](
	ctx context.Context,
	d *Dispatcher,
	adapter core.ProviderAdapter,
	fn func(ctx context.Context, adapter core.ProviderAdapter) (T, error),
) (T, error) {
	attemptCtx := ctx
	cancel := func() {}
	if timeout := d.config.CallTimeout(); timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	out, err := fn(attemptCtx, adapter)
	if err == nil {
		return out, nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		var zero T
		return zero, core.WrapKindError(core.ErrorKindProviderUnavailable, err, "dispatch: provider call timed out")
	}
	var zero T
	return zero, core.MapError(err)
}

func (d *Dispatcher) retryDelay(attempt int, err error) time.Duration {
	if hint, ok := core.RetryHint(err); ok && hint > 0 {
		return hint
	}
	initial := d.config.InitialBackoff()
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	maximum := d.config.MaxBackoff()
	if maximum <= 0 {
		maximum = 10 * time.Second
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

func (d *Dispatcher) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if d.sleepFn != nil {
		return d.sleepFn(ctx, delay)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func defaultedPage(schema core.EntitySchema, page core.RecordPage) core.RecordPage {
	for i, record := range page.Items {
		page.Items[i] = schema.ApplyDefaults(record)
	}
	return page
}

func defaultedWrite(schema core.EntitySchema, result core.WriteResult) core.WriteResult {
	if result.Record != nil {
		result.Record = schema.ApplyDefaults(result.Record)
	}
	return result
}
