package unified

import (
	"context"
	"fmt"
	"net/http"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-unified/adapters/gocommand"
	unifiedcommand "github.com/goliatone/go-unified/command"
	"github.com/goliatone/go-unified/core"
	"github.com/goliatone/go-unified/dispatch"
	"github.com/goliatone/go-unified/httpapi"
	unifiedquery "github.com/goliatone/go-unified/query"
	"github.com/goliatone/go-unified/ratelimit"
	sqlstore "github.com/goliatone/go-unified/store/sql"
	unifiedsync "github.com/goliatone/go-unified/sync"
	"github.com/goliatone/go-unified/transport"
)

// Commands bundles the mutating command handlers the facade wires for a
// go-command registry.
type Commands struct {
	StartSync    *unifiedcommand.StartSyncCommand
	CancelSync   *unifiedcommand.CancelSyncCommand
	CreateRecord *unifiedcommand.CreateRecordCommand
	UpdateRecord *unifiedcommand.UpdateRecordCommand
	UpsertRecord *unifiedcommand.UpsertRecordCommand
}

// Queries bundles the read-side query handlers.
type Queries struct {
	GetSyncRun    *unifiedquery.GetSyncRunQuery
	ListSyncRuns  *unifiedquery.ListSyncRunsQuery
	LoadSyncState *unifiedquery.LoadSyncStateQuery
	ListRecords   *unifiedquery.ListRecordsQuery
	GetRecord     *unifiedquery.GetRecordQuery
}

type Facade struct {
	config       core.Config
	logger       core.Logger
	schemas      *core.SchemaRegistry
	adapters     *core.AdapterRegistry
	dispatcher   *dispatch.Dispatcher
	orchestrator *unifiedsync.Orchestrator
	runs         core.SyncRunStore
	states       core.SyncStateStore
	leases       core.LeaseStore
	server       *httpapi.Server
	commands     Commands
	queries      Queries
}

type Option func(*facadeOptions)

type facadeOptions struct {
	logger            core.Logger
	loggerProvider    core.LoggerProvider
	configProvider    core.ConfigProvider
	optionsResolver   core.OptionsResolver
	schemas           *core.SchemaRegistry
	adapters          *core.AdapterRegistry
	transport         core.TransportResolver
	credentials       transport.CredentialSource
	rateLimit         core.RateLimitPolicy
	metrics           core.MetricsRecorder
	sink              core.RecordSink
	runs              core.SyncRunStore
	states            core.SyncStateStore
	leases            core.LeaseStore
	persistenceClient any
	serverConfig      httpapi.ServerConfig
}

func WithLogger(logger core.Logger) Option {
	return func(o *facadeOptions) {
		o.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(o *facadeOptions) {
		o.loggerProvider = provider
	}
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(o *facadeOptions) {
		o.configProvider = provider
	}
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(o *facadeOptions) {
		o.optionsResolver = resolver
	}
}

func WithSchemas(schemas *core.SchemaRegistry) Option {
	return func(o *facadeOptions) {
		o.schemas = schemas
	}
}

func WithAdapterRegistry(registry *core.AdapterRegistry) Option {
	return func(o *facadeOptions) {
		o.adapters = registry
	}
}

func WithTransportResolver(resolver core.TransportResolver) Option {
	return func(o *facadeOptions) {
		o.transport = resolver
	}
}

// WithCredentialSource supplies the token source the default transport proxy
// injects as a bearer credential per customer and provider pair.
func WithCredentialSource(source transport.CredentialSource) Option {
	return func(o *facadeOptions) {
		o.credentials = source
	}
}

// WithRateLimitPolicy overrides the adaptive in-memory policy the default
// transport composition gates provider calls with.
func WithRateLimitPolicy(policy core.RateLimitPolicy) Option {
	return func(o *facadeOptions) {
		o.rateLimit = policy
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(o *facadeOptions) {
		o.metrics = recorder
	}
}

func WithRecordSink(sink core.RecordSink) Option {
	return func(o *facadeOptions) {
		o.sink = sink
	}
}

// WithStores overrides the default in-memory run, state and lease stores.
// Pass nil for any store to keep its default.
func WithStores(runs core.SyncRunStore, states core.SyncStateStore, leases core.LeaseStore) Option {
	return func(o *facadeOptions) {
		o.runs = runs
		o.states = states
		o.leases = leases
	}
}

// WithPersistenceClient builds the SQL-backed stores from a go-persistence
// client or a *bun.DB.
func WithPersistenceClient(client any) Option {
	return func(o *facadeOptions) {
		o.persistenceClient = client
	}
}

func WithServerConfig(cfg httpapi.ServerConfig) Option {
	return func(o *facadeOptions) {
		o.serverConfig = cfg
	}
}

// New assembles the full unified runtime: adapter registry, dispatcher,
// sync orchestrator, stores, HTTP server and command/query handlers.
func New(cfg core.Config, opts ...Option) (*Facade, error) {
	options := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&options)
	}

	if options.configProvider != nil {
		resolver := options.optionsResolver
		if resolver == nil {
			resolver = core.GoOptionsResolver{}
		}
		resolved, err := core.ResolveConfig(context.Background(), options.configProvider, resolver, cfg)
		if err != nil {
			return nil, err
		}
		cfg = resolved
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := options.logger
	if logger == nil && options.loggerProvider != nil {
		logger = options.loggerProvider.GetLogger("unified")
	}
	logger = glog.Ensure(logger)

	schemas := options.schemas
	if schemas == nil {
		schemas = core.DefaultSchemaRegistry()
	}

	adapters := options.adapters
	if adapters == nil {
		registry, err := DefaultAdapterRegistry()
		if err != nil {
			return nil, err
		}
		adapters = registry
	}

	runs, states, leases, err := buildStores(options)
	if err != nil {
		return nil, err
	}

	transportResolver := options.transport
	if transportResolver == nil {
		rateLimit := options.rateLimit
		if rateLimit == nil {
			rateLimit = ratelimit.NewAdaptivePolicy(ratelimit.NewMemoryStateStore())
		}
		transportResolver = &transport.Resolver{
			Registry:    transport.NewDefaultRegistry(),
			Kind:        transport.KindREST,
			Credentials: options.credentials,
			RateLimit:   rateLimit,
		}
	}

	dispatchOpts := []dispatch.Option{
		dispatch.WithConfig(cfg.Dispatch),
		dispatch.WithSchemas(schemas),
		dispatch.WithLogger(logger),
		dispatch.WithTransportResolver(transportResolver),
	}
	if options.metrics != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithMetricsRecorder(options.metrics))
	}
	dispatcher := dispatch.New(adapters, dispatchOpts...)

	syncOpts := []unifiedsync.Option{
		unifiedsync.WithConfig(cfg.Sync),
		unifiedsync.WithLogger(logger),
	}
	if options.metrics != nil {
		syncOpts = append(syncOpts, unifiedsync.WithMetricsRecorder(options.metrics))
	}
	if options.sink != nil {
		syncOpts = append(syncOpts, unifiedsync.WithRecordSink(options.sink))
	}
	orchestrator := unifiedsync.New(dispatcher, runs, states, leases, syncOpts...)

	server := httpapi.NewServer(
		dispatcher,
		orchestrator,
		runs,
		states,
		httpapi.WithLogger(logger),
		httpapi.WithConfig(options.serverConfig),
	)

	facade := &Facade{
		config:       cfg,
		logger:       logger,
		schemas:      schemas,
		adapters:     adapters,
		dispatcher:   dispatcher,
		orchestrator: orchestrator,
		runs:         runs,
		states:       states,
		leases:       leases,
		server:       server,
	}
	facade.commands = Commands{
		StartSync:    unifiedcommand.NewStartSyncCommand(orchestrator),
		CancelSync:   unifiedcommand.NewCancelSyncCommand(orchestrator),
		CreateRecord: unifiedcommand.NewCreateRecordCommand(dispatcher),
		UpdateRecord: unifiedcommand.NewUpdateRecordCommand(dispatcher),
		UpsertRecord: unifiedcommand.NewUpsertRecordCommand(dispatcher),
	}
	facade.queries = Queries{
		GetSyncRun:    unifiedquery.NewGetSyncRunQuery(runs),
		ListSyncRuns:  unifiedquery.NewListSyncRunsQuery(runs),
		LoadSyncState: unifiedquery.NewLoadSyncStateQuery(states),
		ListRecords:   unifiedquery.NewListRecordsQuery(dispatcher),
		GetRecord:     unifiedquery.NewGetRecordQuery(dispatcher),
	}
	return facade, nil
}

func buildStores(options facadeOptions) (core.SyncRunStore, core.SyncStateStore, core.LeaseStore, error) {
	runs := options.runs
	states := options.states
	leases := options.leases

	if options.persistenceClient != nil {
		factory := sqlstore.NewRepositoryFactory()
		if err := factory.BuildStores(options.persistenceClient); err != nil {
			return nil, nil, nil, err
		}
		if runs == nil {
			runs = factory.SyncRunStore()
		}
		if states == nil {
			states = factory.SyncStateStore()
		}
		if leases == nil {
			leases = factory.LeaseStore()
		}
	}

	if runs == nil {
		runs = unifiedsync.NewMemorySyncRunStore()
	}
	if states == nil {
		states = unifiedsync.NewMemorySyncStateStore()
	}
	if leases == nil {
		leases = unifiedsync.NewMemoryLeaseStore()
	}
	return runs, states, leases, nil
}

func (f *Facade) Config() core.Config {
	if f == nil {
		return core.Config{}
	}
	return f.config
}

func (f *Facade) Schemas() *core.SchemaRegistry {
	if f == nil {
		return nil
	}
	return f.schemas
}

func (f *Facade) Adapters() *core.AdapterRegistry {
	if f == nil {
		return nil
	}
	return f.adapters
}

func (f *Facade) Dispatcher() *dispatch.Dispatcher {
	if f == nil {
		return nil
	}
	return f.dispatcher
}

func (f *Facade) Orchestrator() *unifiedsync.Orchestrator {
	if f == nil {
		return nil
	}
	return f.orchestrator
}

func (f *Facade) SyncRunStore() core.SyncRunStore {
	if f == nil {
		return nil
	}
	return f.runs
}

func (f *Facade) SyncStateStore() core.SyncStateStore {
	if f == nil {
		return nil
	}
	return f.states
}

func (f *Facade) LeaseStore() core.LeaseStore {
	if f == nil {
		return nil
	}
	return f.leases
}

// Handler returns the HTTP surface for mounting on a mux or server.
func (f *Facade) Handler() http.Handler {
	if f == nil {
		return nil
	}
	return f.server
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

// RegisterMessages puts the facade's command and query handlers on the given
// registry adapter and the process-wide go-command dispatcher. Callers still
// Initialize the adapter once every handler and resolver is registered.
func (f *Facade) RegisterMessages(adapter *gocommand.RegistryAdapter, runnerOpts ...runner.Option) ([]commanddispatcher.Subscription, error) {
	if f == nil {
		return nil, fmt.Errorf("unified: facade is required")
	}
	return gocommand.RegisterHandlers(adapter, gocommand.HandlerSet{
		StartSync:     f.commands.StartSync,
		CancelSync:    f.commands.CancelSync,
		CreateRecord:  f.commands.CreateRecord,
		UpdateRecord:  f.commands.UpdateRecord,
		UpsertRecord:  f.commands.UpsertRecord,
		GetSyncRun:    f.queries.GetSyncRun,
		ListSyncRuns:  f.queries.ListSyncRuns,
		LoadSyncState: f.queries.LoadSyncState,
		ListRecords:   f.queries.ListRecords,
		GetRecord:     f.queries.GetRecord,
	}, runnerOpts...)
}
