// Package gocommand puts the unified command and query handlers on a shared
// go-command registry and dispatcher so embedding applications can invoke the
// sync and record operations as bus messages.
package gocommand

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	unifiedcommand "github.com/goliatone/go-unified/command"
	unifiedquery "github.com/goliatone/go-unified/query"
)

// ValidateMessageContract enforces the Type() plus optional Validate()
// contract every unified message carries.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

// RegistryAdapter owns the command registry the unified handlers register
// against. Resolver hooks let callers mirror commands into other runtimes,
// such as a go-job queue registry.
type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

// RegisterQuery records a query handler. The underlying registry keeps one
// namespace for commands and queries.
func (a *RegistryAdapter) RegisterQuery(qry any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors registered commands into a go-job queue registry
// so queued deliveries resolve to the same handlers.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

// HandlerSet carries the unified command and query handlers that register as
// one unit. Nil entries are skipped so callers can wire the mutating side
// without the read side, or the other way around.
type HandlerSet struct {
	StartSync    *unifiedcommand.StartSyncCommand
	CancelSync   *unifiedcommand.CancelSyncCommand
	CreateRecord *unifiedcommand.CreateRecordCommand
	UpdateRecord *unifiedcommand.UpdateRecordCommand
	UpsertRecord *unifiedcommand.UpsertRecordCommand

	GetSyncRun    *unifiedquery.GetSyncRunQuery
	ListSyncRuns  *unifiedquery.ListSyncRunsQuery
	LoadSyncState *unifiedquery.LoadSyncStateQuery
	ListRecords   *unifiedquery.ListRecordsQuery
	GetRecord     *unifiedquery.GetRecordQuery
}

// RegisterHandlers subscribes every handler in the set on the process-wide
// dispatcher and records it with the adapter registry. On the first failure
// it unsubscribes whatever it already wired and returns the error.
func RegisterHandlers(adapter *RegistryAdapter, handlers HandlerSet, runnerOpts ...runner.Option) ([]commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}

	var (
		subs []commanddispatcher.Subscription
		err  error
	)
	wire := func(subscribe func() (commanddispatcher.Subscription, error)) {
		if err != nil {
			return
		}
		var sub commanddispatcher.Subscription
		if sub, err = subscribe(); err == nil {
			subs = append(subs, sub)
		}
	}

	if handlers.StartSync != nil {
		wire(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, handlers.StartSync, runnerOpts...)
		})
	}
	if handlers.CancelSync != nil {
		wire(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, handlers.CancelSync, runnerOpts...)
		})
	}
	if handlers.CreateRecord != nil {
		wire(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, handlers.CreateRecord, runnerOpts...)
		})
	}
	if handlers.UpdateRecord != nil {
		wire(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, handlers.UpdateRecord, runnerOpts...)
		})
	}
	if handlers.UpsertRecord != nil {
		wire(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe(adapter, handlers.UpsertRecord, runnerOpts...)
		})
	}
	if handlers.GetSyncRun != nil {
		wire(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery(adapter, handlers.GetSyncRun, runnerOpts...)
		})
	}
	if handlers.ListSyncRuns != nil {
		wire(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery(adapter, handlers.ListSyncRuns, runnerOpts...)
		})
	}
	if handlers.LoadSyncState != nil {
		wire(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery(adapter, handlers.LoadSyncState, runnerOpts...)
		})
	}
	if handlers.ListRecords != nil {
		wire(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery(adapter, handlers.ListRecords, runnerOpts...)
		})
	}
	if handlers.GetRecord != nil {
		wire(func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery(adapter, handlers.GetRecord, runnerOpts...)
		})
	}

	if err != nil {
		for _, sub := range subs {
			if sub != nil {
				sub.Unsubscribe()
			}
		}
		return nil, err
	}
	return subs, nil
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func SubscribeCommandFunc[T any](handler command.CommandFunc[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(handler, runnerOpts...)
}

func SubscribeQuery[T any, R any](qry command.Querier[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func SubscribeQueryFunc[T any, R any](qry command.QueryFunc[T, R], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

// RegisterAndSubscribe subscribes a command on the dispatcher and records it
// with the registry, rolling back the subscription when registration fails.
func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}
