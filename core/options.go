package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

// DefaultErrorMapper normalizes arbitrary errors into the canonical envelope.
func DefaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return unifiedErrorMapper(err)
}

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	syncLayer := map[string]any{}
	if includeZero || cfg.Sync.LeaseTTLSeconds != 0 {
		syncLayer["lease_ttl_seconds"] = cfg.Sync.LeaseTTLSeconds
	}
	if includeZero || cfg.Sync.HeartbeatSeconds != 0 {
		syncLayer["heartbeat_seconds"] = cfg.Sync.HeartbeatSeconds
	}
	if includeZero || cfg.Sync.PageSize != 0 {
		syncLayer["page_size"] = cfg.Sync.PageSize
	}
	if len(syncLayer) > 0 {
		layer["sync"] = syncLayer
	}
	dispatchLayer := map[string]any{}
	if includeZero || cfg.Dispatch.MaxAttempts != 0 {
		dispatchLayer["max_attempts"] = cfg.Dispatch.MaxAttempts
	}
	if includeZero || cfg.Dispatch.InitialBackoffMS != 0 {
		dispatchLayer["initial_backoff_ms"] = cfg.Dispatch.InitialBackoffMS
	}
	if includeZero || cfg.Dispatch.MaxBackoffMS != 0 {
		dispatchLayer["max_backoff_ms"] = cfg.Dispatch.MaxBackoffMS
	}
	if includeZero || cfg.Dispatch.CallTimeoutMS != 0 {
		dispatchLayer["call_timeout_ms"] = cfg.Dispatch.CallTimeoutMS
	}
	if includeZero || cfg.Dispatch.AdapterTTLSecs != 0 {
		dispatchLayer["adapter_ttl_seconds"] = cfg.Dispatch.AdapterTTLSecs
	}
	if len(dispatchLayer) > 0 {
		layer["dispatch"] = dispatchLayer
	}
	return layer
}

// ResolveConfig runs the defaults -> provider -> runtime resolution pipeline.
func ResolveConfig(ctx context.Context, provider ConfigProvider, resolver OptionsResolver, runtime Config) (Config, error) {
	defaults := DefaultConfig()
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}
