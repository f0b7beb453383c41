package core

import (
	"fmt"
	"strings"
	"time"
)

type SyncConfig struct {
	LeaseTTLSeconds  int `koanf:"lease_ttl_seconds" mapstructure:"lease_ttl_seconds"`
	HeartbeatSeconds int `koanf:"heartbeat_seconds" mapstructure:"heartbeat_seconds"`
	PageSize         int `koanf:"page_size" mapstructure:"page_size"`
}

func (c SyncConfig) LeaseTTL() time.Duration {
	return time.Duration(c.LeaseTTLSeconds) * time.Second
}

func (c SyncConfig) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

type DispatchConfig struct {
	MaxAttempts      int `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int `koanf:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int `koanf:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	CallTimeoutMS    int `koanf:"call_timeout_ms" mapstructure:"call_timeout_ms"`
	AdapterTTLSecs   int `koanf:"adapter_ttl_seconds" mapstructure:"adapter_ttl_seconds"`
}

func (c DispatchConfig) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffMS) * time.Millisecond
}

func (c DispatchConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffMS) * time.Millisecond
}

func (c DispatchConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutMS) * time.Millisecond
}

func (c DispatchConfig) AdapterTTL() time.Duration {
	return time.Duration(c.AdapterTTLSecs) * time.Second
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Sync        SyncConfig     `koanf:"sync" mapstructure:"sync"`
	Dispatch    DispatchConfig `koanf:"dispatch" mapstructure:"dispatch"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "unified",
		Sync: SyncConfig{
			LeaseTTLSeconds:  60,
			HeartbeatSeconds: 20,
			PageSize:         100,
		},
		Dispatch: DispatchConfig{
			MaxAttempts:      3,
			InitialBackoffMS: 500,
			MaxBackoffMS:     10_000,
			CallTimeoutMS:    30_000,
			AdapterTTLSecs:   300,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Sync.LeaseTTLSeconds < 0 {
		return fmt.Errorf("core: sync.lease_ttl_seconds must not be negative")
	}
	if c.Sync.HeartbeatSeconds < 0 {
		return fmt.Errorf("core: sync.heartbeat_seconds must not be negative")
	}
	if c.Sync.HeartbeatSeconds > 0 && c.Sync.LeaseTTLSeconds > 0 &&
		c.Sync.HeartbeatSeconds >= c.Sync.LeaseTTLSeconds {
		return fmt.Errorf("core: sync.heartbeat_seconds must be shorter than sync.lease_ttl_seconds")
	}
	if c.Dispatch.MaxAttempts < 0 {
		return fmt.Errorf("core: dispatch.max_attempts must not be negative")
	}
	return nil
}
