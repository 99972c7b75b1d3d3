package core

import (
	"fmt"
	"strings"
)

type OperationsConfig struct {
	MaxActivePerOwner     int    `koanf:"max_active_per_owner" mapstructure:"max_active_per_owner"`
	DefaultTTLSeconds     int    `koanf:"default_ttl_seconds" mapstructure:"default_ttl_seconds"`
	MinTTLSeconds         int    `koanf:"min_ttl_seconds" mapstructure:"min_ttl_seconds"`
	MaxTTLSeconds         int    `koanf:"max_ttl_seconds" mapstructure:"max_ttl_seconds"`
	MetadataMaxBytes      int    `koanf:"metadata_max_bytes" mapstructure:"metadata_max_bytes"`
	ProgressMessageMaxLen int    `koanf:"progress_message_max_len" mapstructure:"progress_message_max_len"`
	IDMaxAttempts         int    `koanf:"id_max_attempts" mapstructure:"id_max_attempts"`
	PollRetryAfterSeconds int    `koanf:"poll_retry_after_seconds" mapstructure:"poll_retry_after_seconds"`
	PollPathPrefix        string `koanf:"poll_path_prefix" mapstructure:"poll_path_prefix"`
}

type LocksConfig struct {
	DefaultTTLSeconds    int `koanf:"default_ttl_seconds" mapstructure:"default_ttl_seconds"`
	MetadataGraceSeconds int `koanf:"metadata_grace_seconds" mapstructure:"metadata_grace_seconds"`
	BlockPollIntervalMS  int `koanf:"block_poll_interval_ms" mapstructure:"block_poll_interval_ms"`
}

type CancellationConfig struct {
	TokenTTLSeconds     int `koanf:"token_ttl_seconds" mapstructure:"token_ttl_seconds"`
	CheckLockTTLSeconds int `koanf:"check_lock_ttl_seconds" mapstructure:"check_lock_ttl_seconds"`
}

type CallbacksConfig struct {
	AllowedSchemes []string `koanf:"allowed_schemes" mapstructure:"allowed_schemes"`
	BlockedHosts   []string `koanf:"blocked_hosts" mapstructure:"blocked_hosts"`
	MaxURLLength   int      `koanf:"max_url_length" mapstructure:"max_url_length"`
}

type Config struct {
	ServiceName  string             `koanf:"service_name" mapstructure:"service_name"`
	Operations   OperationsConfig   `koanf:"operations" mapstructure:"operations"`
	Locks        LocksConfig        `koanf:"locks" mapstructure:"locks"`
	Cancellation CancellationConfig `koanf:"cancellation" mapstructure:"cancellation"`
	Callbacks    CallbacksConfig    `koanf:"callbacks" mapstructure:"callbacks"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "lifecycle",
		Operations: OperationsConfig{
			MaxActivePerOwner:     10,
			DefaultTTLSeconds:     3600,
			MinTTLSeconds:         60,
			MaxTTLSeconds:         86400,
			MetadataMaxBytes:      16 * 1024,
			ProgressMessageMaxLen: 512,
			IDMaxAttempts:         5,
			PollRetryAfterSeconds: 2,
			PollPathPrefix:        "/operations",
		},
		Locks: LocksConfig{
			DefaultTTLSeconds:    30,
			MetadataGraceSeconds: 10,
			BlockPollIntervalMS:  50,
		},
		Cancellation: CancellationConfig{
			TokenTTLSeconds:     900,
			CheckLockTTLSeconds: 3,
		},
		Callbacks: CallbacksConfig{
			AllowedSchemes: []string{"https"},
			BlockedHosts:   []string{},
			MaxURLLength:   2048,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Operations.MinTTLSeconds > 0 && c.Operations.MaxTTLSeconds > 0 &&
		c.Operations.MinTTLSeconds > c.Operations.MaxTTLSeconds {
		return fmt.Errorf("core: operations.min_ttl_seconds must not exceed operations.max_ttl_seconds")
	}
	if c.Operations.DefaultTTLSeconds < 0 {
		return fmt.Errorf("core: operations.default_ttl_seconds must not be negative")
	}
	if c.Operations.MaxActivePerOwner < 0 {
		return fmt.Errorf("core: operations.max_active_per_owner must not be negative")
	}
	if c.Locks.DefaultTTLSeconds < 0 {
		return fmt.Errorf("core: locks.default_ttl_seconds must not be negative")
	}
	if c.Cancellation.TokenTTLSeconds < 0 {
		return fmt.Errorf("core: cancellation.token_ttl_seconds must not be negative")
	}
	return nil
}
