// Package config loads the orchestration core's configuration the way the
// teacher's pkg/config/loader.go does: layered YAML files merged with
// environment variables via viper.
package config

import "time"

// Config is the fully resolved application configuration (spec.md §6).
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Log           LogConfig           `mapstructure:"log"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Core          CoreConfig          `mapstructure:"core"`
	Auth          AuthConfig          `mapstructure:"auth"`
}

// ServerConfig configures the HTTP transport shim and the gRPC workload-push
// listener that runs alongside it.
type ServerConfig struct {
	Addr     string `mapstructure:"addr"`
	GRPCAddr string `mapstructure:"grpc_addr"`
}

// AuthConfig configures bearer-token decoding at the connection boundary.
// The server only decodes tokens issued by an upstream identity provider to
// populate request_id/actor metadata; it never issues tokens itself.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// DatabaseConfig configures the Postgres-compatible store.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	ReadReplicaURL  string        `mapstructure:"read_replica_url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig configures the L2 resolved-context cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ObservabilityConfig toggles tracing/metrics.
type ObservabilityConfig struct {
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	TracingEndpoint string `mapstructure:"tracing_endpoint"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
}

// CoreConfig is the set enumerated in spec.md §6.
type CoreConfig struct {
	CacheTTLSeconds             int `mapstructure:"cache_ttl_seconds"`
	DelegationWorkerParallelism int `mapstructure:"delegation_worker_parallelism"`
	NextTaskTimeoutMS           int `mapstructure:"next_task_timeout_ms"`
	ToolCallTimeoutMS           int `mapstructure:"tool_call_timeout_ms"`
	ReopenGraceSeconds          int `mapstructure:"reopen_grace_seconds"`
	MaxCacheEntries             int `mapstructure:"max_cache_entries"`

	// PollRateLimitPerSecond bounds how often a single agent may call
	// manage_task.next; zero disables limiting entirely.
	PollRateLimitPerSecond float64 `mapstructure:"poll_rate_limit_per_second"`
	PollBurst              int     `mapstructure:"poll_burst"`
}

// CacheTTL returns the configured cache TTL as a time.Duration.
func (c CoreConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// NextTaskTimeout returns the configured NextTask deadline.
func (c CoreConfig) NextTaskTimeout() time.Duration {
	return time.Duration(c.NextTaskTimeoutMS) * time.Millisecond
}

// ToolCallTimeout returns the configured per-call deadline.
func (c CoreConfig) ToolCallTimeout() time.Duration {
	return time.Duration(c.ToolCallTimeoutMS) * time.Millisecond
}

// ReopenGrace returns the configured reopen window.
func (c CoreConfig) ReopenGrace() time.Duration {
	return time.Duration(c.ReopenGraceSeconds) * time.Second
}

// Defaults matches spec.md §6's enumerated defaults.
func Defaults() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080", GRPCAddr: ":9090"},
		Redis:  RedisConfig{Addr: "localhost:6379"},
		Log:    LogConfig{Level: "info", Format: "text"},
		Core: CoreConfig{
			CacheTTLSeconds:             600,
			DelegationWorkerParallelism: 4,
			NextTaskTimeoutMS:           5000,
			ToolCallTimeoutMS:           30000,
			ReopenGraceSeconds:          86400,
			MaxCacheEntries:             10000,
		},
	}
}
