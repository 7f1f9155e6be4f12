// Package config holds the environment-driven settings shared by the API
// server, the scheduled detector and the detect-runner tool. A process loads
// it once with LoadConfig and treats it as read-only afterwards.
package config

import (
	"time"

	"guardian/internal/types"
)

// SecretString keeps credentials out of logs. See types.SecretString.
type SecretString = types.SecretString

// Config is the root of the settings tree. Components are handed the
// section they need rather than the whole struct.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"guardian-detector"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	Detection     DetectionConfig
	Guard         GuardConfig
	Notify        NotifyConfig
	Redis         RedisConfig
	AWS           AWSConfig
	Security      SecurityConfig
	Observability ObservabilityConfig

	// Set from linker flags, never from the environment.
	Build BuildInfo `ignored:"true"`
}

// ServerConfig covers the admin HTTP listener.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
}

// DatabaseConfig configures the pgx pool.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2" validate:"min=0"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
	MigrateOnStart    bool          `envconfig:"MIGRATE_ON_START" default:"false"`
}

// DetectionConfig tunes the detection orchestrator.
type DetectionConfig struct {
	Workers             int           `envconfig:"DETECTION_WORKERS" default:"8" validate:"min=1,max=256"`
	MaxDuration         time.Duration `envconfig:"DETECTION_MAX_DURATION" default:"5m" validate:"gt=0"`
	HistoryMaxDays      int           `envconfig:"HISTORY_MAX_DAYS" default:"365" validate:"min=1,max=365"`
	RecentWarningsLimit int           `envconfig:"RECENT_WARNINGS_LIMIT" default:"10" validate:"min=1,max=100"`
}

// GuardConfig selects the single-run guard implementation.
type GuardConfig struct {
	Backend string        `envconfig:"GUARD_BACKEND" default:"memory" validate:"oneof=memory postgres redis"`
	TTL     time.Duration `envconfig:"DETECTION_GUARD_TTL" default:"15m" validate:"gt=0"`
}

// NotifyConfig selects where notifyAdmin events are published.
type NotifyConfig struct {
	Backend      string   `envconfig:"NOTIFY_BACKEND" default:"log" validate:"oneof=log sqs kafka"`
	QueueURL     string   `envconfig:"SQS_ADMIN_ALERTS" validate:"required_if=Backend sqs"`
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS" validate:"required_if=Backend kafka"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"guardian.admin-alerts"`
}

// RedisConfig holds the connection used by the redis run guard.
type RedisConfig struct {
	Addr     string       `envconfig:"REDIS_ADDR"`
	Password SecretString `envconfig:"REDIS_PASSWORD"`
	DB       int          `envconfig:"REDIS_DB" default:"0" validate:"min=0"`
}

// AWSConfig is shared by the SQS publisher and the CloudWatch recorder.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Overrides every AWS endpoint, for LocalStack.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// SecurityConfig guards the admin API.
type SecurityConfig struct {
	AdminAPIKeyHash SecretString `envconfig:"ADMIN_API_KEY_HASH" validate:"required"`
}

// ObservabilityConfig picks the run metrics sink.
type ObservabilityConfig struct {
	MetricsBackend  string `envconfig:"METRICS_BACKEND" default:"prometheus" validate:"oneof=prometheus cloudwatch none"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Guardian"`
}

// BuildInfo identifies the running binary in startup logs.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType names the LoadConfig stage that failed.
type ConfigErrorType string

const (
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	ErrAWS ConfigErrorType = "AWS_CONFIG_FAILED"
)
