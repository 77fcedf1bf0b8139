// Package config defines the process configuration for agroalerts. It is
// loaded once at startup (service boot or Lambda cold start) and is read-only
// afterwards.
//
// Values are resolved in priority order:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or an invalid format fails startup.
package config

import (
	"time"

	"agroalerts/internal/types"
)

// SecretString is an alias for types.SecretString so config structs can
// declare redacted fields without importing types.
type SecretString = types.SecretString

// Config is the top-level configuration. Components receive only the
// sub-config they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"agroalerts"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Weather       WeatherConfig
	Vegetation    VegetationConfig
	Pipeline      PipelineConfig
	Schedule      ScheduleConfig
	Publisher     PublisherConfig
	Observability ObservabilityConfig

	// Injected via ldflags, not env.
	Build BuildInfo
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds the connection string and pool tuning.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"1" validate:"min=0,ltefield=MaxConns"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds the region and an optional endpoint override for LocalStack.
type AWSConfig struct {
	Region      string `envconfig:"AWS_REGION" default:"eu-west-1"`
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// WeatherConfig configures the Open-Meteo client.
type WeatherConfig struct {
	ForecastURL string        `envconfig:"WEATHER_FORECAST_URL" default:"https://api.open-meteo.com" validate:"url"`
	ArchiveURL  string        `envconfig:"WEATHER_ARCHIVE_URL" default:"https://archive-api.open-meteo.com" validate:"url"`
	Timeout     time.Duration `envconfig:"WEATHER_TIMEOUT" default:"30s"`
	PastDays    int           `envconfig:"WEATHER_PAST_DAYS" default:"92" validate:"min=0,max=92"`
}

// VegetationConfig configures the satellite-index provider client.
type VegetationConfig struct {
	BaseURL     string        `envconfig:"VEGETATION_URL" validate:"required,url"`
	APIKey      SecretString  `envconfig:"VEGETATION_API_KEY"`
	Timeout     time.Duration `envconfig:"VEGETATION_TIMEOUT" default:"120s"`
	MaxCloudPct int           `envconfig:"VEGETATION_MAX_CLOUD_PCT" default:"20" validate:"min=1,max=100"`
}

// PipelineConfig holds the windows used by the jobs.
type PipelineConfig struct {
	// LookbackDays is how many days before today the reconciler keeps.
	LookbackDays int `envconfig:"ALERT_LOOKBACK_DAYS" default:"4" validate:"min=0"`
	// ArchiveLookbackDays is the span fetched by the archive and vegetation jobs.
	ArchiveLookbackDays int `envconfig:"ARCHIVE_LOOKBACK_DAYS" default:"4" validate:"min=0"`
}

// ScheduleConfig holds the in-process trigger times, all UTC "HH:MM".
type ScheduleConfig struct {
	Enabled            bool          `envconfig:"SCHEDULE_ENABLED" default:"true"`
	AlertsAt           string        `envconfig:"SCHEDULE_ALERTS_AT" default:"03:00" validate:"clock"`
	WeatherArchiveAt   string        `envconfig:"SCHEDULE_WEATHER_ARCHIVE_AT" default:"04:00" validate:"clock"`
	VegetationAt       string        `envconfig:"SCHEDULE_VEGETATION_AT" default:"05:00" validate:"clock"`
	ConditionsInterval time.Duration `envconfig:"SCHEDULE_CONDITIONS_INTERVAL" default:"1h" validate:"min=1m"`
	LockTTL            time.Duration `envconfig:"SCHEDULE_LOCK_TTL" default:"1h"`
}

// PublisherConfig selects where changed alerts are published.
type PublisherConfig struct {
	Kind         string   `envconfig:"PUBLISHER_KIND" default:"none" validate:"oneof=none sqs kafka"`
	SQSQueueURL  string   `envconfig:"PUBLISHER_SQS_QUEUE_URL" validate:"required_if=Kind sqs"`
	KafkaBrokers []string `envconfig:"PUBLISHER_KAFKA_BROKERS" validate:"required_if=Kind kafka"`
	KafkaTopic   string   `envconfig:"PUBLISHER_KAFKA_TOPIC" default:"agroalerts.alert-changes"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace  string `envconfig:"METRIC_NAMESPACE" default:"AgroAlerts"`
	EnableCloudWatch bool   `envconfig:"ENABLE_CLOUDWATCH" default:"false"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
