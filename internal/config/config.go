package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"80"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Dispatch
	Strategy        string        `envconfig:"DISPATCH_STRATEGY" default:"PRICE"`
	ProviderRanking []string      `envconfig:"PROVIDER_RANKING"`
	QuoteTimeout    time.Duration `envconfig:"QUOTE_TIMEOUT" default:"10s"`

	// Batching
	BatchMode       string        `envconfig:"BATCH_MODE" default:"DAILY"`
	BatchCutoffHour int           `envconfig:"BATCH_CUTOFF_HOUR" default:"16"`
	BatchWindow     time.Duration `envconfig:"BATCH_WINDOW" default:"30m"`

	// Storage
	RedisURL string `envconfig:"REDIS_URL"`

	// E-commerce forwarding
	AMQPURL string `envconfig:"AMQP_URL"`

	// Stuart
	StuartBaseURL       string `envconfig:"STUART_BASE_URL" default:"https://api.stuart.com"`
	StuartClientID      string `envconfig:"STUART_CLIENT_ID"`
	StuartClientSecret  string `envconfig:"STUART_CLIENT_SECRET"`
	StuartWebhookSecret string `envconfig:"STUART_WEBHOOK_SECRET"`
	StuartEnabled       bool   `envconfig:"STUART_ENABLED" default:"true"`
	StuartUseMock       bool   `envconfig:"STUART_USE_MOCK" default:"false"`

	// Gophr
	GophrBaseURL       string `envconfig:"GOPHR_BASE_URL" default:"https://api.gophr.com/v2"`
	GophrAPIKey        string `envconfig:"GOPHR_API_KEY"`
	GophrWebhookSecret string `envconfig:"GOPHR_WEBHOOK_SECRET"`
	GophrEnabled       bool   `envconfig:"GOPHR_ENABLED" default:"true"`
	GophrUseMock       bool   `envconfig:"GOPHR_USE_MOCK" default:"false"`

	// Street Stream
	StreetStreamBaseURL       string `envconfig:"STREETSTREAM_BASE_URL" default:"https://api.streetstream.co.uk"`
	StreetStreamEmail         string `envconfig:"STREETSTREAM_EMAIL"`
	StreetStreamPassword      string `envconfig:"STREETSTREAM_PASSWORD"`
	StreetStreamWebhookSecret string `envconfig:"STREETSTREAM_WEBHOOK_SECRET"`
	StreetStreamEnabled       bool   `envconfig:"STREETSTREAM_ENABLED" default:"true"`
	StreetStreamUseMock       bool   `envconfig:"STREETSTREAM_USE_MOCK" default:"false"`

	// In-house drivers
	InhouseEnabled  bool    `envconfig:"INHOUSE_ENABLED" default:"false"`
	InhouseFlatFee  float64 `envconfig:"INHOUSE_FLAT_FEE" default:"5.00"`
	InhouseCurrency string  `envconfig:"INHOUSE_CURRENCY" default:"GBP"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"true"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"http://jaeger-collector.observability.svc.cluster.local:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"courierhub-dispatch"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.Bool("stuart.enabled", c.StuartEnabled),
		attribute.Bool("gophr.enabled", c.GophrEnabled),
		attribute.Bool("streetstream.enabled", c.StreetStreamEnabled),
		attribute.Bool("inhouse.enabled", c.InhouseEnabled),
	}
}
