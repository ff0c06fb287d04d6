package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/courierhub/dispatch/internal/config"
	"github.com/courierhub/dispatch/internal/notify"
	"github.com/courierhub/dispatch/internal/session"
	"github.com/courierhub/dispatch/internal/store"
	"github.com/courierhub/dispatch/internal/telemetry"
	"github.com/courierhub/dispatch/pkg/courier"
	"github.com/courierhub/dispatch/pkg/courier/gophr"
	"github.com/courierhub/dispatch/pkg/courier/inhouse"
	"github.com/courierhub/dispatch/pkg/courier/streetstream"
	"github.com/courierhub/dispatch/pkg/courier/stuart"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(level string) (*otelzap.Logger, error) {
	return telemetry.NewLogger(level)
}

func initTracer(ctx context.Context, cfg *config.Config) (trace.Tracer, func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return nil, func(context.Context) error { return nil }, nil
	}
	return telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Version)
}

// initRedis connects to Redis when a URL is configured. Without one the
// service falls back to in-memory stores, which only suits local development.
func initRedis(cfg *config.Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func initStores(rdb *redis.Client, logger *otelzap.Logger) (store.JobStore, session.CredentialStore) {
	if rdb != nil {
		return store.NewRedisJobStore(rdb), session.NewRedisCredentialStore(rdb)
	}
	logger.Warn("No REDIS_URL configured, using in-memory stores")
	return store.NewMemoryJobStore(), session.NewMemoryCredentialStore()
}

// initCourierRegistry wires the enabled provider adapters. Session-based
// providers authenticate through the session manager's HTTP client.
func initCourierRegistry(cfg *config.Config, sessions *session.Manager,
	logger *otelzap.Logger, tracer trace.Tracer) *courier.Registry {
	registry := courier.NewRegistry()

	if cfg.StuartEnabled {
		stuartCfg := stuart.Config{
			BaseURL:       cfg.StuartBaseURL,
			ClientID:      cfg.StuartClientID,
			ClientSecret:  cfg.StuartClientSecret,
			WebhookSecret: cfg.StuartWebhookSecret,
			UseMock:       cfg.StuartUseMock,
		}
		sessions.Register(stuart.NewAuthenticator(stuartCfg))
		registry.Register(stuart.New(stuartCfg, sessions.ClientFor("stuart"), logger, tracer))
	}

	if cfg.GophrEnabled {
		registry.Register(gophr.New(gophr.Config{
			APIKey:        cfg.GophrAPIKey,
			BaseURL:       cfg.GophrBaseURL,
			WebhookSecret: cfg.GophrWebhookSecret,
			UseMock:       cfg.GophrUseMock,
		}, logger, tracer))
	}

	if cfg.StreetStreamEnabled {
		ssCfg := streetstream.Config{
			BaseURL:       cfg.StreetStreamBaseURL,
			Email:         cfg.StreetStreamEmail,
			Password:      cfg.StreetStreamPassword,
			WebhookSecret: cfg.StreetStreamWebhookSecret,
			UseMock:       cfg.StreetStreamUseMock,
		}
		sessions.Register(streetstream.NewAuthenticator(ssCfg))
		registry.Register(streetstream.New(ssCfg, sessions.ClientFor("streetstream"), logger, tracer))
	}

	if cfg.InhouseEnabled {
		registry.Register(inhouse.New(inhouse.Config{
			FlatFee:  cfg.InhouseFlatFee,
			Currency: cfg.InhouseCurrency,
		}, logger))
	}

	return registry
}

// initEcommerceForwarder prefers AMQP; without a broker URL status updates
// are only logged.
func initEcommerceForwarder(cfg *config.Config, logger *otelzap.Logger) notify.EcommerceForwarder {
	if cfg.AMQPURL == "" {
		logger.Warn("No AMQP_URL configured, e-commerce updates will only be logged")
		return &notify.LogEcommerceForwarder{Logger: logger}
	}
	forwarder, err := notify.NewAMQPForwarder(notify.AMQPForwarderConfig{URL: cfg.AMQPURL}, logger)
	if err != nil {
		logger.Error("Failed to connect to AMQP, e-commerce updates will only be logged",
			zap.Error(err))
		return &notify.LogEcommerceForwarder{Logger: logger}
	}
	return forwarder
}
