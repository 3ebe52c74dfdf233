package main

import (
	"fmt"
	"time"

	"github.com/carebook/carebook/libs/config"
	otelx "github.com/carebook/carebook/libs/otel"
	"github.com/carebook/carebook/services/schedule-service/internal/slots"
)

type settings struct {
	Service        string
	Version        string
	Environment    string
	HTTPPort       string
	GRPCPort       string
	DatabaseURL    string
	AutoMigrate    bool
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	KafkaBrokers   []string
	KafkaGroupID   string
	DirectoryTopic string
	JWTSecret      string
	JWKSURL        string
	JWKSCacheTTL   time.Duration
	SlotDuration   time.Duration
	RatePerMinute  int
	RequestTimeout time.Duration
	BodyLimit      int64
	Tracing        otelx.Config
}

func loadSettings() (settings, error) {
	s := settings{
		Service:        config.String("SERVICE_NAME", "schedule-service"),
		Version:        config.String("SERVICE_VERSION", "dev"),
		Environment:    config.String("DEPLOYMENT_ENVIRONMENT", "local"),
		AutoMigrate:    config.Bool("DB_AUTO_MIGRATE", true),
		RedisAddr:      config.String("REDIS_ADDR", ""),
		RedisPassword:  config.String("REDIS_PASSWORD", ""),
		RedisDB:        config.Int("REDIS_DB", 0, 0),
		KafkaBrokers:   config.List("KAFKA_BROKERS", ""),
		KafkaGroupID:   config.String("KAFKA_GROUP_ID", "schedule-service"),
		DirectoryTopic: config.String("KAFKA_DIRECTORY_TOPIC", "accounts.provider.upserted.v1"),
		JWKSURL:        config.String("JWKS_URL", ""),
		JWKSCacheTTL:   config.Seconds("JWKS_CACHE_SECONDS", 5*time.Minute),
		SlotDuration:   time.Duration(config.Int("DEFAULT_SLOT_MINUTES", 60, 1)) * time.Minute,
		RatePerMinute:  config.Int("RATE_LIMIT_PER_MINUTE", 120, 1),
		RequestTimeout: config.Seconds("REQUEST_TIMEOUT_SECONDS", 10*time.Second),
		BodyLimit:      int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20, 1)),
	}

	var err error
	if s.HTTPPort, err = config.Port("PORT", "8083"); err != nil {
		return settings{}, err
	}
	if s.GRPCPort, err = config.Port("GRPC_PORT", "9093"); err != nil {
		return settings{}, err
	}
	if s.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		return settings{}, err
	}
	// HS256 is the only verification path without JWKS, so a secret is mandatory.
	if s.JWKSURL == "" {
		if s.JWTSecret, err = config.RequiredString("JWT_SECRET"); err != nil {
			return settings{}, err
		}
	} else {
		s.JWTSecret = config.String("JWT_SECRET", "")
	}
	if s.SlotDuration > slots.MaxDuration {
		return settings{}, fmt.Errorf("DEFAULT_SLOT_MINUTES must not exceed %d", int(slots.MaxDuration/time.Minute))
	}

	s.Tracing = otelx.Config{
		Enabled:     config.Bool("OTEL_ENABLED", true),
		Service:     s.Service,
		Version:     s.Version,
		Environment: s.Environment,
		Endpoint:    config.String("OTEL_EXPORTER_OTLP_ENDPOINT", "jaeger:4317"),
		SampleRatio: config.Float("OTEL_SAMPLING_RATIO", 1, 0, 1),
	}
	return s, nil
}
