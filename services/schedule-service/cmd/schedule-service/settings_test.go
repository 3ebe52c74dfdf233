package main

import (
	"testing"
	"time"
)

func TestLoadSettingsDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/schedule")
	t.Setenv("JWT_SECRET", "test-secret")
	for _, key := range []string{"PORT", "GRPC_PORT", "KAFKA_BROKERS", "DEFAULT_SLOT_MINUTES", "REDIS_ADDR", "DB_AUTO_MIGRATE"} {
		t.Setenv(key, "")
	}

	s, err := loadSettings()
	if err != nil {
		t.Fatalf("loadSettings failed: %v", err)
	}
	if s.HTTPPort != "8083" || s.GRPCPort != "9093" {
		t.Fatalf("unexpected ports %q %q", s.HTTPPort, s.GRPCPort)
	}
	if s.SlotDuration != time.Hour || !s.AutoMigrate || len(s.KafkaBrokers) != 0 {
		t.Fatalf("unexpected defaults %+v", s)
	}
	if s.DirectoryTopic != "accounts.provider.upserted.v1" {
		t.Fatalf("unexpected topic %q", s.DirectoryTopic)
	}
}

func TestLoadSettingsOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/schedule")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DEFAULT_SLOT_MINUTES", "30")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("DB_AUTO_MIGRATE", "false")
	t.Setenv("PORT", "")
	t.Setenv("GRPC_PORT", "")

	s, err := loadSettings()
	if err != nil {
		t.Fatalf("loadSettings failed: %v", err)
	}
	if s.SlotDuration != 30*time.Minute || s.AutoMigrate {
		t.Fatalf("unexpected overrides %+v", s)
	}
	if len(s.KafkaBrokers) != 2 || s.KafkaBrokers[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", s.KafkaBrokers)
	}
}

func TestLoadSettingsRequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := loadSettings(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

func TestLoadSettingsRejectsBadPort(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/schedule")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "99999")
	if _, err := loadSettings(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestLoadSettingsRequiresSecretWithoutJWKS(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/schedule")
	t.Setenv("JWKS_URL", "")
	t.Setenv("JWT_SECRET", "")
	if _, err := loadSettings(); err == nil {
		t.Fatal("expected error without JWT_SECRET or JWKS_URL")
	}

	t.Setenv("JWKS_URL", "http://auth/.well-known/jwks.json")
	s, err := loadSettings()
	if err != nil {
		t.Fatalf("JWKS-only settings failed: %v", err)
	}
	if s.JWTSecret != "" {
		t.Fatalf("unexpected secret %q", s.JWTSecret)
	}
}

func TestLoadSettingsRejectsDayLongDefaultSlot(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/schedule")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DEFAULT_SLOT_MINUTES", "1441")
	if _, err := loadSettings(); err == nil {
		t.Fatal("expected error for a default slot longer than a day")
	}
}

func TestLoadSettingsTracing(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/schedule")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("SERVICE_VERSION", "1.4.0")
	t.Setenv("DEPLOYMENT_ENVIRONMENT", "staging")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.2")
	t.Setenv("OTEL_ENABLED", "false")

	s, err := loadSettings()
	if err != nil {
		t.Fatalf("loadSettings failed: %v", err)
	}
	tr := s.Tracing
	if tr.Enabled || tr.Version != "1.4.0" || tr.Environment != "staging" || tr.SampleRatio != 0.2 || tr.Service != s.Service {
		t.Fatalf("unexpected tracing config %+v", tr)
	}
}
