package config

import (
	"strings"
	"testing"
	"time"
)

func TestServerDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.SchedulerInterval != 10*time.Second || cfg.PositionTimeout != 10*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.PerMileFee != 2 || cfg.MatchRadiusMiles != 10 || cfg.SpeedMph != 30 {
		t.Fatalf("unexpected pricing/matching defaults %+v", cfg)
	}
	if cfg.DefaultLat != 40.7128 || cfg.DefaultLng != -74.0060 {
		t.Fatalf("default position = %v,%v", cfg.DefaultLat, cfg.DefaultLng)
	}
	if cfg.Backend() != StoreMemory {
		t.Fatalf("backend = %s", cfg.Backend())
	}
}

func TestServerFromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092 ,")
	t.Setenv("SCHEDULER_INTERVAL", "2s")
	t.Setenv("PRICING_PER_MILE", "2.5")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("SEED", "99")
	t.Setenv("MIGRATE", "TRUE")
	t.Setenv("HTTP_TRUST_PROXY", "true")

	cfg, err := LoadServerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":9090" || cfg.SchedulerInterval != 2*time.Second || cfg.PerMileFee != 2.5 || cfg.Seed != 99 {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("brokers = %v", cfg.KafkaBrokers)
	}
	if !cfg.TrustProxy {
		t.Fatal("HTTP_TRUST_PROXY not applied")
	}
	if cfg.Backend() != StoreRedis || !cfg.RunMigrations {
		t.Fatalf("backend=%s migrate=%v", cfg.Backend(), cfg.RunMigrations)
	}
	t.Setenv("PG_DSN", "postgres://localhost/roadside")
	cfg, _ = LoadServerConfig()
	if cfg.Backend() != StorePostgres {
		t.Fatalf("postgres should win in auto mode, got %s", cfg.Backend())
	}
}

func TestServerErrorsAreJoined(t *testing.T) {
	t.Setenv("SCHEDULER_INTERVAL", "soon")
	t.Setenv("ETA_SPEED_MPH", "-1")
	t.Setenv("STORE_BACKEND", "postgres")

	_, err := LoadServerConfig()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"SCHEDULER_INTERVAL", "ETA_SPEED_MPH", "PG_DSN"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestConsumerConfig(t *testing.T) {
	t.Setenv("KAFKA_BROKER", "legacy:9092")
	t.Setenv("REDIS_RETRY_ATTEMPTS", "5")
	cfg, err := LoadConsumerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.KafkaBrokers) != 1 || cfg.KafkaBrokers[0] != "legacy:9092" || cfg.RetryAttempts != 5 {
		t.Fatalf("unexpected consumer config %+v", cfg)
	}

	t.Setenv("REDIS_RETRY_ATTEMPTS", "0")
	if _, err := LoadConsumerConfig(); err == nil {
		t.Fatal("zero retry attempts should be rejected")
	}
}
