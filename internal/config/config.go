package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends for request persistence.
const (
	StoreAuto     = "auto"
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Every external system is optional; without them the server runs fully in
// memory with simulated providers.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RateLimit       float64 // requests per second per client, 0 disables
	RateBurst       int
	TrustProxy      bool // take client addresses from X-Forwarded-For

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisGeoKey   string

	KafkaBrokers     []string
	KafkaTopic       string
	KafkaEventsTopic string

	PGDSN         string
	StoreBackend  string
	RunMigrations bool

	StripeKey           string
	StripePaymentMethod string
	GoogleMapsKey       string
	OSRMURL             string
	ETACacheTTL         time.Duration
	WebhookURL          string
	WebhookKey          string

	DefaultLat        float64
	DefaultLng        float64
	PositionTimeout   time.Duration
	SchedulerInterval time.Duration
	SpeedMph          float64
	PerMileFee        float64
	MatchRadiusMiles  float64
	SeedProviders     int
	Seed              int64

	LogLevel string
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:          ":8080",
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		RateLimit:         20,
		RateBurst:         40,
		RedisGeoKey:       "providers_geo",
		KafkaTopic:        "provider-locations",
		KafkaEventsTopic:  "service-request-events",
		StoreBackend:      StoreAuto,
		ETACacheTTL:       time.Minute,
		DefaultLat:        40.7128,
		DefaultLng:        -74.0060,
		PositionTimeout:   10 * time.Second,
		SchedulerInterval: 10 * time.Second,
		SpeedMph:          30,
		PerMileFee:        2,
		MatchRadiusMiles:  10,
		SeedProviders:     12,
		Seed:              1,
		LogLevel:          "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)
	setFloatFromEnv(&cfg.RateLimit, "HTTP_RATE_LIMIT", &errs)
	setIntFromEnv(&cfg.RateBurst, "HTTP_RATE_BURST", &errs)
	cfg.TrustProxy = strings.EqualFold(os.Getenv("HTTP_TRUST_PROXY"), "true")

	loadRedis(&cfg.RedisAddr, &cfg.RedisPassword, &cfg.RedisDB, &cfg.RedisGeoKey, &errs)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaEventsTopic, "KAFKA_EVENTS_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")
	if v := os.Getenv("STORE_BACKEND"); v != "" {
		cfg.StoreBackend = strings.ToLower(strings.TrimSpace(v))
	}
	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	cfg.StripeKey = os.Getenv("STRIPE_API_KEY")
	setStringFromEnv(&cfg.StripePaymentMethod, "STRIPE_PAYMENT_METHOD")
	cfg.GoogleMapsKey = os.Getenv("GOOGLE_MAPS_API_KEY")
	setStringFromEnv(&cfg.OSRMURL, "OSRM_URL")
	setDurationFromEnv(&cfg.ETACacheTTL, "ETA_CACHE_TTL", &errs)
	setStringFromEnv(&cfg.WebhookURL, "PUSH_WEBHOOK_URL")
	cfg.WebhookKey = os.Getenv("PUSH_WEBHOOK_KEY")

	setFloatFromEnv(&cfg.DefaultLat, "DEFAULT_LAT", &errs)
	setFloatFromEnv(&cfg.DefaultLng, "DEFAULT_LNG", &errs)
	setDurationFromEnv(&cfg.PositionTimeout, "POSITION_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.SchedulerInterval, "SCHEDULER_INTERVAL", &errs)
	setFloatFromEnv(&cfg.SpeedMph, "ETA_SPEED_MPH", &errs)
	setFloatFromEnv(&cfg.PerMileFee, "PRICING_PER_MILE", &errs)
	setFloatFromEnv(&cfg.MatchRadiusMiles, "MATCH_RADIUS_MILES", &errs)
	setIntFromEnv(&cfg.SeedProviders, "SEED_PROVIDERS", &errs)
	if v := os.Getenv("SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid SEED: %w", err))
		} else {
			cfg.Seed = n
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	switch cfg.StoreBackend {
	case StoreAuto, StoreMemory:
	case StoreRedis:
		if cfg.RedisAddr == "" {
			errs = append(errs, errors.New("STORE_BACKEND=redis requires REDIS_ADDR"))
		}
	case StorePostgres:
		if cfg.PGDSN == "" {
			errs = append(errs, errors.New("STORE_BACKEND=postgres requires PG_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend))
	}
	if cfg.DefaultLat < -90 || cfg.DefaultLat > 90 || cfg.DefaultLng < -180 || cfg.DefaultLng > 180 {
		errs = append(errs, fmt.Errorf("DEFAULT_LAT/DEFAULT_LNG out of range"))
	}
	if cfg.PositionTimeout <= 0 {
		errs = append(errs, fmt.Errorf("POSITION_TIMEOUT must be > 0"))
	}
	if cfg.SchedulerInterval <= 0 {
		errs = append(errs, fmt.Errorf("SCHEDULER_INTERVAL must be > 0"))
	}
	if cfg.SpeedMph <= 0 {
		errs = append(errs, fmt.Errorf("ETA_SPEED_MPH must be > 0"))
	}
	if cfg.PerMileFee < 0 {
		errs = append(errs, fmt.Errorf("PRICING_PER_MILE must be >= 0"))
	}
	if cfg.MatchRadiusMiles <= 0 {
		errs = append(errs, fmt.Errorf("MATCH_RADIUS_MILES must be > 0"))
	}
	if cfg.SeedProviders < 0 {
		errs = append(errs, fmt.Errorf("SEED_PROVIDERS must be >= 0"))
	}
	if cfg.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("HTTP_RATE_LIMIT must be >= 0"))
	}

	return cfg, errors.Join(errs...)
}

// Backend resolves the auto store backend: Postgres when a DSN is set, then
// Redis, then memory.
func (c ServerConfig) Backend() string {
	if c.StoreBackend != StoreAuto {
		return c.StoreBackend
	}
	switch {
	case c.PGDSN != "":
		return StorePostgres
	case c.RedisAddr != "":
		return StoreRedis
	default:
		return StoreMemory
	}
}

// ConsumerConfig configures the location consumer process.
type ConsumerConfig struct {
	MetricsAddr   string
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroup    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisGeoKey   string
	RetryAttempts int
	RetryDelay    time.Duration
	LogLevel      string
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	cfg := ConsumerConfig{
		MetricsAddr:   ":2112",
		KafkaBrokers:  []string{"localhost:9092"},
		KafkaTopic:    "provider-locations",
		KafkaGroup:    "roadside-assist-consumer",
		RedisAddr:     "localhost:6379",
		RedisGeoKey:   "providers_geo",
		RetryAttempts: 3,
		RetryDelay:    200 * time.Millisecond,
		LogLevel:      "info",
	}
	var errs []error

	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		brokers = os.Getenv("KAFKA_BROKER")
	}
	if brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")
	loadRedis(&cfg.RedisAddr, &cfg.RedisPassword, &cfg.RedisDB, &cfg.RedisGeoKey, &errs)
	setIntFromEnv(&cfg.RetryAttempts, "REDIS_RETRY_ATTEMPTS", &errs)
	setDurationFromEnv(&cfg.RetryDelay, "REDIS_RETRY_DELAY", &errs)
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, fmt.Errorf("KAFKA_BROKERS must name at least one broker"))
	}
	if cfg.RedisAddr == "" {
		errs = append(errs, fmt.Errorf("REDIS_ADDR is required"))
	}
	if cfg.RetryAttempts <= 0 {
		errs = append(errs, fmt.Errorf("REDIS_RETRY_ATTEMPTS must be > 0"))
	}
	return cfg, errors.Join(errs...)
}

func loadRedis(addr, password *string, db *int, geoKey *string, errs *[]error) {
	setStringFromEnv(addr, "REDIS_ADDR")
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		*password = v
	}
	setIntFromEnv(db, "REDIS_DB", errs)
	setStringFromEnv(geoKey, "REDIS_GEO_KEY")
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
