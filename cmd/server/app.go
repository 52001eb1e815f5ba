package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/example/roadside-assist/internal/catalog"
	"github.com/example/roadside-assist/internal/config"
	"github.com/example/roadside-assist/internal/dispatch"
	"github.com/example/roadside-assist/internal/eta"
	"github.com/example/roadside-assist/internal/geo"
	httpapi "github.com/example/roadside-assist/internal/http"
	"github.com/example/roadside-assist/internal/ingest"
	"github.com/example/roadside-assist/internal/lifecycle"
	"github.com/example/roadside-assist/internal/location"
	"github.com/example/roadside-assist/internal/matcher"
	"github.com/example/roadside-assist/internal/models"
	"github.com/example/roadside-assist/internal/observability"
	"github.com/example/roadside-assist/internal/payments"
	"github.com/example/roadside-assist/internal/storage"
)

// app is the fully wired process. Everything optional falls back to an
// in-memory or simulated implementation.
type app struct {
	server    *httpapi.Server
	lifecycle *lifecycle.Service
	directory httpapi.Directory
	closers   []io.Closer
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

func newApp(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (*app, error) {
	a := &app{}
	origin := models.Coordinate{Lat: cfg.DefaultLat, Lng: cfg.DefaultLng}
	cat := catalog.Default()

	var rc *redis.Client
	if cfg.RedisAddr != "" {
		rc = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := rc.Ping(ctx).Err(); err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		a.closers = append(a.closers, rc)
	}

	kv, err := a.openKV(ctx, cfg, rc, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	if rc != nil {
		a.directory = geo.NewRedisGeo(rc, cfg.RedisGeoKey)
	} else {
		a.directory = geo.NewIndex()
	}
	if err := seedDirectory(ctx, a.directory, origin, cat.IDs(), cfg.SeedProviders, cfg.Seed); err != nil {
		a.Close()
		return nil, err
	}
	if n, err := a.directory.CountOnline(ctx); err == nil {
		observability.ProvidersOnline.Set(float64(n))
		logger.Info("provider directory ready", "online", n, "seeded", cfg.SeedProviders)
	}

	var geocoder location.Geocoder = location.NewOfflineGeocoder(origin, 0)
	if cfg.GoogleMapsKey != "" {
		g, err := location.NewGoogleGeocoder(cfg.GoogleMapsKey)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("google geocoder: %w", err)
		}
		geocoder = g
	}
	loc := location.NewService(location.Options{
		Positioner: location.Static(origin),
		Geocoder:   geocoder,
		Fallback:   &origin,
		Timeout:    cfg.PositionTimeout,
		Logger:     logger,
	})

	estimator := &eta.Estimator{Cache: eta.NewCache(cfg.ETACacheTTL), SpeedMph: cfg.SpeedMph}
	if cfg.OSRMURL != "" {
		estimator.Client = eta.NewOSRMClient(cfg.OSRMURL)
	}

	var card payments.Gateway = &payments.FakeGateway{}
	if cfg.StripeKey != "" {
		card = payments.NewStripeGateway(cfg.StripeKey, cfg.StripePaymentMethod)
	}

	ws := dispatch.NewWSRegistry()
	opts := lifecycle.Options{
		Store:      storage.NewHistoryStore(kv),
		Catalog:    cat,
		Payments:   &payments.Router{Card: card, Cash: payments.CashGateway{}},
		Notifier:   dispatch.NewPushDispatcher(cfg.WebhookURL, cfg.WebhookKey, ws, logger),
		ETA:        estimator,
		Providers:  a.directory,
		Interval:   cfg.SchedulerInterval,
		PerMileFee: cfg.PerMileFee,
		Logger:     logger,
	}
	deps := httpapi.Deps{
		Catalog:    cat,
		Directory:  a.directory,
		Location:   loc,
		WS:         ws,
		Logger:     logger,
		RateLimit:  cfg.RateLimit,
		RateBurst:  cfg.RateBurst,
		TrustProxy: cfg.TrustProxy,
	}
	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEventsTopic, cfg.KafkaTopic)
		a.closers = append(a.closers, kp)
		opts.Publisher = kp
		deps.Locations = kp
	}

	a.lifecycle = lifecycle.New(opts)
	deps.Lifecycle = a.lifecycle
	deps.Matcher = &matcher.Service{
		Directory:     a.directory,
		Locator:       loc,
		ETA:           estimator,
		DefaultRadius: cfg.MatchRadiusMiles,
		Logger:        logger,
	}
	a.server = httpapi.NewServer(deps)
	return a, nil
}

func (a *app) openKV(ctx context.Context, cfg config.ServerConfig, rc *redis.Client, logger *slog.Logger) (storage.KV, error) {
	switch cfg.Backend() {
	case config.StorePostgres:
		pg, err := storage.NewPostgresKV(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, pg)
		if cfg.RunMigrations {
			if err := pg.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
			logger.Info("migration applied", "file", "001_create_kv_store.sql")
		}
		return pg, nil
	case config.StoreRedis:
		if rc == nil {
			return nil, errors.New("redis store selected without a redis client")
		}
		return storage.NewRedisKV(rc, "roadside:"), nil
	default:
		return storage.NewMemoryKV(), nil
	}
}

func seedDirectory(ctx context.Context, dir httpapi.Directory, origin models.Coordinate, categories []string, n int, seed int64) error {
	for _, p := range geo.Seed(geo.NewSeededRand(uint64(seed)), origin, categories, n) {
		if err := dir.Upsert(ctx, p); err != nil {
			return fmt.Errorf("seed provider %s: %w", p.ID, err)
		}
	}
	return nil
}
