package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/roadside-assist/internal/catalog"
	"github.com/example/roadside-assist/internal/dispatch"
	"github.com/example/roadside-assist/internal/lifecycle"
	"github.com/example/roadside-assist/internal/location"
	"github.com/example/roadside-assist/internal/matcher"
	"github.com/example/roadside-assist/internal/models"
)

// Directory is the provider pool as seen by the HTTP layer: the matcher's
// view plus position-only updates from the field.
type Directory interface {
	matcher.Directory
	UpdatePosition(ctx context.Context, rep models.LocationReport) error
	CountOnline(ctx context.Context) (int, error)
}

// LocationPublisher forwards accepted provider positions to the stream.
type LocationPublisher interface {
	PublishLocation(ctx context.Context, rep models.LocationReport) error
}

// Deps are the services the server routes to. Locations and WS are optional.
type Deps struct {
	Lifecycle *lifecycle.Service
	Matcher   *matcher.Service
	Location  *location.Service
	Catalog   *catalog.Catalog
	Directory Directory
	Locations LocationPublisher
	WS        *dispatch.WSRegistry
	Logger    *slog.Logger
	RateLimit float64
	RateBurst int

	// TrustProxy reads the client address from X-Forwarded-For. Leave it
	// off unless a proxy in front of the server sets that header.
	TrustProxy bool
}

type Server struct {
	lifecycle *lifecycle.Service
	matcher   *matcher.Service
	location  *location.Service
	catalog   *catalog.Catalog
	directory Directory
	locations LocationPublisher
	ws        *dispatch.WSRegistry
	logger    *slog.Logger
	limiter   *clientLimiter
	trusted   bool
	mux       *mux.Router
}

func NewServer(d Deps) *Server {
	s := &Server{
		lifecycle: d.Lifecycle,
		matcher:   d.Matcher,
		location:  d.Location,
		catalog:   d.Catalog,
		directory: d.Directory,
		locations: d.Locations,
		ws:        d.WS,
		logger:    d.Logger,
		trusted:   d.TrustProxy,
		mux:       mux.NewRouter(),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.catalog == nil {
		s.catalog = catalog.Default()
	}
	if s.ws == nil {
		s.ws = dispatch.NewWSRegistry()
	}
	if d.RateLimit > 0 {
		s.limiter = newClientLimiter(d.RateLimit, d.RateBurst)
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/services", s.handleServices).Methods(http.MethodGet)
	api.HandleFunc("/providers/nearby", s.handleNearby).Methods(http.MethodGet)
	api.HandleFunc("/geocode", s.handleGeocode).Methods(http.MethodPost)
	api.HandleFunc("/requests", s.handleBook).Methods(http.MethodPost)
	api.HandleFunc("/requests/{id}", s.handleGetRequest).Methods(http.MethodGet)
	api.HandleFunc("/requests/{id}/status", s.handleAdvance).Methods(http.MethodPost)
	api.HandleFunc("/requests/{id}/cancel", s.handleCancel).Methods(http.MethodPost)
	api.HandleFunc("/requests/{id}/complete", s.handleComplete).Methods(http.MethodPost)
	api.HandleFunc("/requests/{id}/tip", s.handleTip).Methods(http.MethodPost)
	api.HandleFunc("/customers/{customer_id}/active", s.handleActive).Methods(http.MethodGet)
	api.HandleFunc("/customers/{customer_id}/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/customers/{customer_id}/summary", s.handleSummary).Methods(http.MethodGet)

	s.mux.HandleFunc("/internal/providers/locations", s.handleProviderLocation).Methods(http.MethodPost)
	s.mux.HandleFunc("/ws/{customer_id}", s.handleWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }
