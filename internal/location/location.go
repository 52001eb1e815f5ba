// Package location resolves where the customer is: live positions with a
// deterministic fallback, and free-text address geocoding.
package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/roadside-assist/internal/geo"
	"github.com/example/roadside-assist/internal/models"
)

// DefaultFallback is downtown New York.
var DefaultFallback = models.Coordinate{Lat: 40.7128, Lng: -74.0060}

// ErrPositionUnavailable is returned by positioners that have nothing to report.
var ErrPositionUnavailable = errors.New("position unavailable")

// ErrGeocode matches every *GeocodeError.
var ErrGeocode = errors.New("geocode failed")

// GeocodeError reports an address that could not be resolved.
type GeocodeError struct {
	Address string
	Err     error
}

func (e *GeocodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("geocode %q: %v", e.Address, e.Err)
	}
	return fmt.Sprintf("geocode %q: no match", e.Address)
}

func (e *GeocodeError) Unwrap() error { return e.Err }

func (e *GeocodeError) Is(target error) bool { return target == ErrGeocode }

// Positioner reads a live position.
type Positioner interface {
	Position(ctx context.Context) (models.Coordinate, error)
}

// PositionerFunc adapts a function to Positioner.
type PositionerFunc func(ctx context.Context) (models.Coordinate, error)

func (f PositionerFunc) Position(ctx context.Context) (models.Coordinate, error) {
	return f(ctx)
}

// Static always reports the same coordinate.
type Static models.Coordinate

func (s Static) Position(context.Context) (models.Coordinate, error) {
	return models.Coordinate(s), nil
}

// Geocoder resolves free text to a location.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (models.Location, error)
}

// Fix is the outcome of acquiring a position. Diagnostic explains a fallback.
type Fix struct {
	Coordinate models.Coordinate `json:"coordinate"`
	Fallback   bool              `json:"fallback"`
	Diagnostic string            `json:"diagnostic,omitempty"`
}

type Service struct {
	positioner Positioner
	geocoder   Geocoder
	fallback   models.Coordinate
	timeout    time.Duration
	logger     *slog.Logger
}

type Options struct {
	Positioner Positioner
	Geocoder   Geocoder
	Fallback   *models.Coordinate
	Timeout    time.Duration
	Logger     *slog.Logger
}

func NewService(opts Options) *Service {
	s := &Service{
		positioner: opts.Positioner,
		geocoder:   opts.Geocoder,
		fallback:   DefaultFallback,
		timeout:    opts.Timeout,
		logger:     opts.Logger,
	}
	if opts.Fallback != nil {
		s.fallback = *opts.Fallback
	}
	if s.timeout <= 0 {
		s.timeout = 10 * time.Second
	}
	if s.geocoder == nil {
		s.geocoder = NewOfflineGeocoder(s.fallback, 0)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Acquire reads the configured positioner. It never fails.
func (s *Service) Acquire(ctx context.Context) Fix {
	return s.AcquireFrom(ctx, s.positioner)
}

// AcquireFrom reads p within the configured timeout, falling back to the
// default coordinate when p is nil, errors, times out, or reports an
// impossible coordinate.
func (s *Service) AcquireFrom(ctx context.Context, p Positioner) Fix {
	if p == nil {
		return s.fallbackFix(ErrPositionUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		c   models.Coordinate
		err error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := p.Position(ctx)
		ch <- result{c, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return s.fallbackFix(r.err)
		}
		if !Valid(r.c) {
			return s.fallbackFix(fmt.Errorf("invalid coordinate %.6f,%.6f", r.c.Lat, r.c.Lng))
		}
		return Fix{Coordinate: r.c}
	case <-ctx.Done():
		return s.fallbackFix(ctx.Err())
	}
}

func (s *Service) fallbackFix(cause error) Fix {
	s.logger.Debug("position fallback", "error", cause)
	return Fix{
		Coordinate: s.fallback,
		Fallback:   true,
		Diagnostic: cause.Error(),
	}
}

// Geocode resolves address text. Empty input fails without calling the
// geocoder.
func (s *Service) Geocode(ctx context.Context, address string) (models.Location, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return models.Location{}, &GeocodeError{Address: address, Err: errors.New("empty address")}
	}
	loc, err := s.geocoder.Geocode(ctx, address)
	if err != nil {
		var ge *GeocodeError
		if errors.As(err, &ge) {
			return models.Location{}, err
		}
		return models.Location{}, &GeocodeError{Address: address, Err: err}
	}
	if loc.Address == "" {
		loc.Address = address
	}
	return loc, nil
}

// Distance is the great-circle distance in miles.
func (s *Service) Distance(a, b models.Coordinate) float64 { return geo.Distance(a, b) }

// Fallback is the configured default coordinate.
func (s *Service) Fallback() models.Coordinate { return s.fallback }

// Valid reports whether c is a real position on Earth.
func Valid(c models.Coordinate) bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}
