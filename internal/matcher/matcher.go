package matcher

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/example/roadside-assist/internal/eta"
	"github.com/example/roadside-assist/internal/geo"
	"github.com/example/roadside-assist/internal/location"
	"github.com/example/roadside-assist/internal/models"
	"github.com/example/roadside-assist/internal/observability"
)

// DefaultRadiusMiles is used when a search does not name a radius.
const DefaultRadiusMiles = 10.0

// Directory is the provider pool. Nearby may return a superset of what
// matches; the matcher re-checks every filter itself.
type Directory interface {
	Nearby(ctx context.Context, origin models.Coordinate, radiusMiles float64, category string) ([]models.Provider, error)
	Upsert(ctx context.Context, p models.Provider) error
	Get(ctx context.Context, id string) (models.Provider, bool, error)
}

// Locator supplies the search origin when the caller has none.
type Locator interface {
	Acquire(ctx context.Context) location.Fix
}

type Service struct {
	Directory     Directory
	Locator       Locator
	ETA           *eta.Estimator
	DefaultRadius float64
	Logger        *slog.Logger
}

// FindNearby acquires the customer's position and searches around it.
func (s *Service) FindNearby(ctx context.Context, category string, radiusMiles float64) ([]models.Provider, location.Fix, error) {
	var fix location.Fix
	if s.Locator != nil {
		fix = s.Locator.Acquire(ctx)
	} else {
		fix = location.Fix{Coordinate: location.DefaultFallback, Fallback: true, Diagnostic: "no locator configured"}
	}
	out, err := s.FindCandidates(ctx, category, fix.Coordinate, radiusMiles)
	return out, fix, err
}

// FindCandidates returns online providers of category within radiusMiles of
// origin, nearest first. Distances are recomputed here rather than trusted
// from the directory. An empty category matches every provider.
func (s *Service) FindCandidates(ctx context.Context, category string, origin models.Coordinate, radiusMiles float64) ([]models.Provider, error) {
	start := time.Now()
	defer func() { observability.MatchLatency.Observe(time.Since(start).Seconds()) }()

	if !usableRadius(radiusMiles) {
		radiusMiles = s.DefaultRadius
		if !usableRadius(radiusMiles) {
			radiusMiles = DefaultRadiusMiles
		}
	}
	raw, err := s.Directory.Nearby(ctx, origin, radiusMiles, category)
	if err != nil {
		return nil, err
	}

	cands := make([]candidate, 0, len(raw))
	for _, p := range raw {
		if !p.Online {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		d := geo.Distance(origin, p.Location)
		if !(d <= radiusMiles) {
			continue
		}
		p.ETAMinutes = s.ETA.Minutes(p.Location, origin)
		cands = append(cands, candidate{p: p, miles: d})
	}
	rank(cands)

	out := make([]models.Provider, len(cands))
	for i, c := range cands {
		c.p.DistanceMiles = geo.RoundTenth(c.miles)
		out[i] = c.p
	}

	observability.MatchesTotal.WithLabelValues(category).Inc()
	observability.MatchCandidates.Observe(float64(len(out)))
	if s.Logger != nil {
		s.Logger.Debug("provider search", "category", category, "radius_miles", radiusMiles, "candidates", len(out))
	}
	return out, nil
}

// usableRadius is false for zero, negative and non-finite radii.
func usableRadius(r float64) bool {
	return r > 0 && !math.IsInf(r, 1)
}

type candidate struct {
	p     models.Provider
	miles float64
}

// rank orders candidates by exact distance, then higher rating, then id so
// equal inputs always produce the same order. The rounded distance is only
// for display.
func rank(cs []candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		a, b := cs[i], cs[j]
		if a.miles != b.miles {
			return a.miles < b.miles
		}
		if a.p.Rating != b.p.Rating {
			return a.p.Rating > b.p.Rating
		}
		return a.p.ID < b.p.ID
	})
}
