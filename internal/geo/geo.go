package geo

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/example/roadside-assist/internal/models"
)

// EarthRadiusMiles is the mean Earth radius used by every distance in the
// system, so quoted distances and billed distance fees agree.
const EarthRadiusMiles = 3959.0

// Index is the in-memory provider directory.
type Index struct {
	mu        sync.RWMutex
	providers map[string]models.Provider
}

func NewIndex() *Index {
	return &Index{providers: make(map[string]models.Provider)}
}

func (g *Index) Upsert(_ context.Context, p models.Provider) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p.Updated = time.Now()
	p.Specialties = append([]string(nil), p.Specialties...)
	g.providers[p.ID] = p
	return nil
}

// UpdatePosition moves a provider and sets its availability, keeping the
// rest of its profile. Unknown providers are added with just these fields.
func (g *Index) UpdatePosition(_ context.Context, rep models.LocationReport) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.providers[rep.ProviderID]
	if !ok {
		p = models.Provider{ID: rep.ProviderID}
	}
	p.Location = models.Coordinate{Lat: rep.Lat, Lng: rep.Lng}
	p.Online = rep.Online
	p.Updated = reportTime(rep)
	g.providers[p.ID] = p
	return nil
}

func reportTime(rep models.LocationReport) time.Time {
	if rep.At.IsZero() {
		return time.Now()
	}
	return rep.At
}

func (g *Index) Remove(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.providers, id)
	return nil
}

func (g *Index) Get(_ context.Context, id string) (models.Provider, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.providers[id]
	return p, ok, nil
}

// Nearby scans the pool for online providers of the category (any category
// when empty) within radiusMiles of origin. Ordering is left to the matcher.
func (g *Index) Nearby(_ context.Context, origin models.Coordinate, radiusMiles float64, category string) ([]models.Provider, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]models.Provider, 0, len(g.providers))
	for _, p := range g.providers {
		if !p.Online {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		if !(Distance(origin, p.Location) <= radiusMiles) {
			continue
		}
		p.Specialties = append([]string(nil), p.Specialties...)
		out = append(out, p)
	}
	return out, nil
}

// Len reports the number of providers held, online or not.
func (g *Index) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.providers)
}

// Distance is the great-circle distance between a and b in miles.
func Distance(a, b models.Coordinate) float64 {
	return Haversine(a.Lat, a.Lng, b.Lat, b.Lng)
}

// Haversine distance in miles
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMiles * c
}

// Interpolate returns the point a fraction f of the way from a to b. Straight
// lines in degree space are fine at neighbourhood scale.
func Interpolate(a, b models.Coordinate, f float64) models.Coordinate {
	switch {
	case f <= 0:
		return models.Coordinate{Lat: a.Lat, Lng: a.Lng}
	case f >= 1:
		return models.Coordinate{Lat: b.Lat, Lng: b.Lng}
	}
	return models.Coordinate{
		Lat: a.Lat + (b.Lat-a.Lat)*f,
		Lng: a.Lng + (b.Lng-a.Lng)*f,
	}
}

// RoundTenth rounds miles to one decimal, the precision distances are quoted
// and billed at.
func RoundTenth(v float64) float64 { return math.Round(v*10) / 10 }

// CountOnline reports how many providers are online.
func (g *Index) CountOnline(context.Context) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, p := range g.providers {
		if p.Online {
			n++
		}
	}
	return n, nil
}
