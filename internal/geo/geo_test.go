package geo

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/example/roadside-assist/internal/models"
)

func TestHaversineZero(t *testing.T) {
	d := Haversine(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
	p := models.Coordinate{Lat: 40.7128, Lng: -74.0060}
	if Distance(p, p) != 0 {
		t.Fatalf("distance to self should be 0")
	}
}

func TestHaversineKnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a, b      models.Coordinate
		want      float64
		tolerance float64
	}{
		{"new york to los angeles", models.Coordinate{Lat: 40.7128, Lng: -74.0060}, models.Coordinate{Lat: 34.0522, Lng: -118.2437}, 2446, 20},
		{"one degree of latitude", models.Coordinate{Lat: 0, Lng: 0}, models.Coordinate{Lat: 1, Lng: 0}, 69.1, 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.a, tt.b)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("Distance() = %f, want %f (+/-%f)", got, tt.want, tt.tolerance)
			}
		})
	}
}

func TestDistanceSymmetric(t *testing.T) {
	pts := []models.Coordinate{
		{Lat: 40.7128, Lng: -74.0060},
		{Lat: 40.73, Lng: -73.99},
		{Lat: -33.86, Lng: 151.21},
		{Lat: 51.5, Lng: -0.12},
	}
	for _, a := range pts {
		for _, b := range pts {
			if Distance(a, b) != Distance(b, a) {
				t.Fatalf("distance not symmetric for %v %v", a, b)
			}
			if a != b && Distance(a, b) <= 0 {
				t.Fatalf("distinct points must be apart: %v %v", a, b)
			}
		}
	}
}

func TestIndexNearbyFilters(t *testing.T) {
	ctx := context.Background()
	origin := models.Coordinate{Lat: 40.7128, Lng: -74.0060}
	idx := NewIndex()
	_ = idx.Upsert(ctx, models.Provider{ID: "near-tire", Category: "tire", Online: true, Location: models.Coordinate{Lat: 40.72, Lng: -74.0}})
	_ = idx.Upsert(ctx, models.Provider{ID: "offline-tire", Category: "tire", Online: false, Location: models.Coordinate{Lat: 40.72, Lng: -74.0}})
	_ = idx.Upsert(ctx, models.Provider{ID: "near-tow", Category: "towing", Online: true, Location: models.Coordinate{Lat: 40.71, Lng: -74.01}})
	_ = idx.Upsert(ctx, models.Provider{ID: "far-tire", Category: "tire", Online: true, Location: models.Coordinate{Lat: 41.5, Lng: -74.0}})

	got, err := idx.Nearby(ctx, origin, 5, "tire")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "near-tire" {
		t.Fatalf("expected only near-tire, got %+v", got)
	}

	all, _ := idx.Nearby(ctx, origin, 5, "")
	if len(all) != 2 {
		t.Fatalf("expected 2 online providers nearby, got %d", len(all))
	}

	_ = idx.Remove(ctx, "near-tire")
	if _, ok, _ := idx.Get(ctx, "near-tire"); ok {
		t.Fatal("provider should be removed")
	}
	if idx.Len() != 3 {
		t.Fatalf("expected 3 providers left, got %d", idx.Len())
	}
}

func TestInterpolate(t *testing.T) {
	a := models.Coordinate{Lat: 0, Lng: 0}
	b := models.Coordinate{Lat: 1, Lng: 2}
	mid := Interpolate(a, b, 0.5)
	if mid.Lat != 0.5 || mid.Lng != 1 {
		t.Fatalf("unexpected midpoint %+v", mid)
	}
	if Interpolate(a, b, -1) != a || Interpolate(a, b, 3) != b {
		t.Fatal("fractions outside [0,1] must clamp")
	}
}

func TestSeedDeterministic(t *testing.T) {
	origin := models.Coordinate{Lat: 40.7128, Lng: -74.0060}
	cats := []string{"tire", "towing", "jumpstart"}
	a := Seed(NewSeededRand(42), origin, cats, 8)
	b := Seed(NewSeededRand(42), origin, cats, 8)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("same seed should produce the same pool")
	}
	if len(a) != 8 {
		t.Fatalf("expected 8 providers, got %d", len(a))
	}
	for _, p := range a {
		if p.Rating < 4.0 || p.Rating > 5.0 {
			t.Errorf("rating out of range: %v", p.Rating)
		}
		if p.Price < 50 || p.Price >= 150 {
			t.Errorf("price out of range: %v", p.Price)
		}
		if n := len(p.Specialties); n < 2 || n > 5 {
			t.Errorf("specialties count out of range: %d", n)
		}
		if math.Abs(p.Location.Lat-origin.Lat) > 0.05 || math.Abs(p.Location.Lng-origin.Lng) > 0.05 {
			t.Errorf("provider placed too far from origin: %+v", p.Location)
		}
	}
	c := Seed(NewSeededRand(7), origin, cats, 8)
	if reflect.DeepEqual(a, c) {
		t.Fatal("different seeds should differ")
	}
}

func TestMetaRoundTrip(t *testing.T) {
	p := models.Provider{
		ID: "p1", Name: "Maria Garcia", Category: "tire", Rating: 4.7, Price: 80,
		Online: true, CompletedJobs: 321, Specialties: []string{"Tire Change", "Towing"},
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	fields := metaFields(p, now)
	meta := make(map[string]string, len(fields))
	for k, v := range fields {
		meta[k] = v.(string)
	}
	got := providerFromMeta("p1", meta)
	if !got.Updated.Equal(now) {
		t.Fatalf("updated = %v, want %v", got.Updated, now)
	}
	got.Updated = time.Time{}
	if !reflect.DeepEqual(got, p) {
		t.Fatalf("meta round trip mismatch:\n got %+v\nwant %+v", got, p)
	}
}

func TestUpdatePositionKeepsProfile(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex()
	_ = idx.Upsert(ctx, models.Provider{ID: "p1", Name: "Lisa Thompson", Category: "fuel", Rating: 4.4, Online: false})
	at := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	_ = idx.UpdatePosition(ctx, models.LocationReport{ProviderID: "p1", Lat: 40.8, Lng: -73.9, Online: true, At: at})
	p, ok, _ := idx.Get(ctx, "p1")
	if !ok || p.Name != "Lisa Thompson" || p.Category != "fuel" || !p.Online || p.Location.Lat != 40.8 || !p.Updated.Equal(at) {
		t.Fatalf("unexpected provider after update: %+v", p)
	}
	_ = idx.UpdatePosition(ctx, models.LocationReport{ProviderID: "new", Lat: 1, Lng: 1})
	if n, _ := idx.CountOnline(ctx); n != 1 {
		t.Fatalf("expected 1 online provider, got %d", n)
	}
	if idx.Len() != 2 {
		t.Fatalf("unknown provider should be added, len=%d", idx.Len())
	}
}
