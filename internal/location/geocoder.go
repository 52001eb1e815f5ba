package location

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"googlemaps.github.io/maps"

	"github.com/example/roadside-assist/internal/models"
)

// GoogleGeocoder resolves addresses with the Google Geocoding API.
type GoogleGeocoder struct {
	client *maps.Client
}

func NewGoogleGeocoder(apiKey string) (*GoogleGeocoder, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GoogleGeocoder{client: c}, nil
}

func (g *GoogleGeocoder) Geocode(ctx context.Context, address string) (models.Location, error) {
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err != nil {
		return models.Location{}, err
	}
	if len(results) == 0 {
		return models.Location{}, &GeocodeError{Address: address}
	}
	r := results[0]
	return models.Location{
		Coordinate: models.Coordinate{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
		Address:    r.FormattedAddress,
	}, nil
}

// OfflineGeocoder places every address at a stable pseudo-random point near
// base. The same text always lands on the same coordinate.
type OfflineGeocoder struct {
	base    models.Coordinate
	latency time.Duration
}

func NewOfflineGeocoder(base models.Coordinate, latency time.Duration) *OfflineGeocoder {
	return &OfflineGeocoder{base: base, latency: latency}
}

func (o *OfflineGeocoder) Geocode(ctx context.Context, address string) (models.Location, error) {
	if address == "" {
		return models.Location{}, &GeocodeError{Address: address, Err: errors.New("empty address")}
	}
	if o.latency > 0 {
		t := time.NewTimer(o.latency)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return models.Location{}, ctx.Err()
		}
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(address))
	sum := h.Sum64()
	// two 32-bit halves mapped onto [-0.05, 0.05] degrees
	dLat := (float64(sum>>32)/float64(1<<32) - 0.5) * 0.1
	dLng := (float64(sum&0xffffffff)/float64(1<<32) - 0.5) * 0.1
	return models.Location{
		Coordinate: models.Coordinate{Lat: o.base.Lat + dLat, Lng: o.base.Lng + dLng},
		Address:    address,
	}, nil
}
