package eta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/example/roadside-assist/internal/models"
)

var ErrNoRoute = errors.New("no route between points")

// OSRMClient asks an OSRM server for road drive times. Lookups are bounded
// by Timeout because the estimator is called while a request is being priced.
type OSRMClient struct {
	Endpoint string
	Profile  string
	Timeout  time.Duration
	HTTP     *http.Client
}

func NewOSRMClient(endpoint string) *OSRMClient {
	return &OSRMClient{
		Endpoint: strings.TrimRight(endpoint, "/"),
		Profile:  "driving",
		Timeout:  2 * time.Second,
		HTTP:     http.DefaultClient,
	}
}

type osrmRoute struct {
	Code   string `json:"code"`
	Routes []struct {
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

func (o *OSRMClient) EstimateSeconds(from, to models.Coordinate) (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), o.Timeout)
	defer cancel()

	// OSRM takes lng,lat pairs.
	u := fmt.Sprintf("%s/route/v1/%s/%.6f,%.6f;%.6f,%.6f?overview=false",
		o.Endpoint, o.Profile, from.Lng, from.Lat, to.Lng, to.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	resp, err := o.HTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("osrm: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("osrm: unexpected status %d", resp.StatusCode)
	}

	var route osrmRoute
	if err := json.NewDecoder(resp.Body).Decode(&route); err != nil {
		return 0, fmt.Errorf("osrm: decode: %w", err)
	}
	if route.Code != "Ok" || len(route.Routes) == 0 {
		return 0, fmt.Errorf("%w (osrm code %q)", ErrNoRoute, route.Code)
	}
	return route.Routes[0].Duration, nil
}
