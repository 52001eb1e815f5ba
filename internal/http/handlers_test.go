package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/roadside-assist/internal/dispatch"
	"github.com/example/roadside-assist/internal/geo"
	"github.com/example/roadside-assist/internal/lifecycle"
	"github.com/example/roadside-assist/internal/location"
	"github.com/example/roadside-assist/internal/matcher"
	"github.com/example/roadside-assist/internal/models"
	"github.com/example/roadside-assist/internal/payments"
	"github.com/example/roadside-assist/internal/scheduler"
)

var home = models.Coordinate{Lat: 40.7128, Lng: -74.0060}

func north(miles float64) models.Coordinate {
	return models.Coordinate{Lat: home.Lat + miles/69.097, Lng: home.Lng}
}

type recordingLocations struct {
	mu   sync.Mutex
	reps []models.LocationReport
}

func (r *recordingLocations) PublishLocation(_ context.Context, rep models.LocationReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reps = append(r.reps, rep)
	return nil
}

type fixture struct {
	srv   *Server
	dir   *geo.Index
	card  *payments.FakeGateway
	locs  *recordingLocations
	ws    *dispatch.WSRegistry
	clock *scheduler.FakeClock
}

func newFixture(t *testing.T, rateLimit float64) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	f := &fixture{
		dir:   geo.NewIndex(),
		card:  &payments.FakeGateway{},
		locs:  &recordingLocations{},
		ws:    dispatch.NewWSRegistry(),
		clock: scheduler.NewFakeClock(time.Date(2026, 4, 10, 14, 0, 0, 0, time.UTC)),
	}
	_ = f.dir.Upsert(ctx, models.Provider{ID: "tire_near", Name: "Alex Johnson", Category: "tire", Rating: 4.8, Online: true, Location: north(3.2)})
	_ = f.dir.Upsert(ctx, models.Provider{ID: "tire_off", Name: "Sam Lee", Category: "tire", Rating: 4.9, Online: false, Location: north(1)})
	_ = f.dir.Upsert(ctx, models.Provider{ID: "tire_far", Name: "Jo Park", Category: "tire", Rating: 5, Online: true, Location: north(7)})
	_ = f.dir.Upsert(ctx, models.Provider{ID: "jump_1", Name: "Riley Chen", Category: "jumpstart", Rating: 4.1, Online: true, Location: north(0.5)})

	loc := location.NewService(location.Options{Positioner: location.Static(home), Logger: logger})
	life := lifecycle.New(lifecycle.Options{
		Payments:  &payments.Router{Card: f.card, Cash: payments.CashGateway{}},
		Notifier:  dispatch.NewPushDispatcher("", "", f.ws, logger),
		Providers: f.dir,
		Clock:     f.clock,
		Logger:    logger,
	})
	f.srv = NewServer(Deps{
		Lifecycle: life,
		Matcher:   &matcher.Service{Directory: f.dir, Locator: loc, DefaultRadius: matcher.DefaultRadiusMiles, Logger: logger},
		Location:  loc,
		Directory: f.dir,
		Locations: f.locs,
		WS:        f.ws,
		Logger:    logger,
		RateLimit: rateLimit,
		RateBurst: 1,
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decodeInto[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func bookBody(customerID string) map[string]any {
	return map[string]any{
		"customer_id":    customerID,
		"category":       "tire",
		"provider_id":    "tire_near",
		"location":       map[string]any{"lat": home.Lat, "lng": home.Lng, "address": "Broadway & Chambers"},
		"vehicle":        map[string]any{"make": "Honda", "model": "Civic", "year": "2019"},
		"payment_method": "card",
	}
}

func TestServices(t *testing.T) {
	f := newFixture(t, 0)
	rec := f.do(t, http.MethodGet, "/api/v1/services", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	got := decodeInto[struct {
		Services []map[string]any `json:"services"`
	}](t, rec)
	if len(got.Services) != 8 {
		t.Fatalf("expected 8 services, got %d", len(got.Services))
	}
}

func TestNearbyFiltersAndOrders(t *testing.T) {
	f := newFixture(t, 0)
	path := fmt.Sprintf("/api/v1/providers/nearby?category=tire&radius=5&lat=%f&lng=%f", home.Lat, home.Lng)
	rec := f.do(t, http.MethodGet, path, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	got := decodeInto[nearbyResponse](t, rec)
	if len(got.Providers) != 1 || got.Providers[0].ID != "tire_near" || got.Providers[0].DistanceMiles != 3.2 {
		t.Fatalf("unexpected providers %+v", got.Providers)
	}
	if got.Origin.Fallback {
		t.Fatal("explicit coordinates should not be a fallback")
	}

	rec = f.do(t, http.MethodGet, "/api/v1/providers/nearby?category=tire", nil)
	got = decodeInto[nearbyResponse](t, rec)
	if len(got.Providers) != 2 || got.Providers[0].ID != "tire_near" || got.Providers[1].ID != "tire_far" {
		t.Fatalf("default radius search returned %+v", got.Providers)
	}
}

func TestNearbyBadInput(t *testing.T) {
	f := newFixture(t, 0)
	cases := map[string]int{
		"/api/v1/providers/nearby?lat=40.7":           http.StatusBadRequest,
		"/api/v1/providers/nearby?lat=x&lng=1":        http.StatusBadRequest,
		"/api/v1/providers/nearby?radius=far":         http.StatusBadRequest,
		"/api/v1/providers/nearby?radius=NaN":         http.StatusBadRequest,
		"/api/v1/providers/nearby?radius=Inf":         http.StatusBadRequest,
		"/api/v1/providers/nearby?category=submarine": http.StatusUnprocessableEntity,
	}
	for path, want := range cases {
		if rec := f.do(t, http.MethodGet, path, nil); rec.Code != want {
			t.Errorf("%s: status %d, want %d", path, rec.Code, want)
		}
	}
}

func TestGeocode(t *testing.T) {
	f := newFixture(t, 0)
	rec := f.do(t, http.MethodPost, "/api/v1/geocode", map[string]string{"address": " 1 Main St "})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	if loc := decodeInto[models.Location](t, rec); loc.Address != "1 Main St" {
		t.Fatalf("address = %q", loc.Address)
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/geocode", map[string]string{"address": "  "}); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty address status %d", rec.Code)
	}
}

func TestBookAndLookup(t *testing.T) {
	f := newFixture(t, 0)
	rec := f.do(t, http.MethodPost, "/api/v1/requests", bookBody("c1"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	req := decodeInto[models.ServiceRequest](t, rec)
	if req.Status != models.StatusPending || req.TotalPrice != 71.40 {
		t.Fatalf("unexpected booking %+v", req)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id header")
	}

	if rec := f.do(t, http.MethodPost, "/api/v1/requests", bookBody("c1")); rec.Code != http.StatusConflict {
		t.Fatalf("second booking status %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/requests/"+req.ID, nil); rec.Code != http.StatusOK {
		t.Fatalf("get status %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/requests/nope", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id status %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/api/v1/customers/c1/active", nil)
	if got := decodeInto[models.ServiceRequest](t, rec); got.ID != req.ID {
		t.Fatalf("active = %s", got.ID)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/customers/c2/active", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("no active status %d", rec.Code)
	}
}

func TestBookValidation(t *testing.T) {
	f := newFixture(t, 0)
	unknown := bookBody("c1")
	unknown["provider_id"] = "ghost"
	noLocation := bookBody("c1")
	delete(noLocation, "location")
	noProvider := bookBody("c1")
	delete(noProvider, "provider_id")
	inlineProvider := bookBody("c1")
	delete(inlineProvider, "provider_id")
	inlineProvider["provider"] = map[string]any{"id": "tire_near", "distance_miles": -50, "price": 80}

	cases := []struct {
		name string
		body any
		want int
	}{
		{"malformed", "{", http.StatusBadRequest},
		{"unknown field", `{"customer":"c1"}`, http.StatusBadRequest},
		{"unknown provider", unknown, http.StatusUnprocessableEntity},
		{"no location", noLocation, http.StatusUnprocessableEntity},
		{"no provider", noProvider, http.StatusUnprocessableEntity},
		{"client supplied provider", inlineProvider, http.StatusBadRequest},
	}
	for _, tc := range cases {
		if rec := f.do(t, http.MethodPost, "/api/v1/requests", tc.body); rec.Code != tc.want {
			t.Errorf("%s: status %d, want %d (%s)", tc.name, rec.Code, tc.want, rec.Body)
		}
	}
	if len(f.card.Charges()) != 0 {
		t.Fatal("rejected bookings must not charge")
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/customers/c1/active", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("rejected booking stored: status %d %s", rec.Code, rec.Body)
	}
}

func TestBookGeocodesAddress(t *testing.T) {
	f := newFixture(t, 0)
	body := bookBody("c1")
	delete(body, "location")
	body["address"] = "Broadway & Chambers"
	rec := f.do(t, http.MethodPost, "/api/v1/requests", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	if req := decodeInto[models.ServiceRequest](t, rec); req.Location.Address != "Broadway & Chambers" {
		t.Fatalf("location = %+v", req.Location)
	}
}

func TestAdvanceCancelAndTipErrors(t *testing.T) {
	f := newFixture(t, 0)
	req := decodeInto[models.ServiceRequest](t, f.do(t, http.MethodPost, "/api/v1/requests", bookBody("c1")))
	base := "/api/v1/requests/" + req.ID

	if rec := f.do(t, http.MethodPost, base+"/status", map[string]string{"status": "en_route"}); rec.Code != http.StatusConflict {
		t.Fatalf("skipping a step: status %d", rec.Code)
	}
	rec := f.do(t, http.MethodPost, base+"/status", map[string]string{"status": "accepted"})
	if got := decodeInto[models.ServiceRequest](t, rec); rec.Code != http.StatusOK || got.Status != models.StatusAccepted {
		t.Fatalf("advance: %d %s", rec.Code, rec.Body)
	}
	if rec := f.do(t, http.MethodPost, base+"/tip", map[string]float64{"amount": 5}); rec.Code != http.StatusConflict {
		t.Fatalf("tip before completion: status %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, base+"/tip", map[string]float64{"amount": -1}); rec.Code != http.StatusBadRequest {
		t.Fatalf("negative tip: status %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, base+"/cancel", nil)
	got := decodeInto[models.ServiceRequest](t, rec)
	if rec.Code != http.StatusOK || got.Status != models.StatusCancelled {
		t.Fatalf("cancel: %d %s", rec.Code, rec.Body)
	}
	if rec := f.do(t, http.MethodPost, base+"/cancel", map[string]string{"reason": "again"}); rec.Code != http.StatusConflict {
		t.Fatalf("second cancel: status %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/customers/c1/history", nil)
	hist := decodeInto[struct {
		Requests []models.ServiceRequest `json:"requests"`
	}](t, rec)
	if len(hist.Requests) != 1 || hist.Requests[0].ID != req.ID {
		t.Fatalf("history = %+v", hist.Requests)
	}
}

func TestCompletePaymentFailure(t *testing.T) {
	f := newFixture(t, 0)
	req := decodeInto[models.ServiceRequest](t, f.do(t, http.MethodPost, "/api/v1/requests", bookBody("c1")))
	base := "/api/v1/requests/" + req.ID
	for _, st := range []string{"accepted", "en_route", "arrived", "in_progress"} {
		if rec := f.do(t, http.MethodPost, base+"/status", map[string]string{"status": st}); rec.Code != http.StatusOK {
			t.Fatalf("advance to %s: %d %s", st, rec.Code, rec.Body)
		}
	}

	if rec := f.do(t, http.MethodPost, base+"/complete", map[string]any{"rating": 9}); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad rating: status %d", rec.Code)
	}
	f.card.SetFail(errors.New("card declined"))
	if rec := f.do(t, http.MethodPost, base+"/complete", map[string]any{"rating": 5, "tip": 10}); rec.Code != http.StatusPaymentRequired {
		t.Fatalf("declined card: status %d", rec.Code)
	}
	f.card.SetFail(nil)
	rec := f.do(t, http.MethodPost, base+"/complete", map[string]any{"rating": 5, "tip": 10})
	got := decodeInto[models.ServiceRequest](t, rec)
	if rec.Code != http.StatusOK || got.Status != models.StatusCompleted || got.Tip == nil || *got.Tip != 10 {
		t.Fatalf("complete: %d %s", rec.Code, rec.Body)
	}
	if rec := f.do(t, http.MethodPost, base+"/tip", map[string]float64{"amount": 5}); rec.Code != http.StatusConflict {
		t.Fatalf("second tip: status %d", rec.Code)
	}

	sum := decodeInto[lifecycle.Summary](t, f.do(t, http.MethodGet, "/api/v1/customers/c1/summary", nil))
	if sum.Completed != 1 || sum.Rated != 1 {
		t.Fatalf("summary = %+v", sum)
	}
}

func TestProviderLocation(t *testing.T) {
	f := newFixture(t, 0)
	rec := f.do(t, http.MethodPost, "/internal/providers/locations", models.LocationReport{ProviderID: "tire_off", Lat: home.Lat, Lng: home.Lng, Online: true})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status %d: %s", rec.Code, rec.Body)
	}
	p, ok, _ := f.dir.Get(context.Background(), "tire_off")
	if !ok || !p.Online || p.Name != "Sam Lee" || p.Location.Lat != home.Lat {
		t.Fatalf("directory not updated in place: %+v", p)
	}
	if len(f.locs.reps) != 1 {
		t.Fatalf("expected one published report, got %d", len(f.locs.reps))
	}
	if rec := f.do(t, http.MethodPost, "/internal/providers/locations", models.LocationReport{ProviderID: "x", Lat: 123}); rec.Code != http.StatusBadRequest {
		t.Fatalf("out of range report: status %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, 0.001)
	if rec := f.do(t, http.MethodGet, "/api/v1/services", nil); rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/services", nil); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("health should bypass the limiter: %d", rec.Code)
	}
}

func TestRateLimitIgnoresForwardedForFromUntrustedClients(t *testing.T) {
	f := newFixture(t, 0.001)
	for i, fwd := range []string{"203.0.113.1", "203.0.113.2", "203.0.113.3"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/services", nil)
		req.Header.Set("X-Forwarded-For", fwd)
		rec := httptest.NewRecorder()
		f.srv.ServeHTTP(rec, req)
		want := http.StatusOK
		if i > 0 {
			want = http.StatusTooManyRequests
		}
		if rec.Code != want {
			t.Fatalf("request %d from %s: status %d, want %d", i, fwd, rec.Code, want)
		}
	}
}

func TestClientIPBehindTrustedProxy(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:41000"
	req.Header.Set("X-Forwarded-For", " 198.51.100.7 , 10.0.0.5")

	if got := (&Server{}).clientIP(req); got != "10.0.0.5" {
		t.Fatalf("untrusted: got %q, want the peer address", got)
	}
	if got := (&Server{trusted: true}).clientIP(req); got != "198.51.100.7" {
		t.Fatalf("trusted: got %q, want the first forwarded hop", got)
	}
	req.Header.Del("X-Forwarded-For")
	if got := (&Server{trusted: true}).clientIP(req); got != "10.0.0.5" {
		t.Fatalf("trusted without header: got %q", got)
	}
}

func TestWebsocketReceivesStatus(t *testing.T) {
	f := newFixture(t, 0)
	ts := httptest.NewServer(f.srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/c1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for f.ws.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("session never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	buf, _ := json.Marshal(bookBody("c1"))
	resp, err := http.Post(ts.URL+"/api/v1/requests", "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var u models.StatusUpdate
	if err := conn.ReadJSON(&u); err != nil {
		t.Fatal(err)
	}
	if u.Status != models.StatusPending || u.RequestID == "" {
		t.Fatalf("unexpected update %+v", u)
	}
}
