package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/example/roadside-assist/internal/ingest"
	"github.com/example/roadside-assist/internal/lifecycle"
	"github.com/example/roadside-assist/internal/location"
	"github.com/example/roadside-assist/internal/models"
	"github.com/example/roadside-assist/internal/observability"
)

const maxBody = 1 << 20

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// decodeOptional accepts an empty body as the zero value.
func decodeOptional(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"services": s.catalog.List()})
}

type nearbyResponse struct {
	Providers []models.Provider `json:"providers"`
	Origin    location.Fix      `json:"origin"`
}

// handleNearby searches around lat/lng when both are given, otherwise around
// the server's own position source.
func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category := strings.TrimSpace(q.Get("category"))
	radius, err := optionalFloat(q.Get("radius"))
	if err == nil && (math.IsNaN(radius) || math.IsInf(radius, 0)) {
		err = errors.New("must be finite")
	}
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: radius: %v", errBadRequest, err))
		return
	}
	if category != "" {
		if _, ok := s.catalog.Lookup(category); !ok {
			s.writeError(w, r, fmt.Errorf("%w: %q", lifecycle.ErrUnknownCategory, category))
			return
		}
	}

	var (
		providers []models.Provider
		fix       location.Fix
	)
	latRaw, lngRaw := q.Get("lat"), q.Get("lng")
	switch {
	case latRaw == "" && lngRaw == "":
		providers, fix, err = s.matcher.FindNearby(r.Context(), category, radius)
	case latRaw == "" || lngRaw == "":
		err = fmt.Errorf("%w: lat and lng go together", errBadRequest)
	default:
		var c models.Coordinate
		c, err = parseCoordinate(latRaw, lngRaw)
		if err != nil {
			break
		}
		fix = s.location.AcquireFrom(r.Context(), location.Static(c))
		providers, err = s.matcher.FindCandidates(r.Context(), category, fix.Coordinate, radius)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if providers == nil {
		providers = []models.Provider{}
	}
	writeJSON(w, http.StatusOK, nearbyResponse{Providers: providers, Origin: fix})
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Address string `json:"address"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	loc, err := s.location.Geocode(r.Context(), body.Address)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

type bookRequest struct {
	CustomerID    string               `json:"customer_id"`
	Category      string               `json:"category"`
	ProviderID    string               `json:"provider_id"`
	Location      *models.Location     `json:"location"`
	Address       string               `json:"address"`
	Vehicle       models.Vehicle       `json:"vehicle"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	Notes         string               `json:"notes"`
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	var body bookRequest
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx := r.Context()

	// Providers come from the directory only; clients never supply the
	// snapshot that gets priced.
	var provider *models.Provider
	if body.ProviderID != "" {
		p, ok, err := s.directory.Get(ctx, body.ProviderID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if !ok {
			s.writeError(w, r, fmt.Errorf("%w: unknown provider %q", lifecycle.ErrNoProvider, body.ProviderID))
			return
		}
		provider = &p
	}

	loc := body.Location
	if loc == nil && strings.TrimSpace(body.Address) != "" {
		resolved, err := s.location.Geocode(ctx, body.Address)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		loc = &resolved
	}

	req, err := s.lifecycle.Book(ctx, lifecycle.BookingInput{
		CustomerID:    body.CustomerID,
		Category:      body.Category,
		Provider:      provider,
		Location:      loc,
		Vehicle:       body.Vehicle,
		PaymentMethod: body.PaymentMethod,
		Notes:         body.Notes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.lifecycle.Get(r.Context(), mux.Vars(r)["id"])
	s.respond(w, r, req, err)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status models.Status `json:"status"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	req, err := s.lifecycle.Advance(r.Context(), mux.Vars(r)["id"], body.Status)
	s.respond(w, r, req, err)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeOptional(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	req, err := s.lifecycle.Cancel(r.Context(), mux.Vars(r)["id"], body.Reason)
	s.respond(w, r, req, err)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Rating int     `json:"rating"`
		Tip    float64 `json:"tip"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	req, err := s.lifecycle.Complete(r.Context(), mux.Vars(r)["id"], body.Rating, body.Tip)
	s.respond(w, r, req, err)
}

func (s *Server) handleTip(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount float64 `json:"amount"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	req, err := s.lifecycle.AddTip(r.Context(), mux.Vars(r)["id"], body.Amount)
	s.respond(w, r, req, err)
}

// handleActive answers 204 when the customer has nothing in flight.
func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	req, err := s.lifecycle.ActiveRequest(r.Context(), mux.Vars(r)["customer_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if req == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	list, err := s.lifecycle.History(r.Context(), mux.Vars(r)["customer_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*models.ServiceRequest{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": list})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.lifecycle.Summary(r.Context(), mux.Vars(r)["customer_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleProviderLocation(w http.ResponseWriter, r *http.Request) {
	var rep models.LocationReport
	if err := decode(r, &rep); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := ingest.ValidateReport(rep); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	ctx := r.Context()
	if err := s.directory.UpdatePosition(ctx, rep); err != nil {
		s.writeError(w, r, err)
		return
	}
	observability.LocationUpdates.Inc()
	if n, err := s.directory.CountOnline(ctx); err == nil {
		observability.ProvidersOnline.Set(float64(n))
	}
	if s.locations != nil {
		if err := s.locations.PublishLocation(ctx, rep); err != nil {
			s.logger.Warn("location publish failed", "provider_id", rep.ProviderID, "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleWS holds a customer's status session open until the peer goes away.
// The current active request, if any, is sent as soon as the session opens.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	customerID := mux.Vars(r)["customer_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "customer_id", customerID, "error", err)
		return
	}
	sess := s.ws.Add(customerID, conn)
	defer func() {
		s.ws.Remove(customerID, sess)
		_ = sess.Close()
	}()

	if active, err := s.lifecycle.ActiveRequest(r.Context(), customerID); err == nil && active != nil {
		_ = sess.Send(models.StatusUpdate{
			RequestID:     active.ID,
			Status:        active.Status,
			Message:       active.Status.Message(),
			DistanceMiles: active.Tracking.DistanceMiles,
			ETAMinutes:    active.Tracking.ETAMinutes,
			At:            active.Tracking.UpdatedAt,
		})
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, req *models.ServiceRequest, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func optionalFloat(v string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseFloat(v, 64)
}

func parseCoordinate(latRaw, lngRaw string) (models.Coordinate, error) {
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("%w: lat: %v", errBadRequest, err)
	}
	lng, err := strconv.ParseFloat(lngRaw, 64)
	if err != nil {
		return models.Coordinate{}, fmt.Errorf("%w: lng: %v", errBadRequest, err)
	}
	return models.Coordinate{Lat: lat, Lng: lng}, nil
}
