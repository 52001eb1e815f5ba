// Package lifecycle owns a customer's service request from booking to
// completion or cancellation.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/roadside-assist/internal/catalog"
	"github.com/example/roadside-assist/internal/eta"
	"github.com/example/roadside-assist/internal/geo"
	"github.com/example/roadside-assist/internal/location"
	"github.com/example/roadside-assist/internal/models"
	"github.com/example/roadside-assist/internal/observability"
	"github.com/example/roadside-assist/internal/payments"
	"github.com/example/roadside-assist/internal/scheduler"
	"github.com/example/roadside-assist/internal/storage"
)

const (
	SourceSystem   = "system"
	SourceCustomer = "customer"
	SourceProvider = "provider"
)

// Notifier pushes updates to the customer and job offers to providers.
type Notifier interface {
	NotifyCustomer(ctx context.Context, customerID string, u models.StatusUpdate) error
	OfferProvider(ctx context.Context, offer models.JobOffer) error
}

type Publisher interface {
	PublishEvent(ctx context.Context, ev models.LifecycleEvent) error
}

// ProviderLookup reads live provider positions from the directory.
type ProviderLookup interface {
	Get(ctx context.Context, id string) (models.Provider, bool, error)
}

type Options struct {
	Store      *storage.HistoryStore
	Catalog    *catalog.Catalog
	Payments   payments.Gateway
	Notifier   Notifier
	Publisher  Publisher
	ETA        *eta.Estimator
	Providers  ProviderLookup
	Clock      scheduler.Clock
	Interval   time.Duration
	PerMileFee float64
	Logger     *slog.Logger
}

type Service struct {
	store     *storage.HistoryStore
	catalog   *catalog.Catalog
	payments  payments.Gateway
	notifier  Notifier
	publisher Publisher
	eta       *eta.Estimator
	providers ProviderLookup
	clock     scheduler.Clock
	perMile   float64
	logger    *slog.Logger

	locks *keyedMutex
	sched *scheduler.Scheduler
}

func New(opts Options) *Service {
	s := &Service{
		store:     opts.Store,
		catalog:   opts.Catalog,
		payments:  opts.Payments,
		notifier:  opts.Notifier,
		publisher: opts.Publisher,
		eta:       opts.ETA,
		providers: opts.Providers,
		clock:     opts.Clock,
		perMile:   opts.PerMileFee,
		logger:    opts.Logger,
		locks:     newKeyedMutex(),
	}
	if s.store == nil {
		s.store = storage.NewHistoryStore(storage.NewMemoryKV())
	}
	if s.catalog == nil {
		s.catalog = catalog.Default()
	}
	if s.payments == nil {
		s.payments = &payments.Router{Card: &payments.FakeGateway{}, Cash: payments.CashGateway{}}
	}
	if s.clock == nil {
		s.clock = scheduler.SystemClock{}
	}
	if s.perMile <= 0 {
		s.perMile = DefaultPerMileFee
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.sched = scheduler.New(s.Evaluate, s.clock, opts.Interval, s.logger)
	return s
}

// Scheduler exposes the re-evaluation loop driving automatic progression.
func (s *Service) Scheduler() *scheduler.Scheduler { return s.sched }

// Run drives automatic progression until ctx is cancelled.
func (s *Service) Run(ctx context.Context) { s.sched.Run(ctx) }

type BookingInput struct {
	CustomerID    string
	Category      string
	Provider      *models.Provider
	Location      *models.Location
	Vehicle       models.Vehicle
	PaymentMethod models.PaymentMethod
	Notes         string
	BasePrice     float64 // zero uses the catalogue price
}

// effects collects what an operation has to announce once its lock is
// released.
type effects struct {
	customerID string
	events     []models.LifecycleEvent
	notices    []notice
	offer      *models.JobOffer
}

type notice struct {
	status  models.Status
	message string
	at      time.Time
}

func (fx *effects) event(r *models.ServiceRequest, typ string, at time.Time) *models.LifecycleEvent {
	fx.events = append(fx.events, models.LifecycleEvent{
		Type:       typ,
		RequestID:  r.ID,
		CustomerID: r.CustomerID,
		ProviderID: r.Provider.ID,
		Status:     r.Status,
		At:         at,
	})
	return &fx.events[len(fx.events)-1]
}

func (s *Service) Book(ctx context.Context, in BookingInput) (*models.ServiceRequest, error) {
	r, err := s.book(ctx, in)
	if err != nil {
		observability.BookingsTotal.WithLabelValues(bookingOutcome(err)).Inc()
		return nil, err
	}
	observability.BookingsTotal.WithLabelValues("ok").Inc()
	s.logger.Info("service booked", "request_id", r.ID, "customer_id", r.CustomerID, "provider_id", r.Provider.ID, "total", r.TotalPrice)
	s.sched.Watch(r.ID)
	if err := s.sched.Trigger(ctx, r.ID); err != nil {
		s.logger.Warn("initial evaluation failed", "request_id", r.ID, "error", err)
	}
	return s.fresh(ctx, r), nil
}

func (s *Service) book(ctx context.Context, in BookingInput) (*models.ServiceRequest, error) {
	customerID := strings.TrimSpace(in.CustomerID)
	if customerID == "" {
		return nil, ErrNoCustomer
	}
	svc, ok := s.catalog.Lookup(in.Category)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, in.Category)
	}
	if in.Provider == nil || in.Provider.ID == "" {
		return nil, ErrNoProvider
	}
	if err := checkProvider(*in.Provider); err != nil {
		return nil, err
	}
	if in.Location == nil || !location.Valid(in.Location.Coordinate) {
		return nil, ErrNoLocation
	}
	method := in.PaymentMethod
	if method == "" {
		method = models.PaymentCard
	}
	if !method.Valid() {
		return nil, ErrBadPaymentMethod
	}

	unlock := s.locks.Lock(customerID)
	defer unlock()

	active, err := s.store.Active(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		if !active.Status.Terminal() {
			return nil, ErrAlreadyActive
		}
		if err := s.store.Archive(ctx, active); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now().UTC()
	loc := *in.Location
	p := *in.Provider
	p.Specialties = append([]string(nil), p.Specialties...)
	// A known position always decides the distance that gets priced.
	if hasPosition(p.Location) {
		p.DistanceMiles = geo.RoundTenth(geo.Distance(p.Location, loc.Coordinate))
	}
	if p.ETAMinutes <= 0 {
		p.ETAMinutes = 1
		if hasPosition(p.Location) {
			p.ETAMinutes = s.eta.Minutes(p.Location, loc.Coordinate)
		}
	}
	base := in.BasePrice
	if !(base > 0) || math.IsInf(base, 0) {
		base = svc.BasePrice
	}

	r := &models.ServiceRequest{
		ID:               uuid.NewString(),
		ServiceCategory:  svc.ID,
		ServiceName:      svc.Name,
		CustomerID:       customerID,
		Provider:         p,
		Location:         loc,
		Vehicle:          in.Vehicle,
		PaymentMethod:    method,
		Notes:            strings.TrimSpace(in.Notes),
		BasePrice:        base,
		DistanceFee:      DistanceFee(p.DistanceMiles, s.perMile),
		TotalPrice:       Total(base, p.DistanceMiles, s.perMile),
		Status:           models.StatusPending,
		CreatedAt:        now,
		EstimatedArrival: now.Add(time.Duration(p.ETAMinutes) * time.Minute),
		Timeline: []models.TimelineEvent{{
			Status:    models.StatusPending,
			Timestamp: now,
			Message:   models.StatusPending.Message(),
			Source:    SourceCustomer,
		}},
	}
	r.Tracking = s.track(ctx, r, now)

	if err := s.store.SetOwner(ctx, r.ID, customerID); err != nil {
		return nil, err
	}
	if err := s.store.SaveActive(ctx, r); err != nil {
		return nil, err
	}

	fx := effects{customerID: customerID}
	ev := fx.event(r, "booked", now)
	ev.Source = SourceCustomer
	ev.Amount = r.TotalPrice
	fx.notices = append(fx.notices, notice{status: r.Status, message: models.StatusPending.Message(), at: now})
	fx.offer = &models.JobOffer{
		RequestID:  r.ID,
		ProviderID: p.ID,
		Category:   svc.ID,
		Location:   loc,
		Vehicle:    r.Vehicle,
		TotalPrice: r.TotalPrice,
		Notes:      r.Notes,
		ETAMinutes: p.ETAMinutes,
	}
	s.emitLocked(ctx, r, fx)
	return r.Clone(), nil
}

// Advance moves a request one step forward, or cancels it. Any other target
// is rejected with *InvalidTransitionError and nothing changes.
func (s *Service) Advance(ctx context.Context, id string, next models.Status) (*models.ServiceRequest, error) {
	if next == models.StatusCancelled {
		return s.Cancel(ctx, id, "")
	}
	r, err := s.mutate(ctx, id, func(r *models.ServiceRequest, active bool, now time.Time, fx *effects) error {
		if !active || !models.CanTransition(r.Status, next) {
			return &InvalidTransitionError{From: r.Status, To: next}
		}
		s.apply(r, next, now, next.Message(), SourceProvider, fx)
		r.Tracking = s.track(ctx, r, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if r.Status.Terminal() {
		s.sched.Stop(r.ID)
		return r, nil
	}
	if err := s.sched.Trigger(ctx, r.ID); err != nil {
		s.logger.Warn("evaluation after transition failed", "request_id", r.ID, "error", err)
	}
	return s.fresh(ctx, r), nil
}

// Cancel is allowed before the provider has arrived.
func (s *Service) Cancel(ctx context.Context, id, reason string) (*models.ServiceRequest, error) {
	reason = strings.TrimSpace(reason)
	r, err := s.mutate(ctx, id, func(r *models.ServiceRequest, active bool, now time.Time, fx *effects) error {
		if !active || !r.Status.Cancellable() {
			return &InvalidTransitionError{From: r.Status, To: models.StatusCancelled}
		}
		msg := models.StatusCancelled.Message()
		if reason != "" {
			msg += ": " + reason
			r.CancelReason = &reason
		}
		s.apply(r, models.StatusCancelled, now, msg, SourceCustomer, fx)
		r.Tracking.ETAMinutes = 0
		r.Tracking.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.sched.Stop(r.ID)
	s.logger.Info("service cancelled", "request_id", r.ID, "customer_id", r.CustomerID, "reason", reason)
	return r, nil
}

// Complete rates a finished request and charges for it, promoting an
// in-progress request to completed in the same step. The charge happens
// first; if it fails the request is left exactly as it was.
func (s *Service) Complete(ctx context.Context, id string, rating int, tip float64) (*models.ServiceRequest, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	if tip < 0 || math.IsNaN(tip) || math.IsInf(tip, 0) {
		return nil, ErrInvalidTip
	}
	tip = roundCents(tip)
	r, err := s.mutate(ctx, id, func(r *models.ServiceRequest, active bool, now time.Time, fx *effects) error {
		promote := false
		switch r.Status {
		case models.StatusInProgress:
			promote = true
		case models.StatusCompleted:
		default:
			return &InvalidTransitionError{From: r.Status, To: models.StatusCompleted}
		}
		if r.Rating != nil {
			return ErrAlreadyRated
		}
		if tip > 0 && r.Tipped() {
			return ErrAlreadyTipped
		}

		amount, purpose := tip, "tip"
		if !paidForService(r) {
			amount, purpose = roundCents(r.TotalPrice+tip), "service"
		}
		if amount > 0 {
			rec, err := s.charge(ctx, r, amount, purpose)
			if err != nil {
				return err
			}
			r.Payments = append(r.Payments, rec)
		}

		if promote {
			s.apply(r, models.StatusCompleted, now, models.StatusCompleted.Message(), SourceCustomer, fx)
			r.Tracking = s.track(ctx, r, now)
		}
		r.Rating = &rating
		ev := fx.event(r, "rated", now)
		ev.Amount = float64(rating)
		if tip > 0 {
			r.Tip = &tip
			ev := fx.event(r, "tipped", now)
			ev.Amount = tip
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.sched.Stop(r.ID)
	return r, nil
}

// AddTip records a one-off tip on a completed request and charges it.
func (s *Service) AddTip(ctx context.Context, id string, amount float64) (*models.ServiceRequest, error) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, ErrInvalidTip
	}
	amount = roundCents(amount)
	if amount <= 0 {
		return nil, ErrInvalidTip
	}
	r, err := s.mutate(ctx, id, func(r *models.ServiceRequest, active bool, now time.Time, fx *effects) error {
		if r.Status != models.StatusCompleted {
			return ErrNotCompleted
		}
		if r.Tipped() {
			return ErrAlreadyTipped
		}
		rec, err := s.charge(ctx, r, amount, "tip")
		if err != nil {
			return err
		}
		r.Payments = append(r.Payments, rec)
		r.Tip = &amount
		ev := fx.event(r, "tipped", now)
		ev.Amount = amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Evaluate brings a request up to date at now: it applies every status the
// elapsed time has unlocked, one timeline event per step, and refreshes the
// provider tracking. done is true once the request is terminal or gone.
func (s *Service) Evaluate(ctx context.Context, id string, now time.Time) (bool, error) {
	owner, ok, err := s.store.Owner(ctx, id)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	now = now.UTC()

	unlock := s.locks.Lock(owner)
	r, active, err := s.load(ctx, owner, id)
	if errors.Is(err, ErrNotFound) {
		unlock()
		return true, nil
	}
	if err != nil {
		unlock()
		return false, err
	}
	if !active {
		unlock()
		return true, nil
	}
	if r.Status.Terminal() {
		err := s.store.Archive(ctx, r)
		unlock()
		return err == nil, err
	}

	fx := effects{customerID: owner}
	target := models.StatusForElapsed(now.Sub(r.CreatedAt))
	for r.Status.Rank() < target.Rank() {
		next, _ := r.Status.Next()
		after, _ := models.ThresholdFor(next)
		s.apply(r, next, r.CreatedAt.Add(after), next.Message(), SourceSystem, &fx)
	}
	prev := r.Tracking
	r.Tracking = s.track(ctx, r, now)
	moved := !sameTracking(prev, r.Tracking)

	if len(fx.events) == 0 && !moved {
		unlock()
		return false, nil
	}
	if err := s.persist(ctx, r, true); err != nil {
		unlock()
		return false, err
	}
	if len(fx.notices) == 0 {
		fx.notices = append(fx.notices, notice{status: r.Status, at: now})
	}
	s.emitLocked(ctx, r, fx)
	unlock()
	return r.Status.Terminal(), nil
}

// ActiveRequest returns the customer's active request, or nil. A request
// found in storage that is not being watched (after a restart) is picked up
// again and brought up to date first.
func (s *Service) ActiveRequest(ctx context.Context, customerID string) (*models.ServiceRequest, error) {
	r, err := s.store.Active(ctx, customerID)
	if err != nil || r == nil {
		return nil, err
	}
	if !s.sched.Watching(r.ID) {
		s.sched.Watch(r.ID)
		if err := s.sched.Trigger(ctx, r.ID); err != nil {
			s.logger.Warn("resume evaluation failed", "request_id", r.ID, "error", err)
		}
		return s.store.Active(ctx, customerID)
	}
	return r, nil
}

// History returns finished requests, newest first.
func (s *Service) History(ctx context.Context, customerID string) ([]*models.ServiceRequest, error) {
	return s.store.History(ctx, customerID)
}

// Get finds a request by id, active or finished.
func (s *Service) Get(ctx context.Context, id string) (*models.ServiceRequest, error) {
	return s.store.Find(ctx, id)
}

type Summary struct {
	CustomerID    string  `json:"customer_id"`
	Requests      int     `json:"requests"`
	Completed     int     `json:"completed"`
	Cancelled     int     `json:"cancelled"`
	TotalSpent    float64 `json:"total_spent"`
	Rated         int     `json:"rated"`
	AverageRating float64 `json:"average_rating"`
	HasActive     bool    `json:"has_active"`
}

// Summary aggregates the customer's history. Spending counts the service
// total and tip of completed requests.
func (s *Service) Summary(ctx context.Context, customerID string) (Summary, error) {
	sum := Summary{CustomerID: customerID}
	list, err := s.store.History(ctx, customerID)
	if err != nil {
		return sum, err
	}
	ratings := 0
	for _, r := range list {
		sum.Requests++
		switch r.Status {
		case models.StatusCompleted:
			sum.Completed++
			sum.TotalSpent += r.TotalPrice
			if r.Tip != nil {
				sum.TotalSpent += *r.Tip
			}
		case models.StatusCancelled:
			sum.Cancelled++
		}
		if r.Rating != nil {
			sum.Rated++
			ratings += *r.Rating
		}
	}
	sum.TotalSpent = roundCents(sum.TotalSpent)
	if sum.Rated > 0 {
		sum.AverageRating = math.Round(float64(ratings)/float64(sum.Rated)*10) / 10
	}
	active, err := s.store.Active(ctx, customerID)
	if err != nil {
		return sum, err
	}
	sum.HasActive = active != nil && !active.Status.Terminal()
	return sum, nil
}

type mutation func(r *models.ServiceRequest, active bool, now time.Time, fx *effects) error

// mutate runs fn on a freshly loaded copy of the request under its owner's
// lock, persists the result and announces it before the lock is released.
// When fn fails nothing is written.
func (s *Service) mutate(ctx context.Context, id string, fn mutation) (*models.ServiceRequest, error) {
	owner, ok, err := s.store.Owner(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	unlock := s.locks.Lock(owner)
	defer unlock()

	r, active, err := s.load(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	fx := effects{customerID: owner}
	if err := fn(r, active, s.clock.Now().UTC(), &fx); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, r, active); err != nil {
		if len(r.Payments) > 0 {
			s.logger.Error("request not saved after charge", "request_id", r.ID, "error", err)
		}
		return nil, err
	}
	s.emitLocked(ctx, r, fx)
	return r.Clone(), nil
}

// load returns the request and whether it is in the owner's active slot.
func (s *Service) load(ctx context.Context, owner, id string) (*models.ServiceRequest, bool, error) {
	a, err := s.store.Active(ctx, owner)
	if err != nil {
		return nil, false, err
	}
	if a != nil && a.ID == id {
		return a, true, nil
	}
	list, err := s.store.History(ctx, owner)
	if err != nil {
		return nil, false, err
	}
	for _, r := range list {
		if r.ID == id {
			return r, false, nil
		}
	}
	return nil, false, ErrNotFound
}

func (s *Service) persist(ctx context.Context, r *models.ServiceRequest, active bool) error {
	switch {
	case !active:
		return s.store.UpdateHistory(ctx, r)
	case r.Status.Terminal():
		return s.store.Archive(ctx, r)
	default:
		return s.store.SaveActive(ctx, r)
	}
}

// apply appends a timeline event and moves r into to. The event time is
// pushed just past the previous event when needed so the timeline stays
// strictly increasing.
func (s *Service) apply(r *models.ServiceRequest, to models.Status, at time.Time, msg, source string, fx *effects) {
	from := r.Status
	if n := len(r.Timeline); n > 0 {
		if last := r.Timeline[n-1].Timestamp; !at.After(last) {
			at = last.Add(time.Nanosecond)
		}
	}
	r.Timeline = append(r.Timeline, models.TimelineEvent{Status: to, Timestamp: at, Message: msg, Source: source})
	r.Status = to
	switch to {
	case models.StatusCompleted:
		t := at
		r.CompletedAt = &t
	case models.StatusCancelled:
		t := at
		r.CancelledAt = &t
	}
	ev := fx.event(r, "transition", at)
	ev.From = from
	ev.Source = source
	fx.notices = append(fx.notices, notice{status: to, message: msg, at: at})
}

// track derives where the provider is. Before departure the provider sits at
// its booked position; en route it moves linearly toward the customer until
// the arrival threshold; from arrival on it is at the customer. A fresher
// position reported to the directory after booking wins while the provider
// is still on the way.
func (s *Service) track(ctx context.Context, r *models.ServiceRequest, now time.Time) models.Tracking {
	dest := models.Coordinate{Lat: r.Location.Lat, Lng: r.Location.Lng}
	start := models.Coordinate{Lat: r.Provider.Location.Lat, Lng: r.Provider.Location.Lng}
	if !hasPosition(start) {
		start = dest
	}
	arrived := r.Status.Rank() >= models.StatusArrived.Rank()

	pos := start
	switch {
	case arrived:
		pos = dest
	case r.Status == models.StatusEnRoute:
		from, _ := models.ThresholdFor(models.StatusEnRoute)
		to, _ := models.ThresholdFor(models.StatusArrived)
		f := float64(now.Sub(r.CreatedAt)-from) / float64(to-from)
		pos = geo.Interpolate(start, dest, f)
	}
	if !arrived {
		if live, ok := s.livePosition(ctx, r); ok {
			pos = live
		}
	}

	t := models.Tracking{
		ProviderPosition: pos,
		DistanceMiles:    geo.RoundTenth(geo.Distance(pos, dest)),
		UpdatedAt:        now,
	}
	if !arrived {
		t.ETAMinutes = s.eta.Minutes(pos, dest)
	}
	return t
}

func (s *Service) livePosition(ctx context.Context, r *models.ServiceRequest) (models.Coordinate, bool) {
	if s.providers == nil {
		return models.Coordinate{}, false
	}
	p, ok, err := s.providers.Get(ctx, r.Provider.ID)
	if err != nil || !ok || !p.Updated.After(r.CreatedAt) || !hasPosition(p.Location) {
		return models.Coordinate{}, false
	}
	return models.Coordinate{Lat: p.Location.Lat, Lng: p.Location.Lng}, true
}

func (s *Service) charge(ctx context.Context, r *models.ServiceRequest, amount float64, purpose string) (models.Receipt, error) {
	// One key per request, purpose and amount: a retry after a lost save
	// returns the original receipt instead of charging again.
	key := fmt.Sprintf("%s:%s:%d", r.ID, purpose, payments.Cents(amount))
	rec, err := s.payments.Charge(payments.WithIdempotencyKey(ctx, key), amount, r.PaymentMethod)
	if err != nil {
		var pe *payments.PaymentError
		if !errors.As(err, &pe) {
			err = &payments.PaymentError{Gateway: string(r.PaymentMethod), Amount: amount, Err: err}
		}
		s.logger.Warn("payment failed", "request_id", r.ID, "amount", amount, "purpose", purpose, "error", err)
		return models.Receipt{}, err
	}
	rec.Purpose = purpose
	return rec, nil
}

// emitLocked announces the effects of a committed operation. Callers hold
// the customer's lock so events and pushes for one customer leave in commit
// order. Delivery failures are logged and never undo the operation.
func (s *Service) emitLocked(ctx context.Context, r *models.ServiceRequest, fx effects) {
	for _, ev := range fx.events {
		if ev.Type == "transition" {
			observability.TransitionsTotal.WithLabelValues(string(ev.Status), ev.Source).Inc()
		}
		if s.publisher == nil {
			continue
		}
		if err := s.publisher.PublishEvent(ctx, ev); err != nil {
			s.logger.Warn("publish event failed", "request_id", ev.RequestID, "type", ev.Type, "error", err)
		}
	}
	if s.notifier == nil {
		return
	}
	if fx.offer != nil {
		if err := s.notifier.OfferProvider(ctx, *fx.offer); err != nil {
			s.logger.Warn("job offer not delivered", "request_id", r.ID, "provider_id", fx.offer.ProviderID, "error", err)
		}
	}
	for _, n := range fx.notices {
		u := models.StatusUpdate{
			RequestID:     r.ID,
			Status:        n.status,
			Message:       n.message,
			DistanceMiles: r.Tracking.DistanceMiles,
			ETAMinutes:    r.Tracking.ETAMinutes,
			At:            n.at,
		}
		if err := s.notifier.NotifyCustomer(ctx, fx.customerID, u); err != nil {
			s.logger.Debug("status update not delivered", "request_id", r.ID, "customer_id", fx.customerID, "error", err)
		}
	}
}

// fresh re-reads r after follow-up evaluations, keeping r if that fails.
func (s *Service) fresh(ctx context.Context, r *models.ServiceRequest) *models.ServiceRequest {
	if cur, err := s.store.Find(ctx, r.ID); err == nil {
		return cur
	}
	return r
}

func paidForService(r *models.ServiceRequest) bool {
	for _, p := range r.Payments {
		if p.Purpose == "service" {
			return true
		}
	}
	return false
}

// checkProvider rejects snapshots that would price or schedule nonsense.
func checkProvider(p models.Provider) error {
	bad := func(v float64) bool { return v < 0 || math.IsNaN(v) || math.IsInf(v, 0) }
	if bad(p.DistanceMiles) || bad(p.Price) || bad(p.Rating) || p.Rating > 5 || p.ETAMinutes < 0 ||
		(hasPosition(p.Location) && !location.Valid(p.Location)) {
		return fmt.Errorf("%w: %s", ErrInvalidProvider, p.ID)
	}
	return nil
}

func hasPosition(c models.Coordinate) bool { return c.Lat != 0 || c.Lng != 0 }

func sameTracking(a, b models.Tracking) bool {
	return a.DistanceMiles == b.DistanceMiles &&
		a.ETAMinutes == b.ETAMinutes &&
		a.ProviderPosition.Lat == b.ProviderPosition.Lat &&
		a.ProviderPosition.Lng == b.ProviderPosition.Lng
}

func bookingOutcome(err error) string {
	var be *BookingError
	if errors.As(err, &be) {
		switch be {
		case ErrAlreadyActive:
			return "already_active"
		case ErrNoProvider:
			return "no_provider"
		case ErrInvalidProvider:
			return "invalid_provider"
		case ErrNoLocation:
			return "no_location"
		case ErrUnknownCategory:
			return "unknown_category"
		}
		return "rejected"
	}
	return "error"
}
