package models

import "time"

// Coordinate is a captured geographic position. Treat it as a value.
type Coordinate struct {
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Accuracy *float64 `json:"accuracy,omitempty"`
}

// Location is where the customer needs help: a coordinate plus the address
// text it was resolved from, if any.
type Location struct {
	Coordinate
	Address string `json:"address,omitempty"`
}

type Provider struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Category      string     `json:"category"`
	Rating        float64    `json:"rating"` // 0..5
	DistanceMiles float64    `json:"distance_miles"`
	ETAMinutes    int        `json:"eta_minutes"`
	Price         float64    `json:"price"`
	Location      Coordinate `json:"location"`
	Online        bool       `json:"online"`
	CompletedJobs int        `json:"completed_jobs"`
	Specialties   []string   `json:"specialties,omitempty"`
	Updated       time.Time  `json:"updated"`
}

type Vehicle struct {
	Make  string `json:"make"`
	Model string `json:"model"`
	Year  string `json:"year"`
	Color string `json:"color,omitempty"`
	Plate string `json:"plate,omitempty"`
}

type PaymentMethod string

const (
	PaymentCard PaymentMethod = "card"
	PaymentCash PaymentMethod = "cash"
)

func (m PaymentMethod) Valid() bool { return m == PaymentCard || m == PaymentCash }

// Receipt is what a payment gateway hands back after a successful charge.
type Receipt struct {
	ID          string        `json:"id"`
	Amount      float64       `json:"amount"`
	Method      PaymentMethod `json:"method"`
	Gateway     string        `json:"gateway"`
	Reference   string        `json:"reference,omitempty"`
	Purpose     string        `json:"purpose,omitempty"` // service or tip
	ProcessedAt time.Time     `json:"processed_at"`
}

type TimelineEvent struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Source    string    `json:"source"` // system, customer, provider
}

// Tracking is the last derived view of where the provider is relative to the
// customer. It is recomputed by the scheduler and never drives state.
type Tracking struct {
	ProviderPosition Coordinate `json:"provider_position"`
	DistanceMiles    float64    `json:"distance_miles"`
	ETAMinutes       int        `json:"eta_minutes"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type ServiceRequest struct {
	ID               string          `json:"id"`
	ServiceCategory  string          `json:"service_category"`
	ServiceName      string          `json:"service_name"`
	CustomerID       string          `json:"customer_id"`
	Provider         Provider        `json:"provider"`
	Location         Location        `json:"location"`
	Vehicle          Vehicle         `json:"vehicle"`
	PaymentMethod    PaymentMethod   `json:"payment_method"`
	Notes            string          `json:"notes,omitempty"`
	BasePrice        float64         `json:"base_price"`
	DistanceFee      float64         `json:"distance_fee"`
	TotalPrice       float64         `json:"total_price"`
	Status           Status          `json:"status"`
	Timeline         []TimelineEvent `json:"timeline"`
	CreatedAt        time.Time       `json:"created_at"`
	EstimatedArrival time.Time       `json:"estimated_arrival"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason     *string         `json:"cancel_reason,omitempty"`
	Rating           *int            `json:"rating,omitempty"`
	Tip              *float64        `json:"tip,omitempty"`
	Tracking         Tracking        `json:"tracking"`
	Payments         []Receipt       `json:"payments,omitempty"`
}

// Clone returns a deep copy so callers never share mutable state with the
// lifecycle engine.
func (r *ServiceRequest) Clone() *ServiceRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.Provider.Specialties = append([]string(nil), r.Provider.Specialties...)
	c.Timeline = append([]TimelineEvent(nil), r.Timeline...)
	c.Payments = append([]Receipt(nil), r.Payments...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	if r.CancelledAt != nil {
		t := *r.CancelledAt
		c.CancelledAt = &t
	}
	if r.CancelReason != nil {
		s := *r.CancelReason
		c.CancelReason = &s
	}
	if r.Rating != nil {
		v := *r.Rating
		c.Rating = &v
	}
	if r.Tip != nil {
		v := *r.Tip
		c.Tip = &v
	}
	return &c
}

// Tipped reports whether a positive tip has already been recorded.
func (r *ServiceRequest) Tipped() bool { return r.Tip != nil && *r.Tip > 0 }

// StatusUpdate is pushed to the customer whenever the request changes.
type StatusUpdate struct {
	RequestID     string    `json:"request_id"`
	Status        Status    `json:"status"`
	Message       string    `json:"message,omitempty"`
	DistanceMiles float64   `json:"distance_miles"`
	ETAMinutes    int       `json:"eta_minutes"`
	At            time.Time `json:"at"`
}

// JobOffer is sent to the selected provider when a booking is created.
type JobOffer struct {
	RequestID  string   `json:"request_id"`
	ProviderID string   `json:"provider_id"`
	Category   string   `json:"category"`
	Location   Location `json:"location"`
	Vehicle    Vehicle  `json:"vehicle"`
	TotalPrice float64  `json:"total_price"`
	Notes      string   `json:"notes,omitempty"`
	ETAMinutes int      `json:"eta_minutes"`
}

// LifecycleEvent is the record published to the event stream.
type LifecycleEvent struct {
	Type       string    `json:"type"` // booked, transition, tipped, rated
	RequestID  string    `json:"request_id"`
	CustomerID string    `json:"customer_id"`
	ProviderID string    `json:"provider_id"`
	From       Status    `json:"from,omitempty"`
	Status     Status    `json:"status"`
	Source     string    `json:"source,omitempty"`
	Amount     float64   `json:"amount,omitempty"`
	At         time.Time `json:"at"`
}

// LocationReport is a provider position ping from the field.
type LocationReport struct {
	ProviderID string    `json:"provider_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Online     bool      `json:"online"`
	At         time.Time `json:"at"`
}
