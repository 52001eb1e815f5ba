// Package payments charges customers through a pluggable gateway.
package payments

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/roadside-assist/internal/models"
	"github.com/example/roadside-assist/internal/observability"
)

// ErrPayment matches every *PaymentError.
var ErrPayment = errors.New("payment failed")

type PaymentError struct {
	Gateway string
	Amount  float64
	Err     error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment of %.2f via %s failed: %v", e.Amount, e.Gateway, e.Err)
}

func (e *PaymentError) Unwrap() error { return e.Err }

func (e *PaymentError) Is(target error) bool { return target == ErrPayment }

type Gateway interface {
	Charge(ctx context.Context, amount float64, method models.PaymentMethod) (models.Receipt, error)
}

type idempotencyKey struct{}

// WithIdempotencyKey tags a charge so a retried call is recognised by the
// gateway and not charged a second time.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, key)
}

func IdempotencyKey(ctx context.Context) (string, bool) {
	k, ok := ctx.Value(idempotencyKey{}).(string)
	return k, ok && k != ""
}

// Cents converts a dollar amount to the smallest currency unit.
func Cents(amount float64) int64 { return int64(math.Round(amount * 100)) }

// Router sends each charge to the gateway for its payment method.
type Router struct {
	Card Gateway
	Cash Gateway
}

func (r *Router) Charge(ctx context.Context, amount float64, method models.PaymentMethod) (models.Receipt, error) {
	var g Gateway
	switch method {
	case models.PaymentCard:
		g = r.Card
	case models.PaymentCash:
		g = r.Cash
	}
	if g == nil {
		observability.PaymentsTotal.WithLabelValues(string(method), "unsupported").Inc()
		return models.Receipt{}, &PaymentError{Gateway: string(method), Amount: amount, Err: fmt.Errorf("no gateway for method %q", method)}
	}
	if amount < 0 || math.IsNaN(amount) {
		return models.Receipt{}, &PaymentError{Gateway: string(method), Amount: amount, Err: errors.New("negative amount")}
	}
	rec, err := g.Charge(ctx, amount, method)
	if err != nil {
		observability.PaymentsTotal.WithLabelValues(string(method), "failed").Inc()
		var pe *PaymentError
		if errors.As(err, &pe) {
			return models.Receipt{}, err
		}
		return models.Receipt{}, &PaymentError{Gateway: string(method), Amount: amount, Err: err}
	}
	observability.PaymentsTotal.WithLabelValues(rec.Gateway, "ok").Inc()
	return rec, nil
}

// CashGateway records that the provider collects payment on site.
type CashGateway struct{}

func (CashGateway) Charge(_ context.Context, amount float64, method models.PaymentMethod) (models.Receipt, error) {
	return models.Receipt{
		ID:          uuid.NewString(),
		Amount:      amount,
		Method:      method,
		Gateway:     "cash",
		ProcessedAt: time.Now().UTC(),
	}, nil
}

// FakeGateway accepts every charge unless Fail is set. Used in tests and
// when no card processor is configured. Like a real processor it answers a
// repeated idempotency key with the original receipt.
type FakeGateway struct {
	mu      sync.Mutex
	Fail    error
	charges []models.Receipt
	seen    map[string]models.Receipt
}

func (f *FakeGateway) Charge(ctx context.Context, amount float64, method models.PaymentMethod) (models.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return models.Receipt{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail != nil {
		return models.Receipt{}, f.Fail
	}
	key, keyed := IdempotencyKey(ctx)
	if prev, ok := f.seen[key]; keyed && ok {
		return prev, nil
	}
	rec := models.Receipt{
		ID:          uuid.NewString(),
		Amount:      amount,
		Method:      method,
		Gateway:     "fake",
		Reference:   key,
		ProcessedAt: time.Now().UTC(),
	}
	f.charges = append(f.charges, rec)
	if keyed {
		if f.seen == nil {
			f.seen = make(map[string]models.Receipt)
		}
		f.seen[key] = rec
	}
	return rec, nil
}

func (f *FakeGateway) SetFail(err error) {
	f.mu.Lock()
	f.Fail = err
	f.mu.Unlock()
}

// Charges returns the successful charges so far.
func (f *FakeGateway) Charges() []models.Receipt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Receipt(nil), f.charges...)
}
