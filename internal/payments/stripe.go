package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"

	"github.com/example/roadside-assist/internal/models"
)

// StripeGateway charges cards with a confirmed PaymentIntent.
type StripeGateway struct {
	Currency      string
	PaymentMethod string // saved payment method to confirm with, e.g. pm_card_visa in test mode
}

// NewStripeGateway sets the stripe-go API key used by every call.
func NewStripeGateway(apiKey, paymentMethod string) *StripeGateway {
	stripe.Key = apiKey
	return &StripeGateway{Currency: string(stripe.CurrencyUSD), PaymentMethod: paymentMethod}
}

func (s *StripeGateway) Charge(ctx context.Context, amount float64, method models.PaymentMethod) (models.Receipt, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(Cents(amount)),
		Currency:           stripe.String(s.Currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Confirm:            stripe.Bool(true),
	}
	if s.PaymentMethod != "" {
		params.PaymentMethod = stripe.String(s.PaymentMethod)
	}
	params.Context = ctx
	key, ok := IdempotencyKey(ctx)
	if !ok {
		key = uuid.NewString()
	}
	params.SetIdempotencyKey(key)
	pi, err := paymentintent.New(params)
	if err != nil {
		return models.Receipt{}, &PaymentError{Gateway: "stripe", Amount: amount, Err: err}
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return models.Receipt{}, &PaymentError{Gateway: "stripe", Amount: amount, Err: fmt.Errorf("payment intent %s is %s", pi.ID, pi.Status)}
	}
	return models.Receipt{
		ID:          uuid.NewString(),
		Amount:      amount,
		Method:      method,
		Gateway:     "stripe",
		Reference:   pi.ID,
		ProcessedAt: time.Now().UTC(),
	}, nil
}
