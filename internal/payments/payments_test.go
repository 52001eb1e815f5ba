package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/example/roadside-assist/internal/models"
)

func TestRouterPicksGatewayByMethod(t *testing.T) {
	card := &FakeGateway{}
	r := &Router{Card: card, Cash: CashGateway{}}

	rec, err := r.Charge(context.Background(), 71.40, models.PaymentCard)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Gateway != "fake" || rec.Amount != 71.40 || rec.ID == "" {
		t.Fatalf("unexpected card receipt %+v", rec)
	}
	rec, err = r.Charge(context.Background(), 45, models.PaymentCash)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Gateway != "cash" || rec.Method != models.PaymentCash {
		t.Fatalf("unexpected cash receipt %+v", rec)
	}
	if len(card.Charges()) != 1 {
		t.Fatalf("card gateway should see one charge, saw %d", len(card.Charges()))
	}
}

func TestRouterWrapsFailures(t *testing.T) {
	declined := errors.New("card declined")
	r := &Router{Card: &FakeGateway{Fail: declined}}
	_, err := r.Charge(context.Background(), 10, models.PaymentCard)
	var pe *PaymentError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PaymentError, got %T", err)
	}
	if !errors.Is(err, declined) || !errors.Is(err, ErrPayment) {
		t.Fatalf("error chain incomplete: %v", err)
	}
	if pe.Amount != 10 {
		t.Fatalf("amount = %v", pe.Amount)
	}
}

func TestRouterRejectsUnknownMethod(t *testing.T) {
	r := &Router{Card: &FakeGateway{}}
	if _, err := r.Charge(context.Background(), 10, "bitcoin"); !errors.Is(err, ErrPayment) {
		t.Fatalf("expected payment error, got %v", err)
	}
	if _, err := r.Charge(context.Background(), 10, models.PaymentCash); !errors.Is(err, ErrPayment) {
		t.Fatalf("missing cash gateway should fail, got %v", err)
	}
}

func TestFakeGatewayHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (&FakeGateway{}).Charge(ctx, 1, models.PaymentCard); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCents(t *testing.T) {
	cases := map[float64]int64{71.40: 7140, 0.1 + 0.2: 30, 125: 12500, 19.999: 2000}
	for in, want := range cases {
		if got := Cents(in); got != want {
			t.Errorf("Cents(%v) = %d, want %d", in, got, want)
		}
	}
}

func TestFakeGatewayReplaysIdempotencyKey(t *testing.T) {
	g := &FakeGateway{}
	ctx := WithIdempotencyKey(context.Background(), "req-1:service:7140")

	first, err := g.Charge(ctx, 71.40, models.PaymentCard)
	if err != nil {
		t.Fatal(err)
	}
	again, err := g.Charge(ctx, 71.40, models.PaymentCard)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != first.ID {
		t.Fatalf("retry produced a new receipt %s, want %s", again.ID, first.ID)
	}
	if n := len(g.Charges()); n != 1 {
		t.Fatalf("charged %d times, want 1", n)
	}

	if _, err := g.Charge(WithIdempotencyKey(context.Background(), "req-1:tip:500"), 5, models.PaymentCard); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Charge(context.Background(), 5, models.PaymentCard); err != nil {
		t.Fatal(err)
	}
	if n := len(g.Charges()); n != 3 {
		t.Fatalf("distinct keys should charge separately, got %d charges", n)
	}
}

func TestIdempotencyKeyAbsent(t *testing.T) {
	if _, ok := IdempotencyKey(context.Background()); ok {
		t.Fatal("bare context should carry no key")
	}
	if _, ok := IdempotencyKey(WithIdempotencyKey(context.Background(), "")); ok {
		t.Fatal("empty key should be ignored")
	}
}
