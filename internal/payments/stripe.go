package payments

import (
	"context"
	"os"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// StripeGateway backs the escrow boundary with manual-capture
// PaymentIntents: Stake holds funds, Release captures, Refund cancels.
type StripeGateway struct {
	Currency string
}

// NewStripeGateway initializes the stripe client with the STRIPE_API_KEY env var.
func NewStripeGateway() *StripeGateway {
	stripe.Key = os.Getenv("STRIPE_API_KEY")
	return &StripeGateway{Currency: "usd"}
}

func (g *StripeGateway) Stake(ctx context.Context, amount float64, customerID string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toCents(amount)),
		Currency: stripe.String(g.Currency),
	}
	params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

func (g *StripeGateway) Release(ctx context.Context, ref string) error {
	_, err := paymentintent.Capture(ref, nil)
	return err
}

func (g *StripeGateway) Refund(ctx context.Context, ref string) error {
	_, err := paymentintent.Cancel(ref, nil)
	return err
}

func toCents(amount float64) int64 { return int64(amount*100 + 0.5) }
