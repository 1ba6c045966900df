package payments

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Gateway is the escrow capability the lifecycle engine depends on: lock
// funds when a ride is requested, release them on completion, refund on
// cancellation. Blockchain or card rails both fit behind this boundary.
type Gateway interface {
	Stake(ctx context.Context, amount float64, customerID string) (ref string, err error)
	Release(ctx context.Context, ref string) error
	Refund(ctx context.Context, ref string) error
}

// SimulatedGateway mimics an escrow contract call: a short pause and a fake
// transaction hash. Default when no Stripe key is configured.
type SimulatedGateway struct {
	Delay time.Duration
}

func (g *SimulatedGateway) Stake(ctx context.Context, amount float64, customerID string) (string, error) {
	if err := g.pause(ctx); err != nil {
		return "", err
	}
	return fakeTxHash(), nil
}

func (g *SimulatedGateway) Release(ctx context.Context, ref string) error { return g.pause(ctx) }

func (g *SimulatedGateway) Refund(ctx context.Context, ref string) error { return g.pause(ctx) }

func (g *SimulatedGateway) pause(ctx context.Context) error {
	d := g.Delay
	if d <= 0 {
		d = 50 * time.Millisecond
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func fakeTxHash() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return "0x" + hex.EncodeToString(b)
}
