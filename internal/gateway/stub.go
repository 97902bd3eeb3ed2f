package gateway

import (
	"context"
	"fmt"
	"math/rand"
)

// StubGateway simulates a push provider for local development. Sends fail
// with probability FailureRate.
type StubGateway struct {
	FailureRate float64
}

func (g *StubGateway) Send(ctx context.Context, platform, token, title, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rand.Float64() < g.FailureRate {
		return fmt.Errorf("stub send failed")
	}
	return nil
}

var _ PushGateway = (*StubGateway)(nil)
