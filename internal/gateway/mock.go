package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// MockRail simulates the bank-transfer provider for local runs. It introduces
// a short random delay and fails a configurable fraction of instructions.
type MockRail struct {
	// FailureRate is the probability of failure (0.0 to 1.0).
	FailureRate float64
}

func NewMockRail() *MockRail {
	return &MockRail{FailureRate: 0.1}
}

func (r *MockRail) SendPayout(ctx context.Context, in PayoutInstruction) (string, error) {
	delay := time.Duration(500+rand.Intn(1500)) * time.Millisecond
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return "", fmt.Errorf("payout rail call canceled: %w", ctx.Err())
	}

	if rand.Float64() < r.FailureRate {
		return "", fmt.Errorf("payout rail temporarily unavailable")
	}
	return fmt.Sprintf("MOCK-%s-%05d", time.Now().Format("20060102-150405"), rand.Intn(100000)), nil
}
