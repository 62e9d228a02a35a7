package payment

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
)

var refusalReasons = []string{
	"insufficient funds",
	"card expired",
	"card declined",
	"suspected fraud",
}

// StubClient simulates the external gateway with a configurable refusal rate,
// percent out of 100. Zero means every charge succeeds. One instance serves
// all requests, so the rng is mutex-guarded; rand.Rand is not concurrency-safe.
type StubClient struct {
	RefusalPercent int

	mu  sync.Mutex
	rng *rand.Rand
}

func NewStubClient(refusalPercent int, seed int64) *StubClient {
	return &StubClient{
		RefusalPercent: refusalPercent,
		rng:            rand.New(rand.NewSource(seed)),
	}
}

func (c *StubClient) roll() (refused bool, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rng.Intn(100) < c.RefusalPercent {
		return true, refusalReasons[c.rng.Intn(len(refusalReasons))]
	}
	return false, ""
}

func (c *StubClient) Charge(_ context.Context, _ string, _ int64) (*ChargeResult, error) {
	if refused, reason := c.roll(); refused {
		return &ChargeResult{Refusal: reason}, fmt.Errorf("%w: %s", ErrChargeRefused, reason)
	}

	return &ChargeResult{
		PaymentRef: fmt.Sprintf("TXN-%s", uuid.NewString()),
	}, nil
}
