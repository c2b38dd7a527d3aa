package payment

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultMethod is used when a top-up does not name a payment method
const DefaultMethod = "bank_transfer"

// Request is a single top-up charge
type Request struct {
	PhoneNumber   string
	Amount        decimal.Decimal
	TransactionID string
	Method        string
}

// Simulated approves a configurable share of charges after a fixed delay
type Simulated struct {
	successRate float64
	latency     time.Duration
	logger      *zap.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSimulated creates a simulated gateway. successRate is clamped to [0, 1].
func NewSimulated(successRate float64, latency time.Duration, logger *zap.Logger) *Simulated {
	if successRate < 0 {
		successRate = 0
	}
	if successRate > 1 {
		successRate = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulated{
		successRate: successRate,
		latency:     latency,
		logger:      logger,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ConfirmPayment reports whether the charge went through
func (g *Simulated) ConfirmPayment(ctx context.Context, req Request) (bool, error) {
	g.logger.Info("processing payment",
		zap.String("phone_number", req.PhoneNumber),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.String("transaction_id", req.TransactionID),
		zap.String("method", req.Method))

	if g.latency > 0 {
		timer := time.NewTimer(g.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	g.mu.Lock()
	roll := g.rnd.Float64()
	g.mu.Unlock()

	return roll < g.successRate, nil
}
