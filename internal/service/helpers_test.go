package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kkkkikiki/promotion/internal/model"
	"github.com/kkkkikiki/promotion/internal/payment"
	"github.com/kkkkikiki/promotion/internal/repository/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type gatewayMock struct {
	mu      sync.Mutex
	decline bool
	err     error
	calls   []payment.Request
}

func (g *gatewayMock) ConfirmPayment(_ context.Context, req payment.Request) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if g.err != nil {
		return false, g.err
	}
	return !g.decline, nil
}

type testEnv struct {
	store      *memory.Store
	clock      *fakeClock
	gateway    *gatewayMock
	issuer     *Issuer
	allocator  *Allocator
	redemption *Redemption
	queries    *Queries
}

func newTestEnv(t *testing.T, threshold int32) *testEnv {
	t.Helper()
	st := memory.New(10 * time.Second)
	clock := newFakeClock()
	gateway := &gatewayMock{}
	logger := zap.NewNop()

	issuer := NewIssuer("CAKE-", 5, clock.Now, logger)
	return &testEnv{
		store:      st,
		clock:      clock,
		gateway:    gateway,
		issuer:     issuer,
		allocator:  NewAllocator(st, issuer, threshold, clock.Now, logger),
		redemption: NewRedemption(st, gateway, clock.Now, logger),
		queries:    NewQueries(st, threshold, clock.Now),
	}
}

type campaignOption func(c *model.Campaign)

func withMinTopup(v int64) campaignOption {
	return func(c *model.Campaign) { c.MinTopupAmount = decimal.NewFromInt(v) }
}

func withMaxDiscount(v int64) campaignOption {
	return func(c *model.Campaign) { c.MaxDiscountAmount = decimal.NewNullDecimal(decimal.NewFromInt(v)) }
}

func withStatus(s model.CampaignStatus) campaignOption {
	return func(c *model.Campaign) { c.Status = s }
}

func withWindow(start, end time.Time) campaignOption {
	return func(c *model.Campaign) {
		c.StartDate = start
		c.EndDate = end
	}
}

func (e *testEnv) seedCampaign(t *testing.T, capacity int32, opts ...campaignOption) *model.Campaign {
	t.Helper()
	now := e.clock.Now()
	c := &model.Campaign{
		Name:                "Cake first login",
		Type:                model.CampaignTypeFirstLoginDiscount,
		Status:              model.CampaignStatusActive,
		StartDate:           now.Add(-24 * time.Hour),
		EndDate:             now.Add(30 * 24 * time.Hour),
		MaxParticipants:     capacity,
		DiscountPercentage:  decimal.NewFromInt(30),
		MinTopupAmount:      decimal.Zero,
		VoucherValidityDays: 30,
	}
	for _, opt := range opts {
		opt(c)
	}
	require.NoError(t, e.store.CreateCampaign(context.Background(), c))
	return c
}

func (e *testEnv) enroll(t *testing.T, userID int64) *EnrollResult {
	t.Helper()
	res, err := e.allocator.Enroll(context.Background(), EnrollRequest{UserID: userID})
	require.NoError(t, err)
	return res
}

// voucherOf returns the only voucher of the user
func (e *testEnv) voucherOf(t *testing.T, userID int64) *model.Voucher {
	t.Helper()
	vouchers, err := e.store.ListVouchersByUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, vouchers, 1)
	return vouchers[0]
}

func (e *testEnv) participationOf(t *testing.T, userID int64) *model.Participation {
	t.Helper()
	participations, err := e.store.ListParticipationsByUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, participations, 1)
	return participations[0]
}
