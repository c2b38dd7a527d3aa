package repository_test

import (
	"context"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kkkkikiki/promotion/internal/database"
	"github.com/kkkkikiki/promotion/internal/model"
	"github.com/kkkkikiki/promotion/internal/repository"
	"github.com/kkkkikiki/promotion/internal/service"
	"github.com/kkkkikiki/promotion/internal/store"
)

// openTestDB connects to TEST_DATABASE_URL and resets the schema. Tests are skipped
// when the variable is unset.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(40)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(ctx, db))
	_, err = db.ExecContext(ctx, `TRUNCATE vouchers, participations, campaigns RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return db
}

func newCampaign(capacity int32) *model.Campaign {
	now := time.Now()
	return &model.Campaign{
		Name:                "Integration first login",
		Type:                model.CampaignTypeFirstLoginDiscount,
		Status:              model.CampaignStatusActive,
		StartDate:           now.Add(-time.Hour),
		EndDate:             now.Add(24 * time.Hour),
		MaxParticipants:     capacity,
		DiscountPercentage:  decimal.NewFromInt(30),
		MinTopupAmount:      decimal.Zero,
		VoucherValidityDays: 30,
	}
}

func TestPostgresStoreTransactions(t *testing.T) {
	db := openTestDB(t)
	st := repository.NewStore(db, 2*time.Second)
	ctx := context.Background()

	c := newCampaign(10)
	require.NoError(t, st.CreateCampaign(ctx, c))

	latest, err := st.FindLatestActiveCampaign(ctx, model.CampaignTypeFirstLoginDiscount)
	require.NoError(t, err)
	assert.Equal(t, c.ID, latest.ID)

	var p *model.Participation
	err = st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		locked, err := tx.LockCampaign(ctx, c.ID)
		if err != nil {
			return err
		}
		p = &model.Participation{
			UserID:             1,
			CampaignID:         locked.ID,
			Status:             model.ParticipationStatusEligible,
			FirstLoginAt:       time.Now(),
			ParticipationOrder: 1,
		}
		if err := tx.CreateParticipation(ctx, p); err != nil {
			return err
		}
		dup := *p
		require.ErrorIs(t, tx.CreateParticipation(ctx, &dup), store.ErrConflict)

		if err := tx.UpdateCampaignParticipants(ctx, locked.ID, 1, model.CampaignStatusActive); err != nil {
			return err
		}
		return tx.CreateVoucher(ctx, &model.Voucher{
			Code:               "CAKE-INTEG001",
			ParticipationID:    p.ID,
			Type:               model.VoucherTypeMobileTopupDiscount,
			Status:             model.VoucherStatusActive,
			DiscountPercentage: locked.DiscountPercentage,
			MinTopupAmount:     locked.MinTopupAmount,
			IssuedAt:           time.Now(),
			ExpiresAt:          time.Now().AddDate(0, 0, 30),
		})
	})
	require.NoError(t, err)

	participated, err := st.HasParticipation(ctx, 1, model.CampaignTypeFirstLoginDiscount)
	require.NoError(t, err)
	assert.True(t, participated)

	participations, err := st.ListParticipationsByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, participations, 1)
	assert.Equal(t, c.Name, participations[0].CampaignName)

	v, err := st.GetVoucherByCode(ctx, "CAKE-INTEG001")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.UserID)

	usage := model.VoucherUsage{
		UsedAt:               time.Now(),
		UsedAmount:           decimal.NewFromInt(100),
		DiscountAmount:       decimal.NewFromInt(30),
		TransactionReference: "TXN-1-ABCDEF",
	}
	require.NoError(t, st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockVoucher(ctx, v.Code); err != nil {
			return err
		}
		return tx.MarkVoucherUsed(ctx, v.ID, usage)
	}))
	err = st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.MarkVoucherUsed(ctx, v.ID, usage)
	})
	require.ErrorIs(t, err, store.ErrStale)

	_, err = st.GetVoucherByCode(ctx, "CAKE-MISSING1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestPostgresStoreLockTimeout(t *testing.T) {
	db := openTestDB(t)
	st := repository.NewStore(db, 200*time.Millisecond)
	ctx := context.Background()

	c := newCampaign(10)
	require.NoError(t, st.CreateCampaign(ctx, c))

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			if _, err := tx.LockCampaign(ctx, c.ID); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	err := st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.LockCampaign(ctx, c.ID)
		return err
	})
	close(release)

	require.ErrorIs(t, err, store.ErrLockTimeout)
	require.NoError(t, <-done)
}

func TestPostgresConcurrentEnrollment(t *testing.T) {
	db := openTestDB(t)
	st := repository.NewStore(db, 10*time.Second)
	ctx := context.Background()

	c := newCampaign(150)
	require.NoError(t, st.CreateCampaign(ctx, c))

	logger := zap.NewNop()
	issuer := service.NewIssuer("CAKE-", 5, time.Now, logger)
	allocator := service.NewAllocator(st, issuer, 100, time.Now, logger)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		orders []int
		codes  int
	)
	for u := 1; u <= 200; u++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			res, err := allocator.Enroll(ctx, service.EnrollRequest{UserID: userID})
			if !assert.NoError(t, err) || !res.Eligible {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			orders = append(orders, int(res.ParticipationOrder))
			if res.VoucherCode != "" {
				codes++
			}
		}(int64(u))
	}
	wg.Wait()

	require.Len(t, orders, 150)
	sort.Ints(orders)
	for i, order := range orders {
		require.Equal(t, i+1, order)
	}
	assert.Equal(t, 100, codes)

	got, err := st.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(150), got.CurrentParticipants)
	assert.Equal(t, model.CampaignStatusFull, got.Status)

	var vouchers int
	require.NoError(t, db.GetContext(ctx, &vouchers, `SELECT COUNT(*) FROM vouchers`))
	assert.Equal(t, 100, vouchers)
}
