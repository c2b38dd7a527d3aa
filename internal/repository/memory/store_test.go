package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/promotion/internal/model"
	"github.com/kkkkikiki/promotion/internal/store"
)

func seedCampaign(t *testing.T, s *Store, max int32) *model.Campaign {
	t.Helper()
	now := time.Now()
	c := &model.Campaign{
		Name:                "First login",
		Type:                model.CampaignTypeFirstLoginDiscount,
		Status:              model.CampaignStatusActive,
		StartDate:           now.Add(-time.Hour),
		EndDate:             now.Add(24 * time.Hour),
		MaxParticipants:     max,
		DiscountPercentage:  decimal.NewFromInt(30),
		VoucherValidityDays: 30,
	}
	require.NoError(t, s.CreateCampaign(context.Background(), c))
	return c
}

func TestWithTxCommitAppliesStagedWrites(t *testing.T) {
	ctx := context.Background()
	s := New(time.Second)
	c := seedCampaign(t, s, 10)

	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		locked, err := tx.LockCampaign(ctx, c.ID)
		require.NoError(t, err)

		p := &model.Participation{UserID: 7, CampaignID: locked.ID, Status: model.ParticipationStatusEligible, ParticipationOrder: 1}
		require.NoError(t, tx.CreateParticipation(ctx, p))
		require.NoError(t, tx.UpdateCampaignParticipants(ctx, locked.ID, 1, model.CampaignStatusActive))

		// not visible outside the transaction yet
		has, err := s.HasParticipation(ctx, 7, model.CampaignTypeFirstLoginDiscount)
		require.NoError(t, err)
		require.False(t, has)
		return nil
	})
	require.NoError(t, err)

	got, err := s.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, int32(1), got.CurrentParticipants)

	participations, err := s.ListParticipationsByUser(ctx, 7)
	require.NoError(t, err)
	require.Len(t, participations, 1)
	require.Equal(t, "First login", participations[0].CampaignName)
}

func TestWithTxRollbackDiscardsWritesAndReservations(t *testing.T) {
	ctx := context.Background()
	s := New(time.Second)
	c := seedCampaign(t, s, 10)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p := &model.Participation{UserID: 7, CampaignID: c.ID, Status: model.ParticipationStatusEligible, ParticipationOrder: 1}
		require.NoError(t, tx.CreateParticipation(ctx, p))
		require.NoError(t, tx.CreateVoucher(ctx, &model.Voucher{Code: "CAKE-AAAAAAAA", ParticipationID: p.ID, Status: model.VoucherStatusActive}))
		require.NoError(t, tx.UpdateCampaignParticipants(ctx, c.ID, 1, model.CampaignStatusActive))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, int32(0), got.CurrentParticipants)

	_, err = s.GetVoucherByCode(ctx, "CAKE-AAAAAAAA")
	require.ErrorIs(t, err, store.ErrNotFound)

	// the released key and code can be used again
	err = s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p := &model.Participation{UserID: 7, CampaignID: c.ID, Status: model.ParticipationStatusEligible, ParticipationOrder: 1}
		if err := tx.CreateParticipation(ctx, p); err != nil {
			return err
		}
		return tx.CreateVoucher(ctx, &model.Voucher{Code: "CAKE-AAAAAAAA", ParticipationID: p.ID, Status: model.VoucherStatusActive})
	})
	require.NoError(t, err)

	v, err := s.GetVoucherByCode(ctx, "CAKE-AAAAAAAA")
	require.NoError(t, err)
	require.Equal(t, int64(7), v.UserID)
}

func TestUniqueConstraints(t *testing.T) {
	ctx := context.Background()
	s := New(time.Second)
	c := seedCampaign(t, s, 10)

	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		first := &model.Participation{UserID: 1, CampaignID: c.ID, ParticipationOrder: 1}
		require.NoError(t, tx.CreateParticipation(ctx, first))
		require.ErrorIs(t, tx.CreateParticipation(ctx, &model.Participation{UserID: 1, CampaignID: c.ID, ParticipationOrder: 2}), store.ErrConflict)

		require.NoError(t, tx.CreateVoucher(ctx, &model.Voucher{Code: "CAKE-DUP00000", ParticipationID: first.ID}))
		require.ErrorIs(t, tx.CreateVoucher(ctx, &model.Voucher{Code: "CAKE-DUP00000", ParticipationID: first.ID}), store.ErrConflict)
		return nil
	})
	require.NoError(t, err)
}

func TestLockCampaignTimesOut(t *testing.T) {
	ctx := context.Background()
	s := New(20 * time.Millisecond)
	c := seedCampaign(t, s, 10)

	locked := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			if _, err := tx.LockCampaign(ctx, c.ID); err != nil {
				return err
			}
			close(locked)
			<-done
			return nil
		})
	}()
	<-locked

	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.LockCampaign(ctx, c.ID)
		return err
	})
	close(done)
	require.ErrorIs(t, err, store.ErrLockTimeout)
}

func TestLockCampaignHonoursContext(t *testing.T) {
	s := New(0)
	c := seedCampaign(t, s, 10)

	locked := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			if _, err := tx.LockCampaign(ctx, c.ID); err != nil {
				return err
			}
			close(locked)
			<-done
			return nil
		})
	}()
	<-locked

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.LockCampaign(ctx, c.ID)
		return err
	})
	close(done)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMarkVoucherUsedOnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := New(time.Second)
	c := seedCampaign(t, s, 10)

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p := &model.Participation{UserID: 3, CampaignID: c.ID, ParticipationOrder: 1}
		require.NoError(t, tx.CreateParticipation(ctx, p))
		return tx.CreateVoucher(ctx, &model.Voucher{Code: "CAKE-USEONCE1", ParticipationID: p.ID, Status: model.VoucherStatusActive})
	}))

	usage := model.VoucherUsage{UsedAt: time.Now(), UsedAmount: decimal.NewFromInt(100), DiscountAmount: decimal.NewFromInt(30), TransactionReference: "TXN-1"}
	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		v, err := tx.LockVoucher(ctx, "CAKE-USEONCE1")
		require.NoError(t, err)
		require.Equal(t, int64(3), v.UserID)
		return tx.MarkVoucherUsed(ctx, v.ID, usage)
	}))

	err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		v, err := tx.LockVoucher(ctx, "CAKE-USEONCE1")
		require.NoError(t, err)
		return tx.MarkVoucherUsed(ctx, v.ID, usage)
	})
	require.ErrorIs(t, err, store.ErrStale)

	v, err := s.GetVoucherByCode(ctx, "CAKE-USEONCE1")
	require.NoError(t, err)
	require.Equal(t, model.VoucherStatusUsed, v.Status)
	require.True(t, v.DiscountAmount.Decimal.Equal(decimal.NewFromInt(30)))
	require.Equal(t, "TXN-1", *v.TransactionReference)
}

func TestFindLatestActiveCampaignPrefersNewest(t *testing.T) {
	ctx := context.Background()
	s := New(time.Second)
	older := seedCampaign(t, s, 10)

	created := time.Now().Add(time.Minute)
	newer := &model.Campaign{
		Name:            "Newer",
		Type:            model.CampaignTypeFirstLoginDiscount,
		Status:          model.CampaignStatusActive,
		MaxParticipants: 5,
		CreatedAt:       created,
	}
	require.NoError(t, s.CreateCampaign(ctx, newer))

	// same created_at, higher id wins
	tied := &model.Campaign{
		Name:            "Tied",
		Type:            model.CampaignTypeFirstLoginDiscount,
		Status:          model.CampaignStatusActive,
		MaxParticipants: 5,
		CreatedAt:       created,
	}
	require.NoError(t, s.CreateCampaign(ctx, tied))

	got, err := s.FindLatestActiveCampaign(ctx, model.CampaignTypeFirstLoginDiscount)
	require.NoError(t, err)
	require.Equal(t, tied.ID, got.ID)

	active, err := s.ListActiveCampaigns(ctx)
	require.NoError(t, err)
	require.Len(t, active, 3)
	require.Equal(t, []int64{tied.ID, newer.ID, older.ID}, []int64{active[0].ID, active[1].ID, active[2].ID})
}
