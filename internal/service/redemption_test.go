package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/promotion/internal/model"
	"github.com/kkkkikiki/promotion/internal/payment"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func redeemReq(code string, userID int64, amount string) RedeemRequest {
	return RedeemRequest{
		Code:        code,
		UserID:      userID,
		Amount:      dec(amount),
		PhoneNumber: "+6281234567890",
	}
}

func TestRedeemAppliesDiscountOnce(t *testing.T) {
	env := newTestEnv(t, 100)
	env.seedCampaign(t, 100)

	for u := int64(1); u <= 51; u++ {
		env.enroll(t, u)
	}
	v := env.voucherOf(t, 51)

	res, err := env.redemption.Redeem(context.Background(), redeemReq(v.Code, 51, "100"))
	require.NoError(t, err)
	assert.True(t, res.OriginalAmount.Equal(dec("100")))
	assert.True(t, res.DiscountAmount.Equal(dec("30")))
	assert.True(t, res.FinalAmount.Equal(dec("70")))
	assert.Equal(t, v.Code, res.VoucherCode)
	assert.Equal(t, "Top-up successful! You saved 30.00 with your voucher.", res.Message)
	assert.Regexp(t, regexp.MustCompile(`^TXN-\d+-[A-Z0-9]{6}$`), res.TransactionID)

	require.Len(t, env.gateway.calls, 1)
	assert.True(t, env.gateway.calls[0].Amount.Equal(dec("70")))
	assert.Equal(t, payment.DefaultMethod, env.gateway.calls[0].Method)
	assert.Equal(t, res.TransactionID, env.gateway.calls[0].TransactionID)

	used := env.voucherOf(t, 51)
	assert.Equal(t, model.VoucherStatusUsed, used.Status)
	require.NotNil(t, used.UsedAt)
	assert.True(t, used.UsedAmount.Decimal.Equal(dec("100")))
	assert.True(t, used.DiscountAmount.Decimal.Equal(dec("30")))
	require.NotNil(t, used.TransactionReference)
	assert.Equal(t, res.TransactionID, *used.TransactionReference)
	assert.Equal(t, model.ParticipationStatusVoucherUsed, env.participationOf(t, 51).Status)

	_, err = env.redemption.Redeem(context.Background(), redeemReq(v.Code, 51, "100"))
	require.ErrorIs(t, err, ErrVoucherInvalidOrExpired)
	assert.Len(t, env.gateway.calls, 1)
}

func TestRedeemCapsDiscount(t *testing.T) {
	env := newTestEnv(t, 100)
	env.seedCampaign(t, 10, withMaxDiscount(20))
	env.enroll(t, 1)
	v := env.voucherOf(t, 1)

	res, err := env.redemption.Redeem(context.Background(), redeemReq(v.Code, 1, "100"))
	require.NoError(t, err)
	assert.True(t, res.DiscountAmount.Equal(dec("20")))
	assert.True(t, res.FinalAmount.Equal(dec("80")))
}

func TestRedeemBelowMinimum(t *testing.T) {
	env := newTestEnv(t, 100)
	env.seedCampaign(t, 10, withMinTopup(50))
	env.enroll(t, 1)
	v := env.voucherOf(t, 1)

	_, err := env.redemption.Redeem(context.Background(), redeemReq(v.Code, 1, "10"))
	require.ErrorIs(t, err, ErrBelowMinimumTopup)

	var below *BelowMinimumError
	require.True(t, errors.As(err, &below))
	assert.True(t, below.Minimum.Equal(dec("50")))
	assert.Equal(t, "minimum top-up amount for this voucher is 50.00", err.Error())

	assert.Empty(t, env.gateway.calls)
	assert.Equal(t, model.VoucherStatusActive, env.voucherOf(t, 1).Status)
}

func TestRedeemRejectsForeignVoucher(t *testing.T) {
	env := newTestEnv(t, 100)
	env.seedCampaign(t, 10)
	env.enroll(t, 1)
	env.enroll(t, 2)
	v := env.voucherOf(t, 1)

	_, err := env.redemption.Redeem(context.Background(), redeemReq(v.Code, 2, "100"))
	require.ErrorIs(t, err, ErrVoucherNotOwned)
	assert.Equal(t, model.VoucherStatusActive, env.voucherOf(t, 1).Status)
}

func TestRedeemUnknownVoucher(t *testing.T) {
	env := newTestEnv(t, 100)

	_, err := env.redemption.Redeem(context.Background(), redeemReq("CAKE-NOPE0000", 1, "100"))
	require.ErrorIs(t, err, ErrVoucherNotFound)

	_, err = env.redemption.Redeem(context.Background(), redeemReq("", 1, "100"))
	require.ErrorIs(t, err, ErrVoucherNotFound)
}

func TestRedeemRejectsInvalidAmount(t *testing.T) {
	env := newTestEnv(t, 100)
	env.seedCampaign(t, 10)
	env.enroll(t, 1)
	v := env.voucherOf(t, 1)

	for _, amount := range []string{"0", "-5", "100000000", "99999999.995", "10.005"} {
		_, err := env.redemption.Redeem(context.Background(), redeemReq(v.Code, 1, amount))
		require.ErrorIs(t, err, ErrInvalidAmount, amount)

		_, err = env.redemption.TopUp(context.Background(), TopUpRequest{UserID: 1, Amount: dec(amount), PhoneNumber: "0812345678"})
		require.ErrorIs(t, err, ErrInvalidAmount, amount)
	}
	assert.Empty(t, env.gateway.calls, "invalid amounts must be rejected before charging")
	assert.Equal(t, model.VoucherStatusActive, env.voucherOf(t, 1).Status)

	for _, amount := range []string{"99999999.99", "10.50", "10.500"} {
		_, err := env.redemption.TopUp(context.Background(), TopUpRequest{UserID: 1, Amount: dec(amount), PhoneNumber: "0812345678"})
		require.NoError(t, err, amount)
	}
}

func TestRedeemPaymentFailureKeepsVoucherActive(t *testing.T) {
	cases := []struct {
		name    string
		decline bool
		err     error
	}{
		{name: "declined", decline: true},
		{name: "gateway error", err: errors.New("gateway unreachable")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, 100)
			env.seedCampaign(t, 10)
			env.enroll(t, 1)
			v := env.voucherOf(t, 1)

			env.gateway.decline = tc.decline
			env.gateway.err = tc.err

			_, err := env.redemption.Redeem(context.Background(), redeemReq(v.Code, 1, "100"))
			require.ErrorIs(t, err, ErrPaymentFailed)

			after := env.voucherOf(t, 1)
			assert.Equal(t, model.VoucherStatusActive, after.Status)
			assert.Nil(t, after.UsedAt)
			assert.Equal(t, model.ParticipationStatusVoucherIssued, env.participationOf(t, 1).Status)

			env.gateway.decline = false
			env.gateway.err = nil
			_, err = env.redemption.Redeem(context.Background(), redeemReq(v.Code, 1, "100"))
			require.NoError(t, err)
		})
	}
}

func TestRedeemExpiredVoucherPersistsExpiry(t *testing.T) {
	env := newTestEnv(t, 100)
	env.seedCampaign(t, 10)
	env.enroll(t, 1)
	v := env.voucherOf(t, 1)

	env.clock.Advance(31 * 24 * time.Hour)

	_, err := env.redemption.Redeem(context.Background(), redeemReq(v.Code, 1, "100"))
	require.ErrorIs(t, err, ErrVoucherInvalidOrExpired)
	assert.Empty(t, env.gateway.calls)

	assert.Equal(t, model.VoucherStatusExpired, env.voucherOf(t, 1).Status)
	assert.Equal(t, model.ParticipationStatusExpired, env.participationOf(t, 1).Status)
}

func TestRedeemOnExpiryInstantStillValid(t *testing.T) {
	env := newTestEnv(t, 100)
	env.seedCampaign(t, 10)
	env.enroll(t, 1)
	v := env.voucherOf(t, 1)

	env.clock.Advance(v.ExpiresAt.Sub(env.clock.Now()))

	_, err := env.redemption.Redeem(context.Background(), redeemReq(v.Code, 1, "100"))
	require.NoError(t, err)
}

func TestValidateVoucher(t *testing.T) {
	env := newTestEnv(t, 100)
	env.seedCampaign(t, 10)
	env.enroll(t, 1)
	code := env.voucherOf(t, 1).Code

	v, err := env.redemption.ValidateVoucher(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, model.VoucherStatusActive, v.Status)
	assert.Equal(t, int64(1), v.UserID)
	assert.True(t, v.IsValid(env.clock.Now()))

	_, err = env.redemption.ValidateVoucher(context.Background(), "CAKE-MISSING0")
	require.ErrorIs(t, err, ErrVoucherNotFound)
}

func TestValidateVoucherExpiresLazily(t *testing.T) {
	env := newTestEnv(t, 100)
	env.seedCampaign(t, 10)
	env.enroll(t, 1)
	code := env.voucherOf(t, 1).Code

	env.clock.Advance(40 * 24 * time.Hour)

	v, err := env.redemption.ValidateVoucher(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, model.VoucherStatusExpired, v.Status)
	assert.False(t, v.IsValid(env.clock.Now()))

	stored, err := env.store.GetVoucherByCode(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, model.VoucherStatusExpired, stored.Status)
	assert.Equal(t, model.ParticipationStatusExpired, env.participationOf(t, 1).Status)
}

func TestTopUpWithoutVoucher(t *testing.T) {
	env := newTestEnv(t, 100)

	res, err := env.redemption.TopUp(context.Background(), TopUpRequest{
		UserID:        7,
		Amount:        dec("25.50"),
		PhoneNumber:   "+6280000000000",
		PaymentMethod: "card",
	})
	require.NoError(t, err)
	assert.True(t, res.DiscountAmount.IsZero())
	assert.True(t, res.FinalAmount.Equal(dec("25.50")))
	assert.Equal(t, "Top-up successful!", res.Message)

	require.Len(t, env.gateway.calls, 1)
	assert.Equal(t, "card", env.gateway.calls[0].Method)

	env.gateway.decline = true
	_, err = env.redemption.TopUp(context.Background(), TopUpRequest{UserID: 7, Amount: dec("10")})
	require.ErrorIs(t, err, ErrPaymentFailed)
}

func TestConcurrentRedeemUsesVoucherOnce(t *testing.T) {
	env := newTestEnv(t, 100)
	env.seedCampaign(t, 10)
	env.enroll(t, 1)
	code := env.voucherOf(t, 1).Code

	const attempts = 10
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			_, err := env.redemption.Redeem(context.Background(), redeemReq(code, 1, "100"))
			results <- err
		}()
	}

	succeeded := 0
	for i := 0; i < attempts; i++ {
		err := <-results
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrVoucherInvalidOrExpired)
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, env.gateway.calls, 1)
}
