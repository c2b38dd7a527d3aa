package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kkkkikiki/promotion/internal/model"
	"github.com/kkkkikiki/promotion/internal/payment"
	"github.com/kkkkikiki/promotion/internal/store"
)

// PaymentGateway confirms a top-up charge
type PaymentGateway interface {
	ConfirmPayment(ctx context.Context, req payment.Request) (bool, error)
}

// RedeemRequest is a top-up paid with a voucher
type RedeemRequest struct {
	Code          string
	UserID        int64
	Amount        decimal.Decimal
	PhoneNumber   string
	PaymentMethod string
}

// TopUpRequest is a top-up with an optional voucher
type TopUpRequest struct {
	UserID        int64
	Amount        decimal.Decimal
	PhoneNumber   string
	PaymentMethod string
	VoucherCode   string
}

// RedemptionResult describes a completed top-up
type RedemptionResult struct {
	TransactionID  string
	OriginalAmount decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
	PhoneNumber    string
	VoucherCode    string
	Message        string
}

// Redemption validates vouchers and applies them to top-ups
type Redemption struct {
	store   store.Store
	gateway PaymentGateway
	now     func() time.Time
	logger  *zap.Logger
}

// NewRedemption creates a redemption engine
func NewRedemption(st store.Store, gateway PaymentGateway, now func() time.Time, logger *zap.Logger) *Redemption {
	return &Redemption{
		store:   st,
		gateway: gateway,
		now:     now,
		logger:  logger,
	}
}

// ValidateVoucher returns the voucher, marking it expired first when it is past its
// expiry but still active.
func (r *Redemption) ValidateVoucher(ctx context.Context, code string) (*model.Voucher, error) {
	voucher, err := r.store.GetVoucherByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrVoucherNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get voucher: %w", err)
	}

	now := r.now()
	if voucher.Status != model.VoucherStatusActive || !voucher.IsExpired(now) {
		return voucher, nil
	}

	err = r.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		locked, err := tx.LockVoucher(ctx, code)
		if err != nil {
			return err
		}
		voucher = locked
		return r.expire(ctx, tx, voucher, now)
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return voucher, nil
}

// expire moves an active voucher past its expiry, and its participation, to expired
func (r *Redemption) expire(ctx context.Context, tx store.Tx, v *model.Voucher, now time.Time) error {
	if v.Status != model.VoucherStatusActive || !v.IsExpired(now) {
		return nil
	}
	if err := tx.MarkVoucherExpired(ctx, v.ID, now); err != nil {
		return fmt.Errorf("failed to expire voucher: %w", err)
	}
	if err := tx.UpdateParticipationStatus(ctx, v.ParticipationID, model.ParticipationStatusExpired, now); err != nil {
		return fmt.Errorf("failed to expire participation: %w", err)
	}
	v.Status = model.VoucherStatusExpired
	v.UpdatedAt = now

	r.logger.Info("voucher expired", zap.String("code", v.Code), zap.Int64("voucher_id", v.ID))
	return nil
}

// Redeem applies a voucher to a top-up. The voucher row stays locked while payment is
// confirmed, so it transitions to used at most once; a failed payment changes nothing.
func (r *Redemption) Redeem(ctx context.Context, req RedeemRequest) (*RedemptionResult, error) {
	if req.Code == "" {
		return nil, ErrVoucherNotFound
	}
	return r.TopUp(ctx, TopUpRequest{
		UserID:        req.UserID,
		Amount:        req.Amount,
		PhoneNumber:   req.PhoneNumber,
		PaymentMethod: req.PaymentMethod,
		VoucherCode:   req.Code,
	})
}

// maxTopupAmount is the largest amount the NUMERIC(10,2) usage columns hold
var maxTopupAmount = decimal.RequireFromString("99999999.99")

// validAmount reports whether amount can be charged and recorded as-is
func validAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() &&
		amount.LessThanOrEqual(maxTopupAmount) &&
		amount.Equal(amount.Truncate(2))
}

// TopUp charges the phone number, discounting the amount when a voucher is given
func (r *Redemption) TopUp(ctx context.Context, req TopUpRequest) (*RedemptionResult, error) {
	if !validAmount(req.Amount) {
		return nil, ErrInvalidAmount
	}
	method := req.PaymentMethod
	if method == "" {
		method = payment.DefaultMethod
	}

	result := &RedemptionResult{
		TransactionID:  newTransactionID(r.now()),
		OriginalAmount: req.Amount,
		DiscountAmount: decimal.Zero,
		FinalAmount:    req.Amount,
		PhoneNumber:    req.PhoneNumber,
		VoucherCode:    req.VoucherCode,
	}

	if req.VoucherCode == "" {
		if err := r.charge(ctx, req.PhoneNumber, req.Amount, result.TransactionID, method); err != nil {
			return nil, err
		}
		result.Message = "Top-up successful!"
		return result, nil
	}

	// an expiry detected under the lock must persist even though the redemption fails
	var rejection error

	err := r.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		voucher, err := tx.LockVoucher(ctx, req.VoucherCode)
		if errors.Is(err, store.ErrNotFound) {
			return ErrVoucherNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock voucher: %w", err)
		}

		if voucher.UserID != req.UserID {
			return ErrVoucherNotOwned
		}

		now := r.now()
		if !voucher.IsValid(now) {
			if err := r.expire(ctx, tx, voucher, now); err != nil {
				return err
			}
			rejection = ErrVoucherInvalidOrExpired
			return nil
		}

		if req.Amount.LessThan(voucher.MinTopupAmount) {
			return &BelowMinimumError{Minimum: voucher.MinTopupAmount}
		}

		discount, final := CalculateDiscount(req.Amount, voucher.DiscountPercentage, voucher.MaxDiscountAmount)
		result.DiscountAmount = discount
		result.FinalAmount = final

		if err := r.charge(ctx, req.PhoneNumber, final, result.TransactionID, method); err != nil {
			return err
		}

		usedAt := r.now()
		err = tx.MarkVoucherUsed(ctx, voucher.ID, model.VoucherUsage{
			UsedAt:               usedAt,
			UsedAmount:           req.Amount,
			DiscountAmount:       discount,
			TransactionReference: result.TransactionID,
		})
		if errors.Is(err, store.ErrStale) {
			return ErrVoucherInvalidOrExpired
		}
		if err != nil {
			return fmt.Errorf("failed to mark voucher used: %w", err)
		}

		if err := tx.UpdateParticipationStatus(ctx, voucher.ParticipationID, model.ParticipationStatusVoucherUsed, usedAt); err != nil {
			return fmt.Errorf("failed to mark participation voucher used: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	if rejection != nil {
		return nil, rejection
	}

	result.Message = fmt.Sprintf("Top-up successful! You saved %s with your voucher.", result.DiscountAmount.StringFixed(2))

	r.logger.Info("voucher redeemed",
		zap.String("code", req.VoucherCode),
		zap.Int64("user_id", req.UserID),
		zap.String("discount", result.DiscountAmount.StringFixed(2)),
		zap.String("transaction_id", result.TransactionID))

	return result, nil
}

func (r *Redemption) charge(ctx context.Context, phone string, amount decimal.Decimal, transactionID, method string) error {
	ok, err := r.gateway.ConfirmPayment(ctx, payment.Request{
		PhoneNumber:   phone,
		Amount:        amount,
		TransactionID: transactionID,
		Method:        method,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}
	if !ok {
		r.logger.Warn("payment declined", zap.String("transaction_id", transactionID))
		return ErrPaymentFailed
	}
	return nil
}

// newTransactionID formats TXN-<unix millis>-<6 uppercase alphanumerics>
func newTransactionID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return fmt.Sprintf("TXN-%d-%s", now.UnixMilli(), suffix)
}
