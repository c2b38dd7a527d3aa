package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kkkkikiki/promotion/internal/store"
)

var (
	ErrAlreadyParticipated     = errors.New("user has already participated in a promotion campaign")
	ErrNoActiveCampaign        = errors.New("no active promotion campaigns available or campaign is full")
	ErrCampaignFull            = errors.New("campaign is full")
	ErrCampaignNotFound        = errors.New("campaign not found")
	ErrVoucherNotFound         = errors.New("voucher not found")
	ErrVoucherNotOwned         = errors.New("voucher does not belong to this user")
	ErrVoucherInvalidOrExpired = errors.New("voucher is expired or already used")
	ErrBelowMinimumTopup       = errors.New("top-up amount is below the voucher minimum")
	ErrPaymentFailed           = errors.New("payment processing failed")
	ErrLockTimeout             = errors.New("timed out waiting for a row lock")
	ErrVoucherCodeExhausted    = errors.New("could not generate a unique voucher code")
	ErrInvalidAmount           = errors.New("top-up amount must be positive, at most 99999999.99 with two decimal places")
)

// BelowMinimumError carries the minimum top-up of the rejected voucher
type BelowMinimumError struct {
	Minimum decimal.Decimal
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("minimum top-up amount for this voucher is %s", e.Minimum.StringFixed(2))
}

func (e *BelowMinimumError) Unwrap() error {
	return ErrBelowMinimumTopup
}

// IsRetryable reports whether the caller may retry the operation with backoff.
// Business rejections are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrAlreadyParticipated),
		errors.Is(err, ErrNoActiveCampaign),
		errors.Is(err, ErrCampaignFull),
		errors.Is(err, ErrCampaignNotFound),
		errors.Is(err, ErrVoucherNotFound),
		errors.Is(err, ErrVoucherNotOwned),
		errors.Is(err, ErrVoucherInvalidOrExpired),
		errors.Is(err, ErrBelowMinimumTopup),
		errors.Is(err, ErrPaymentFailed),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// storeErr maps store lock waits onto ErrLockTimeout
func storeErr(err error) error {
	if errors.Is(err, store.ErrLockTimeout) && !errors.Is(err, ErrLockTimeout) {
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	return err
}
