package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/kkkkikiki/promotion/internal/metrics"
	"github.com/kkkkikiki/promotion/internal/model"
	"github.com/kkkkikiki/promotion/internal/store"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 8
)

// Issuer creates vouchers for participations inside the enrollment transaction
type Issuer struct {
	prefix   string
	attempts int
	now      func() time.Time
	generate func() (string, error)
	logger   *zap.Logger
}

// NewIssuer creates an issuer. attempts bounds the retries on code collisions.
func NewIssuer(prefix string, attempts int, now func() time.Time, logger *zap.Logger) *Issuer {
	if attempts < 1 {
		attempts = 1
	}
	i := &Issuer{
		prefix:   prefix,
		attempts: attempts,
		now:      now,
		logger:   logger,
	}
	i.generate = i.randomCode
	return i
}

// Issue creates an active voucher snapshotting the campaign discount policy, and moves
// the participation to voucher_issued.
func (i *Issuer) Issue(ctx context.Context, tx store.Tx, p *model.Participation, c *model.Campaign) (*model.Voucher, error) {
	issuedAt := i.now()

	for attempt := 1; attempt <= i.attempts; attempt++ {
		code, err := i.generate()
		if err != nil {
			return nil, fmt.Errorf("failed to generate voucher code: %w", err)
		}

		voucher := &model.Voucher{
			Code:               code,
			ParticipationID:    p.ID,
			Type:               model.VoucherTypeMobileTopupDiscount,
			Status:             model.VoucherStatusActive,
			DiscountPercentage: c.DiscountPercentage,
			MinTopupAmount:     c.MinTopupAmount,
			MaxDiscountAmount:  c.MaxDiscountAmount,
			IssuedAt:           issuedAt,
			ExpiresAt:          issuedAt.AddDate(0, 0, c.VoucherValidityDays),
			UserID:             p.UserID,
		}

		err = tx.CreateVoucher(ctx, voucher)
		if errors.Is(err, store.ErrConflict) {
			i.logger.Warn("voucher code collision, retrying",
				zap.String("code", code), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create voucher: %w", err)
		}

		if err := tx.UpdateParticipationStatus(ctx, p.ID, model.ParticipationStatusVoucherIssued, issuedAt); err != nil {
			return nil, fmt.Errorf("failed to mark voucher issued: %w", err)
		}
		p.Status = model.ParticipationStatusVoucherIssued
		p.VoucherIssuedAt = &issuedAt

		metrics.RecordVoucherIssued()
		return voucher, nil
	}

	return nil, fmt.Errorf("%w after %d attempts", ErrVoucherCodeExhausted, i.attempts)
}

func (i *Issuer) randomCode() (string, error) {
	size := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, codeLength)
	for n := range buf {
		idx, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		buf[n] = codeAlphabet[idx.Int64()]
	}
	return i.prefix + string(buf), nil
}
