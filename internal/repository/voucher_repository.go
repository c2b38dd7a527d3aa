package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kkkkikiki/promotion/internal/model"
	"github.com/kkkkikiki/promotion/internal/store"
)

const voucherColumns = `
	v.id, v.code, v.participation_id, v.type, v.status, v.discount_percentage,
	v.min_topup_amount, v.max_discount_amount, v.issued_at, v.expires_at, v.used_at,
	v.used_amount, v.discount_amount, v.transaction_reference, v.created_at, v.updated_at,
	p.user_id`

// VoucherRepository handles voucher data operations
type VoucherRepository struct{}

// NewVoucherRepository creates a new voucher repository
func NewVoucherRepository() *VoucherRepository {
	return &VoucherRepository{}
}

// CreateVoucher inserts an active voucher. A code collision is reported as
// store.ErrConflict and leaves the surrounding transaction usable.
func (r *VoucherRepository) CreateVoucher(ctx context.Context, db DBExecutor, v *model.Voucher) error {
	query := `
		INSERT INTO vouchers (
			code, participation_id, type, status, discount_percentage, min_topup_amount,
			max_discount_amount, issued_at, expires_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (code) DO NOTHING
		RETURNING id
	`

	now := time.Now()
	v.CreatedAt = now
	v.UpdatedAt = now

	err := db.GetContext(ctx, &v.ID, query,
		v.Code, v.ParticipationID, v.Type, v.Status, v.DiscountPercentage, v.MinTopupAmount,
		v.MaxDiscountAmount, v.IssuedAt, v.ExpiresAt, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrConflict
		}
		return fmt.Errorf("failed to create voucher: %w", err)
	}

	return nil
}

// GetByCode retrieves a voucher and its owner by code
func (r *VoucherRepository) GetByCode(ctx context.Context, db DBExecutor, code string) (*model.Voucher, error) {
	query := `SELECT ` + voucherColumns + `
		FROM vouchers v
		JOIN participations p ON p.id = v.participation_id
		WHERE v.code = $1
	`
	return r.getVoucher(ctx, db, query, code)
}

// LockByCode retrieves a voucher and locks its row until the transaction ends
func (r *VoucherRepository) LockByCode(ctx context.Context, db DBExecutor, code string) (*model.Voucher, error) {
	query := `SELECT ` + voucherColumns + `
		FROM vouchers v
		JOIN participations p ON p.id = v.participation_id
		WHERE v.code = $1
		FOR UPDATE OF v
	`
	return r.getVoucher(ctx, db, query, code)
}

func (r *VoucherRepository) getVoucher(ctx context.Context, db DBExecutor, query string, args ...interface{}) (*model.Voucher, error) {
	var voucher model.Voucher
	if err := db.GetContext(ctx, &voucher, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get voucher: %w", err)
	}
	return &voucher, nil
}

// ListByUser returns every voucher owned by the user, newest first
func (r *VoucherRepository) ListByUser(ctx context.Context, db DBExecutor, userID int64) ([]*model.Voucher, error) {
	query := `SELECT ` + voucherColumns + `
		FROM vouchers v
		JOIN participations p ON p.id = v.participation_id
		WHERE p.user_id = $1
		ORDER BY v.created_at DESC, v.id DESC
	`

	var vouchers []*model.Voucher
	if err := db.SelectContext(ctx, &vouchers, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list vouchers: %w", err)
	}

	return vouchers, nil
}

// MarkUsed transitions an active voucher to used exactly once
func (r *VoucherRepository) MarkUsed(ctx context.Context, db DBExecutor, id int64, usage model.VoucherUsage) error {
	query := `
		UPDATE vouchers
		SET status = $1, used_at = $2, used_amount = $3, discount_amount = $4,
			transaction_reference = $5, updated_at = $2
		WHERE id = $6 AND status = $7
	`

	result, err := db.ExecContext(ctx, query,
		model.VoucherStatusUsed, usage.UsedAt, usage.UsedAmount, usage.DiscountAmount,
		usage.TransactionReference, id, model.VoucherStatusActive)
	if err != nil {
		return fmt.Errorf("failed to mark voucher as used: %w", err)
	}

	return requireOneRow(result)
}

// MarkExpired transitions an active voucher to expired
func (r *VoucherRepository) MarkExpired(ctx context.Context, db DBExecutor, id int64, at time.Time) error {
	query := `UPDATE vouchers SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`

	result, err := db.ExecContext(ctx, query, model.VoucherStatusExpired, at, id, model.VoucherStatusActive)
	if err != nil {
		return fmt.Errorf("failed to mark voucher as expired: %w", err)
	}

	return requireOneRow(result)
}
