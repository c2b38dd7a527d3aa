package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// VoucherType is the product a voucher discounts
type VoucherType string

const (
	VoucherTypeMobileTopupDiscount VoucherType = "mobile_topup_discount"
)

// VoucherStatus is the redemption state of a voucher
type VoucherStatus string

const (
	VoucherStatusActive    VoucherStatus = "active"
	VoucherStatusUsed      VoucherStatus = "used"
	VoucherStatusExpired   VoucherStatus = "expired"
	VoucherStatusCancelled VoucherStatus = "cancelled"
)

// Voucher represents an issued discount voucher in the database.
// The discount policy is a snapshot of the campaign policy at issuance time.
type Voucher struct {
	ID                   int64               `db:"id" json:"id"`
	Code                 string              `db:"code" json:"code"`
	ParticipationID      int64               `db:"participation_id" json:"participation_id"`
	Type                 VoucherType         `db:"type" json:"type"`
	Status               VoucherStatus       `db:"status" json:"status"`
	DiscountPercentage   decimal.Decimal     `db:"discount_percentage" json:"discount_percentage"`
	MinTopupAmount       decimal.Decimal     `db:"min_topup_amount" json:"min_topup_amount"`
	MaxDiscountAmount    decimal.NullDecimal `db:"max_discount_amount" json:"max_discount_amount"`
	IssuedAt             time.Time           `db:"issued_at" json:"issued_at"`
	ExpiresAt            time.Time           `db:"expires_at" json:"expires_at"`
	UsedAt               *time.Time          `db:"used_at" json:"used_at,omitempty"`
	UsedAmount           decimal.NullDecimal `db:"used_amount" json:"used_amount"`
	DiscountAmount       decimal.NullDecimal `db:"discount_amount" json:"discount_amount"`
	TransactionReference *string             `db:"transaction_reference" json:"transaction_reference,omitempty"`
	CreatedAt            time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time           `db:"updated_at" json:"updated_at"`

	// Owner of the voucher, joined from participations on read.
	UserID int64 `db:"user_id" json:"user_id"`
}

// VoucherUsage is the record written when a voucher is redeemed
type VoucherUsage struct {
	UsedAt               time.Time
	UsedAmount           decimal.Decimal
	DiscountAmount       decimal.Decimal
	TransactionReference string
}

// IsExpired reports whether now is past the expiry instant.
func (v *Voucher) IsExpired(now time.Time) bool {
	return now.After(v.ExpiresAt)
}

// IsValid reports whether the voucher can still be redeemed at now.
func (v *Voucher) IsValid(now time.Time) bool {
	return v.Status == VoucherStatusActive && !v.IsExpired(now)
}
