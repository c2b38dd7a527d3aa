package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CampaignType identifies which trigger a campaign enrolls users on
type CampaignType string

const (
	CampaignTypeFirstLoginDiscount CampaignType = "first_login_discount"
)

// CampaignStatus is the lifecycle state of a campaign
type CampaignStatus string

const (
	CampaignStatusActive   CampaignStatus = "active"
	CampaignStatusInactive CampaignStatus = "inactive"
	CampaignStatusExpired  CampaignStatus = "expired"
	CampaignStatusFull     CampaignStatus = "full"
)

// Campaign represents a promotion campaign in the database
type Campaign struct {
	ID                  int64               `db:"id" json:"id"`
	Name                string              `db:"name" json:"name"`
	Description         string              `db:"description" json:"description,omitempty"`
	Type                CampaignType        `db:"type" json:"type"`
	Status              CampaignStatus      `db:"status" json:"status"`
	StartDate           time.Time           `db:"start_date" json:"start_date"`
	EndDate             time.Time           `db:"end_date" json:"end_date"`
	MaxParticipants     int32               `db:"max_participants" json:"max_participants"`
	CurrentParticipants int32               `db:"current_participants" json:"current_participants"`
	DiscountPercentage  decimal.Decimal     `db:"discount_percentage" json:"discount_percentage"`
	MinTopupAmount      decimal.Decimal     `db:"min_topup_amount" json:"min_topup_amount"`
	MaxDiscountAmount   decimal.NullDecimal `db:"max_discount_amount" json:"max_discount_amount"`
	VoucherValidityDays int                 `db:"voucher_validity_days" json:"voucher_validity_days"`
	CreatedAt           time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time           `db:"updated_at" json:"updated_at"`
}

// InWindow reports whether t falls inside [StartDate, EndDate).
func (c *Campaign) InWindow(t time.Time) bool {
	return !t.Before(c.StartDate) && t.Before(c.EndDate)
}

// RemainingSlots never goes below zero.
func (c *Campaign) RemainingSlots() int32 {
	if c.CurrentParticipants >= c.MaxParticipants {
		return 0
	}
	return c.MaxParticipants - c.CurrentParticipants
}

// AcceptsParticipants reports whether a new participant can be admitted at t.
func (c *Campaign) AcceptsParticipants(t time.Time) bool {
	return c.Status == CampaignStatusActive && c.InWindow(t) && c.RemainingSlots() > 0
}
