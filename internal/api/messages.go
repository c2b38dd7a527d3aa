package api

import (
	"time"

	"github.com/shopspring/decimal"
)

type Campaign struct {
	ID                  int64            `json:"id"`
	Name                string           `json:"name"`
	Description         string           `json:"description,omitempty"`
	Type                string           `json:"type"`
	Status              string           `json:"status"`
	StartDate           time.Time        `json:"start_date"`
	EndDate             time.Time        `json:"end_date"`
	MaxParticipants     int32            `json:"max_participants"`
	CurrentParticipants int32            `json:"current_participants"`
	RemainingSlots      int32            `json:"remaining_slots"`
	DiscountPercentage  decimal.Decimal  `json:"discount_percentage"`
	MinTopupAmount      decimal.Decimal  `json:"min_topup_amount"`
	MaxDiscountAmount   *decimal.Decimal `json:"max_discount_amount,omitempty"`
	VoucherValidityDays int              `json:"voucher_validity_days"`
	CreatedAt           time.Time        `json:"created_at"`
}

type Voucher struct {
	ID                   int64            `json:"id"`
	Code                 string           `json:"code"`
	Type                 string           `json:"type"`
	Status               string           `json:"status"`
	DiscountPercentage   decimal.Decimal  `json:"discount_percentage"`
	MinTopupAmount       decimal.Decimal  `json:"min_topup_amount"`
	MaxDiscountAmount    *decimal.Decimal `json:"max_discount_amount,omitempty"`
	IssuedAt             time.Time        `json:"issued_at"`
	ExpiresAt            time.Time        `json:"expires_at"`
	UsedAt               *time.Time       `json:"used_at,omitempty"`
	UsedAmount           *decimal.Decimal `json:"used_amount,omitempty"`
	DiscountAmount       *decimal.Decimal `json:"discount_amount,omitempty"`
	TransactionReference string           `json:"transaction_reference,omitempty"`
	IsValid              bool             `json:"is_valid"`
}

type Participation struct {
	ID                 int64      `json:"id"`
	CampaignID         int64      `json:"campaign_id"`
	CampaignName       string     `json:"campaign_name"`
	Status             string     `json:"status"`
	FirstLoginAt       time.Time  `json:"first_login_at"`
	VoucherIssuedAt    *time.Time `json:"voucher_issued_at,omitempty"`
	VoucherUsedAt      *time.Time `json:"voucher_used_at,omitempty"`
	ParticipationOrder int32      `json:"participation_order"`
	InVoucherWindow    bool       `json:"in_voucher_window"`
	Vouchers           []*Voucher `json:"vouchers"`
	CreatedAt          time.Time  `json:"created_at"`
}

type TrackFirstLoginRequest struct {
	UserID     int64  `json:"user_id"`
	CampaignID *int64 `json:"campaign_id,omitempty"`
}

type TrackFirstLoginResponse struct {
	Eligible           bool   `json:"eligible"`
	Reason             string `json:"reason,omitempty"`
	CampaignID         int64  `json:"campaign_id,omitempty"`
	CampaignName       string `json:"campaign_name,omitempty"`
	ParticipationOrder int32  `json:"participation_order,omitempty"`
	RemainingSlots     int32  `json:"remaining_slots"`
	VoucherCode        string `json:"voucher_code,omitempty"`
	Message            string `json:"message"`
}

type ReportFirstLoginRequest struct {
	UserID     int64     `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

type ReportFirstLoginResponse struct {
	TaskID string `json:"task_id"`
}

type CheckEligibilityRequest struct {
	UserID int64 `json:"user_id"`
}

type CheckEligibilityResponse struct {
	Eligible       bool   `json:"eligible"`
	Reason         string `json:"reason,omitempty"`
	CampaignID     int64  `json:"campaign_id,omitempty"`
	CampaignName   string `json:"campaign_name,omitempty"`
	RemainingSlots int32  `json:"remaining_slots"`
	Message        string `json:"message"`
}

type ListVouchersRequest struct {
	UserID int64 `json:"user_id"`
}

type ListVouchersResponse struct {
	Vouchers []*Voucher `json:"vouchers"`
}

type ListParticipationsRequest struct {
	UserID int64 `json:"user_id"`
}

type ListParticipationsResponse struct {
	Participations []*Participation `json:"participations"`
}

type ValidateVoucherRequest struct {
	Code string `json:"code"`
}

type ValidateVoucherResponse struct {
	Voucher *Voucher `json:"voucher"`
}

type RedeemVoucherRequest struct {
	Code          string          `json:"code"`
	UserID        int64           `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	PhoneNumber   string          `json:"phone_number"`
	PaymentMethod string          `json:"payment_method,omitempty"`
}

type TopUpRequest struct {
	UserID        int64           `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	PhoneNumber   string          `json:"phone_number"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	VoucherCode   string          `json:"voucher_code,omitempty"`
}

// TopUpResponse answers both RedeemVoucher and TopUp
type TopUpResponse struct {
	Success        bool            `json:"success"`
	TransactionID  string          `json:"transaction_id"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	PhoneNumber    string          `json:"phone_number"`
	VoucherCode    string          `json:"voucher_code,omitempty"`
	Message        string          `json:"message"`
}

type ListActiveCampaignsRequest struct{}

type ListActiveCampaignsResponse struct {
	Campaigns []*Campaign `json:"campaigns"`
}

type GetCampaignRequest struct {
	CampaignID int64 `json:"campaign_id"`
}

type GetCampaignResponse struct {
	Campaign *Campaign `json:"campaign"`
}
