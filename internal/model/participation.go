package model

import "time"

// ParticipationStatus tracks a participant from enrollment to voucher use
type ParticipationStatus string

const (
	ParticipationStatusEligible      ParticipationStatus = "eligible"
	ParticipationStatusVoucherIssued ParticipationStatus = "voucher_issued"
	ParticipationStatusVoucherUsed   ParticipationStatus = "voucher_used"
	ParticipationStatusExpired       ParticipationStatus = "expired"
)

// Participation is a user's enrollment in a campaign. One per (user, campaign).
type Participation struct {
	ID                 int64               `db:"id" json:"id"`
	UserID             int64               `db:"user_id" json:"user_id"`
	CampaignID         int64               `db:"campaign_id" json:"campaign_id"`
	Status             ParticipationStatus `db:"status" json:"status"`
	FirstLoginAt       time.Time           `db:"first_login_at" json:"first_login_at"`
	VoucherIssuedAt    *time.Time          `db:"voucher_issued_at" json:"voucher_issued_at,omitempty"`
	VoucherUsedAt      *time.Time          `db:"voucher_used_at" json:"voucher_used_at,omitempty"`
	ParticipationOrder int32               `db:"participation_order" json:"participation_order"`
	CreatedAt          time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time           `db:"updated_at" json:"updated_at"`

	// Joined from campaigns on read; not columns of participations.
	CampaignName    string    `db:"campaign_name" json:"campaign_name,omitempty"`
	CampaignEndDate time.Time `db:"campaign_end_date" json:"-"`
}

// WithinThreshold reports whether the order falls inside the voucher-eligible window.
func (p *Participation) WithinThreshold(threshold int32) bool {
	return p.ParticipationOrder <= threshold
}

// EffectiveStatus evaluates lazy expiry: an eligible participation whose campaign has
// ended, or a voucher_issued one whose vouchers have all lapsed, reads as expired.
func (p *Participation) EffectiveStatus(now time.Time, vouchers []*Voucher) ParticipationStatus {
	switch p.Status {
	case ParticipationStatusEligible:
		if !p.CampaignEndDate.IsZero() && !now.Before(p.CampaignEndDate) {
			return ParticipationStatusExpired
		}
	case ParticipationStatusVoucherIssued:
		if len(vouchers) == 0 {
			return p.Status
		}
		for _, v := range vouchers {
			if v.Status != VoucherStatusExpired && !(v.Status == VoucherStatusActive && v.IsExpired(now)) {
				return p.Status
			}
		}
		return ParticipationStatusExpired
	}
	return p.Status
}
