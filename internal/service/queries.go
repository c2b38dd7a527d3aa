package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kkkkikiki/promotion/internal/model"
	"github.com/kkkkikiki/promotion/internal/store"
)

// EligibilityResult is the side-effect free answer to "may this user still enroll"
type EligibilityResult struct {
	Eligible       bool
	Reason         Reason
	CampaignID     int64
	CampaignName   string
	RemainingSlots int32
	Message        string
}

// ParticipationView is a participation with its vouchers and effective status
type ParticipationView struct {
	*model.Participation
	InVoucherWindow bool
	Vouchers        []*model.Voucher
}

// Queries serves the read projections
type Queries struct {
	store     store.Store
	threshold int32
	now       func() time.Time
}

// NewQueries creates the read side
func NewQueries(st store.Store, threshold int32, now func() time.Time) *Queries {
	if threshold < 1 {
		threshold = DefaultVoucherThreshold
	}
	return &Queries{store: st, threshold: threshold, now: now}
}

// CheckEligibility reports whether the user has not participated yet and some active
// first-login campaign is open with capacity left. It looks at every active campaign,
// while an unpinned Enroll only targets the newest one, so a newer campaign that has
// not started can make Enroll reject a user reported eligible here.
func (q *Queries) CheckEligibility(ctx context.Context, userID int64) (*EligibilityResult, error) {
	participated, err := q.store.HasParticipation(ctx, userID, model.CampaignTypeFirstLoginDiscount)
	if err != nil {
		return nil, fmt.Errorf("failed to check participation: %w", err)
	}
	if participated {
		return &EligibilityResult{
			Reason:  ReasonAlreadyParticipated,
			Message: "User has already participated in a promotion campaign",
		}, nil
	}

	campaigns, err := q.store.ListActiveCampaigns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active campaigns: %w", err)
	}

	now := q.now()
	for _, c := range campaigns {
		if c.Type != model.CampaignTypeFirstLoginDiscount || !c.AcceptsParticipants(now) {
			continue
		}
		return &EligibilityResult{
			Eligible:       true,
			CampaignID:     c.ID,
			CampaignName:   c.Name,
			RemainingSlots: c.RemainingSlots(),
			Message:        fmt.Sprintf("You are eligible for the %q promotion. %d slots remaining.", c.Name, c.RemainingSlots()),
		}, nil
	}

	return &EligibilityResult{
		Reason:  ReasonNoActiveCampaign,
		Message: "No active promotion campaigns available or all campaigns are full",
	}, nil
}

// ListVouchers returns the user's vouchers newest first. Active vouchers past their
// expiry read as expired; the row is only rewritten by ValidateVoucher or a top-up.
func (q *Queries) ListVouchers(ctx context.Context, userID int64) ([]*model.Voucher, error) {
	vouchers, err := q.store.ListVouchersByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list vouchers: %w", err)
	}

	now := q.now()
	for _, v := range vouchers {
		if v.Status == model.VoucherStatusActive && v.IsExpired(now) {
			v.Status = model.VoucherStatusExpired
		}
	}
	return vouchers, nil
}

// ListParticipations returns the user's participations newest first, with vouchers
func (q *Queries) ListParticipations(ctx context.Context, userID int64) ([]*ParticipationView, error) {
	participations, err := q.store.ListParticipationsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participations: %w", err)
	}
	vouchers, err := q.ListVouchers(ctx, userID)
	if err != nil {
		return nil, err
	}

	byParticipation := make(map[int64][]*model.Voucher)
	for _, v := range vouchers {
		byParticipation[v.ParticipationID] = append(byParticipation[v.ParticipationID], v)
	}

	now := q.now()
	views := make([]*ParticipationView, 0, len(participations))
	for _, p := range participations {
		own := byParticipation[p.ID]
		p.Status = p.EffectiveStatus(now, own)
		if own == nil {
			own = []*model.Voucher{}
		}
		views = append(views, &ParticipationView{
			Participation:   p,
			InVoucherWindow: p.WithinThreshold(q.threshold),
			Vouchers:        own,
		})
	}
	return views, nil
}

// ListActiveCampaigns returns active campaigns newest first
func (q *Queries) ListActiveCampaigns(ctx context.Context) ([]*model.Campaign, error) {
	campaigns, err := q.store.ListActiveCampaigns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active campaigns: %w", err)
	}
	return campaigns, nil
}

// GetCampaign returns a campaign by ID
func (q *Queries) GetCampaign(ctx context.Context, id int64) (*model.Campaign, error) {
	campaign, err := q.store.GetCampaign(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return campaign, nil
}
