package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kkkkikiki/promotion/internal/model"
	"github.com/kkkkikiki/promotion/internal/store"
)

// DefaultVoucherThreshold is the number of leading participants that receive a voucher
const DefaultVoucherThreshold int32 = 100

// Reason explains a rejected enrollment
type Reason string

const (
	ReasonAlreadyParticipated Reason = "already_participated"
	ReasonNoActiveCampaign    Reason = "no_active_campaign"
	ReasonCampaignFull        Reason = "campaign_full"
)

// EnrollRequest asks to admit a user. CampaignID pins a campaign; otherwise the latest
// active first-login campaign is used.
type EnrollRequest struct {
	UserID     int64
	CampaignID *int64
}

// EnrollResult always carries a human-readable message, including rejections
type EnrollResult struct {
	Eligible           bool
	Reason             Reason
	CampaignID         int64
	CampaignName       string
	ParticipationOrder int32
	RemainingSlots     int32
	VoucherCode        string
	Message            string
}

// Allocator admits first-login users into a campaign in lock order
type Allocator struct {
	store     store.Store
	issuer    *Issuer
	threshold int32
	now       func() time.Time
	logger    *zap.Logger
}

// NewAllocator creates an allocator issuing vouchers to the first threshold participants
func NewAllocator(st store.Store, issuer *Issuer, threshold int32, now func() time.Time, logger *zap.Logger) *Allocator {
	if threshold < 1 {
		threshold = DefaultVoucherThreshold
	}
	return &Allocator{
		store:     st,
		issuer:    issuer,
		threshold: threshold,
		now:       now,
		logger:    logger,
	}
}

// Enroll admits the user. Business rejections are returned as a result with
// Eligible=false and a nil error; errors are infrastructure failures, where
// ErrLockTimeout is retryable.
func (a *Allocator) Enroll(ctx context.Context, req EnrollRequest) (*EnrollResult, error) {
	participated, err := a.store.HasParticipation(ctx, req.UserID, model.CampaignTypeFirstLoginDiscount)
	if err != nil {
		return nil, fmt.Errorf("failed to check participation: %w", err)
	}
	if participated {
		return rejected(ReasonAlreadyParticipated), nil
	}

	campaign, err := a.targetCampaign(ctx, req.CampaignID)
	if errors.Is(err, store.ErrNotFound) {
		return rejected(ReasonNoActiveCampaign), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active campaign: %w", err)
	}
	if campaign.Type != model.CampaignTypeFirstLoginDiscount || !campaign.AcceptsParticipants(a.now()) {
		return rejected(ReasonNoActiveCampaign), nil
	}

	var (
		participation *model.Participation
		voucher       *model.Voucher
		remaining     int32
	)
	err = a.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		locked, err := tx.LockCampaign(ctx, campaign.ID)
		if err != nil {
			return fmt.Errorf("failed to lock campaign: %w", err)
		}

		// the counter may have moved since the unlocked read
		if locked.RemainingSlots() == 0 || locked.Status == model.CampaignStatusFull {
			return ErrCampaignFull
		}
		now := a.now()
		if !locked.AcceptsParticipants(now) {
			return ErrNoActiveCampaign
		}

		order := locked.CurrentParticipants + 1
		participation = &model.Participation{
			UserID:             req.UserID,
			CampaignID:         locked.ID,
			Status:             model.ParticipationStatusEligible,
			FirstLoginAt:       now,
			ParticipationOrder: order,
		}
		if err := tx.CreateParticipation(ctx, participation); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrAlreadyParticipated
			}
			return fmt.Errorf("failed to create participation: %w", err)
		}

		status := model.CampaignStatusActive
		if order >= locked.MaxParticipants {
			status = model.CampaignStatusFull
		}
		if err := tx.UpdateCampaignParticipants(ctx, locked.ID, order, status); err != nil {
			return fmt.Errorf("failed to update campaign participants: %w", err)
		}
		remaining = locked.MaxParticipants - order

		if participation.WithinThreshold(a.threshold) {
			voucher, err = a.issuer.Issue(ctx, tx, participation, locked)
			if err != nil {
				return err
			}
		}
		return nil
	})

	switch {
	case errors.Is(err, ErrCampaignFull):
		return rejected(ReasonCampaignFull), nil
	case errors.Is(err, ErrNoActiveCampaign):
		return rejected(ReasonNoActiveCampaign), nil
	case errors.Is(err, ErrAlreadyParticipated):
		return rejected(ReasonAlreadyParticipated), nil
	case err != nil:
		return nil, storeErr(err)
	}

	result := &EnrollResult{
		Eligible:           true,
		CampaignID:         campaign.ID,
		CampaignName:       campaign.Name,
		ParticipationOrder: participation.ParticipationOrder,
		RemainingSlots:     remaining,
	}
	if voucher != nil {
		result.VoucherCode = voucher.Code
		result.Message = fmt.Sprintf("Congratulations! You're participant #%d. Your discount voucher has been issued.", result.ParticipationOrder)
	} else {
		result.Message = fmt.Sprintf("You're participant #%d. Unfortunately, vouchers are only available for the first %d participants.", result.ParticipationOrder, a.threshold)
	}

	a.logger.Info("user enrolled",
		zap.Int64("user_id", req.UserID),
		zap.Int64("campaign_id", campaign.ID),
		zap.Int32("participation_order", result.ParticipationOrder),
		zap.Bool("voucher_issued", voucher != nil))

	return result, nil
}

func (a *Allocator) targetCampaign(ctx context.Context, campaignID *int64) (*model.Campaign, error) {
	if campaignID != nil {
		return a.store.GetCampaign(ctx, *campaignID)
	}
	return a.store.FindLatestActiveCampaign(ctx, model.CampaignTypeFirstLoginDiscount)
}

func rejected(reason Reason) *EnrollResult {
	result := &EnrollResult{Reason: reason}
	switch reason {
	case ReasonAlreadyParticipated:
		result.Message = "User has already participated in a promotion campaign"
	case ReasonNoActiveCampaign:
		result.Message = "No active promotion campaigns available or campaign is full"
	case ReasonCampaignFull:
		result.Message = "Campaign is full"
	}
	return result
}

// Err maps a rejected result onto its sentinel error, nil when eligible
func (r *EnrollResult) Err() error {
	switch r.Reason {
	case ReasonAlreadyParticipated:
		return ErrAlreadyParticipated
	case ReasonNoActiveCampaign:
		return ErrNoActiveCampaign
	case ReasonCampaignFull:
		return ErrCampaignFull
	}
	return nil
}
