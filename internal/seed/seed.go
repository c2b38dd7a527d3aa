// Package seed creates demo first-login campaigns for local runs and load tests.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kkkkikiki/promotion/internal/model"
	"github.com/kkkkikiki/promotion/internal/store"
)

// CampaignStore is the part of a store seeding needs
type CampaignStore interface {
	CreateCampaign(ctx context.Context, c *model.Campaign) error
	FindLatestActiveCampaign(ctx context.Context, typ model.CampaignType) (*model.Campaign, error)
}

// Options describe the seeded campaign
type Options struct {
	Name                string
	MaxParticipants     int32
	DiscountPercentage  decimal.Decimal
	MinTopupAmount      decimal.Decimal
	MaxDiscountAmount   decimal.NullDecimal
	VoucherValidityDays int
	Duration            time.Duration
}

// DefaultOptions is the 30% mobile top-up promotion for the first 1000 users
func DefaultOptions() Options {
	return Options{
		Name:                "First Login Mobile Top-up Discount",
		MaxParticipants:     1000,
		DiscountPercentage:  decimal.NewFromInt(30),
		MinTopupAmount:      decimal.NewFromInt(10),
		MaxDiscountAmount:   decimal.NewNullDecimal(decimal.NewFromInt(50)),
		VoucherValidityDays: 30,
		Duration:            30 * 24 * time.Hour,
	}
}

// Campaign builds an active first-login campaign starting at now
func Campaign(now time.Time, opts Options) *model.Campaign {
	return &model.Campaign{
		Name:                opts.Name,
		Description:         fmt.Sprintf("%s%% off mobile top-up for the first %d users to log in", opts.DiscountPercentage.String(), opts.MaxParticipants),
		Type:                model.CampaignTypeFirstLoginDiscount,
		Status:              model.CampaignStatusActive,
		StartDate:           now,
		EndDate:             now.Add(opts.Duration),
		MaxParticipants:     opts.MaxParticipants,
		DiscountPercentage:  opts.DiscountPercentage,
		MinTopupAmount:      opts.MinTopupAmount,
		MaxDiscountAmount:   opts.MaxDiscountAmount,
		VoucherValidityDays: opts.VoucherValidityDays,
	}
}

// Validate rejects options the allocator could never serve
func (o Options) Validate() error {
	switch {
	case o.Name == "":
		return errors.New("campaign name is required")
	case o.MaxParticipants < 1:
		return fmt.Errorf("max participants must be positive, got %d", o.MaxParticipants)
	case !o.DiscountPercentage.IsPositive() || o.DiscountPercentage.GreaterThan(decimal.NewFromInt(100)):
		return fmt.Errorf("discount percentage must be within (0, 100], got %s", o.DiscountPercentage)
	case o.MinTopupAmount.IsNegative():
		return fmt.Errorf("min top-up must not be negative, got %s", o.MinTopupAmount)
	case o.VoucherValidityDays < 1:
		return fmt.Errorf("voucher validity must be at least one day, got %d", o.VoucherValidityDays)
	case o.Duration <= 0:
		return fmt.Errorf("campaign duration must be positive, got %s", o.Duration)
	}
	return nil
}

// EnsureCampaign creates a campaign unless an active first-login campaign already exists.
// It returns the campaign enrollments will land in and whether it was created.
func EnsureCampaign(ctx context.Context, st CampaignStore, now time.Time, opts Options, logger *zap.Logger) (*model.Campaign, bool, error) {
	existing, err := st.FindLatestActiveCampaign(ctx, model.CampaignTypeFirstLoginDiscount)
	if err == nil {
		logger.Info("active campaign already present", zap.Int64("campaign_id", existing.ID))
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to look up active campaign: %w", err)
	}

	c, err := CreateCampaign(ctx, st, now, opts, logger)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// CreateCampaign always inserts a new campaign
func CreateCampaign(ctx context.Context, st CampaignStore, now time.Time, opts Options, logger *zap.Logger) (*model.Campaign, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	c := Campaign(now, opts)
	if err := st.CreateCampaign(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}
	logger.Info("campaign created",
		zap.Int64("campaign_id", c.ID),
		zap.String("name", c.Name),
		zap.Int32("max_participants", c.MaxParticipants))
	return c, nil
}
