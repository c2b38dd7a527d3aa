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

// DBExecutor interface for database operations (can be *sqlx.DB or *sqlx.Tx)
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

const campaignColumns = `
	id, name, COALESCE(description, '') AS description, type, status, start_date, end_date,
	max_participants, current_participants, discount_percentage, min_topup_amount,
	max_discount_amount, voucher_validity_days, created_at, updated_at`

// CampaignRepository handles campaign data operations
type CampaignRepository struct{}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository() *CampaignRepository {
	return &CampaignRepository{}
}

// CreateCampaign creates a new campaign. Only the seeder and tests create campaigns.
func (r *CampaignRepository) CreateCampaign(ctx context.Context, db DBExecutor, campaign *model.Campaign) error {
	query := `
		INSERT INTO campaigns (
			name, description, type, status, start_date, end_date, max_participants,
			current_participants, discount_percentage, min_topup_amount, max_discount_amount,
			voucher_validity_days, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`

	now := time.Now()
	if campaign.CreatedAt.IsZero() {
		campaign.CreatedAt = now
	}
	campaign.UpdatedAt = now

	err := db.GetContext(ctx, &campaign.ID, query,
		campaign.Name, campaign.Description, campaign.Type, campaign.Status,
		campaign.StartDate, campaign.EndDate, campaign.MaxParticipants,
		campaign.CurrentParticipants, campaign.DiscountPercentage, campaign.MinTopupAmount,
		campaign.MaxDiscountAmount, campaign.VoucherValidityDays,
		campaign.CreatedAt, campaign.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	return nil
}

// GetCampaign retrieves a campaign by ID
func (r *CampaignRepository) GetCampaign(ctx context.Context, db DBExecutor, id int64) (*model.Campaign, error) {
	return r.getCampaign(ctx, db, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
}

// LockCampaign retrieves a campaign and takes a row lock held until the transaction ends
func (r *CampaignRepository) LockCampaign(ctx context.Context, db DBExecutor, id int64) (*model.Campaign, error) {
	return r.getCampaign(ctx, db, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1 FOR UPDATE`, id)
}

// FindLatestActiveCampaign returns the most recently created active campaign of a type
func (r *CampaignRepository) FindLatestActiveCampaign(ctx context.Context, db DBExecutor, typ model.CampaignType) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE status = $1 AND type = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	return r.getCampaign(ctx, db, query, model.CampaignStatusActive, typ)
}

func (r *CampaignRepository) getCampaign(ctx context.Context, db DBExecutor, query string, args ...interface{}) (*model.Campaign, error) {
	var campaign model.Campaign
	err := db.GetContext(ctx, &campaign, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return &campaign, nil
}

// ListActiveCampaigns returns active campaigns, newest first
func (r *CampaignRepository) ListActiveCampaigns(ctx context.Context, db DBExecutor) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE status = $1
		ORDER BY created_at DESC, id DESC
	`

	var campaigns []*model.Campaign
	if err := db.SelectContext(ctx, &campaigns, query, model.CampaignStatusActive); err != nil {
		return nil, fmt.Errorf("failed to list active campaigns: %w", err)
	}

	return campaigns, nil
}

// UpdateParticipants writes the participant counter and status of a locked campaign
func (r *CampaignRepository) UpdateParticipants(ctx context.Context, db DBExecutor, id int64, current int32, status model.CampaignStatus) error {
	query := `
		UPDATE campaigns
		SET current_participants = $1, status = $2, updated_at = $3
		WHERE id = $4 AND $1 <= max_participants
	`

	result, err := db.ExecContext(ctx, query, current, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update campaign participants: %w", err)
	}

	return requireOneRow(result)
}

// requireOneRow maps a zero-row update to store.ErrStale
func requireOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrStale
	}
	return nil
}
