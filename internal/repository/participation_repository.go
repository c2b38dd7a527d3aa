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

// ParticipationRepository handles participation data operations
type ParticipationRepository struct{}

// NewParticipationRepository creates a new participation repository
func NewParticipationRepository() *ParticipationRepository {
	return &ParticipationRepository{}
}

// CreateParticipation inserts a participation. The unique (user_id, campaign_id) index
// turns a concurrent duplicate into store.ErrConflict without aborting the transaction.
func (r *ParticipationRepository) CreateParticipation(ctx context.Context, db DBExecutor, p *model.Participation) error {
	query := `
		INSERT INTO participations (
			user_id, campaign_id, status, first_login_at, participation_order, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, campaign_id) DO NOTHING
		RETURNING id
	`

	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	err := db.GetContext(ctx, &p.ID, query,
		p.UserID, p.CampaignID, p.Status, p.FirstLoginAt, p.ParticipationOrder, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrConflict
		}
		return fmt.Errorf("failed to create participation: %w", err)
	}

	return nil
}

// UpdateStatus moves a participation to status and stamps the matching timestamp
func (r *ParticipationRepository) UpdateStatus(ctx context.Context, db DBExecutor, id int64, status model.ParticipationStatus, at time.Time) error {
	var query string
	switch status {
	case model.ParticipationStatusVoucherIssued:
		query = `UPDATE participations SET status = $1, voucher_issued_at = $2, updated_at = $2 WHERE id = $3`
	case model.ParticipationStatusVoucherUsed:
		query = `UPDATE participations SET status = $1, voucher_used_at = $2, updated_at = $2 WHERE id = $3`
	default:
		query = `UPDATE participations SET status = $1, updated_at = $2 WHERE id = $3`
	}

	result, err := db.ExecContext(ctx, query, status, at, id)
	if err != nil {
		return fmt.Errorf("failed to update participation status: %w", err)
	}

	return requireOneRow(result)
}

// ExistsForUser reports whether the user participates in any campaign of the type
func (r *ParticipationRepository) ExistsForUser(ctx context.Context, db DBExecutor, userID int64, typ model.CampaignType) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM participations p
			JOIN campaigns c ON c.id = p.campaign_id
			WHERE p.user_id = $1 AND c.type = $2
		)
	`

	var exists bool
	if err := db.GetContext(ctx, &exists, query, userID, typ); err != nil {
		return false, fmt.Errorf("failed to check participation: %w", err)
	}

	return exists, nil
}

// ListByUser returns the user's participations with campaign name, newest first
func (r *ParticipationRepository) ListByUser(ctx context.Context, db DBExecutor, userID int64) ([]*model.Participation, error) {
	query := `
		SELECT p.id, p.user_id, p.campaign_id, p.status, p.first_login_at, p.voucher_issued_at,
			p.voucher_used_at, p.participation_order, p.created_at, p.updated_at,
			c.name AS campaign_name, c.end_date AS campaign_end_date
		FROM participations p
		JOIN campaigns c ON c.id = p.campaign_id
		WHERE p.user_id = $1
		ORDER BY p.created_at DESC, p.id DESC
	`

	var participations []*model.Participation
	if err := db.SelectContext(ctx, &participations, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list participations: %w", err)
	}

	return participations, nil
}
