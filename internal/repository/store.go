package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kkkkikiki/promotion/internal/model"
	"github.com/kkkkikiki/promotion/internal/store"
)

// SQLSTATE lock_not_available, raised when lock_timeout elapses
const pqLockNotAvailable = "55P03"

// Store implements store.Store on PostgreSQL
type Store struct {
	postgres          *sqlx.DB
	lockTimeout       time.Duration
	campaignRepo      *CampaignRepository
	participationRepo *ParticipationRepository
	voucherRepo       *VoucherRepository
}

// NewStore creates a PostgreSQL backed store. A positive lockTimeout bounds how long
// a transaction waits for a row lock.
func NewStore(postgres *sqlx.DB, lockTimeout time.Duration) *Store {
	return &Store{
		postgres:          postgres,
		lockTimeout:       lockTimeout,
		campaignRepo:      NewCampaignRepository(),
		participationRepo: NewParticipationRepository(),
		voucherRepo:       NewVoucherRepository(),
	}
}

// WithTx runs fn in a transaction, committing only when fn succeeds
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.postgres.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", translate(err))
	}
	defer sqlTx.Rollback()

	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = %d", s.lockTimeout.Milliseconds())
		if _, err := sqlTx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to set lock timeout: %w", translate(err))
		}
	}

	if err := fn(ctx, &tx{store: s, db: sqlTx}); err != nil {
		return translate(err)
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", translate(err))
	}
	return nil
}

func (s *Store) GetCampaign(ctx context.Context, id int64) (*model.Campaign, error) {
	return s.campaignRepo.GetCampaign(ctx, s.postgres, id)
}

func (s *Store) FindLatestActiveCampaign(ctx context.Context, typ model.CampaignType) (*model.Campaign, error) {
	return s.campaignRepo.FindLatestActiveCampaign(ctx, s.postgres, typ)
}

func (s *Store) ListActiveCampaigns(ctx context.Context) ([]*model.Campaign, error) {
	return s.campaignRepo.ListActiveCampaigns(ctx, s.postgres)
}

func (s *Store) HasParticipation(ctx context.Context, userID int64, typ model.CampaignType) (bool, error) {
	return s.participationRepo.ExistsForUser(ctx, s.postgres, userID, typ)
}

func (s *Store) ListParticipationsByUser(ctx context.Context, userID int64) ([]*model.Participation, error) {
	return s.participationRepo.ListByUser(ctx, s.postgres, userID)
}

func (s *Store) GetVoucherByCode(ctx context.Context, code string) (*model.Voucher, error) {
	return s.voucherRepo.GetByCode(ctx, s.postgres, code)
}

func (s *Store) ListVouchersByUser(ctx context.Context, userID int64) ([]*model.Voucher, error) {
	return s.voucherRepo.ListByUser(ctx, s.postgres, userID)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.postgres.PingContext(ctx)
}

// CreateCampaign inserts a campaign outside the promotion core (seeder, tests)
func (s *Store) CreateCampaign(ctx context.Context, campaign *model.Campaign) error {
	return s.campaignRepo.CreateCampaign(ctx, s.postgres, campaign)
}

type tx struct {
	store *Store
	db    *sqlx.Tx
}

func (t *tx) LockCampaign(ctx context.Context, id int64) (*model.Campaign, error) {
	campaign, err := t.store.campaignRepo.LockCampaign(ctx, t.db, id)
	return campaign, translate(err)
}

func (t *tx) UpdateCampaignParticipants(ctx context.Context, id int64, current int32, status model.CampaignStatus) error {
	return translate(t.store.campaignRepo.UpdateParticipants(ctx, t.db, id, current, status))
}

func (t *tx) CreateParticipation(ctx context.Context, p *model.Participation) error {
	return translate(t.store.participationRepo.CreateParticipation(ctx, t.db, p))
}

func (t *tx) UpdateParticipationStatus(ctx context.Context, id int64, status model.ParticipationStatus, at time.Time) error {
	return translate(t.store.participationRepo.UpdateStatus(ctx, t.db, id, status, at))
}

func (t *tx) CreateVoucher(ctx context.Context, v *model.Voucher) error {
	return translate(t.store.voucherRepo.CreateVoucher(ctx, t.db, v))
}

func (t *tx) LockVoucher(ctx context.Context, code string) (*model.Voucher, error) {
	voucher, err := t.store.voucherRepo.LockByCode(ctx, t.db, code)
	return voucher, translate(err)
}

func (t *tx) MarkVoucherUsed(ctx context.Context, id int64, usage model.VoucherUsage) error {
	return translate(t.store.voucherRepo.MarkUsed(ctx, t.db, id, usage))
}

func (t *tx) MarkVoucherExpired(ctx context.Context, id int64, at time.Time) error {
	return translate(t.store.voucherRepo.MarkExpired(ctx, t.db, id, at))
}

// translate maps driver errors onto store errors, keeping the original in the chain
func translate(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqLockNotAvailable:
			return fmt.Errorf("%w: %v", store.ErrLockTimeout, err)
		case "23505": // unique_violation
			return fmt.Errorf("%w: %v", store.ErrConflict, err)
		}
	}
	return err
}
