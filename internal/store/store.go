// Package store declares the persistence contract the promotion core runs against.
//
// All cross-request coordination is delegated to implementations of this package:
// row locks taken through Tx are held until the transaction function returns, and
// uniqueness of (user, campaign) participations and voucher codes is enforced by the
// store itself.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kkkkikiki/promotion/internal/model"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when an insert hits a uniqueness constraint.
	ErrConflict = errors.New("store: unique constraint violated")
	// ErrLockTimeout is returned when a row lock could not be acquired in time.
	ErrLockTimeout = errors.New("store: lock wait timeout")
	// ErrStale is returned when a conditional update matched no row.
	ErrStale = errors.New("store: row state changed")
)

// Store is the read side plus the transaction entry point.
type Store interface {
	// WithTx runs fn inside a transaction. The transaction commits when fn returns nil
	// and rolls back on error, panic or context cancellation.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetCampaign(ctx context.Context, id int64) (*model.Campaign, error)
	// FindLatestActiveCampaign returns the active campaign of the given type with the
	// latest created_at (ties broken by highest id).
	FindLatestActiveCampaign(ctx context.Context, typ model.CampaignType) (*model.Campaign, error)
	ListActiveCampaigns(ctx context.Context) ([]*model.Campaign, error)

	HasParticipation(ctx context.Context, userID int64, typ model.CampaignType) (bool, error)
	ListParticipationsByUser(ctx context.Context, userID int64) ([]*model.Participation, error)

	GetVoucherByCode(ctx context.Context, code string) (*model.Voucher, error)
	ListVouchersByUser(ctx context.Context, userID int64) ([]*model.Voucher, error)

	Ping(ctx context.Context) error
}

// Tx is the unit of work used by the allocator, issuer and redemption engine.
type Tx interface {
	// LockCampaign reads a campaign and holds an exclusive lock on it.
	LockCampaign(ctx context.Context, id int64) (*model.Campaign, error)
	UpdateCampaignParticipants(ctx context.Context, id int64, current int32, status model.CampaignStatus) error

	// CreateParticipation returns ErrConflict when the (user, campaign) pair exists.
	CreateParticipation(ctx context.Context, p *model.Participation) error
	// UpdateParticipationStatus stamps voucher_issued_at or voucher_used_at to match status.
	UpdateParticipationStatus(ctx context.Context, id int64, status model.ParticipationStatus, at time.Time) error

	// CreateVoucher returns ErrConflict when the code is already taken.
	CreateVoucher(ctx context.Context, v *model.Voucher) error
	// LockVoucher reads a voucher (with its owner) and holds an exclusive lock on it.
	LockVoucher(ctx context.Context, code string) (*model.Voucher, error)
	// MarkVoucherUsed returns ErrStale unless the voucher is still active.
	MarkVoucherUsed(ctx context.Context, id int64, usage model.VoucherUsage) error
	// MarkVoucherExpired returns ErrStale unless the voucher is still active.
	MarkVoucherExpired(ctx context.Context, id int64, at time.Time) error
}
