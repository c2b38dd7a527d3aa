// Package memory is an in-process store.Store used by APP_STORAGE=memory and by tests.
//
// Row locks are one-slot channels keyed by row, so waiting honours both the context and
// the configured lock timeout. Writes are staged on the transaction and applied on commit
// while the row locks are still held.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kkkkikiki/promotion/internal/model"
	"github.com/kkkkikiki/promotion/internal/store"
)

type participationKey struct {
	userID     int64
	campaignID int64
}

// Store keeps campaigns, participations and vouchers in maps
type Store struct {
	mu sync.RWMutex

	campaigns      map[int64]*model.Campaign
	participations map[int64]*model.Participation
	vouchers       map[int64]*model.Voucher

	// unique indexes; reserved entries belong to open transactions
	participationKeys map[participationKey]int64
	voucherCodes      map[string]int64
	reservedKeys      map[participationKey]struct{}
	reservedCodes     map[string]struct{}

	nextCampaignID      int64
	nextParticipationID int64
	nextVoucherID       int64

	locksMu     sync.Mutex
	locks       map[string]chan struct{}
	lockTimeout time.Duration
}

// New creates an empty store. A positive lockTimeout bounds row lock waits.
func New(lockTimeout time.Duration) *Store {
	return &Store{
		campaigns:         make(map[int64]*model.Campaign),
		participations:    make(map[int64]*model.Participation),
		vouchers:          make(map[int64]*model.Voucher),
		participationKeys: make(map[participationKey]int64),
		voucherCodes:      make(map[string]int64),
		reservedKeys:      make(map[participationKey]struct{}),
		reservedCodes:     make(map[string]struct{}),
		locks:             make(map[string]chan struct{}),
		lockTimeout:       lockTimeout,
	}
}

// CreateCampaign seeds a campaign, assigning its ID and timestamps
func (s *Store) CreateCampaign(_ context.Context, campaign *model.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextCampaignID++
	campaign.ID = s.nextCampaignID
	now := time.Now()
	if campaign.CreatedAt.IsZero() {
		campaign.CreatedAt = now
	}
	campaign.UpdatedAt = now

	c := *campaign
	s.campaigns[c.ID] = &c
	return nil
}

// WithTx runs fn against a fresh transaction
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	t := newTx(s)
	committed := false
	defer func() {
		if !committed {
			t.rollback()
		}
	}()

	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	t.commit()
	committed = true
	return nil
}

func (s *Store) GetCampaign(_ context.Context, id int64) (*model.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.campaigns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (s *Store) FindLatestActiveCampaign(_ context.Context, typ model.CampaignType) (*model.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *model.Campaign
	for _, c := range s.campaigns {
		if c.Status != model.CampaignStatusActive || c.Type != typ {
			continue
		}
		if latest == nil || newerCampaign(c, latest) {
			latest = c
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (s *Store) ListActiveCampaigns(_ context.Context) ([]*model.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	campaigns := make([]*model.Campaign, 0)
	for _, c := range s.campaigns {
		if c.Status == model.CampaignStatusActive {
			copied := *c
			campaigns = append(campaigns, &copied)
		}
	}
	sort.Slice(campaigns, func(i, j int) bool { return newerCampaign(campaigns[i], campaigns[j]) })
	return campaigns, nil
}

func (s *Store) HasParticipation(_ context.Context, userID int64, typ model.CampaignType) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for key := range s.participationKeys {
		if key.userID != userID {
			continue
		}
		if c, ok := s.campaigns[key.campaignID]; ok && c.Type == typ {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListParticipationsByUser(_ context.Context, userID int64) ([]*model.Participation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	participations := make([]*model.Participation, 0)
	for _, p := range s.participations {
		if p.UserID == userID {
			participations = append(participations, s.joinParticipation(p))
		}
	}
	sort.Slice(participations, func(i, j int) bool {
		return newerRow(participations[i].CreatedAt, participations[i].ID, participations[j].CreatedAt, participations[j].ID)
	})
	return participations, nil
}

func (s *Store) GetVoucherByCode(_ context.Context, code string) (*model.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.voucherCodes[code]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.joinVoucher(s.vouchers[id], nil), nil
}

func (s *Store) ListVouchersByUser(_ context.Context, userID int64) ([]*model.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vouchers := make([]*model.Voucher, 0)
	for _, v := range s.vouchers {
		if p, ok := s.participations[v.ParticipationID]; ok && p.UserID == userID {
			vouchers = append(vouchers, s.joinVoucher(v, nil))
		}
	}
	sort.Slice(vouchers, func(i, j int) bool {
		return newerRow(vouchers[i].CreatedAt, vouchers[i].ID, vouchers[j].CreatedAt, vouchers[j].ID)
	})
	return vouchers, nil
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

// joinParticipation copies p and fills the campaign columns. Caller holds s.mu.
func (s *Store) joinParticipation(p *model.Participation) *model.Participation {
	copied := *p
	if c, ok := s.campaigns[p.CampaignID]; ok {
		copied.CampaignName = c.Name
		copied.CampaignEndDate = c.EndDate
	}
	return &copied
}

// joinVoucher copies v and fills the owner, looking at staged participations first.
// Caller holds s.mu.
func (s *Store) joinVoucher(v *model.Voucher, staged map[int64]*model.Participation) *model.Voucher {
	copied := *v
	if p, ok := staged[v.ParticipationID]; ok {
		copied.UserID = p.UserID
	} else if p, ok := s.participations[v.ParticipationID]; ok {
		copied.UserID = p.UserID
	}
	return &copied
}

func (s *Store) lockChan(key string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	return ch
}

func newerCampaign(a, b *model.Campaign) bool {
	return newerRow(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
}

// newerRow orders by created_at DESC, id DESC
func newerRow(aCreated time.Time, aID int64, bCreated time.Time, bID int64) bool {
	if !aCreated.Equal(bCreated) {
		return aCreated.After(bCreated)
	}
	return aID > bID
}
