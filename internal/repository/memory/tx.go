package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/kkkkikiki/promotion/internal/model"
	"github.com/kkkkikiki/promotion/internal/store"
)

type tx struct {
	store *Store
	held  map[string]chan struct{}

	campaigns      map[int64]*model.Campaign
	participations map[int64]*model.Participation
	vouchers       map[int64]*model.Voucher

	newKeys  map[participationKey]int64
	newCodes map[string]int64
}

func newTx(s *Store) *tx {
	return &tx{
		store:          s,
		held:           make(map[string]chan struct{}),
		campaigns:      make(map[int64]*model.Campaign),
		participations: make(map[int64]*model.Participation),
		vouchers:       make(map[int64]*model.Voucher),
		newKeys:        make(map[participationKey]int64),
		newCodes:       make(map[string]int64),
	}
}

// lock acquires the row lock for key, waiting at most the store lock timeout
func (t *tx) lock(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}

	ch := t.store.lockChan(key)
	select {
	case ch <- struct{}{}:
		t.held[key] = ch
		return nil
	default:
	}

	var timeout <-chan time.Time
	if t.store.lockTimeout > 0 {
		timer := time.NewTimer(t.store.lockTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case ch <- struct{}{}:
		t.held[key] = ch
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return fmt.Errorf("%w: %s", store.ErrLockTimeout, key)
	}
}

func (t *tx) release() {
	for key, ch := range t.held {
		<-ch
		delete(t.held, key)
	}
}

func (t *tx) commit() {
	s := t.store
	s.mu.Lock()
	for id, c := range t.campaigns {
		s.campaigns[id] = c
	}
	for id, p := range t.participations {
		s.participations[id] = p
	}
	for id, v := range t.vouchers {
		s.vouchers[id] = v
	}
	for key, id := range t.newKeys {
		s.participationKeys[key] = id
		delete(s.reservedKeys, key)
	}
	for code, id := range t.newCodes {
		s.voucherCodes[code] = id
		delete(s.reservedCodes, code)
	}
	s.mu.Unlock()

	t.release()
}

func (t *tx) rollback() {
	s := t.store
	s.mu.Lock()
	for key := range t.newKeys {
		delete(s.reservedKeys, key)
	}
	for code := range t.newCodes {
		delete(s.reservedCodes, code)
	}
	s.mu.Unlock()

	t.release()
}

func (t *tx) LockCampaign(ctx context.Context, id int64) (*model.Campaign, error) {
	if err := t.lock(ctx, fmt.Sprintf("campaign:%d", id)); err != nil {
		return nil, err
	}

	c, err := t.campaign(id)
	if err != nil {
		return nil, err
	}
	copied := *c
	return &copied, nil
}

func (t *tx) campaign(id int64) (*model.Campaign, error) {
	if c, ok := t.campaigns[id]; ok {
		return c, nil
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	c, ok := t.store.campaigns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (t *tx) UpdateCampaignParticipants(_ context.Context, id int64, current int32, status model.CampaignStatus) error {
	c, err := t.campaign(id)
	if err != nil {
		return store.ErrStale
	}
	if current > c.MaxParticipants {
		return store.ErrStale
	}

	updated := *c
	updated.CurrentParticipants = current
	updated.Status = status
	updated.UpdatedAt = time.Now()
	t.campaigns[id] = &updated
	return nil
}

func (t *tx) CreateParticipation(_ context.Context, p *model.Participation) error {
	key := participationKey{userID: p.UserID, campaignID: p.CampaignID}

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.participationKeys[key]; ok {
		return store.ErrConflict
	}
	if _, ok := s.reservedKeys[key]; ok {
		return store.ErrConflict
	}
	s.reservedKeys[key] = struct{}{}

	s.nextParticipationID++
	p.ID = s.nextParticipationID
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	copied := *p
	t.participations[p.ID] = &copied
	t.newKeys[key] = p.ID
	return nil
}

func (t *tx) participation(id int64) (*model.Participation, bool) {
	if p, ok := t.participations[id]; ok {
		return p, true
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	p, ok := t.store.participations[id]
	return p, ok
}

func (t *tx) UpdateParticipationStatus(_ context.Context, id int64, status model.ParticipationStatus, at time.Time) error {
	p, ok := t.participation(id)
	if !ok {
		return store.ErrStale
	}

	updated := *p
	updated.Status = status
	updated.UpdatedAt = at
	switch status {
	case model.ParticipationStatusVoucherIssued:
		updated.VoucherIssuedAt = &at
	case model.ParticipationStatusVoucherUsed:
		updated.VoucherUsedAt = &at
	}
	t.participations[id] = &updated
	return nil
}

func (t *tx) CreateVoucher(_ context.Context, v *model.Voucher) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.voucherCodes[v.Code]; ok {
		return store.ErrConflict
	}
	if _, ok := s.reservedCodes[v.Code]; ok {
		return store.ErrConflict
	}
	s.reservedCodes[v.Code] = struct{}{}

	s.nextVoucherID++
	v.ID = s.nextVoucherID
	now := time.Now()
	v.CreatedAt = now
	v.UpdatedAt = now

	copied := *v
	t.vouchers[v.ID] = &copied
	t.newCodes[v.Code] = v.ID
	return nil
}

func (t *tx) LockVoucher(ctx context.Context, code string) (*model.Voucher, error) {
	id, ok := t.newCodes[code]
	if !ok {
		t.store.mu.RLock()
		id, ok = t.store.voucherCodes[code]
		t.store.mu.RUnlock()
	}
	if !ok {
		return nil, store.ErrNotFound
	}

	if err := t.lock(ctx, "voucher:"+code); err != nil {
		return nil, err
	}

	v, ok := t.voucher(id)
	if !ok {
		return nil, store.ErrNotFound
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.joinVoucher(v, t.participations), nil
}

func (t *tx) voucher(id int64) (*model.Voucher, bool) {
	if v, ok := t.vouchers[id]; ok {
		return v, true
	}

	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	v, ok := t.store.vouchers[id]
	return v, ok
}

func (t *tx) MarkVoucherUsed(_ context.Context, id int64, usage model.VoucherUsage) error {
	v, ok := t.voucher(id)
	if !ok || v.Status != model.VoucherStatusActive {
		return store.ErrStale
	}

	updated := *v
	usedAt := usage.UsedAt
	reference := usage.TransactionReference
	updated.Status = model.VoucherStatusUsed
	updated.UsedAt = &usedAt
	updated.UsedAmount.Decimal = usage.UsedAmount
	updated.UsedAmount.Valid = true
	updated.DiscountAmount.Decimal = usage.DiscountAmount
	updated.DiscountAmount.Valid = true
	updated.TransactionReference = &reference
	updated.UpdatedAt = usedAt
	t.vouchers[id] = &updated
	return nil
}

func (t *tx) MarkVoucherExpired(_ context.Context, id int64, at time.Time) error {
	v, ok := t.voucher(id)
	if !ok || v.Status != model.VoucherStatusActive {
		return store.ErrStale
	}

	updated := *v
	updated.Status = model.VoucherStatusExpired
	updated.UpdatedAt = at
	t.vouchers[id] = &updated
	return nil
}
