package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kkkkikiki/promotion/internal/api"
	"github.com/kkkkikiki/promotion/internal/metrics"
	"github.com/kkkkikiki/promotion/internal/model"
)

// FirstLoginPublisher queues first-login events for the worker
type FirstLoginPublisher interface {
	PublishFirstLogin(ctx context.Context, userID int64, occurredAt time.Time) (string, error)
}

// PromotionServer implements the promotion service
type PromotionServer struct {
	allocator  *Allocator
	redemption *Redemption
	queries    *Queries
	publisher  FirstLoginPublisher
	now        func() time.Time
	logger     *zap.Logger
}

var _ api.PromotionServiceHandler = (*PromotionServer)(nil)

// NewPromotionServer creates a new PromotionServer instance. publisher may be nil, in
// which case ReportFirstLogin is unavailable.
func NewPromotionServer(allocator *Allocator, redemption *Redemption, queries *Queries, publisher FirstLoginPublisher, now func() time.Time, logger *zap.Logger) *PromotionServer {
	return &PromotionServer{
		allocator:  allocator,
		redemption: redemption,
		queries:    queries,
		publisher:  publisher,
		now:        now,
		logger:     logger,
	}
}

// TrackFirstLogin enrolls the user synchronously. Rejections are reported in the body.
func (s *PromotionServer) TrackFirstLogin(
	ctx context.Context,
	req *connect.Request[api.TrackFirstLoginRequest],
) (*connect.Response[api.TrackFirstLoginResponse], error) {
	// Start timing for metrics
	start := time.Now()
	result := "failed"

	// Defer metric recording to ensure it's always called
	defer func() {
		metrics.RecordEnrollDuration(result, time.Since(start).Seconds())
	}()

	if req.Msg.UserID <= 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("user_id must be positive"))
	}

	enrolled, err := s.allocator.Enroll(ctx, EnrollRequest{
		UserID:     req.Msg.UserID,
		CampaignID: req.Msg.CampaignID,
	})
	if err != nil {
		s.logger.Error("enrollment failed", zap.Int64("user_id", req.Msg.UserID), zap.Error(err))
		return nil, connectError(err)
	}

	result = "rejected"
	if enrolled.Eligible {
		result = "eligible"
	}

	return connect.NewResponse(&api.TrackFirstLoginResponse{
		Eligible:           enrolled.Eligible,
		Reason:             string(enrolled.Reason),
		CampaignID:         enrolled.CampaignID,
		CampaignName:       enrolled.CampaignName,
		ParticipationOrder: enrolled.ParticipationOrder,
		RemainingSlots:     enrolled.RemainingSlots,
		VoucherCode:        enrolled.VoucherCode,
		Message:            enrolled.Message,
	}), nil
}

// ReportFirstLogin queues the first-login event for asynchronous enrollment
func (s *PromotionServer) ReportFirstLogin(
	ctx context.Context,
	req *connect.Request[api.ReportFirstLoginRequest],
) (*connect.Response[api.ReportFirstLoginResponse], error) {
	if s.publisher == nil {
		return nil, connect.NewError(connect.CodeUnavailable, fmt.Errorf("event queue is not configured"))
	}
	if req.Msg.UserID <= 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("user_id must be positive"))
	}

	taskID, err := s.publisher.PublishFirstLogin(ctx, req.Msg.UserID, req.Msg.OccurredAt)
	if err != nil {
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}

	return connect.NewResponse(&api.ReportFirstLoginResponse{
		TaskID: taskID,
	}), nil
}

// CheckEligibility answers without enrolling
func (s *PromotionServer) CheckEligibility(
	ctx context.Context,
	req *connect.Request[api.CheckEligibilityRequest],
) (*connect.Response[api.CheckEligibilityResponse], error) {
	if req.Msg.UserID <= 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("user_id must be positive"))
	}

	eligibility, err := s.queries.CheckEligibility(ctx, req.Msg.UserID)
	if err != nil {
		return nil, connectError(err)
	}

	return connect.NewResponse(&api.CheckEligibilityResponse{
		Eligible:       eligibility.Eligible,
		Reason:         string(eligibility.Reason),
		CampaignID:     eligibility.CampaignID,
		CampaignName:   eligibility.CampaignName,
		RemainingSlots: eligibility.RemainingSlots,
		Message:        eligibility.Message,
	}), nil
}

// ListVouchers returns the user's vouchers
func (s *PromotionServer) ListVouchers(
	ctx context.Context,
	req *connect.Request[api.ListVouchersRequest],
) (*connect.Response[api.ListVouchersResponse], error) {
	vouchers, err := s.queries.ListVouchers(ctx, req.Msg.UserID)
	if err != nil {
		return nil, connectError(err)
	}

	now := s.now()
	res := &api.ListVouchersResponse{Vouchers: make([]*api.Voucher, 0, len(vouchers))}
	for _, v := range vouchers {
		res.Vouchers = append(res.Vouchers, toAPIVoucher(v, now))
	}
	return connect.NewResponse(res), nil
}

// ListParticipations returns the user's promotion history
func (s *PromotionServer) ListParticipations(
	ctx context.Context,
	req *connect.Request[api.ListParticipationsRequest],
) (*connect.Response[api.ListParticipationsResponse], error) {
	views, err := s.queries.ListParticipations(ctx, req.Msg.UserID)
	if err != nil {
		return nil, connectError(err)
	}

	now := s.now()
	res := &api.ListParticipationsResponse{Participations: make([]*api.Participation, 0, len(views))}
	for _, view := range views {
		p := &api.Participation{
			ID:                 view.ID,
			CampaignID:         view.CampaignID,
			CampaignName:       view.CampaignName,
			Status:             string(view.Status),
			FirstLoginAt:       view.FirstLoginAt,
			VoucherIssuedAt:    view.VoucherIssuedAt,
			VoucherUsedAt:      view.VoucherUsedAt,
			ParticipationOrder: view.ParticipationOrder,
			InVoucherWindow:    view.InVoucherWindow,
			Vouchers:           make([]*api.Voucher, 0, len(view.Vouchers)),
			CreatedAt:          view.CreatedAt,
		}
		for _, v := range view.Vouchers {
			p.Vouchers = append(p.Vouchers, toAPIVoucher(v, now))
		}
		res.Participations = append(res.Participations, p)
	}
	return connect.NewResponse(res), nil
}

// ValidateVoucher looks a voucher up, expiring it when its validity has lapsed
func (s *PromotionServer) ValidateVoucher(
	ctx context.Context,
	req *connect.Request[api.ValidateVoucherRequest],
) (*connect.Response[api.ValidateVoucherResponse], error) {
	voucher, err := s.redemption.ValidateVoucher(ctx, req.Msg.Code)
	if err != nil {
		return nil, connectError(err)
	}

	return connect.NewResponse(&api.ValidateVoucherResponse{
		Voucher: toAPIVoucher(voucher, s.now()),
	}), nil
}

// RedeemVoucher tops up with a voucher
func (s *PromotionServer) RedeemVoucher(
	ctx context.Context,
	req *connect.Request[api.RedeemVoucherRequest],
) (*connect.Response[api.TopUpResponse], error) {
	start := time.Now()
	result := "failed"
	defer func() {
		metrics.RecordRedeemDuration(result, time.Since(start).Seconds())
	}()

	redeemed, err := s.redemption.Redeem(ctx, RedeemRequest{
		Code:          req.Msg.Code,
		UserID:        req.Msg.UserID,
		Amount:        req.Msg.Amount,
		PhoneNumber:   req.Msg.PhoneNumber,
		PaymentMethod: req.Msg.PaymentMethod,
	})
	if err != nil {
		return nil, connectError(err)
	}
	result = "success"

	return connect.NewResponse(toAPITopUp(redeemed)), nil
}

// TopUp tops up with an optional voucher
func (s *PromotionServer) TopUp(
	ctx context.Context,
	req *connect.Request[api.TopUpRequest],
) (*connect.Response[api.TopUpResponse], error) {
	start := time.Now()
	result := "failed"
	defer func() {
		metrics.RecordRedeemDuration(result, time.Since(start).Seconds())
	}()

	toppedUp, err := s.redemption.TopUp(ctx, TopUpRequest{
		UserID:        req.Msg.UserID,
		Amount:        req.Msg.Amount,
		PhoneNumber:   req.Msg.PhoneNumber,
		PaymentMethod: req.Msg.PaymentMethod,
		VoucherCode:   req.Msg.VoucherCode,
	})
	if err != nil {
		return nil, connectError(err)
	}
	result = "success"

	return connect.NewResponse(toAPITopUp(toppedUp)), nil
}

// ListActiveCampaigns returns active campaigns
func (s *PromotionServer) ListActiveCampaigns(
	ctx context.Context,
	_ *connect.Request[api.ListActiveCampaignsRequest],
) (*connect.Response[api.ListActiveCampaignsResponse], error) {
	campaigns, err := s.queries.ListActiveCampaigns(ctx)
	if err != nil {
		return nil, connectError(err)
	}

	res := &api.ListActiveCampaignsResponse{Campaigns: make([]*api.Campaign, 0, len(campaigns))}
	for _, c := range campaigns {
		res.Campaigns = append(res.Campaigns, toAPICampaign(c))
	}
	return connect.NewResponse(res), nil
}

// GetCampaign gets campaign information including its participant counter
func (s *PromotionServer) GetCampaign(
	ctx context.Context,
	req *connect.Request[api.GetCampaignRequest],
) (*connect.Response[api.GetCampaignResponse], error) {
	campaign, err := s.queries.GetCampaign(ctx, req.Msg.CampaignID)
	if err != nil {
		return nil, connectError(err)
	}

	return connect.NewResponse(&api.GetCampaignResponse{
		Campaign: toAPICampaign(campaign),
	}), nil
}

// connectError maps domain errors onto Connect codes
func connectError(err error) error {
	code := connect.CodeInternal
	switch {
	case errors.Is(err, ErrVoucherNotFound), errors.Is(err, ErrCampaignNotFound):
		code = connect.CodeNotFound
	case errors.Is(err, ErrVoucherNotOwned):
		code = connect.CodePermissionDenied
	case errors.Is(err, ErrVoucherInvalidOrExpired), errors.Is(err, ErrBelowMinimumTopup):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, ErrInvalidAmount):
		code = connect.CodeInvalidArgument
	case errors.Is(err, ErrPaymentFailed):
		code = connect.CodeAborted
	case errors.Is(err, ErrLockTimeout):
		code = connect.CodeUnavailable
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	}
	return connect.NewError(code, err)
}

func toAPICampaign(c *model.Campaign) *api.Campaign {
	return &api.Campaign{
		ID:                  c.ID,
		Name:                c.Name,
		Description:         c.Description,
		Type:                string(c.Type),
		Status:              string(c.Status),
		StartDate:           c.StartDate,
		EndDate:             c.EndDate,
		MaxParticipants:     c.MaxParticipants,
		CurrentParticipants: c.CurrentParticipants,
		RemainingSlots:      c.RemainingSlots(),
		DiscountPercentage:  c.DiscountPercentage,
		MinTopupAmount:      c.MinTopupAmount,
		MaxDiscountAmount:   nullable(c.MaxDiscountAmount),
		VoucherValidityDays: c.VoucherValidityDays,
		CreatedAt:           c.CreatedAt,
	}
}

func toAPIVoucher(v *model.Voucher, now time.Time) *api.Voucher {
	out := &api.Voucher{
		ID:                 v.ID,
		Code:               v.Code,
		Type:               string(v.Type),
		Status:             string(v.Status),
		DiscountPercentage: v.DiscountPercentage,
		MinTopupAmount:     v.MinTopupAmount,
		MaxDiscountAmount:  nullable(v.MaxDiscountAmount),
		IssuedAt:           v.IssuedAt,
		ExpiresAt:          v.ExpiresAt,
		UsedAt:             v.UsedAt,
		UsedAmount:         nullable(v.UsedAmount),
		DiscountAmount:     nullable(v.DiscountAmount),
		IsValid:            v.IsValid(now),
	}
	if v.TransactionReference != nil {
		out.TransactionReference = *v.TransactionReference
	}
	return out
}

func toAPITopUp(r *RedemptionResult) *api.TopUpResponse {
	return &api.TopUpResponse{
		Success:        true,
		TransactionID:  r.TransactionID,
		OriginalAmount: r.OriginalAmount,
		DiscountAmount: r.DiscountAmount,
		FinalAmount:    r.FinalAmount,
		PhoneNumber:    r.PhoneNumber,
		VoucherCode:    r.VoucherCode,
		Message:        r.Message,
	}
}

func nullable(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	value := d.Decimal
	return &value
}
