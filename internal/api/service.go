// Package api declares the promotion.v1.PromotionService Connect service: its messages,
// the JSON codec they travel with, and the handler and client constructors.
package api

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// PromotionServiceName is the fully-qualified name of the PromotionService service.
const PromotionServiceName = "promotion.v1.PromotionService"

// Procedure paths, in the form "/<service>/<method>".
const (
	PromotionServiceTrackFirstLoginProcedure     = "/promotion.v1.PromotionService/TrackFirstLogin"
	PromotionServiceReportFirstLoginProcedure    = "/promotion.v1.PromotionService/ReportFirstLogin"
	PromotionServiceCheckEligibilityProcedure    = "/promotion.v1.PromotionService/CheckEligibility"
	PromotionServiceListVouchersProcedure        = "/promotion.v1.PromotionService/ListVouchers"
	PromotionServiceListParticipationsProcedure  = "/promotion.v1.PromotionService/ListParticipations"
	PromotionServiceValidateVoucherProcedure     = "/promotion.v1.PromotionService/ValidateVoucher"
	PromotionServiceRedeemVoucherProcedure       = "/promotion.v1.PromotionService/RedeemVoucher"
	PromotionServiceTopUpProcedure               = "/promotion.v1.PromotionService/TopUp"
	PromotionServiceListActiveCampaignsProcedure = "/promotion.v1.PromotionService/ListActiveCampaigns"
	PromotionServiceGetCampaignProcedure         = "/promotion.v1.PromotionService/GetCampaign"
)

// PromotionServiceHandler is implemented by the server
type PromotionServiceHandler interface {
	TrackFirstLogin(context.Context, *connect.Request[TrackFirstLoginRequest]) (*connect.Response[TrackFirstLoginResponse], error)
	ReportFirstLogin(context.Context, *connect.Request[ReportFirstLoginRequest]) (*connect.Response[ReportFirstLoginResponse], error)
	CheckEligibility(context.Context, *connect.Request[CheckEligibilityRequest]) (*connect.Response[CheckEligibilityResponse], error)
	ListVouchers(context.Context, *connect.Request[ListVouchersRequest]) (*connect.Response[ListVouchersResponse], error)
	ListParticipations(context.Context, *connect.Request[ListParticipationsRequest]) (*connect.Response[ListParticipationsResponse], error)
	ValidateVoucher(context.Context, *connect.Request[ValidateVoucherRequest]) (*connect.Response[ValidateVoucherResponse], error)
	RedeemVoucher(context.Context, *connect.Request[RedeemVoucherRequest]) (*connect.Response[TopUpResponse], error)
	TopUp(context.Context, *connect.Request[TopUpRequest]) (*connect.Response[TopUpResponse], error)
	ListActiveCampaigns(context.Context, *connect.Request[ListActiveCampaignsRequest]) (*connect.Response[ListActiveCampaignsResponse], error)
	GetCampaign(context.Context, *connect.Request[GetCampaignRequest]) (*connect.Response[GetCampaignResponse], error)
}

// NewPromotionServiceHandler builds an HTTP handler from the service implementation. It
// returns the path on which to mount the handler and the handler itself.
func NewPromotionServiceHandler(svc PromotionServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSON()}, opts...)

	handlers := map[string]http.Handler{
		PromotionServiceTrackFirstLoginProcedure:     connect.NewUnaryHandler(PromotionServiceTrackFirstLoginProcedure, svc.TrackFirstLogin, opts...),
		PromotionServiceReportFirstLoginProcedure:    connect.NewUnaryHandler(PromotionServiceReportFirstLoginProcedure, svc.ReportFirstLogin, opts...),
		PromotionServiceCheckEligibilityProcedure:    connect.NewUnaryHandler(PromotionServiceCheckEligibilityProcedure, svc.CheckEligibility, opts...),
		PromotionServiceListVouchersProcedure:        connect.NewUnaryHandler(PromotionServiceListVouchersProcedure, svc.ListVouchers, opts...),
		PromotionServiceListParticipationsProcedure:  connect.NewUnaryHandler(PromotionServiceListParticipationsProcedure, svc.ListParticipations, opts...),
		PromotionServiceValidateVoucherProcedure:     connect.NewUnaryHandler(PromotionServiceValidateVoucherProcedure, svc.ValidateVoucher, opts...),
		PromotionServiceRedeemVoucherProcedure:       connect.NewUnaryHandler(PromotionServiceRedeemVoucherProcedure, svc.RedeemVoucher, opts...),
		PromotionServiceTopUpProcedure:               connect.NewUnaryHandler(PromotionServiceTopUpProcedure, svc.TopUp, opts...),
		PromotionServiceListActiveCampaignsProcedure: connect.NewUnaryHandler(PromotionServiceListActiveCampaignsProcedure, svc.ListActiveCampaigns, opts...),
		PromotionServiceGetCampaignProcedure:         connect.NewUnaryHandler(PromotionServiceGetCampaignProcedure, svc.GetCampaign, opts...),
	}

	return "/" + PromotionServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := handlers[r.URL.Path]; ok {
			h.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}

// PromotionServiceClient calls a PromotionService over Connect with the JSON codec
type PromotionServiceClient struct {
	trackFirstLogin     *connect.Client[TrackFirstLoginRequest, TrackFirstLoginResponse]
	reportFirstLogin    *connect.Client[ReportFirstLoginRequest, ReportFirstLoginResponse]
	checkEligibility    *connect.Client[CheckEligibilityRequest, CheckEligibilityResponse]
	listVouchers        *connect.Client[ListVouchersRequest, ListVouchersResponse]
	listParticipations  *connect.Client[ListParticipationsRequest, ListParticipationsResponse]
	validateVoucher     *connect.Client[ValidateVoucherRequest, ValidateVoucherResponse]
	redeemVoucher       *connect.Client[RedeemVoucherRequest, TopUpResponse]
	topUp               *connect.Client[TopUpRequest, TopUpResponse]
	listActiveCampaigns *connect.Client[ListActiveCampaignsRequest, ListActiveCampaignsResponse]
	getCampaign         *connect.Client[GetCampaignRequest, GetCampaignResponse]
}

// NewPromotionServiceClient constructs a client. baseURL is the server root, for
// example http://localhost:8080.
func NewPromotionServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *PromotionServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{WithJSON()}, opts...)
	return &PromotionServiceClient{
		trackFirstLogin:     connect.NewClient[TrackFirstLoginRequest, TrackFirstLoginResponse](httpClient, baseURL+PromotionServiceTrackFirstLoginProcedure, opts...),
		reportFirstLogin:    connect.NewClient[ReportFirstLoginRequest, ReportFirstLoginResponse](httpClient, baseURL+PromotionServiceReportFirstLoginProcedure, opts...),
		checkEligibility:    connect.NewClient[CheckEligibilityRequest, CheckEligibilityResponse](httpClient, baseURL+PromotionServiceCheckEligibilityProcedure, opts...),
		listVouchers:        connect.NewClient[ListVouchersRequest, ListVouchersResponse](httpClient, baseURL+PromotionServiceListVouchersProcedure, opts...),
		listParticipations:  connect.NewClient[ListParticipationsRequest, ListParticipationsResponse](httpClient, baseURL+PromotionServiceListParticipationsProcedure, opts...),
		validateVoucher:     connect.NewClient[ValidateVoucherRequest, ValidateVoucherResponse](httpClient, baseURL+PromotionServiceValidateVoucherProcedure, opts...),
		redeemVoucher:       connect.NewClient[RedeemVoucherRequest, TopUpResponse](httpClient, baseURL+PromotionServiceRedeemVoucherProcedure, opts...),
		topUp:               connect.NewClient[TopUpRequest, TopUpResponse](httpClient, baseURL+PromotionServiceTopUpProcedure, opts...),
		listActiveCampaigns: connect.NewClient[ListActiveCampaignsRequest, ListActiveCampaignsResponse](httpClient, baseURL+PromotionServiceListActiveCampaignsProcedure, opts...),
		getCampaign:         connect.NewClient[GetCampaignRequest, GetCampaignResponse](httpClient, baseURL+PromotionServiceGetCampaignProcedure, opts...),
	}
}

func (c *PromotionServiceClient) TrackFirstLogin(ctx context.Context, req *connect.Request[TrackFirstLoginRequest]) (*connect.Response[TrackFirstLoginResponse], error) {
	return c.trackFirstLogin.CallUnary(ctx, req)
}

func (c *PromotionServiceClient) ReportFirstLogin(ctx context.Context, req *connect.Request[ReportFirstLoginRequest]) (*connect.Response[ReportFirstLoginResponse], error) {
	return c.reportFirstLogin.CallUnary(ctx, req)
}

func (c *PromotionServiceClient) CheckEligibility(ctx context.Context, req *connect.Request[CheckEligibilityRequest]) (*connect.Response[CheckEligibilityResponse], error) {
	return c.checkEligibility.CallUnary(ctx, req)
}

func (c *PromotionServiceClient) ListVouchers(ctx context.Context, req *connect.Request[ListVouchersRequest]) (*connect.Response[ListVouchersResponse], error) {
	return c.listVouchers.CallUnary(ctx, req)
}

func (c *PromotionServiceClient) ListParticipations(ctx context.Context, req *connect.Request[ListParticipationsRequest]) (*connect.Response[ListParticipationsResponse], error) {
	return c.listParticipations.CallUnary(ctx, req)
}

func (c *PromotionServiceClient) ValidateVoucher(ctx context.Context, req *connect.Request[ValidateVoucherRequest]) (*connect.Response[ValidateVoucherResponse], error) {
	return c.validateVoucher.CallUnary(ctx, req)
}

func (c *PromotionServiceClient) RedeemVoucher(ctx context.Context, req *connect.Request[RedeemVoucherRequest]) (*connect.Response[TopUpResponse], error) {
	return c.redeemVoucher.CallUnary(ctx, req)
}

func (c *PromotionServiceClient) TopUp(ctx context.Context, req *connect.Request[TopUpRequest]) (*connect.Response[TopUpResponse], error) {
	return c.topUp.CallUnary(ctx, req)
}

func (c *PromotionServiceClient) ListActiveCampaigns(ctx context.Context, req *connect.Request[ListActiveCampaignsRequest]) (*connect.Response[ListActiveCampaignsResponse], error) {
	return c.listActiveCampaigns.CallUnary(ctx, req)
}

func (c *PromotionServiceClient) GetCampaign(ctx context.Context, req *connect.Request[GetCampaignRequest]) (*connect.Response[GetCampaignResponse], error) {
	return c.getCampaign.CallUnary(ctx, req)
}
