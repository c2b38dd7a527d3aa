package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/kkkkikiki/promotion/internal/metrics"
	"github.com/kkkkikiki/promotion/internal/service"
)

// Enroller admits a user into the current first-login campaign
type Enroller interface {
	Enroll(ctx context.Context, req service.EnrollRequest) (*service.EnrollResult, error)
}

// Handler consumes first-login tasks
type Handler struct {
	enroller Enroller
	timeout  time.Duration
	logger   *zap.Logger
}

// NewHandler bounds each enrollment by timeout, zero leaves it to the task deadline
func NewHandler(enroller Enroller, timeout time.Duration, logger *zap.Logger) *Handler {
	return &Handler{enroller: enroller, timeout: timeout, logger: logger}
}

// Register binds the handler on mux
func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeUserFirstLogin, h.HandleFirstLogin)
}

// HandleFirstLogin enrolls the user. Rejections and non-retryable failures are logged
// and acknowledged; only retryable failures go back to the queue.
func (h *Handler) HandleFirstLogin(ctx context.Context, t *asynq.Task) error {
	var p FirstLoginPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		metrics.RecordEventProcessed("dropped")
		return fmt.Errorf("invalid first-login payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.UserID <= 0 {
		metrics.RecordEventProcessed("dropped")
		return fmt.Errorf("invalid user id %d: %w", p.UserID, asynq.SkipRetry)
	}

	log := h.logger.With(zap.Int64("user_id", p.UserID), zap.String("event_id", p.EventID))

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	result, err := h.enroller.Enroll(ctx, service.EnrollRequest{UserID: p.UserID})
	if err != nil {
		if service.IsRetryable(err) {
			metrics.RecordEventProcessed("retry")
			log.Warn("first-login enrollment failed, will retry", zap.Error(err))
			return err
		}
		metrics.RecordEventProcessed("dropped")
		log.Error("first-login enrollment failed", zap.Error(err))
		return nil
	}

	if !result.Eligible {
		metrics.RecordEventProcessed("rejected")
		log.Info("first-login not enrolled",
			zap.String("reason", string(result.Reason)),
			zap.String("message", result.Message))
		return nil
	}

	metrics.RecordEventProcessed("enrolled")
	log.Info("first-login enrolled",
		zap.Int64("campaign_id", result.CampaignID),
		zap.Int32("participation_order", result.ParticipationOrder),
		zap.Bool("voucher_issued", result.VoucherCode != ""))
	return nil
}
