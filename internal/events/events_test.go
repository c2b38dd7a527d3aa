package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kkkkikiki/promotion/internal/service"
)

type enrollerMock struct {
	enrollFn func(ctx context.Context, req service.EnrollRequest) (*service.EnrollResult, error)
	calls    []service.EnrollRequest
}

func (m *enrollerMock) Enroll(ctx context.Context, req service.EnrollRequest) (*service.EnrollResult, error) {
	m.calls = append(m.calls, req)
	return m.enrollFn(ctx, req)
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueUserEvents}, nil
}

type inspectorMock struct {
	info    *asynq.QueueInfo
	infoErr error
	retried int
}

func (m *inspectorMock) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return m.info, m.infoErr
}

func (m *inspectorMock) RunAllArchivedTasks(string) (int, error) {
	return m.retried, nil
}

func firstLoginTask(t *testing.T, userID int64) *asynq.Task {
	t.Helper()
	task, err := NewFirstLoginTask(FirstLoginPayload{EventID: "evt-1", UserID: userID, OccurredAt: time.Now()})
	require.NoError(t, err)
	return task
}

func TestHandleFirstLoginEnrolls(t *testing.T) {
	enroller := &enrollerMock{enrollFn: func(context.Context, service.EnrollRequest) (*service.EnrollResult, error) {
		return &service.EnrollResult{Eligible: true, CampaignID: 1, ParticipationOrder: 3, VoucherCode: "CAKE-ABCDEFGH"}, nil
	}}
	h := NewHandler(enroller, 0, zap.NewNop())

	require.NoError(t, h.HandleFirstLogin(context.Background(), firstLoginTask(t, 42)))
	require.Len(t, enroller.calls, 1)
	require.Equal(t, int64(42), enroller.calls[0].UserID)
	require.Nil(t, enroller.calls[0].CampaignID)
}

func TestHandleFirstLoginSwallowsRejections(t *testing.T) {
	cases := []struct {
		name string
		res  *service.EnrollResult
		err  error
	}{
		{name: "already participated", res: &service.EnrollResult{Reason: service.ReasonAlreadyParticipated}},
		{name: "campaign full", res: &service.EnrollResult{Reason: service.ReasonCampaignFull}},
		{name: "non retryable error", err: service.ErrNoActiveCampaign},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enroller := &enrollerMock{enrollFn: func(context.Context, service.EnrollRequest) (*service.EnrollResult, error) {
				return tc.res, tc.err
			}}
			h := NewHandler(enroller, 0, zap.NewNop())
			require.NoError(t, h.HandleFirstLogin(context.Background(), firstLoginTask(t, 42)))
		})
	}
}

func TestHandleFirstLoginRetriesLockTimeout(t *testing.T) {
	enroller := &enrollerMock{enrollFn: func(context.Context, service.EnrollRequest) (*service.EnrollResult, error) {
		return nil, service.ErrLockTimeout
	}}
	h := NewHandler(enroller, 0, zap.NewNop())

	err := h.HandleFirstLogin(context.Background(), firstLoginTask(t, 42))
	require.ErrorIs(t, err, service.ErrLockTimeout)
	require.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleFirstLoginBoundsEnrollment(t *testing.T) {
	enroller := &enrollerMock{enrollFn: func(ctx context.Context, _ service.EnrollRequest) (*service.EnrollResult, error) {
		_, ok := ctx.Deadline()
		require.True(t, ok)
		<-ctx.Done()
		return nil, fmt.Errorf("failed to lock campaign: %w", ctx.Err())
	}}
	h := NewHandler(enroller, 20*time.Millisecond, zap.NewNop())

	err := h.HandleFirstLogin(context.Background(), firstLoginTask(t, 42))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleFirstLoginSkipsBadPayload(t *testing.T) {
	enroller := &enrollerMock{}
	h := NewHandler(enroller, 0, zap.NewNop())

	err := h.HandleFirstLogin(context.Background(), asynq.NewTask(TypeUserFirstLogin, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = h.HandleFirstLogin(context.Background(), firstLoginTask(t, 0))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, enroller.calls)
}

func TestPublishFirstLogin(t *testing.T) {
	enq := &fakeEnqueuer{}
	p := NewPublisher(enq, zap.NewNop())

	taskID, err := p.PublishFirstLogin(context.Background(), 9, time.Time{})
	require.NoError(t, err)
	require.Equal(t, "task-1", taskID)
	require.Len(t, enq.tasks, 1)
	require.Equal(t, TypeUserFirstLogin, enq.tasks[0].Type())

	var payload FirstLoginPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	require.Equal(t, int64(9), payload.UserID)
	require.NotEmpty(t, payload.EventID)
	require.False(t, payload.OccurredAt.IsZero())
}

func TestPublishFirstLoginEnqueueError(t *testing.T) {
	p := NewPublisher(&fakeEnqueuer{err: errors.New("redis down")}, zap.NewNop())

	_, err := p.PublishFirstLogin(context.Background(), 9, time.Now())
	require.Error(t, err)
}

func TestRetryDelayBacksOff(t *testing.T) {
	require.Equal(t, 2*time.Second, RetryDelay(0, nil, nil))
	require.Equal(t, 4*time.Second, RetryDelay(1, nil, nil))
	require.Equal(t, 8*time.Second, RetryDelay(2, nil, nil))
}

func TestAdminQueueStats(t *testing.T) {
	inspector := &inspectorMock{info: &asynq.QueueInfo{Queue: QueueUserEvents, Size: 5, Pending: 3, Archived: 2}}
	h := NewAdminHandler(inspector, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queue-stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats QueueStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	require.Equal(t, QueueUserEvents, stats.Queue)
	require.Equal(t, 3, stats.Pending)
	require.Equal(t, 2, stats.Archived)
}

func TestAdminQueueStatsUnknownQueue(t *testing.T) {
	h := NewAdminHandler(&inspectorMock{infoErr: asynq.ErrQueueNotFound}, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queue-stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRetryFailed(t *testing.T) {
	h := NewAdminHandler(&inspectorMock{retried: 4}, zap.NewNop())

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/retry-failed", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Retried int `json:"retried"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, 4, body.Retried)
}
