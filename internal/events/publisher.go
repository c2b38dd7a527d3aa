package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Enqueuer is the part of *asynq.Client the publisher needs
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Publisher emits first-login events
type Publisher struct {
	client Enqueuer
	logger *zap.Logger
}

func NewPublisher(client Enqueuer, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, logger: logger}
}

// PublishFirstLogin enqueues a first-login event and returns its task ID
func (p *Publisher) PublishFirstLogin(ctx context.Context, userID int64, occurredAt time.Time) (string, error) {
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	payload := FirstLoginPayload{
		EventID:    uuid.NewString(),
		UserID:     userID,
		OccurredAt: occurredAt,
	}

	task, err := NewFirstLoginTask(payload)
	if err != nil {
		return "", fmt.Errorf("failed to build first-login task: %w", err)
	}

	info, err := p.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue first-login task: %w", err)
	}

	taskID := payload.EventID
	if info != nil {
		taskID = info.ID
	}
	p.logger.Info("first-login event published",
		zap.Int64("user_id", userID),
		zap.String("event_id", payload.EventID),
		zap.String("task_id", taskID))

	return taskID, nil
}
