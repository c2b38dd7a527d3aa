package events

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewServer creates the worker server consuming the user-events queue over the shared
// redis client
func NewServer(rdb redis.UniversalClient, concurrency int, logger *zap.Logger) *asynq.Server {
	return asynq.NewServerFromRedisClient(
		rdb,
		asynq.Config{
			Concurrency:    concurrency,
			RetryDelayFunc: RetryDelay,
			Queues: map[string]int{
				QueueUserEvents: 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Error("asynq task failed",
					zap.String("task_type", task.Type()),
					zap.Int("retried", retried),
					zap.Int("max_retry", maxRetry),
					zap.Error(err))
			}),
			Logger: logger.Sugar(),
		},
	)
}
