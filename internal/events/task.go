// Package events carries the first-login trigger from producers to the allocator over
// an asynq queue. Delivery is at-least-once; a redelivered event is rejected by the
// allocator as an existing participation and dropped.
package events

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeUserFirstLogin = "user:first_login"
	QueueUserEvents    = "user-events"

	MaxRetry = 3
)

type FirstLoginPayload struct {
	EventID    string    `json:"event_id"`
	UserID     int64     `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewFirstLoginTask(p FirstLoginPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeUserFirstLogin, payload,
		asynq.Queue(QueueUserEvents),
		asynq.MaxRetry(MaxRetry)), nil
}

// RetryDelay backs off exponentially from two seconds
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	if n < 0 {
		n = 0
	}
	if n > 10 {
		n = 10
	}
	return 2 * time.Second << uint(n)
}
