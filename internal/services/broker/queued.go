package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pepe57/OpenGateLLM/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// QueuedBalancer routes provider selection through the broker so workers
// apply the strategy and QoS policy in priority order. The result comes
// back through a short-lived Redis key.
type QueuedBalancer struct {
	broker  *Broker
	rdb     redis.UniversalClient
	timeout time.Duration
	poll    time.Duration
}

func NewQueuedBalancer(b *Broker, rdb redis.UniversalClient, timeout time.Duration) *QueuedBalancer {
	return &QueuedBalancer{
		broker:  b,
		rdb:     rdb,
		timeout: timeout,
		poll:    100 * time.Millisecond,
	}
}

// Pick publishes a routing job and waits for a worker's decision.
func (q *QueuedBalancer) Pick(ctx context.Context, router models.Router, user models.UserInfo) (uint, error) {
	job := RoutingJob{ID: uuid.NewString(), RouterID: router.ID}
	if err := q.broker.Publish(ctx, job, user.Priority); err != nil {
		return 0, models.NewInternalError("failed to enqueue routing job", err)
	}

	deadline := time.NewTimer(q.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()

	key := ResultKey(job.ID)
	for {
		select {
		case <-ctx.Done():
			return 0, models.NewTimeoutError("queued routing", ctx.Err())
		case <-deadline.C:
			return 0, models.NewModelTooBusyError("model " + router.Name + " is too busy")
		case <-ticker.C:
			raw, err := q.rdb.Get(ctx, key).Bytes()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return 0, models.NewInternalError("failed to read routing result", err)
			}

			var result RoutingResult
			if err := json.Unmarshal(raw, &result); err != nil {
				return 0, models.NewInternalError("invalid routing result", err)
			}
			q.rdb.Del(ctx, key)

			if result.Error != "" {
				return 0, &models.AppError{
					Type:       models.ErrorTypeTooBusy,
					Message:    result.Error,
					StatusCode: result.ErrorCode,
					Retryable:  true,
				}
			}
			return result.ProviderID, nil
		}
	}
}
