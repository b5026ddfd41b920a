package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/pepe57/OpenGateLLM/internal/models"
	"github.com/pepe57/OpenGateLLM/internal/services/database"
	"github.com/pepe57/OpenGateLLM/internal/services/routing"

	fiberlog "github.com/gofiber/fiber/v2/log"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

// Worker consumes routing jobs and answers them through Redis result keys.
// One consumer goroutine runs per router queue; new routers are picked up
// by periodic rescans.
type Worker struct {
	db       *database.DB
	rdb      redis.UniversalClient
	broker   *Broker
	balancer *routing.Balancer

	rescan time.Duration

	mu      sync.Mutex
	serving map[uint]struct{}
}

func NewWorker(db *database.DB, rdb redis.UniversalClient, b *Broker, balancer *routing.Balancer) *Worker {
	return &Worker{
		db:       db,
		rdb:      rdb,
		broker:   b,
		balancer: balancer,
		rescan:   30 * time.Second,
		serving:  make(map[uint]struct{}),
	}
}

// Run blocks until the context is canceled, keeping one consumer per
// router queue alive.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.rescan)
	defer ticker.Stop()

	w.spawnConsumers(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.spawnConsumers(ctx)
		}
	}
}

func (w *Worker) spawnConsumers(ctx context.Context) {
	var routers []models.Router
	if err := w.db.WithContext(ctx).Find(&routers).Error; err != nil {
		fiberlog.Errorf("failed to list routers: %v", err)
		return
	}

	for _, router := range routers {
		w.mu.Lock()
		_, active := w.serving[router.ID]
		if !active {
			w.serving[router.ID] = struct{}{}
		}
		w.mu.Unlock()
		if active {
			continue
		}

		go w.consume(ctx, router.ID)
	}
}

func (w *Worker) consume(ctx context.Context, routerID uint) {
	defer func() {
		w.mu.Lock()
		delete(w.serving, routerID)
		w.mu.Unlock()
	}()

	queue := QueueName(routerID)
	deliveries, err := w.broker.Consume(queue)
	if err != nil {
		fiberlog.Errorf("failed to consume %s: %v", queue, err)
		return
	}
	fiberlog.Infof("consuming routing jobs from %s", queue)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-deliveries:
			if !ok {
				return
			}
			w.handle(ctx, msg)
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg amqp.Delivery) {
	var job RoutingJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		fiberlog.Errorf("dropping malformed routing job: %v", err)
		_ = msg.Nack(false, false)
		return
	}

	result := w.route(ctx, job)
	raw, err := json.Marshal(result)
	if err != nil {
		fiberlog.Errorf("failed to encode routing result for job %s: %v", job.ID, err)
		_ = msg.Nack(false, false)
		return
	}
	if err := w.rdb.Set(ctx, ResultKey(job.ID), raw, defaultResultTTL).Err(); err != nil {
		fiberlog.Errorf("failed to store routing result for job %s: %v", job.ID, err)
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

func (w *Worker) route(ctx context.Context, job RoutingJob) RoutingResult {
	var router models.Router
	err := w.db.WithContext(ctx).Preload("Providers").First(&router, job.RouterID).Error
	if err != nil {
		return RoutingResult{Error: "model not found", ErrorCode: 404}
	}

	pickCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	provider, err := w.balancer.Pick(pickCtx, router, router.Providers)
	if err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			return RoutingResult{Error: appErr.Message, ErrorCode: appErr.GetStatusCode()}
		}
		return RoutingResult{Error: err.Error(), ErrorCode: 500}
	}
	return RoutingResult{ProviderID: provider.ID}
}
