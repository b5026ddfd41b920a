package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	queuePrefix      = "ogl_qr."
	resultKeyPrefix  = "ogl_qr:result:"
	defaultResultTTL = 5 * time.Minute
)

// RoutingJob asks a worker to pick a provider for one request.
type RoutingJob struct {
	ID       string `json:"id"`
	RouterID uint   `json:"router_id"`
}

// RoutingResult is the worker's answer, stored under the job's result key.
type RoutingResult struct {
	ProviderID uint   `json:"provider_id,omitempty"`
	ErrorCode  int    `json:"error_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Broker wraps one AMQP connection with per-router priority queues.
type Broker struct {
	url         string
	maxPriority int

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]struct{}
}

func New(url string, maxPriority int) *Broker {
	return &Broker{
		url:         url,
		maxPriority: maxPriority,
		declared:    make(map[string]struct{}),
	}
}

// QueueName is the routing queue for one router.
func QueueName(routerID uint) string {
	return fmt.Sprintf("%s%d", queuePrefix, routerID)
}

// ResultKey is the Redis key a job's result is stored under.
func ResultKey(jobID string) string {
	return resultKeyPrefix + jobID
}

func (b *Broker) channel() (*amqp.Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ch != nil && !b.ch.IsClosed() {
		return b.ch, nil
	}

	conn, err := amqp.Dial(b.url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	b.conn = conn
	b.ch = ch
	b.declared = make(map[string]struct{})
	return ch, nil
}

func (b *Broker) declareQueue(ch *amqp.Channel, name string) error {
	b.mu.Lock()
	_, done := b.declared[name]
	b.mu.Unlock()
	if done {
		return nil
	}

	_, err := ch.QueueDeclare(name, true, false, false, false, amqp.Table{
		"x-max-priority": int32(b.maxPriority),
	})
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}

	b.mu.Lock()
	b.declared[name] = struct{}{}
	b.mu.Unlock()
	return nil
}

// Publish enqueues a routing job with the caller's priority.
func (b *Broker) Publish(ctx context.Context, job RoutingJob, priority int) error {
	ch, err := b.channel()
	if err != nil {
		return err
	}

	queue := QueueName(job.RouterID)
	if err := b.declareQueue(ch, queue); err != nil {
		return err
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode routing job: %w", err)
	}

	if priority < 0 {
		priority = 0
	}
	if priority > b.maxPriority {
		priority = b.maxPriority
	}

	return ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Priority:     uint8(priority),
		Body:         body,
	})
}

// Consume delivers jobs from one router's queue.
func (b *Broker) Consume(queue string) (<-chan amqp.Delivery, error) {
	ch, err := b.channel()
	if err != nil {
		return nil, err
	}
	if err := b.declareQueue(ch, queue); err != nil {
		return nil, err
	}
	return ch.Consume(queue, "", false, false, false, false, nil)
}

// Close shuts down the AMQP connection.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ch != nil {
		b.ch.Close()
		b.ch = nil
	}
	if b.conn != nil {
		err := b.conn.Close()
		b.conn = nil
		return err
	}
	return nil
}
