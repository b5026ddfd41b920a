package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pepe57/OpenGateLLM/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	seriesPrefix = "ogl_ts:"
	gaugePrefix  = "ogl_mg:"
)

// Store keeps provider performance samples in Redis time series and the
// per-provider inflight gauges used by QoS policies.
type Store struct {
	rdb       redis.UniversalClient
	retention time.Duration

	mu      sync.Mutex
	created map[string]struct{}
}

func NewStore(rdb redis.UniversalClient, retention time.Duration) *Store {
	return &Store{
		rdb:       rdb,
		retention: retention,
		created:   make(map[string]struct{}),
	}
}

func seriesKey(metric models.Metric, providerID uint) string {
	return fmt.Sprintf("%s%s:%d", seriesPrefix, metric, providerID)
}

func gaugeKey(metric models.Metric, providerID uint) string {
	return fmt.Sprintf("%s%s:%d", gaugePrefix, metric, providerID)
}

// ensureSeries lazily creates the time series with the store's retention.
// An already existing key is not an error.
func (s *Store) ensureSeries(ctx context.Context, key string) error {
	s.mu.Lock()
	_, ok := s.created[key]
	s.mu.Unlock()
	if ok {
		return nil
	}

	err := s.rdb.Do(ctx, "TS.CREATE", key,
		"RETENTION", s.retention.Milliseconds(),
		"DUPLICATE_POLICY", "LAST").Err()
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return err
	}

	s.mu.Lock()
	s.created[key] = struct{}{}
	s.mu.Unlock()
	return nil
}

// Record appends one sample to a provider's series. Metric recording is
// advisory, failures are logged and swallowed.
func (s *Store) Record(ctx context.Context, metric models.Metric, providerID uint, value float64) {
	key := seriesKey(metric, providerID)
	if err := s.ensureSeries(ctx, key); err != nil {
		fiberlog.Warnf("failed to create series %s: %v", key, err)
		return
	}
	if err := s.rdb.Do(ctx, "TS.ADD", key, "*", value).Err(); err != nil {
		fiberlog.Warnf("failed to record %s for provider %d: %v", metric, providerID, err)
	}
}

// RecordTTFT stores a time-to-first-token sample in milliseconds.
func (s *Store) RecordTTFT(ctx context.Context, providerID uint, d time.Duration) {
	s.Record(ctx, models.MetricTTFT, providerID, float64(d.Milliseconds()))
}

// RecordLatency stores an end-to-end latency sample in milliseconds.
func (s *Store) RecordLatency(ctx context.Context, providerID uint, d time.Duration) {
	s.Record(ctx, models.MetricLatency, providerID, float64(d.Milliseconds()))
}

// Samples returns the values recorded for a provider within the retention
// window, oldest first.
func (s *Store) Samples(ctx context.Context, metric models.Metric, providerID uint) ([]float64, error) {
	key := seriesKey(metric, providerID)
	to := time.Now().UnixMilli()
	from := to - s.retention.Milliseconds()

	res, err := s.rdb.Do(ctx, "TS.RANGE", key, from, to).Result()
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") {
			return nil, nil
		}
		return nil, err
	}

	rows, ok := res.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected TS.RANGE reply %T", res)
	}
	values := make([]float64, 0, len(rows))
	for _, row := range rows {
		pair, ok := row.([]any)
		if !ok || len(pair) != 2 {
			continue
		}
		switch v := pair[1].(type) {
		case string:
			var f float64
			if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
				values = append(values, f)
			}
		case float64:
			values = append(values, v)
		}
	}
	return values, nil
}

// P95 is the 95th percentile of a provider's samples in the retention
// window. A provider with no samples yields ok=false.
func (s *Store) P95(ctx context.Context, metric models.Metric, providerID uint) (float64, bool, error) {
	values, err := s.Samples(ctx, metric, providerID)
	if err != nil {
		return 0, false, err
	}
	if len(values) == 0 {
		return 0, false, nil
	}
	sort.Float64s(values)
	idx := int(float64(len(values))*0.95 + 0.5)
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return values[idx], true, nil
}

// IncInflight bumps the provider's inflight gauge and returns the new value.
func (s *Store) IncInflight(ctx context.Context, providerID uint) (int64, error) {
	return s.rdb.Incr(ctx, gaugeKey(models.MetricInflight, providerID)).Result()
}

// DecInflight releases one inflight slot. The gauge never goes below zero.
func (s *Store) DecInflight(ctx context.Context, providerID uint) {
	key := gaugeKey(models.MetricInflight, providerID)
	n, err := s.rdb.Decr(ctx, key).Result()
	if err != nil {
		fiberlog.Warnf("failed to decrement inflight gauge for provider %d: %v", providerID, err)
		return
	}
	if n < 0 {
		s.rdb.Set(ctx, key, 0, 0)
	}
}

// Inflight reads the provider's current inflight count.
func (s *Store) Inflight(ctx context.Context, providerID uint) (float64, error) {
	v, err := s.rdb.Get(ctx, gaugeKey(models.MetricInflight, providerID)).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}
