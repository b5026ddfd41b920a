package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/pepe57/OpenGateLLM/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// Strategy selects the counting algorithm backing the rate limits.
type Strategy string

const (
	FixedWindow   Strategy = "fixed_window"
	SlidingWindow Strategy = "sliding_window"
)

const keyPrefix = "ogl_rt:"

// Window durations per limit type.
var windows = map[models.LimitType]time.Duration{
	models.LimitRPM: time.Minute,
	models.LimitRPD: 24 * time.Hour,
	models.LimitTPM: time.Minute,
	models.LimitTPD: 24 * time.Hour,
}

// Lua scripts for atomic limit checks. Both return {allowed, remaining}
// where allowed is 1 or -1.
const (
	// fixedWindowScript counts hits in a single expiring counter.
	// KEYS[1]: counter key
	// ARGV[1]: limit, ARGV[2]: cost, ARGV[3]: window in ms
	fixedWindowScript = `
		local limit = tonumber(ARGV[1])
		local cost = tonumber(ARGV[2])
		local window = tonumber(ARGV[3])
		local current = tonumber(redis.call('GET', KEYS[1]) or '0')
		if current + cost > limit then
			return {-1, limit - current}
		end
		current = redis.call('INCRBY', KEYS[1], cost)
		if redis.call('PTTL', KEYS[1]) < 0 then
			redis.call('PEXPIRE', KEYS[1], window)
		end
		return {1, limit - current}
	`

	// slidingWindowScript weights the previous window's counter by its
	// remaining overlap with the sliding window.
	// KEYS[1]: current bucket, KEYS[2]: previous bucket
	// ARGV[1]: limit, ARGV[2]: cost, ARGV[3]: window in ms, ARGV[4]: ms elapsed in current bucket
	slidingWindowScript = `
		local limit = tonumber(ARGV[1])
		local cost = tonumber(ARGV[2])
		local window = tonumber(ARGV[3])
		local elapsed = tonumber(ARGV[4])
		local current = tonumber(redis.call('GET', KEYS[1]) or '0')
		local previous = tonumber(redis.call('GET', KEYS[2]) or '0')
		local weighted = current + previous * (window - elapsed) / window
		if weighted + cost > limit then
			return {-1, math.floor(limit - weighted)}
		end
		redis.call('INCRBY', KEYS[1], cost)
		redis.call('PEXPIRE', KEYS[1], window * 2)
		return {1, math.floor(limit - weighted - cost)}
	`
)

// Service enforces per-key per-router rate limits in Redis.
type Service struct {
	rdb      redis.UniversalClient
	strategy Strategy
	fixed    *redis.Script
	sliding  *redis.Script
	now      func() time.Time
}

func New(rdb redis.UniversalClient, strategy Strategy) *Service {
	return &Service{
		rdb:      rdb,
		strategy: strategy,
		fixed:    redis.NewScript(fixedWindowScript),
		sliding:  redis.NewScript(slidingWindowScript),
		now:      time.Now,
	}
}

func counterKey(t models.LimitType, keyID, routerID uint) string {
	return fmt.Sprintf("%s%s:%d:%d", keyPrefix, t, keyID, routerID)
}

// hit consumes cost from one limit window. A Redis failure is reported as
// allowed so an unavailable limiter store never blocks traffic.
func (s *Service) hit(ctx context.Context, t models.LimitType, keyID, routerID uint, limit, cost int64) (bool, int64, error) {
	window := windows[t]
	key := counterKey(t, keyID, routerID)

	var res any
	var err error
	switch s.strategy {
	case SlidingWindow:
		now := s.now().UnixMilli()
		bucket := now - now%window.Milliseconds()
		curr := fmt.Sprintf("%s:%d", key, bucket)
		prev := fmt.Sprintf("%s:%d", key, bucket-window.Milliseconds())
		res, err = s.sliding.Run(ctx, s.rdb, []string{curr, prev},
			limit, cost, window.Milliseconds(), now-bucket).Result()
	default:
		res, err = s.fixed.Run(ctx, s.rdb, []string{key},
			limit, cost, window.Milliseconds()).Result()
	}
	if err != nil {
		return true, 0, err
	}

	vals, ok := res.([]any)
	if !ok || len(vals) != 2 {
		return true, 0, fmt.Errorf("unexpected limiter script reply %T", res)
	}
	allowed, _ := vals[0].(int64)
	remaining, _ := vals[1].(int64)
	if remaining < 0 {
		remaining = 0
	}
	return allowed == 1, remaining, nil
}

// check applies one limit type for a user against a router.
func (s *Service) check(ctx context.Context, user models.UserInfo, routerID uint, t models.LimitType, cost int64) error {
	limit := user.Limit(t)
	if limit == nil {
		return nil
	}
	if *limit == 0 {
		return models.NewInsufficientPermissionError(
			fmt.Sprintf("%s limit is zero for this API key", t))
	}

	allowed, remaining, err := s.hit(ctx, t, user.KeyID, routerID, *limit, cost)
	if err != nil {
		// Fail open: a degraded Redis must not take the gateway down.
		fiberlog.Warnf("rate limiter unavailable, allowing request: %v", err)
		return nil
	}
	if !allowed {
		return models.NewRateLimitError(
			fmt.Sprintf("%s limit of %d exceeded, %d remaining in window", t, *limit, remaining))
	}
	return nil
}

// CheckRequestLimits consumes one request from the rpm and rpd windows.
func (s *Service) CheckRequestLimits(ctx context.Context, user models.UserInfo, routerID uint) error {
	if user.Master {
		return nil
	}
	if err := s.check(ctx, user, routerID, models.LimitRPM, 1); err != nil {
		return err
	}
	return s.check(ctx, user, routerID, models.LimitRPD, 1)
}

// CheckTokenLimits consumes prompt tokens from the tpm and tpd windows.
func (s *Service) CheckTokenLimits(ctx context.Context, user models.UserInfo, routerID uint, promptTokens int64) error {
	if user.Master {
		return nil
	}
	if err := s.check(ctx, user, routerID, models.LimitTPM, promptTokens); err != nil {
		return err
	}
	return s.check(ctx, user, routerID, models.LimitTPD, promptTokens)
}

// Remaining reports the budget left in a window without consuming from it.
func (s *Service) Remaining(ctx context.Context, user models.UserInfo, routerID uint, t models.LimitType) (int64, error) {
	limit := user.Limit(t)
	if limit == nil {
		return -1, nil
	}
	current, err := s.rdb.Get(ctx, counterKey(t, user.KeyID, routerID)).Int64()
	if err != nil && err != redis.Nil {
		return 0, err
	}
	remaining := *limit - current
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
