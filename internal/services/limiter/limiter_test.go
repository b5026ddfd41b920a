package limiter

import (
	"context"
	"testing"

	"github.com/pepe57/OpenGateLLM/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, strategy Strategy) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, strategy), mr
}

func limited(rpm int64) models.UserInfo {
	return models.UserInfo{KeyID: 1, Name: "tester", LimitRPM: &rpm}
}

func TestUnlimitedKeyIsNeverThrottled(t *testing.T) {
	svc, _ := newTestService(t, FixedWindow)
	user := models.UserInfo{KeyID: 1, Name: "tester"}

	for range 10 {
		require.NoError(t, svc.CheckRequestLimits(context.Background(), user, 7))
	}
}

func TestZeroLimitDeniesAccess(t *testing.T) {
	svc, _ := newTestService(t, FixedWindow)

	err := svc.CheckRequestLimits(context.Background(), limited(0), 7)
	require.Error(t, err)
	assert.Equal(t, 403, models.SanitizeError(err).GetStatusCode())
}

func TestFixedWindowExhaustion(t *testing.T) {
	svc, _ := newTestService(t, FixedWindow)
	user := limited(2)

	require.NoError(t, svc.CheckRequestLimits(context.Background(), user, 7))
	require.NoError(t, svc.CheckRequestLimits(context.Background(), user, 7))

	err := svc.CheckRequestLimits(context.Background(), user, 7)
	require.Error(t, err)
	appErr := models.SanitizeError(err)
	assert.Equal(t, 429, appErr.GetStatusCode())
	assert.Contains(t, appErr.Message, "rpm limit of 2 exceeded")
	assert.Contains(t, appErr.Message, "0 remaining")
}

func TestFixedWindowResetsAfterExpiry(t *testing.T) {
	svc, mr := newTestService(t, FixedWindow)
	user := limited(1)

	require.NoError(t, svc.CheckRequestLimits(context.Background(), user, 7))
	require.Error(t, svc.CheckRequestLimits(context.Background(), user, 7))

	mr.FastForward(2 * windows[models.LimitRPM])
	require.NoError(t, svc.CheckRequestLimits(context.Background(), user, 7))
}

func TestSlidingWindowExhaustion(t *testing.T) {
	svc, _ := newTestService(t, SlidingWindow)
	user := limited(2)

	require.NoError(t, svc.CheckRequestLimits(context.Background(), user, 7))
	require.NoError(t, svc.CheckRequestLimits(context.Background(), user, 7))
	require.Error(t, svc.CheckRequestLimits(context.Background(), user, 7))
}

func TestTokenLimitsChargePromptTokens(t *testing.T) {
	svc, _ := newTestService(t, FixedWindow)
	tpm := int64(100)
	user := models.UserInfo{KeyID: 3, Name: "tester", LimitTPM: &tpm}

	require.NoError(t, svc.CheckTokenLimits(context.Background(), user, 7, 60))
	require.NoError(t, svc.CheckTokenLimits(context.Background(), user, 7, 40))

	err := svc.CheckTokenLimits(context.Background(), user, 7, 1)
	require.Error(t, err)
	assert.Equal(t, 429, models.SanitizeError(err).GetStatusCode())
}

func TestLimitsAreScopedPerRouter(t *testing.T) {
	svc, _ := newTestService(t, FixedWindow)
	user := limited(1)

	require.NoError(t, svc.CheckRequestLimits(context.Background(), user, 1))
	require.Error(t, svc.CheckRequestLimits(context.Background(), user, 1))
	require.NoError(t, svc.CheckRequestLimits(context.Background(), user, 2))
}

func TestMasterKeyBypassesLimits(t *testing.T) {
	svc, _ := newTestService(t, FixedWindow)
	user := limited(0)
	user.Master = true

	require.NoError(t, svc.CheckRequestLimits(context.Background(), user, 7))
	require.NoError(t, svc.CheckTokenLimits(context.Background(), user, 7, 1_000_000))
}

func TestLimiterFailsOpenWhenRedisIsDown(t *testing.T) {
	svc, mr := newTestService(t, FixedWindow)
	mr.Close()

	require.NoError(t, svc.CheckRequestLimits(context.Background(), limited(1), 7))
}

func TestRemaining(t *testing.T) {
	svc, _ := newTestService(t, FixedWindow)
	user := limited(5)

	require.NoError(t, svc.CheckRequestLimits(context.Background(), user, 7))

	remaining, err := svc.Remaining(context.Background(), user, 7, models.LimitRPM)
	require.NoError(t, err)
	assert.Equal(t, int64(4), remaining)
}
