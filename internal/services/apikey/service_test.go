package apikey

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pepe57/OpenGateLLM/internal/models"
	"github.com/pepe57/OpenGateLLM/internal/services/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := database.NewSQLite("")
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })
	return NewService(db, "master-secret")
}

func TestCreateReturnsPlaintextKeyOnce(t *testing.T) {
	svc := newTestService(t)

	resp, err := svc.Create(context.Background(), &models.APIKeyCreateRequest{Name: "ci"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.Key, "ogl_"))
	assert.Equal(t, resp.Key[:12], resp.KeyPrefix)

	keys, total, err := svc.List(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, keys, 1)
	assert.Empty(t, keys[0].Key)
}

func TestValidateResolvesUserInfo(t *testing.T) {
	svc := newTestService(t)
	rpm := int64(10)
	budget := 25.0

	resp, err := svc.Create(context.Background(), &models.APIKeyCreateRequest{
		Name:     "app",
		LimitRPM: &rpm,
		Budget:   &budget,
		Priority: 2,
	})
	require.NoError(t, err)

	user, err := svc.Validate(context.Background(), resp.Key)
	require.NoError(t, err)
	assert.Equal(t, resp.ID, user.KeyID)
	assert.Equal(t, "app", user.Name)
	assert.False(t, user.Master)
	assert.Equal(t, 2, user.Priority)
	require.NotNil(t, user.LimitRPM)
	assert.Equal(t, int64(10), *user.LimitRPM)
	require.NotNil(t, user.Budget)
	assert.Equal(t, 25.0, *user.Budget)
}

func TestValidateRejectsUnknownKey(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Validate(context.Background(), "ogl_nonsense")
	require.Error(t, err)
	assert.Equal(t, 403, models.SanitizeError(err).GetStatusCode())
}

func TestValidateMasterKey(t *testing.T) {
	svc := newTestService(t)

	user, err := svc.Validate(context.Background(), "master-secret")
	require.NoError(t, err)
	assert.True(t, user.Master)
	assert.True(t, user.Admin)
}

func TestValidateRejectsExpiredKey(t *testing.T) {
	svc := newTestService(t)
	past := time.Now().Add(-time.Hour)

	resp, err := svc.Create(context.Background(), &models.APIKeyCreateRequest{Name: "old", ExpiresAt: &past})
	require.NoError(t, err)

	_, err = svc.Validate(context.Background(), resp.Key)
	require.Error(t, err)
	assert.Equal(t, 403, models.SanitizeError(err).GetStatusCode())
}

func TestRevokedKeyStopsValidating(t *testing.T) {
	svc := newTestService(t)

	resp, err := svc.Create(context.Background(), &models.APIKeyCreateRequest{Name: "ci"})
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(context.Background(), resp.ID))

	_, err = svc.Validate(context.Background(), resp.Key)
	require.Error(t, err)
}

func TestRevokeUnknownKeyIs404(t *testing.T) {
	svc := newTestService(t)

	err := svc.Revoke(context.Background(), 12345)
	require.Error(t, err)
	assert.Equal(t, 404, models.SanitizeError(err).GetStatusCode())
}

func TestChargeDeductsBudget(t *testing.T) {
	svc := newTestService(t)
	budget := 10.0

	resp, err := svc.Create(context.Background(), &models.APIKeyCreateRequest{Name: "paid", Budget: &budget})
	require.NoError(t, err)
	require.NoError(t, svc.Charge(context.Background(), resp.ID, 2.5))

	user, err := svc.Validate(context.Background(), resp.Key)
	require.NoError(t, err)
	require.NotNil(t, user.Budget)
	assert.InDelta(t, 7.5, *user.Budget, 1e-9)
}

func TestChargeSkipsUnbudgetedKeys(t *testing.T) {
	svc := newTestService(t)

	resp, err := svc.Create(context.Background(), &models.APIKeyCreateRequest{Name: "free"})
	require.NoError(t, err)
	require.NoError(t, svc.Charge(context.Background(), resp.ID, 2.5))

	user, err := svc.Validate(context.Background(), resp.Key)
	require.NoError(t, err)
	assert.Nil(t, user.Budget)
}
