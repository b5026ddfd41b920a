package apikey

import (
	"context"
	"errors"
	"time"

	"github.com/pepe57/OpenGateLLM/internal/models"
	"github.com/pepe57/OpenGateLLM/internal/services/database"

	"gorm.io/gorm"
)

// Service manages API keys and resolves bearer tokens to user identities.
type Service struct {
	db        *database.DB
	masterKey string
}

func NewService(db *database.DB, masterKey string) *Service {
	return &Service{db: db, masterKey: masterKey}
}

// Create mints a new API key. The clear-text key is only returned once.
func (s *Service) Create(ctx context.Context, req *models.APIKeyCreateRequest) (*models.APIKeyResponse, error) {
	if req.Name == "" {
		return nil, models.NewValidationError("name is required", nil)
	}

	key, err := models.GenerateAPIKey()
	if err != nil {
		return nil, models.NewInternalError("failed to generate API key", err)
	}

	apiKey := &models.APIKey{
		Name:      req.Name,
		KeyHash:   models.HashAPIKey(key),
		KeyPrefix: models.ExtractKeyPrefix(key),
		LimitRPM:  req.LimitRPM,
		LimitRPD:  req.LimitRPD,
		LimitTPM:  req.LimitTPM,
		LimitTPD:  req.LimitTPD,
		Budget:    req.Budget,
		Priority:  req.Priority,
		Admin:     req.Admin,
		IsActive:  true,
		ExpiresAt: req.ExpiresAt,
	}
	if err := s.db.WithContext(ctx).Create(apiKey).Error; err != nil {
		return nil, models.NewInternalError("failed to create API key", err)
	}

	return &models.APIKeyResponse{APIKey: *apiKey, Key: key}, nil
}

// Validate resolves a bearer token. The master key short-circuits into an
// unrestricted identity; everything else is matched by hash.
func (s *Service) Validate(ctx context.Context, key string) (*models.UserInfo, error) {
	if key == "" {
		return nil, models.NewInvalidAPIKeyError()
	}
	if s.masterKey != "" && key == s.masterKey {
		return &models.UserInfo{Name: "master", Master: true, Admin: true}, nil
	}

	var apiKey models.APIKey
	err := s.db.WithContext(ctx).
		Where("key_hash = ? AND is_active = ?", models.HashAPIKey(key), true).
		First(&apiKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewInvalidAPIKeyError()
	}
	if err != nil {
		return nil, models.NewInternalError("failed to validate API key", err)
	}
	if apiKey.Expired() {
		return nil, models.NewInvalidAPIKeyError()
	}

	now := time.Now()
	s.db.Model(&models.APIKey{}).Where("id = ?", apiKey.ID).Update("last_used_at", now)

	return &models.UserInfo{
		KeyID:    apiKey.ID,
		Name:     apiKey.Name,
		Admin:    apiKey.Admin,
		Priority: apiKey.Priority,
		Budget:   apiKey.Budget,
		LimitRPM: apiKey.LimitRPM,
		LimitRPD: apiKey.LimitRPD,
		LimitTPM: apiKey.LimitTPM,
		LimitTPD: apiKey.LimitTPD,
	}, nil
}

// List returns all keys, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]models.APIKeyResponse, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.APIKey{}).Count(&total).Error; err != nil {
		return nil, 0, models.NewInternalError("failed to count API keys", err)
	}

	query := s.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}

	var keys []models.APIKey
	if err := query.Find(&keys).Error; err != nil {
		return nil, 0, models.NewInternalError("failed to list API keys", err)
	}

	responses := make([]models.APIKeyResponse, len(keys))
	for i, k := range keys {
		responses[i] = models.APIKeyResponse{APIKey: k}
	}
	return responses, total, nil
}

// Revoke deactivates a key without deleting its accounting history.
func (s *Service) Revoke(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).
		Model(&models.APIKey{}).Where("id = ?", id).
		Update("is_active", false)
	if res.Error != nil {
		return models.NewInternalError("failed to revoke API key", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("API key not found")
	}
	return nil
}

// Charge deducts a cost from a key's budget. Keys without a budget are
// never charged.
func (s *Service) Charge(ctx context.Context, keyID uint, cost float64) error {
	if cost <= 0 || keyID == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("id = ? AND budget IS NOT NULL", keyID).
		Update("budget", gorm.Expr("budget - ?", cost)).Error
}
