package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/pepe57/OpenGateLLM/internal/models"
)

// CreateRouter registers a new model with its aliases and providers.
func (r *Registry) CreateRouter(ctx context.Context, spec models.ModelSpec) (*models.Router, error) {
	var clash int64
	if err := r.db.WithContext(ctx).Model(&models.Router{}).Where("name = ?", spec.Name).Count(&clash).Error; err != nil {
		return nil, models.NewInternalError("failed to check model name", err)
	}
	if clash > 0 {
		return nil, models.NewConflictError(fmt.Sprintf("model %q already exists", spec.Name))
	}

	if err := r.syncModel(ctx, spec); err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, models.NewInternalError("failed to create model", err)
	}
	return r.ResolveRouter(ctx, spec.Name)
}

// UpdateRouter replaces an existing model's definition.
func (r *Registry) UpdateRouter(ctx context.Context, name string, spec models.ModelSpec) (*models.Router, error) {
	existing, err := r.ResolveRouter(ctx, name)
	if err != nil {
		return nil, err
	}
	if spec.Name != existing.Name {
		return nil, models.NewValidationError("model name cannot be changed", nil)
	}

	if err := r.syncModel(ctx, spec); err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, models.NewInternalError("failed to update model", err)
	}
	return r.ResolveRouter(ctx, spec.Name)
}

// DeleteRouter removes a model. Aliases and providers cascade.
func (r *Registry) DeleteRouter(ctx context.Context, name string) error {
	router, err := r.ResolveRouter(ctx, name)
	if err != nil {
		return err
	}

	r.mu.Lock()
	for _, p := range router.Providers {
		if backend, ok := r.backends[p.ID]; ok {
			backend.Close()
			delete(r.backends, p.ID)
		}
	}
	r.mu.Unlock()

	if err := r.db.WithContext(ctx).Select("Aliases", "Providers").Delete(router).Error; err != nil {
		return models.NewInternalError("failed to delete model", err)
	}
	return nil
}

// AddProvider attaches a new backend deployment to an existing model.
func (r *Registry) AddProvider(ctx context.Context, name string, spec models.ProviderSpec) (*models.Provider, error) {
	router, err := r.ResolveRouter(ctx, name)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, pt := range models.ProviderTypesForModelType[router.Type] {
		if pt == spec.Type {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, models.NewValidationError(
			fmt.Sprintf("provider type %q cannot serve model type %q", spec.Type, router.Type), nil)
	}

	// Providers of an embedding model must agree on dimensionality, or the
	// collection indexes built on it stop matching.
	if router.Type == models.ModelTypeTextEmbeddings && spec.VectorSize != nil {
		for _, sibling := range router.Providers {
			if sibling.VectorSize != nil && *sibling.VectorSize != *spec.VectorSize {
				return nil, models.NewValidationError(
					fmt.Sprintf("vector size %d conflicts with the model's existing size %d", *spec.VectorSize, *sibling.VectorSize), nil)
			}
		}
	}

	provider := models.Provider{
		RouterID:         router.ID,
		Type:             spec.Type,
		URL:              spec.URL,
		Key:              spec.Key,
		ModelName:        spec.ModelName,
		TimeoutSeconds:   spec.TimeoutSeconds,
		QoSMetric:        spec.QoSMetric,
		QoSLimit:         spec.QoSLimit,
		MaxContextLength: spec.MaxContextLength,
		VectorSize:       spec.VectorSize,
	}
	if err := r.db.WithContext(ctx).Create(&provider).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, models.NewConflictError("provider already exists for this model")
		}
		return nil, models.NewInternalError("failed to create provider", err)
	}
	return &provider, nil
}

// RemoveProvider detaches a backend deployment from a model.
func (r *Registry) RemoveProvider(ctx context.Context, name string, providerID uint) error {
	router, err := r.ResolveRouter(ctx, name)
	if err != nil {
		return err
	}

	res := r.db.WithContext(ctx).
		Where("id = ? AND router_id = ?", providerID, router.ID).
		Delete(&models.Provider{})
	if res.Error != nil {
		return models.NewInternalError("failed to delete provider", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("provider not found")
	}

	r.mu.Lock()
	if backend, ok := r.backends[providerID]; ok {
		backend.Close()
		delete(r.backends, providerID)
	}
	r.mu.Unlock()
	return nil
}

