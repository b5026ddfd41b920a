package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pepe57/OpenGateLLM/internal/models"
	"github.com/pepe57/OpenGateLLM/internal/services/database"
	"github.com/pepe57/OpenGateLLM/internal/services/providers"
	"github.com/pepe57/OpenGateLLM/internal/services/routing"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Registry owns the router and provider catalog. It syncs the declarative
// model list into the database at startup and resolves model names to
// concrete backends at request time.
type Registry struct {
	db       *database.DB
	balancer *routing.Balancer

	mu       sync.RWMutex
	backends map[uint]*providers.Backend
}

func New(db *database.DB, balancer *routing.Balancer) *Registry {
	return &Registry{
		db:       db,
		balancer: balancer,
		backends: make(map[uint]*providers.Backend),
	}
}

// Sync reconciles the configured model list into the database. Models are
// matched by name; providers by their backend identity (url + model name).
func (r *Registry) Sync(ctx context.Context, specs []models.ModelSpec) error {
	for _, spec := range specs {
		if err := r.syncModel(ctx, spec); err != nil {
			return fmt.Errorf("sync model %s: %w", spec.Name, err)
		}
	}
	return nil
}

func (r *Registry) syncModel(ctx context.Context, spec models.ModelSpec) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var router models.Router
		err := tx.Where("name = ?", spec.Name).First(&router).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			router = models.Router{Name: spec.Name}
		case err != nil:
			return err
		}

		router.Type = spec.Type
		router.LoadBalancingStrategy = spec.LoadBalancingStrategy
		router.CostPromptTokens = spec.CostPromptTokens
		router.CostCompletionTokens = spec.CostCompletionTokens
		if err := tx.Save(&router).Error; err != nil {
			return err
		}

		if err := syncAliases(tx, &router, spec.Aliases); err != nil {
			return err
		}
		return syncProviders(tx, &router, spec.Providers)
	})
}

func syncAliases(tx *gorm.DB, router *models.Router, aliases []string) error {
	if err := tx.Where("router_id = ?", router.ID).Delete(&models.RouterAlias{}).Error; err != nil {
		return err
	}
	for _, value := range aliases {
		var clash int64
		if err := tx.Model(&models.Router{}).Where("name = ?", value).Count(&clash).Error; err != nil {
			return err
		}
		if clash > 0 {
			return models.NewConflictError(fmt.Sprintf("alias %q collides with an existing model name", value))
		}
		alias := models.RouterAlias{RouterID: router.ID, Value: value}
		if err := tx.Create(&alias).Error; err != nil {
			if isUniqueViolation(err) {
				return models.NewConflictError(fmt.Sprintf("alias %q is already taken", value))
			}
			return err
		}
	}
	return nil
}

func syncProviders(tx *gorm.DB, router *models.Router, specs []models.ProviderSpec) error {
	for _, spec := range specs {
		var provider models.Provider
		err := tx.Where("router_id = ? AND url = ? AND model_name = ?",
			router.ID, spec.URL, spec.ModelName).First(&provider).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			provider = models.Provider{RouterID: router.ID, URL: spec.URL, ModelName: spec.ModelName}
		case err != nil:
			return err
		}

		provider.Type = spec.Type
		provider.Key = spec.Key
		provider.TimeoutSeconds = spec.TimeoutSeconds
		provider.QoSMetric = spec.QoSMetric
		provider.QoSLimit = spec.QoSLimit
		if spec.MaxContextLength != nil {
			provider.MaxContextLength = spec.MaxContextLength
		}
		if spec.VectorSize != nil {
			provider.VectorSize = spec.VectorSize
		}
		if err := tx.Save(&provider).Error; err != nil {
			return err
		}
	}
	return nil
}

// Probe fills in max context length and vector size for providers that did
// not declare them. Probe failures are logged, not fatal, so an offline
// backend cannot block startup.
func (r *Registry) Probe(ctx context.Context) {
	var all []models.Provider
	if err := r.db.WithContext(ctx).Find(&all).Error; err != nil {
		fiberlog.Warnf("failed to list providers for probing: %v", err)
		return
	}

	for _, p := range all {
		backend := r.backend(p)
		probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)

		if p.MaxContextLength == nil {
			if length, err := backend.ProbeMaxContextLength(probeCtx); err != nil {
				fiberlog.Warnf("provider %d: %v", p.ID, err)
			} else if length != nil {
				r.db.Model(&models.Provider{}).Where("id = ?", p.ID).Update("max_context_length", *length)
			}
		}

		var router models.Router
		if err := r.db.WithContext(ctx).First(&router, p.RouterID).Error; err == nil &&
			router.Type == models.ModelTypeTextEmbeddings && p.VectorSize == nil {
			if size, err := backend.ProbeVectorSize(probeCtx); err != nil {
				fiberlog.Warnf("provider %d: %v", p.ID, err)
			} else if size != nil {
				r.db.Model(&models.Provider{}).Where("id = ?", p.ID).Update("vector_size", *size)
			}
		}
		cancel()
	}
}

// ResolveRouter finds a router by name or alias.
func (r *Registry) ResolveRouter(ctx context.Context, name string) (*models.Router, error) {
	var router models.Router
	err := r.db.WithContext(ctx).
		Preload("Aliases").Preload("Providers").
		Where("name = ?", name).First(&router).Error
	if err == nil {
		return &router, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewInternalError("failed to look up model", err)
	}

	var alias models.RouterAlias
	err = r.db.WithContext(ctx).Where("value = ?", name).First(&alias).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewModelNotFoundError(name)
	}
	if err != nil {
		return nil, models.NewInternalError("failed to look up model", err)
	}

	err = r.db.WithContext(ctx).
		Preload("Aliases").Preload("Providers").
		First(&router, alias.RouterID).Error
	if err != nil {
		return nil, models.NewInternalError("failed to look up model", err)
	}
	return &router, nil
}

// Candidates resolves a model name for an endpoint and returns the
// providers that may serve it, after the endpoint type and budget checks.
func (r *Registry) Candidates(ctx context.Context, endpoint, name string, user models.UserInfo) (*models.Router, []models.Provider, error) {
	router, err := r.ResolveRouter(ctx, name)
	if err != nil {
		return nil, nil, err
	}

	if !models.EndpointSupportsModelType(endpoint, router.Type) {
		return nil, nil, models.NewWrongModelTypeError(name)
	}
	if router.Costed() && !user.Master && user.Budget != nil && *user.Budget <= 0 {
		return nil, nil, models.NewInsufficientBudgetError()
	}

	candidates := make([]models.Provider, 0, len(router.Providers))
	for _, p := range router.Providers {
		if _, ok := endpointSupport(p, endpoint); ok {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil, nil, models.NewNotFoundError(fmt.Sprintf("no providers available for model %s", name))
	}
	return router, candidates, nil
}

// PickBackend applies the router's load balancing strategy and QoS policy
// to the candidate set.
func (r *Registry) PickBackend(ctx context.Context, router models.Router, candidates []models.Provider) (*providers.Backend, error) {
	picked, err := r.balancer.Pick(ctx, router, candidates)
	if err != nil {
		return nil, err
	}
	return r.backend(picked), nil
}

// RequestBackend resolves a model name for an endpoint and picks a backend
// the caller may forward to, applying the router's load balancing strategy
// and QoS policy.
func (r *Registry) RequestBackend(ctx context.Context, endpoint, name string, user models.UserInfo) (*models.Router, *providers.Backend, error) {
	router, candidates, err := r.Candidates(ctx, endpoint, name, user)
	if err != nil {
		return nil, nil, err
	}
	backend, err := r.PickBackend(ctx, *router, candidates)
	if err != nil {
		return nil, nil, err
	}
	return router, backend, nil
}

// BackendByID returns the pooled backend for one provider row.
func (r *Registry) BackendByID(ctx context.Context, providerID uint) (*providers.Backend, error) {
	var provider models.Provider
	if err := r.db.WithContext(ctx).First(&provider, providerID).Error; err != nil {
		return nil, models.NewNotFoundError("provider not found")
	}
	return r.backend(provider), nil
}

// backend returns the cached pooled client for a provider row.
func (r *Registry) backend(p models.Provider) *providers.Backend {
	r.mu.RLock()
	backend, ok := r.backends[p.ID]
	r.mu.RUnlock()
	if ok && backend.Provider.URL == p.URL && backend.Provider.Key == p.Key {
		return backend
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if backend, ok := r.backends[p.ID]; ok && backend.Provider.URL == p.URL && backend.Provider.Key == p.Key {
		return backend
	}
	backend = providers.NewBackend(p)
	r.backends[p.ID] = backend
	return backend
}

// Routers lists all routers with their aliases and providers.
func (r *Registry) Routers(ctx context.Context) ([]models.Router, error) {
	var routers []models.Router
	err := r.db.WithContext(ctx).
		Preload("Aliases").Preload("Providers").
		Order("name").Find(&routers).Error
	if err != nil {
		return nil, models.NewInternalError("failed to list models", err)
	}
	return routers, nil
}

// Models lists the OpenAI-compatible model cards.
func (r *Registry) Models(ctx context.Context) (*models.ModelList, error) {
	routers, err := r.Routers(ctx)
	if err != nil {
		return nil, err
	}
	list := &models.ModelList{Object: "list", Data: make([]models.Model, 0, len(routers))}
	for _, router := range routers {
		list.Data = append(list.Data, toCard(router))
	}
	return list, nil
}

// Model returns one model card by name or alias.
func (r *Registry) Model(ctx context.Context, name string) (*models.Model, error) {
	router, err := r.ResolveRouter(ctx, name)
	if err != nil {
		return nil, err
	}
	card := toCard(*router)
	return &card, nil
}

func toCard(router models.Router) models.Model {
	card := models.Model{
		ID:      router.Name,
		Object:  "model",
		Type:    router.Type,
		OwnedBy: "opengatellm",
		Aliases: router.AliasValues(),
		Created: router.CreatedAt.Unix(),
		Costs: models.ModelCosts{
			PromptTokens:     router.CostPromptTokens,
			CompletionTokens: router.CostCompletionTokens,
		},
	}
	// The advertised context window is the smallest among providers so any
	// of them can serve a maximal request.
	for _, p := range router.Providers {
		if p.MaxContextLength == nil {
			continue
		}
		if card.MaxContextLength == nil || *p.MaxContextLength < *card.MaxContextLength {
			length := *p.MaxContextLength
			card.MaxContextLength = &length
		}
	}
	return card
}

func endpointSupport(p models.Provider, endpoint string) (string, bool) {
	b := providers.Backend{Provider: p}
	path, err := b.EndpointPath(endpoint)
	return path, err == nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
