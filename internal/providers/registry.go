package providers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ai_gateway/internal/models"
	"ai_gateway/internal/utils"
)

// ProviderLister lists configured providers; implemented by storage.ProviderRepository.
type ProviderLister interface {
	List(ctx context.Context) ([]*models.Provider, error)
}

// ModelLister lists configured models in catalog order; implemented by storage.ModelRepository.
type ModelLister interface {
	List(ctx context.Context) ([]*models.Model, error)
}

// catalog is an immutable snapshot of enabled providers and their models
type catalog struct {
	providers []*models.Provider // enabled, most preferred first
	byID      map[string]*models.Provider
	models    map[string][]*models.Model // enabled, catalog order
	loadedAt  time.Time
}

// Registry serves provider and model lookups from an in-memory snapshot that
// is replaced wholesale on every reload.
type Registry struct {
	providers ProviderLister
	models    ModelLister
	logger    *utils.Logger

	mu       sync.RWMutex
	snapshot *catalog
}

// NewRegistry creates a registry. Call Reload (or Start) before serving traffic;
// the first Resolve loads the snapshot if that has not happened yet.
func NewRegistry(providers ProviderLister, models ModelLister) *Registry {
	return &Registry{
		providers: providers,
		models:    models,
		logger:    utils.NewLogger("provider-registry"),
	}
}

// Reload replaces the snapshot with the current store contents
func (r *Registry) Reload(ctx context.Context) error {
	providerList, err := r.providers.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load providers: %w", err)
	}
	modelList, err := r.models.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load models: %w", err)
	}

	next := &catalog{
		byID:     make(map[string]*models.Provider),
		models:   make(map[string][]*models.Model),
		loadedAt: time.Now(),
	}
	for _, p := range providerList {
		if !p.Enabled {
			continue
		}
		if !p.WireFormat.Valid() {
			r.logger.Warn("Skipping provider with unknown wire format", "provider", p.ID, "wire_format", p.WireFormat)
			continue
		}
		next.providers = append(next.providers, p)
		next.byID[p.ID] = p
	}
	sort.SliceStable(next.providers, func(i, j int) bool {
		if next.providers[i].Priority != next.providers[j].Priority {
			return next.providers[i].Priority < next.providers[j].Priority
		}
		return next.providers[i].ID < next.providers[j].ID
	})
	for _, m := range modelList {
		if !m.Enabled {
			continue
		}
		if _, ok := next.byID[m.ProviderID]; !ok {
			continue
		}
		next.models[m.ProviderID] = append(next.models[m.ProviderID], m)
	}

	r.mu.Lock()
	r.snapshot = next
	r.mu.Unlock()

	r.logger.Info("Provider catalog loaded", "providers", len(next.providers), "models", len(modelList))
	return nil
}

// Start reloads the snapshot every interval until ctx is cancelled.
// A failed reload keeps serving the previous snapshot.
func (r *Registry) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.Reload(ctx); err != nil {
					r.logger.Error("Provider catalog reload failed", "error", err)
				}
			}
		}
	}()
}

func (r *Registry) current(ctx context.Context) (*catalog, error) {
	r.mu.RLock()
	snap := r.snapshot
	r.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot, nil
}

// Resolve picks the provider and model for a call.
//
// An empty providerID selects the enabled provider with the lowest priority value.
// The model is the explicitly requested one when it is enabled for that provider,
// else the provider's default-flagged model, else its first enabled model.
func (r *Registry) Resolve(ctx context.Context, providerID, modelID string) (*Target, error) {
	snap, err := r.current(ctx)
	if err != nil {
		return nil, &ConfigurationError{Provider: providerID, Reason: err.Error()}
	}

	var provider *models.Provider
	if providerID == "" {
		if len(snap.providers) == 0 {
			return nil, &ConfigurationError{Reason: "no enabled provider configured"}
		}
		provider = snap.providers[0]
	} else {
		p, ok := snap.byID[providerID]
		if !ok {
			return nil, &ConfigurationError{Provider: providerID, Reason: "provider not found or disabled"}
		}
		provider = p
	}

	model := pickModel(snap.models[provider.ID], modelID)
	if model == nil {
		return nil, &ConfigurationError{Provider: provider.ID, Model: modelID, Reason: "no enabled model available"}
	}

	strategy, err := StrategyFor(provider.WireFormat)
	if err != nil {
		return nil, &ConfigurationError{Provider: provider.ID, Reason: err.Error()}
	}

	return &Target{Provider: provider, Model: model, Strategy: strategy}, nil
}

func pickModel(candidates []*models.Model, modelID string) *models.Model {
	if modelID != "" {
		for _, m := range candidates {
			if m.ModelID == modelID {
				return m
			}
		}
	}
	for _, m := range candidates {
		if m.IsDefault {
			return m
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return nil
}

// Model returns the pricing entry of an enabled model
func (r *Registry) Model(ctx context.Context, providerID, modelID string) (*models.Model, bool) {
	snap, err := r.current(ctx)
	if err != nil {
		return nil, false
	}
	for _, m := range snap.models[providerID] {
		if m.ModelID == modelID {
			return m, true
		}
	}
	return nil, false
}

// Providers returns the enabled providers, most preferred first
func (r *Registry) Providers(ctx context.Context) ([]*models.Provider, error) {
	snap, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Provider, len(snap.providers))
	copy(out, snap.providers)
	return out, nil
}
