package business

import (
	"context"
	"sync"
)

// Repository loads and stores per-business configuration.
type Repository interface {
	GetBusiness(ctx context.Context, id string) (*Business, error)
	GetBusinessByAPIKey(ctx context.Context, apiKey string) (*Business, error)
	GetAssistantConfig(ctx context.Context, businessID string) (*AssistantConfig, error)
	SaveAssistantConfig(ctx context.Context, cfg *AssistantConfig) error
	ListHours(ctx context.Context, businessID string) ([]Hours, error)
	ReplaceHours(ctx context.Context, businessID string, hours []Hours) error
}

// InMemoryRepository keeps configuration in maps.
type InMemoryRepository struct {
	mu         sync.RWMutex
	businesses map[string]Business
	apiKeys    map[string]string
	assistants map[string]AssistantConfig
	hours      map[string][]Hours
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		businesses: make(map[string]Business),
		apiKeys:    make(map[string]string),
		assistants: make(map[string]AssistantConfig),
		hours:      make(map[string][]Hours),
	}
}

// SaveBusiness upserts a business profile and, when apiKey is non-empty,
// registers it for lead ingestion.
func (r *InMemoryRepository) SaveBusiness(b Business, apiKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.businesses[b.ID] = b
	if apiKey != "" {
		r.apiKeys[HashAPIKey(apiKey)] = b.ID
	}
}

func (r *InMemoryRepository) GetBusiness(ctx context.Context, id string) (*Business, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.businesses[id]
	if !ok {
		return nil, ErrBusinessNotFound
	}
	return &b, nil
}

func (r *InMemoryRepository) GetBusinessByAPIKey(ctx context.Context, apiKey string) (*Business, error) {
	r.mu.RLock()
	id, ok := r.apiKeys[HashAPIKey(apiKey)]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrBusinessNotFound
	}
	return r.GetBusiness(ctx, id)
}

func (r *InMemoryRepository) GetAssistantConfig(ctx context.Context, businessID string) (*AssistantConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.assistants[businessID]
	if !ok {
		return nil, ErrAssistantConfigNotFound
	}
	cfg.QualificationFields = append([]string(nil), cfg.QualificationFields...)
	return &cfg, nil
}

func (r *InMemoryRepository) SaveAssistantConfig(ctx context.Context, cfg *AssistantConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.businesses[cfg.BusinessID]; !ok {
		return ErrBusinessNotFound
	}
	stored := *cfg
	stored.QualificationFields = append([]string(nil), cfg.QualificationFields...)
	r.assistants[cfg.BusinessID] = stored
	return nil
}

func (r *InMemoryRepository) ListHours(ctx context.Context, businessID string) ([]Hours, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Hours{}, r.hours[businessID]...), nil
}

func (r *InMemoryRepository) ReplaceHours(ctx context.Context, businessID string, hours []Hours) error {
	normalized, err := NormalizeHours(hours)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.businesses[businessID]; !ok {
		return ErrBusinessNotFound
	}
	r.hours[businessID] = normalized
	return nil
}
