package leads

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for lead storage
type Repository interface {
	Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error)
	GetByID(ctx context.Context, businessID, id string) (*Lead, error)
	// FindByPhone returns every lead with the phone, most-recently-active first.
	FindByPhone(ctx context.Context, phone string) ([]*Lead, error)
	ListByBusiness(ctx context.Context, businessID string, filter ListFilter) ([]*Lead, error)
	MergeQualification(ctx context.Context, id string, data map[string]string) error
	UpdateStatus(ctx context.Context, id string, status Status) error
	TouchContact(ctx context.Context, id string, at time.Time) error
}

// InMemoryRepository is a Repository backed by a map, used in tests and
// single-process development.
type InMemoryRepository struct {
	mu    sync.RWMutex
	leads map[string]*Lead
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads: make(map[string]*Lead),
	}
}

// Create creates a new lead in memory
func (r *InMemoryRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	lead := &Lead{
		ID:            uuid.New().String(),
		BusinessID:    req.BusinessID,
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		Status:        StatusNew,
		Channel:       Channel(req.Channel),
		Source:        req.Source,
		Qualification: map[string]string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	r.mu.Lock()
	r.leads[lead.ID] = lead
	r.mu.Unlock()

	return copyLead(lead), nil
}

// GetByID retrieves a lead scoped to the business.
func (r *InMemoryRepository) GetByID(ctx context.Context, businessID, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok || lead.BusinessID != businessID {
		return nil, ErrLeadNotFound
	}
	return copyLead(lead), nil
}

// FindByPhone returns matching leads ordered by recent activity.
func (r *InMemoryRepository) FindByPhone(ctx context.Context, phone string) ([]*Lead, error) {
	phone = NormalizePhone(phone)
	if phone == "" {
		return nil, nil
	}
	r.mu.RLock()
	var out []*Lead
	for _, lead := range r.leads {
		if lead.Phone == phone {
			out = append(out, copyLead(lead))
		}
	}
	r.mu.RUnlock()
	SortByRecentActivity(out)
	return out, nil
}

// ListByBusiness returns leads for a business, newest first.
func (r *InMemoryRepository) ListByBusiness(ctx context.Context, businessID string, filter ListFilter) ([]*Lead, error) {
	r.mu.RLock()
	var all []*Lead
	for _, lead := range r.leads {
		if lead.BusinessID != businessID {
			continue
		}
		if filter.Status != "" && lead.Status != filter.Status {
			continue
		}
		all = append(all, copyLead(lead))
	}
	r.mu.RUnlock()

	sortByCreatedDesc(all)
	if filter.Offset >= len(all) {
		return []*Lead{}, nil
	}
	all = all[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(all) {
		all = all[:filter.Limit]
	}
	return all, nil
}

// MergeQualification overlays data onto the stored qualification map.
func (r *InMemoryRepository) MergeQualification(ctx context.Context, id string, data map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok {
		return ErrLeadNotFound
	}
	lead.Qualification = MergeQualification(lead.Qualification, data)
	lead.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateStatus changes the lead status if the transition is allowed.
func (r *InMemoryRepository) UpdateStatus(ctx context.Context, id string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok {
		return ErrLeadNotFound
	}
	if !lead.Status.CanTransitionTo(status) {
		return fmt.Errorf("leads: %s -> %s: %w", lead.Status, status, ErrInvalidTransition)
	}
	lead.Status = status
	lead.UpdatedAt = time.Now().UTC()
	return nil
}

// TouchContact records the time of the latest interaction.
func (r *InMemoryRepository) TouchContact(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok {
		return ErrLeadNotFound
	}
	at = at.UTC()
	lead.LastContactedAt = &at
	return nil
}

func copyLead(l *Lead) *Lead {
	cp := *l
	cp.Qualification = MergeQualification(nil, l.Qualification)
	if l.LastContactedAt != nil {
		ts := *l.LastContactedAt
		cp.LastContactedAt = &ts
	}
	return &cp
}

func sortByCreatedDesc(list []*Lead) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}
