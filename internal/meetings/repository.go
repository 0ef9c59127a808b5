package meetings

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository persists meetings.
type Repository interface {
	// Create inserts a scheduled meeting, failing with ErrSlotConflict when it
	// overlaps another scheduled meeting of the same business.
	Create(ctx context.Context, m *Meeting) error
	Get(ctx context.Context, businessID, id string) (*Meeting, error)
	// ListScheduled returns scheduled meetings overlapping [from, to).
	ListScheduled(ctx context.Context, businessID string, from, to time.Time) ([]*Meeting, error)
	List(ctx context.Context, businessID string, filter ListFilter) ([]*Meeting, error)
	UpdateStatus(ctx context.Context, businessID, id string, status Status) error
}

// InMemoryRepository is a map-backed Repository.
type InMemoryRepository struct {
	mu       sync.RWMutex
	meetings map[string]*Meeting
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{meetings: make(map[string]*Meeting)}
}

func (r *InMemoryRepository) Create(ctx context.Context, m *Meeting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.meetings {
		if existing.BusinessID == m.BusinessID && existing.Status == StatusScheduled && existing.Interval().Overlaps(m.Interval()) {
			return ErrSlotConflict
		}
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Status == "" {
		m.Status = StatusScheduled
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	r.meetings[m.ID] = copyMeeting(m)
	return nil
}

func (r *InMemoryRepository) Get(ctx context.Context, businessID, id string) (*Meeting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.meetings[id]
	if !ok || m.BusinessID != businessID {
		return nil, ErrMeetingNotFound
	}
	return copyMeeting(m), nil
}

func (r *InMemoryRepository) ListScheduled(ctx context.Context, businessID string, from, to time.Time) ([]*Meeting, error) {
	return r.List(ctx, businessID, ListFilter{Status: StatusScheduled, From: from, To: to})
}

func (r *InMemoryRepository) List(ctx context.Context, businessID string, filter ListFilter) ([]*Meeting, error) {
	r.mu.RLock()
	var out []*Meeting
	for _, m := range r.meetings {
		if m.BusinessID != businessID {
			continue
		}
		if filter.Status != "" && m.Status != filter.Status {
			continue
		}
		if !filter.From.IsZero() && !m.EndAt.After(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !m.StartAt.Before(filter.To) {
			continue
		}
		out = append(out, copyMeeting(m))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []*Meeting{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *InMemoryRepository) UpdateStatus(ctx context.Context, businessID, id string, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meetings[id]
	if !ok || m.BusinessID != businessID {
		return ErrMeetingNotFound
	}
	m.Status = status
	return nil
}

func copyMeeting(m *Meeting) *Meeting {
	cp := *m
	if m.Metadata != nil {
		cp.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
