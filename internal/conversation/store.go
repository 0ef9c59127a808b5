package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists conversations and their messages.
type Store interface {
	// ActiveForLead returns ErrConversationNotFound when the lead has no
	// active conversation.
	ActiveForLead(ctx context.Context, leadID string) (*Conversation, error)
	// Create inserts an active conversation. It fails with errActiveExists
	// if the lead already has one.
	Create(ctx context.Context, conv *Conversation) error
	Get(ctx context.Context, id string) (*Conversation, error)
	Close(ctx context.Context, id string, at time.Time) error
	// AppendMessage stores msg and advances the conversation's last message time.
	AppendMessage(ctx context.Context, msg *Message) error
	// RecentMessages returns up to limit of the newest messages in
	// chronological order.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	// LeadMessages returns the content of every lead-authored message in order.
	LeadMessages(ctx context.Context, conversationID string) ([]string, error)
	ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]Message, error)
}

// InMemoryStore is a Store for tests and single-process development.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	active        map[string]string
	messages      map[string][]Message
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[string]*Conversation),
		active:        make(map[string]string),
		messages:      make(map[string][]Message),
	}
}

func (s *InMemoryStore) ActiveForLead(ctx context.Context, leadID string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.active[leadID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	cp := *s.conversations[id]
	return &cp, nil
}

func (s *InMemoryStore) Create(ctx context.Context, conv *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[conv.LeadID]; ok {
		return errActiveExists
	}
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	conv.Status = StatusActive
	cp := *conv
	s.conversations[conv.ID] = &cp
	s.active[conv.LeadID] = conv.ID
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	cp := *conv
	return &cp, nil
}

func (s *InMemoryStore) Close(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return ErrConversationNotFound
	}
	if conv.Status == StatusClosed {
		return nil
	}
	at = at.UTC()
	conv.Status = StatusClosed
	conv.ClosedAt = &at
	if s.active[conv.LeadID] == id {
		delete(s.active, conv.LeadID)
	}
	return nil
}

func (s *InMemoryStore) AppendMessage(ctx context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		return ErrConversationNotFound
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	ts := msg.CreatedAt
	conv.LastMessageAt = &ts
	return nil
}

func (s *InMemoryStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.messages[conversationID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]Message(nil), all...), nil
}

func (s *InMemoryStore) LeadMessages(ctx context.Context, conversationID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, m := range s.messages[conversationID] {
		if m.IsFromLead {
			out = append(out, m.Content)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.messages[conversationID]
	if offset >= len(all) {
		return []Message{}, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return append([]Message(nil), all...), nil
}

// ActiveCount returns how many active conversations the lead has. Test helper.
func (s *InMemoryStore) ActiveCount(leadID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.conversations {
		if c.LeadID == leadID && c.Status == StatusActive {
			n++
		}
	}
	return n
}
