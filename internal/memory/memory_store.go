package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avvvet/naina-chat/internal/models"
)

// InMemoryStore is a process-local Store used when no Redis URL is configured
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	viewed   map[string]map[string]struct{}
}

// NewInMemoryStore creates an empty in-memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*Session),
		viewed:   make(map[string]map[string]struct{}),
	}
}

func (s *InMemoryStore) GetOrCreate(ctx context.Context, sessionID string, visitor models.VisitorInfo) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	session, ok := s.sessions[sessionID]
	if !ok {
		session = &Session{
			SessionID:  sessionID,
			Messages:   []Message{},
			Attributes: map[string]string{},
			Visitor: VisitorMeta{
				IPAddress:  visitor.IPAddress,
				UserAgent:  visitor.UserAgent,
				PageURL:    visitor.PageURL,
				FirstVisit: now,
			},
		}
		s.sessions[sessionID] = session
		s.viewed[sessionID] = map[string]struct{}{}
	}
	session.Visitor.LastVisit = now

	return s.snapshot(session), nil
}

func (s *InMemoryStore) Load(ctx context.Context, sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.snapshot(session), nil
}

func (s *InMemoryStore) AppendMessage(ctx context.Context, sessionID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.get(sessionID)
	if err != nil {
		return err
	}
	session.Messages = append(session.Messages, msg)
	session.Visitor.TotalMessages++
	return nil
}

func (s *InMemoryStore) ReplaceLastMessage(ctx context.Context, sessionID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.get(sessionID)
	if err != nil {
		return err
	}
	if len(session.Messages) == 0 {
		return fmt.Errorf("failed to replace last message: session %s has no messages", sessionID)
	}
	session.Messages[len(session.Messages)-1] = msg
	return nil
}

func (s *InMemoryStore) UpdateAttributes(ctx context.Context, sessionID string, attrs map[string]any) error {
	encoded, err := encodeAttributes(attrs)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.get(sessionID)
	if err != nil {
		return err
	}
	for k, v := range encoded {
		session.Attributes[k] = v
	}
	return nil
}

func (s *InMemoryStore) TrackProductViews(ctx context.Context, sessionID string, productIDs []string) error {
	if len(productIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.get(sessionID)
	if err != nil {
		return err
	}
	seen := s.viewed[sessionID]
	for _, id := range productIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		session.ProductsViewed = append(session.ProductsViewed, id)
	}
	session.TotalProductsShown += len(productIDs)
	return nil
}

func (s *InMemoryStore) GetMessages(ctx context.Context, sessionID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return []Message{}, nil
	}
	return append([]Message(nil), session.Messages...), nil
}

func (s *InMemoryStore) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[sessionID]
	return ok, nil
}

func (s *InMemoryStore) ClearSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	delete(s.viewed, sessionID)
	return nil
}

// Count returns the number of stored sessions
func (s *InMemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *InMemoryStore) get(sessionID string) (*Session, error) {
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// snapshot copies a session so callers never alias store state
func (s *InMemoryStore) snapshot(session *Session) *Session {
	cp := *session
	cp.Messages = append([]Message{}, session.Messages...)
	cp.ProductsViewed = append([]string(nil), session.ProductsViewed...)
	cp.Attributes = make(map[string]string, len(session.Attributes))
	for k, v := range session.Attributes {
		cp.Attributes[k] = v
	}
	return &cp
}
