package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/avvvet/naina-chat/internal/models"
)

// Manager orchestrates conversation memory on top of a Store and
// serializes turns that target the same session.
type Manager struct {
	store  Store
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewManager creates a new memory manager
func NewManager(store Store, logger *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger,
		locks:  make(map[string]*sessionLock),
	}
}

// Lock blocks until the caller owns the session and returns the release func.
// Lock entries are dropped once nobody holds or waits on them.
func (m *Manager) Lock(sessionID string) func() {
	m.mu.Lock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		m.locks[sessionID] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			m.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(m.locks, sessionID)
			}
			m.mu.Unlock()
		})
	}
}

// GetOrCreateSession loads the session, creating it for an unseen id
func (m *Manager) GetOrCreateSession(ctx context.Context, sessionID string, visitor models.VisitorInfo) (*Session, error) {
	session, err := m.store.GetOrCreate(ctx, sessionID, visitor)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	m.logger.Debug("session loaded",
		zap.String("session_id", sessionID),
		zap.Int("messages", len(session.Messages)),
	)
	return session, nil
}

// SaveUserMessage appends a user message
func (m *Manager) SaveUserMessage(ctx context.Context, sessionID, content string) error {
	return m.save(ctx, sessionID, RoleUser, content)
}

// SaveAssistantMessage appends an assistant message
func (m *Manager) SaveAssistantMessage(ctx context.Context, sessionID, content string) error {
	return m.save(ctx, sessionID, RoleAssistant, content)
}

// ReplaceAssistantMessage overwrites the assistant message persisted last in this turn
func (m *Manager) ReplaceAssistantMessage(ctx context.Context, sessionID, content string) error {
	msg := Message{Role: RoleAssistant, Content: content, Timestamp: time.Now().UTC()}
	if err := m.store.ReplaceLastMessage(ctx, sessionID, msg); err != nil {
		return err
	}
	m.logger.Debug("assistant message replaced", zap.String("session_id", sessionID))
	return nil
}

func (m *Manager) save(ctx context.Context, sessionID, role, content string) error {
	msg := Message{Role: role, Content: content, Timestamp: time.Now().UTC()}
	if err := m.store.AppendMessage(ctx, sessionID, msg); err != nil {
		return fmt.Errorf("failed to save %s message: %w", role, err)
	}

	m.logger.Debug("message saved",
		zap.String("session_id", sessionID),
		zap.String("role", role),
		zap.String("preview", preview(content, 30)),
	)
	return nil
}

// RememberSearch stores the directive and resets or advances the cursor
func (m *Manager) RememberSearch(ctx context.Context, sessionID string, directive *models.Directive, offset int) error {
	attrs := map[string]any{AttrProductOffset: offset}
	if directive != nil {
		attrs[AttrLastSearch] = directive
	}
	return m.store.UpdateAttributes(ctx, sessionID, attrs)
}

// TrackProductViews records the products shown in a turn
func (m *Manager) TrackProductViews(ctx context.Context, sessionID string, products []models.Product) error {
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return m.store.TrackProductViews(ctx, sessionID, ids)
}

// History converts the last n messages into langchaingo chat messages
func History(messages []Message, n int) []llms.ChatMessage {
	if n > 0 && len(messages) > n {
		messages = messages[len(messages)-n:]
	}

	history := make([]llms.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleUser:
			history = append(history, llms.HumanChatMessage{Content: msg.Content})
		case RoleAssistant:
			history = append(history, llms.AIChatMessage{Content: msg.Content})
		default:
			continue
		}
	}
	return history
}

// GetMessages returns raw messages without mutating state
func (m *Manager) GetMessages(ctx context.Context, sessionID string) ([]Message, error) {
	return m.store.GetMessages(ctx, sessionID)
}

// ClearSession removes a session from the store
func (m *Manager) ClearSession(ctx context.Context, sessionID string) error {
	if err := m.store.ClearSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	m.logger.Info("🗑️ session cleared", zap.String("session_id", sessionID))
	return nil
}

// SessionExists checks if a session exists
func (m *Manager) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	return m.store.SessionExists(ctx, sessionID)
}

// ActiveTurns returns the number of sessions with a turn in flight or queued
func (m *Manager) ActiveTurns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// Close closes the underlying store
func (m *Manager) Close() error {
	if closer, ok := m.store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
