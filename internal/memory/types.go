package memory

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/avvvet/naina-chat/internal/models"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Attribute keys written by the chat handler
const (
	AttrLastSearch    = "lastSearch"
	AttrProductOffset = "productOffset"
)

// ErrSessionNotFound is returned by Load when no session exists for the id
var ErrSessionNotFound = errors.New("session not found")

// Message represents a single message in a conversation
type Message struct {
	Role      string    `json:"role"`      // "user" or "assistant"
	Content   string    `json:"content"`   // The actual message text
	Timestamp time.Time `json:"timestamp"` // When the message was sent
}

// Session represents all persisted state for one visitor conversation
type Session struct {
	SessionID          string            `json:"sessionId"`
	Messages           []Message         `json:"messages"`
	Attributes         map[string]string `json:"attributes"` // values are JSON encoded
	Visitor            VisitorMeta       `json:"visitorInfo"`
	ProductsViewed     []string          `json:"productsViewed"`
	TotalProductsShown int               `json:"totalProductsShown"`
}

// VisitorMeta is informational session metadata
type VisitorMeta struct {
	IPAddress     string    `json:"ipAddress,omitempty"`
	UserAgent     string    `json:"userAgent,omitempty"`
	PageURL       string    `json:"pageUrl,omitempty"`
	FirstVisit    time.Time `json:"firstVisit"`
	LastVisit     time.Time `json:"lastVisit"`
	TotalMessages int       `json:"totalMessages"`
}

// LastSearch decodes the remembered directive, if any
func (s *Session) LastSearch() (*models.Directive, bool) {
	raw, ok := s.Attributes[AttrLastSearch]
	if !ok || raw == "" || raw == "null" {
		return nil, false
	}
	var d models.Directive
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, false
	}
	return &d, true
}

// ProductOffset returns the pagination cursor, 0 when unset
func (s *Session) ProductOffset() int {
	raw, ok := s.Attributes[AttrProductOffset]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Store defines the interface for conversation storage.
// All operations are keyed by session id. Appends must be atomic per call.
type Store interface {
	// GetOrCreate returns the session, creating it on first sight. Always bumps lastVisit.
	GetOrCreate(ctx context.Context, sessionID string, visitor models.VisitorInfo) (*Session, error)

	// Load returns an existing session or ErrSessionNotFound
	Load(ctx context.Context, sessionID string) (*Session, error)

	// AppendMessage appends a message and increments the message counter
	AppendMessage(ctx context.Context, sessionID string, msg Message) error

	// ReplaceLastMessage overwrites the most recent message
	ReplaceLastMessage(ctx context.Context, sessionID string, msg Message) error

	// UpdateAttributes shallow-merges attrs into the session attributes
	UpdateAttributes(ctx context.Context, sessionID string, attrs map[string]any) error

	// TrackProductViews adds ids to the viewed set and bumps the shown counter
	TrackProductViews(ctx context.Context, sessionID string, productIDs []string) error

	// GetMessages retrieves all messages for a session
	GetMessages(ctx context.Context, sessionID string) ([]Message, error)

	// SessionExists checks if a session exists
	SessionExists(ctx context.Context, sessionID string) (bool, error)

	// ClearSession removes a session from storage
	ClearSession(ctx context.Context, sessionID string) error
}

// encodeAttributes JSON-encodes each value so the store stays a flat string map
func encodeAttributes(attrs map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[k] = string(b)
	}
	return out, nil
}
