// Package transport exposes the chat handler over HTTP, websockets and NATS.
package transport

import (
	"context"
	"errors"

	"github.com/avvvet/naina-chat/internal/catalog"
	"github.com/avvvet/naina-chat/internal/memory"
	"github.com/avvvet/naina-chat/internal/models"
)

// ChatService is the conversation surface every transport calls into
type ChatService interface {
	ProcessMessage(ctx context.Context, sessionID, message string, visitor models.VisitorInfo) (*models.ChatResponse, error)
	GetHistory(ctx context.Context, sessionID string) ([]memory.Message, error)
	ClearSession(ctx context.Context, sessionID string) error
}

// CatalogSyncer refreshes the catalog from the storefront
type CatalogSyncer interface {
	Run(ctx context.Context) (*catalog.SyncResult, error)
}

// HistoryResponse is returned by the history endpoints
type HistoryResponse struct {
	SessionID string           `json:"sessionId"`
	Messages  []memory.Message `json:"messages"`
}

func isValidation(err error) bool {
	var ve *models.ValidationError
	return errors.As(err, &ve)
}

func errorResponse(err error, sessionID string) models.ErrorResponse {
	if isValidation(err) {
		return models.ErrorResponse{Error: err.Error(), Code: models.ErrorInvalidRequest, Session: sessionID}
	}
	return models.ErrorResponse{Error: "internal error", Code: models.ErrorInternal, Session: sessionID}
}
