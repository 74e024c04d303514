package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/avvvet/naina-chat/internal/config"
	"github.com/avvvet/naina-chat/internal/models"
)

// NATSTransport serves chat turns as request/reply on <subject>.message
// and history lookups on <subject>.history
type NATSTransport struct {
	conn    *nats.Conn
	subject string
	timeout time.Duration
	chat    ChatService
	logger  *zap.Logger
	subs    []*nats.Subscription
}

func NewNATSTransport(cfg *config.Config, chat ChatService, logger *zap.Logger) (*NATSTransport, error) {
	// Connect to NATS
	conn, err := nats.Connect(cfg.NatsURL,
		nats.Name("naina-chat"),
		nats.Timeout(cfg.NatsTimeout),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1), // Infinite reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("📡 connected to NATS", zap.String("url", cfg.NatsURL))

	return &NATSTransport{
		conn:    conn,
		subject: cfg.NatsSubject,
		timeout: cfg.NatsTimeout,
		chat:    chat,
		logger:  logger,
	}, nil
}

func (nt *NATSTransport) messageSubject() string { return nt.subject + ".message" }
func (nt *NATSTransport) historySubject() string { return nt.subject + ".history" }

func (nt *NATSTransport) Start() error {
	handlers := map[string]func([]byte) any{
		nt.messageSubject(): nt.handleChatRequest,
		nt.historySubject(): nt.handleHistoryRequest,
	}
	for subject, handle := range handlers {
		handle := handle
		sub, err := nt.conn.Subscribe(subject, func(msg *nats.Msg) {
			nt.respond(msg, handle(msg.Data))
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		nt.subs = append(nt.subs, sub)
		nt.logger.Info("👂 subscribed", zap.String("subject", subject))
	}
	return nil
}

func (nt *NATSTransport) handleChatRequest(data []byte) any {
	var request models.ChatRequest
	if err := json.Unmarshal(data, &request); err != nil {
		nt.logger.Warn("invalid chat request", zap.Error(err))
		return models.ErrorResponse{Error: "invalid request format", Code: models.ErrorInvalidRequest}
	}

	ctx, cancel := context.WithTimeout(context.Background(), nt.timeout)
	defer cancel()

	response, err := nt.chat.ProcessMessage(ctx, request.SessionID, request.Message, request.Visitor)
	if err != nil {
		return errorResponse(err, request.SessionID)
	}
	return response
}

func (nt *NATSTransport) handleHistoryRequest(data []byte) any {
	var request struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(data, &request); err != nil {
		return models.ErrorResponse{Error: "invalid request format", Code: models.ErrorInvalidRequest}
	}

	ctx, cancel := context.WithTimeout(context.Background(), nt.timeout)
	defer cancel()

	messages, err := nt.chat.GetHistory(ctx, request.SessionID)
	if err != nil {
		nt.logger.Error("failed to load history", zap.String("session_id", request.SessionID), zap.Error(err))
		return errorResponse(err, request.SessionID)
	}
	return HistoryResponse{SessionID: request.SessionID, Messages: messages}
}

func (nt *NATSTransport) respond(msg *nats.Msg, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		nt.logger.Error("failed to marshal response", zap.Error(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		nt.logger.Error("failed to send response", zap.String("subject", msg.Subject), zap.Error(err))
	}
}

func (nt *NATSTransport) Close() error {
	for _, sub := range nt.subs {
		_ = sub.Unsubscribe()
	}
	if nt.conn != nil {
		if err := nt.conn.Drain(); err != nil {
			nt.conn.Close()
		}
		nt.logger.Info("NATS connection closed")
	}
	return nil
}
