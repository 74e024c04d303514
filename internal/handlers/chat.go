package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/avvvet/naina-chat/internal/catalog"
	"github.com/avvvet/naina-chat/internal/intent"
	"github.com/avvvet/naina-chat/internal/llm"
	"github.com/avvvet/naina-chat/internal/memory"
	"github.com/avvvet/naina-chat/internal/metrics"
	"github.com/avvvet/naina-chat/internal/models"
	"github.com/avvvet/naina-chat/internal/prompts"
)

// Messages that replace the model reply once the catalog has answered
const (
	NoProductsMessage = "Hmm, no products found in that price range. Try adjusting your budget! 😊"
	NoMoreMessage     = "That's all in this range! Want to see something else? 😊"
	ErrorMessage      = "Oops! Something went wrong 😅"
)

// DefaultHistoryWindow is the number of prior messages sent with each prompt
const DefaultHistoryWindow = 8

// Stage is how far a turn got. Every turn ends in StageResponded.
type Stage string

const (
	StageReceived           Stage = "received"
	StagePrompted           Stage = "prompted"
	StageModelReplied       Stage = "model_replied"
	StageDirectiveExtracted Stage = "directive_extracted"
	StageCatalogQueried     Stage = "catalog_queried"
	StageResponded          Stage = "responded"
)

// Generator produces the model reply for a turn
type Generator interface {
	Generate(ctx context.Context, request *llm.Request) *llm.Reply
}

// Searcher runs a directive against the catalog
type Searcher interface {
	Search(ctx context.Context, directive models.Directive, offset int) ([]models.Product, error)
}

// PromptBuilder renders the system prompt
type PromptBuilder interface {
	BuildSystemPrompt(ctx context.Context) string
}

// ChatHandler runs conversation turns
type ChatHandler struct {
	memory        *memory.Manager
	prompts       PromptBuilder
	gateway       Generator
	catalog       Searcher
	historyWindow int
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

type Option func(*ChatHandler)

func WithHistoryWindow(n int) Option {
	return func(h *ChatHandler) {
		if n > 0 {
			h.historyWindow = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *ChatHandler) { h.metrics = m }
}

func NewChatHandler(mem *memory.Manager, builder PromptBuilder, gateway Generator, search Searcher, logger *zap.Logger, opts ...Option) *ChatHandler {
	h := &ChatHandler{
		memory:        mem,
		prompts:       builder,
		gateway:       gateway,
		catalog:       search,
		historyWindow: DefaultHistoryWindow,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// turn carries the state of one message through the pipeline
type turn struct {
	sessionID      string
	message        string
	session        *memory.Session
	kind           intent.Kind
	classified     intent.Result
	stage          Stage
	provider       string
	assistantSaved bool
}

func (t *turn) advance(s Stage) { t.stage = s }

// ProcessMessage runs one turn. The only error it returns is a
// *models.ValidationError; every other failure becomes a reply.
func (h *ChatHandler) ProcessMessage(ctx context.Context, sessionID, message string, visitor models.VisitorInfo) (*models.ChatResponse, error) {
	if err := validate(sessionID, message); err != nil {
		return nil, err
	}

	t := &turn{
		sessionID: strings.TrimSpace(sessionID),
		message:   strings.TrimSpace(message),
		stage:     StageReceived,
	}

	unlock := h.memory.Lock(t.sessionID)
	defer unlock()

	start := time.Now()
	h.logger.Info("💬 message received",
		zap.String("session_id", t.sessionID),
		zap.String("message", t.message),
	)

	session, err := h.memory.GetOrCreateSession(ctx, t.sessionID, visitor)
	if err != nil {
		return h.fail(ctx, t, start, err), nil
	}
	t.session = session

	if err := h.memory.SaveUserMessage(ctx, t.sessionID, t.message); err != nil {
		return h.fail(ctx, t, start, err), nil
	}

	t.classified = intent.Classify(t.message)
	t.kind = t.classified.Kind
	h.metrics.IncIntent(string(t.kind))
	h.logger.Debug("🏷️ message classified", classificationFields(t)...)

	resp, outcome, err := h.run(ctx, t)
	if err != nil {
		return h.fail(ctx, t, start, err), nil
	}

	t.advance(StageResponded)
	resp.Intent = string(t.kind)
	h.metrics.ObserveTurn(outcome, time.Since(start))
	h.logger.Info("✅ turn complete", append(classificationFields(t),
		zap.String("provider", t.provider),
		zap.String("outcome", outcome),
		zap.Int("products", len(resp.Products)),
		zap.Duration("took", time.Since(start)),
	)...)
	return resp, nil
}

// classificationFields describes the turn's intent, with the stated budget
// and policy topic when the message carried them
func classificationFields(t *turn) []zap.Field {
	fields := []zap.Field{
		zap.String("session_id", t.sessionID),
		zap.String("intent", string(t.kind)),
	}
	if p := t.classified.Price; p != nil {
		fields = append(fields, zap.Int("price_min", p.Min), zap.Int("price_max", p.Max))
	}
	if t.classified.Policy != "" {
		fields = append(fields, zap.String("policy", t.classified.Policy))
	}
	return fields
}

func (h *ChatHandler) run(ctx context.Context, t *turn) (*models.ChatResponse, string, error) {
	request := &llm.Request{
		System:  h.prompts.BuildSystemPrompt(ctx),
		History: memory.History(t.session.Messages, h.historyWindow),
		Message: t.message,
	}
	t.advance(StagePrompted)

	reply := h.gateway.Generate(ctx, request)
	t.provider = reply.Provider
	t.advance(StageModelReplied)
	h.logger.Debug("🤖 model replied", zap.String("session_id", t.sessionID), zap.String("raw", reply.Text))

	directive := prompts.ParseDirective(reply.Text)
	visible := prompts.VisibleReply(reply.Text)
	t.advance(StageDirectiveExtracted)

	if err := h.memory.SaveAssistantMessage(ctx, t.sessionID, visible); err != nil {
		return nil, "", err
	}
	t.assistantSaved = true

	if reply.Degraded {
		return respond(visible, nil), "degraded", nil
	}

	if directive != nil {
		h.logger.Info("🛍️ directive extracted",
			zap.String("session_id", t.sessionID),
			zap.String("directive", directive.String()),
		)
		products, err := h.catalog.Search(ctx, *directive, 0)
		if err != nil {
			return nil, "", err
		}
		t.advance(StageCatalogQueried)

		if err := h.memory.RememberSearch(ctx, t.sessionID, directive, 0); err != nil {
			return nil, "", err
		}
		if len(products) == 0 {
			return h.correct(ctx, t, NoProductsMessage)
		}
		h.trackViews(ctx, t, products)
		return respond(visible, products), "products", nil
	}

	if t.kind == intent.ShowMore {
		if last, ok := t.session.LastSearch(); ok {
			offset := t.session.ProductOffset() + catalog.PageSize
			h.logger.Info("🔄 show more requested",
				zap.String("session_id", t.sessionID),
				zap.String("directive", last.String()),
				zap.Int("offset", offset),
			)
			products, err := h.catalog.Search(ctx, *last, offset)
			if err != nil {
				return nil, "", err
			}
			t.advance(StageCatalogQueried)

			if err := h.memory.RememberSearch(ctx, t.sessionID, nil, offset); err != nil {
				return nil, "", err
			}
			if len(products) == 0 {
				return h.correct(ctx, t, NoMoreMessage)
			}
			h.trackViews(ctx, t, products)
			return respond(visible, products), "more", nil
		}
	}

	return respond(visible, nil), "text", nil
}

// correct overwrites the assistant message saved this turn
func (h *ChatHandler) correct(ctx context.Context, t *turn, text string) (*models.ChatResponse, string, error) {
	if err := h.memory.ReplaceAssistantMessage(ctx, t.sessionID, text); err != nil {
		return nil, "", err
	}
	return respond(text, nil), "empty", nil
}

func (h *ChatHandler) trackViews(ctx context.Context, t *turn, products []models.Product) {
	if err := h.memory.TrackProductViews(ctx, t.sessionID, products); err != nil {
		h.logger.Warn("failed to track product views", zap.String("session_id", t.sessionID), zap.Error(err))
	}
}

// fail records ErrorMessage as the turn's assistant reply where the store allows
func (h *ChatHandler) fail(ctx context.Context, t *turn, start time.Time, cause error) *models.ChatResponse {
	h.logger.Error("❌ turn failed",
		zap.String("session_id", t.sessionID),
		zap.String("stage", string(t.stage)),
		zap.Error(cause),
	)

	var err error
	switch {
	case t.assistantSaved:
		err = h.memory.ReplaceAssistantMessage(ctx, t.sessionID, ErrorMessage)
	case t.session != nil:
		err = h.memory.SaveAssistantMessage(ctx, t.sessionID, ErrorMessage)
	}
	if err != nil {
		h.logger.Error("failed to record error reply", zap.String("session_id", t.sessionID), zap.Error(err))
	}

	t.advance(StageResponded)
	h.metrics.ObserveTurn("error", time.Since(start))

	resp := respond(ErrorMessage, nil)
	if t.kind != "" {
		resp.Intent = string(t.kind)
	}
	return resp
}

// GetHistory returns the stored messages without changing anything
func (h *ChatHandler) GetHistory(ctx context.Context, sessionID string) ([]memory.Message, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, &models.ValidationError{Field: "sessionId"}
	}
	messages, err := h.memory.GetMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []memory.Message{}
	}
	return messages, nil
}

// ClearSession drops all state for a session
func (h *ChatHandler) ClearSession(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return &models.ValidationError{Field: "sessionId"}
	}

	unlock := h.memory.Lock(sessionID)
	defer unlock()
	return h.memory.ClearSession(ctx, sessionID)
}

// IsValidationError reports whether err rejects the request itself
func IsValidationError(err error) bool {
	var ve *models.ValidationError
	return errors.As(err, &ve)
}

func validate(sessionID, message string) error {
	if strings.TrimSpace(sessionID) == "" {
		return &models.ValidationError{Field: "sessionId"}
	}
	if strings.TrimSpace(message) == "" {
		return &models.ValidationError{Field: "message"}
	}
	return nil
}

func respond(text string, products []models.Product) *models.ChatResponse {
	if products == nil {
		products = []models.Product{}
	}
	return &models.ChatResponse{Response: text, Products: products}
}
