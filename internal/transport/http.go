package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/avvvet/naina-chat/internal/models"
)

// HealthCheck reports whether one dependency is reachable
type HealthCheck func(ctx context.Context) error

// HTTPServer is the REST surface of the chat service
type HTTPServer struct {
	chat     ChatService
	syncer   CatalogSyncer
	checks   map[string]HealthCheck
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

type HTTPOption func(*HTTPServer)

// WithCatalogSyncer enables POST /api/catalog/sync
func WithCatalogSyncer(s CatalogSyncer) HTTPOption {
	return func(h *HTTPServer) { h.syncer = s }
}

func WithHealthCheck(name string, check HealthCheck) HTTPOption {
	return func(h *HTTPServer) { h.checks[name] = check }
}

// WithGatherer serves /metrics from g
func WithGatherer(g prometheus.Gatherer) HTTPOption {
	return func(h *HTTPServer) { h.gatherer = g }
}

func NewHTTPServer(chat ChatService, logger *zap.Logger, opts ...HTTPOption) *HTTPServer {
	h := &HTTPServer{
		chat:   chat,
		checks: map[string]HealthCheck{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Echo builds the router with middleware and every route registered
func (h *HTTPServer) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			h.logger.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			)
			return nil
		},
	}))
	e.Use(middleware.CORS())

	h.Register(e)
	return e
}

// Register mounts the routes on e
func (h *HTTPServer) Register(e *echo.Echo) {
	e.GET("/health", h.Health)
	if h.gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}

	api := e.Group("/api")
	api.POST("/chat/message", h.SendMessage)
	api.GET("/chat/history/:sessionId", h.GetHistory)
	api.DELETE("/chat/session/:sessionId", h.ClearSession)
	api.POST("/catalog/sync", h.SyncCatalog)
}

// SendMessage runs one chat turn.
// POST /api/chat/message
func (h *HTTPServer) SendMessage(c echo.Context) error {
	var req models.ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body", Code: models.ErrorInvalidRequest})
	}

	visitor := req.Visitor
	visitor.IPAddress = c.RealIP()
	visitor.UserAgent = c.Request().UserAgent()

	resp, err := h.chat.ProcessMessage(c.Request().Context(), req.SessionID, req.Message, visitor)
	if err != nil {
		return h.fail(c, err, req.SessionID)
	}
	return c.JSON(http.StatusOK, resp)
}

// GetHistory returns the stored messages of a session.
// GET /api/chat/history/:sessionId
func (h *HTTPServer) GetHistory(c echo.Context) error {
	sessionID := c.Param("sessionId")
	messages, err := h.chat.GetHistory(c.Request().Context(), sessionID)
	if err != nil {
		return h.fail(c, err, sessionID)
	}
	return c.JSON(http.StatusOK, HistoryResponse{SessionID: sessionID, Messages: messages})
}

// ClearSession drops a session.
// DELETE /api/chat/session/:sessionId
func (h *HTTPServer) ClearSession(c echo.Context) error {
	sessionID := c.Param("sessionId")
	if err := h.chat.ClearSession(c.Request().Context(), sessionID); err != nil {
		return h.fail(c, err, sessionID)
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "sessionId": sessionID})
}

// SyncCatalog pulls the storefront catalog now.
// POST /api/catalog/sync
func (h *HTTPServer) SyncCatalog(c echo.Context) error {
	if h.syncer == nil {
		return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "catalog sync is not configured", Code: models.ErrorInternal})
	}
	result, err := h.syncer.Run(c.Request().Context())
	if err != nil {
		h.logger.Error("❌ catalog sync failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: "catalog sync failed", Code: models.ErrorInternal})
	}
	return c.JSON(http.StatusOK, result)
}

// Health reports each dependency check.
// GET /health
func (h *HTTPServer) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	return c.JSON(status, map[string]any{"status": overall, "checks": checks})
}

func (h *HTTPServer) fail(c echo.Context, err error, sessionID string) error {
	if isValidation(err) {
		return c.JSON(http.StatusBadRequest, errorResponse(err, sessionID))
	}
	h.logger.Error("request failed", zap.String("session_id", sessionID), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, errorResponse(err, sessionID))
}
