package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/avvvet/naina-chat/internal/metrics"
)

// ApologyMessage is returned when no provider could answer
const ApologyMessage = "I'm having trouble connecting right now. Please try again in a moment! 😊"

// GatewayConfig bounds a single Generate call
type GatewayConfig struct {
	Timeout           time.Duration // per provider call
	MaxAttempts       int           // per provider, rate limits only
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	RequestsPerMinute int // 0 disables the limiter
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Timeout:           20 * time.Second,
		MaxAttempts:       3,
		BaseBackoff:       time.Second,
		MaxBackoff:        8 * time.Second,
		RequestsPerMinute: 15,
	}
}

// Reply is the gateway outcome. Degraded is set when Text is the apology.
type Reply struct {
	Text     string
	Provider string
	Degraded bool
}

// Gateway calls the primary provider, backs off on rate limits, fails over
// once to the fallback provider and finally answers with ApologyMessage.
type Gateway struct {
	primary  Provider
	fallback Provider
	cfg      GatewayConfig
	limiter  *rate.Limiter
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

type GatewayOption func(*Gateway)

// WithSleep replaces the backoff sleeper
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) GatewayOption {
	return func(g *Gateway) { g.sleep = sleep }
}

func WithMetrics(m *metrics.Metrics) GatewayOption {
	return func(g *Gateway) { g.metrics = m }
}

// NewGateway creates a gateway. fallback may be nil.
func NewGateway(primary, fallback Provider, cfg GatewayConfig, logger *zap.Logger, opts ...GatewayOption) *Gateway {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}

	g := &Gateway{
		primary:  primary,
		fallback: fallback,
		cfg:      cfg,
		sleep:    sleepContext,
		logger:   logger,
	}
	if cfg.RequestsPerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute)
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate never returns an error; every failure ends in ApologyMessage
func (g *Gateway) Generate(ctx context.Context, request *Request) *Reply {
	text, err := g.callWithBackoff(ctx, g.primary, request)
	if err == nil {
		return &Reply{Text: text, Provider: g.primary.Name()}
	}
	g.logger.Warn("⚠️ primary provider failed",
		zap.String("provider", g.primary.Name()),
		zap.Error(err),
	)

	if g.fallback != nil && ctx.Err() == nil {
		g.metrics.IncFailover()
		g.logger.Info("🔁 falling back", zap.String("provider", g.fallback.Name()))

		text, err = g.callWithBackoff(ctx, g.fallback, request)
		if err == nil {
			return &Reply{Text: text, Provider: g.fallback.Name()}
		}
		g.logger.Error("❌ fallback provider failed",
			zap.String("provider", g.fallback.Name()),
			zap.Error(err),
		)
	}

	return &Reply{Text: ApologyMessage, Degraded: true}
}

func (g *Gateway) callWithBackoff(ctx context.Context, p Provider, request *Request) (string, error) {
	var err error
	for attempt := 0; attempt < g.cfg.MaxAttempts; attempt++ {
		var text string
		text, err = g.call(ctx, p, request)
		if err == nil {
			g.metrics.IncGatewayCall(p.Name(), "ok")
			return text, nil
		}

		if !errors.Is(err, ErrRateLimited) {
			g.metrics.IncGatewayCall(p.Name(), "error")
			return "", err
		}
		g.metrics.IncGatewayCall(p.Name(), "rate_limited")

		if attempt == g.cfg.MaxAttempts-1 {
			break
		}
		delay := g.backoff(attempt)
		g.logger.Info("⏳ rate limited, backing off",
			zap.String("provider", p.Name()),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
		)
		if serr := g.sleep(ctx, delay); serr != nil {
			return "", Classify(p.Name(), serr)
		}
	}
	return "", err
}

func (g *Gateway) call(ctx context.Context, p Provider, request *Request) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", Classify(p.Name(), err)
		}
	}

	callCtx := ctx
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	text, err := p.Generate(callCtx, request)
	return text, Classify(p.Name(), err)
}

// backoff is min(base * 2^attempt, max)
func (g *Gateway) backoff(attempt int) time.Duration {
	d := g.cfg.BaseBackoff
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= g.cfg.MaxBackoff {
			return g.cfg.MaxBackoff
		}
	}
	if d > g.cfg.MaxBackoff {
		return g.cfg.MaxBackoff
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
