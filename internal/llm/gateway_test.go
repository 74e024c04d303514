package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
)

type scriptedProvider struct {
	name string

	mu      sync.Mutex
	results []error
	reply   string
	calls   int
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Generate(ctx context.Context, _ *Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	if i < len(p.results) && p.results[i] != nil {
		return "", p.results[i]
	}
	return p.reply, nil
}

func (p *scriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type recordedSleeps struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return nil
}

func testConfig() GatewayConfig {
	return GatewayConfig{
		Timeout:     time.Second,
		MaxAttempts: 3,
		BaseBackoff: time.Second,
		MaxBackoff:  8 * time.Second,
	}
}

func newTestGateway(primary, fallback Provider, sleeps *recordedSleeps) *Gateway {
	return NewGateway(primary, fallback, testConfig(), zap.NewNop(), WithSleep(sleeps.sleep))
}

func TestGateway_PrimarySucceeds(t *testing.T) {
	primary := &scriptedProvider{name: "groq", reply: "Hey! 😊"}
	fallback := &scriptedProvider{name: "gemini", reply: "unused"}
	g := newTestGateway(primary, fallback, &recordedSleeps{})

	reply := g.Generate(context.Background(), &Request{Message: "hi"})
	assert.Equal(t, &Reply{Text: "Hey! 😊", Provider: "groq"}, reply)
	assert.Equal(t, 0, fallback.Calls())
}

func TestGateway_FailsOverOnNonRateLimitError(t *testing.T) {
	primary := &scriptedProvider{name: "groq", results: []error{errors.New("connection refused")}}
	fallback := &scriptedProvider{name: "gemini", reply: "From the backup"}
	sleeps := &recordedSleeps{}
	g := newTestGateway(primary, fallback, sleeps)

	reply := g.Generate(context.Background(), &Request{Message: "hi"})
	assert.Equal(t, "From the backup", reply.Text)
	assert.Equal(t, "gemini", reply.Provider)
	assert.False(t, reply.Degraded)
	assert.Equal(t, 1, primary.Calls(), "non rate-limit errors are not retried")
	assert.Empty(t, sleeps.delays)
}

func TestGateway_BacksOffOnRateLimitThenSucceeds(t *testing.T) {
	primary := &scriptedProvider{name: "groq", reply: "Finally", results: []error{ErrRateLimited, ErrRateLimited}}
	fallback := &scriptedProvider{name: "gemini"}
	sleeps := &recordedSleeps{}
	g := newTestGateway(primary, fallback, sleeps)

	reply := g.Generate(context.Background(), &Request{Message: "hi"})
	assert.Equal(t, "Finally", reply.Text)
	assert.Equal(t, 3, primary.Calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps.delays)
	assert.Equal(t, 0, fallback.Calls())
}

func TestGateway_RateLimitExhaustedFailsOverOnce(t *testing.T) {
	limited := fmt.Errorf("API returned unexpected status code: 429: slow down")
	primary := &scriptedProvider{name: "groq", results: []error{limited, limited, limited}}
	fallback := &scriptedProvider{name: "gemini", results: []error{ErrUnavailable}}
	sleeps := &recordedSleeps{}
	g := newTestGateway(primary, fallback, sleeps)

	reply := g.Generate(context.Background(), &Request{Message: "hi"})
	assert.Equal(t, &Reply{Text: ApologyMessage, Degraded: true}, reply)
	assert.Equal(t, 3, primary.Calls())
	assert.Equal(t, 1, fallback.Calls())
	assert.Len(t, sleeps.delays, 2)
}

func TestGateway_NoFallbackReturnsApology(t *testing.T) {
	primary := &scriptedProvider{name: "groq", results: []error{errors.New("boom")}}
	g := newTestGateway(primary, nil, &recordedSleeps{})

	reply := g.Generate(context.Background(), &Request{Message: "hi"})
	assert.Equal(t, ApologyMessage, reply.Text)
	assert.True(t, reply.Degraded)
}

func TestGateway_CancelledContextSkipsFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	primary := &scriptedProvider{name: "groq", results: []error{context.Canceled}}
	fallback := &scriptedProvider{name: "gemini", reply: "unused"}
	g := newTestGateway(primary, fallback, &recordedSleeps{})

	reply := g.Generate(ctx, &Request{Message: "hi"})
	assert.True(t, reply.Degraded)
	assert.Equal(t, 0, fallback.Calls())
}

func TestGateway_BackoffIsCapped(t *testing.T) {
	g := NewGateway(&scriptedProvider{name: "p"}, nil, GatewayConfig{
		MaxAttempts: 10,
		BaseBackoff: time.Second,
		MaxBackoff:  5 * time.Second,
	}, zap.NewNop())

	assert.Equal(t, time.Second, g.backoff(0))
	assert.Equal(t, 2*time.Second, g.backoff(1))
	assert.Equal(t, 4*time.Second, g.backoff(2))
	assert.Equal(t, 5*time.Second, g.backoff(3))
	assert.Equal(t, 5*time.Second, g.backoff(9))
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify("p", nil))
	assert.ErrorIs(t, Classify("p", errors.New("HTTP 429 Too Many Requests")), ErrRateLimited)
	assert.ErrorIs(t, Classify("p", errors.New("rate limit reached for model")), ErrRateLimited)
	assert.ErrorIs(t, Classify("p", context.DeadlineExceeded), ErrUnavailable)
	assert.ErrorIs(t, Classify("p", errors.New("dial tcp: refused")), ErrUnavailable)
	assert.ErrorIs(t, Classify("p", ErrInvalidResponse), ErrInvalidResponse)

	cause := errors.New("socket closed")
	err := Classify("gemini", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "gemini: provider unavailable: socket closed", err.Error())

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "gemini", pe.Provider)
	assert.Same(t, err, Classify("other", err))
}

func TestRequestConversions(t *testing.T) {
	request := &Request{
		System: "be nice",
		History: []llms.ChatMessage{
			llms.HumanChatMessage{Content: "hi"},
			llms.AIChatMessage{Content: "hello"},
			llms.SystemChatMessage{Content: "ignored"},
		},
		Message: "rings",
	}

	oai := toMessageContent(request)
	require.Len(t, oai, 4)
	assert.Equal(t, llms.ChatMessageTypeSystem, oai[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, oai[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, oai[2].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, oai[3].Role)
	assert.Equal(t, llms.TextContent{Text: "rings"}, oai[3].Parts[0])

	gem := toGeminiContents(request)
	require.Len(t, gem, 3)
	assert.Equal(t, "user", gem[0].Role)
	assert.Equal(t, "model", gem[1].Role)
	assert.Equal(t, "rings", gem[2].Parts[0].Text)

	assert.Len(t, toAnthropicMessages(request), 3)
}

func TestGroqProvider_AgainstCompatibleEndpoint(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		code := int(status.Load())
		w.WriteHeader(code)
		if code != http.StatusOK {
			fmt.Fprint(w, `{"error":{"message":"Rate limit reached","type":"requests"}}`)
			return
		}
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m",
			"choices":[{"index":0,"message":{"role":"assistant","content":" Here are our rings! SHOW[ring|0|10000] "},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`)
	}))
	defer srv.Close()

	p, err := NewGroqProvider("test-key", "m", srv.URL)
	require.NoError(t, err)

	text, err := p.Generate(context.Background(), &Request{System: "sys", Message: "rings"})
	require.NoError(t, err)
	assert.Equal(t, "Here are our rings! SHOW[ring|0|10000]", text)

	status.Store(http.StatusTooManyRequests)
	_, err = p.Generate(context.Background(), &Request{Message: "rings"})
	require.Error(t, err)
	assert.ErrorIs(t, Classify(p.Name(), err), ErrRateLimited)
}
