package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
	DefaultGroqModel   = "llama-3.3-70b-versatile"
)

// GroqProvider talks to any OpenAI-compatible chat endpoint, Groq by default
type GroqProvider struct {
	model llms.Model
	name  string
}

func NewGroqProvider(apiKey, model, baseURL string) (*GroqProvider, error) {
	if model == "" {
		model = DefaultGroqModel
	}
	if baseURL == "" {
		baseURL = DefaultGroqBaseURL
	}

	client, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithModel(model),
		openai.WithBaseURL(baseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create groq client: %w", err)
	}
	return &GroqProvider{model: client, name: "groq"}, nil
}

func (p *GroqProvider) Name() string { return p.name }

func (p *GroqProvider) Generate(ctx context.Context, request *Request) (string, error) {
	resp, err := p.model.GenerateContent(ctx, toMessageContent(request),
		llms.WithMaxTokens(request.maxTokens()),
		llms.WithTemperature(request.temperature()),
	)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrInvalidResponse
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

func toMessageContent(request *Request) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(request.History)+2)
	if request.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, request.System))
	}
	for _, msg := range request.History {
		switch msg.GetType() {
		case llms.ChatMessageTypeAI:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeAI, msg.GetContent()))
		case llms.ChatMessageTypeHuman:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, msg.GetContent()))
		}
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, request.Message))
	return messages
}
