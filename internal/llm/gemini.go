package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiProvider calls the Gemini API through the genai SDK
type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if model == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Generate(ctx context.Context, request *Request) (string, error) {
	temp := float32(request.temperature())
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(request.maxTokens()),
		Temperature:     &temp,
	}
	if request.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: request.System}},
		}
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, toGeminiContents(request), config)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrInvalidResponse
	}
	return strings.TrimSpace(resp.Text()), nil
}

func toGeminiContents(request *Request) []*genai.Content {
	contents := make([]*genai.Content, 0, len(request.History)+1)
	for _, msg := range request.History {
		role := ""
		switch msg.GetType() {
		case llms.ChatMessageTypeHuman:
			role = "user"
		case llms.ChatMessageTypeAI:
			role = "model"
		default:
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.GetContent()}},
		})
	}
	contents = append(contents, &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: request.Message}},
	})
	return contents
}
