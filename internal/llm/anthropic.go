package llm

import (
	"context"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
	"github.com/tmc/langchaingo/llms"
)

const DefaultAnthropicModel = "claude-3-5-haiku-latest"

type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider disables SDK retries; Gateway owns the retry policy
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(0),
		),
		model: model,
	}
}

func (a *AnthropicProvider) Name() string { return "anthropic" }

func (a *AnthropicProvider) Generate(ctx context.Context, request *Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		Messages:    toAnthropicMessages(request),
		MaxTokens:   int64(request.maxTokens()),
		Temperature: param.NewOpt(request.temperature()),
	}
	if request.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: request.System},
		}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if len(msg.Content) == 0 {
		return "", ErrInvalidResponse
	}
	return strings.TrimSpace(text.String()), nil
}

func toAnthropicMessages(request *Request) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(request.History)+1)
	for _, msg := range request.History {
		switch msg.GetType() {
		case llms.ChatMessageTypeHuman:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.GetContent())))
		case llms.ChatMessageTypeAI:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.GetContent())))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(request.Message)))
	return messages
}
