package provider

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ClaudeProvider calls the Anthropic messages API.
type ClaudeProvider struct {
	model     string
	maxTokens int
	opts      []option.RequestOption
}

func NewClaudeProvider(model string, maxTokens int, opts ...option.RequestOption) *ClaudeProvider {
	return &ClaudeProvider{model: model, maxTokens: maxTokens, opts: opts}
}

func (p *ClaudeProvider) Generate(ctx context.Context, secret string, req Request) (string, error) {
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(secret)}, p.opts...)...)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens(req, p.maxTokens)),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	message, err := client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}
