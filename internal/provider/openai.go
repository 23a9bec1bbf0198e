package provider

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIProvider calls the OpenAI chat completions API.
type OpenAIProvider struct {
	model     string
	maxTokens int
	opts      []option.RequestOption
}

// NewOpenAIProvider creates the provider. Extra options are applied to every client,
// which lets tests point it at a local server.
func NewOpenAIProvider(model string, maxTokens int, opts ...option.RequestOption) *OpenAIProvider {
	return &OpenAIProvider{model: model, maxTokens: maxTokens, opts: opts}
}

func (p *OpenAIProvider) Generate(ctx context.Context, secret string, req Request) (string, error) {
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(secret)}, p.opts...)...)

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               openai.ChatModel(p.model),
		MaxCompletionTokens: openai.Int(int64(maxTokens(req, p.maxTokens))),
	}
	if req.Structured {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	completion, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}
