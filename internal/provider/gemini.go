package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider calls the Google Generative Language API.
type GeminiProvider struct {
	model     string
	maxTokens int
}

func NewGeminiProvider(model string, maxTokens int) *GeminiProvider {
	return &GeminiProvider{model: model, maxTokens: maxTokens}
}

func (p *GeminiProvider) Generate(ctx context.Context, secret string, req Request) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(secret))
	if err != nil {
		return "", fmt.Errorf("failed to create gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(p.model)
	model.SetMaxOutputTokens(int32(maxTokens(req, p.maxTokens)))
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.Structured {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}
