package advisor

import (
	"context"

	"google.golang.org/genai"
)

// geminiProvider implements Provider using the Google Gemini API.
type geminiProvider struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

func newGeminiProvider(ctx context.Context, apiKey, model string, maxTokens int64) (*geminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &geminiProvider{
		client:    client,
		model:     model,
		maxTokens: int32(maxTokens),
	}, nil
}

func (g *geminiProvider) Advise(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, ""),
		MaxOutputTokens:   g.maxTokens,
	}

	contents := []*genai.Content{
		genai.NewContentFromText(userPrompt, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
