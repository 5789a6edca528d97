package llm

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/TobiSchelling/reviewguard/internal/prompt"
)

// GeminiProvider calls the Gemini API through the genai SDK.
type GeminiProvider struct {
	model     string
	apiKey    string
	MaxTokens int
	client    *genai.Client
}

// NewGeminiProvider creates a provider reading its key from apiKeyEnv. The
// SDK client is only built when a key is present.
func NewGeminiProvider(ctx context.Context, model, apiKeyEnv string, maxTokens int) (*GeminiProvider, error) {
	p := &GeminiProvider{
		model:     model,
		apiKey:    os.Getenv(apiKeyEnv),
		MaxTokens: maxTokens,
	}
	if p.apiKey == "" {
		return p, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	p.client = client
	return p, nil
}

func (g *GeminiProvider) Name() string  { return "gemini" }
func (g *GeminiProvider) Model() string { return g.model }

// IsConfigured checks if the API key is set.
func (g *GeminiProvider) IsConfigured() bool {
	return g.apiKey != "" && g.client != nil
}

// Complete sends the conversation with JSON output and temperature 0.
func (g *GeminiProvider) Complete(ctx context.Context, msgs prompt.Messages) (string, error) {
	if g.client == nil {
		return "", eris.New("Gemini API key not configured")
	}

	system, contents := toGeminiContents(msgs)
	cfg := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr[float32](0),
		ResponseMIMEType:  "application/json",
		MaxOutputTokens:   int32(g.MaxTokens),
		SystemInstruction: system,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", eris.Wrap(err, "gemini API error")
	}
	text := resp.Text()
	if text == "" {
		return "", eris.New("no text in gemini response")
	}
	return text, nil
}

// toGeminiContents maps assistant turns to the model role and returns the
// system prompt separately.
func toGeminiContents(msgs prompt.Messages) (*genai.Content, []*genai.Content) {
	var system *genai.Content
	if s := msgs.System(); s != "" {
		system = genai.NewContentFromText(s, genai.RoleUser)
	}

	turns := msgs.Turns()
	contents := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		role := genai.Role(genai.RoleUser)
		if m.Role == prompt.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return system, contents
}
