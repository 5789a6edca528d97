package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/TobiSchelling/reviewguard/internal/config"
	"github.com/TobiSchelling/reviewguard/internal/prompt"
)

// ErrNotConfigured means no judge could be reached with the current settings.
// It is a setup failure and stops a run before any row is sent.
var ErrNotConfigured = eris.New("no judge provider configured")

// Provider is the interface for LLM providers. Complete sends the whole
// conversation and returns the assistant's text. Implementations ask for
// deterministic JSON output and never retry.
type Provider interface {
	Complete(ctx context.Context, msgs prompt.Messages) (string, error)
	IsConfigured() bool
	Name() string
	Model() string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func toChatMessages(msgs prompt.Messages) []chatMessage {
	out := make([]chatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

// OllamaProvider is a local Ollama LLM provider.
type OllamaProvider struct {
	model     string
	BaseURL   string
	MaxTokens int
	client    *http.Client
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(model, baseURL string, maxTokens int) *OllamaProvider {
	return &OllamaProvider{
		model:     model,
		BaseURL:   strings.TrimRight(baseURL, "/"),
		MaxTokens: maxTokens,
		client:    &http.Client{Timeout: 120 * time.Second},
	}
}

func (o *OllamaProvider) Name() string  { return "ollama" }
func (o *OllamaProvider) Model() string { return o.model }

// IsConfigured checks if Ollama is running and the model is available.
func (o *OllamaProvider) IsConfigured() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false
	}

	modelBase := strings.SplitN(o.model, ":", 2)[0]
	for _, m := range result.Models {
		if strings.Contains(m.Name, modelBase) {
			return true
		}
	}
	zap.L().Warn("Ollama model not found", zap.String("model", o.model))
	return false
}

// Complete sends the conversation to Ollama's chat endpoint in JSON mode.
func (o *OllamaProvider) Complete(ctx context.Context, msgs prompt.Messages) (string, error) {
	body := map[string]any{
		"model":    o.model,
		"messages": toChatMessages(msgs),
		"stream":   false,
		"format":   "json",
		"options": map[string]any{
			"num_predict": o.MaxTokens,
			"temperature": 0,
		},
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := postJSON(ctx, o.client, o.BaseURL+"/api/chat", nil, body, &result); err != nil {
		return "", eris.Wrap(err, "ollama API error")
	}
	return result.Message.Content, nil
}

// OpenAIProvider is an OpenAI chat completions provider.
type OpenAIProvider struct {
	model     string
	BaseURL   string
	APIKey    string
	MaxTokens int
	client    *http.Client
}

// NewOpenAIProvider creates a new OpenAI provider reading its key from apiKeyEnv.
func NewOpenAIProvider(model, baseURL, apiKeyEnv string, maxTokens int) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		model:     model,
		BaseURL:   strings.TrimRight(baseURL, "/"),
		APIKey:    os.Getenv(apiKeyEnv),
		MaxTokens: maxTokens,
		client:    &http.Client{Timeout: 120 * time.Second},
	}
}

func (o *OpenAIProvider) Name() string  { return "openai" }
func (o *OpenAIProvider) Model() string { return o.model }

// IsConfigured checks if the API key is set.
func (o *OpenAIProvider) IsConfigured() bool {
	return o.APIKey != ""
}

// Complete sends the conversation with temperature 0 and JSON object output.
func (o *OpenAIProvider) Complete(ctx context.Context, msgs prompt.Messages) (string, error) {
	if o.APIKey == "" {
		return "", eris.New("OpenAI API key not configured")
	}

	body := map[string]any{
		"model":           o.model,
		"messages":        toChatMessages(msgs),
		"max_tokens":      o.MaxTokens,
		"temperature":     0,
		"response_format": map[string]string{"type": "json_object"},
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	headers := map[string]string{"Authorization": "Bearer " + o.APIKey}
	if err := postJSON(ctx, o.client, o.BaseURL+"/chat/completions", headers, body, &result); err != nil {
		return "", eris.Wrap(err, "OpenAI API error")
	}

	if len(result.Choices) == 0 {
		return "", eris.New("no choices in OpenAI response")
	}
	return result.Choices[0].Message.Content, nil
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshaling request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return eris.Wrap(err, "creating request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return eris.Errorf("API returned %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrap(err, "decoding response")
	}
	return nil
}

// CreateProvider creates the judge named in cfg. An unavailable Ollama falls
// back to OpenAI. It returns ErrNotConfigured when nothing is usable.
func CreateProvider(ctx context.Context, cfg config.Judge) (Provider, error) {
	log := zap.L()

	switch strings.ToLower(cfg.Provider) {
	case "anthropic":
		p := NewAnthropicProvider(cfg.AnthropicModel, cfg.AnthropicKeyEnv, cfg.MaxTokens)
		if p.IsConfigured() {
			log.Info("Using Anthropic", zap.String("model", cfg.AnthropicModel))
			return p, nil
		}
		return nil, eris.Wrapf(ErrNotConfigured, "set %s", cfg.AnthropicKeyEnv)

	case "gemini":
		p, err := NewGeminiProvider(ctx, cfg.GeminiModel, cfg.GeminiKeyEnv, cfg.MaxTokens)
		if err != nil {
			return nil, eris.Wrap(err, "creating gemini client")
		}
		if p.IsConfigured() {
			log.Info("Using Gemini", zap.String("model", cfg.GeminiModel))
			return p, nil
		}
		return nil, eris.Wrapf(ErrNotConfigured, "set %s", cfg.GeminiKeyEnv)

	case "ollama":
		p := NewOllamaProvider(cfg.Model, cfg.OllamaURL, cfg.MaxTokens)
		if p.IsConfigured() {
			log.Info("Using Ollama", zap.String("model", cfg.Model))
			return p, nil
		}
		log.Warn("Ollama not available, trying OpenAI fallback")
	}

	p := NewOpenAIProvider(cfg.OpenAIModel, cfg.OpenAIURL, cfg.APIKeyEnv, cfg.MaxTokens)
	if p.IsConfigured() {
		log.Info("Using OpenAI", zap.String("model", cfg.OpenAIModel))
		return p, nil
	}

	return nil, eris.Wrapf(ErrNotConfigured, "check Ollama is running or set %s", cfg.APIKeyEnv)
}
