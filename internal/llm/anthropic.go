package llm

import (
	"context"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/TobiSchelling/reviewguard/internal/prompt"
)

// AnthropicProvider calls the Anthropic Messages API.
type AnthropicProvider struct {
	model     string
	apiKey    string
	MaxTokens int
	client    anthropic.Client
}

// NewAnthropicProvider creates a provider reading its key from apiKeyEnv.
// Extra options (such as a base URL) are passed to the SDK client.
func NewAnthropicProvider(model, apiKeyEnv string, maxTokens int, opts ...option.RequestOption) *AnthropicProvider {
	apiKey := os.Getenv(apiKeyEnv)
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	return &AnthropicProvider{
		model:     model,
		apiKey:    apiKey,
		MaxTokens: maxTokens,
		client:    anthropic.NewClient(opts...),
	}
}

func (a *AnthropicProvider) Name() string  { return "anthropic" }
func (a *AnthropicProvider) Model() string { return a.model }

// IsConfigured checks if the API key is set.
func (a *AnthropicProvider) IsConfigured() bool {
	return a.apiKey != ""
}

// Complete sends system messages as the system prompt and the remaining turns
// as alternating user/assistant messages. The Messages API requires the
// first turn to come from the user, so leading assistant turns are moved into
// the system prompt.
func (a *AnthropicProvider) Complete(ctx context.Context, msgs prompt.Messages) (string, error) {
	turns := msgs.Turns()
	var system []anthropic.TextBlockParam
	if s := msgs.System(); s != "" {
		system = append(system, anthropic.TextBlockParam{Text: s})
	}
	for len(turns) > 0 && turns[0].Role == prompt.RoleAssistant {
		system = append(system, anthropic.TextBlockParam{Text: turns[0].Content})
		turns = turns[1:]
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   int64(a.MaxTokens),
		Temperature: anthropic.Float(0),
		Messages:    toAnthropicMessages(turns),
		System:      system,
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", eris.Wrap(err, "anthropic API error")
	}

	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", eris.New("no text in anthropic response")
	}
	return b.String(), nil
}

func toAnthropicMessages(turns prompt.Messages) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(turns))
	for _, m := range turns {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == prompt.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
			continue
		}
		out = append(out, anthropic.NewUserMessage(block))
	}
	return out
}
