package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/anthropic"
	"github.com/firebase/genkit/go/plugins/compat_oai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
)

// ClientConfig selects the provider behind GenkitClient.
type ClientConfig struct {
	// Provider is one of "openai", "google", "anthropic", "openai_compatible".
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

// GenkitClient talks to the configured LLM through Genkit plugins.
type GenkitClient struct {
	g     *genkit.Genkit
	model string
	llmOn bool
}

// NewGenkitClient initializes Genkit for the provider. A missing key leaves
// the client unconfigured so generation falls back to mock payloads.
func NewGenkitClient(ctx context.Context, cfg ClientConfig, logger *slog.Logger) *GenkitClient {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "llm")

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "openai"
	}
	model := strings.TrimSpace(cfg.Model)
	apiKey := strings.TrimSpace(cfg.APIKey)

	c := &GenkitClient{model: modelNameForProvider(provider, model)}
	if apiKey == "" || model == "" {
		c.g = genkit.Init(ctx)
		logger.Warn("LLM credentials missing; using mock payloads", "provider", provider)
		return c
	}

	switch provider {
	case "anthropic":
		c.g = genkit.Init(ctx, genkit.WithPlugins(&anthropic.Anthropic{
			APIKey:  apiKey,
			BaseURL: cfg.BaseURL,
		}))
	case "openai":
		c.g = genkit.Init(ctx, genkit.WithPlugins(&compat_oai.OpenAICompatible{
			Provider: "openai",
			APIKey:   apiKey,
			BaseURL:  cfg.BaseURL,
		}))
	case "openai_compatible":
		c.g = genkit.Init(ctx, genkit.WithPlugins(&compat_oai.OpenAICompatible{
			Provider: "openai_compatible",
			APIKey:   apiKey,
			BaseURL:  cfg.BaseURL,
		}))
	case "google":
		_ = os.Setenv("GEMINI_API_KEY", apiKey)
		c.g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	default:
		c.g = genkit.Init(ctx)
		logger.Warn("unknown LLM provider; using mock payloads", "provider", provider)
		return c
	}
	c.llmOn = true
	logger.Info("genkit client initialized", "provider", provider, "model", c.model)
	return c
}

func (c *GenkitClient) Configured() bool { return c != nil && c.llmOn }

func (c *GenkitClient) Model() string { return c.model }

func (c *GenkitClient) Complete(ctx context.Context, msgs []Message) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(c.model),
		ai.WithMessages(toGenkitMessages(msgs)...),
	)
	if err != nil {
		return "", fmt.Errorf("genkit generate: %w", err)
	}
	return resp.Text(), nil
}

func modelNameForProvider(provider, model string) string {
	switch provider {
	case "anthropic":
		return "anthropic/" + model
	case "openai":
		return "openai/" + model
	case "openai_compatible":
		return model
	default:
		return "googleai/" + model
	}
}

func toGenkitMessages(msgs []Message) []*ai.Message {
	out := make([]*ai.Message, 0, len(msgs))
	for _, m := range msgs {
		var role ai.Role
		switch m.Role {
		case RoleSystem:
			role = ai.RoleSystem
		case RoleAssistant:
			role = ai.RoleModel
		default:
			role = ai.RoleUser
		}
		out = append(out, &ai.Message{
			Role:    role,
			Content: []*ai.Part{ai.NewTextPart(m.Content)},
		})
	}
	return out
}
