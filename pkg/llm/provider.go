package llm

import (
	"context"
	"fmt"
	"strings"
)

// Sentiment is the result of scoring a piece of text.
type Sentiment struct {
	Score float64 `json:"score"`
	Label string  `json:"label"`
}

// Provider produces summaries and sentiment scores from text.
// All variants (local stub, OpenAI-compatible remote) implement this.
type Provider interface {
	Summarize(ctx context.Context, text string) (string, error)
	AnalyzeSentiment(ctx context.Context, text string) (Sentiment, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider string
	URL      string
	APIKey   string
	Model    string
}

// New builds the configured provider. Unknown selectors fail here, at
// construction time, not on first call.
func New(cfg Config) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "local":
		return NewLocalProvider(), nil
	case "openai":
		return NewOpenAIProvider(cfg.URL, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
