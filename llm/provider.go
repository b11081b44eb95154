// Package llm abstracts the two model capabilities the engine needs: text
// completion and embedding. Providers are thin HTTP clients; prompt
// construction lives with the caller, so a provider never invents or rewrites
// prompt content.
package llm

import (
	"context"
	"fmt"
)

// Provider is the interface for model interactions.
type Provider interface {
	// Complete sends a text completion request and returns the raw
	// completion text.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Embed generates embeddings for a batch of texts. Output order matches
	// input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// CompletionRequest is a prompt-style completion request.
type CompletionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	// Stop sequences end generation early. Generation stops before the
	// sequence, so the stop text never appears in the output.
	Stop []string `json:"stop,omitempty"`
}

// CompletionResponse is the response from a completion request.
type CompletionResponse struct {
	Text             string `json:"text"`
	Model            string `json:"model"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// Config configures a provider.
type Config struct {
	Provider string `json:"provider"` // openaicompat, ollama, openai, claudecli
	Model    string `json:"model"`
	BaseURL  string `json:"base_url"`
	APIKey   string `json:"api_key"`
}

// NewProvider creates a provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "openaicompat":
		return NewOpenAICompat(cfg), nil
	case "ollama":
		return NewOllama(cfg), nil
	case "openai":
		return NewOpenAI(cfg), nil
	case "claudecli":
		return NewClaudeCLI(cfg), nil
	case "":
		return nil, fmt.Errorf("llm provider not specified")
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
