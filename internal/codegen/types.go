// Package codegen provides the client for the remote code-generation
// service that turns a classified issue into a source patch.
package codegen

import (
	"time"

	"github.com/complyhq/remedy/internal/issue"
)

// Provider identifies a code-generation model provider.
type Provider string

// Provider constants.
const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// Model identifies a generation model.
type Model string

// Model constants.
const (
	ModelClaudeSonnet Model = "claude-sonnet-4-20250514"
	ModelClaudeHaiku  Model = "claude-3-5-haiku-20241022"
	ModelGPT4o        Model = "gpt-4o"
)

// PatchRequest asks for one source patch for one page element.
type PatchRequest struct {
	Feature        issue.Feature        `json:"feature"`
	Element        issue.ElementContext `json:"element"`
	SuggestedFix   string               `json:"suggested_fix,omitempty"`
	RegulatoryRefs []string             `json:"regulatory_refs,omitempty"`
}

// Usage contains token usage statistics for a generation call.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd,omitempty"`
}

// Add accumulates another usage sample.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
	u.CostUSD += other.CostUSD
}

// PatchResponse is a successful generation result with its metadata.
type PatchResponse struct {
	FilePath    string    `json:"file_path"`
	Diff        string    `json:"diff"`
	Description string    `json:"description,omitempty"`
	Provider    Provider  `json:"provider"`
	ModelID     string    `json:"model_id"`
	LatencyMS   int64     `json:"latency_ms"`
	Usage       Usage     `json:"usage"`
	RequestID   string    `json:"request_id,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// CompletionRequest is a raw request to a provider.
type CompletionRequest struct {
	Model        Model
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// CompletionResponse is a raw response from a provider. ModelID names the
// model the provider actually served, after any model mapping.
type CompletionResponse struct {
	Content    string
	ModelID    string
	Usage      Usage
	StopReason string
	RequestID  string
	LatencyMS  int64
}

// Default configuration constants.
const (
	defaultTimeoutSeconds  = 60
	defaultMaxRetries      = 2
	defaultMaxOutputTokens = 8192
	defaultCallsPerMinute  = 30
)

// ClientConfig contains code-generation client configuration.
type ClientConfig struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string

	DefaultProvider Provider
	DefaultModel    Model

	// TimeoutSeconds bounds each generation call; on expiry the caller
	// records a failure outcome, it is not retried here.
	TimeoutSeconds int
	MaxRetries     int

	MaxOutputTokens int
	Temperature     float64

	// CallsPerMinute rate-limits outbound generation; every call carries
	// real monetary cost.
	CallsPerMinute int
}

// DefaultClientConfig returns default client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		DefaultProvider: ProviderAnthropic,
		DefaultModel:    ModelClaudeSonnet,
		TimeoutSeconds:  defaultTimeoutSeconds,
		MaxRetries:      defaultMaxRetries,
		MaxOutputTokens: defaultMaxOutputTokens,
		Temperature:     0.0,
		CallsPerMinute:  defaultCallsPerMinute,
	}
}
