package codegen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pitabwire/util"
	"golang.org/x/time/rate"
)

// Common errors.
var (
	ErrNoAPIKey           = errors.New("no API key configured")
	ErrRateLimited        = errors.New("rate limited")
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrInvalidResponse    = errors.New("invalid response from generation service")
	ErrAllProvidersFailed = errors.New("all providers failed")
)

// Client is the interface for patch generation operations.
type Client interface {
	// GeneratePatch requests one source patch for one element.
	GeneratePatch(ctx context.Context, req PatchRequest) (*PatchResponse, error)

	// GetUsage returns cumulative usage statistics.
	GetUsage() Usage
}

// ProviderClient is the interface for a single generation provider.
type ProviderClient interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
	Provider() Provider
	IsAvailable() bool
}

// MultiProviderClient implements Client with provider fallback, retry and
// outbound rate limiting.
type MultiProviderClient struct {
	providers     []ProviderClient
	promptBuilder *PromptBuilder
	config        ClientConfig
	limiter       *rate.Limiter

	mu         sync.Mutex
	totalUsage Usage
}

// NewMultiProviderClient creates a new multi-provider client.
func NewMultiProviderClient(cfg ClientConfig) (*MultiProviderClient, error) {
	pb, err := NewPromptBuilder()
	if err != nil {
		return nil, fmt.Errorf("create prompt builder: %w", err)
	}

	const numProviders = 2
	providers := make([]ProviderClient, 0, numProviders)

	if cfg.AnthropicAPIKey != "" {
		providers = append(providers, NewAnthropicClient(cfg.AnthropicAPIKey, cfg))
	}
	if cfg.OpenAIAPIKey != "" {
		providers = append(providers, NewOpenAIClient(cfg.OpenAIAPIKey, cfg))
	}

	if len(providers) == 0 {
		return nil, ErrNoAPIKey
	}

	orderByDefault(providers, cfg.DefaultProvider)

	callsPerMinute := cfg.CallsPerMinute
	if callsPerMinute <= 0 {
		callsPerMinute = defaultCallsPerMinute
	}
	limiter := rate.NewLimiter(rate.Limit(float64(callsPerMinute)/60.0), 1)

	return &MultiProviderClient{
		providers:     providers,
		promptBuilder: pb,
		config:        cfg,
		limiter:       limiter,
	}, nil
}

// orderByDefault moves the configured default provider to the front of the
// fallback order.
func orderByDefault(providers []ProviderClient, preferred Provider) {
	if preferred == "" {
		return
	}
	for i, provider := range providers {
		if provider.Provider() == preferred && i > 0 {
			first := provider
			copy(providers[1:i+1], providers[:i])
			providers[0] = first
			return
		}
	}
}

// patchPayload is the JSON shape the model is asked to return.
type patchPayload struct {
	FilePath    string `json:"file_path"`
	Diff        string `json:"diff"`
	Description string `json:"description"`
}

// GeneratePatch implements Client.
func (c *MultiProviderClient) GeneratePatch(
	ctx context.Context,
	req PatchRequest,
) (*PatchResponse, error) {
	log := util.Log(ctx)

	prompt, err := c.promptBuilder.Build(req)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	timeout := time.Duration(c.config.TimeoutSeconds) * time.Second
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if waitErr := c.limiter.Wait(ctx); waitErr != nil {
		return nil, waitErr
	}

	creq := &CompletionRequest{
		Model:        c.config.DefaultModel,
		SystemPrompt: "You are an expert web accessibility engineer. Respond with JSON only.",
		UserPrompt:   prompt,
		MaxTokens:    c.config.MaxOutputTokens,
		Temperature:  c.config.Temperature,
	}

	resp, provider, err := c.completeWithFallback(ctx, creq)
	if err != nil {
		log.WithError(err).Error("patch generation failed",
			"feature", req.Feature,
		)
		return nil, err
	}

	var payload patchPayload
	if parseErr := json.Unmarshal([]byte(extractJSON(resp.Content)), &payload); parseErr != nil {
		log.WithError(parseErr).Error("failed to parse patch payload")
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, parseErr)
	}
	if payload.Diff == "" {
		return nil, fmt.Errorf("%w: empty diff", ErrInvalidResponse)
	}

	c.mu.Lock()
	c.totalUsage.Add(resp.Usage)
	c.mu.Unlock()

	modelID := resp.ModelID
	if modelID == "" {
		modelID = string(c.config.DefaultModel)
	}

	return &PatchResponse{
		FilePath:    payload.FilePath,
		Diff:        payload.Diff,
		Description: payload.Description,
		Provider:    provider,
		ModelID:     modelID,
		LatencyMS:   resp.LatencyMS,
		Usage:       resp.Usage,
		RequestID:   resp.RequestID,
		CompletedAt: time.Now(),
	}, nil
}

// GetUsage implements Client.
func (c *MultiProviderClient) GetUsage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalUsage
}

// completeWithFallback tries each provider in order until one succeeds.
func (c *MultiProviderClient) completeWithFallback(
	ctx context.Context,
	req *CompletionRequest,
) (*CompletionResponse, Provider, error) {
	log := util.Log(ctx)
	var lastErr error

	for _, provider := range c.providers {
		if !provider.IsAvailable() {
			continue
		}

		log.Debug("trying provider", "provider", provider.Provider())

		resp, err := c.completeWithRetry(ctx, provider, req)
		if err == nil {
			return resp, provider.Provider(), nil
		}

		log.WithError(err).Warn("provider failed, trying next",
			"provider", provider.Provider(),
		)
		lastErr = err

		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
	}

	if lastErr != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrAllProvidersFailed, lastErr)
	}
	return nil, "", ErrAllProvidersFailed
}

// completeWithRetry retries a single provider request with backoff.
func (c *MultiProviderClient) completeWithRetry(
	ctx context.Context,
	provider ProviderClient,
	req *CompletionRequest,
) (*CompletionResponse, error) {
	log := util.Log(ctx)
	var lastErr error

	for attempt := range c.config.MaxRetries + 1 {
		resp, err := provider.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if errors.Is(err, ErrQuotaExceeded) {
			return nil, err
		}
		if attempt == c.config.MaxRetries {
			break
		}

		backoff := time.Duration(1<<attempt) * time.Second
		log.Debug("retrying after error",
			"provider", provider.Provider(),
			"attempt", attempt+1,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, lastErr
}

// extractJSON strips markdown code fences models sometimes wrap around the
// JSON body.
func extractJSON(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	return trimmed
}

// estimateCost estimates the cost of a request in USD.
func estimateCost(provider Provider, model Model, usage Usage) float64 {
	// Pricing per 1M tokens (as of early 2025)
	var inputPrice, outputPrice float64

	switch provider {
	case ProviderAnthropic:
		switch model {
		case ModelClaudeSonnet:
			inputPrice, outputPrice = 3.0, 15.0
		case ModelClaudeHaiku:
			inputPrice, outputPrice = 0.25, 1.25
		default:
			inputPrice, outputPrice = 3.0, 15.0
		}
	case ProviderOpenAI:
		inputPrice, outputPrice = 2.5, 10.0
	}

	const tokensPerMillion = 1_000_000.0
	inputCost := float64(usage.InputTokens) / tokensPerMillion * inputPrice
	outputCost := float64(usage.OutputTokens) / tokensPerMillion * outputPrice

	return inputCost + outputCost
}
