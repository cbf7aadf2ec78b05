//nolint:testpackage // Testing internal functions requires same package
package codegen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/complyhq/remedy/internal/issue"
)

// fakeProvider is a scriptable ProviderClient for tests.
type fakeProvider struct {
	name      Provider
	available bool
	calls     int
	failures  int
	failWith  error
	content   string
	model     string
	usage     Usage
}

func (f *fakeProvider) Complete(_ context.Context, _ *CompletionRequest) (*CompletionResponse, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.failWith
	}
	return &CompletionResponse{
		Content:   f.content,
		ModelID:   f.model,
		Usage:     f.usage,
		RequestID: fmt.Sprintf("req-%d", f.calls),
	}, nil
}

func (f *fakeProvider) Provider() Provider { return f.name }
func (f *fakeProvider) IsAvailable() bool  { return f.available }

func newTestClient(t *testing.T, providers ...ProviderClient) *MultiProviderClient {
	t.Helper()
	client, err := NewMultiProviderClient(ClientConfig{
		AnthropicAPIKey: "test-key",
		DefaultModel:    ModelClaudeSonnet,
		MaxOutputTokens: 4096,
		TimeoutSeconds:  5,
		MaxRetries:      0,
		CallsPerMinute:  6000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(providers) > 0 {
		client.providers = providers
	}
	return client
}

const goodPayload = `{"file_path":"index.html","diff":"--- a\n+++ b\n","description":"adds alt text"}`

func testPatchRequest() PatchRequest {
	return PatchRequest{
		Feature: issue.FeatureAltText,
		Element: issue.ElementContext{
			Selector: "img#logo",
			Snippet:  `<img id="logo" src="logo.png">`,
			PageURL:  "https://example.com/",
		},
		SuggestedFix:   "add an alt attribute",
		RegulatoryRefs: []string{"1.1.1"},
	}
}

func TestNewMultiProviderClient_NoAPIKey(t *testing.T) {
	_, err := NewMultiProviderClient(ClientConfig{})
	if err == nil {
		t.Error("expected error when no API keys provided")
	}
	if !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestNewMultiProviderClient_MultipleProviders(t *testing.T) {
	client, err := NewMultiProviderClient(ClientConfig{
		AnthropicAPIKey: "test-key",
		OpenAIAPIKey:    "test-key",
		DefaultModel:    ModelClaudeSonnet,
		MaxOutputTokens: 4096,
		TimeoutSeconds:  60,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.providers) != 2 {
		t.Errorf("expected 2 providers, got %d", len(client.providers))
	}
}

func TestGeneratePatch_Success(t *testing.T) {
	provider := &fakeProvider{
		name:      ProviderAnthropic,
		available: true,
		content:   goodPayload,
		usage:     Usage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150},
	}
	client := newTestClient(t, provider)

	resp, err := client.GeneratePatch(context.Background(), testPatchRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Diff == "" {
		t.Error("expected non-empty diff")
	}
	if resp.FilePath != "index.html" {
		t.Errorf("expected file_path index.html, got %q", resp.FilePath)
	}
	if resp.Provider != ProviderAnthropic {
		t.Errorf("expected provider %s, got %s", ProviderAnthropic, resp.Provider)
	}
	if resp.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set")
	}
}

func TestGeneratePatch_FencedJSON(t *testing.T) {
	provider := &fakeProvider{
		name:      ProviderAnthropic,
		available: true,
		content:   "```json\n" + goodPayload + "\n```",
	}
	client := newTestClient(t, provider)

	resp, err := client.GeneratePatch(context.Background(), testPatchRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Description != "adds alt text" {
		t.Errorf("expected description to survive fences, got %q", resp.Description)
	}
}

func TestGeneratePatch_EmptyDiffRejected(t *testing.T) {
	provider := &fakeProvider{
		name:      ProviderAnthropic,
		available: true,
		content:   `{"file_path":"index.html","diff":"","description":"no-op"}`,
	}
	client := newTestClient(t, provider)

	_, err := client.GeneratePatch(context.Background(), testPatchRequest())
	if !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestGeneratePatch_FallbackToSecondProvider(t *testing.T) {
	broken := &fakeProvider{
		name:      ProviderAnthropic,
		available: true,
		failures:  10,
		failWith:  errors.New("server error"),
	}
	working := &fakeProvider{
		name:      ProviderOpenAI,
		available: true,
		content:   goodPayload,
	}
	client := newTestClient(t, broken, working)

	resp, err := client.GeneratePatch(context.Background(), testPatchRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != ProviderOpenAI {
		t.Errorf("expected fallback to %s, got %s", ProviderOpenAI, resp.Provider)
	}
	if working.calls != 1 {
		t.Errorf("expected 1 call to fallback provider, got %d", working.calls)
	}
}

func TestNewMultiProviderClient_DefaultProviderOrdersFallback(t *testing.T) {
	client, err := NewMultiProviderClient(ClientConfig{
		AnthropicAPIKey: "test-key",
		OpenAIAPIKey:    "test-key",
		DefaultProvider: ProviderOpenAI,
		DefaultModel:    ModelClaudeSonnet,
		MaxOutputTokens: 4096,
		TimeoutSeconds:  60,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := client.providers[0].Provider(); got != ProviderOpenAI {
		t.Errorf("expected %s first in fallback order, got %s", ProviderOpenAI, got)
	}
	if got := client.providers[1].Provider(); got != ProviderAnthropic {
		t.Errorf("expected %s second in fallback order, got %s", ProviderAnthropic, got)
	}
}

func TestGeneratePatch_ReportsServedModel(t *testing.T) {
	broken := &fakeProvider{
		name:      ProviderAnthropic,
		available: true,
		failures:  10,
		failWith:  errors.New("server error"),
	}
	working := &fakeProvider{
		name:      ProviderOpenAI,
		available: true,
		content:   goodPayload,
		model:     "gpt-4o",
	}
	client := newTestClient(t, broken, working)

	resp, err := client.GeneratePatch(context.Background(), testPatchRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ModelID != "gpt-4o" {
		t.Errorf("expected model %q reported, got %q", "gpt-4o", resp.ModelID)
	}
}

func TestGeneratePatch_SkipsUnavailableProviders(t *testing.T) {
	offline := &fakeProvider{name: ProviderAnthropic, available: false}
	working := &fakeProvider{
		name:      ProviderOpenAI,
		available: true,
		content:   goodPayload,
	}
	client := newTestClient(t, offline, working)

	if _, err := client.GeneratePatch(context.Background(), testPatchRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if offline.calls != 0 {
		t.Errorf("expected unavailable provider never called, got %d calls", offline.calls)
	}
}

func TestGeneratePatch_AllProvidersFail(t *testing.T) {
	broken := &fakeProvider{
		name:      ProviderAnthropic,
		available: true,
		failures:  10,
		failWith:  errors.New("server error"),
	}
	client := newTestClient(t, broken)

	_, err := client.GeneratePatch(context.Background(), testPatchRequest())
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Errorf("expected ErrAllProvidersFailed, got %v", err)
	}
}

func TestGeneratePatch_QuotaErrorNotRetried(t *testing.T) {
	broken := &fakeProvider{
		name:      ProviderAnthropic,
		available: true,
		failures:  10,
		failWith:  ErrQuotaExceeded,
	}
	client := newTestClient(t, broken)
	client.config.MaxRetries = 3

	_, err := client.GeneratePatch(context.Background(), testPatchRequest())
	if err == nil {
		t.Fatal("expected error")
	}
	if broken.calls != 1 {
		t.Errorf("expected quota error to short-circuit retries, got %d calls", broken.calls)
	}
}

func TestGeneratePatch_RetryThenSucceed(t *testing.T) {
	flaky := &fakeProvider{
		name:      ProviderAnthropic,
		available: true,
		failures:  1,
		failWith:  errors.New("server error"),
		content:   goodPayload,
	}
	client := newTestClient(t, flaky)
	client.config.MaxRetries = 2

	resp, err := client.GeneratePatch(context.Background(), testPatchRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Diff == "" {
		t.Error("expected non-empty diff")
	}
	if flaky.calls != 2 {
		t.Errorf("expected 2 calls, got %d", flaky.calls)
	}
}

func TestGetUsage_Accumulates(t *testing.T) {
	provider := &fakeProvider{
		name:      ProviderAnthropic,
		available: true,
		content:   goodPayload,
		usage:     Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, CostUSD: 0.001},
	}
	client := newTestClient(t, provider)

	for range 3 {
		if _, err := client.GeneratePatch(context.Background(), testPatchRequest()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	usage := client.GetUsage()
	if usage.TotalTokens != 45 {
		t.Errorf("expected 45 total tokens, got %d", usage.TotalTokens)
	}
	if usage.InputTokens != 30 {
		t.Errorf("expected 30 input tokens, got %d", usage.InputTokens)
	}
}

func TestPromptBuilder_Build(t *testing.T) {
	pb, err := NewPromptBuilder()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prompt, err := pb.Build(testPatchRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{"img#logo", "alt-text", "1.1.1", "file_path"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("expected prompt to contain %q", want)
		}
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}

	for _, tt := range tests {
		if got := extractJSON(tt.input); got != tt.expected {
			t.Errorf("extractJSON(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func TestMapModelToOpenAI(t *testing.T) {
	tests := []struct {
		input    Model
		expected string
	}{
		{ModelGPT4o, string(ModelGPT4o)},
		{ModelClaudeSonnet, string(ModelGPT4o)},
		{ModelClaudeHaiku, "gpt-4o-mini"},
	}

	for _, tt := range tests {
		if got := mapModelToOpenAI(tt.input); got != tt.expected {
			t.Errorf("mapModelToOpenAI(%s) = %s, expected %s", tt.input, got, tt.expected)
		}
	}
}

func TestEstimateCost(t *testing.T) {
	usage := Usage{InputTokens: 1000, OutputTokens: 500}

	tests := []struct {
		provider Provider
		model    Model
		minCost  float64
		maxCost  float64
	}{
		{ProviderAnthropic, ModelClaudeHaiku, 0.0, 0.01},
		{ProviderAnthropic, ModelClaudeSonnet, 0.0, 0.02},
		{ProviderOpenAI, ModelGPT4o, 0.0, 0.02},
	}

	for _, tt := range tests {
		cost := estimateCost(tt.provider, tt.model, usage)
		if cost < tt.minCost || cost > tt.maxCost {
			t.Errorf("estimateCost(%s, %s) = %f, expected between %f and %f",
				tt.provider, tt.model, cost, tt.minCost, tt.maxCost)
		}
	}
}
