// Package fixpkg assembles remediation artifacts for classified issues into
// a single deliverable package with summary statistics.
package fixpkg

import (
	"github.com/complyhq/remedy/internal/issue"
)

// Outcome records whether an artifact's generation succeeded.
type Outcome string

// Outcome constants.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// WidgetFix covers every issue of one feature with a single runtime-widget
// integration snippet.
type WidgetFix struct {
	Feature            issue.Feature    `json:"feature"`
	FixRoute           issue.FixRoute   `json:"fix_route"`
	Difficulty         issue.Difficulty `json:"difficulty"`
	IssueCount         int              `json:"issue_count"`
	IntegrationSnippet string           `json:"integration_snippet"`
	Description        string           `json:"description"`
}

// GenerationMetadata carries provenance for a successfully generated patch.
type GenerationMetadata struct {
	ModelID      string  `json:"model_id"`
	Provider     string  `json:"provider,omitempty"`
	LatencyMS    int64   `json:"latency_ms"`
	InputTokens  int     `json:"input_tokens,omitempty"`
	OutputTokens int     `json:"output_tokens,omitempty"`
	CostUSD      float64 `json:"cost_usd,omitempty"`
}

// CodePatch is one generated source patch for one page element. A failed
// generation still produces a CodePatch, with outcome=failure and no diff,
// so the operator sees the issue listed.
type CodePatch struct {
	Feature        issue.Feature       `json:"feature"`
	FixRoute       issue.FixRoute      `json:"fix_route"`
	Difficulty     issue.Difficulty    `json:"difficulty"`
	FileLocator    string              `json:"file_locator,omitempty"`
	Outcome        Outcome             `json:"outcome"`
	Diff           string              `json:"diff,omitempty"`
	Description    string              `json:"description,omitempty"`
	FailureReason  string              `json:"failure_reason,omitempty"`
	Metadata       *GenerationMetadata `json:"generation_metadata,omitempty"`
	RegulatoryRefs []string            `json:"regulatory_refs,omitempty"`

	elementKey string
}

// ManualGuide aggregates every manual-route issue of one feature into an
// ordered human-followed remediation guide.
type ManualGuide struct {
	Feature        issue.Feature    `json:"feature"`
	FixRoute       issue.FixRoute   `json:"fix_route"`
	Difficulty     issue.Difficulty `json:"difficulty"`
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	RegulatoryRefs []string         `json:"regulatory_refs,omitempty"`
	Steps          []string         `json:"steps"`
	Resources      []Resource       `json:"resources,omitempty"`
}

// Resource is a titled link to external remediation documentation.
type Resource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}
