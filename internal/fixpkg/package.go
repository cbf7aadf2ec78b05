package fixpkg

import (
	"time"

	"github.com/complyhq/remedy/internal/issue"
)

// Summary aggregates the whole input issue list in a single pass. Counts
// always reflect every known issue, including those whose artifact
// generation failed.
type Summary struct {
	AutoFixableCount   int                      `json:"auto_fixable_count"`
	WidgetFixableCount int                      `json:"widget_fixable_count"`
	ManualOnlyCount    int                      `json:"manual_only_count"`
	ByDifficulty       map[issue.Difficulty]int `json:"by_difficulty"`
	ByFeature          map[issue.Feature]int    `json:"by_feature"`
	TotalRiskValue     float64                  `json:"total_risk_value"`
	Recommendation     string                   `json:"recommendation"`
}

// GenerationUsage rolls up code-generation spend for one build run.
type GenerationUsage struct {
	Calls        int     `json:"calls"`
	Failures     int     `json:"failures"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// FixPackage is the aggregate deliverable for one classification run.
type FixPackage struct {
	ID            issue.PackageID `json:"id"`
	SiteReference string          `json:"site_reference"`
	GeneratedAt   time.Time       `json:"generated_at"`

	TotalIssues        int `json:"total_issues"`
	ResolvedIssueCount int `json:"resolved_issue_count"`

	WidgetFixes  []WidgetFix   `json:"widget_fixes"`
	CodePatches  []CodePatch   `json:"code_patches"`
	ManualGuides []ManualGuide `json:"manual_guides"`

	Summary Summary         `json:"summary"`
	Usage   GenerationUsage `json:"generation_usage"`
}

// ManualOnly reports whether the package contains no widget or code
// artifacts, so the remediation workflow can skip apply and verify.
func (p *FixPackage) ManualOnly() bool {
	return len(p.WidgetFixes) == 0 && len(p.CodePatches) == 0
}

// RecommendationPolicy holds the thresholds behind the summary
// recommendation text. The cutoffs are presentation heuristics, kept
// configurable rather than hard-coded.
type RecommendationPolicy struct {
	// WidgetShareCutoff is the minimum widget-fixable share of all issues
	// required to lead with the widget route.
	WidgetShareCutoff float64 `json:"widget_share_cutoff"`

	// AutoFixShareCutoff is the auto-fixable share of all issues above
	// which the mixed widget-plus-patches approach is recommended.
	AutoFixShareCutoff float64 `json:"auto_fix_share_cutoff"`
}

// DefaultRecommendationPolicy returns the standard thresholds.
func DefaultRecommendationPolicy() RecommendationPolicy {
	return RecommendationPolicy{
		WidgetShareCutoff:  0.5,
		AutoFixShareCutoff: 0.5,
	}
}
