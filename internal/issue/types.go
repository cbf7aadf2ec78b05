// Package issue provides the canonical issue model and the classifier that
// turns raw scanner findings into routed, difficulty-rated issues.
package issue

import "errors"

// Classification errors. Unknown enum values indicate a scanner/engine
// version mismatch and must never be silently defaulted.
var (
	ErrUnknownFeature      = errors.New("unknown feature")
	ErrUnknownAutoFixLevel = errors.New("unknown auto-fix level")
	ErrUnknownSeverity     = errors.New("unknown severity")
	ErrNegativeRiskValue   = errors.New("risk value must be non-negative")
)

// Feature identifies the compliance category an issue belongs to.
type Feature string

// The nine recognized compliance features.
const (
	FeatureAltText    Feature = "alt-text"
	FeatureContrast   Feature = "contrast"
	FeatureFormLabels Feature = "form-labels"
	FeatureLandmarks  Feature = "landmarks"
	FeatureKeyboard   Feature = "keyboard"
	FeatureFocus      Feature = "focus"
	FeatureARIA       Feature = "aria"
	FeatureHeadings   Feature = "headings"
	FeatureMedia      Feature = "media"
)

// featureOrder fixes the canonical enumeration order used for deterministic
// artifact ordering in built packages.
var featureOrder = []Feature{
	FeatureAltText,
	FeatureContrast,
	FeatureFormLabels,
	FeatureLandmarks,
	FeatureKeyboard,
	FeatureFocus,
	FeatureARIA,
	FeatureHeadings,
	FeatureMedia,
}

var featureIndex = func() map[Feature]int {
	m := make(map[Feature]int, len(featureOrder))
	for i, f := range featureOrder {
		m[f] = i
	}
	return m
}()

// Features returns the recognized features in canonical order.
func Features() []Feature {
	out := make([]Feature, len(featureOrder))
	copy(out, featureOrder)
	return out
}

// IsValid reports whether the feature is one of the recognized values.
func (f Feature) IsValid() bool {
	_, ok := featureIndex[f]
	return ok
}

// Index returns the feature's position in canonical enumeration order,
// or -1 when unrecognized.
func (f Feature) Index() int {
	if i, ok := featureIndex[f]; ok {
		return i
	}
	return -1
}

// Severity orders an issue's scanner-reported seriousness.
type Severity string

// Severities, ordered info < warning < error.
const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

var severityRank = map[Severity]int{
	SeverityInfo:    0,
	SeverityWarning: 1,
	SeverityError:   2,
}

// IsValid reports whether the severity is recognized.
func (s Severity) IsValid() bool {
	_, ok := severityRank[s]
	return ok
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// AutoFixLevel is the scanner's confidence that an issue can be fixed
// without human judgment.
type AutoFixLevel string

// Auto-fix level constants.
const (
	AutoFixHigh   AutoFixLevel = "high"
	AutoFixMedium AutoFixLevel = "medium"
	AutoFixLow    AutoFixLevel = "low"
	AutoFixManual AutoFixLevel = "manual"
)

// IsValid reports whether the auto-fix level is recognized.
func (a AutoFixLevel) IsValid() bool {
	switch a {
	case AutoFixHigh, AutoFixMedium, AutoFixLow, AutoFixManual:
		return true
	}
	return false
}

// Difficulty rates how hard an issue is to remediate. It is a pure function
// of the auto-fix level, never set independently.
type Difficulty string

// Difficulty constants.
const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// DifficultyFor derives the difficulty tier from an auto-fix level.
func DifficultyFor(level AutoFixLevel) Difficulty {
	switch level {
	case AutoFixHigh:
		return DifficultyEasy
	case AutoFixMedium:
		return DifficultyMedium
	default:
		return DifficultyHard
	}
}

// FixRoute is the remediation mechanism for an issue.
type FixRoute string

// Fix route constants.
const (
	RouteWidget FixRoute = "widget"
	RouteCode   FixRoute = "code"
	RouteManual FixRoute = "manual"
)

// ElementContext locates the offending element on the customer's page.
// Opaque to this core; passed through to artifact producers untouched.
type ElementContext struct {
	Selector string `json:"selector,omitempty"`
	Snippet  string `json:"snippet,omitempty"`
	PageURL  string `json:"page_url,omitempty"`
}

// Key returns a stable identity string for deduplicating code-generation
// calls per distinct element context.
func (e ElementContext) Key() string {
	return e.PageURL + "\x1f" + e.Selector + "\x1f" + e.Snippet
}

// IsZero reports whether no locator information is present.
func (e ElementContext) IsZero() bool {
	return e.Selector == "" && e.Snippet == "" && e.PageURL == ""
}

// RawFinding is one entry as produced by the upstream issue scanner.
type RawFinding struct {
	ID              string          `json:"id,omitempty"`
	Feature         string          `json:"feature"`
	Severity        string          `json:"severity"`
	AutoFixLevel    string          `json:"auto_fix_level"`
	SuggestedFix    string          `json:"suggested_fix,omitempty"`
	RegulatoryRefs  []string        `json:"regulatory_refs,omitempty"`
	RiskValue       float64         `json:"risk_value"`
	ElementContext  *ElementContext `json:"element_context,omitempty"`
	ScannerRuleID   string          `json:"scanner_rule_id,omitempty"`
	ScannerVersion  string          `json:"scanner_version,omitempty"`
	DetectedPageURL string          `json:"detected_page_url,omitempty"`
}

// Identity returns a stable key for memoizing classification of this
// finding. Scanner IDs are preferred; otherwise the discriminating fields.
func (r RawFinding) Identity() string {
	if r.ID != "" {
		return r.ID
	}
	key := r.Feature + "\x1f" + r.Severity + "\x1f" + r.AutoFixLevel + "\x1f" + r.SuggestedFix
	if r.ElementContext != nil {
		key += "\x1f" + r.ElementContext.Key()
	}
	return key
}

// Issue is one classified, fully populated problem on one page element.
type Issue struct {
	ID                  FindingID       `json:"id"`
	Feature             Feature         `json:"feature"`
	Severity            Severity        `json:"severity"`
	RegulatoryRefs      []string        `json:"regulatory_refs,omitempty"`
	AutoFixLevel        AutoFixLevel    `json:"auto_fix_level"`
	Difficulty          Difficulty      `json:"difficulty"`
	EligibleFixRoutes   []FixRoute      `json:"eligible_fix_routes"`
	RecommendedFixRoute FixRoute        `json:"recommended_fix_route"`
	RiskValue           float64         `json:"risk_value"`
	SuggestedFix        string          `json:"suggested_fix,omitempty"`
	ElementContext      *ElementContext `json:"element_context,omitempty"`
}

// RouteEligible reports whether the given route is among the issue's
// eligible fix routes.
func (i *Issue) RouteEligible(route FixRoute) bool {
	for _, r := range i.EligibleFixRoutes {
		if r == route {
			return true
		}
	}
	return false
}
