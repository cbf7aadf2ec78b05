package issue

import (
	"context"
	"fmt"

	"github.com/pitabwire/util"
)

// Classifier turns raw scanner findings into canonical issues. It is pure
// per finding and safe to run concurrently over independent findings.
type Classifier struct {
	rules *RuleSet
	memo  MemoStore
}

// ClassifierOption customizes classifier construction.
type ClassifierOption func(*Classifier)

// WithMemoStore installs a memoization store keyed by raw-finding identity.
func WithMemoStore(store MemoStore) ClassifierOption {
	return func(c *Classifier) {
		c.memo = store
	}
}

// NewClassifier creates a classifier over the given rule set. A nil rule
// set uses the built-in defaults.
func NewClassifier(rules *RuleSet, opts ...ClassifierOption) *Classifier {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	c := &Classifier{rules: rules}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify normalizes one raw finding into a fully populated Issue.
// Unknown feature or auto-fix values fail the single item, never the batch.
func (c *Classifier) Classify(ctx context.Context, raw RawFinding) (*Issue, error) {
	if c.memo != nil {
		if cached, ok := c.memo.Get(ctx, raw.Identity()); ok {
			return cached, nil
		}
	}

	issue, err := c.classify(raw)
	if err != nil {
		return nil, err
	}

	if c.memo != nil {
		if putErr := c.memo.Put(ctx, raw.Identity(), issue); putErr != nil {
			// Memoization is an optimization; classification already succeeded.
			util.Log(ctx).WithError(putErr).Warn("memoize classification failed",
				"finding", raw.Identity(),
			)
		}
	}
	return issue, nil
}

func (c *Classifier) classify(raw RawFinding) (*Issue, error) {
	feature := Feature(raw.Feature)
	if !feature.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFeature, raw.Feature)
	}

	severity := Severity(raw.Severity)
	if !severity.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSeverity, raw.Severity)
	}

	level := AutoFixLevel(raw.AutoFixLevel)
	if !level.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAutoFixLevel, raw.AutoFixLevel)
	}

	if raw.RiskValue < 0 {
		return nil, fmt.Errorf("%w: %v", ErrNegativeRiskValue, raw.RiskValue)
	}

	eligible, recommended := c.routesFor(feature, level)

	id := FindingID{}
	if raw.ID != "" {
		if parsed, err := ParseFindingID(raw.ID); err == nil {
			id = parsed
		}
	}
	if id.IsZero() {
		id = NewFindingID()
	}

	refs := make([]string, len(raw.RegulatoryRefs))
	copy(refs, raw.RegulatoryRefs)

	return &Issue{
		ID:                  id,
		Feature:             feature,
		Severity:            severity,
		RegulatoryRefs:      refs,
		AutoFixLevel:        level,
		Difficulty:          DifficultyFor(level),
		EligibleFixRoutes:   eligible,
		RecommendedFixRoute: recommended,
		RiskValue:           raw.RiskValue,
		SuggestedFix:        raw.SuggestedFix,
		ElementContext:      raw.ElementContext,
	}, nil
}

// routesFor applies the auto-fix route table.
func (c *Classifier) routesFor(feature Feature, level AutoFixLevel) ([]FixRoute, FixRoute) {
	switch level {
	case AutoFixHigh:
		if c.rules.WidgetAvailable(feature) {
			return []FixRoute{RouteWidget, RouteCode}, RouteWidget
		}
		return []FixRoute{RouteWidget, RouteCode}, RouteCode
	case AutoFixMedium:
		return []FixRoute{RouteCode}, RouteCode
	case AutoFixLow:
		if c.rules.AttemptCodeFirst {
			return []FixRoute{RouteCode, RouteManual}, RouteCode
		}
		return []FixRoute{RouteCode, RouteManual}, RouteManual
	default:
		return []FixRoute{RouteManual}, RouteManual
	}
}

// Reject records one raw finding the classifier refused, with the reason.
type Reject struct {
	Finding RawFinding `json:"finding"`
	Reason  string     `json:"reason"`
}

// ClassifyBatch classifies a finite list of raw findings. Malformed entries
// are rejected individually; the rest of the batch still classifies.
func (c *Classifier) ClassifyBatch(ctx context.Context, findings []RawFinding) ([]*Issue, []Reject) {
	log := util.Log(ctx)
	issues := make([]*Issue, 0, len(findings))
	var rejects []Reject

	for _, raw := range findings {
		iss, err := c.Classify(ctx, raw)
		if err != nil {
			log.WithError(err).Warn("rejected finding",
				"feature", raw.Feature,
				"auto_fix_level", raw.AutoFixLevel,
			)
			rejects = append(rejects, Reject{Finding: raw, Reason: err.Error()})
			continue
		}
		issues = append(issues, iss)
	}

	return issues, rejects
}
