package issue

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RuleSet is the declarative per-feature classification configuration.
// It is immutable once loaded; new features are added by editing the rules
// document, not the classification logic.
type RuleSet struct {
	// WidgetFeatures lists features for which a runtime widget fix exists.
	// High auto-fix issues in these features recommend the widget route.
	WidgetFeatures map[Feature]bool `yaml:"widget_features"`

	// AttemptCodeFirst makes low auto-fix issues recommend a code-generation
	// attempt before falling back to manual guidance.
	AttemptCodeFirst bool `yaml:"attempt_code_first"`
}

// ruleDocument is the on-disk YAML shape for a rule set.
type ruleDocument struct {
	WidgetFeatures   []string `yaml:"widget_features"`
	AttemptCodeFirst bool     `yaml:"attempt_code_first"`
}

// DefaultRuleSet returns the built-in classification rules: widget coverage
// for the presentation-level features the runtime script can rewrite in
// place, and no speculative code-generation for low-confidence issues.
func DefaultRuleSet() *RuleSet {
	return &RuleSet{
		WidgetFeatures: map[Feature]bool{
			FeatureAltText:  true,
			FeatureContrast: true,
			FeatureFocus:    true,
			FeatureHeadings: true,
		},
		AttemptCodeFirst: false,
	}
}

// LoadRuleSet reads a rule set from a YAML file. Features named in the
// document must be recognized; a typo here would silently strand issues.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule set: %w", err)
	}
	return ParseRuleSet(data)
}

// ParseRuleSet parses a rule set from YAML content.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var doc ruleDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse rule set: %w", err)
	}

	rs := &RuleSet{
		WidgetFeatures:   make(map[Feature]bool, len(doc.WidgetFeatures)),
		AttemptCodeFirst: doc.AttemptCodeFirst,
	}
	for _, name := range doc.WidgetFeatures {
		f := Feature(name)
		if !f.IsValid() {
			return nil, fmt.Errorf("%w: %q in widget_features", ErrUnknownFeature, name)
		}
		rs.WidgetFeatures[f] = true
	}
	return rs, nil
}

// WidgetAvailable reports whether a runtime widget fix exists for the feature.
func (rs *RuleSet) WidgetAvailable(f Feature) bool {
	return rs.WidgetFeatures[f]
}
