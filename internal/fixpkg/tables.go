package fixpkg

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/complyhq/remedy/internal/issue"
)

// ErrUnsupportedFeature indicates a feature marked auto-fixable has no entry
// in the snippet or guide tables. The whole build fails; a feature without a
// known snippet cannot honestly be marked auto-fixable.
var ErrUnsupportedFeature = errors.New("unsupported feature")

// SnippetEntry is one widget integration snippet plus its display text.
type SnippetEntry struct {
	Snippet     string `yaml:"snippet" json:"snippet"`
	Description string `yaml:"description" json:"description"`
}

// GuideEntry is one manual-remediation instruction template.
type GuideEntry struct {
	Title       string     `yaml:"title" json:"title"`
	Description string     `yaml:"description" json:"description"`
	Steps       []string   `yaml:"steps" json:"steps"`
	Resources   []Resource `yaml:"resources,omitempty" json:"resources,omitempty"`
}

// Tables holds the static per-feature lookup tables the builder consumes.
// Immutable after load.
type Tables struct {
	snippets map[issue.Feature]SnippetEntry
	guides   map[issue.Feature]GuideEntry
}

// tableDocument is the YAML shape of an external table file.
type tableDocument struct {
	Snippets map[string]SnippetEntry `yaml:"snippets"`
	Guides   map[string]GuideEntry   `yaml:"guides"`
}

// Snippet looks up the widget integration snippet for a feature.
func (t *Tables) Snippet(f issue.Feature) (SnippetEntry, error) {
	entry, ok := t.snippets[f]
	if !ok {
		return SnippetEntry{}, fmt.Errorf("%w: no widget snippet for %q", ErrUnsupportedFeature, f)
	}
	return entry, nil
}

// Guide looks up the manual instruction template for a feature.
func (t *Tables) Guide(f issue.Feature) (GuideEntry, error) {
	entry, ok := t.guides[f]
	if !ok {
		return GuideEntry{}, fmt.Errorf("%w: no manual guide for %q", ErrUnsupportedFeature, f)
	}
	return entry, nil
}

// LoadTables reads per-feature tables from a YAML file. Entries present in
// the file override the built-in defaults; unknown feature keys are rejected.
func LoadTables(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tables file: %w", err)
	}
	return ParseTables(data)
}

// ParseTables parses YAML table data, layered over the built-in defaults.
func ParseTables(data []byte) (*Tables, error) {
	var doc tableDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse tables: %w", err)
	}

	t := DefaultTables()
	for name, entry := range doc.Snippets {
		f := issue.Feature(name)
		if !f.IsValid() {
			return nil, fmt.Errorf("%w: %q in snippets", issue.ErrUnknownFeature, name)
		}
		t.snippets[f] = entry
	}
	for name, entry := range doc.Guides {
		f := issue.Feature(name)
		if !f.IsValid() {
			return nil, fmt.Errorf("%w: %q in guides", issue.ErrUnknownFeature, name)
		}
		t.guides[f] = entry
	}
	return t, nil
}

// DefaultTables returns the built-in per-feature tables covering all nine
// recognized features.
func DefaultTables() *Tables {
	snippet := func(module, desc string) SnippetEntry {
		return SnippetEntry{
			Snippet: fmt.Sprintf(
				`<script src="https://cdn.complyhq.io/widget.js" data-module="%s" defer></script>`,
				module,
			),
			Description: desc,
		}
	}

	wcag := func(page string) Resource {
		return Resource{
			Title: "WCAG 2.1 Understanding: " + page,
			URL:   "https://www.w3.org/WAI/WCAG21/Understanding/" + page,
		}
	}

	return &Tables{
		snippets: map[issue.Feature]SnippetEntry{
			issue.FeatureAltText: snippet("alt-text",
				"Generates descriptive alt text for images at page load."),
			issue.FeatureContrast: snippet("contrast",
				"Adjusts foreground/background color pairs that fall below contrast thresholds."),
			issue.FeatureFormLabels: snippet("form-labels",
				"Attaches accessible labels to unlabeled form controls."),
			issue.FeatureLandmarks: snippet("landmarks",
				"Injects missing page landmark roles for screen-reader navigation."),
			issue.FeatureKeyboard: snippet("keyboard",
				"Restores keyboard operability for mouse-only interactive elements."),
			issue.FeatureFocus: snippet("focus",
				"Makes focus indicators visible on interactive elements."),
			issue.FeatureARIA: snippet("aria",
				"Repairs invalid or conflicting ARIA attributes in place."),
			issue.FeatureHeadings: snippet("headings",
				"Normalizes heading levels into a coherent document outline."),
			issue.FeatureMedia: snippet("media",
				"Adds player controls and caption toggles to embedded media."),
		},
		guides: map[issue.Feature]GuideEntry{
			issue.FeatureAltText: {
				Title:       "Write meaningful image alternatives",
				Description: "Every informative image needs a text alternative that conveys its purpose.",
				Steps: []string{
					"List every <img>, <svg> and CSS background image that conveys information.",
					"Write alt text describing the image's purpose in context, not its appearance.",
					"Mark purely decorative images with an empty alt attribute.",
					"Re-read each page with images hidden to confirm nothing is lost.",
				},
				Resources: []Resource{wcag("non-text-content.html")},
			},
			issue.FeatureContrast: {
				Title:       "Fix insufficient color contrast",
				Description: "Text must meet minimum contrast ratios against its background.",
				Steps: []string{
					"Measure each flagged foreground/background pair with a contrast checker.",
					"Darken text or lighten backgrounds until 4.5:1 (normal) or 3:1 (large text) is met.",
					"Update the design tokens or stylesheet variables, not individual elements.",
					"Re-check hover, focus and disabled states after the change.",
				},
				Resources: []Resource{wcag("contrast-minimum.html")},
			},
			issue.FeatureFormLabels: {
				Title:       "Label every form control",
				Description: "Inputs without programmatic labels are unusable with assistive technology.",
				Steps: []string{
					"Pair each input with a <label for> or wrap it in a <label> element.",
					"Use aria-label only where a visible label is genuinely impossible.",
					"Group related controls with <fieldset> and <legend>.",
					"Verify every control announces its purpose in a screen reader.",
				},
				Resources: []Resource{wcag("labels-or-instructions.html")},
			},
			issue.FeatureLandmarks: {
				Title:       "Add page landmarks",
				Description: "Landmark regions let assistive-technology users skip between page areas.",
				Steps: []string{
					"Wrap primary content in <main> and repeated blocks in <header>/<nav>/<footer>.",
					"Give each <nav> a distinguishing aria-label when more than one exists.",
					"Remove redundant role attributes duplicated by native elements.",
				},
				Resources: []Resource{wcag("bypass-blocks.html")},
			},
			issue.FeatureKeyboard: {
				Title:       "Make everything keyboard operable",
				Description: "All interactive functionality must work without a mouse.",
				Steps: []string{
					"Tab through each page and note every control that cannot be reached or activated.",
					"Replace click-only div/span handlers with native <button> or <a> elements.",
					"Ensure custom widgets implement the expected arrow-key and Escape behavior.",
					"Check that no element traps focus.",
				},
				Resources: []Resource{wcag("keyboard.html")},
			},
			issue.FeatureFocus: {
				Title:       "Restore visible focus indicators",
				Description: "Keyboard users must always see which element has focus.",
				Steps: []string{
					"Remove blanket outline:none rules from stylesheets.",
					"Define a high-contrast :focus-visible style for interactive elements.",
					"Verify focus order follows the visual reading order.",
				},
				Resources: []Resource{wcag("focus-visible.html")},
			},
			issue.FeatureARIA: {
				Title:       "Repair ARIA usage",
				Description: "Incorrect ARIA is worse than no ARIA; attributes must match actual behavior.",
				Steps: []string{
					"Validate each flagged element's role against the ARIA specification.",
					"Remove aria attributes that contradict native semantics.",
					"Keep aria-expanded, aria-selected and similar state attributes in sync with the UI.",
					"Prefer native HTML elements over ARIA re-implementations.",
				},
				Resources: []Resource{wcag("name-role-value.html")},
			},
			issue.FeatureHeadings: {
				Title:       "Restructure the heading outline",
				Description: "Headings must form a logical hierarchy that reflects page structure.",
				Steps: []string{
					"Extract the page's heading outline and compare it to the visual structure.",
					"Use exactly one <h1> per page and never skip heading levels.",
					"Convert styled-but-unmarked section titles into real heading elements.",
				},
				Resources: []Resource{wcag("headings-and-labels.html")},
			},
			issue.FeatureMedia: {
				Title:       "Make media content accessible",
				Description: "Audio and video need captions, transcripts and operable controls.",
				Steps: []string{
					"Add synchronized captions to every prerecorded video.",
					"Provide transcripts for audio-only content.",
					"Ensure all player controls are keyboard operable and labeled.",
					"Disable autoplay or provide an immediate pause control.",
				},
				Resources: []Resource{wcag("captions-prerecorded.html")},
			},
		},
	}
}
