package fixpkg

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pitabwire/util"
	"golang.org/x/sync/errgroup"

	"github.com/complyhq/remedy/internal/codegen"
	"github.com/complyhq/remedy/internal/issue"
)

const (
	defaultConcurrency = 4
	defaultCallTimeout = 60 * time.Second
)

// Builder assembles a FixPackage from classified issues. The zero value is
// not usable; construct with NewBuilder.
type Builder struct {
	tables      *Tables
	generator   codegen.Client
	policy      RecommendationPolicy
	concurrency int
	callTimeout time.Duration
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithGenerator sets the code-generation client. Without one, every
// code-route issue is recorded as a generation failure.
func WithGenerator(client codegen.Client) BuilderOption {
	return func(b *Builder) { b.generator = client }
}

// WithPolicy overrides the recommendation thresholds.
func WithPolicy(policy RecommendationPolicy) BuilderOption {
	return func(b *Builder) { b.policy = policy }
}

// WithConcurrency bounds parallel code-generation calls. Each call carries
// real monetary cost, so the bound stays small.
func WithConcurrency(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithCallTimeout bounds each individual code-generation call. On expiry
// the patch is recorded with outcome=failure, not retried.
func WithCallTimeout(d time.Duration) BuilderOption {
	return func(b *Builder) {
		if d > 0 {
			b.callTimeout = d
		}
	}
}

// NewBuilder creates a package builder over the given lookup tables.
func NewBuilder(tables *Tables, opts ...BuilderOption) *Builder {
	b := &Builder{
		tables:      tables,
		policy:      DefaultRecommendationPolicy(),
		concurrency: defaultConcurrency,
		callTimeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build assembles the remediation package for one classification run.
// Artifact generation failures are recorded as data on the affected
// artifact; the only build-level errors are unsupported-feature table
// lookups.
func (b *Builder) Build(
	ctx context.Context,
	siteRef string,
	issues []*issue.Issue,
) (*FixPackage, error) {
	byRoute := partition(issues)

	widgetFixes, err := b.buildWidgetFixes(byRoute[issue.RouteWidget])
	if err != nil {
		return nil, err
	}

	manualGuides, err := b.buildManualGuides(byRoute[issue.RouteManual])
	if err != nil {
		return nil, err
	}

	codePatches, usage := b.buildCodePatches(ctx, byRoute[issue.RouteCode])

	pkg := &FixPackage{
		ID:            issue.NewPackageID(),
		SiteReference: siteRef,
		GeneratedAt:   time.Now().UTC(),
		TotalIssues:   len(issues),
		WidgetFixes:   widgetFixes,
		CodePatches:   codePatches,
		ManualGuides:  manualGuides,
		Usage:         usage,
	}
	pkg.ResolvedIssueCount = resolvedCount(pkg)
	pkg.Summary = b.summarize(issues, codePatches)

	return pkg, nil
}

// partition groups issues by recommended route, then by feature. Order
// within each group follows the input list.
func partition(issues []*issue.Issue) map[issue.FixRoute]map[issue.Feature][]*issue.Issue {
	byRoute := make(map[issue.FixRoute]map[issue.Feature][]*issue.Issue)
	for _, is := range issues {
		byFeature, ok := byRoute[is.RecommendedFixRoute]
		if !ok {
			byFeature = make(map[issue.Feature][]*issue.Issue)
			byRoute[is.RecommendedFixRoute] = byFeature
		}
		byFeature[is.Feature] = append(byFeature[is.Feature], is)
	}
	return byRoute
}

// buildWidgetFixes emits one WidgetFix per feature group, in canonical
// feature order.
func (b *Builder) buildWidgetFixes(
	groups map[issue.Feature][]*issue.Issue,
) ([]WidgetFix, error) {
	fixes := make([]WidgetFix, 0, len(groups))
	for _, feature := range issue.Features() {
		group := groups[feature]
		if len(group) == 0 {
			continue
		}
		entry, err := b.tables.Snippet(feature)
		if err != nil {
			return nil, err
		}
		fixes = append(fixes, WidgetFix{
			Feature:            feature,
			FixRoute:           issue.RouteWidget,
			Difficulty:         issue.DifficultyEasy,
			IssueCount:         len(group),
			IntegrationSnippet: entry.Snippet,
			Description:        entry.Description,
		})
	}
	return fixes, nil
}

// buildManualGuides emits one ManualGuide per feature group, aggregating
// the group's regulatory references, in canonical feature order.
func (b *Builder) buildManualGuides(
	groups map[issue.Feature][]*issue.Issue,
) ([]ManualGuide, error) {
	guides := make([]ManualGuide, 0, len(groups))
	for _, feature := range issue.Features() {
		group := groups[feature]
		if len(group) == 0 {
			continue
		}
		entry, err := b.tables.Guide(feature)
		if err != nil {
			return nil, err
		}
		guides = append(guides, ManualGuide{
			Feature:        feature,
			FixRoute:       issue.RouteManual,
			Difficulty:     issue.DifficultyHard,
			Title:          entry.Title,
			Description:    entry.Description,
			RegulatoryRefs: mergeRefs(group),
			Steps:          entry.Steps,
			Resources:      entry.Resources,
		})
	}
	return guides, nil
}

// patchTask is one pending code-generation call for one distinct element
// context.
type patchTask struct {
	feature    issue.Feature
	elementKey string
	issue      *issue.Issue
}

// buildCodePatches dispatches one code-generation call per distinct
// (feature, element context) pair with bounded concurrency. Failures and
// timeouts become outcome=failure patches; nothing aborts the build. The
// result is sorted by canonical feature order then element key, so output
// is independent of completion order.
func (b *Builder) buildCodePatches(
	ctx context.Context,
	groups map[issue.Feature][]*issue.Issue,
) ([]CodePatch, GenerationUsage) {
	log := util.Log(ctx)

	var tasks []patchTask
	for _, feature := range issue.Features() {
		seen := make(map[string]bool)
		for _, is := range groups[feature] {
			key := is.ID.String()
			if is.ElementContext != nil && !is.ElementContext.IsZero() {
				key = is.ElementContext.Key()
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			tasks = append(tasks, patchTask{feature: feature, elementKey: key, issue: is})
		}
	}

	patches := make([]CodePatch, len(tasks))
	var usage GenerationUsage
	var usageMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for i, task := range tasks {
		g.Go(func() error {
			patch, callUsage := b.generateOne(gctx, task)
			patches[i] = patch

			usageMu.Lock()
			usage.Calls++
			if patch.Outcome == OutcomeFailure {
				usage.Failures++
			}
			usage.InputTokens += callUsage.InputTokens
			usage.OutputTokens += callUsage.OutputTokens
			usage.CostUSD += callUsage.CostUSD
			usageMu.Unlock()

			if patch.Outcome == OutcomeFailure {
				log.Warn("code generation failed",
					"feature", task.feature,
					"reason", patch.FailureReason,
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(patches, func(i, j int) bool {
		fi, fj := patches[i].Feature.Index(), patches[j].Feature.Index()
		if fi != fj {
			return fi < fj
		}
		return patches[i].elementKey < patches[j].elementKey
	})

	return patches, usage
}

// generateOne performs one code-generation call and converts any error into
// a failure-outcome patch.
func (b *Builder) generateOne(
	ctx context.Context,
	task patchTask,
) (CodePatch, codegen.Usage) {
	is := task.issue
	patch := CodePatch{
		Feature:        task.feature,
		FixRoute:       issue.RouteCode,
		Difficulty:     is.Difficulty,
		Description:    is.SuggestedFix,
		RegulatoryRefs: copyRefs(is.RegulatoryRefs),
		elementKey:     task.elementKey,
	}

	if b.generator == nil {
		patch.Outcome = OutcomeFailure
		patch.FailureReason = "code generation not configured"
		return patch, codegen.Usage{}
	}

	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	req := codegen.PatchRequest{
		Feature:        task.feature,
		SuggestedFix:   is.SuggestedFix,
		RegulatoryRefs: is.RegulatoryRefs,
	}
	if is.ElementContext != nil {
		req.Element = *is.ElementContext
	}

	resp, err := b.generator.GeneratePatch(callCtx, req)
	if err != nil {
		patch.Outcome = OutcomeFailure
		patch.FailureReason = err.Error()
		return patch, codegen.Usage{}
	}

	patch.Outcome = OutcomeSuccess
	patch.FileLocator = resp.FilePath
	patch.Diff = resp.Diff
	if resp.Description != "" {
		patch.Description = resp.Description
	}
	patch.Metadata = &GenerationMetadata{
		ModelID:      resp.ModelID,
		Provider:     string(resp.Provider),
		LatencyMS:    resp.LatencyMS,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		CostUSD:      resp.Usage.CostUSD,
	}
	return patch, resp.Usage
}

// summarize aggregates the full input issue list in one pass, then derives
// the recommendation text. Counts include issues whose artifact generation
// failed.
func (b *Builder) summarize(issues []*issue.Issue, patches []CodePatch) Summary {
	s := Summary{
		ByDifficulty: map[issue.Difficulty]int{
			issue.DifficultyEasy:   0,
			issue.DifficultyMedium: 0,
			issue.DifficultyHard:   0,
		},
		ByFeature: make(map[issue.Feature]int),
	}

	for _, is := range issues {
		s.ByDifficulty[is.Difficulty]++
		s.ByFeature[is.Feature]++
		s.TotalRiskValue += is.RiskValue

		switch is.RecommendedFixRoute {
		case issue.RouteWidget:
			s.WidgetFixableCount++
		case issue.RouteManual:
			s.ManualOnlyCount++
		case issue.RouteCode:
		}
	}

	successfulPatches := 0
	for _, p := range patches {
		if p.Outcome == OutcomeSuccess {
			successfulPatches++
		}
	}
	s.AutoFixableCount = s.WidgetFixableCount + successfulPatches

	s.Recommendation = b.recommend(len(issues), s)
	return s
}

// recommend derives the free-text recommendation from dominant counts.
func (b *Builder) recommend(total int, s Summary) string {
	if total == 0 {
		return "No issues found. No remediation required."
	}

	widgetShare := float64(s.WidgetFixableCount) / float64(total)
	autoShare := float64(s.AutoFixableCount) / float64(total)

	switch {
	case widgetShare >= b.policy.WidgetShareCutoff:
		return "Activate the remediation widget first: it resolves the majority " +
			"of detected issues without code changes."
	case autoShare > b.policy.AutoFixShareCutoff:
		return "Use a mixed approach: activate the widget for covered issues and " +
			"apply the generated code patches for the rest."
	default:
		return "Most issues need human attention. Work through the manual guides " +
			"in descending risk-value order."
	}
}

// resolvedCount sums artifact coverage: widget fixes cover their whole
// group, each patch and guide counts once.
func resolvedCount(pkg *FixPackage) int {
	n := 0
	for _, w := range pkg.WidgetFixes {
		n += w.IssueCount
	}
	n += len(pkg.CodePatches)
	n += len(pkg.ManualGuides)
	return n
}

// mergeRefs collects the distinct regulatory references of a group,
// preserving first-seen order.
func mergeRefs(group []*issue.Issue) []string {
	seen := make(map[string]bool)
	var refs []string
	for _, is := range group {
		for _, ref := range is.RegulatoryRefs {
			if !seen[ref] {
				seen[ref] = true
				refs = append(refs, ref)
			}
		}
	}
	return refs
}

func copyRefs(refs []string) []string {
	if len(refs) == 0 {
		return nil
	}
	out := make([]string, len(refs))
	copy(out, refs)
	return out
}
