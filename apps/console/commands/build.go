package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/complyhq/remedy/internal/codegen"
	"github.com/complyhq/remedy/internal/fixpkg"
	"github.com/complyhq/remedy/internal/issue"
)

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	failureColor = color.New(color.FgRed)
	warnColor    = color.New(color.FgYellow)
)

type buildOptions struct {
	SiteReference string
	RulesPath     string
	TablesPath    string
	OutputFile    string
	WithCodegen   bool
}

// findingsFile is the input document: raw scanner findings for one site.
type findingsFile struct {
	SiteReference string             `json:"site_reference"`
	Findings      []issue.RawFinding `json:"findings"`
}

func newBuildCmd() *cobra.Command {
	opts := buildOptions{}

	cmd := &cobra.Command{
		Use:          "build [flags] <findings.json>",
		SilenceUsage: true,
		Short:        "Build a remediation package from a scan findings file.",
		Args:         cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.SiteReference, "site", "", "site reference override")
	cmd.Flags().StringVar(&opts.RulesPath, "rules", "", "classification rules YAML overlay")
	cmd.Flags().StringVar(&opts.TablesPath, "tables", "", "widget snippet and guide tables YAML overlay")
	cmd.Flags().StringVarP(&opts.OutputFile, "output", "o", "package.json", "output package file")
	cmd.Flags().BoolVar(&opts.WithCodegen, "codegen", false,
		"generate code patches via API providers (needs ANTHROPIC_API_KEY or OPENAI_API_KEY)")

	return cmd
}

func runBuild(ctx context.Context, findingsPath string, opts buildOptions) error {
	input, err := loadFindings(findingsPath)
	if err != nil {
		return err
	}

	siteRef := input.SiteReference
	if opts.SiteReference != "" {
		siteRef = opts.SiteReference
	}
	if siteRef == "" {
		return fmt.Errorf("no site reference in %s; pass --site", findingsPath)
	}

	classifier, err := buildClassifier(opts.RulesPath)
	if err != nil {
		return err
	}

	builder, err := buildBuilder(opts)
	if err != nil {
		return err
	}

	issues, rejects := classifier.ClassifyBatch(ctx, input.Findings)
	for _, reject := range rejects {
		warnColor.Fprintf(os.Stderr, "rejected finding %s: %s\n",
			reject.Finding.Identity(), reject.Reason)
	}
	if len(issues) == 0 {
		return fmt.Errorf("no classifiable findings in %s", findingsPath)
	}

	pkg, err := builder.Build(ctx, siteRef, issues)
	if err != nil {
		return err
	}

	if err := writePackage(pkg, opts.OutputFile); err != nil {
		return err
	}

	printPackageSummary(pkg, len(rejects), opts.OutputFile)
	return nil
}

func loadFindings(path string) (*findingsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read findings file: %w", err)
	}

	var input findingsFile
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("parse findings file: %w", err)
	}
	if len(input.Findings) == 0 {
		return nil, fmt.Errorf("no findings in %s", path)
	}
	return &input, nil
}

func buildClassifier(rulesPath string) (*issue.Classifier, error) {
	rules := issue.DefaultRuleSet()
	if rulesPath != "" {
		loaded, err := issue.LoadRuleSet(rulesPath)
		if err != nil {
			return nil, err
		}
		rules = loaded
	}
	return issue.NewClassifier(rules), nil
}

func buildBuilder(opts buildOptions) (*fixpkg.Builder, error) {
	tables := fixpkg.DefaultTables()
	if opts.TablesPath != "" {
		loaded, err := fixpkg.LoadTables(opts.TablesPath)
		if err != nil {
			return nil, err
		}
		tables = loaded
	}

	builderOpts := []fixpkg.BuilderOption{}
	if opts.WithCodegen {
		cfg := codegen.DefaultClientConfig()
		cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
		cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")

		generator, err := codegen.NewMultiProviderClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("codegen unavailable: %w", err)
		}
		builderOpts = append(builderOpts, fixpkg.WithGenerator(generator))
	}

	return fixpkg.NewBuilder(tables, builderOpts...), nil
}

func writePackage(pkg *fixpkg.FixPackage, path string) error {
	data, err := json.MarshalIndent(pkg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode package: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write package file: %w", err)
	}
	return nil
}

func printPackageSummary(pkg *fixpkg.FixPackage, rejected int, outputFile string) {
	headingColor.Printf("Remediation package %s\n", pkg.ID)
	fmt.Printf("  site:           %s\n", pkg.SiteReference)
	fmt.Printf("  generated:      %s\n", pkg.GeneratedAt.Format(time.RFC3339))
	fmt.Printf("  total issues:   %d", pkg.TotalIssues)
	if rejected > 0 {
		warnColor.Printf("  (%d findings rejected)", rejected)
	}
	fmt.Println()

	successColor.Printf("  widget fixes:   %d\n", len(pkg.WidgetFixes))
	patchFailures := 0
	for _, patch := range pkg.CodePatches {
		if patch.Outcome == fixpkg.OutcomeFailure {
			patchFailures++
		}
	}
	if patchFailures > 0 {
		failureColor.Printf("  code patches:   %d (%d failed)\n", len(pkg.CodePatches), patchFailures)
	} else {
		successColor.Printf("  code patches:   %d\n", len(pkg.CodePatches))
	}
	fmt.Printf("  manual guides:  %d\n", len(pkg.ManualGuides))
	fmt.Printf("  total risk:     %.0f\n", pkg.Summary.TotalRiskValue)

	headingColor.Println("Recommendation")
	fmt.Printf("  %s\n", pkg.Summary.Recommendation)
	fmt.Printf("\nPackage written to %s\n", outputFile)
}
