package codegen

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// PromptBuilder renders patch-generation prompts.
type PromptBuilder struct {
	tmpl *template.Template
}

// NewPromptBuilder creates a new prompt builder.
func NewPromptBuilder() (*PromptBuilder, error) {
	t, err := template.New("patch").Funcs(templateFuncs).Parse(patchTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse patch template: %w", err)
	}
	return &PromptBuilder{tmpl: t}, nil
}

// Build renders the prompt for one patch request.
func (pb *PromptBuilder) Build(req PatchRequest) (string, error) {
	var buf bytes.Buffer
	if err := pb.tmpl.Execute(&buf, req); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}

// templateFuncs provides template helper functions.
//
//nolint:gochecknoglobals // Template functions are inherently global
var templateFuncs = template.FuncMap{
	"join": strings.Join,
	"indent": func(indent int, s string) string {
		prefix := strings.Repeat("  ", indent)
		lines := strings.Split(s, "\n")
		for i, line := range lines {
			if line != "" {
				lines[i] = prefix + line
			}
		}
		return strings.Join(lines, "\n")
	},
}

const patchTemplate = `Fix the following web accessibility issue by producing a source patch.

## Issue
Category: {{.Feature}}
{{- if .Element.PageURL}}
Page: {{.Element.PageURL}}
{{- end}}
{{- if .Element.Selector}}
Selector: {{.Element.Selector}}
{{- end}}
{{- if .Element.Snippet}}

## Affected Markup
` + "```html" + `
{{.Element.Snippet}}
` + "```" + `
{{- end}}
{{- if .SuggestedFix}}

## Suggested Fix
{{.SuggestedFix}}
{{- end}}
{{- if .RegulatoryRefs}}

## Success Criteria
{{join .RegulatoryRefs ", "}}
{{- end}}

## Requirements
1. Produce a minimal unified diff against the affected markup.
2. Change only what is needed to resolve the issue.
3. Preserve existing behavior, styling and content.
4. Do not introduce new accessibility violations.

## Output Format
Respond with a JSON object only, no explanation before or after:

{
  "file_path": "path of the file the diff applies to, or empty if unknown",
  "diff": "unified diff text",
  "description": "one sentence describing the change"
}
`
