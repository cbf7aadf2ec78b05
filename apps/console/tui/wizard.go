// Package tui implements the guided remediation wizard. It uses bubbletea,
// which follows The Elm Architecture: the model holds all state, Update
// reacts to messages and View renders the current state to a string.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/complyhq/remedy/internal/fixpkg"
	"github.com/complyhq/remedy/internal/issue"
	"github.com/complyhq/remedy/internal/rescan"
	"github.com/complyhq/remedy/internal/workflow"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	stepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(1, 2)
)

// routeItem implements list.Item for the route picker.
type routeItem struct {
	route issue.FixRoute
	title string
	desc  string
}

func (i routeItem) Title() string       { return i.title }
func (i routeItem) Description() string { return i.desc }
func (i routeItem) FilterValue() string { return i.title }

// rescanDoneMsg carries the outcome of a verification rescan.
type rescanDoneMsg struct {
	result *rescan.Result
	err    error
}

// Wizard is the wizard's bubbletea model. It wraps a workflow session; all
// step gating lives in the session, the wizard only renders and relays input.
type Wizard struct {
	session *workflow.Session
	trigger rescan.Trigger

	routeMenu  list.Model
	statusMsg  string
	rescanning bool
	quitting   bool

	width  int
	height int
}

// NewWizard creates a wizard over a built package.
func NewWizard(pkg *fixpkg.FixPackage, trigger rescan.Trigger) *Wizard {
	items := []list.Item{}
	if len(pkg.WidgetFixes) > 0 {
		items = append(items, routeItem{
			route: issue.RouteWidget,
			title: "Widget",
			desc:  fmt.Sprintf("Activate the accessibility widget (%d fixes)", len(pkg.WidgetFixes)),
		})
	}
	if len(pkg.CodePatches) > 0 {
		items = append(items, routeItem{
			route: issue.RouteCode,
			title: "Code patches",
			desc:  fmt.Sprintf("Apply generated patches to the site source (%d patches)", len(pkg.CodePatches)),
		})
	}

	routeMenu := list.New(items, list.NewDefaultDelegate(), 0, 10)
	routeMenu.Title = "Select Fix Route"
	routeMenu.SetShowStatusBar(false)
	routeMenu.SetFilteringEnabled(false)

	return &Wizard{
		session:   workflow.NewSession(pkg),
		trigger:   trigger,
		routeMenu: routeMenu,
	}
}

// Session exposes the underlying workflow session.
func (w *Wizard) Session() *workflow.Session {
	return w.session
}

func (w *Wizard) Init() tea.Cmd {
	return nil
}

func (w *Wizard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		w.width = msg.Width
		w.height = msg.Height
		w.routeMenu.SetSize(msg.Width-4, 10)
		return w, nil

	case rescanDoneMsg:
		w.rescanning = false
		if msg.err != nil {
			w.statusMsg = errStyle.Render("rescan failed: " + msg.err.Error())
		} else if msg.result.Passed {
			w.statusMsg = okStyle.Render("rescan passed")
		} else {
			w.statusMsg = errStyle.Render("rescan found remaining issues: " + msg.result.Reason)
		}
		return w, nil

	case tea.KeyMsg:
		return w.handleKey(msg)
	}

	return w, nil
}

func (w *Wizard) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if w.rescanning {
		return w, nil
	}

	switch msg.String() {
	case "ctrl+c", "q":
		w.quitting = true
		return w, tea.Quit

	case "enter":
		if w.session.State().CurrentStep == workflow.StepSelect {
			if item, ok := w.routeMenu.SelectedItem().(routeItem); ok {
				if err := w.session.SelectRoute(item.route); err != nil {
					w.statusMsg = errStyle.Render(err.Error())
					return w, nil
				}
			}
		}
		w.report(w.session.Advance())
		return w, nil

	case "left", "b":
		w.report(w.session.Back(previousStep(w.session.State().CurrentStep)))
		return w, nil

	case "a":
		if w.session.State().CurrentStep == workflow.StepApply {
			w.report(w.session.ActivateWidget())
			return w, nil
		}

	case "d":
		if w.session.State().CurrentStep == workflow.StepApply {
			w.report(w.session.AcknowledgePatchDownload())
			return w, nil
		}

	case "r":
		if w.session.State().CurrentStep == workflow.StepVerify {
			w.rescanning = true
			w.statusMsg = "rescanning..."
			return w, w.runRescan()
		}
	}

	if w.session.State().CurrentStep == workflow.StepSelect {
		var cmd tea.Cmd
		w.routeMenu, cmd = w.routeMenu.Update(msg)
		return w, cmd
	}

	return w, nil
}

func (w *Wizard) report(err error) {
	if err != nil {
		w.statusMsg = errStyle.Render(err.Error())
		return
	}
	w.statusMsg = ""
}

func (w *Wizard) runRescan() tea.Cmd {
	session := w.session
	trigger := w.trigger
	return func() tea.Msg {
		result, err := session.Verify(context.Background(), trigger)
		return rescanDoneMsg{result: result, err: err}
	}
}

func previousStep(current workflow.Step) workflow.Step {
	switch current {
	case workflow.StepCategorize:
		return workflow.StepOverview
	case workflow.StepSelect:
		return workflow.StepCategorize
	case workflow.StepApply:
		return workflow.StepSelect
	case workflow.StepVerify:
		return workflow.StepApply
	case workflow.StepGuides:
		return workflow.StepSelect
	default:
		return current
	}
}

func (w *Wizard) View() string {
	if w.quitting {
		return ""
	}

	state := w.session.State()
	pkg := w.session.Package()

	var body strings.Builder
	body.WriteString(titleStyle.Render("⬡ Remediation Wizard"))
	body.WriteString("  " + dimStyle.Render(pkg.SiteReference) + "\n\n")
	body.WriteString(w.breadcrumb(state.CurrentStep) + "\n\n")

	switch state.CurrentStep {
	case workflow.StepOverview:
		body.WriteString(w.viewOverview(pkg))
	case workflow.StepCategorize:
		body.WriteString(w.viewCategorize(pkg))
	case workflow.StepSelect:
		body.WriteString(w.routeMenu.View())
	case workflow.StepApply:
		body.WriteString(w.viewApply(state, pkg))
	case workflow.StepVerify:
		body.WriteString(w.viewVerify(state))
	case workflow.StepGuides:
		body.WriteString(w.viewGuides(pkg))
	}

	if w.statusMsg != "" {
		body.WriteString("\n" + w.statusMsg)
	}
	body.WriteString("\n\n" + dimStyle.Render(w.helpLine(state.CurrentStep)))

	return boxStyle.Render(body.String())
}

func (w *Wizard) breadcrumb(current workflow.Step) string {
	steps := []workflow.Step{
		workflow.StepOverview,
		workflow.StepCategorize,
		workflow.StepSelect,
		workflow.StepApply,
		workflow.StepVerify,
	}
	if w.session.Package().ManualOnly() {
		steps = []workflow.Step{
			workflow.StepOverview,
			workflow.StepCategorize,
			workflow.StepSelect,
			workflow.StepGuides,
		}
	}

	parts := make([]string, 0, len(steps))
	for _, step := range steps {
		label := string(step)
		if step == current {
			parts = append(parts, stepStyle.Render("["+label+"]"))
		} else {
			parts = append(parts, dimStyle.Render(label))
		}
	}
	return strings.Join(parts, " → ")
}

func (w *Wizard) viewOverview(pkg *fixpkg.FixPackage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Issues found:    %d\n", pkg.TotalIssues)
	fmt.Fprintf(&b, "Widget fixes:    %d\n", len(pkg.WidgetFixes))
	fmt.Fprintf(&b, "Code patches:    %d\n", len(pkg.CodePatches))
	fmt.Fprintf(&b, "Manual guides:   %d\n", len(pkg.ManualGuides))
	fmt.Fprintf(&b, "Total risk:      %.0f\n\n", pkg.Summary.TotalRiskValue)
	b.WriteString("Recommendation: " + pkg.Summary.Recommendation)
	return b.String()
}

func (w *Wizard) viewCategorize(pkg *fixpkg.FixPackage) string {
	var b strings.Builder
	b.WriteString("Issues by feature:\n")
	for _, feature := range issue.Features() {
		count := pkg.Summary.ByFeature[feature]
		if count == 0 {
			continue
		}
		fmt.Fprintf(&b, "  %-14s %d\n", feature, count)
	}
	b.WriteString("\nBy difficulty:\n")
	for _, difficulty := range []issue.Difficulty{
		issue.DifficultyEasy, issue.DifficultyMedium, issue.DifficultyHard,
	} {
		if count := pkg.Summary.ByDifficulty[difficulty]; count > 0 {
			fmt.Fprintf(&b, "  %-14s %d\n", difficulty, count)
		}
	}
	return b.String()
}

func (w *Wizard) viewApply(state workflow.State, pkg *fixpkg.FixPackage) string {
	var b strings.Builder
	switch state.SelectedRoute {
	case issue.RouteWidget:
		b.WriteString("Add the widget snippet to every page, then press 'a' to confirm\nactivation:\n\n")
		for _, fix := range pkg.WidgetFixes {
			fmt.Fprintf(&b, "  %s\n", fix.IntegrationSnippet)
			break
		}
		if state.WidgetActivated {
			b.WriteString("\n" + okStyle.Render("widget activated"))
		}
	case issue.RouteCode:
		fmt.Fprintf(&b, "The package contains %d code patches. Download them from the\npackage file and apply them to the site source, then press 'd'.\n", len(pkg.CodePatches))
		if state.PatchDownloaded {
			b.WriteString("\n" + okStyle.Render("patches acknowledged"))
		}
	default:
		b.WriteString("No route selected.")
	}
	return b.String()
}

func (w *Wizard) viewVerify(state workflow.State) string {
	var b strings.Builder
	b.WriteString("Press 'r' to rescan the site and verify the applied fixes.\nRescans are repeatable; run as many as you need.\n")
	if state.RescanResult != nil {
		if state.RescanResult.Passed {
			b.WriteString("\n" + okStyle.Render("last rescan: passed"))
		} else {
			b.WriteString("\n" + errStyle.Render("last rescan: "+state.RescanResult.Reason))
		}
	}
	return b.String()
}

func (w *Wizard) viewGuides(pkg *fixpkg.FixPackage) string {
	var b strings.Builder
	b.WriteString("All issues in this package need manual remediation:\n\n")
	for _, guide := range pkg.ManualGuides {
		fmt.Fprintf(&b, "%s\n", stepStyle.Render(guide.Title))
		fmt.Fprintf(&b, "  %s\n", guide.Description)
		for i, step := range guide.Steps {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, step)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (w *Wizard) helpLine(current workflow.Step) string {
	switch current {
	case workflow.StepSelect:
		return "↑/↓ choose route · enter confirm · ←/b back · q quit"
	case workflow.StepApply:
		return "a activate widget · d acknowledge patches · enter continue · ←/b back · q quit"
	case workflow.StepVerify:
		return "r rescan · ←/b back · q quit"
	case workflow.StepGuides:
		return "←/b back · q quit"
	default:
		return "enter continue · ←/b back · q quit"
	}
}
