// Package workflow drives the operator-facing remediation walkthrough: a
// linear step sequence with free backward navigation and guarded forward
// transitions.
package workflow

import (
	"fmt"
)

// Step is one stage of the remediation walkthrough.
type Step string

// Walkthrough steps, in forward order. StepGuides is the terminal display
// for manual-only packages, which have nothing to apply or verify.
const (
	StepOverview   Step = "overview"
	StepCategorize Step = "categorize"
	StepSelect     Step = "select"
	StepApply      Step = "apply"
	StepVerify     Step = "verify"
	StepGuides     Step = "guides"
)

var stepOrder = map[Step]int{
	StepOverview:   0,
	StepCategorize: 1,
	StepSelect:     2,
	StepApply:      3,
	StepVerify:     4,
	StepGuides:     5,
}

// IsValid reports whether the step is recognized.
func (s Step) IsValid() bool {
	_, ok := stepOrder[s]
	return ok
}

// Before reports whether s comes before other in the forward order.
func (s Step) Before(other Step) bool {
	return stepOrder[s] < stepOrder[other]
}

// Terminal reports whether the walkthrough ends at this step.
func (s Step) Terminal() bool {
	return s == StepVerify || s == StepGuides
}

// TransitionError rejects an invalid step change. The session state is
// untouched when one is returned.
type TransitionError struct {
	From   Step
	To     Step
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move from %s to %s: %s", e.From, e.To, e.Reason)
}

func rejectTransition(from, to Step, reason string) error {
	return &TransitionError{From: from, To: to, Reason: reason}
}
