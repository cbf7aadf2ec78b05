package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pitabwire/util"

	"github.com/complyhq/remedy/internal/fixpkg"
	"github.com/complyhq/remedy/internal/issue"
	"github.com/complyhq/remedy/internal/rescan"
)

// Session errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownRoute    = errors.New("route must be widget or code")
)

// State is the serializable snapshot of one walkthrough session. It carries
// no behavior; all mutation goes through Session methods.
type State struct {
	SessionID     issue.SessionID `json:"session_id"`
	PackageID     issue.PackageID `json:"package_id"`
	SiteReference string          `json:"site_reference"`

	CurrentStep     Step           `json:"current_step"`
	SelectedRoute   issue.FixRoute `json:"selected_route,omitempty"`
	WidgetActivated bool           `json:"widget_activated"`
	PatchDownloaded bool           `json:"patch_downloaded"`

	RescanRequested bool           `json:"rescan_requested"`
	RescanResult    *rescan.Result `json:"rescan_result,omitempty"`

	StartedAt     time.Time          `json:"started_at"`
	StepEnteredAt map[Step]time.Time `json:"step_entered_at"`
}

// Session is one operator's walkthrough over one built package. State
// reads and mutations are safe to mix across goroutines; rescans in flight
// do not block snapshots or navigation.
type Session struct {
	pkg *fixpkg.FixPackage

	mu    sync.Mutex
	state State
}

// NewSession opens a walkthrough over a built package, starting at the
// overview step.
func NewSession(pkg *fixpkg.FixPackage) *Session {
	now := time.Now().UTC()
	return &Session{
		pkg: pkg,
		state: State{
			SessionID:     issue.NewSessionID(),
			PackageID:     pkg.ID,
			SiteReference: pkg.SiteReference,
			CurrentStep:   StepOverview,
			StartedAt:     now,
			StepEnteredAt: map[Step]time.Time{StepOverview: now},
		},
	}
}

// State returns a snapshot of the session. The StepEnteredAt map is copied
// so callers cannot mutate session internals.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state
	snapshot.StepEnteredAt = make(map[Step]time.Time, len(s.state.StepEnteredAt))
	for step, at := range s.state.StepEnteredAt {
		snapshot.StepEnteredAt[step] = at
	}
	return snapshot
}

// Package returns the package this session walks through.
func (s *Session) Package() *fixpkg.FixPackage {
	return s.pkg
}

// enter records the step change with its timestamp.
func (s *Session) enter(step Step) {
	s.state.CurrentStep = step
	s.state.StepEnteredAt[step] = time.Now().UTC()
}

// Advance moves the walkthrough one step forward, enforcing the guards on
// each transition. Invalid advances return a TransitionError and leave the
// state untouched.
func (s *Session) Advance() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.state.CurrentStep

	switch from {
	case StepOverview:
		s.enter(StepCategorize)
		return nil

	case StepCategorize:
		s.enter(StepSelect)
		return nil

	case StepSelect:
		// Manual-only packages have nothing to apply or verify; the
		// walkthrough ends at the guide display.
		if s.pkg.ManualOnly() {
			s.enter(StepGuides)
			return nil
		}
		if s.state.SelectedRoute == "" {
			return rejectTransition(from, StepApply, "no fix route selected")
		}
		s.enter(StepApply)
		return nil

	case StepApply:
		switch s.state.SelectedRoute {
		case issue.RouteWidget:
			if !s.state.WidgetActivated {
				return rejectTransition(from, StepVerify, "widget not activated")
			}
		case issue.RouteCode:
			if !s.state.PatchDownloaded {
				return rejectTransition(from, StepVerify, "patches not downloaded")
			}
		default:
			return rejectTransition(from, StepVerify, "no fix route selected")
		}
		s.enter(StepVerify)
		return nil

	case StepVerify, StepGuides:
		return rejectTransition(from, from, "already at the final step")

	default:
		return rejectTransition(from, from, "unknown step")
	}
}

// Back navigates to any earlier step. Selections and activation flags are
// preserved; navigating back undoes nothing.
func (s *Session) Back(to Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.state.CurrentStep
	if !to.IsValid() {
		return rejectTransition(from, to, "unknown step")
	}
	if !to.Before(from) {
		return rejectTransition(from, to, "backward navigation only reaches earlier steps")
	}
	s.enter(to)
	return nil
}

// SelectRoute commits the operator's route choice during the select step.
// Only widget and code can be committed; manual guides need no selection.
func (s *Session) SelectRoute(route issue.FixRoute) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.CurrentStep != StepSelect {
		return rejectTransition(s.state.CurrentStep, StepSelect,
			"route selection happens in the select step")
	}
	switch route {
	case issue.RouteWidget:
		if len(s.pkg.WidgetFixes) == 0 {
			return fmt.Errorf("%w: package has no widget fixes", ErrUnknownRoute)
		}
	case issue.RouteCode:
		if len(s.pkg.CodePatches) == 0 {
			return fmt.Errorf("%w: package has no code patches", ErrUnknownRoute)
		}
	default:
		return ErrUnknownRoute
	}
	s.state.SelectedRoute = route
	return nil
}

// ActivateWidget records the widget activation acknowledgment during apply.
func (s *Session) ActivateWidget() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.CurrentStep != StepApply || s.state.SelectedRoute != issue.RouteWidget {
		return rejectTransition(s.state.CurrentStep, StepApply,
			"widget activation happens in the apply step with the widget route selected")
	}
	s.state.WidgetActivated = true
	return nil
}

// AcknowledgePatchDownload records the patch download acknowledgment during
// apply. Whether the patches were actually merged is outside system
// visibility.
func (s *Session) AcknowledgePatchDownload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.CurrentStep != StepApply || s.state.SelectedRoute != issue.RouteCode {
		return rejectTransition(s.state.CurrentStep, StepApply,
			"patch acknowledgment happens in the apply step with the code route selected")
	}
	s.state.PatchDownloaded = true
	return nil
}

// Verify triggers a rescan and stores its outcome. It may be re-invoked any
// number of times; a failed trigger leaves all prior state intact and the
// step active for retry.
func (s *Session) Verify(ctx context.Context, trigger rescan.Trigger) (*rescan.Result, error) {
	s.mu.Lock()
	if s.state.CurrentStep != StepVerify {
		from := s.state.CurrentStep
		s.mu.Unlock()
		return nil, rejectTransition(from, StepVerify, "rescan runs in the verify step")
	}
	s.state.RescanRequested = true
	sessionID := s.state.SessionID
	siteRef := s.state.SiteReference
	// The lock is not held across the trigger call; a slow rescan must not
	// block snapshots or navigation.
	s.mu.Unlock()

	result, err := trigger.Rescan(ctx, siteRef)
	if err != nil {
		util.Log(ctx).WithError(err).Warn("rescan trigger failed",
			"session", sessionID,
		)
		return nil, err
	}

	s.mu.Lock()
	s.state.RescanResult = result
	s.mu.Unlock()
	return result, nil
}

// Manager tracks open sessions in memory, keyed by session ID. Sessions are
// ephemeral; nothing is persisted across process restarts.
type Manager struct {
	mu       sync.RWMutex
	sessions map[issue.SessionID]*Session
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[issue.SessionID]*Session)}
}

// Open starts a new walkthrough session over a package.
func (m *Manager) Open(pkg *fixpkg.FixPackage) *Session {
	session := NewSession(pkg)

	m.mu.Lock()
	m.sessions[session.state.SessionID] = session
	m.mu.Unlock()

	return session
}

// Get looks up an open session.
func (m *Manager) Get(id issue.SessionID) (*Session, error) {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return session, nil
}

// Close discards a session. Closing an unknown session is a no-op.
func (m *Manager) Close(id issue.SessionID) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
