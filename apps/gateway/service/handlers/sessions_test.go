package handlers //nolint:testpackage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complyhq/remedy/internal/fixpkg"
	"github.com/complyhq/remedy/internal/issue"
	"github.com/complyhq/remedy/internal/rescan"
	"github.com/complyhq/remedy/internal/store"
	"github.com/complyhq/remedy/internal/workflow"
)

type fakeTrigger struct {
	calls  int
	result *rescan.Result
	err    error
}

func (f *fakeTrigger) Rescan(_ context.Context, _ string) (*rescan.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type sessionFixture struct {
	handler *SessionHandler
	repo    store.PackageRepository
	trigger *fakeTrigger
	pkg     *fixpkg.FixPackage
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	repo := store.NewPackageRepository(context.Background(), nil)
	pkg := storedPackage(t, repo, "site-1")
	trigger := &fakeTrigger{
		result: &rescan.Result{Passed: true, CompletedAt: time.Now()},
	}

	return &sessionFixture{
		handler: NewSessionHandler(workflow.NewManager(), repo, trigger),
		repo:    repo,
		trigger: trigger,
		pkg:     pkg,
	}
}

func (f *sessionFixture) open(t *testing.T) workflow.State {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/packages/"+f.pkg.ID.String()+"/sessions", nil)
	req.SetPathValue("id", f.pkg.ID.String())
	rec := httptest.NewRecorder()
	f.handler.Open(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var state workflow.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	return state
}

func (f *sessionFixture) post(t *testing.T, sessionID, action, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/sessions/"+sessionID+"/"+action, strings.NewReader(body))
	req.SetPathValue("id", sessionID)
	rec := httptest.NewRecorder()

	switch action {
	case "advance":
		f.handler.Advance(rec, req)
	case "back":
		f.handler.Back(rec, req)
	case "route":
		f.handler.SelectRoute(rec, req)
	case "widget-activation":
		f.handler.ActivateWidget(rec, req)
	case "patch-download":
		f.handler.AcknowledgePatchDownload(rec, req)
	case "rescan":
		f.handler.Verify(rec, req)
	default:
		t.Fatalf("unknown action %q", action)
	}
	return rec
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) workflow.State {
	t.Helper()

	var state workflow.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	return state
}

func TestSessionHandler_OpenMarksPackageInReview(t *testing.T) {
	f := newSessionFixture(t)

	state := f.open(t)
	assert.Equal(t, workflow.StepOverview, state.CurrentStep)
	assert.Equal(t, f.pkg.ID, state.PackageID)

	record, err := f.repo.GetByID(context.Background(), f.pkg.ID.String())
	require.NoError(t, err)
	assert.Equal(t, store.PackageStatusInReview, record.Status)
}

func TestSessionHandler_OpenUnknownPackage(t *testing.T) {
	f := newSessionFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/packages/missing/sessions", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()
	f.handler.Open(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionHandler_FullWidgetWalkthrough(t *testing.T) {
	f := newSessionFixture(t)
	id := f.open(t).SessionID.String()

	state := decodeState(t, f.post(t, id, "advance", ""))
	assert.Equal(t, workflow.StepCategorize, state.CurrentStep)

	state = decodeState(t, f.post(t, id, "advance", ""))
	assert.Equal(t, workflow.StepSelect, state.CurrentStep)

	state = decodeState(t, f.post(t, id, "route", `{"route":"widget"}`))
	assert.Equal(t, issue.RouteWidget, state.SelectedRoute)

	state = decodeState(t, f.post(t, id, "advance", ""))
	assert.Equal(t, workflow.StepApply, state.CurrentStep)

	state = decodeState(t, f.post(t, id, "widget-activation", ""))
	assert.True(t, state.WidgetActivated)

	state = decodeState(t, f.post(t, id, "advance", ""))
	assert.Equal(t, workflow.StepVerify, state.CurrentStep)

	rec := f.post(t, id, "rescan", "")
	require.Equal(t, http.StatusOK, rec.Code)
	state = decodeState(t, rec)
	require.NotNil(t, state.RescanResult)
	assert.True(t, state.RescanResult.Passed)
	assert.Equal(t, 1, f.trigger.calls)

	record, err := f.repo.GetByID(context.Background(), f.pkg.ID.String())
	require.NoError(t, err)
	assert.Equal(t, store.PackageStatusVerified, record.Status)
}

func TestSessionHandler_InvalidTransitionIsConflict(t *testing.T) {
	f := newSessionFixture(t)
	id := f.open(t).SessionID.String()

	// Still in overview; applying is far downstream.
	rec := f.post(t, id, "widget-activation", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_transition", resp.Error)
	assert.Equal(t, "overview", resp.Details["from"])
}

func TestSessionHandler_AdvanceWithoutRouteRejected(t *testing.T) {
	f := newSessionFixture(t)
	id := f.open(t).SessionID.String()

	f.post(t, id, "advance", "")
	f.post(t, id, "advance", "")

	rec := f.post(t, id, "advance", "")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestSessionHandler_UnknownRouteIsBadRequest(t *testing.T) {
	f := newSessionFixture(t)
	id := f.open(t).SessionID.String()

	f.post(t, id, "advance", "")
	f.post(t, id, "advance", "")

	rec := f.post(t, id, "route", `{"route":"manual"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionHandler_Back(t *testing.T) {
	f := newSessionFixture(t)
	id := f.open(t).SessionID.String()

	f.post(t, id, "advance", "")
	f.post(t, id, "advance", "")
	f.post(t, id, "route", `{"route":"widget"}`)

	state := decodeState(t, f.post(t, id, "back", `{"to":"overview"}`))
	assert.Equal(t, workflow.StepOverview, state.CurrentStep)
	assert.Equal(t, issue.RouteWidget, state.SelectedRoute)
}

func TestSessionHandler_RescanUnavailable(t *testing.T) {
	f := newSessionFixture(t)
	f.trigger.err = rescan.ErrUnavailable
	id := f.open(t).SessionID.String()

	f.post(t, id, "advance", "")
	f.post(t, id, "advance", "")
	f.post(t, id, "route", `{"route":"widget"}`)
	f.post(t, id, "advance", "")
	f.post(t, id, "widget-activation", "")
	f.post(t, id, "advance", "")

	rec := f.post(t, id, "rescan", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// Verify step stays active; a retry succeeds once the scanner is back.
	f.trigger.err = nil
	rec = f.post(t, id, "rescan", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, f.trigger.calls)
}

func TestSessionHandler_GetAndClose(t *testing.T) {
	f := newSessionFixture(t)
	id := f.open(t).SessionID.String()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id, nil)
	req.SetPathValue("id", id)
	rec := httptest.NewRecorder()
	f.handler.Get(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+id, nil)
	req.SetPathValue("id", id)
	rec = httptest.NewRecorder()
	f.handler.Close(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id, nil)
	req.SetPathValue("id", id)
	rec = httptest.NewRecorder()
	f.handler.Get(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionHandler_InvalidSessionID(t *testing.T) {
	f := newSessionFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/!!!", nil)
	req.SetPathValue("id", "!!!")
	rec := httptest.NewRecorder()
	f.handler.Get(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
