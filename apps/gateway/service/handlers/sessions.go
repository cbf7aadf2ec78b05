package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pitabwire/util"

	"github.com/complyhq/remedy/internal/issue"
	"github.com/complyhq/remedy/internal/rescan"
	"github.com/complyhq/remedy/internal/store"
	"github.com/complyhq/remedy/internal/workflow"
)

// SessionHandler drives walkthrough sessions over stored packages.
type SessionHandler struct {
	sessions *workflow.Manager
	repo     store.PackageRepository
	rescans  rescan.Trigger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(
	sessions *workflow.Manager,
	repo store.PackageRepository,
	rescans rescan.Trigger,
) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		repo:     repo,
		rescans:  rescans,
	}
}

// Open serves POST /api/v1/packages/{id}/sessions.
func (h *SessionHandler) Open(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	record, err := h.repo.GetByID(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrPackageNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "storage_error",
			"Failed to load package", nil)
		return
	}

	pkg, err := record.Package()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_error",
			"Stored package could not be decoded", nil)
		return
	}

	session := h.sessions.Open(pkg)

	if statusErr := h.repo.UpdateStatus(ctx, record.ID, store.PackageStatusInReview); statusErr != nil {
		util.Log(ctx).WithError(statusErr).Warn("failed to mark package in review",
			"package_id", record.ID,
		)
	}

	writeJSON(w, http.StatusCreated, session.State())
}

// Get serves GET /api/v1/sessions/{id}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session.State())
}

// Advance serves POST /api/v1/sessions/{id}/advance.
func (h *SessionHandler) Advance(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := session.Advance(); err != nil {
		writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.State())
}

// backRequest names the earlier step to return to.
type backRequest struct {
	To workflow.Step `json:"to"`
}

// Back serves POST /api/v1/sessions/{id}/back.
func (h *SessionHandler) Back(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req backRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json",
			"Failed to parse JSON request body", nil)
		return
	}

	if err := session.Back(req.To); err != nil {
		writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.State())
}

// routeRequest carries the operator's route choice.
type routeRequest struct {
	Route issue.FixRoute `json:"route"`
}

// SelectRoute serves POST /api/v1/sessions/{id}/route.
func (h *SessionHandler) SelectRoute(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json",
			"Failed to parse JSON request body", nil)
		return
	}

	if err := session.SelectRoute(req.Route); err != nil {
		if errors.Is(err, workflow.ErrUnknownRoute) {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
			return
		}
		writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.State())
}

// ActivateWidget serves POST /api/v1/sessions/{id}/widget-activation.
func (h *SessionHandler) ActivateWidget(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := session.ActivateWidget(); err != nil {
		writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.State())
}

// AcknowledgePatchDownload serves POST /api/v1/sessions/{id}/patch-download.
func (h *SessionHandler) AcknowledgePatchDownload(w http.ResponseWriter, r *http.Request) {
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := session.AcknowledgePatchDownload(); err != nil {
		writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.State())
}

// Verify serves POST /api/v1/sessions/{id}/rescan. A failed trigger leaves
// the verify step active; the operator retries.
func (h *SessionHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := h.lookup(w, r)
	if !ok {
		return
	}

	result, err := session.Verify(ctx, h.rescans)
	if err != nil {
		if errors.Is(err, rescan.ErrUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "rescan_unavailable",
				"Scanning service unreachable; the verify step stays active, retry shortly",
				nil)
			return
		}
		writeTransitionError(w, err)
		return
	}

	if result.Passed {
		packageID := session.Package().ID.String()
		if statusErr := h.repo.UpdateStatus(ctx, packageID, store.PackageStatusVerified); statusErr != nil {
			util.Log(ctx).WithError(statusErr).Warn("failed to mark package verified",
				"package_id", packageID,
			)
		}
	}

	writeJSON(w, http.StatusOK, session.State())
}

// Close serves DELETE /api/v1/sessions/{id}.
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, err := issue.ParseSessionID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error",
			"invalid session id", nil)
		return
	}
	h.sessions.Close(id)
	w.WriteHeader(http.StatusNoContent)
}

// lookup resolves the session named in the request path, writing the error
// response itself when it cannot.
func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request) (*workflow.Session, bool) {
	id, err := issue.ParseSessionID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error",
			"invalid session id", nil)
		return nil, false
	}

	session, err := h.sessions.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
		return nil, false
	}
	return session, true
}

// writeTransitionError maps workflow rejections to HTTP responses. Invalid
// transitions are conflicts with the session's current state.
func writeTransitionError(w http.ResponseWriter, err error) {
	var terr *workflow.TransitionError
	if errors.As(err, &terr) {
		writeError(w, http.StatusConflict, "invalid_transition", terr.Error(),
			map[string]string{
				"from": string(terr.From),
				"to":   string(terr.To),
			})
		return
	}
	writeError(w, http.StatusInternalServerError, "workflow_error", err.Error(), nil)
}
