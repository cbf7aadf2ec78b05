package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/pitabwire/util"

	"github.com/complyhq/remedy/internal/store"
)

const defaultListLimit = 20

// PackageHandler serves built remediation packages.
type PackageHandler struct {
	repo store.PackageRepository
}

// NewPackageHandler creates a new package handler.
func NewPackageHandler(repo store.PackageRepository) *PackageHandler {
	return &PackageHandler{repo: repo}
}

// GetByID serves GET /api/v1/packages/{id}.
func (h *PackageHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	record, err := h.repo.GetByID(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrPackageNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
			return
		}
		util.Log(ctx).WithError(err).Error("failed to load package")
		writeError(w, http.StatusInternalServerError, "storage_error",
			"Failed to load package", nil)
		return
	}

	pkg, err := record.Package()
	if err != nil {
		util.Log(ctx).WithError(err).Error("stored package is corrupt",
			"package_id", record.ID,
		)
		writeError(w, http.StatusInternalServerError, "storage_error",
			"Stored package could not be decoded", nil)
		return
	}

	writeJSON(w, http.StatusOK, pkg)
}

// LatestForSite serves GET /api/v1/sites/{site}/packages/latest.
func (h *PackageHandler) LatestForSite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	record, err := h.repo.LatestForSite(ctx, r.PathValue("site"))
	if err != nil {
		if errors.Is(err, store.ErrPackageNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
			return
		}
		util.Log(ctx).WithError(err).Error("failed to load latest package")
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

	writeJSON(w, http.StatusOK, pkg)
}

// ListForSite serves GET /api/v1/sites/{site}/packages.
func (h *PackageHandler) ListForSite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "validation_error",
				"limit must be a positive integer", nil)
			return
		}
		limit = parsed
	}

	records, err := h.repo.ListForSite(ctx, r.PathValue("site"), limit)
	if err != nil {
		util.Log(ctx).WithError(err).Error("failed to list packages")
		writeError(w, http.StatusInternalServerError, "storage_error",
			"Failed to list packages", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"packages": records,
		"count":    len(records),
	})
}
