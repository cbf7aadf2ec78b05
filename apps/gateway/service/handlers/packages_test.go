package handlers //nolint:testpackage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/complyhq/remedy/internal/fixpkg"
	"github.com/complyhq/remedy/internal/issue"
	"github.com/complyhq/remedy/internal/store"
)

func storedPackage(t *testing.T, repo store.PackageRepository, siteRef string, generatedAt ...time.Time) *fixpkg.FixPackage {
	t.Helper()

	gen := time.Now().UTC()
	if len(generatedAt) > 0 {
		gen = generatedAt[0]
	}

	pkg := &fixpkg.FixPackage{
		ID:            issue.NewPackageID(),
		SiteReference: siteRef,
		GeneratedAt:   gen,
		TotalIssues:   2,
		WidgetFixes: []fixpkg.WidgetFix{
			{Feature: issue.FeatureContrast, FixRoute: issue.RouteWidget, IssueCount: 2},
		},
	}

	record, err := store.NewPackageRecord(pkg)
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), record))
	return pkg
}

func TestPackageHandler_GetByID(t *testing.T) {
	repo := store.NewPackageRepository(context.Background(), nil)
	pkg := storedPackage(t, repo, "site-1")
	h := NewPackageHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/packages/"+pkg.ID.String(), nil)
	req.SetPathValue("id", pkg.ID.String())
	rec := httptest.NewRecorder()
	h.GetByID(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got fixpkg.FixPackage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, pkg.ID, got.ID)
	assert.Equal(t, "site-1", got.SiteReference)
	require.Len(t, got.WidgetFixes, 1)
	assert.Equal(t, issue.FeatureContrast, got.WidgetFixes[0].Feature)
}

func TestPackageHandler_GetByID_NotFound(t *testing.T) {
	repo := store.NewPackageRepository(context.Background(), nil)
	h := NewPackageHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/packages/missing", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()
	h.GetByID(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPackageHandler_LatestForSite(t *testing.T) {
	repo := store.NewPackageRepository(context.Background(), nil)
	now := time.Now().UTC()
	storedPackage(t, repo, "site-1", now.Add(-time.Hour))
	latest := storedPackage(t, repo, "site-1", now)
	storedPackage(t, repo, "site-2", now.Add(time.Hour))
	h := NewPackageHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sites/site-1/packages/latest", nil)
	req.SetPathValue("site", "site-1")
	rec := httptest.NewRecorder()
	h.LatestForSite(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got fixpkg.FixPackage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, latest.ID, got.ID)
}

func TestPackageHandler_ListForSite(t *testing.T) {
	repo := store.NewPackageRepository(context.Background(), nil)
	for range 3 {
		storedPackage(t, repo, "site-1")
	}
	h := NewPackageHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sites/site-1/packages?limit=2", nil)
	req.SetPathValue("site", "site-1")
	rec := httptest.NewRecorder()
	h.ListForSite(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Packages []store.PackageRecord `json:"packages"`
		Count    int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Len(t, resp.Packages, 2)
}

func TestPackageHandler_ListForSite_InvalidLimit(t *testing.T) {
	repo := store.NewPackageRepository(context.Background(), nil)
	h := NewPackageHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sites/site-1/packages?limit=abc", nil)
	req.SetPathValue("site", "site-1")
	rec := httptest.NewRecorder()
	h.ListForSite(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
