package handlers //nolint:testpackage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/complyhq/remedy/apps/gateway/config"
	"github.com/complyhq/remedy/internal/issue"
)

type fakePublisher struct {
	queueName string
	payloads  []any
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, queueName string, payload any, _ ...map[string]string) error {
	if p.err != nil {
		return p.err
	}
	p.queueName = queueName
	p.payloads = append(p.payloads, payload)
	return nil
}

func testGatewayConfig() *appconfig.GatewayConfig {
	return &appconfig.GatewayConfig{
		QueueScanReportName:  "scan.reports",
		MaxReportSize:        1 << 20,
		MaxFindingsPerReport: 100,
	}
}

func validReport() ScanReport {
	return ScanReport{
		SiteReference: "site-42",
		Findings: []issue.RawFinding{
			{
				Feature:      "contrast",
				Severity:     "error",
				AutoFixLevel: "high",
				RiskValue:    1500,
			},
		},
		ScannerVersion: "scanner/3.4.1",
	}
}

func postReport(t *testing.T, h *ScanReportHandler, report any) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(report)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan-reports", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestScanReportHandler_Accepted(t *testing.T) {
	publisher := &fakePublisher{}
	h := NewScanReportHandler(testGatewayConfig(), publisher)

	rec := postReport(t, h, validReport())

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp ScanReportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp.Status)
	assert.NotEmpty(t, resp.ReportID)

	require.Len(t, publisher.payloads, 1)
	assert.Equal(t, "scan.reports", publisher.queueName)

	queued, ok := publisher.payloads[0].(QueueScanReport)
	require.True(t, ok)
	assert.Equal(t, "site-42", queued.SiteReference)
	assert.Equal(t, resp.ReportID, queued.ReportID)
	assert.False(t, queued.SubmittedAt.IsZero())
}

func TestScanReportHandler_MethodNotAllowed(t *testing.T) {
	h := NewScanReportHandler(testGatewayConfig(), &fakePublisher{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/scan-reports", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestScanReportHandler_InvalidJSON(t *testing.T) {
	h := NewScanReportHandler(testGatewayConfig(), &fakePublisher{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan-reports",
		strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_json", resp.Error)
}

func TestScanReportHandler_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ScanReport)
		field  string
	}{
		{
			name:   "missing site reference",
			mutate: func(r *ScanReport) { r.SiteReference = "" },
			field:  "site_reference",
		},
		{
			name:   "no findings",
			mutate: func(r *ScanReport) { r.Findings = nil },
			field:  "findings",
		},
		{
			name:   "finding without feature",
			mutate: func(r *ScanReport) { r.Findings[0].Feature = "" },
			field:  "findings[0].feature",
		},
		{
			name:   "finding without auto fix level",
			mutate: func(r *ScanReport) { r.Findings[0].AutoFixLevel = "" },
			field:  "findings[0].auto_fix_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewScanReportHandler(testGatewayConfig(), &fakePublisher{})

			report := validReport()
			tt.mutate(&report)
			rec := postReport(t, h, report)

			require.Equal(t, http.StatusBadRequest, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "validation_error", resp.Error)
			assert.Equal(t, tt.field, resp.Details["field"])
		})
	}
}

func TestScanReportHandler_TooManyFindings(t *testing.T) {
	cfg := testGatewayConfig()
	cfg.MaxFindingsPerReport = 2
	h := NewScanReportHandler(cfg, &fakePublisher{})

	report := validReport()
	for len(report.Findings) <= cfg.MaxFindingsPerReport {
		report.Findings = append(report.Findings, report.Findings[0])
	}

	rec := postReport(t, h, report)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScanReportHandler_BodyTooLarge(t *testing.T) {
	cfg := testGatewayConfig()
	cfg.MaxReportSize = 64
	h := NewScanReportHandler(cfg, &fakePublisher{})

	rec := postReport(t, h, validReport())
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestScanReportHandler_PublishFailure(t *testing.T) {
	publisher := &fakePublisher{err: errors.New("broker down")}
	h := NewScanReportHandler(testGatewayConfig(), publisher)

	rec := postReport(t, h, validReport())

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "queue_error", resp.Error)
}
