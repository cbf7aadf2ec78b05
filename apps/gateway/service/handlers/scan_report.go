package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pitabwire/util"
	"github.com/rs/xid"

	appconfig "github.com/complyhq/remedy/apps/gateway/config"
	"github.com/complyhq/remedy/apps/gateway/middleware"
	"github.com/complyhq/remedy/internal/issue"
)

// QueuePublisher defines the interface for publishing messages to a queue.
type QueuePublisher interface {
	Publish(ctx context.Context, queueName string, payload any, headers ...map[string]string) error
}

// ScanReportHandler accepts scan reports and queues them for package
// building.
type ScanReportHandler struct {
	cfg       *appconfig.GatewayConfig
	publisher QueuePublisher
}

// NewScanReportHandler creates a new scan report handler.
func NewScanReportHandler(
	cfg *appconfig.GatewayConfig,
	publisher QueuePublisher,
) *ScanReportHandler {
	return &ScanReportHandler{
		cfg:       cfg,
		publisher: publisher,
	}
}

// ScanReport is an incoming scan report from the scanner or an API client.
type ScanReport struct {
	// SiteReference identifies the scanned site (required).
	SiteReference string `json:"site_reference"`

	// Findings are the raw scanner findings (required, non-empty). Entries
	// the classifier rejects are reported per item, never batch-failed.
	Findings []issue.RawFinding `json:"findings"`

	// ScannerVersion records the producing scanner build (optional).
	ScannerVersion string `json:"scanner_version,omitempty"`

	// SubmittedBy identifies the submitter (optional, defaults to the
	// authenticated operator).
	SubmittedBy string `json:"submitted_by,omitempty"`
}

// ScanReportResponse is returned on accepted submissions.
type ScanReportResponse struct {
	Status   string `json:"status"`
	ReportID string `json:"report_id,omitempty"`
	Message  string `json:"message"`
}

// QueueScanReport is the message format sent to the worker queue.
type QueueScanReport struct {
	ReportID       string             `json:"report_id"`
	SiteReference  string             `json:"site_reference"`
	Findings       []issue.RawFinding `json:"findings"`
	ScannerVersion string             `json:"scanner_version,omitempty"`
	SubmittedBy    string             `json:"submitted_by"`
	SubmittedAt    time.Time          `json:"submitted_at"`
}

// ServeHTTP handles scan report submission.
func (h *ScanReportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := util.Log(ctx)

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed",
			"Only POST method is allowed", nil)
		return
	}

	claims := middleware.GetOperatorFromContext(ctx)
	operatorID := ""
	if claims != nil {
		operatorID, _ = claims.GetSubject()
	}

	bodyReader := http.MaxBytesReader(w, r.Body, int64(h.cfg.MaxReportSize))
	body, err := io.ReadAll(bodyReader)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request_too_large",
				fmt.Sprintf("Request body exceeds maximum size of %d bytes", h.cfg.MaxReportSize),
				nil)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request",
			"Failed to read request body", nil)
		return
	}

	var report ScanReport
	if unmarshalErr := json.Unmarshal(body, &report); unmarshalErr != nil {
		writeError(w, http.StatusBadRequest, "invalid_json",
			"Failed to parse JSON request body",
			map[string]string{"parse_error": unmarshalErr.Error()})
		return
	}

	if validationErr := h.validateReport(&report); validationErr != nil {
		writeError(w, http.StatusBadRequest, "validation_error",
			validationErr.Error(), map[string]string{"field": validationErr.Field})
		return
	}

	if report.SubmittedBy == "" {
		report.SubmittedBy = operatorID
	}

	reportID := xid.New().String()

	queueReport := QueueScanReport{
		ReportID:       reportID,
		SiteReference:  report.SiteReference,
		Findings:       report.Findings,
		ScannerVersion: report.ScannerVersion,
		SubmittedBy:    report.SubmittedBy,
		SubmittedAt:    time.Now(),
	}

	if publishErr := h.publisher.Publish(ctx, h.cfg.QueueScanReportName, queueReport); publishErr != nil {
		log.WithError(publishErr).Error("failed to publish scan report to queue",
			"report_id", reportID,
			"site_reference", report.SiteReference,
		)
		writeError(w, http.StatusInternalServerError, "queue_error",
			"Failed to queue scan report for processing", nil)
		return
	}

	log.Info("scan report queued",
		"report_id", reportID,
		"site_reference", report.SiteReference,
		"findings", len(report.Findings),
		"submitted_by", report.SubmittedBy,
	)

	writeJSON(w, http.StatusAccepted, ScanReportResponse{
		Status:   "accepted",
		ReportID: reportID,
		Message:  "Scan report queued for processing",
	})
}

// validateReport validates the scan report shape. Per-finding enum values
// are the classifier's concern; the gateway only enforces structure.
func (h *ScanReportHandler) validateReport(report *ScanReport) *ValidationError {
	if report.SiteReference == "" {
		return &ValidationError{
			Field:   "site_reference",
			Message: "site reference is required",
		}
	}

	if len(report.Findings) == 0 {
		return &ValidationError{
			Field:   "findings",
			Message: "at least one finding is required",
		}
	}

	if len(report.Findings) > h.cfg.MaxFindingsPerReport {
		return &ValidationError{
			Field: "findings",
			Message: fmt.Sprintf("report exceeds the maximum of %d findings",
				h.cfg.MaxFindingsPerReport),
		}
	}

	for i, f := range report.Findings {
		if f.Feature == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("findings[%d].feature", i),
				Message: "feature is required",
			}
		}
		if f.AutoFixLevel == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("findings[%d].auto_fix_level", i),
				Message: "auto_fix_level is required",
			}
		}
	}

	return nil
}
