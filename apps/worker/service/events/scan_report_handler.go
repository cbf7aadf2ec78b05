package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pitabwire/util"

	appconfig "github.com/complyhq/remedy/apps/worker/config"
	"github.com/complyhq/remedy/internal/fixpkg"
	"github.com/complyhq/remedy/internal/issue"
	"github.com/complyhq/remedy/internal/store"
)

// QueuePublisher defines the interface for publishing messages to a queue.
type QueuePublisher interface {
	Publish(ctx context.Context, queueName string, payload any, headers ...map[string]string) error
}

// ScanReportMessage is the queued scan report consumed from the gateway.
type ScanReportMessage struct {
	ReportID       string             `json:"report_id"`
	SiteReference  string             `json:"site_reference"`
	Findings       []issue.RawFinding `json:"findings"`
	ScannerVersion string             `json:"scanner_version,omitempty"`
	SubmittedBy    string             `json:"submitted_by"`
	SubmittedAt    time.Time          `json:"submitted_at"`
}

// PackageResult is published once a scan report has been processed.
type PackageResult struct {
	ReportID      string `json:"report_id"`
	SiteReference string `json:"site_reference"`
	Status        string `json:"status"`
	PackageID     string `json:"package_id,omitempty"`

	TotalFindings    int            `json:"total_findings"`
	ClassifiedCount  int            `json:"classified_count"`
	RejectedFindings []issue.Reject `json:"rejected_findings,omitempty"`

	ResolvedIssueCount int    `json:"resolved_issue_count,omitempty"`
	Recommendation     string `json:"recommendation,omitempty"`

	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// Result statuses.
const (
	ResultStatusBuilt  = "built"
	ResultStatusFailed = "failed"
)

// ScanReportHandler consumes scan reports and builds remediation packages.
type ScanReportHandler struct {
	cfg        *appconfig.WorkerConfig
	classifier *issue.Classifier
	builder    *fixpkg.Builder
	repo       store.PackageRepository
	publisher  QueuePublisher
}

// NewScanReportHandler creates a new scan report handler.
func NewScanReportHandler(
	cfg *appconfig.WorkerConfig,
	classifier *issue.Classifier,
	builder *fixpkg.Builder,
	repo store.PackageRepository,
	publisher QueuePublisher,
) *ScanReportHandler {
	return &ScanReportHandler{
		cfg:        cfg,
		classifier: classifier,
		builder:    builder,
		repo:       repo,
		publisher:  publisher,
	}
}

// Handle processes an incoming scan report message. Classification rejects
// are reported per finding; a build failure is reported once for the whole
// package and is not redelivered, since reprocessing the same report cannot
// change the outcome.
func (h *ScanReportHandler) Handle(
	ctx context.Context,
	_ map[string]string,
	payload []byte,
) error {
	log := util.Log(ctx)

	var msg ScanReportMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("unmarshal scan report: %w", err)
	}

	log.Info("processing scan report",
		"report_id", msg.ReportID,
		"site_reference", msg.SiteReference,
		"findings", len(msg.Findings),
	)

	issues, rejects := h.classifier.ClassifyBatch(ctx, msg.Findings)

	result := PackageResult{
		ReportID:         msg.ReportID,
		SiteReference:    msg.SiteReference,
		TotalFindings:    len(msg.Findings),
		ClassifiedCount:  len(issues),
		RejectedFindings: rejects,
	}

	if len(issues) == 0 {
		result.Status = ResultStatusFailed
		result.Error = "no classifiable findings in report"
		return h.publishResult(ctx, result)
	}

	pkg, err := h.builder.Build(ctx, msg.SiteReference, issues)
	if err != nil {
		log.WithError(err).Error("package build failed",
			"report_id", msg.ReportID,
			"site_reference", msg.SiteReference,
		)
		result.Status = ResultStatusFailed
		result.Error = err.Error()
		return h.publishResult(ctx, result)
	}

	record, err := store.NewPackageRecord(pkg)
	if err != nil {
		return fmt.Errorf("encode package record: %w", err)
	}
	if saveErr := h.repo.Save(ctx, record); saveErr != nil {
		// Storage trouble is transient; let the queue redeliver.
		return fmt.Errorf("save package %s: %w", pkg.ID, saveErr)
	}

	log.Info("package built",
		"report_id", msg.ReportID,
		"package_id", pkg.ID.String(),
		"widget_fixes", len(pkg.WidgetFixes),
		"code_patches", len(pkg.CodePatches),
		"manual_guides", len(pkg.ManualGuides),
	)

	result.Status = ResultStatusBuilt
	result.PackageID = pkg.ID.String()
	result.ResolvedIssueCount = pkg.ResolvedIssueCount
	result.Recommendation = pkg.Summary.Recommendation
	return h.publishResult(ctx, result)
}

func (h *ScanReportHandler) publishResult(ctx context.Context, result PackageResult) error {
	result.CompletedAt = time.Now().UTC()
	if err := h.publisher.Publish(ctx, h.cfg.QueuePackageResultName, result); err != nil {
		return fmt.Errorf("publish package result for report %s: %w", result.ReportID, err)
	}
	return nil
}
