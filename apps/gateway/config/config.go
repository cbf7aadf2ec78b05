package config

import (
	"github.com/pitabwire/frame/config"
)

// GatewayConfig defines configuration for the gateway service.
// The gateway is the HTTP API that receives scan reports, publishes them to
// the build queue, serves built packages and drives walkthrough sessions.
type GatewayConfig struct {
	config.ConfigurationDefault

	// ==========================================================================
	// Scan Report Queue (outgoing to workers)
	// ==========================================================================

	// QueueScanReportName is the name of the scan report queue.
	QueueScanReportName string `envDefault:"scan.reports" env:"QUEUE_SCAN_REPORT_NAME"`

	// QueueScanReportURI is the URI of the scan report queue.
	QueueScanReportURI string `envDefault:"mem://scan.reports" env:"QUEUE_SCAN_REPORT_URI"`

	// ==========================================================================
	// Package Result Queue (incoming from workers)
	// ==========================================================================

	// QueuePackageResultName is the name of the package result queue.
	QueuePackageResultName string `envDefault:"package.results" env:"QUEUE_PACKAGE_RESULT_NAME"`

	// QueuePackageResultURI is the URI of the package result queue.
	QueuePackageResultURI string `envDefault:"mem://package.results" env:"QUEUE_PACKAGE_RESULT_URI"`

	// ==========================================================================
	// Rate Limiting
	// ==========================================================================

	// RateLimitRequestsPerMinute limits requests per minute per client.
	RateLimitRequestsPerMinute int `envDefault:"60" env:"RATE_LIMIT_REQUESTS_PER_MINUTE"`

	// RateLimitBurstSize is the burst size for rate limiting.
	RateLimitBurstSize int `envDefault:"10" env:"RATE_LIMIT_BURST_SIZE"`

	// ==========================================================================
	// Request Validation
	// ==========================================================================

	// MaxReportSize is the maximum size of a scan report in bytes.
	MaxReportSize int `envDefault:"2097152" env:"MAX_REPORT_SIZE"` // 2MB

	// MaxFindingsPerReport caps the findings accepted in one report.
	MaxFindingsPerReport int `envDefault:"5000" env:"MAX_FINDINGS_PER_REPORT"`

	// ==========================================================================
	// Rescan Service
	// ==========================================================================

	// RescanServiceURL is the base URL of the scanning service.
	RescanServiceURL string `envDefault:"http://localhost:8090" env:"RESCAN_SERVICE_URL"`

	// RescanServiceAPIKey authenticates rescan requests.
	RescanServiceAPIKey string `env:"RESCAN_SERVICE_API_KEY"`

	// RescanTimeoutSeconds bounds one rescan call. Rescans walk whole sites
	// and run far longer than ordinary requests.
	RescanTimeoutSeconds int `envDefault:"300" env:"RESCAN_TIMEOUT_SECONDS"`
}
