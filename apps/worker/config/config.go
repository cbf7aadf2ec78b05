package config

import (
	"github.com/pitabwire/frame/config"
)

// WorkerConfig defines configuration for the worker service.
// The worker consumes scan reports, classifies findings and builds
// remediation packages.
type WorkerConfig struct {
	config.ConfigurationDefault

	// ==========================================================================
	// Code Generation Provider Configuration
	// ==========================================================================

	// AnthropicAPIKey is the API key for Anthropic Claude.
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`

	// OpenAIAPIKey is the API key for OpenAI.
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`

	// DefaultCodegenProvider is the provider tried first for patch
	// generation.
	DefaultCodegenProvider string `envDefault:"anthropic" env:"DEFAULT_CODEGEN_PROVIDER"`

	// CodegenTimeoutSeconds bounds a single patch generation call.
	CodegenTimeoutSeconds int `envDefault:"60" env:"CODEGEN_TIMEOUT_SECONDS"`

	// CodegenMaxRetries is the per-provider retry budget for transient
	// generation failures.
	CodegenMaxRetries int `envDefault:"2" env:"CODEGEN_MAX_RETRIES"`

	// CodegenCallsPerMinute rate-limits outbound generation calls.
	CodegenCallsPerMinute int `envDefault:"30" env:"CODEGEN_CALLS_PER_MINUTE"`

	// CodegenConcurrency caps in-flight generation calls per package build.
	CodegenConcurrency int `envDefault:"4" env:"CODEGEN_CONCURRENCY"`

	// ==========================================================================
	// Classification Configuration
	// ==========================================================================

	// RulesPath points at a YAML rule overlay. Built-in rules apply when
	// empty.
	RulesPath string `env:"RULES_PATH"`

	// TablesPath points at a YAML snippet and guide table overlay.
	// Built-in tables apply when empty.
	TablesPath string `env:"TABLES_PATH"`

	// MemoCacheURI is the redis URI for the classification memo cache.
	// An in-process cache is used when empty.
	MemoCacheURI string `env:"MEMO_CACHE_URI"`

	// MemoTTLHours is how long memoized classifications stay valid.
	MemoTTLHours int `envDefault:"24" env:"MEMO_TTL_HOURS"`

	// ==========================================================================
	// Queue Configuration
	// ==========================================================================

	// Scan report queue (incoming)
	QueueScanReportName string `envDefault:"scan.reports" env:"QUEUE_SCAN_REPORT_NAME"`
	QueueScanReportURI  string `envDefault:"mem://scan.reports" env:"QUEUE_SCAN_REPORT_URI"`

	// Package result queue (outgoing)
	QueuePackageResultName string `envDefault:"package.results" env:"QUEUE_PACKAGE_RESULT_NAME"`
	QueuePackageResultURI  string `envDefault:"mem://package.results" env:"QUEUE_PACKAGE_RESULT_URI"`
}
