package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/pitabwire/frame/datastore"
	"github.com/pitabwire/util"

	appconfig "github.com/complyhq/remedy/apps/gateway/config"
	"github.com/complyhq/remedy/apps/gateway/middleware"
	"github.com/complyhq/remedy/apps/gateway/service/handlers"
	"github.com/complyhq/remedy/internal/rescan"
	"github.com/complyhq/remedy/internal/store"
	"github.com/complyhq/remedy/internal/workflow"
)

func main() {
	ctx := context.Background()

	// Initialize configuration
	cfg, err := config.LoadWithOIDC[appconfig.GatewayConfig](ctx)
	if err != nil {
		util.Log(ctx).With("err", err).Error("could not process configs")
		return
	}

	if cfg.Name() == "" {
		cfg.ServiceName = "remediation_gateway"
	}

	// Create service with Frame
	ctx, svc := frame.NewServiceWithContext(
		ctx,
		frame.WithConfig(&cfg),
		frame.WithDatastore(),
		frame.WithRegisterServerOauth2Client(),
	)
	defer svc.Stop(ctx)
	log := svc.Log(ctx)

	// Get managers
	dbManager := svc.DatastoreManager()
	qMan := svc.QueueManager()

	dbPool := dbManager.GetPool(ctx, datastore.DefaultPoolName)

	// ==========================================================================
	// Setup Repositories and Clients
	// ==========================================================================

	packageRepo := store.NewPackageRepository(ctx, dbPool)
	sessionManager := workflow.NewManager()

	rescanClient := rescan.NewClient(rescan.Config{
		BaseURL: cfg.RescanServiceURL,
		APIKey:  cfg.RescanServiceAPIKey,
		Timeout: time.Duration(cfg.RescanTimeoutSeconds) * time.Second,
	})

	// ==========================================================================
	// Register Publishers
	// ==========================================================================

	scanReportPublisher := frame.WithRegisterPublisher(
		cfg.QueueScanReportName,
		cfg.QueueScanReportURI,
	)

	// ==========================================================================
	// Setup HTTP Server
	// ==========================================================================

	securityMan := svc.SecurityManager()
	authenticator := securityMan.GetAuthenticator(ctx)

	authMw := middleware.NewAuthMiddleware(authenticator)
	rateLimiter := middleware.NewRateLimiter(
		cfg.RateLimitRequestsPerMinute,
		cfg.RateLimitBurstSize,
	)
	defer rateLimiter.Stop()

	protect := func(h http.Handler) http.Handler {
		return rateLimiter.Middleware(authMw.Middleware(h))
	}

	scanReportHandler := handlers.NewScanReportHandler(&cfg, qMan)
	packageHandler := handlers.NewPackageHandler(packageRepo)
	sessionHandler := handlers.NewSessionHandler(sessionManager, packageRepo, rescanClient)

	mux := http.NewServeMux()

	// Health check endpoints
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"gateway"}`))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready","service":"gateway"}`))
	})

	// Scan report intake
	mux.Handle("POST /api/v1/scan-reports", protect(scanReportHandler))

	// Package retrieval
	mux.Handle("GET /api/v1/packages/{id}", protect(http.HandlerFunc(packageHandler.GetByID)))
	mux.Handle("GET /api/v1/sites/{site}/packages", protect(http.HandlerFunc(packageHandler.ListForSite)))
	mux.Handle("GET /api/v1/sites/{site}/packages/latest", protect(http.HandlerFunc(packageHandler.LatestForSite)))

	// Remediation walkthrough sessions
	mux.Handle("POST /api/v1/packages/{id}/sessions", protect(http.HandlerFunc(sessionHandler.Open)))
	mux.Handle("GET /api/v1/sessions/{id}", protect(http.HandlerFunc(sessionHandler.Get)))
	mux.Handle("DELETE /api/v1/sessions/{id}", protect(http.HandlerFunc(sessionHandler.Close)))
	mux.Handle("POST /api/v1/sessions/{id}/advance", protect(http.HandlerFunc(sessionHandler.Advance)))
	mux.Handle("POST /api/v1/sessions/{id}/back", protect(http.HandlerFunc(sessionHandler.Back)))
	mux.Handle("POST /api/v1/sessions/{id}/route", protect(http.HandlerFunc(sessionHandler.SelectRoute)))
	mux.Handle("POST /api/v1/sessions/{id}/widget-activation", protect(http.HandlerFunc(sessionHandler.ActivateWidget)))
	mux.Handle("POST /api/v1/sessions/{id}/patch-download", protect(http.HandlerFunc(sessionHandler.AcknowledgePatchDownload)))
	mux.Handle("POST /api/v1/sessions/{id}/rescan", protect(http.HandlerFunc(sessionHandler.Verify)))

	// ==========================================================================
	// Initialize Service
	// ==========================================================================

	serviceOptions := []frame.Option{
		frame.WithHTTPHandler(mux),
		scanReportPublisher,
	}

	svc.Init(ctx, serviceOptions...)

	// ==========================================================================
	// Start the Service
	// ==========================================================================

	log.Info("Starting remediation gateway service...")
	err = svc.Run(ctx, "")
	if err != nil {
		log.WithError(err).Fatal("could not run server")
	}
}
