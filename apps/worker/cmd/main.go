package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/pitabwire/frame/datastore"
	"github.com/pitabwire/util"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/complyhq/remedy/apps/worker/config"
	"github.com/complyhq/remedy/apps/worker/service/events"
	"github.com/complyhq/remedy/internal/codegen"
	"github.com/complyhq/remedy/internal/fixpkg"
	"github.com/complyhq/remedy/internal/issue"
	"github.com/complyhq/remedy/internal/store"
)

func main() {
	ctx := context.Background()

	// Initialize configuration
	cfg, err := config.LoadWithOIDC[appconfig.WorkerConfig](ctx)
	if err != nil {
		util.Log(ctx).With("err", err).Error("could not process configs")
		return
	}

	if cfg.Name() == "" {
		cfg.ServiceName = "remediation_worker"
	}

	// Create service with Frame
	ctx, svc := frame.NewServiceWithContext(
		ctx,
		frame.WithConfig(&cfg),
		frame.WithDatastore(),
	)
	defer svc.Stop(ctx)
	log := svc.Log(ctx)

	// Get managers
	dbManager := svc.DatastoreManager()
	qMan := svc.QueueManager()

	dbPool := dbManager.GetPool(ctx, datastore.DefaultPoolName)

	// ==========================================================================
	// Setup Classification and Package Building
	// ==========================================================================

	packageRepo := store.NewPackageRepository(ctx, dbPool)

	classifier, err := setupClassifier(ctx, &cfg)
	if err != nil {
		log.WithError(err).Fatal("could not set up classifier")
	}

	builder, err := setupBuilder(ctx, &cfg)
	if err != nil {
		log.WithError(err).Fatal("could not set up package builder")
	}

	// ==========================================================================
	// Register Publishers
	// ==========================================================================

	packageResultPublisher := frame.WithRegisterPublisher(
		cfg.QueuePackageResultName,
		cfg.QueuePackageResultURI,
	)

	// ==========================================================================
	// Register Subscribers
	// ==========================================================================

	scanReportSubscriber := frame.WithRegisterSubscriber(
		cfg.QueueScanReportName,
		cfg.QueueScanReportURI,
		events.NewScanReportHandler(&cfg, classifier, builder, packageRepo, qMan),
	)

	// ==========================================================================
	// Setup Health Endpoint
	// ==========================================================================

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"worker"}`))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready","service":"worker"}`))
	})

	// ==========================================================================
	// Initialize Service
	// ==========================================================================

	serviceOptions := []frame.Option{
		frame.WithHTTPHandler(mux),
		packageResultPublisher,
		scanReportSubscriber,
	}

	svc.Init(ctx, serviceOptions...)

	// ==========================================================================
	// Start the Service
	// ==========================================================================

	log.Info("Starting remediation worker service...")
	err = svc.Run(ctx, "")
	if err != nil {
		log.WithError(err).Fatal("could not run server")
	}
}

func setupClassifier(ctx context.Context, cfg *appconfig.WorkerConfig) (*issue.Classifier, error) {
	rules := issue.DefaultRuleSet()
	if cfg.RulesPath != "" {
		loaded, err := issue.LoadRuleSet(cfg.RulesPath)
		if err != nil {
			return nil, err
		}
		rules = loaded
	}

	var opts []issue.ClassifierOption
	if cfg.MemoCacheURI != "" {
		redisOpts, err := redis.ParseURL(cfg.MemoCacheURI)
		if err != nil {
			return nil, err
		}
		ttl := time.Duration(cfg.MemoTTLHours) * time.Hour
		opts = append(opts, issue.WithMemoStore(
			issue.NewRedisMemoStore(redis.NewClient(redisOpts), ttl),
		))
		util.Log(ctx).Info("classification memo cache on redis")
	}

	return issue.NewClassifier(rules, opts...), nil
}

func setupBuilder(ctx context.Context, cfg *appconfig.WorkerConfig) (*fixpkg.Builder, error) {
	tables := fixpkg.DefaultTables()
	if cfg.TablesPath != "" {
		loaded, err := fixpkg.LoadTables(cfg.TablesPath)
		if err != nil {
			return nil, err
		}
		tables = loaded
	}

	opts := []fixpkg.BuilderOption{
		fixpkg.WithConcurrency(cfg.CodegenConcurrency),
		fixpkg.WithCallTimeout(time.Duration(cfg.CodegenTimeoutSeconds) * time.Second),
	}

	clientCfg := codegen.DefaultClientConfig()
	clientCfg.AnthropicAPIKey = cfg.AnthropicAPIKey
	clientCfg.OpenAIAPIKey = cfg.OpenAIAPIKey
	clientCfg.DefaultProvider = codegen.Provider(cfg.DefaultCodegenProvider)
	clientCfg.TimeoutSeconds = cfg.CodegenTimeoutSeconds
	clientCfg.MaxRetries = cfg.CodegenMaxRetries
	clientCfg.CallsPerMinute = cfg.CodegenCallsPerMinute

	generator, err := codegen.NewMultiProviderClient(clientCfg)
	if err != nil {
		// Packages still build without a generator; code patches come
		// back as recorded failures until keys are configured.
		util.Log(ctx).WithError(err).Warn("patch generation disabled")
	} else {
		opts = append(opts, fixpkg.WithGenerator(generator))
	}

	return fixpkg.NewBuilder(tables, opts...), nil
}
