package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/storefront/api/internal/di"
	"github.com/storefront/api/internal/handlers"
	"github.com/storefront/api/internal/invoice"
	"github.com/storefront/api/internal/notify"
	"github.com/storefront/api/internal/payments"
	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/platform/config"
	pfirestore "github.com/storefront/api/internal/platform/firestore"
	"github.com/storefront/api/internal/platform/idempotency"
	"github.com/storefront/api/internal/platform/jobs"
	"github.com/storefront/api/internal/platform/observability"
	"github.com/storefront/api/internal/platform/secrets"
	platformstorage "github.com/storefront/api/internal/platform/storage"
	"github.com/storefront/api/internal/repositories"
	firestoreRepo "github.com/storefront/api/internal/repositories/firestore"
	"github.com/storefront/api/internal/repositories/memory"
	"github.com/storefront/api/internal/services"
)

const meterName = "github.com/storefront/api"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["API_LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)
	meter := otel.GetMeterProvider().Meter(meterName)
	debugMode := cfg.Features.DebugMode

	var (
		registry          repositories.Registry
		firestoreProvider *pfirestore.Provider
	)
	if debugMode {
		logger.Warn("debug mode enabled; database-backed routes are disabled")
		registry = memory.NewStore()
	} else {
		firestoreProvider = pfirestore.NewProvider(cfg.Firestore)
		if _, err := firestoreProvider.Client(ctx); err != nil {
			logger.Fatal("failed to initialise firestore client", zap.Error(err))
		}
		fsRegistry, err := firestoreRepo.NewRegistry(firestoreProvider)
		if err != nil {
			logger.Fatal("failed to initialise repositories", zap.Error(err))
		}
		registry = fsRegistry
	}

	gateway := newGateway(logger, cfg)
	mailer := newMailer(logger, cfg)

	archive, closeArchive := newInvoiceArchive(ctx, logger, cfg, debugMode)
	defer closeArchive()
	events, closeEvents := newEventPublisher(ctx, logger, cfg, debugMode)
	defer closeEvents()

	var health repositories.HealthRepository
	if firestoreProvider != nil {
		health, err = newHealthRepository(firestoreProvider, fetcher)
		if err != nil {
			logger.Warn("health: dependency probes unavailable", zap.Error(err))
		}
	}

	collab := di.Collaborators{
		Gateway:  gateway,
		Mailer:   mailer,
		Invoices: invoice.NewRenderer(),
		Health:   health,
		Meter:    meter,
		Logger:   observability.EventLogger(logger.Named("services")),
		Build:    buildInfo,
		Clock:    time.Now,
	}
	// Typed nils would defeat the dispatcher's nil checks.
	if archive != nil {
		collab.Archive = archive
	}
	if events != nil {
		collab.Events = events
	}

	container, err := di.NewContainer(ctx, cfg, registry, collab)
	if err != nil {
		logger.Fatal("failed to build service container", zap.Error(err))
	}

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLogger(logger.Named("http")),
		observability.Trace(projectID),
		observability.AccessLog(),
		observability.Recover(logger.Named("http")),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(container.Services.System),
	)

	opts := []handlers.Option{
		handlers.WithBasePath(cfg.Server.BasePath),
		handlers.WithRequestTimeout(cfg.Server.RequestTimeout),
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithDebugMode(debugMode),
	}
	if !debugMode {
		authenticator, err := newAuthenticator(ctx, cfg, registry)
		if err != nil {
			logger.Fatal("failed to initialise authenticator", zap.Error(err))
		}

		client, err := firestoreProvider.Client(ctx)
		if err != nil {
			logger.Fatal("failed to obtain firestore client", zap.Error(err))
		}
		idempotencyMiddleware := idempotency.Middleware(
			idempotency.NewFirestoreStore(client),
			idempotency.WithHeader(cfg.Idempotency.Header),
			idempotency.WithTTL(cfg.Idempotency.TTL),
		)

		orderHandlers := handlers.NewOrderHandlers(authenticator, container.Services.Orders, container.Services.Payments,
			handlers.WithOrderIdempotency(idempotencyMiddleware),
			handlers.WithVerifyRateLimit(cfg.RateLimits.VerifyPerMinute, time.Minute),
		)
		cartHandlers := handlers.NewCartHandlers(authenticator, container.Services.Cart)
		reviewHandlers := handlers.NewReviewHandlers(authenticator, container.Services.Reviews,
			handlers.WithReviewRateLimit(cfg.RateLimits.ReviewPerMinute, time.Minute),
		)
		opts = append(opts,
			handlers.WithOrderRoutes(orderHandlers.Routes),
			handlers.WithCartRoutes(cartHandlers.Routes),
			handlers.WithReviewRoutes(reviewHandlers.Routes),
		)
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr), zap.String("basePath", cfg.Server.BasePath))
	go func() {
		serverLogger.Info("storefront api listening", zap.Bool("debugMode", debugMode), zap.Bool("gateway", gateway.Enabled()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("container close error", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Server.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newHealthRepository(provider *pfirestore.Provider, fetcher *secrets.Fetcher) (repositories.HealthRepository, error) {
	checks := []repositories.DependencyCheck{
		{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check:   provider.Ping,
		},
	}
	if fetcher != nil {
		const secretHealthReference = "secret://system/healthz?version=latest"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil || isNotFoundStatus(err) {
					return nil
				}
				return err
			},
		})
	}
	return repositories.NewProbeHealthRepository(checks)
}

func isNotFoundStatus(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.NotFound
}

func newAuthenticator(ctx context.Context, cfg config.Config, reg repositories.Registry) (*auth.Authenticator, error) {
	var verifier auth.TokenVerifier
	switch cfg.Auth.Provider {
	case config.AuthProviderFirebase:
		firebase, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
		if err != nil {
			return nil, fmt.Errorf("firebase verifier: %w", err)
		}
		verifier = firebase
	default:
		jwtVerifier, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret)
		if err != nil {
			return nil, fmt.Errorf("jwt verifier: %w", err)
		}
		verifier = jwtVerifier
	}
	return auth.NewAuthenticator(verifier, reg.Accounts()), nil
}

func newGateway(logger *zap.Logger, cfg config.Config) payments.Gateway {
	if !cfg.Razorpay.Enabled() {
		logger.Warn("payments: razorpay credentials not configured; online payments disabled")
		return payments.Disabled{}
	}
	client, err := payments.NewRazorpayClient(payments.RazorpayConfig{
		KeyID:     cfg.Razorpay.KeyID,
		KeySecret: cfg.Razorpay.KeySecret,
		BaseURL:   cfg.Razorpay.BaseURL,
		Timeout:   cfg.Razorpay.Timeout,
	})
	if err != nil {
		logger.Error("payments: razorpay client init failed; online payments disabled", zap.Error(err))
		return payments.Disabled{}
	}
	return client
}

func newMailer(logger *zap.Logger, cfg config.Config) services.Mailer {
	mailLogger := logger.Named("mail")
	if !cfg.Mail.Enabled() {
		mailLogger.Warn("mail: smtp not configured; emails will be logged only")
		return notify.NopMailer{Logger: mailLogger}
	}
	mailer, err := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
		Timeout:  cfg.Mail.Timeout,
	}, mailLogger)
	if err != nil {
		mailLogger.Error("mail: smtp mailer init failed; emails will be logged only", zap.Error(err))
		return notify.NopMailer{Logger: mailLogger}
	}
	return mailer
}

func newInvoiceArchive(ctx context.Context, logger *zap.Logger, cfg config.Config, debugMode bool) (*platformstorage.InvoiceArchive, func()) {
	bucket := strings.TrimSpace(cfg.Storage.InvoiceBucket)
	if debugMode || bucket == "" {
		return nil, func() {}
	}
	client, err := cloudstorage.NewClient(ctx)
	if err != nil {
		logger.Warn("storage: client init failed; invoices will not be archived", zap.Error(err))
		return nil, func() {}
	}
	archive, err := platformstorage.NewInvoiceArchive(client, bucket)
	if err != nil {
		_ = client.Close()
		logger.Warn("storage: invoice archive init failed", zap.Error(err))
		return nil, func() {}
	}
	return archive, func() {
		if err := client.Close(); err != nil {
			logger.Warn("storage close error", zap.Error(err))
		}
	}
}

func newEventPublisher(ctx context.Context, logger *zap.Logger, cfg config.Config, debugMode bool) (*jobs.PubSubOrderEventPublisher, func()) {
	projectID := strings.TrimSpace(cfg.PubSub.ProjectID)
	topicName := strings.TrimSpace(cfg.PubSub.OrderTopic)
	if debugMode || projectID == "" || topicName == "" {
		return nil, func() {}
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		logger.Warn("pubsub: client init failed; order events disabled", zap.Error(err))
		return nil, func() {}
	}
	topic := client.Topic(topicName)
	publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
	if err != nil {
		topic.Stop()
		_ = client.Close()
		logger.Warn("pubsub: publisher init failed", zap.Error(err))
		return nil, func() {}
	}
	return publisher, func() {
		topic.Stop()
		if err := client.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE")

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists secrets that must resolve to a value for the enabled integrations.
func requiredSecretNames(env map[string]string) []string {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}
	debug, _ := strconv.ParseBool(lookup("API_FEATURE_DEBUG_MODE"))

	var required []string
	provider := strings.ToLower(lookup("API_AUTH_PROVIDER"))
	if !debug && (provider == "" || provider == config.AuthProviderJWT) {
		required = append(required, "Auth.JWTSecret")
	}
	if lookup("API_RAZORPAY_KEY_ID") != "" {
		required = append(required, "Razorpay.KeySecret")
	}
	if lookup("API_MAIL_HOST") != "" && lookup("API_MAIL_USERNAME") != "" {
		required = append(required, "Mail.Password")
	}
	sort.Strings(required)
	return required
}
