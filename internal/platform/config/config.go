package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultBasePath            = "/api"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 60 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultRequestTimeout      = 60 * time.Second
	defaultAuthProvider        = AuthProviderJWT
	defaultRazorpayBaseURL     = "https://api.razorpay.com/v1"
	defaultRazorpayTimeout     = 15 * time.Second
	defaultMailPort            = 587
	defaultMailTimeout         = 20 * time.Second
	defaultOrderTopic          = "order-events"
	defaultDuplicateWindow     = 30 * time.Second
	defaultNotificationQueue   = 256
	defaultNotificationWorkers = 2
	defaultIdempotencyHeader   = "Idempotency-Key"
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultVerifyPerMinute     = 10
	defaultReviewPerMinute     = 5
)

// Auth providers understood by the token verifier factory.
const (
	AuthProviderJWT      = "jwt"
	AuthProviderFirebase = "firebase"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Firebase      FirebaseConfig
	Firestore     FirestoreConfig
	Auth          AuthConfig
	Razorpay      RazorpayConfig
	Mail          MailConfig
	Storage       StorageConfig
	PubSub        PubSubConfig
	Orders        OrdersConfig
	Notifications NotificationConfig
	Features      FeatureFlags
	Idempotency   IdempotencyConfig
	RateLimits    RateLimitConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port           string
	BasePath       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	Environment    string
	LogLevel       string
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// AuthConfig selects how bearer tokens are verified.
type AuthConfig struct {
	Provider  string
	JWTSecret string
}

// RazorpayConfig holds payment gateway credentials. The gateway is disabled when either key is empty.
type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	Timeout   time.Duration
}

// Enabled reports whether both credentials are present.
func (c RazorpayConfig) Enabled() bool {
	return strings.TrimSpace(c.KeyID) != "" && strings.TrimSpace(c.KeySecret) != ""
}

// MailConfig configures the SMTP relay. Mail is disabled when Host is empty.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// Enabled reports whether an SMTP host is configured.
func (c MailConfig) Enabled() bool {
	return strings.TrimSpace(c.Host) != ""
}

// StorageConfig lists bucket names used by the application.
type StorageConfig struct {
	InvoiceBucket string
}

// PubSubConfig configures order event publication. Publishing is disabled when ProjectID is empty.
type PubSubConfig struct {
	ProjectID  string
	OrderTopic string
}

// OrdersConfig tunes order placement.
type OrdersConfig struct {
	DuplicateWindow time.Duration
}

// NotificationConfig sizes the detached notification dispatcher.
type NotificationConfig struct {
	QueueSize int
	Workers   int
}

// FeatureFlags toggle optional behaviour without redeploying.
type FeatureFlags struct {
	// DebugMode skips the database; database-backed routes answer 503.
	DebugMode bool
}

// RateLimitConfig caps per-user request rates on abuse-prone endpoints. Zero disables a limit.
type RateLimitConfig struct {
	VerifyPerMinute int
	ReviewPerMinute int
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header string
	TTL    time.Duration
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets resolved to empty values.
// Names are redacted in the message so logs never reveal which credential is absent.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.names) == 0 {
		return "missing required secrets"
	}
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// Names returns the sorted secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

// RedactedNames returns hashed identifiers safe for logs.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		sum := sha256.Sum256([]byte(name))
		out = append(out, hex.EncodeToString(sum[:8]))
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map. Values in the map take precedence over the OS environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for sm:// and secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks secret fields (e.g. "Razorpay.KeySecret") as mandatory.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// EnvironmentValues returns the effective environment (dotenv < OS env < explicit map) so callers
// can build dependencies such as the secret fetcher before calling Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := newLoaderOptions(opts)
	dotEnv, err := readDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(dotEnv))
	for key, value := range dotEnv {
		values[key] = value
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[key] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and Secret Manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	env, err := EnvironmentValues(opts...)
	if err != nil {
		return Config{}, err
	}
	v := values(env)

	cfg := Config{
		Server: ServerConfig{
			Port:           v.str("API_SERVER_PORT", defaultPort),
			BasePath:       normalizeBasePath(v.str("API_SERVER_BASE_PATH", defaultBasePath)),
			ReadTimeout:    v.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:   v.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:    v.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout: v.duration("API_SERVER_REQUEST_TIMEOUT", defaultRequestTimeout),
			Environment:    strings.ToLower(v.str("API_SERVER_ENVIRONMENT", "local")),
			LogLevel:       v.str("API_LOG_LEVEL", "info"),
		},
		Firebase: FirebaseConfig{
			ProjectID:       v.str("API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: v.str("API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    v.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: v.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Auth: AuthConfig{
			Provider:  strings.ToLower(v.str("API_AUTH_PROVIDER", defaultAuthProvider)),
			JWTSecret: v.str("API_AUTH_JWT_SECRET", ""),
		},
		Razorpay: RazorpayConfig{
			KeyID:     v.str("API_RAZORPAY_KEY_ID", ""),
			KeySecret: v.str("API_RAZORPAY_KEY_SECRET", ""),
			BaseURL:   v.str("API_RAZORPAY_BASE_URL", defaultRazorpayBaseURL),
			Timeout:   v.duration("API_RAZORPAY_TIMEOUT", defaultRazorpayTimeout),
		},
		Mail: MailConfig{
			Host:     v.str("API_MAIL_HOST", ""),
			Port:     v.integer("API_MAIL_PORT", defaultMailPort),
			Username: v.str("API_MAIL_USERNAME", ""),
			Password: v.str("API_MAIL_PASSWORD", ""),
			From:     v.str("API_MAIL_FROM", ""),
			Timeout:  v.duration("API_MAIL_TIMEOUT", defaultMailTimeout),
		},
		Storage: StorageConfig{
			InvoiceBucket: v.str("API_STORAGE_INVOICE_BUCKET", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:  v.str("API_PUBSUB_PROJECT_ID", ""),
			OrderTopic: v.str("API_PUBSUB_ORDER_TOPIC", defaultOrderTopic),
		},
		Orders: OrdersConfig{
			DuplicateWindow: v.duration("API_ORDERS_DUPLICATE_WINDOW", defaultDuplicateWindow),
		},
		Notifications: NotificationConfig{
			QueueSize: v.integer("API_NOTIFICATIONS_QUEUE_SIZE", defaultNotificationQueue),
			Workers:   v.integer("API_NOTIFICATIONS_WORKERS", defaultNotificationWorkers),
		},
		Features: FeatureFlags{
			DebugMode: v.boolean("API_FEATURE_DEBUG_MODE", false),
		},
		Idempotency: IdempotencyConfig{
			Header: v.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:    v.duration("API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		},
		RateLimits: RateLimitConfig{
			VerifyPerMinute: v.integer("API_RATELIMIT_VERIFY_PER_MINUTE", defaultVerifyPerMinute),
			ReviewPerMinute: v.integer("API_RATELIMIT_REVIEW_PER_MINUTE", defaultReviewPerMinute),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Mail.From == "" {
		cfg.Mail.From = cfg.Mail.Username
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Auth.JWTSecret", &cfg.Auth.JWTSecret},
		{"Razorpay.KeySecret", &cfg.Razorpay.KeySecret},
		{"Mail.Password", &cfg.Mail.Password},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	ref := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Server.RequestTimeout <= 0 {
		missing = append(missing, "Server.RequestTimeout")
	}
	// Debug mode runs without a database, so project settings become optional.
	if !cfg.Features.DebugMode && cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	switch cfg.Auth.Provider {
	case AuthProviderJWT:
		if !cfg.Features.DebugMode && strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
			missing = append(missing, "Auth.JWTSecret")
		}
	case AuthProviderFirebase:
		if cfg.Firebase.ProjectID == "" && cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firebase.ProjectID")
		}
	default:
		missing = append(missing, "Auth.Provider")
	}
	if cfg.Mail.Enabled() && (cfg.Mail.Port <= 0 || cfg.Mail.From == "") {
		missing = append(missing, "Mail.From")
	}
	if cfg.Orders.DuplicateWindow <= 0 {
		missing = append(missing, "Orders.DuplicateWindow")
	}
	if cfg.Notifications.QueueSize <= 0 {
		missing = append(missing, "Notifications.QueueSize")
	}
	if cfg.Notifications.Workers <= 0 {
		missing = append(missing, "Notifications.Workers")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	seen := make(map[string]struct{})
	var names []string
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if resolved[trimmed] == "" {
			names = append(names, trimmed)
		}
	}
	if len(names) == 0 {
		return nil
	}
	return &MissingSecretsError{names: names}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		return "secret://" + rest
	}
	return trimmed
}

func normalizeBasePath(path string) string {
	trimmed := strings.Trim(strings.TrimSpace(path), "/")
	if trimmed == "" {
		return ""
	}
	return "/" + trimmed
}

func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return values, nil
}

type values map[string]string

func (v values) str(key, fallback string) string {
	if value := strings.TrimSpace(v[key]); value != "" {
		return value
	}
	return fallback
}

func (v values) duration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(v[key])); err == nil {
		return d
	}
	return fallback
}

func (v values) integer(key string, fallback int) int {
	if parsed, err := strconv.Atoi(strings.TrimSpace(v[key])); err == nil {
		return parsed
	}
	return fallback
}

func (v values) boolean(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(v[key])) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return fallback
}
