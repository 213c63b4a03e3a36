package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"API_FIREBASE_PROJECT_ID": "store-dev",
		"API_AUTH_JWT_SECRET":     "dev-secret",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.BasePath != "/api" {
		t.Errorf("expected base path /api, got %q", cfg.Server.BasePath)
	}
	if cfg.Server.RequestTimeout != 60*time.Second {
		t.Errorf("unexpected request timeout: %s", cfg.Server.RequestTimeout)
	}
	if cfg.Server.Environment != "local" || cfg.Server.LogLevel != "info" {
		t.Errorf("unexpected environment/log level: %s/%s", cfg.Server.Environment, cfg.Server.LogLevel)
	}
	if cfg.Firestore.ProjectID != "store-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "store-dev" {
		t.Errorf("expected pubsub project to default to firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.Auth.Provider != AuthProviderJWT {
		t.Errorf("expected jwt provider, got %s", cfg.Auth.Provider)
	}
	if cfg.Orders.DuplicateWindow != 30*time.Second {
		t.Errorf("unexpected duplicate window: %s", cfg.Orders.DuplicateWindow)
	}
	if cfg.Razorpay.Enabled() {
		t.Errorf("expected razorpay disabled without credentials")
	}
	if cfg.Mail.Enabled() {
		t.Errorf("expected mail disabled without host")
	}
	if cfg.Features.DebugMode {
		t.Errorf("expected debug mode off by default")
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.RateLimits.VerifyPerMinute != defaultVerifyPerMinute || cfg.RateLimits.ReviewPerMinute != defaultReviewPerMinute {
		t.Errorf("unexpected rate limits: %+v", cfg.RateLimits)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                 "9090",
		"API_SERVER_BASE_PATH":            "v2/",
		"API_FIRESTORE_PROJECT_ID":        "store-prod",
		"API_AUTH_JWT_SECRET":             "sm://jwt-secret",
		"API_RAZORPAY_KEY_ID":             "rzp_live_1",
		"API_RAZORPAY_KEY_SECRET":         "secret://razorpay/secret",
		"API_MAIL_HOST":                   "smtp.example.com",
		"API_MAIL_PORT":                   "465",
		"API_MAIL_USERNAME":               "orders@example.com",
		"API_MAIL_PASSWORD":               "sm://smtp",
		"API_STORAGE_INVOICE_BUCKET":      "invoices-prod",
		"API_PUBSUB_ORDER_TOPIC":          "orders",
		"API_ORDERS_DUPLICATE_WINDOW":     "45s",
		"API_NOTIFICATIONS_WORKERS":       "4",
		"API_RATELIMIT_REVIEW_PER_MINUTE": "0",
	}
	secrets := map[string]string{
		"secret://jwt-secret":      "jwt-value",
		"secret://razorpay/secret": "rzp-secret",
		"secret://smtp":            "smtp-pass",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("unknown secret")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.BasePath != "/v2" {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Auth.JWTSecret != "jwt-value" {
		t.Errorf("expected resolved jwt secret, got %q", cfg.Auth.JWTSecret)
	}
	if !cfg.Razorpay.Enabled() || cfg.Razorpay.KeySecret != "rzp-secret" {
		t.Errorf("unexpected razorpay config: %+v", cfg.Razorpay)
	}
	if cfg.Mail.Password != "smtp-pass" || cfg.Mail.Port != 465 {
		t.Errorf("unexpected mail config: %+v", cfg.Mail)
	}
	if cfg.Mail.From != "orders@example.com" {
		t.Errorf("expected from to default to username, got %q", cfg.Mail.From)
	}
	if cfg.Storage.InvoiceBucket != "invoices-prod" || cfg.PubSub.OrderTopic != "orders" {
		t.Errorf("unexpected storage/pubsub config: %+v %+v", cfg.Storage, cfg.PubSub)
	}
	if cfg.Orders.DuplicateWindow != 45*time.Second {
		t.Errorf("unexpected duplicate window %s", cfg.Orders.DuplicateWindow)
	}
	if cfg.Notifications.Workers != 4 {
		t.Errorf("unexpected worker count %d", cfg.Notifications.Workers)
	}
	if cfg.RateLimits.ReviewPerMinute != 0 {
		t.Errorf("expected review limit disabled, got %d", cfg.RateLimits.ReviewPerMinute)
	}
}

func TestLoadSecretResolutionFailure(t *testing.T) {
	env := baseEnv()
	env["API_RAZORPAY_KEY_SECRET"] = "sm://missing"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Fatalf("expected normalised ref, got %q", secretErr.Ref)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{"API_AUTH_PROVIDER": "saml"}), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := map[string]bool{}
	for _, field := range validation.Fields() {
		fields[field] = true
	}
	if !fields["Firestore.ProjectID"] || !fields["Auth.Provider"] {
		t.Fatalf("unexpected fields %v", validation.Fields())
	}
}

func TestLoadDebugModeRelaxesDatabaseRequirements(t *testing.T) {
	env := map[string]string{"API_FEATURE_DEBUG_MODE": "true"}
	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.Features.DebugMode {
		t.Fatalf("expected debug mode enabled")
	}
}

func TestLoadRequiredSecretsMissing(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(baseEnv()),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Razorpay.KeySecret"),
	)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %v", err)
	}
	if names := missing.Names(); len(names) != 1 || names[0] != "Razorpay.KeySecret" {
		t.Fatalf("unexpected names %v", names)
	}
	if redacted := missing.RedactedNames(); len(redacted) != 1 || redacted[0] == "Razorpay.KeySecret" {
		t.Fatalf("expected redacted names, got %v", redacted)
	}
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "API_FIREBASE_PROJECT_ID=from-file\nexport API_AUTH_JWT_SECRET=\"quoted\"\nAPI_SERVER_PORT=7000\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithEnvFile(path),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{"API_SERVER_PORT": "7100"}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Firebase.ProjectID != "from-file" {
		t.Errorf("expected project from file, got %s", cfg.Firebase.ProjectID)
	}
	if cfg.Auth.JWTSecret != "quoted" {
		t.Errorf("expected unquoted secret, got %q", cfg.Auth.JWTSecret)
	}
	if cfg.Server.Port != "7100" {
		t.Errorf("expected env map to win over file, got %s", cfg.Server.Port)
	}
}

func TestEnvironmentValuesMissingFileIgnored(t *testing.T) {
	values, err := EnvironmentValues(WithEnvFile(filepath.Join(t.TempDir(), "absent.env")), WithoutSystemEnv(), WithEnvMap(map[string]string{"A": "1"}))
	if err != nil {
		t.Fatalf("EnvironmentValues: %v", err)
	}
	if values["A"] != "1" {
		t.Fatalf("expected explicit map value, got %v", values)
	}
}
