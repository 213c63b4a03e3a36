package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/platform/httpx"
	"github.com/storefront/api/internal/platform/requestctx"
	"github.com/storefront/api/internal/repositories"
)

const defaultVerifyTimeout = 5 * time.Second

var (
	// ErrTokenExpired signals that the bearer token has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals that the bearer token failed verification.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// TokenVerifier turns a bearer token into an account id.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

// AccountLoader loads the account behind a verified token.
type AccountLoader interface {
	FindByID(ctx context.Context, accountID string) (domain.Account, error)
}

// Authenticator wires token verification and account lookup into HTTP middleware.
type Authenticator struct {
	verifier TokenVerifier
	accounts AccountLoader
	timeout  time.Duration
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithVerificationTimeout sets the timeout used when verifying tokens and loading accounts.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator constructs an Authenticator for middleware composition.
func NewAuthenticator(verifier TokenVerifier, accounts AccountLoader, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier: verifier,
		accounts: accounts,
		timeout:  defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// RequireUser verifies the Authorization bearer token and loads the account.
func (a *Authenticator) RequireUser() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(r.Context(), w, http.StatusUnauthorized, "unauthenticated", "Not authorized, token missing")
				return
			}
			if a == nil || a.verifier == nil || a.accounts == nil {
				respondAuthError(r.Context(), w, http.StatusUnauthorized, "unauthenticated", "Not authorized")
				return
			}

			ctx, cancel := a.contextWithTimeout(r.Context())
			defer cancel()

			userID, err := a.verifier.VerifyToken(ctx, tokenStr)
			if err != nil {
				code := "invalid_token"
				if errors.Is(err, ErrTokenExpired) {
					code = "token_expired"
				}
				respondAuthError(r.Context(), w, http.StatusUnauthorized, code, "Not authorized")
				return
			}

			account, err := a.accounts.FindByID(ctx, userID)
			if err != nil {
				var repoErr repositories.RepositoryError
				switch {
				case errors.As(err, &repoErr) && repoErr.IsNotFound():
					respondAuthError(r.Context(), w, http.StatusUnauthorized, "user_not_found", "User not found")
				case errors.As(err, &repoErr) && repoErr.IsUnavailable():
					respondAuthError(r.Context(), w, http.StatusServiceUnavailable, "unavailable", "Account store unavailable")
				default:
					respondAuthError(r.Context(), w, http.StatusUnauthorized, "unauthenticated", "Not authorized")
				}
				return
			}
			if account.ID == "" {
				account.ID = userID
			}

			identity := &Identity{UserID: userID, Account: account}
			ctx = WithIdentity(r.Context(), identity)
			requestctx.SetUserID(ctx, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects identities whose account role is not admin. It must run after RequireUser.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				respondAuthError(r.Context(), w, http.StatusUnauthorized, "unauthenticated", "Not authorized")
				return
			}
			if !identity.IsAdmin() {
				respondAuthError(r.Context(), w, http.StatusForbidden, "forbidden", "Admin access only")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (a *Authenticator) contextWithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

func claimAsString(claims map[string]interface{}, key string) string {
	raw, ok := claims[key]
	if !ok {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	default:
		return ""
	}
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}

	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}

func respondAuthError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}
