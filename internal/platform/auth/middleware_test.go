package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	domain "github.com/storefront/api/internal/domain"
)

type stubTokenVerifier struct {
	userID   string
	err      error
	received string
}

func (s *stubTokenVerifier) VerifyToken(_ context.Context, token string) (string, error) {
	s.received = token
	if s.err != nil {
		return "", s.err
	}
	return s.userID, nil
}

type stubAccountLoader struct {
	account domain.Account
	err     error
	calls   int
	lastID  string
}

func (s *stubAccountLoader) FindByID(_ context.Context, accountID string) (domain.Account, error) {
	s.calls++
	s.lastID = accountID
	if s.err != nil {
		return domain.Account{}, s.err
	}
	return s.account, nil
}

type stubRepoError struct {
	notFound    bool
	unavailable bool
}

func (e stubRepoError) Error() string       { return "repo" }
func (e stubRepoError) IsNotFound() bool    { return e.notFound }
func (e stubRepoError) IsConflict() bool    { return false }
func (e stubRepoError) IsUnavailable() bool { return e.unavailable }

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	return body
}

func TestRequireUserSuccess(t *testing.T) {
	verifier := &stubTokenVerifier{userID: "u1"}
	accounts := &stubAccountLoader{account: domain.Account{Name: "Asha", Email: " asha@example.com ", Role: "user"}}
	authn := NewAuthenticator(verifier, accounts)

	var captured *Identity
	handler := authn.RequireUser()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		captured = identity
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer token-123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if verifier.received != "token-123" {
		t.Fatalf("expected token forwarded, got %q", verifier.received)
	}
	if accounts.lastID != "u1" {
		t.Fatalf("expected account lookup for u1, got %q", accounts.lastID)
	}
	if captured == nil || captured.UserID != "u1" || captured.Account.ID != "u1" {
		t.Fatalf("unexpected identity %+v", captured)
	}
	if captured.Email() != "asha@example.com" || captured.IsAdmin() {
		t.Fatalf("unexpected identity helpers %+v", captured)
	}
}

func TestRequireUserFailures(t *testing.T) {
	cases := []struct {
		name     string
		header   string
		verifier *stubTokenVerifier
		accounts *stubAccountLoader
		status   int
		code     string
		message  string
	}{
		{
			name:     "missing header",
			verifier: &stubTokenVerifier{userID: "u1"},
			accounts: &stubAccountLoader{},
			status:   http.StatusUnauthorized,
			code:     "unauthenticated",
			message:  "Not authorized, token missing",
		},
		{
			name:     "wrong scheme",
			header:   "Basic abc",
			verifier: &stubTokenVerifier{userID: "u1"},
			accounts: &stubAccountLoader{},
			status:   http.StatusUnauthorized,
			code:     "unauthenticated",
			message:  "Not authorized, token missing",
		},
		{
			name:     "invalid token",
			header:   "Bearer bad",
			verifier: &stubTokenVerifier{err: fmt.Errorf("%w: signature", ErrTokenInvalid)},
			accounts: &stubAccountLoader{},
			status:   http.StatusUnauthorized,
			code:     "invalid_token",
			message:  "Not authorized",
		},
		{
			name:     "expired token",
			header:   "Bearer old",
			verifier: &stubTokenVerifier{err: ErrTokenExpired},
			accounts: &stubAccountLoader{},
			status:   http.StatusUnauthorized,
			code:     "token_expired",
			message:  "Not authorized",
		},
		{
			name:     "unknown account",
			header:   "Bearer ok",
			verifier: &stubTokenVerifier{userID: "ghost"},
			accounts: &stubAccountLoader{err: stubRepoError{notFound: true}},
			status:   http.StatusUnauthorized,
			code:     "user_not_found",
			message:  "User not found",
		},
		{
			name:     "store unavailable",
			header:   "Bearer ok",
			verifier: &stubTokenVerifier{userID: "u1"},
			accounts: &stubAccountLoader{err: stubRepoError{unavailable: true}},
			status:   http.StatusServiceUnavailable,
			code:     "unavailable",
			message:  "Account store unavailable",
		},
		{
			name:     "unexpected lookup error",
			header:   "Bearer ok",
			verifier: &stubTokenVerifier{userID: "u1"},
			accounts: &stubAccountLoader{err: errors.New("boom")},
			status:   http.StatusUnauthorized,
			code:     "unauthenticated",
			message:  "Not authorized",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			authn := NewAuthenticator(tc.verifier, tc.accounts)
			handler := authn.RequireUser()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatalf("handler should not be invoked")
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			body := decodeError(t, rr)
			if body["error"] != tc.code || body["message"] != tc.message || body["success"] != false {
				t.Fatalf("unexpected body %v", body)
			}
		})
	}
}

func TestRequireUserWithoutDependencies(t *testing.T) {
	authn := NewAuthenticator(nil, nil)
	handler := authn.RequireUser()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not be invoked")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer token")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := RequireAdmin()(next)

	cases := []struct {
		name     string
		identity *Identity
		status   int
		message  string
	}{
		{"no identity", nil, http.StatusUnauthorized, "Not authorized"},
		{"customer", &Identity{UserID: "u1", Account: domain.Account{Role: "user"}}, http.StatusForbidden, "Admin access only"},
		{"admin", &Identity{UserID: "a1", Account: domain.Account{Role: " Admin "}}, http.StatusNoContent, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tc.identity != nil {
				req = req.WithContext(WithIdentity(req.Context(), tc.identity))
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			if tc.message != "" {
				if body := decodeError(t, rr); body["message"] != tc.message {
					t.Fatalf("unexpected body %v", body)
				}
			}
		})
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := map[string]struct {
		token string
		ok    bool
	}{
		"Bearer abc":     {"abc", true},
		"  bearer  xyz ": {"xyz", true},
		"Bearer":         {"", false},
		"Bearer   ":      {"", false},
		"Token abc":      {"", false},
		"":               {"", false},
	}
	for header, want := range cases {
		token, ok := extractBearerToken(header)
		if token != want.token || ok != want.ok {
			t.Fatalf("header %q: expected (%q,%v), got (%q,%v)", header, want.token, want.ok, token, ok)
		}
	}
}
