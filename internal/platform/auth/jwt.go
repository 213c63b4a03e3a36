package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const defaultUserIDClaim = "id"

// JWTVerifier validates HS256 tokens signed with a shared secret and reads the
// account id from a single claim.
type JWTVerifier struct {
	secret []byte
	claim  string
	now    func() time.Time
}

// JWTOption customises JWTVerifier instances.
type JWTOption func(*JWTVerifier)

// WithUserIDClaim overrides the claim holding the account id.
func WithUserIDClaim(claim string) JWTOption {
	return func(v *JWTVerifier) {
		if claim = strings.TrimSpace(claim); claim != "" {
			v.claim = claim
		}
	}
}

// WithJWTClock overrides the clock used for exp/nbf checks.
func WithJWTClock(now func() time.Time) JWTOption {
	return func(v *JWTVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewJWTVerifier constructs a verifier for tokens signed with secret.
func NewJWTVerifier(secret string, opts ...JWTOption) (*JWTVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	v := &JWTVerifier{
		secret: []byte(secret),
		claim:  defaultUserIDClaim,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// VerifyToken returns the account id embedded in token. Expiry and
// not-before are checked against the verifier clock.
func (v *JWTVerifier) VerifyToken(_ context.Context, token string) (string, error) {
	if v == nil {
		return "", errors.New("auth: jwt verifier not initialised")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	now := v.now().Unix()
	if !claims.VerifyExpiresAt(now, false) {
		return "", ErrTokenExpired
	}
	if !claims.VerifyNotBefore(now, false) {
		return "", fmt.Errorf("%w: token not yet valid", ErrTokenInvalid)
	}

	userID := claimAsString(claims, v.claim)
	if userID == "" {
		return "", fmt.Errorf("%w: claim %q missing", ErrTokenInvalid, v.claim)
	}
	return userID, nil
}
