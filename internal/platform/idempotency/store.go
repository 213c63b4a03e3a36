package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long an order-creation response stays replayable.
const DefaultTTL = 24 * time.Hour

// Status is the stored state of a key.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// ReservationState tells the middleware what to do with a request after Reserve.
type ReservationState int

const (
	// ReservationStateNew: the handler runs and its response is recorded.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted: the stored response is replayed.
	ReservationStateCompleted
	// ReservationStatePending: a concurrent request holds the key.
	ReservationStatePending
)

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")

// Reservation is the outcome of Reserve.
type Reservation struct {
	State  ReservationState
	Record Record
}

// Record is one stored key with the response it produced, if any.
type Record struct {
	Key             string
	Fingerprint     string
	Status          Status
	ResponseStatus  int
	ResponseHeaders map[string][]string
	ResponseBody    []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       time.Time
}

// Response is what the middleware captured from the order handler.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists reservations. Implementations treat expired records as absent.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
}

// Expired reports whether the record no longer guards its key at now.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Headers returns a copy of the stored response headers.
func (r Record) Headers() http.Header {
	header := make(http.Header, len(r.ResponseHeaders))
	for name, values := range r.ResponseHeaders {
		header[name] = append([]string(nil), values...)
	}
	return header
}

// classify decides how a live record answers a new attempt with fingerprint.
func (r Record) classify(fingerprint string) (Reservation, error) {
	if r.Fingerprint != fingerprint {
		return Reservation{}, ErrFingerprintMismatch
	}
	if r.Status == StatusCompleted {
		return Reservation{State: ReservationStateCompleted, Record: r}, nil
	}
	return Reservation{State: ReservationStatePending, Record: r}, nil
}

func pendingRecord(key, fingerprint string, now time.Time, ttl time.Duration) Record {
	return Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(normalizeTTL(ttl)),
	}
}

// complete stores resp on the record and extends its lifetime from now.
func (r Record) complete(resp Response, now time.Time, ttl time.Duration) Record {
	r.Status = StatusCompleted
	r.ResponseStatus = resp.Status
	r.ResponseHeaders = replayableHeaders(resp.Headers)
	r.ResponseBody = nil
	if len(resp.Body) > 0 {
		r.ResponseBody = append([]byte(nil), resp.Body...)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	r.ExpiresAt = now.Add(normalizeTTL(ttl))
	return r
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

// documentID maps a scoped key to a fixed-length id safe for Firestore document names.
func documentID(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Order responses are JSON envelopes; request-scoped headers such as X-Request-Id
// describe the first attempt and are not replayed.
var replayHeaderAllowList = []string{"Content-Type", "Cache-Control", "Content-Language"}

func replayableHeaders(header http.Header) map[string][]string {
	var kept map[string][]string
	for _, name := range replayHeaderAllowList {
		values := header.Values(name)
		if len(values) == 0 {
			continue
		}
		if kept == nil {
			kept = make(map[string][]string, len(replayHeaderAllowList))
		}
		kept[name] = append([]string(nil), values...)
	}
	return kept
}
