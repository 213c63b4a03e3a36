package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/storefront/api/internal/domain"
)

type stubHealthRepository struct {
	collectFn func(ctx context.Context) (domain.HealthReport, error)
}

func (s stubHealthRepository) Collect(ctx context.Context) (domain.HealthReport, error) {
	return s.collectFn(ctx)
}

func TestSystemServiceHealthReport(t *testing.T) {
	started := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	now := started.Add(90 * time.Minute)
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: stubHealthRepository{collectFn: func(context.Context) (domain.HealthReport, error) {
			return domain.HealthReport{Checks: map[string]domain.DependencyHealth{
				"firestore": {Status: domain.HealthStatusOK},
				"gateway":   {Status: domain.HealthStatusDegraded},
			}}, nil
		}},
		Clock: func() time.Time { return now },
		Build: BuildInfo{Version: "1.2.0", CommitSHA: "abc123", StartedAt: started},
	})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Status != string(domain.HealthStatusDegraded) {
		t.Fatalf("expected degraded, got %q", report.Status)
	}
	if report.Uptime != 90*time.Minute || report.Version != "1.2.0" || report.Environment != "local" {
		t.Fatalf("unexpected report %+v", report)
	}
	if !report.GeneratedAt.Equal(now) {
		t.Fatalf("expected generated at %v, got %v", now, report.GeneratedAt)
	}
}

func TestSystemServicePropagatesCollectError(t *testing.T) {
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: stubHealthRepository{collectFn: func(context.Context) (domain.HealthReport, error) {
			return domain.HealthReport{}, errors.New("boom")
		}},
	})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}
	if _, err := svc.HealthReport(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatalf("expected error for missing repository")
	}
}
