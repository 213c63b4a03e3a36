package domain

import "time"

// HealthStatus summarises a dependency probe result.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "ok"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusError    HealthStatus = "error"
)

// DependencyHealth is the outcome of a single readiness probe.
type DependencyHealth struct {
	Status    HealthStatus
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// HealthReport aggregates readiness probes.
type HealthReport struct {
	Status      HealthStatus
	Checks      map[string]DependencyHealth
	GeneratedAt time.Time
}
