package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/vietcart/storefront/internal/domain"
)

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	if s.err != nil {
		return domain.SystemHealthReport{}, s.err
	}
	return s.report, nil
}

func TestSystemServiceRequiresRepository(t *testing.T) {
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatal("expected error without a health repository")
	}
}

func TestSystemServiceHealthReportFillsGaps(t *testing.T) {
	repo := &stubHealthRepository{report: domain.SystemHealthReport{
		Checks: map[string]domain.SystemHealthCheck{
			"mysql":      {Status: domain.HealthStatusOK},
			"localstore": {Status: domain.HealthStatusDegraded},
		},
	}}
	fixed := time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)
	service, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            func() time.Time { return fixed },
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := service.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport returned error: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Errorf("expected derived degraded status, got %s", report.Status)
	}
	if !report.GeneratedAt.Equal(fixed) {
		t.Errorf("expected the clock timestamp, got %s", report.GeneratedAt)
	}
}

func TestSystemServiceHealthReportErrorWins(t *testing.T) {
	repo := &stubHealthRepository{report: domain.SystemHealthReport{
		Checks: map[string]domain.SystemHealthCheck{
			"mysql":      {Status: domain.HealthStatusError},
			"localstore": {Status: domain.HealthStatusOK},
		},
	}}
	service, err := NewSystemService(SystemServiceDeps{HealthRepository: repo})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := service.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport returned error: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Errorf("expected error status, got %s", report.Status)
	}
}

func TestSystemServiceHealthReportPropagatesFailure(t *testing.T) {
	repo := &stubHealthRepository{err: errors.New("collect failed")}
	service, err := NewSystemService(SystemServiceDeps{HealthRepository: repo})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	if _, err := service.HealthReport(context.Background()); err == nil {
		t.Fatal("expected the collection failure to propagate")
	}
}
