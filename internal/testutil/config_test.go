package testutil

import (
	"testing"

	"github.com/target/mmk-reports-api/internal/domain/model"
)

const (
	testDBDefaultUser     = "reports"
	testDBDefaultPassword = "reports"
	testDBDefaultName     = "reports"
)

func TestDefaultTestDBConfig(t *testing.T) {
	t.Run("defaults to local test database port 55432", func(t *testing.T) {
		for _, key := range []string{"TEST_DB_HOST", "TEST_DB_PORT", "TEST_DB_USER", "TEST_DB_PASSWORD", "TEST_DB_NAME"} {
			t.Setenv(key, "")
		}

		cfg := DefaultTestDBConfig()
		if cfg.Host != "localhost" {
			t.Errorf("expected Host=localhost, got %s", cfg.Host)
		}
		if cfg.Port != "55432" {
			t.Errorf("expected Port=55432 (test DB), got %s", cfg.Port)
		}
		if cfg.User != testDBDefaultUser || cfg.Password != testDBDefaultPassword || cfg.DBName != testDBDefaultName {
			t.Errorf("unexpected credentials: %+v", cfg)
		}
	})

	t.Run("respects TEST_DB_PORT environment variable", func(t *testing.T) {
		t.Setenv("TEST_DB_HOST", "postgres")
		t.Setenv("TEST_DB_PORT", "5432")

		cfg := DefaultTestDBConfig()
		if cfg.Host != "postgres" {
			t.Errorf("expected Host=postgres, got %s", cfg.Host)
		}
		if cfg.Port != "5432" {
			t.Errorf("expected Port=5432 (CI DB), got %s", cfg.Port)
		}
	})
}

func TestTestDBConfig_DSN(t *testing.T) {
	t.Setenv("DB_SSL_MODE", "")
	cfg := TestDBConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "reports"}
	want := "postgres://u:p@db:5432/reports?sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %s, want %s", got, want)
	}
}

func TestNewReportJob_IsConsistent(t *testing.T) {
	for _, status := range []model.ReportStatus{
		model.ReportStatusPending,
		model.ReportStatusProcessing,
		model.ReportStatusCompleted,
		model.ReportStatusFailed,
	} {
		if err := NewReportJob(1, status).Consistent(); err != nil {
			t.Errorf("NewReportJob(%s) inconsistent: %v", status, err)
		}
	}
}

func TestReportRequestBuilder(t *testing.T) {
	b := NewReportRequest().WithName("Inventory").WithType("inventory").WithParam("region", "eu")
	req := b.Build()
	if req.Name != "Inventory" || req.Type != "inventory" || req.Parameters["region"] != "eu" {
		t.Errorf("unexpected request: %+v", req)
	}

	req.Parameters["region"] = "us"
	if b.Build().Parameters["region"] != "eu" {
		t.Errorf("Build should return independent copies")
	}
}
