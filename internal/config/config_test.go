package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadUsesDefaultsAndYAMLOverrides(t *testing.T) {
	clearConfigEnv(t)

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	yaml := `
http:
  addr: ":9090"
processor:
  base_url: http://processor.local
  timeout: 3s
payments:
  default_platform_percent: 12.5
  claim_lease_ttl: 90s
redis:
  status_ttl: 45s
reconcile:
  stuck_after: 20m
  batch_limit: 25
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("unexpected http addr: %s", cfg.HTTP.Addr)
	}
	if cfg.Processor.BaseURL != "http://processor.local" {
		t.Fatalf("unexpected processor base url: %s", cfg.Processor.BaseURL)
	}
	if cfg.Processor.Timeout != 3*time.Second {
		t.Fatalf("unexpected processor timeout: %s", cfg.Processor.Timeout)
	}
	if cfg.Payments.DefaultPlatformPercent != 12.5 {
		t.Fatalf("unexpected platform percent: %v", cfg.Payments.DefaultPlatformPercent)
	}
	if cfg.Payments.ClaimLeaseTTL != 90*time.Second {
		t.Fatalf("unexpected claim lease ttl: %s", cfg.Payments.ClaimLeaseTTL)
	}
	if cfg.Redis.StatusTTL != 45*time.Second {
		t.Fatalf("unexpected redis status ttl: %s", cfg.Redis.StatusTTL)
	}
	if cfg.Reconcile.StuckAfter != 20*time.Minute {
		t.Fatalf("unexpected reconcile stuck_after: %s", cfg.Reconcile.StuckAfter)
	}
	if cfg.Reconcile.BatchLimit != 25 {
		t.Fatalf("unexpected reconcile batch limit: %d", cfg.Reconcile.BatchLimit)
	}

	if cfg.Payments.ChargeTimeout != 10*time.Second {
		t.Fatalf("charge timeout default should stay 10s, got %s", cfg.Payments.ChargeTimeout)
	}
	if cfg.Postgres.MigrationsDir != "db/migrations" {
		t.Fatalf("unexpected migrations dir default: %s", cfg.Postgres.MigrationsDir)
	}
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load config with missing file: %v", err)
	}

	if cfg.Payments.DefaultPlatformPercent != 10 {
		t.Fatalf("unexpected default platform percent: %v", cfg.Payments.DefaultPlatformPercent)
	}
	if cfg.Payments.ClaimLeaseTTL != 2*time.Minute {
		t.Fatalf("unexpected default claim lease ttl: %s", cfg.Payments.ClaimLeaseTTL)
	}
	if cfg.Reconcile.Interval != 5*time.Minute {
		t.Fatalf("unexpected default reconcile interval: %s", cfg.Reconcile.Interval)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("unexpected default http addr: %s", cfg.HTTP.Addr)
	}
	if cfg.S3.Bucket != "fieldview-reports" {
		t.Fatalf("unexpected default s3 bucket: %s", cfg.S3.Bucket)
	}
}

func TestLoadEnvOverridesWinOverYAML(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("PROCESSOR_BASE_URL", "http://env.processor")
	t.Setenv("PAYMENTS_CLAIM_LEASE_TTL", "5m")
	t.Setenv("VAULT_KEY", "aa")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	yaml := `
processor:
  base_url: http://yaml.processor
payments:
  claim_lease_ttl: 30s
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Processor.BaseURL != "http://env.processor" {
		t.Fatalf("env override lost: %s", cfg.Processor.BaseURL)
	}
	if cfg.Payments.ClaimLeaseTTL != 5*time.Minute {
		t.Fatalf("env override lost: %s", cfg.Payments.ClaimLeaseTTL)
	}
	if cfg.Vault.Key != "aa" {
		t.Fatalf("vault key override lost: %s", cfg.Vault.Key)
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("PAYMENTS_CHARGE_TIMEOUT", "not-a-duration")

	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on malformed duration env")
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV",
		"HTTP_ADDR",
		"HTTP_READ_TIMEOUT",
		"HTTP_WRITE_TIMEOUT",
		"HTTP_IDLE_TIMEOUT",
		"LOG_LEVEL",
		"POSTGRES_DSN",
		"POSTGRES_MIGRATIONS_DIR",
		"POSTGRES_MIGRATE",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"REDIS_STATUS_TTL",
		"S3_ENDPOINT",
		"S3_ACCESS_KEY",
		"S3_SECRET_KEY",
		"S3_BUCKET",
		"S3_REGION",
		"S3_USE_SSL",
		"JWT_SECRET",
		"JWT_ACCESS_TTL",
		"PROCESSOR_BASE_URL",
		"PROCESSOR_TIMEOUT",
		"PAYMENTS_DEFAULT_PLATFORM_PERCENT",
		"PAYMENTS_CLAIM_LEASE_TTL",
		"PAYMENTS_CHARGE_TIMEOUT",
		"VAULT_KEY",
		"RECONCILE_INTERVAL",
		"RECONCILE_STUCK_AFTER",
		"RECONCILE_BATCH_LIMIT",
	} {
		t.Setenv(key, "")
	}
}
