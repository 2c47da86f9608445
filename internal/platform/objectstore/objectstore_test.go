package objectstore

import (
	"context"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Enabled:       true,
		Endpoint:      "localhost:9000",
		AccessKey:     "a",
		SecretKey:     "b",
		Region:        "us-east-1",
		BucketExports: "discover-exports",
		PresignTTL:    time.Minute,
	}
}

func TestConfigValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	invalid := validConfig()
	invalid.Endpoint = "http://localhost:9000"
	if err := invalid.Validate(); err == nil {
		t.Fatalf("Validate() expected error for scheme in endpoint")
	}

	invalid = validConfig()
	invalid.BucketExports = " "
	if err := invalid.Validate(); err == nil {
		t.Fatalf("Validate() expected error for blank bucket")
	}
}

func TestConfigFromEnv_DisabledSkipsValidation(t *testing.T) {
	t.Setenv("DISCOVER_EXPORTS_ENABLED", "false")
	t.Setenv("DISCOVER_MINIO_ENDPOINT", "http://bad")
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if cfg.Enabled {
		t.Fatalf("Enabled=true, want false")
	}
}

func TestPresignGet_Offline(t *testing.T) {
	client, err := NewMinIOClient(validConfig())
	if err != nil {
		t.Fatalf("NewMinIOClient() err=%v", err)
	}
	store, err := NewMinioStore(client, validConfig())
	if err != nil {
		t.Fatalf("NewMinioStore() err=%v", err)
	}
	url, err := store.PresignGet(context.Background(), "key-transactions/acme/x.csv", time.Minute)
	if err != nil {
		t.Fatalf("PresignGet() err=%v", err)
	}
	if !strings.Contains(url, "discover-exports/key-transactions/acme/x.csv") {
		t.Fatalf("PresignGet()=%q, want bucket and key in path", url)
	}
	if !strings.Contains(url, "X-Amz-Signature=") {
		t.Fatalf("PresignGet()=%q, want signature", url)
	}
	if !strings.Contains(url, "response-content-disposition=attachment") {
		t.Fatalf("PresignGet()=%q, want forced download", url)
	}
}

func TestRetentionRule(t *testing.T) {
	cfg := retentionRule(7)
	if len(cfg.Rules) != 1 {
		t.Fatalf("rules=%d, want 1", len(cfg.Rules))
	}
	rule := cfg.Rules[0]
	if rule.Status != "Enabled" || rule.RuleFilter.Prefix != ExportPrefix || int(rule.Expiration.Days) != 7 {
		t.Fatalf("rule=%+v", rule)
	}
}

func TestAttachment(t *testing.T) {
	if got := attachment("key-transactions/acme/0b6c.csv"); got != `attachment; filename="0b6c.csv"` {
		t.Fatalf("attachment()=%q", got)
	}
}

func TestConfigFromEnv_RetentionDays(t *testing.T) {
	t.Setenv("DISCOVER_EXPORTS_ENABLED", "true")
	t.Setenv("DISCOVER_EXPORT_RETENTION_DAYS", "-1")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("ConfigFromEnv() expected error for negative retention")
	}
	t.Setenv("DISCOVER_EXPORT_RETENTION_DAYS", "30")
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if cfg.RetentionDays != 30 || cfg.PresignTTL != 15*time.Minute {
		t.Fatalf("cfg=%+v", cfg)
	}
}
