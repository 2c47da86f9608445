package objectstore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tracewell/discover-go/internal/platform/env"
)

type Config struct {
	Enabled       bool
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Region        string
	UseSSL        bool
	BucketExports string
	PresignTTL    time.Duration
	// RetentionDays expires exports server-side; zero keeps them forever.
	RetentionDays int
}

// ConfigFromEnv validates only when exports are enabled.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Endpoint:      env.String("DISCOVER_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:     env.String("DISCOVER_MINIO_ACCESS_KEY", "discover"),
		Region:        env.String("DISCOVER_MINIO_REGION", "us-east-1"),
		BucketExports: env.String("DISCOVER_EXPORT_BUCKET", "discover-exports"),
	}

	var err error
	if cfg.Enabled, err = env.Bool("DISCOVER_EXPORTS_ENABLED", false); err != nil {
		return Config{}, err
	}
	if !cfg.Enabled {
		return cfg, nil
	}
	if cfg.SecretKey, err = env.Secret("DISCOVER_MINIO_SECRET_KEY", "discoverminio"); err != nil {
		return Config{}, err
	}
	if cfg.UseSSL, err = env.Bool("DISCOVER_MINIO_USE_SSL", false); err != nil {
		return Config{}, err
	}
	if cfg.PresignTTL, err = env.Duration("DISCOVER_EXPORT_PRESIGN_TTL", 15*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.RetentionDays, err = env.Int("DISCOVER_EXPORT_RETENTION_DAYS", 7); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	required := []struct{ name, value string }{
		{"DISCOVER_MINIO_ENDPOINT", c.Endpoint},
		{"DISCOVER_MINIO_ACCESS_KEY", c.AccessKey},
		{"DISCOVER_MINIO_SECRET_KEY", c.SecretKey},
		{"DISCOVER_MINIO_REGION", c.Region},
		{"DISCOVER_EXPORT_BUCKET", c.BucketExports},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("DISCOVER_MINIO_ENDPOINT must not include scheme: %q", c.Endpoint)
	}
	if c.PresignTTL <= 0 {
		return errors.New("DISCOVER_EXPORT_PRESIGN_TTL must be positive")
	}
	if c.RetentionDays < 0 {
		return errors.New("DISCOVER_EXPORT_RETENTION_DAYS must be >= 0")
	}
	return nil
}
