package features

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type fakeOverrides struct {
	rows map[int64]bool
	err  error
}

func (f fakeOverrides) FeatureOverride(_ context.Context, organizationID int64, _ string) (bool, bool, error) {
	if f.err != nil {
		return false, false, f.err
	}
	enabled, ok := f.rows[organizationID]
	return enabled, ok, nil
}

const sample = `
features:
  organizations:discover:
    default: false
    organizations: [acme]
    actors: [ops@example.com]
`

func TestRegistryResolutionOrder(t *testing.T) {
	file, err := ParseFile([]byte(sample))
	if err != nil {
		t.Fatalf("ParseFile() err=%v", err)
	}
	reg := NewRegistry(file, true, fakeOverrides{rows: map[int64]bool{1: false, 2: true}})
	ctx := context.Background()

	cases := []struct {
		name    string
		subject Subject
		want    bool
	}{
		{"override disables allow-listed org", Subject{OrganizationID: 1, OrganizationSlug: "acme"}, false},
		{"override enables", Subject{OrganizationID: 2, OrganizationSlug: "other"}, true},
		{"org allow-list", Subject{OrganizationID: 3, OrganizationSlug: "acme"}, true},
		{"actor allow-list", Subject{OrganizationID: 3, OrganizationSlug: "other", Actor: "ops@example.com"}, true},
		{"flag default", Subject{OrganizationID: 3, OrganizationSlug: "other", Actor: "bob"}, false},
	}
	for _, tc := range cases {
		got, err := reg.Has(ctx, Discover, tc.subject)
		if err != nil {
			t.Fatalf("%s: Has() err=%v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: Has()=%v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRegistryFallsBackToProcessDefault(t *testing.T) {
	reg := NewRegistry(File{}, false, nil)
	got, err := reg.Has(context.Background(), Discover, Subject{OrganizationID: 1, OrganizationSlug: "acme"})
	if err != nil {
		t.Fatalf("Has() err=%v", err)
	}
	if got {
		t.Fatalf("Has()=true, want false")
	}
}

func TestRegistryOverrideError(t *testing.T) {
	reg := NewRegistry(File{}, true, fakeOverrides{err: errors.New("db down")})
	if _, err := reg.Has(context.Background(), Discover, Subject{OrganizationID: 1}); err == nil {
		t.Fatalf("Has() expected error")
	}
}

func TestParseFileRejectsEmptyEntries(t *testing.T) {
	if _, err := ParseFile([]byte("features:\n  x:\n    organizations: ['']\n")); err == nil {
		t.Fatalf("ParseFile() expected error")
	}
	if _, err := ParseFile([]byte("features: [")); err == nil {
		t.Fatalf("ParseFile() expected decode error")
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	reg, err := Load(Config{File: path, Default: true}, nil)
	if err != nil {
		t.Fatalf("Load() err=%v", err)
	}
	got, err := reg.Has(context.Background(), Discover, Subject{OrganizationSlug: "acme"})
	if err != nil || !got {
		t.Fatalf("Has()=%v,%v, want true,nil", got, err)
	}
	if _, err := Load(Config{File: filepath.Join(t.TempDir(), "missing.yaml")}, nil); err == nil {
		t.Fatalf("Load() expected error for missing file")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("DISCOVER_FEATURES_DEFAULT", "false")
	t.Setenv("DISCOVER_FEATURES_FILE", " /etc/discover/features.yaml ")
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if cfg.Default || cfg.File != "/etc/discover/features.yaml" {
		t.Fatalf("ConfigFromEnv()=%+v", cfg)
	}
	t.Setenv("DISCOVER_FEATURES_DEFAULT", "maybe")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatalf("ConfigFromEnv() expected error")
	}
}

func TestStatic(t *testing.T) {
	got, _ := Static(true).Has(context.Background(), Discover, Subject{})
	if !got {
		t.Fatalf("Static(true).Has()=false")
	}
}
