// Package features answers whether a named capability is enabled for an
// organization and actor.
package features

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tracewell/discover-go/internal/platform/env"
)

// Discover gates every key-transaction route.
const Discover = "organizations:discover"

type Subject struct {
	OrganizationID   int64
	OrganizationSlug string
	Actor            string
}

type Checker interface {
	Has(ctx context.Context, feature string, subject Subject) (bool, error)
}

// OverrideSource returns a per-organization override. found=false means no row exists.
type OverrideSource interface {
	FeatureOverride(ctx context.Context, organizationID int64, feature string) (enabled bool, found bool, err error)
}

type Flag struct {
	Default       *bool    `yaml:"default,omitempty"`
	Organizations []string `yaml:"organizations,omitempty"`
	Actors        []string `yaml:"actors,omitempty"`
}

type File struct {
	Features map[string]Flag `yaml:"features"`
}

func ParseFile(input []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(input, &f); err != nil {
		return File{}, fmt.Errorf("decode features: %w", err)
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

func (f File) Validate() error {
	for name, flag := range f.Features {
		if strings.TrimSpace(name) == "" {
			return errors.New("features: empty feature name")
		}
		for _, slug := range flag.Organizations {
			if strings.TrimSpace(slug) == "" {
				return fmt.Errorf("features.%s.organizations: empty entry", name)
			}
		}
		for _, actor := range flag.Actors {
			if strings.TrimSpace(actor) == "" {
				return fmt.Errorf("features.%s.actors: empty entry", name)
			}
		}
	}
	return nil
}

type Config struct {
	File    string
	Default bool
}

func ConfigFromEnv() (Config, error) {
	def, err := env.Bool("DISCOVER_FEATURES_DEFAULT", true)
	if err != nil {
		return Config{}, err
	}
	return Config{
		File:    strings.TrimSpace(env.String("DISCOVER_FEATURES_FILE", "")),
		Default: def,
	}, nil
}

// Registry resolves a feature in order: per-org override, file allow-lists,
// file default, then the process default.
type Registry struct {
	file      File
	def       bool
	overrides OverrideSource
}

func NewRegistry(file File, def bool, overrides OverrideSource) *Registry {
	return &Registry{file: file, def: def, overrides: overrides}
}

// Load builds a Registry from cfg, reading the YAML file when one is configured.
func Load(cfg Config, overrides OverrideSource) (*Registry, error) {
	var file File
	if cfg.File != "" {
		raw, err := os.ReadFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("read features file: %w", err)
		}
		file, err = ParseFile(raw)
		if err != nil {
			return nil, err
		}
	}
	return NewRegistry(file, cfg.Default, overrides), nil
}

func (r *Registry) Has(ctx context.Context, feature string, subject Subject) (bool, error) {
	if r == nil {
		return false, errors.New("feature registry is nil")
	}
	feature = strings.TrimSpace(feature)
	if feature == "" {
		return false, errors.New("feature is required")
	}

	if r.overrides != nil && subject.OrganizationID > 0 {
		enabled, found, err := r.overrides.FeatureOverride(ctx, subject.OrganizationID, feature)
		if err != nil {
			return false, fmt.Errorf("feature override: %w", err)
		}
		if found {
			return enabled, nil
		}
	}

	flag, ok := r.file.Features[feature]
	if !ok {
		return r.def, nil
	}
	if contains(flag.Organizations, subject.OrganizationSlug) {
		return true, nil
	}
	if contains(flag.Actors, subject.Actor) {
		return true, nil
	}
	if flag.Default != nil {
		return *flag.Default, nil
	}
	return r.def, nil
}

func contains(list []string, v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	for _, item := range list {
		if strings.TrimSpace(item) == v {
			return true
		}
	}
	return false
}

// Static answers every feature the same way for every subject.
type Static bool

func (s Static) Has(context.Context, string, Subject) (bool, error) {
	return bool(s), nil
}
