// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Environment variables read by [Load].
const (
	// EnvStore supplies a store root directly.
	EnvStore = "CAST_STORE"

	// EnvConfig names the YAML config file to load. There is no
	// config file discovery: if this is unset, no file is read.
	EnvConfig = "CAST_CONFIG"
)

// Config is the cast configuration document.
type Config struct {
	Store StoreConfig `yaml:"store"`
}

// StoreConfig configures the content store.
type StoreConfig struct {
	// Root is the store root directory. Must be an absolute path.
	Root string `yaml:"root"`
}

// ResolveError means no usable store root could be resolved.
// Remediation names the concrete fixes; it is always populated.
type ResolveError struct {
	Problem     string
	Remediation string
}

func (e *ResolveError) Error() string {
	return e.Problem + "; " + e.Remediation
}

// Load reads configuration from the environment. CAST_STORE, when
// set, supplies the store root directly and wins over any config
// file. Otherwise the file named by CAST_CONFIG is loaded. When
// neither variable is set, Load returns (nil, nil): an unconfigured
// environment only becomes an error once a store root is actually
// needed, in [ResolveStoreRoot].
func Load() (*Config, error) {
	if root := os.Getenv(EnvStore); root != "" {
		return &Config{Store: StoreConfig{Root: root}}, nil
	}
	if path := os.Getenv(EnvConfig); path != "" {
		return LoadFile(path)
	}
	return nil, nil
}

// LoadFile loads configuration from a specific YAML file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return &cfg, nil
}

// ResolveStoreRoot resolves the store root from an explicit
// per-invocation override and the loaded configuration, in that
// priority order. A nil cfg means no global configuration exists.
// The resolved root must be absolute — a relative root would resolve
// differently in every working directory, so it is rejected rather
// than silently absolutized.
func ResolveStoreRoot(explicit string, cfg *Config) (string, error) {
	root := explicit
	origin := "the --store flag"
	if root == "" && cfg != nil {
		root = cfg.Store.Root
		origin = "the configuration"
	}

	if root == "" {
		return "", &ResolveError{
			Problem: "no store root configured",
			Remediation: fmt.Sprintf("pass --store <dir>, set %s to the store root directory, or set %s to a config file with a store.root entry",
				EnvStore, EnvConfig),
		}
	}
	if !filepath.IsAbs(root) {
		return "", &ResolveError{
			Problem:     fmt.Sprintf("store root %q from %s is not an absolute path", root, origin),
			Remediation: "use an absolute path so every process resolves the same store",
		}
	}
	return root, nil
}
