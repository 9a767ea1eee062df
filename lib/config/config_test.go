// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadFromStoreEnv(t *testing.T) {
	t.Setenv(EnvStore, "/data/cast")
	t.Setenv(EnvConfig, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config with CAST_STORE set")
	}
	if cfg.Store.Root != "/data/cast" {
		t.Errorf("Store.Root = %q, want %q", cfg.Store.Root, "/data/cast")
	}
}

func TestLoadFromConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cast.yaml")
	content := "store:\n  root: /srv/datasets\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	t.Setenv(EnvStore, "")
	t.Setenv(EnvConfig, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Store.Root != "/srv/datasets" {
		t.Errorf("Store.Root = %q, want %q", cfg.Store.Root, "/srv/datasets")
	}
}

func TestStoreEnvWinsOverConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cast.yaml")
	if err := os.WriteFile(path, []byte("store:\n  root: /from/file\n"), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	t.Setenv(EnvStore, "/from/env")
	t.Setenv(EnvConfig, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Store.Root != "/from/env" {
		t.Errorf("Store.Root = %q, want %q", cfg.Store.Root, "/from/env")
	}
}

func TestLoadUnconfiguredEnvironment(t *testing.T) {
	t.Setenv(EnvStore, "")
	t.Setenv(EnvConfig, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed in an unconfigured environment: %v", err)
	}
	if cfg != nil {
		t.Errorf("Load returned %+v in an unconfigured environment, want nil", cfg)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadFile succeeded on a missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("store: [not a mapping"), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	if _, err := LoadFile(bad); err == nil {
		t.Error("LoadFile accepted malformed YAML")
	}
}

func TestResolveStoreRootPriority(t *testing.T) {
	cfg := &Config{Store: StoreConfig{Root: "/from/config"}}

	// Explicit override wins.
	root, err := ResolveStoreRoot("/explicit", cfg)
	if err != nil {
		t.Fatalf("ResolveStoreRoot failed: %v", err)
	}
	if root != "/explicit" {
		t.Errorf("root = %q, want %q", root, "/explicit")
	}

	// Without an override, the configuration supplies the root.
	root, err = ResolveStoreRoot("", cfg)
	if err != nil {
		t.Fatalf("ResolveStoreRoot failed: %v", err)
	}
	if root != "/from/config" {
		t.Errorf("root = %q, want %q", root, "/from/config")
	}
}

func TestResolveStoreRootNothingConfigured(t *testing.T) {
	_, err := ResolveStoreRoot("", nil)
	if err == nil {
		t.Fatal("ResolveStoreRoot succeeded with nothing configured")
	}

	var rerr *ResolveError
	if !errors.As(err, &rerr) {
		t.Fatalf("error is not a *ResolveError: %v", err)
	}
	if rerr.Remediation == "" {
		t.Error("ResolveError has no remediation text")
	}
	for _, fix := range []string{"--store", EnvStore, EnvConfig} {
		if !strings.Contains(err.Error(), fix) {
			t.Errorf("error does not mention remediation %q:\n%v", fix, err)
		}
	}
}

func TestResolveStoreRootRejectsRelativePaths(t *testing.T) {
	_, err := ResolveStoreRoot("relative/store", nil)
	if err == nil {
		t.Fatal("ResolveStoreRoot accepted a relative path")
	}

	var rerr *ResolveError
	if !errors.As(err, &rerr) {
		t.Fatalf("error is not a *ResolveError: %v", err)
	}

	// An empty config section is the same as no configuration.
	_, err = ResolveStoreRoot("", &Config{})
	if !errors.As(err, &rerr) {
		t.Errorf("empty config: got %v, want *ResolveError", err)
	}
}
