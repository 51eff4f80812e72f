package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Dialect.Name != "edtasm" {
		t.Fatalf("Dialect.Name = %q, want edtasm", cfg.Dialect.Name)
	}
	if !cfg.Dialect.AutoExpand {
		t.Fatal("Dialect.AutoExpand should default true")
	}
	if cfg.Output.Format != "aof" {
		t.Fatalf("Output.Format = %q, want aof", cfg.Output.Format)
	}
	if cfg.Output.DefaultOrg != 0x8000 {
		t.Fatalf("Output.DefaultOrg = 0x%X, want 0x8000", cfg.Output.DefaultOrg)
	}
}

func TestLoadFromMissingFileIsNotAnError(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("a missing config file must not be an error: %v", err)
	}
	if cfg.Dialect.Name != "edtasm" {
		t.Fatalf("expected defaults when no file exists, got %q", cfg.Dialect.Name)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vasmrc.toml")

	cfg := DefaultConfig()
	cfg.Dialect.Name = "merlin"
	cfg.Dialect.NoCase = true
	cfg.Output.Format = "cmd"
	cfg.Output.DefaultOrg = 0x4000
	cfg.Include.Paths = []string{"/inc/one", "/inc/two"}

	require.NoError(t, cfg.SaveTo(path))

	loaded, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "merlin", loaded.Dialect.Name)
	assert.True(t, loaded.Dialect.NoCase, "Dialect.NoCase did not round-trip")
	assert.Equal(t, "cmd", loaded.Output.Format)
	assert.Equal(t, uint64(0x4000), loaded.Output.DefaultOrg)
	assert.Equal(t, []string{"/inc/one", "/inc/two"}, loaded.Include.Paths)
}

func TestLoadFromRejectsMalformedToml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("this is not [valid toml"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Fatal("expected an error parsing a malformed config file")
	}
}
