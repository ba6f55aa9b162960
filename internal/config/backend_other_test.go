//go:build !darwin

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileBackend_PersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dscopilot", "config.json")

	b := openFileBackend(path)
	if err := b.SetInt("server.port", 4300); err != nil {
		t.Fatalf("SetInt: %v", err)
	}
	if err := b.SetString("log.level", "debug"); err != nil {
		t.Fatalf("SetString: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}

	reopened := openFileBackend(path)
	if port, ok, err := reopened.GetInt("server.port"); err != nil || !ok || port != 4300 {
		t.Errorf("server.port = %d, %v, %v", port, ok, err)
	}
	if lvl, ok, _ := reopened.GetString("log.level"); !ok || lvl != "debug" {
		t.Errorf("log.level = %q, %v", lvl, ok)
	}

	if err := reopened.Delete("log.level"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := openFileBackend(path).GetString("log.level"); ok {
		t.Error("log.level survived Delete")
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("leftover files in config dir: %v", entries)
	}
}

func TestFileBackend_CorruptFileFallsBackToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	b := openFileBackend(path)
	if _, ok, err := b.GetString("server.host"); ok || err != nil {
		t.Errorf("GetString on corrupt file = %v, %v", ok, err)
	}
	if err := b.SetString("server.host", "0.0.0.0"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	if v, _, _ := openFileBackend(path).GetString("server.host"); v != "0.0.0.0" {
		t.Errorf("server.host = %q after rewrite", v)
	}
}

func TestFileBackend_GetIntRejectsFractions(t *testing.T) {
	b := &fileBackend{data: map[string]any{"server.port": 42.5, "composer.max_context_tokens": "abc"}}
	if _, _, err := b.GetInt("server.port"); err == nil {
		t.Error("expected error for 42.5")
	}
	if _, _, err := b.GetInt("composer.max_context_tokens"); err == nil {
		t.Error("expected error for non-numeric string")
	}
}

func TestSecretsFile_RoundTrip(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	if _, err := secretGet(secretService, apiTokenAccount); err == nil {
		t.Error("expected error before any secret is stored")
	}
	if err := secretSet(secretService, apiTokenAccount, "tok"); err != nil {
		t.Fatalf("secretSet: %v", err)
	}
	if err := secretSet(secretService, "gemini_api_key", "key"); err != nil {
		t.Fatalf("secretSet: %v", err)
	}

	kc := NewKeychain()
	if v, err := kc.Get(secretService, apiTokenAccount); err != nil || v != "tok" {
		t.Errorf("api token = %q, %v", v, err)
	}
	if v, err := kc.Get(secretService, "gemini_api_key"); err != nil || v != "key" {
		t.Errorf("gemini key = %q, %v", v, err)
	}
}
