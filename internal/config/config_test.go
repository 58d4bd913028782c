package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadNoPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg != Default() {
		t.Errorf("Load(\"\") = %+v, want Default()", cfg)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load(missing) error: %v", err)
	}
	if cfg.DBPath != Default().DBPath {
		t.Errorf("Load(missing file) DBPath = %q, want default", cfg.DBPath)
	}
}

func TestLoadTOMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.toml")
	content := "db_path = \"/tmp/custom.sqlite3\"\nlog_level = \"debug\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}
	if cfg.DBPath != "/tmp/custom.sqlite3" {
		t.Errorf("DBPath = %q, want overlay value", cfg.DBPath)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	// Fields untouched by the overlay keep their defaults.
	if cfg.EmbeddingModel != Default().EmbeddingModel {
		t.Errorf("EmbeddingModel = %q, want default unchanged", cfg.EmbeddingModel)
	}
}

func TestLoadEnvOverridesTOML(t *testing.T) {
	t.Setenv("KB_DB_PATH", "/env/path.sqlite3")
	t.Setenv("KB_MANAGER_MODE", "true")
	t.Setenv("KB_EMBEDDING_DIMENSION", "2048")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.DBPath != "/env/path.sqlite3" {
		t.Errorf("DBPath = %q, want env override", cfg.DBPath)
	}
	if !cfg.ManagerMode {
		t.Error("ManagerMode should be true from KB_MANAGER_MODE=true")
	}
	if cfg.EmbeddingDimension != 2048 {
		t.Errorf("EmbeddingDimension = %d, want 2048", cfg.EmbeddingDimension)
	}
}

func TestLoadEnvBooleanRejectsGarbage(t *testing.T) {
	t.Setenv("KB_MANAGER_MODE", "yes-please")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.ManagerMode {
		t.Error("ManagerMode should stay false for a non true/1 value")
	}
}
