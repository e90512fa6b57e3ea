package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Mesh.CameraDistance != 50 || cfg.Mesh.FieldOfView != 50 {
		t.Errorf("unexpected camera defaults: %+v", cfg.Mesh)
	}
	if cfg.Slices.Prefix != "VHFCT1mm-Ankle" || cfg.Slices.Suffix != ".dcm" {
		t.Errorf("unexpected slice defaults: %+v", cfg.Slices)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Backend.URL = "https://scans.example.org"
	cfg.Backend.CacheTTL = 5 * time.Minute
	cfg.Mesh.FrameRate = 30
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Backend.URL != cfg.Backend.URL || loaded.Backend.CacheTTL != 5*time.Minute {
		t.Errorf("backend not persisted: %+v", loaded.Backend)
	}
	if loaded.Viewport().FrameRate != 30 {
		t.Errorf("frame rate not persisted: %d", loaded.Viewport().FrameRate)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "slices:\n  expr: 'img_(\\d+)\\.png$'\nlog:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Slices.Parallel != 4 || cfg.Mesh.Scale != 0.5 {
		t.Errorf("defaults lost: %+v %+v", cfg.Slices, cfg.Mesh)
	}
	if cfg.LogLevel() != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.LogLevel())
	}

	pattern, err := cfg.Pattern()
	if err != nil {
		t.Fatalf("Pattern failed: %v", err)
	}
	if n, ok := pattern.Index("/x/img_12.png"); !ok || n != 12 {
		t.Errorf("expected index 12, got %d %v", n, ok)
	}
}

func TestInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("mesh: [1, 2"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Errorf("expected a parse error")
	}
}

func TestCredentialOrder(t *testing.T) {
	file := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(file, []byte("from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Auth.TokenEnv = "SCANVIEW_TEST_TOKEN"
	cfg.Auth.TokenFile = file

	t.Setenv("SCANVIEW_TEST_TOKEN", "")
	if token, ok := cfg.Credential().Token(); !ok || token != "from-file" {
		t.Errorf("expected the file token, got %q", token)
	}

	t.Setenv("SCANVIEW_TEST_TOKEN", "from-env")
	if token, _ := cfg.Credential().Token(); token != "from-env" {
		t.Errorf("expected the environment token, got %q", token)
	}
}

func TestViewportIgnoresInvalidValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mesh.CameraDistance = -1
	cfg.Mesh.Damping = 2

	view := cfg.Viewport()
	if view.CameraDistance != 50 || view.Damping != 0.25 {
		t.Errorf("invalid values leaked: %+v", view)
	}
}
