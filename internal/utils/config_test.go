package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadConfigFrom_Valid(t *testing.T) {
	p := writeConfig(t, `server:
  port: ":9000"
cache:
  redis_host: "127.0.0.1:6379"
  cover_cache_enabled: true
  cover_cache_ttl: 1h
cover:
  width: 800
  height: 800
  font_path: "/fonts/x.ttf"
  image_dir: "/var/covers"
  render_pool_size: 4
limits:
  max_cover_bytes: 1048576
`)
	cfg := LoadConfigFrom(p)
	if cfg.Server.Port != ":9000" {
		t.Fatalf("unexpected port: %q", cfg.Server.Port)
	}
	if cfg.Cover.Width != 800 || cfg.Cover.Height != 800 {
		t.Fatalf("unexpected canvas: %dx%d", cfg.Cover.Width, cfg.Cover.Height)
	}
	if cfg.Cover.FontPath != "/fonts/x.ttf" {
		t.Fatalf("unexpected font path: %q", cfg.Cover.FontPath)
	}
	if cfg.Cache.CoverCacheTTL != time.Hour {
		t.Fatalf("unexpected cache ttl: %v", cfg.Cache.CoverCacheTTL)
	}
	if cfg.Limits.MaxCoverBytes != 1048576 {
		t.Fatalf("unexpected cover limit: %d", cfg.Limits.MaxCoverBytes)
	}
}

func TestLoadConfigFrom_MissingFileUsesDefaults(t *testing.T) {
	cfg := LoadConfigFrom(filepath.Join(t.TempDir(), "does-not-exist.yaml"))

	if cfg.Server.Port != ":8000" {
		t.Fatalf("expected default port :8000, got %q", cfg.Server.Port)
	}
	if cfg.Cover.Width != 600 || cfg.Cover.Height != 600 {
		t.Fatalf("expected 600x600 default canvas, got %dx%d", cfg.Cover.Width, cfg.Cover.Height)
	}
	if cfg.Cover.FontSize != 60 {
		t.Fatalf("expected default font size 60, got %v", cfg.Cover.FontSize)
	}
	if cfg.Cover.BarWidthRatio != 0.9 || cfg.Cover.BarHeightRatio != 0.15 {
		t.Fatalf("unexpected bar ratios: %v %v", cfg.Cover.BarWidthRatio, cfg.Cover.BarHeightRatio)
	}
	if cfg.Cover.ImageDir == "" {
		t.Fatalf("expected image dir default")
	}
	if cfg.Limits.MaxCoverBytes <= 0 {
		t.Fatalf("expected cover size limit default")
	}
}

func TestLoadConfigFrom_PanicsOnInvalidYAML(t *testing.T) {
	p := writeConfig(t, "server: [not a mapping")
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	_ = LoadConfigFrom(p)
}

func TestLoadConfig_UsesConfigPathEnv(t *testing.T) {
	p := writeConfig(t, `server:
  port: ":9100"
`)
	t.Setenv("CONFIG_PATH", p)
	cfg := LoadConfig()
	if cfg.Server.Port != ":9100" {
		t.Fatalf("expected CONFIG_PATH to be used")
	}
	if GetConfig().Server.Port != ":9100" {
		t.Fatalf("expected AppConfig to be updated")
	}
}
