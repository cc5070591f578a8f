package handlers

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

func TestSetCachedCover_DefaultTTLAndProcessCacheHit(t *testing.T) {
	mrs, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mrs.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mrs.Addr()})

	cfg := testCoverCfg(t, 0)
	cfg.Cache.CoverCacheEnabled = true
	// Break rendering so only the cache can satisfy the request.
	cfg.Cover.FontPath = "/definitely/missing/font.ttf"

	images := testImageStore(t)
	svc := NewCoverService(cfg, rdb, images)

	app := fiber.New()
	app.Get("/cache", func(c *fiber.Ctx) error {
		setCachedCover(c, rdb, "k", []byte("png"), 0)
		ttl := mrs.TTL("k")
		if ttl < 50*time.Second || ttl > 70*time.Second {
			t.Fatalf("expected default ttl around 1m, got %v", ttl)
		}

		params := &CoverRequestParams{
			Caption:    "june 2025",
			PlaylistID: "pl1",
			Filename:   "pl1-june-2025.png",
		}
		key := computeCoverCacheKey(params, cfg)
		if err := rdb.Set(c.Context(), key, []byte("cached-png"), time.Minute).Err(); err != nil {
			return err
		}
		return svc.processCoverGeneration(c, params)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/cache", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}

	// The cached bytes were persisted to the image dir without rendering.
	stored, err := images.Read("pl1-june-2025.png")
	if err != nil {
		t.Fatalf("stored cover missing: %v", err)
	}
	if string(stored) != "cached-png" {
		t.Fatalf("expected cache contents to be stored, got %q", stored)
	}
}

func TestProcessCoverGeneration_PopulatesCache(t *testing.T) {
	mrs, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mrs.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mrs.Addr()})

	cfg := testCoverCfg(t, 1)
	cfg.Cache.CoverCacheEnabled = true

	svc := NewCoverService(cfg, rdb, testImageStore(t))

	params := &CoverRequestParams{
		Caption:    "week 7 2025",
		PlaylistID: "pl1",
		Filename:   "pl1-week-07-2025.png",
	}
	key := computeCoverCacheKey(params, cfg)

	app := fiber.New()
	app.Get("/gen", func(c *fiber.Ctx) error {
		return svc.processCoverGeneration(c, params)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/gen", nil), -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}

	if !mrs.Exists(key) {
		t.Fatalf("expected rendered cover to be cached under %q", key)
	}
}

func TestHandleRenderStats_DisabledPoolErrorAndEnabled(t *testing.T) {
	base := testCoverCfg(t, 0)

	// disabled pool path
	disabled := NewCoverService(base, nil, testImageStore(t))
	app1 := fiber.New()
	app1.Get("/stats", disabled.HandleRenderStats)
	resp1, _ := app1.Test(httptest.NewRequest("GET", "/stats", nil))
	if resp1.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 for disabled pool stats, got %d", resp1.StatusCode)
	}

	// pool init error path
	errCfg := testCoverCfg(t, 1)
	errCfg.Cover.FontPath = "/definitely/missing/font.ttf"
	errSvc := NewCoverService(errCfg, nil, testImageStore(t))
	app2 := fiber.New()
	app2.Get("/stats", errSvc.HandleRenderStats)
	resp2, _ := app2.Test(httptest.NewRequest("GET", "/stats", nil))
	if resp2.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("expected 500 for pool init error, got %d", resp2.StatusCode)
	}

	// enabled pool path
	enSvc := NewCoverService(testCoverCfg(t, 2), nil, testImageStore(t))
	app3 := fiber.New()
	app3.Get("/stats", enSvc.HandleRenderStats)
	resp3, _ := app3.Test(httptest.NewRequest("GET", "/stats", nil))
	if resp3.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 for enabled pool stats, got %d", resp3.StatusCode)
	}
}
