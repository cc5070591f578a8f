package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"covergen/internal/render"
	"covergen/internal/store"
	u "covergen/internal/utils"
)

// MonthlyCoverRequest is the JSON body for POST /v1/playlist/monthly.
type MonthlyCoverRequest struct {
	Month      string `json:"month"`
	Year       int    `json:"year"`
	PlaylistID string `json:"playlist_id"`
}

// WeeklyCoverRequest is the JSON body for POST /v1/playlist/weekly.
type WeeklyCoverRequest struct {
	Week       int    `json:"week"`
	Year       int    `json:"year"`
	PlaylistID string `json:"playlist_id"`
}

// CoverRequestParams holds validated input parameters.
type CoverRequestParams struct {
	Caption    string
	PlaylistID string
	Filename   string
}

// CoverService bundles configuration and dependencies for cover rendering.
type CoverService struct {
	Config *u.Config
	Redis  *redis.Client
	Images *store.Store

	poolMu  sync.Mutex
	pool    *render.Pool
	poolErr error
}

// NewCoverService creates a new CoverService instance.
func NewCoverService(cfg u.Config, rdb *redis.Client, images *store.Store) *CoverService {
	return &CoverService{
		Config: &cfg,
		Redis:  rdb,
		Images: images,
	}
}

var months = map[string]bool{
	"january": true, "february": true, "march": true, "april": true,
	"may": true, "june": true, "july": true, "august": true,
	"september": true, "october": true, "november": true, "december": true,
}

const minYear = 2025

func (svc *CoverService) getRenderPool() (*render.Pool, error) {
	svc.poolMu.Lock()
	defer svc.poolMu.Unlock()

	if svc.Config.Cover.RenderPoolSize <= 0 {
		return nil, nil
	}
	if svc.pool != nil {
		return svc.pool, nil
	}
	pool, err := render.NewPool(*svc.Config)
	if err != nil {
		svc.poolErr = err
		return nil, err
	}
	svc.pool = pool
	return svc.pool, nil
}

// HandleMonthly generates a monthly playlist cover or serves a cached copy.
func (svc *CoverService) HandleMonthly(c *fiber.Ctx) error {
	params, err := validateAndExtractMonthlyParams(c)
	if err != nil {
		return err
	}
	return svc.processCoverGeneration(c, params)
}

// HandleWeekly generates a weekly playlist cover or serves a cached copy.
func (svc *CoverService) HandleWeekly(c *fiber.Ctx) error {
	params, err := validateAndExtractWeeklyParams(c)
	if err != nil {
		return err
	}
	return svc.processCoverGeneration(c, params)
}

// processCoverGeneration handles caching, rendering and storage, then
// responds with the URL of the stored cover.
func (svc *CoverService) processCoverGeneration(c *fiber.Ctx, params *CoverRequestParams) error {
	cacheKey := computeCoverCacheKey(params, *svc.Config)

	var pngBuf []byte

	// Try to reuse an already rendered cover from Redis.
	if svc.Redis != nil && svc.Config.Cache.CoverCacheEnabled {
		if cached, err := getCachedCover(c, svc.Redis, cacheKey); err == nil && cached != nil {
			pngBuf = cached
		}
	}

	if pngBuf == nil {
		var err error
		pngBuf, err = svc.renderCover(params)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				u.Error("Cover render timeout", "timeout_secs", svc.Config.Cover.TimeoutSecs, "error", err.Error())
				return fiber.NewError(fiber.StatusRequestTimeout, "Cover rendering took too long")
			}
			u.Error("Cover generation failed", "error", err.Error())
			return fiber.NewError(fiber.StatusInternalServerError, "Cover generation failed: "+err.Error())
		}

		if len(pngBuf) > svc.Config.Limits.MaxCoverBytes {
			return fiber.NewError(fiber.StatusRequestEntityTooLarge, "Cover exceeds allowed size")
		}

		if svc.Redis != nil && svc.Config.Cache.CoverCacheEnabled {
			setCachedCover(c, svc.Redis, cacheKey, pngBuf, svc.Config.Cache.CoverCacheTTL)
		}
	}

	if err := svc.Images.Save(params.Filename, pngBuf); err != nil {
		u.Error("Cover store failed", "filename", params.Filename, "error", err.Error())
		return fiber.NewError(fiber.StatusInternalServerError, "Cover store failed")
	}

	requestID := c.Get("X-Request-ID")
	u.Info("Cover generated", "filename", params.Filename, "playlist_id", params.PlaylistID, "request_id", requestID)

	return c.JSON(fiber.Map{
		"url": "/v1/covers/" + params.Filename,
	})
}

func (svc *CoverService) renderCover(params *CoverRequestParams) ([]byte, error) {
	pool, err := svc.getRenderPool()
	if err != nil {
		return nil, err
	}

	renderParams := render.ParamsFromConfig(*svc.Config, params.Caption)

	if pool == nil {
		// Fallback: load the font for this request only.
		fnt, err := render.LoadFont(svc.Config.Cover.FontPath)
		if err != nil {
			return nil, err
		}
		return render.Cover(render.NewFace(fnt, svc.Config.Cover.FontSize), renderParams)
	}

	timeout := time.Duration(svc.Config.Cover.TimeoutSecs) * time.Second
	acquireCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	r, err := pool.Acquire(acquireCtx)
	if err != nil {
		return nil, err
	}

	pngBuf, renderErr := render.Cover(r.Face, renderParams)
	pool.Release(r, renderErr)
	return pngBuf, renderErr
}

// HandleCoverDownload serves a stored cover as image/png.
func (svc *CoverService) HandleCoverDownload(c *fiber.Ctx) error {
	name := c.Params("filename")

	data, err := svc.Images.Read(name)
	if errors.Is(err, store.ErrInvalidName) {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid filename")
	}
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Cover not found")
	}
	if err != nil {
		u.Error("Cover read failed", "filename", name, "error", err.Error())
		return fiber.NewError(fiber.StatusInternalServerError, "Cover read failed")
	}

	c.Set("Content-Type", "image/png")
	return c.Send(data)
}

// validateAndExtractMonthlyParams validates the monthly request body.
func validateAndExtractMonthlyParams(c *fiber.Ctx) (*CoverRequestParams, error) {
	var req MonthlyCoverRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid JSON body")
	}

	month := strings.ToLower(strings.TrimSpace(req.Month))
	if !months[month] {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid month: must be january..december")
	}
	if req.Year < minYear {
		return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Invalid year: must be %d or later", minYear))
	}
	if err := checkPlaylistID(req.PlaylistID); err != nil {
		return nil, err
	}

	caption := fmt.Sprintf("%s %d", month, req.Year)
	return &CoverRequestParams{
		Caption:    caption,
		PlaylistID: req.PlaylistID,
		Filename:   fmt.Sprintf("%s-%s-%d.png", req.PlaylistID, month, req.Year),
	}, nil
}

// validateAndExtractWeeklyParams validates the weekly request body.
func validateAndExtractWeeklyParams(c *fiber.Ctx) (*CoverRequestParams, error) {
	var req WeeklyCoverRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid JSON body")
	}

	if req.Week < 1 || req.Week > 52 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid week: must be between 1 and 52")
	}
	if req.Year < minYear {
		return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Invalid year: must be %d or later", minYear))
	}
	if err := checkPlaylistID(req.PlaylistID); err != nil {
		return nil, err
	}

	caption := fmt.Sprintf("week %d %d", req.Week, req.Year)
	return &CoverRequestParams{
		Caption:    caption,
		PlaylistID: req.PlaylistID,
		Filename:   fmt.Sprintf("%s-week-%02d-%d.png", req.PlaylistID, req.Week, req.Year),
	}, nil
}

func checkPlaylistID(id string) error {
	if id == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Missing playlist_id")
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return fiber.NewError(fiber.StatusBadRequest, "Invalid playlist_id: allowed characters are A-Z a-z 0-9 _ -")
		}
	}
	return nil
}

// computeCoverCacheKey creates a SHA256-based cache key over everything that
// affects the rendered pixels.
func computeCoverCacheKey(params *CoverRequestParams, cfg u.Config) string {
	h := sha256.New()
	h.Write([]byte(params.Caption))
	h.Write([]byte(strconv.Itoa(cfg.Cover.Width)))
	h.Write([]byte(strconv.Itoa(cfg.Cover.Height)))
	h.Write([]byte(strconv.FormatFloat(cfg.Cover.FontSize, 'f', 2, 64)))
	h.Write([]byte(cfg.Cover.FontPath))
	return "covercache:" + hex.EncodeToString(h.Sum(nil))
}

// getCachedCover attempts to retrieve a rendered cover from Redis.
func getCachedCover(c *fiber.Ctx, rdb *redis.Client, key string) ([]byte, error) {
	ctxRedis, cancel := context.WithTimeout(c.Context(), 1*time.Second)
	defer cancel()

	cached, err := rdb.Get(ctxRedis, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		u.Warn("Redis read failed", "error", err)
		return nil, err
	}

	u.Info("Cover cache hit", "key", key)
	return cached, nil
}

// setCachedCover stores a rendered cover in Redis.
func setCachedCover(c *fiber.Ctx, rdb *redis.Client, key string, data []byte, ttl time.Duration) {
	ctxRedis, cancel := context.WithTimeout(c.Context(), 1*time.Second)
	defer cancel()

	if ttl <= 0 {
		ttl = 1 * time.Minute
	}

	if err := rdb.Set(ctxRedis, key, data, ttl).Err(); err != nil {
		u.Warn("Redis write failed", "error", err)
	}
}

// HandleRenderStats exposes basic observability for the renderer pool.
func (svc *CoverService) HandleRenderStats(c *fiber.Ctx) error {
	pool, err := svc.getRenderPool()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Renderer pool init failed: "+err.Error())
	}

	// Pool disabled.
	if pool == nil {
		return c.JSON(fiber.Map{
			"enabled":        false,
			"capacity":       0,
			"idle":           0,
			"in_use":         0,
			"pool_size_conf": svc.Config.Cover.RenderPoolSize,
			"font_path":      svc.Config.Cover.FontPath,
			"timeout_secs":   svc.Config.Cover.TimeoutSecs,
			"restarts":       0,
		})
	}

	s := pool.Stats()
	return c.JSON(fiber.Map{
		"enabled":        s.Enabled,
		"capacity":       s.Capacity,
		"idle":           s.Idle,
		"in_use":         s.InUse,
		"pool_size_conf": s.PoolSizeConf,
		"font_path":      s.FontPath,
		"timeout_secs":   svc.Config.Cover.TimeoutSecs,
		"restarts":       s.Restarts,
		"last_restart":   s.LastRestart,
	})
}
