package render

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"

	u "covergen/internal/utils"
)

// Renderer is a pooled drawing slot. Each slot owns its font face because
// truetype faces carry internal glyph caches that are not goroutine-safe.
type Renderer struct {
	Face font.Face
}

// Stats is a snapshot of pool state for the stats endpoint.
type Stats struct {
	Enabled      bool
	Capacity     int
	Idle         int
	InUse        int
	PoolSizeConf int
	FontPath     string
	Restarts     int
	LastRestart  string
}

// Pool bounds concurrent cover rendering and hands out pre-built font
// faces. Restart reloads the font from disk, which picks up a swapped
// font asset without a process restart.
type Pool struct {
	mu          sync.Mutex
	cfg         u.Config
	fnt         *truetype.Font
	sem         chan *Renderer
	closed      bool
	restarts    int
	lastRestart time.Time
}

// NewPool loads the configured font and fills the pool with render slots.
func NewPool(cfg u.Config) (*Pool, error) {
	size := cfg.Cover.RenderPoolSize
	if size <= 0 {
		return nil, fmt.Errorf("renderer pool disabled (render_pool_size <= 0)")
	}

	fnt, err := LoadFont(cfg.Cover.FontPath)
	if err != nil {
		return nil, err
	}

	p := &Pool{
		cfg: cfg,
		fnt: fnt,
		sem: make(chan *Renderer, size),
	}
	for i := 0; i < size; i++ {
		p.sem <- &Renderer{Face: NewFace(fnt, cfg.Cover.FontSize)}
	}
	return p, nil
}

// Acquire takes a renderer from the pool, honoring context cancellation.
func (p *Pool) Acquire(ctx context.Context) (*Renderer, error) {
	p.mu.Lock()
	closed, sem := p.closed, p.sem
	p.mu.Unlock()

	if closed || sem == nil {
		return nil, fmt.Errorf("renderer pool is closed")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-sem:
		return r, nil
	}
}

// Release returns a renderer to the pool. When the render failed, the face
// is rebuilt first so a glyph cache left in a bad state is not reused.
func (p *Pool) Release(r *Renderer, renderErr error) {
	if r == nil {
		return
	}

	p.mu.Lock()
	sem, fnt, size := p.sem, p.fnt, p.cfg.Cover.FontSize
	p.mu.Unlock()
	if sem == nil {
		return
	}

	if renderErr != nil && fnt != nil {
		r.Face = NewFace(fnt, size)
	}

	select {
	case sem <- r:
	default:
		// Pool was restarted or shrunk while this renderer was out.
	}
}

// Restart reloads the font from disk and replaces every pooled renderer.
func (p *Pool) Restart() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("renderer pool is closed")
	}

	fnt, err := LoadFont(p.cfg.Cover.FontPath)
	if err != nil {
		return fmt.Errorf("reload font: %w", err)
	}

	size := cap(p.sem)
	if size == 0 {
		size = p.cfg.Cover.RenderPoolSize
	}
	sem := make(chan *Renderer, size)
	for i := 0; i < size; i++ {
		sem <- &Renderer{Face: NewFace(fnt, p.cfg.Cover.FontSize)}
	}

	p.fnt = fnt
	p.sem = sem
	p.restarts++
	p.lastRestart = time.Now()
	return nil
}

// Close marks the pool as closed and drops all idle renderers. Idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	if p.sem != nil {
		for {
			select {
			case <-p.sem:
			default:
				return
			}
		}
	}
}

// Stats reports the current pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		PoolSizeConf: p.cfg.Cover.RenderPoolSize,
		FontPath:     p.cfg.Cover.FontPath,
		Restarts:     p.restarts,
	}
	if !p.lastRestart.IsZero() {
		s.LastRestart = p.lastRestart.Format(time.RFC3339)
	}
	if p.closed || p.sem == nil {
		return s
	}
	s.Enabled = true
	s.Capacity = cap(p.sem)
	s.Idle = len(p.sem)
	s.InUse = s.Capacity - s.Idle
	return s
}
