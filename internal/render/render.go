package render

import (
	"bytes"
	"fmt"
	"os"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"

	u "covergen/internal/utils"
)

// Params holds everything needed to draw a single cover.
type Params struct {
	Caption        string
	Width          int
	Height         int
	BarWidthRatio  float64
	BarHeightRatio float64
	BarMargin      int
	TextInset      int
}

// ParamsFromConfig builds render parameters for a caption using the
// configured canvas geometry.
func ParamsFromConfig(cfg u.Config, caption string) Params {
	return Params{
		Caption:        caption,
		Width:          cfg.Cover.Width,
		Height:         cfg.Cover.Height,
		BarWidthRatio:  cfg.Cover.BarWidthRatio,
		BarHeightRatio: cfg.Cover.BarHeightRatio,
		BarMargin:      cfg.Cover.BarMargin,
		TextInset:      cfg.Cover.TextInset,
	}
}

// Cover draws a playlist cover and returns the encoded PNG: a color-hashed
// background, a black caption bar anchored to the bottom-right, and the
// caption in white inside the bar. A nil face falls back to the built-in
// bitmap font, which is only acceptable in tests.
func Cover(face font.Face, p Params) ([]byte, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("invalid canvas size %dx%d", p.Width, p.Height)
	}

	dc := gg.NewContext(p.Width, p.Height)

	dc.SetColor(CaptionColor(p.Caption))
	dc.Clear()

	barW := float64(p.Width) * p.BarWidthRatio
	barH := float64(p.Height) * p.BarHeightRatio
	barX := float64(p.Width) - barW
	barY := float64(p.Height) - barH - float64(p.BarMargin)

	dc.SetRGB(0, 0, 0)
	dc.DrawRectangle(barX, barY, barW, barH)
	dc.Fill()

	if face != nil {
		dc.SetFontFace(face)
	}
	dc.SetRGB(1, 1, 1)
	dc.DrawStringAnchored(p.Caption, barX+float64(p.TextInset), barY+barH/2, 0, 0.5)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// LoadFont reads and parses a TTF font from disk.
func LoadFont(path string) (*truetype.Font, error) {
	if path == "" {
		return nil, fmt.Errorf("font path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font %s: %w", path, err)
	}
	fnt, err := truetype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", path, err)
	}
	return fnt, nil
}

// NewFace builds a font face at the given point size. Faces are not safe
// for concurrent use; callers must not share one across goroutines.
func NewFace(fnt *truetype.Font, points float64) font.Face {
	return truetype.NewFace(fnt, &truetype.Options{
		Size:    points,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}
