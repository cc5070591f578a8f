package render

import (
	"image/color"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Saturation and lightness candidates for caption colors. Keeping three
// values per channel yields colors that stay readable behind white text.
var (
	captionSaturations = []float64{0.35, 0.5, 0.65}
	captionLightnesses = []float64{0.35, 0.5, 0.65}
)

// bkdrHash is the classic BKDR string hash, bounded so repeated hashing of
// long captions cannot overflow into degenerate hue buckets. The trailing
// sentinel rune keeps single-character captions from collapsing to tiny
// hash values.
func bkdrHash(s string) uint64 {
	const (
		seed       = 131
		seed2      = 137
		maxSafeInt = uint64(9007199254740991)
	)
	var h uint64
	for _, r := range s + "x" {
		if h > maxSafeInt/seed2 {
			h /= seed2
		}
		h = h*seed + uint64(r)
	}
	return h
}

// CaptionColor derives a deterministic background color from the caption
// text: the hash picks a hue in [0,359) plus one saturation and one
// lightness candidate, converted to RGB via HSL.
func CaptionColor(caption string) color.Color {
	h := bkdrHash(caption)

	hue := float64(h % 359)
	h /= 359
	sat := captionSaturations[h%uint64(len(captionSaturations))]
	h /= uint64(len(captionSaturations))
	light := captionLightnesses[h%uint64(len(captionLightnesses))]

	return colorful.Hsl(hue, sat, light)
}
