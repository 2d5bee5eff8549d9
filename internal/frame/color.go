package frame

import (
	"fmt"
	"math"
)

// Color derives a stable hex color from an agent ID. The ID is hashed to a
// hue and rendered at 70% saturation and 50% lightness.
//
// The conversion runs in single precision and truncates each channel. The
// explicit float32 conversions prevent fused multiply-add.
func Color(id string) string {
	var hash uint32
	for i := 0; i < len(id); i++ {
		hash = hash*31 + uint32(id[i])
	}

	hue := float32(hash % 360)
	const saturation, lightness float32 = 0.7, 0.5

	c := float32((1 - abs32(2*lightness-1)) * saturation)
	sector := float32(hue / 60)
	x := float32(c * (1 - abs32(float32(math.Mod(float64(sector), 2))-1)))
	m := float32(lightness - c/2)

	var r, g, b float32
	switch h := int(hue); {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	return fmt.Sprintf("#%02x%02x%02x", channel(r, m), channel(g, m), channel(b, m))
}

func channel(v, m float32) uint8 {
	return uint8(float32(float32(v+m) * 255))
}

func abs32(v float32) float32 {
	return float32(math.Abs(float64(v)))
}
