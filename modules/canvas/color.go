package canvas

import (
	"fmt"
	"math/rand/v2"
)

// Saturation and lightness keep synthesized colors legible on a white canvas.
const (
	colorSaturation = 70
	colorLightness  = 60
)

// RandomColor returns an hsl() color with a random hue. Collisions between
// participants are possible and tolerated.
func RandomColor() string {
	return HueColor(rand.IntN(360))
}

// HueColor formats hue (mod 360) in the participant color band.
func HueColor(hue int) string {
	hue %= 360
	if hue < 0 {
		hue += 360
	}
	return fmt.Sprintf("hsl(%d, %d%%, %d%%)", hue, colorSaturation, colorLightness)
}
