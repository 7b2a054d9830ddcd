package colorfade

import "math"

// Fade curve constants. Gamma runs from 1/gammaFloor at biasedCos 0 to
// 1/(gammaFloor+gammaRange) = 1 at biasedCos 1.
const (
	gammaFloor = 0.1
	gammaRange = 0.9
)

// FadeCurve maps a fade level to the opacity and gamma uniforms of the
// fade shader. Level 0 is fully faded to black, level 1 shows the
// captured content unchanged. Levels outside [0, 1] are clamped.
//
// Opacity falls off quadratically toward level 0 while gamma brightens
// the midtones in the middle of the transition:
//
//	u = 1 - level
//	opacity = 1 - u²
//	gamma = 1 / (0.1 + 0.9·biasedCos(u))
func FadeCurve(level float64) (opacity, gamma float64) {
	u := 1 - clampLevel(level)
	opacity = 1 - u*u
	gamma = 1 / (gammaFloor + BiasedCos(u)*gammaRange)
	return opacity, gamma
}

// BiasedCos is an S-curve of cos(πu) remapped into [0, 1]:
// sign(c)·c²/2 + 1/2 with c = cos(πu). It is 1 at u=0, 1/2 at u=1/2
// and 0 at u=1.
func BiasedCos(u float64) float64 {
	c := math.Cos(math.Pi * u)
	return sign(c)*0.5*c*c + 0.5
}

// sign returns -1, 0 or +1.
func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

// clampLevel clamps level to [0, 1]. NaN is treated as 0.
func clampLevel(level float64) float64 {
	if math.IsNaN(level) {
		return 0
	}
	return min(max(level, 0), 1)
}
