// Package render turns a terrain or derivative raster.Grid into the
// archaeology-tuned PNG products of §4.8: a pixel-exact "clean" image for
// GIS overlay and a "decorated" image carrying a colorbar, title, and
// summary statistics. Both share one normalization pass per product so
// the percentile-stretch policy table is evaluated exactly once.
package render

import "image/color"

// Colormap maps a value in [0, 1] to an RGB color.
type Colormap func(t float64) color.RGBA

// clampUnit clamps t to [0, 1].
func clampUnit(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// lerp walks a piecewise-linear stop table, the same control-point
// interpolation shape used by every named colormap below.
func lerp(stops [][4]float64, t float64) color.RGBA {
	t = clampUnit(t)
	for i := 0; i < len(stops)-1; i++ {
		a, b := stops[i], stops[i+1]
		if t >= a[0] && t <= b[0] {
			span := b[0] - a[0]
			f := 0.0
			if span > 0 {
				f = (t - a[0]) / span
			}
			r := a[1] + f*(b[1]-a[1])
			g := a[2] + f*(b[2]-a[2])
			bch := a[3] + f*(b[3]-a[3])
			return color.RGBA{R: uint8(r * 255), G: uint8(g * 255), B: uint8(bch * 255), A: 255}
		}
	}
	last := stops[len(stops)-1]
	return color.RGBA{R: uint8(last[1] * 255), G: uint8(last[2] * 255), B: uint8(last[3] * 255), A: 255}
}

// Viridis is a perceptually-uniform sequential colormap (DTM/DSM, §4.8).
func Viridis(t float64) color.RGBA {
	return lerp([][4]float64{
		{0.00, 0.267, 0.005, 0.329},
		{0.25, 0.230, 0.322, 0.545},
		{0.50, 0.128, 0.567, 0.551},
		{0.75, 0.369, 0.789, 0.383},
		{1.00, 0.993, 0.906, 0.144},
	}, t)
}

// Inferno is a perceptually-uniform sequential colormap (Slope, §4.8).
func Inferno(t float64) color.RGBA {
	return lerp([][4]float64{
		{0.00, 0.001, 0.000, 0.014},
		{0.25, 0.258, 0.038, 0.406},
		{0.50, 0.578, 0.148, 0.404},
		{0.75, 0.867, 0.317, 0.227},
		{1.00, 0.988, 1.000, 0.644},
	}, t)
}

// Cividis is a perceptually-uniform sequential colormap (SVF, §4.8).
func Cividis(t float64) color.RGBA {
	return lerp([][4]float64{
		{0.00, 0.000, 0.135, 0.304},
		{0.33, 0.282, 0.310, 0.420},
		{0.66, 0.584, 0.545, 0.404},
		{1.00, 1.000, 0.909, 0.144},
	}, t)
}

// Coolwarm is a diverging colormap (LRM, §4.8); t=0.5 is the neutral midpoint.
func Coolwarm(t float64) color.RGBA {
	return lerp([][4]float64{
		{0.00, 0.230, 0.299, 0.754},
		{0.50, 0.865, 0.865, 0.865},
		{1.00, 0.706, 0.016, 0.150},
	}, t)
}

// GreenSequential is the CHM canopy-height ramp (§4.8).
func GreenSequential(t float64) color.RGBA {
	return lerp([][4]float64{
		{0.0, 0.969, 0.988, 0.961},
		{0.5, 0.455, 0.769, 0.463},
		{1.0, 0.000, 0.267, 0.106},
	}, t)
}

// Grayscale is a linear 0-255 ramp (Hillshade, §4.8).
func Grayscale(t float64) color.RGBA {
	v := uint8(clampUnit(t) * 255)
	return color.RGBA{R: v, G: v, B: v, A: 255}
}

// SequentialStat is the generic percentile-stretched sequential colormap
// used for TPI/TRI/Roughness (§4.8); it reuses Viridis's ramp since the
// spec only requires "sequential", not a distinct named palette.
func SequentialStat(t float64) color.RGBA { return Viridis(t) }

// Cyclic is the aspect colormap: a hue wheel over [0, 1) representing
// 0-360 degrees, so 0 and 1 map to the same color.
func Cyclic(t float64) color.RGBA {
	return lerp([][4]float64{
		{0.00, 0.894, 0.102, 0.110},
		{0.17, 0.996, 0.749, 0.435},
		{0.33, 0.600, 0.847, 0.549},
		{0.50, 0.172, 0.631, 0.678},
		{0.67, 0.192, 0.329, 0.627},
		{0.83, 0.612, 0.153, 0.690},
		{1.00, 0.894, 0.102, 0.110},
	}, t)
}

// FlatAspectGray is the sentinel color for cells Aspect marked flat.
var FlatAspectGray = color.RGBA{R: 160, G: 160, B: 160, A: 255}
