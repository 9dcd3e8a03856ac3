package render

import (
	"fmt"
	"image/color"
)

// gridPalette adapts a Colormap lookup table to gonum/plot's
// palette.ColorMap interface (Min/Max/SetMin/SetMax/At), the same shape
// emissions/slca's eioserve server wraps moreland.ExtendedBlackBody() in
// before handing it to plotextra.BrokenColorMap and plotter.ColorBar.
type gridPalette struct {
	cm       Colormap
	min, max float64
}

func (p *gridPalette) Min() float64     { return p.min }
func (p *gridPalette) Max() float64     { return p.max }
func (p *gridPalette) SetMin(v float64) { p.min = v }
func (p *gridPalette) SetMax(v float64) { p.max = v }

func (p *gridPalette) At(v float64) (color.Color, error) {
	if p.max <= p.min {
		return nil, fmt.Errorf("render: palette has zero or negative range [%v, %v]", p.min, p.max)
	}
	t := (v - p.min) / (p.max - p.min)
	return p.cm(t), nil
}

// highlightPalette is a solid-color "overflow" ramp, used as
// plotextra.BrokenColorMap's OverFlow field so the colorbar's top end
// (above its high cut) is drawn in a color no named colormap produces.
// Only the colorbar uses it: raster cells a percentile stretch clipped
// are painted with the ramp's maximum color like any other top cell.
type highlightPalette struct {
	color    color.RGBA
	min, max float64
}

func (p *highlightPalette) Min() float64     { return p.min }
func (p *highlightPalette) Max() float64     { return p.max }
func (p *highlightPalette) SetMin(v float64) { p.min = v }
func (p *highlightPalette) SetMax(v float64) { p.max = v }
func (p *highlightPalette) At(v float64) (color.Color, error) {
	return p.color, nil
}

var clipHighlight = color.RGBA{R: 255, G: 0, B: 255, A: 255} // magenta, never produced by any named colormap
