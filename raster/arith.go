package raster

import (
	"fmt"
	"math"

	"github.com/sitecairn/lidarterrain/geo"
)

// Resampler enumerates the resampling kernels accepted by Align. Cubic
// is sampled with the same bilinear kernel as Bilinear; no cubic
// interpolation is implemented.
type Resampler int

const (
	Nearest Resampler = iota
	Bilinear
	Cubic
)

// Align resamples a and b onto a single common grid using resampler,
// returning aligned copies of both. If a and b are already
// pixel-aligned (geo.Grid.AlignedWith), both are returned unchanged.
// NoData propagates: any source cell contributing to a resampled output
// cell through a NoData input causes that output cell to be NoData too.
func Align(a, b *Grid, resampler Resampler) (*Grid, *Grid, error) {
	if a.Grid.AlignedWith(b.Grid) {
		return a, b, nil
	}
	if !a.CRS.Equal(b.CRS) {
		return nil, nil, fmt.Errorf("raster: align: mismatched CRS %s vs %s; reprojection must be explicit", a.CRS, b.CRS)
	}
	// Resample b onto a's grid; a is treated as the reference grid, matching
	// the convention that DTM (built first) defines the common grid for
	// DSM/CHM/derivatives.
	rb := resampleTo(b, a.Grid, resampler)
	return a, rb, nil
}

func resampleTo(src *Grid, target geo.Grid, resampler Resampler) *Grid {
	out := NewGrid(target, src.Dtype)
	for row := 0; row < target.H; row++ {
		for col := 0; col < target.W; col++ {
			wp := target.PixelToWorld(col, row)
			sc, sr := src.WorldToPixel(wp)
			var v float64
			switch resampler {
			case Bilinear, Cubic:
				v = bilinearSample(src, wp)
			default:
				if src.InBounds(sr, sc) {
					v = src.At(sr, sc)
				} else {
					v = float64(geo.NoData)
				}
			}
			out.Set(row, col, v)
		}
	}
	return out
}

func bilinearSample(src *Grid, wp geo.Point) float64 {
	fc := (wp.X - src.OriginX) / src.Sx
	fr := (src.OriginY - wp.Y) / src.Sy
	c0, r0 := int(math.Floor(fc-0.5)), int(math.Floor(fr-0.5))
	dc, dr := fc-0.5-float64(c0), fr-0.5-float64(r0)

	get := func(r, c int) (float64, bool) {
		if !src.InBounds(r, c) {
			return 0, false
		}
		v := src.At(r, c)
		if src.Dtype == Float32 && geo.IsNoData(float32(v)) {
			return 0, false
		}
		return v, true
	}

	v00, ok00 := get(r0, c0)
	v01, ok01 := get(r0, c0+1)
	v10, ok10 := get(r0+1, c0)
	v11, ok11 := get(r0+1, c0+1)
	if !ok00 || !ok01 || !ok10 || !ok11 {
		return float64(geo.NoData)
	}
	top := v00*(1-dc) + v01*dc
	bot := v10*(1-dc) + v11*dc
	return top*(1-dr) + bot*dr
}

// BinaryOp computes a ⊕ b pixelwise via f, with NoData propagation: if
// either input is NoData at a cell, the output is NoData at that cell
// regardless of what f would have computed. a and b must already be
// pixel-aligned (call Align first).
func BinaryOp(a, b *Grid, f func(x, y float64) float64) (*Grid, error) {
	if !a.Grid.AlignedWith(b.Grid) {
		return nil, fmt.Errorf("raster: binary_op: inputs are not pixel-aligned")
	}
	out := NewGrid(a.Grid, Float32)
	for row := 0; row < a.H; row++ {
		for col := 0; col < a.W; col++ {
			if a.IsNoData(row, col) || b.IsNoData(row, col) {
				out.Set(row, col, float64(geo.NoData))
				continue
			}
			out.Set(row, col, f(a.At(row, col), b.At(row, col)))
		}
	}
	return out, nil
}

// Clamp returns a copy of g with every valid cell clamped to [lo, hi].
func Clamp(g *Grid, lo, hi float64) *Grid {
	out := g.Clone()
	for row := 0; row < out.H; row++ {
		for col := 0; col < out.W; col++ {
			if out.IsNoData(row, col) {
				continue
			}
			v := out.At(row, col)
			if v < lo {
				v = lo
			} else if v > hi {
				v = hi
			}
			out.Set(row, col, v)
		}
	}
	return out
}
