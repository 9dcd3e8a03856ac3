// Package raster implements georeferenced raster I/O and pixelwise
// arithmetic. Disk encoding/decoding is delegated to GDAL via
// github.com/airbusgeo/godal; in-memory band storage is a
// github.com/ctessum/sparse.DenseArray, so every other package in this
// module manipulates bands as plain float64 arrays and never touches a
// GDAL handle directly.
package raster

import (
	"fmt"

	"github.com/ctessum/sparse"
	"github.com/sitecairn/lidarterrain/geo"
)

// Dtype enumerates the band pixel types this package round-trips.
type Dtype int

const (
	Float32 Dtype = iota
	Byte
	UInt16
)

// Grid is a single-band georeferenced raster held in memory. Multi-band
// products (e.g. an RGB-composite hillshade) are represented as a slice
// of Grids sharing one geo.Grid.
type Grid struct {
	geo.Grid
	Dtype Dtype
	Data  *sparse.DenseArray // Shape is always [H, W]; Data.Get(row, col).

	// valid carries per-cell validity for non-Float32 grids, whose pixel
	// range (e.g. a hillshade's 0-255) has no sentinel value left over
	// to mean NoData. nil means every cell is valid. Float32 grids never
	// populate this and rely on the geo.NoData sentinel instead.
	valid []bool
}

// NewGrid allocates a Grid of the given affine geometry, filled with
// NoData (for Float32 bands) or zero (for integer bands).
func NewGrid(g geo.Grid, dtype Dtype) *Grid {
	d := sparse.ZerosDense(g.H, g.W)
	if dtype == Float32 {
		for i := range d.Elements {
			d.Elements[i] = float64(geo.NoData)
		}
	}
	return &Grid{Grid: g, Dtype: dtype, Data: d}
}

// MarkNoData flags (row, col) as unevaluated on a non-Float32 grid, so
// IsNoData, downstream normalization, and the alpha channel of a
// rendered PNG all treat it as background regardless of whatever
// placeholder value was written there. A no-op on Float32 grids, which
// signal NoData through the sentinel value itself.
func (g *Grid) MarkNoData(row, col int) {
	if g.Dtype == Float32 {
		return
	}
	if g.valid == nil {
		g.valid = make([]bool, g.H*g.W)
		for i := range g.valid {
			g.valid[i] = true
		}
	}
	g.valid[row*g.W+col] = false
}

// At returns the value at (row, col).
func (g *Grid) At(row, col int) float64 {
	return g.Data.Get(row, col)
}

// Set assigns the value at (row, col).
func (g *Grid) Set(row, col int, v float64) {
	g.Data.Set(v, row, col)
}

// IsNoData reports whether the cell at (row, col) is NoData: the
// geo.NoData sentinel for Float32 grids, or an explicit MarkNoData flag
// for Byte/UInt16 grids (whose own pixel range has no spare sentinel
// value).
func (g *Grid) IsNoData(row, col int) bool {
	if g.Dtype != Float32 {
		if g.valid == nil {
			return false
		}
		return !g.valid[row*g.W+col]
	}
	return geo.IsNoData(float32(g.At(row, col)))
}

// InBounds reports whether (row, col) is a valid index into g.
func (g *Grid) InBounds(row, col int) bool {
	return row >= 0 && row < g.H && col >= 0 && col < g.W
}

// Fill sets every cell to v.
func (g *Grid) Fill(v float64) {
	for i := range g.Data.Elements {
		g.Data.Elements[i] = v
	}
}

// Clone returns a deep copy of g.
func (g *Grid) Clone() *Grid {
	out := &Grid{Grid: g.Grid, Dtype: g.Dtype, Data: sparse.ZerosDense(g.H, g.W)}
	copy(out.Data.Elements, g.Data.Elements)
	if g.valid != nil {
		out.valid = append([]bool(nil), g.valid...)
	}
	return out
}

// ValidCount returns the number of non-NoData cells, as IsNoData defines
// them for g's Dtype.
func (g *Grid) ValidCount() int {
	n := 0
	for row := 0; row < g.H; row++ {
		for col := 0; col < g.W; col++ {
			if !g.IsNoData(row, col) {
				n++
			}
		}
	}
	return n
}

// ValidValues returns every non-NoData cell value, for percentile/stat
// computations in render and visualize.
func (g *Grid) ValidValues() []float64 {
	out := make([]float64, 0, len(g.Data.Elements))
	for row := 0; row < g.H; row++ {
		for col := 0; col < g.W; col++ {
			if !g.IsNoData(row, col) {
				out = append(out, g.At(row, col))
			}
		}
	}
	return out
}

func (d Dtype) String() string {
	switch d {
	case Float32:
		return "float32"
	case Byte:
		return "byte"
	case UInt16:
		return "uint16"
	default:
		return fmt.Sprintf("dtype(%d)", int(d))
	}
}
