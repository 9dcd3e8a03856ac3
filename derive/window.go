// Package derive computes topographic derivatives from a DTM (§4.5):
// slope, aspect, hillshade, TPI, TRI, and roughness. Every derivative
// shares the same fixed-radius window scan, implemented once here as
// Window.
package derive

import (
	"github.com/sitecairn/lidarterrain/raster"
)

// Window holds the neighbor elevations found in a (2r+1)x(2r+1)
// neighborhood around a center cell (center excluded). Complete reports
// whether every cell in the neighborhood was in-bounds and non-NoData —
// the strict policy slope/aspect require. TPI applies acceptWindow
// (Complete in strict mode, ValidFraction otherwise); TRI and roughness
// use whatever valid Values the window holds.
type Window struct {
	Values   []float64 // neighbor values, in scan order, NoData omitted
	Total    int       // cells scanned, including out-of-bounds and NoData
	Complete bool       // every neighborhood cell was in-bounds and valid
}

// NewWindow scans the (2r+1)x(2r+1) neighborhood around (row, col) in g,
// excluding the center cell itself.
func NewWindow(g *raster.Grid, row, col, r int) Window {
	w := Window{Complete: true}
	for dr := -r; dr <= r; dr++ {
		nr := row + dr
		if nr < 0 || nr >= g.H {
			w.Complete = false
			w.Total += 2*r + 1
			continue
		}
		for dc := -r; dc <= r; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			nc := col + dc
			if nc < 0 || nc >= g.W {
				w.Complete = false
				w.Total++
				continue
			}
			w.Total++
			if g.IsNoData(nr, nc) {
				w.Complete = false
				continue
			}
			w.Values = append(w.Values, g.At(nr, nc))
		}
	}
	return w
}

// ValidFraction returns the proportion of scanned cells that were valid.
func (w Window) ValidFraction() float64 {
	if w.Total == 0 {
		return 0
	}
	return float64(len(w.Values)) / float64(w.Total)
}

// Mean returns the mean of the valid neighbor values.
func (w Window) Mean() float64 {
	if len(w.Values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range w.Values {
		sum += v
	}
	return sum / float64(len(w.Values))
}

// MinMax returns the minimum and maximum of the valid neighbor values.
func (w Window) MinMax() (min, max float64) {
	if len(w.Values) == 0 {
		return 0, 0
	}
	min, max = w.Values[0], w.Values[0]
	for _, v := range w.Values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
