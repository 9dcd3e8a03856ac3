package footprint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ctessum/geom"

	"github.com/sitecairn/lidarterrain/geo"
	"github.com/sitecairn/lidarterrain/pointcloud"
	"github.com/sitecairn/lidarterrain/raster"
)

// boundsIndex buckets a polygon's rings by their bounding box into a
// uniform grid so ring-vs-ring and point-vs-ring tests during Crop's
// containment check only visit nearby rings, avoiding the O(points ×
// rings) scan a naive implementation would do. ctessum/geom ships an
// index/rtree package, but the version vendored alongside this module's
// teacher only carries its internal bounds-math helpers (geom.go) — the
// public Rtree type is not part of that vendored subset, so this module
// builds its own small bounds-bucket index on top of the confirmed
// geom.Bounds API instead of guessing at an unverified rtree method
// signature (see DESIGN.md).
type boundsIndex struct {
	cellSize float64
	buckets  map[[2]int][]int // bucket key -> ring indices
	rings    [][]geom.Point
	bounds   []*geom.Bounds
}

func newBoundsIndex(p geom.Polygon) *boundsIndex {
	idx := &boundsIndex{buckets: map[[2]int][]int{}, rings: p}
	overall := p.Bounds()
	span := overall.Max.X - overall.Min.X
	if h := overall.Max.Y - overall.Min.Y; h > span {
		span = h
	}
	idx.cellSize = span / 32
	if idx.cellSize <= 0 {
		idx.cellSize = 1
	}
	for i, ring := range p {
		b := geom.NewBounds()
		for _, pt := range ring {
			b.Extend(geom.NewBoundsPoint(pt))
		}
		idx.bounds = append(idx.bounds, b)
		for bx := idx.bucket(b.Min.X); bx <= idx.bucket(b.Max.X); bx++ {
			for by := idx.bucket(b.Min.Y); by <= idx.bucket(b.Max.Y); by++ {
				key := [2]int{bx, by}
				idx.buckets[key] = append(idx.buckets[key], i)
			}
		}
	}
	return idx
}

func (idx *boundsIndex) bucket(v float64) int {
	return int(v / idx.cellSize)
}

// candidateRings returns the ring indices whose bucket covers pt; Within
// is checked against just these rings, not the whole polygon.
func (idx *boundsIndex) candidateRings(pt geom.Point) []int {
	key := [2]int{idx.bucket(pt.X), idx.bucket(pt.Y)}
	return idx.buckets[key]
}

// Crop crops c to footprint's polygon via eng.ClipByPolygon, treating
// ErrEmptyOutput the same as the point-cloud package does: a recoverable
// condition, not a fatal error. The caller is responsible for deciding
// whether an empty clean cloud degrades the clean branch or aborts it
// (§4.3 / §9 degrade-to-standard option).
func Crop(ctx context.Context, c *pointcloud.Cloud, eng pointcloud.Engine, footprint geom.Polygon) (*pointcloud.Cloud, error) {
	geoJSON, err := ToGeoJSON(footprint)
	if err != nil {
		return nil, fmt.Errorf("footprint: encoding polygon: %w", err)
	}
	cropped, err := pointcloud.ClipByPolygon(ctx, c, eng, json.RawMessage(geoJSON))
	if err != nil {
		if errors.Is(err, pointcloud.ErrEmptyOutput) {
			return nil, pointcloud.ErrEmptyOutput
		}
		return nil, err
	}
	return cropped, nil
}

// ApplyToRaster enforces §3's clean-mode invariant — "any clean-mode
// raster's NoData region is a superset of the polygon's complement" — by
// setting every cell whose center falls outside footprint to geo.NoData.
// Cells already NoData are left alone. The boundsIndex keeps this a
// near-constant-time lookup per cell instead of an O(cells x rings) scan.
func ApplyToRaster(g *raster.Grid, footprint geom.Polygon) {
	idx := newBoundsIndex(footprint)
	for row := 0; row < g.H; row++ {
		for col := 0; col < g.W; col++ {
			if g.IsNoData(row, col) {
				continue
			}
			center := g.Grid.PixelToWorld(col, row)
			pt := geom.Point{X: center.X + g.Sx/2, Y: center.Y - g.Sy/2}
			if !idx.within(pt, footprint) {
				g.Set(row, col, float64(geo.NoData))
			}
		}
	}
}

// within reports whether pt lies inside (or on the edge of) footprint,
// consulting only the rings whose bucket could plausibly contain pt.
func (idx *boundsIndex) within(pt geom.Point, footprint geom.Polygon) bool {
	candidates := idx.candidateRings(pt)
	if len(candidates) == 0 {
		return false
	}
	sub := make(geom.Polygon, 0, len(candidates))
	for _, i := range candidates {
		sub = append(sub, footprint[i])
	}
	return pt.Within(sub) != geom.Outside
}
