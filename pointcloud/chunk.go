package pointcloud

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"

	"github.com/sitecairn/lidarterrain/geo"
)

// Chunks partitions c's discovered bounds into chunkSizeMeters square
// tiles and runs fn over each tile's cropped cloud, bounded to at most
// maxConcurrency tiles in flight at once via golang.org/x/sync/errgroup
// — the bounded-memory iteration path a cloud too large to ground-
// classify or rasterize in one engine call needs, since Cloud never
// materializes its own points (package doc). A tile the engine crops to
// zero points (ErrEmptyOutput) is skipped rather than treated as a
// failure, since an empty corner tile is an expected outcome of gridding
// a non-rectangular survey extent.
func (c *Cloud) Chunks(ctx context.Context, eng Engine, chunkSizeMeters float64, maxConcurrency int, fn func(ctx context.Context, chunk *Cloud) error) error {
	if chunkSizeMeters <= 0 {
		return fmt.Errorf("pointcloud: chunk size must be positive, got %v", chunkSizeMeters)
	}
	d, err := c.BoundsAndCRS(ctx, eng)
	if err != nil {
		return err
	}
	if maxConcurrency <= 0 {
		maxConcurrency = runtime.GOMAXPROCS(-1)
	}

	tiles := tileBounds(d.Bounds, chunkSizeMeters)
	if len(tiles) == 0 {
		return nil
	}

	var g errgroup.Group
	sem := make(chan struct{}, maxConcurrency)
	for _, tile := range tiles {
		tile := tile
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			polygon, err := tilePolygonGeoJSON(tile, d.CRS)
			if err != nil {
				return err
			}
			outPath, err := eng.ClipByPolygon(ctx, c.Path, polygon)
			if err != nil {
				if err == ErrEmptyOutput {
					return nil
				}
				return fmt.Errorf("pointcloud: chunking %s: %w", c.Path, err)
			}
			return fn(ctx, withDerivedPath(outPath))
		})
	}
	return g.Wait()
}

// tileBounds divides bounds into a row-major grid of axis-aligned tiles
// no larger than size on a side, the last row/column of which may be
// smaller when size doesn't evenly divide the extent.
func tileBounds(bounds geo.BoundingBox, size float64) []geo.BoundingBox {
	if bounds.IsEmpty() {
		return nil
	}
	var tiles []geo.BoundingBox
	for y := bounds.MinY; y < bounds.MaxY; y += size {
		top := y + size
		if top > bounds.MaxY {
			top = bounds.MaxY
		}
		for x := bounds.MinX; x < bounds.MaxX; x += size {
			right := x + size
			if right > bounds.MaxX {
				right = bounds.MaxX
			}
			tiles = append(tiles, geo.BoundingBox{MinX: x, MinY: y, MaxX: right, MaxY: top, CRS: bounds.CRS})
		}
	}
	return tiles
}

// tilePolygonGeoJSON encodes b as the closed-ring GeoJSON polygon
// Engine.ClipByPolygon expects, the same footprint.ToGeoJSON encoding
// convention applied to a rectangular tile instead of a vectorized mask.
func tilePolygonGeoJSON(b geo.BoundingBox, crs geo.CRS) ([]byte, error) {
	ring := []geom.Point{
		{X: b.MinX, Y: b.MinY},
		{X: b.MaxX, Y: b.MinY},
		{X: b.MaxX, Y: b.MaxY},
		{X: b.MinX, Y: b.MaxY},
		{X: b.MinX, Y: b.MinY},
	}
	return geojson.Encode(geom.Polygon{ring})
}
