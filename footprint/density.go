// Package footprint implements the density → mask → polygon → crop
// subsystem (§4.3): it turns a point-count raster into a validity mask,
// vectorizes the mask into a simplified polygon, and crops the source
// cloud to that polygon to produce the "clean cloud" clean-mode inputs
// are re-derived from.
package footprint

import (
	"context"
	"fmt"

	"github.com/sitecairn/lidarterrain/geo"
	"github.com/sitecairn/lidarterrain/pointcloud"
	"github.com/sitecairn/lidarterrain/raster"
)

// DensityBasis selects which returns contribute to the per-cell point
// count. §9's Open Question is resolved to AllReturns by default (see
// DESIGN.md); GroundClassified runs ground classification first and
// counts only the classified cloud.
type DensityBasis string

const (
	AllReturns        DensityBasis = "all_returns"
	GroundClassified  DensityBasis = "ground_classified"
)

// DensityParams controls density raster computation.
type DensityParams struct {
	Basis DensityBasis
}

// Density computes a per-cell point-count raster over grid from c, using
// agg=count so every valid cell holds the number of contributing returns
// (never geo.NoData unless the engine itself reports an empty cell — a
// density raster's "no points" cell is legitimately 0, not NoData). When
// params.Basis is GroundClassified, c is ground-classified first so the
// count reflects the classified cloud rather than every raw return.
func Density(ctx context.Context, c *pointcloud.Cloud, eng pointcloud.Engine, grid geo.Grid, params DensityParams) (*raster.Grid, error) {
	cloud := c
	if params.Basis == GroundClassified {
		classified, err := pointcloud.GroundClassify(ctx, c, eng, pointcloud.DefaultClassifyParams())
		if err != nil {
			return nil, fmt.Errorf("footprint: ground-classifying for density basis: %w", err)
		}
		cloud = classified
	}
	agg := pointcloud.Aggregator{Kind: pointcloud.AggregatorCount}
	g, err := pointcloud.Rasterize(ctx, cloud, eng, grid, agg)
	if err != nil {
		return nil, fmt.Errorf("footprint: %w", err)
	}
	// Count rasters never carry NoData for "zero points"; only cells the
	// engine could not address (outside the cloud's extent entirely) do.
	for row := 0; row < g.H; row++ {
		for col := 0; col < g.W; col++ {
			if g.IsNoData(row, col) {
				continue
			}
			if g.At(row, col) < 0 {
				g.Set(row, col, 0)
			}
		}
	}
	return g, nil
}
