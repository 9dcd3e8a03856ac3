// Package terrain computes the elevation products (§4.4): DTM, DSM, and
// CHM. DTM production additionally runs hole filling, a distance-bounded
// inverse-distance inpaint that never crosses the valid region's outer
// boundary.
package terrain

import (
	"context"
	"fmt"

	"github.com/sitecairn/lidarterrain/geo"
	"github.com/sitecairn/lidarterrain/pointcloud"
	"github.com/sitecairn/lidarterrain/raster"
)

// DTMParams controls DTM production.
type DTMParams struct {
	Classify pointcloud.ClassifyParams
	Aggregator pointcloud.Aggregator
	HoleFill HoleFillParams
}

// DefaultDTMParams returns the SMRF-classification, IDW-rasterized,
// default-hole-fill configuration.
func DefaultDTMParams() DTMParams {
	return DTMParams{
		Classify:   pointcloud.DefaultClassifyParams(),
		Aggregator: pointcloud.Aggregator{Kind: pointcloud.AggregatorIDW, IDWPower: 2.0, IDWWindow: 4},
		HoleFill:   DefaultHoleFillParams(),
	}
}

// DTM produces a ground-only elevation raster: ground_classify, then
// rasterize, then hole fill (§4.4).
func DTM(ctx context.Context, c *pointcloud.Cloud, eng pointcloud.Engine, grid geo.Grid, params DTMParams) (*raster.Grid, error) {
	ground, err := pointcloud.GroundClassify(ctx, c, eng, params.Classify)
	if err != nil {
		return nil, fmt.Errorf("terrain: dependency_failed: ground classify: %w", err)
	}
	g, err := pointcloud.Rasterize(ctx, ground, eng, grid, params.Aggregator)
	if err != nil {
		return nil, fmt.Errorf("terrain: dependency_failed: rasterize dtm: %w", err)
	}
	FillHoles(g, params.HoleFill)
	return g, nil
}

// DSM produces the max-aggregated surface raster over all returns (no
// first-return filtering) at the same grid as DTM. Cells with no
// returns stay NoData — DSM is never hole-filled (§4.4: hole filling
// applies to DTM only).
func DSM(ctx context.Context, c *pointcloud.Cloud, eng pointcloud.Engine, grid geo.Grid) (*raster.Grid, error) {
	agg := pointcloud.Aggregator{Kind: pointcloud.AggregatorMax}
	g, err := pointcloud.Rasterize(ctx, c, eng, grid, agg)
	if err != nil {
		return nil, fmt.Errorf("terrain: dependency_failed: rasterize dsm: %w", err)
	}
	return g, nil
}

// CHM computes max(DSM-DTM, 0) with NoData propagation, per §3's
// ElevationRaster invariant. dsm and dtm must be pixel-aligned.
func CHM(dsm, dtm *raster.Grid) (*raster.Grid, error) {
	if !dsm.Grid.AlignedWith(dtm.Grid) {
		return nil, fmt.Errorf("terrain: invariant_violation: dsm/dtm grid mismatch")
	}
	out, err := raster.BinaryOp(dsm, dtm, func(a, b float64) float64 {
		v := a - b
		if v < 0 {
			return 0
		}
		return v
	})
	if err != nil {
		return nil, fmt.Errorf("terrain: %w", err)
	}
	return out, nil
}
