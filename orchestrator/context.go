package orchestrator

import (
	"sync"

	"github.com/ctessum/geom"

	"github.com/sitecairn/lidarterrain/derive"
	"github.com/sitecairn/lidarterrain/footprint"
	"github.com/sitecairn/lidarterrain/geo"
	"github.com/sitecairn/lidarterrain/pointcloud"
	"github.com/sitecairn/lidarterrain/raster"
	"github.com/sitecairn/lidarterrain/render"
	"github.com/sitecairn/lidarterrain/terrain"
	"github.com/sitecairn/lidarterrain/visualize"
)

// Params bundles the derivative/renderer parameters an Options value
// carries (§4.9's `derivative_params`/`renderer_params`).
type Params struct {
	DTM          terrain.DTMParams
	Density      footprint.DensityParams
	DensityGrid  geo.Grid
	MaskThreshold float64
	// MaskThresholdExpr, when non-empty, overrides MaskThreshold with a
	// govaluate expression evaluated against the density raster's own
	// distribution (e.g. "mean()*0.5"), per footprint.ResolveThreshold.
	MaskThresholdExpr string
	Polygonize   footprint.PolygonizeParams
	Hillshade    derive.HillshadeParams
	TPI          derive.LocalParams
	SVF          visualize.SVFParams
	LRM          visualize.LRMParams
	Render       render.RenderOptions
}

// DefaultParams returns every sub-producer's documented defaults.
func DefaultParams() Params {
	return Params{
		DTM:           terrain.DefaultDTMParams(),
		Density:       footprint.DensityParams{Basis: footprint.AllReturns},
		MaskThreshold: footprint.DefaultDensityThreshold,
		Polygonize:    footprint.DefaultPolygonizeParams(),
		Hillshade:     derive.DefaultHillshadeParams(),
		TPI:           derive.DefaultTPIParams(),
		SVF:           visualize.DefaultSVFParams(),
		LRM:           visualize.DefaultLRMParams(),
		Render:        render.DefaultRenderOptions(),
	}
}

// buildContext is the shared, mutex-protected scratch space every
// producer in one build() call reads from and writes into — the DAG's
// single "region under construction" state, never shared across regions
// (§5: "across regions, no ordering is guaranteed", i.e. no shared state
// either).
// buildContext carries no context.Context of its own: nodes run
// concurrently off one shared buildContext (different Kinds, same
// region), and a per-node timeout context is threaded in as a plain
// argument by runNode instead, so no two nodes race over a shared
// deadline.
type buildContext struct {
	region string
	outDir string
	grid   geo.Grid
	cloud  *pointcloud.Cloud
	engine pointcloud.Engine
	params Params
	mode   string // "standard" or "clean"

	mu      sync.Mutex
	rasters map[Kind]*raster.Grid
	polygon geom.Polygon
	cropped *pointcloud.Cloud
}

func newBuildContext(region, outDir string, grid geo.Grid, cloud *pointcloud.Cloud, engine pointcloud.Engine, params Params, mode string) *buildContext {
	return &buildContext{
		region: region, outDir: outDir, grid: grid, cloud: cloud, engine: engine,
		params: params, mode: mode, rasters: map[Kind]*raster.Grid{},
	}
}

func (bc *buildContext) setRaster(kind Kind, g *raster.Grid) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.rasters[kind] = g
}

func (bc *buildContext) getRaster(kind Kind) *raster.Grid {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.rasters[kind]
}

func (bc *buildContext) setPolygon(p geom.Polygon) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.polygon = p
}

func (bc *buildContext) getPolygon() geom.Polygon {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.polygon
}

func (bc *buildContext) setCropped(c *pointcloud.Cloud) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.cropped = c
}

func (bc *buildContext) getCropped() *pointcloud.Cloud {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.cropped
}
