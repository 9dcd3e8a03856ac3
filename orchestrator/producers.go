package orchestrator

import (
	"context"

	"github.com/sitecairn/lidarterrain/derive"
	"github.com/sitecairn/lidarterrain/footprint"
	"github.com/sitecairn/lidarterrain/terrain"
	"github.com/sitecairn/lidarterrain/visualize"
)

// Each producer below is the registry's Producer for one Kind: it reads
// whatever upstream rasters/cloud it depends on out of bc, runs the pure
// package-level function that already implements the §4 algorithm, and
// stashes its result back into bc for downstream producers to consume.
// The orchestrator itself never duplicates terrain/derive/visualize/
// render logic — it only sequences calls into those packages. ctx
// carries this node's own timeout deadline (runNode's), never bc's,
// since bc is shared by every node running concurrently in the same
// level.

func produceDensity(ctx context.Context, bc *buildContext) error {
	g, err := footprint.Density(ctx, bc.cloud, bc.engine, bc.grid, bc.params.Density)
	if err != nil {
		return kindError(KindDensity, ErrDependencyFailed, "computing density raster", err)
	}
	bc.setRaster(KindDensity, g)
	return nil
}

func produceMask(ctx context.Context, bc *buildContext) error {
	density := bc.getRaster(KindDensity)
	threshold := bc.params.MaskThreshold
	if threshold <= 0 {
		threshold = footprint.DefaultDensityThreshold
	}
	resolved, err := footprint.ResolveThreshold(bc.params.MaskThresholdExpr, density, threshold)
	if err != nil {
		return kindError(KindMask, ErrDependencyFailed, "resolving mask threshold expression", err)
	}
	g, err := footprint.Mask(density, resolved)
	if err != nil {
		return kindError(KindMask, ErrDependencyFailed, "computing validity mask", err)
	}
	bc.setRaster(KindMask, g)
	return nil
}

func produceFootprint(ctx context.Context, bc *buildContext) error {
	mask := bc.getRaster(KindMask)
	p, err := footprint.Polygonize(mask, bc.params.Polygonize)
	if err != nil {
		return kindError(KindFootprint, ErrEmptyFootprint, "vectorizing validity mask", err)
	}
	bc.setPolygon(p)
	return nil
}

func produceCropped(ctx context.Context, bc *buildContext) error {
	polygon := bc.getPolygon()
	cropped, err := footprint.Crop(ctx, bc.cloud, bc.engine, polygon)
	if err != nil {
		return kindError(KindCropped, ErrDependencyFailed, "cropping cloud to footprint", err)
	}
	bc.setCropped(cropped)
	return nil
}

func produceDTM(ctx context.Context, bc *buildContext) error {
	g, err := terrain.DTM(ctx, bc.cloud, bc.engine, bc.grid, bc.params.DTM)
	if err != nil {
		return kindError(KindDTM, ErrDependencyFailed, "computing DTM", err)
	}
	bc.setRaster(KindDTM, g)
	return nil
}

func produceDSM(ctx context.Context, bc *buildContext) error {
	g, err := terrain.DSM(ctx, bc.cloud, bc.engine, bc.grid)
	if err != nil {
		return kindError(KindDSM, ErrDependencyFailed, "computing DSM", err)
	}
	bc.setRaster(KindDSM, g)
	return nil
}

func produceCHM(ctx context.Context, bc *buildContext) error {
	dsm, dtm := bc.getRaster(KindDSM), bc.getRaster(KindDTM)
	g, err := terrain.CHM(dsm, dtm)
	if err != nil {
		return kindError(KindCHM, ErrDependencyFailed, "computing CHM", err)
	}
	bc.setRaster(KindCHM, g)
	return nil
}

func produceSlope(ctx context.Context, bc *buildContext) error {
	bc.setRaster(KindSlope, derive.Slope(bc.getRaster(KindDTM)))
	return nil
}

func produceAspect(ctx context.Context, bc *buildContext) error {
	bc.setRaster(KindAspect, derive.Aspect(bc.getRaster(KindDTM), derive.FlatSlopeEpsilonDegrees))
	return nil
}

func produceHillshade(ctx context.Context, bc *buildContext) error {
	params := bc.params.Hillshade
	if params.AltitudeDegrees == 0 && params.AzimuthDegrees == 0 && params.ZFactor == 0 {
		params = derive.DefaultHillshadeParams()
	}
	bc.setRaster(KindHillshade, derive.Hillshade(bc.getRaster(KindDTM), params))
	return nil
}

func produceTPI(ctx context.Context, bc *buildContext) error {
	params := bc.params.TPI
	bc.setRaster(KindTPI, derive.TPI(bc.getRaster(KindDTM), params))
	return nil
}

func produceTRI(ctx context.Context, bc *buildContext) error {
	bc.setRaster(KindTRI, derive.TRI(bc.getRaster(KindDTM)))
	return nil
}

func produceRoughness(ctx context.Context, bc *buildContext) error {
	bc.setRaster(KindRoughness, derive.Roughness(bc.getRaster(KindDTM)))
	return nil
}

func produceSVF(ctx context.Context, bc *buildContext) error {
	params := bc.params.SVF
	if params.NumDirections == 0 {
		params = visualize.DefaultSVFParams()
	}
	bc.setRaster(KindSVF, visualize.SVF(bc.getRaster(KindDTM), params))
	return nil
}

func produceLRM(ctx context.Context, bc *buildContext) error {
	params := bc.params.LRM
	bc.setRaster(KindLRM, visualize.LRM(bc.getRaster(KindDTM), params))
	return nil
}
