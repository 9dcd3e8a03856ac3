// Package orchestrator resolves a per-region DAG of raster/vector/PNG
// products (§4.9), deduplicates concurrent builds by fingerprint,
// mediates the clean-mode quality switch, and is the only component
// that writes into the canonical output layout (§6.3).
package orchestrator

// Kind names one node in the product DAG. It covers both intermediate
// artifacts (density, mask, footprint, cropped cloud) and the terminal
// raster/PNG products requested by a build.
type Kind string

const (
	KindDensity   Kind = "density"
	KindMask      Kind = "mask"
	KindFootprint Kind = "footprint"
	KindCropped   Kind = "cropped_cloud"

	KindDTM       Kind = "dtm"
	KindDSM       Kind = "dsm"
	KindCHM       Kind = "chm"
	KindSlope     Kind = "slope"
	KindAspect    Kind = "aspect"
	KindHillshade Kind = "hillshade"
	KindTPI       Kind = "tpi"
	KindTRI       Kind = "tri"
	KindRoughness Kind = "roughness"
	KindSVF       Kind = "svf"
	KindLRM       Kind = "lrm"
)

// terminalRasterKinds lists the terminal raster Kinds: each is written
// to disk as GeoTIFF and also rendered to PNG (density and mask are
// rasters too but are not listed). persistNode uses it to decide which
// nodes get a renderer pass, and terminalOnly to pick the kinds clean
// mode re-enters.
var terminalRasterKinds = map[Kind]bool{
	KindDTM: true, KindDSM: true, KindCHM: true, KindSlope: true,
	KindAspect: true, KindHillshade: true, KindTPI: true, KindTRI: true,
	KindRoughness: true, KindSVF: true, KindLRM: true,
}
