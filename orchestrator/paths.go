package orchestrator

import (
	"fmt"
	"path/filepath"
)

// suffix returns "" for standard mode and "_clean" for clean mode, the
// basename discriminator §6.3 documents for clean-mode re-entry outputs.
func suffix(mode string) string {
	if mode == "clean" {
		return "_clean"
	}
	return ""
}

func basename(region, mode string) string {
	return region + suffix(mode)
}

// rasterPath returns the canonical GeoTIFF path for kind under root's
// per-region layout (§6.3's rasters/<product>/*.tif, with density/mask
// given their own documented subdirectories).
func rasterPath(root, region string, kind Kind, mode string) string {
	name := basename(region, mode)
	switch kind {
	case KindDensity:
		return filepath.Join(root, region, "density", name+"_density.tif")
	case KindMask:
		return filepath.Join(root, region, "density", "masks", name+"_valid_mask.tif")
	default:
		return filepath.Join(root, region, "rasters", string(kind), name+".tif")
	}
}

func footprintPath(root, region, mode string) string {
	return filepath.Join(root, region, "vectors", basename(region, mode)+"_valid_footprint.geojson")
}

func footprintShapefilePath(root, region, mode string) string {
	return filepath.Join(root, region, "vectors", basename(region, mode)+"_valid_footprint.shp")
}

func croppedPath(root, region, mode string) string {
	return filepath.Join(root, region, "cropped", basename(region, mode)+"_cropped.las")
}

func pngDir(root, region string) string {
	return filepath.Join(root, region, "png")
}

func pngProductName(kind Kind, mode string) string {
	return fmt.Sprintf("%s%s", kind, suffix(mode))
}
