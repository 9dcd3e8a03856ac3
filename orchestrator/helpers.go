package orchestrator

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/ctessum/geom"

	"github.com/sitecairn/lidarterrain/footprint"
	"github.com/sitecairn/lidarterrain/pointcloud"
	"github.com/sitecairn/lidarterrain/render"
)

var errUnsupportedHydrate = errors.New("orchestrator: node kind has no hydrate path")

// productKindFor maps a terminal raster Kind onto the render package's
// own enum, the two deliberately kept separate (render.ProductKind only
// names the 11 colormap-dispatchable products; Kind also names the
// non-raster intermediate nodes).
func productKindFor(k Kind) render.ProductKind {
	switch k {
	case KindDTM:
		return render.ProductDTM
	case KindDSM:
		return render.ProductDSM
	case KindCHM:
		return render.ProductCHM
	case KindSlope:
		return render.ProductSlope
	case KindAspect:
		return render.ProductAspect
	case KindHillshade:
		return render.ProductHillshade
	case KindSVF:
		return render.ProductSVF
	case KindLRM:
		return render.ProductLRM
	case KindTPI:
		return render.ProductTPI
	case KindTRI:
		return render.ProductTRI
	case KindRoughness:
		return render.ProductRoughness
	default:
		return render.ProductDTM
	}
}

func footprintToGeoJSON(p geom.Polygon) ([]byte, error) {
	return footprint.ToGeoJSON(p)
}

// atomicWrite writes b to path via a temp-file-plus-rename, the same
// convention raster.Write and writeManifest use.
func atomicWrite(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// copyCloud stages c's backing file at dest, atomically, so a cropped
// cloud survives under the canonical output layout rather than in
// whatever scratch location the point-processing engine wrote it to.
func copyCloud(c *pointcloud.Cloud, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	src, err := os.Open(c.Path)
	if err != nil {
		return err
	}
	defer src.Close()

	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}
