package render

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sitecairn/lidarterrain/geo"
	"github.com/sitecairn/lidarterrain/raster"
)

func testDTM(w, h int) *raster.Grid {
	crs, _ := geo.NewCRSFromEPSG(4326)
	g := geo.Grid{OriginX: 10, OriginY: float64(h) + 10, Sx: 1, Sy: 1, W: w, H: h, CRS: crs}
	out := raster.NewGrid(g, raster.Float32)
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			out.Set(row, col, float64(row*w+col))
		}
	}
	out.Data.Set(float64(geo.NoData), 0, 0)
	return out
}

func TestPolicyForCoversEveryProduct(t *testing.T) {
	kinds := []ProductKind{ProductDTM, ProductDSM, ProductCHM, ProductSlope, ProductAspect,
		ProductHillshade, ProductSVF, ProductLRM, ProductTPI, ProductTRI, ProductRoughness}
	for _, k := range kinds {
		p := PolicyFor(k)
		if p.Colormap == nil || p.Normalize == nil {
			t.Errorf("product %v missing colormap or normalize rule", k)
		}
	}
}

func TestPercentileStretchNoDataStaysInvalid(t *testing.T) {
	g := testDTM(10, 10)
	norm := percentileStretch(2, 98, false)(g, DefaultRenderOptions())
	if norm.Valid[norm.idx(0, 0)] {
		t.Error("expected NoData cell to remain invalid after normalization")
	}
	if !norm.Valid[norm.idx(5, 5)] {
		t.Error("expected interior cell to be valid")
	}
}

func TestCHMClampsNegativeToZero(t *testing.T) {
	g := testDTM(10, 10)
	norm := percentileStretch(2, 98, true)(g, DefaultRenderOptions())
	for i, valid := range norm.Valid {
		if valid && norm.T[i] < 0 {
			t.Errorf("expected clamped normalization >= 0, got %v at index %d", norm.T[i], i)
		}
	}
}

func TestRenderWritesCleanDecoratedAndWorldFile(t *testing.T) {
	dir := t.TempDir()
	g := testDTM(12, 12)
	r := &Renderer{OutDir: dir}
	out, err := r.Render(g, ProductDTM, "dtm", DefaultRenderOptions())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, path := range []string{out.CleanPath, out.DecoratedPath, out.WorldFilePath} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected %s to exist: %v", path, err)
		}
	}
	if filepath.Ext(out.WorldFilePath) != ".pgw" {
		t.Errorf("expected .pgw world file, got %s", out.WorldFilePath)
	}
	if out.Stats.Count == 0 {
		t.Error("expected non-zero valid cell count in summary")
	}
}

func TestCyclicColormapWrapsAt360(t *testing.T) {
	c0 := Cyclic(0)
	c1 := Cyclic(0.999999)
	if c0.R != c1.R || c0.G != c1.G || c0.B != c1.B {
		t.Errorf("expected cyclic colormap to wrap near 1.0 back to its 0.0 color, got %v vs %v", c0, c1)
	}
}
