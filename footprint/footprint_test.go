package footprint

import (
	"context"
	"os"
	"testing"

	"github.com/sitecairn/lidarterrain/geo"
	"github.com/sitecairn/lidarterrain/pointcloud"
	"github.com/sitecairn/lidarterrain/raster"
)

// recordingEngine implements pointcloud.Engine, recording which cloud path
// Rasterize actually ran on so tests can confirm Density picked the right
// basis cloud.
type recordingEngine struct {
	classifyCalls   int
	rasterizedPaths []string
}

func (e *recordingEngine) Discover(ctx context.Context, path string) (pointcloud.Discovery, error) {
	return pointcloud.Discovery{}, nil
}

func (e *recordingEngine) GroundClassify(ctx context.Context, path string, p pointcloud.ClassifyParams) (string, error) {
	e.classifyCalls++
	return path + ".ground", nil
}

func (e *recordingEngine) Rasterize(ctx context.Context, path string, g geo.Grid, a pointcloud.Aggregator) (pointcloud.RasterBuffer, error) {
	e.rasterizedPaths = append(e.rasterizedPaths, path)
	return pointcloud.RasterBuffer{Grid: g, Values: make([]float64, g.W*g.H)}, nil
}

func (e *recordingEngine) ClipByPolygon(ctx context.Context, path string, poly []byte) (string, error) {
	return path, nil
}

func testGrid(w, h int) geo.Grid {
	crs, _ := geo.NewCRSFromEPSG(4326)
	return geo.Grid{OriginX: 0, OriginY: float64(h), Sx: 1, Sy: 1, W: w, H: h, CRS: crs}
}

func TestMaskThreshold(t *testing.T) {
	g := testGrid(3, 3)
	density := raster.NewGrid(g, raster.Float32)
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			if row == 1 {
				density.Set(row, col, 5) // above threshold
			} else {
				density.Set(row, col, 0)
			}
		}
	}
	mask, err := Mask(density, DefaultDensityThreshold)
	if err != nil {
		t.Fatal(err)
	}
	for col := 0; col < 3; col++ {
		if mask.At(1, col) != 1 {
			t.Errorf("expected row 1 valid, got %v", mask.At(1, col))
		}
		if mask.At(0, col) != 0 {
			t.Errorf("expected row 0 invalid, got %v", mask.At(0, col))
		}
	}
	cov := Coverage(mask)
	if cov < 0.3 || cov > 0.4 {
		t.Errorf("expected coverage near 1/3, got %v", cov)
	}
}

func TestResolveThresholdEmptyExprUsesFallback(t *testing.T) {
	g := testGrid(2, 2)
	density := raster.NewGrid(g, raster.Float32)
	v, err := ResolveThreshold("", density, 2.0)
	if err != nil {
		t.Fatal(err)
	}
	if v != 2.0 {
		t.Errorf("expected fallback 2.0, got %v", v)
	}
}

func TestResolveThresholdEvaluatesMeanExpression(t *testing.T) {
	g := testGrid(2, 2)
	density := raster.NewGrid(g, raster.Float32)
	density.Set(0, 0, 2)
	density.Set(0, 1, 4)
	density.Set(1, 0, 6)
	density.Set(1, 1, 8)
	v, err := ResolveThreshold("mean()*0.5", density, 0)
	if err != nil {
		t.Fatal(err)
	}
	if v != 2.5 {
		t.Errorf("expected mean(2,4,6,8)*0.5 = 2.5, got %v", v)
	}
}

func TestResolveThresholdRejectsBadExpression(t *testing.T) {
	g := testGrid(2, 2)
	density := raster.NewGrid(g, raster.Float32)
	if _, err := ResolveThreshold("not a valid expr (", density, 0); err == nil {
		t.Fatal("expected a parse error for malformed expression")
	}
}

func TestPolygonizeEmptyFootprint(t *testing.T) {
	g := testGrid(3, 3)
	mask := raster.NewGrid(g, raster.Byte)
	mask.Fill(0)
	_, err := Polygonize(mask, DefaultPolygonizeParams())
	if err != ErrEmptyFootprint {
		t.Fatalf("expected ErrEmptyFootprint, got %v", err)
	}
}

func TestPolygonizeProducesContainingPolygon(t *testing.T) {
	g := testGrid(10, 10)
	mask := raster.NewGrid(g, raster.Byte)
	mask.Fill(0)
	for row := 2; row < 8; row++ {
		for col := 2; col < 8; col++ {
			mask.Set(row, col, 1)
		}
	}
	poly, err := Polygonize(mask, PolygonizeParams{SimplifyTolerance: 0.01, MinArea: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(poly) == 0 {
		t.Fatal("expected a non-empty polygon")
	}
	if _, err := ToGeoJSON(poly); err != nil {
		t.Errorf("expected polygon to encode as GeoJSON: %v", err)
	}
}

func TestToShapefileWritesSidecarFiles(t *testing.T) {
	g := testGrid(10, 10)
	mask := raster.NewGrid(g, raster.Byte)
	mask.Fill(0)
	for row := 2; row < 8; row++ {
		for col := 2; col < 8; col++ {
			mask.Set(row, col, 1)
		}
	}
	poly, err := Polygonize(mask, PolygonizeParams{SimplifyTolerance: 0.01, MinArea: 1})
	if err != nil {
		t.Fatal(err)
	}
	path := t.TempDir() + "/footprint.shp"
	if err := ToShapefile(poly, path); err != nil {
		t.Fatalf("ToShapefile failed: %v", err)
	}
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		p := path[:len(path)-len(".shp")] + ext
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected shapefile sidecar %s: %v", p, err)
		}
	}
}

func TestPolygonizeDropsBelowMinArea(t *testing.T) {
	g := testGrid(10, 10)
	mask := raster.NewGrid(g, raster.Byte)
	mask.Fill(0)
	mask.Set(0, 0, 1) // single-cell speck: area 1 m^2
	_, err := Polygonize(mask, PolygonizeParams{SimplifyTolerance: 0.01, MinArea: 100})
	if err != ErrFootprintDegenerate {
		t.Fatalf("expected ErrFootprintDegenerate, got %v", err)
	}
}

func TestDensityAllReturnsSkipsGroundClassification(t *testing.T) {
	path := t.TempDir() + "/cloud.las"
	if err := writeEmptyFile(path); err != nil {
		t.Fatal(err)
	}
	c, err := pointcloud.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	eng := &recordingEngine{}
	g := testGrid(2, 2)
	if _, err := Density(context.Background(), c, eng, g, DensityParams{Basis: AllReturns}); err != nil {
		t.Fatal(err)
	}
	if eng.classifyCalls != 0 {
		t.Errorf("expected no ground classification for all_returns basis, got %d calls", eng.classifyCalls)
	}
	if len(eng.rasterizedPaths) != 1 || eng.rasterizedPaths[0] != path {
		t.Errorf("expected rasterize on the original cloud path, got %v", eng.rasterizedPaths)
	}
}

func TestDensityGroundClassifiedRasterizesClassifiedCloud(t *testing.T) {
	path := t.TempDir() + "/cloud.las"
	if err := writeEmptyFile(path); err != nil {
		t.Fatal(err)
	}
	c, err := pointcloud.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	eng := &recordingEngine{}
	g := testGrid(2, 2)
	if _, err := Density(context.Background(), c, eng, g, DensityParams{Basis: GroundClassified}); err != nil {
		t.Fatal(err)
	}
	if eng.classifyCalls != 1 {
		t.Errorf("expected ground classification to run once, got %d calls", eng.classifyCalls)
	}
	if len(eng.rasterizedPaths) != 1 || eng.rasterizedPaths[0] != path+".ground" {
		t.Errorf("expected rasterize on the ground-classified cloud, got %v", eng.rasterizedPaths)
	}
}

func writeEmptyFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return f.Close()
}
