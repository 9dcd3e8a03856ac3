package pointcloud

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sitecairn/lidarterrain/geo"
)

type fakeEngine struct {
	discovery Discovery
	discErr   error
	classify  func(path string, p ClassifyParams) (string, error)
	rasterize func(path string, g geo.Grid, a Aggregator) (RasterBuffer, error)
	clip      func(path string) (string, error)
}

func (f *fakeEngine) Discover(ctx context.Context, path string) (Discovery, error) {
	return f.discovery, f.discErr
}
func (f *fakeEngine) GroundClassify(ctx context.Context, path string, p ClassifyParams) (string, error) {
	return f.classify(path, p)
}
func (f *fakeEngine) Rasterize(ctx context.Context, path string, g geo.Grid, a Aggregator) (RasterBuffer, error) {
	return f.rasterize(path, g, a)
}
func (f *fakeEngine) ClipByPolygon(ctx context.Context, path string, poly []byte) (string, error) {
	return f.clip(path)
}

func mustTempFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "test.las")
	if err := os.WriteFile(p, []byte("fake-las"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open("/does/not/exist.las"); err == nil {
		t.Error("expected cloud_not_found error")
	}
}

func TestBoundsAndCRSCachesResult(t *testing.T) {
	p := mustTempFile(t)
	c, err := Open(p)
	if err != nil {
		t.Fatal(err)
	}
	crs, _ := geo.NewCRSFromEPSG(4326)
	calls := 0
	eng := &fakeEngine{discovery: Discovery{CRS: crs, PointCount: 100}}
	origDiscover := eng.discovery
	_ = origDiscover
	wrapped := &countingEngine{fakeEngine: eng, calls: &calls}

	if _, err := c.BoundsAndCRS(context.Background(), wrapped); err != nil {
		t.Fatal(err)
	}
	if _, err := c.BoundsAndCRS(context.Background(), wrapped); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("expected BoundsAndCRS to call the engine once, got %d", calls)
	}
}

type countingEngine struct {
	*fakeEngine
	calls *int
}

func (c *countingEngine) Discover(ctx context.Context, path string) (Discovery, error) {
	*c.calls++
	return c.fakeEngine.Discover(ctx, path)
}

func TestBoundsAndCRSRejectsMissingCRS(t *testing.T) {
	p := mustTempFile(t)
	c, _ := Open(p)
	eng := &fakeEngine{discovery: Discovery{}}
	if _, err := c.BoundsAndCRS(context.Background(), eng); err == nil {
		t.Error("expected crs_missing error")
	}
}

func TestGroundClassifyRejectsUnsupportedAlgorithm(t *testing.T) {
	p := mustTempFile(t)
	c, _ := Open(p)
	eng := &fakeEngine{}
	_, err := GroundClassify(context.Background(), c, eng, ClassifyParams{Algorithm: "bogus"})
	if err == nil {
		t.Fatal("expected unsupported_algorithm error")
	}
}

func TestChunksPartitionsBoundsAndRunsEachTile(t *testing.T) {
	p := mustTempFile(t)
	c, _ := Open(p)
	crs, _ := geo.NewCRSFromEPSG(32633)
	bounds := geo.BoundingBox{MinX: 0, MinY: 0, MaxX: 20, MaxY: 20, CRS: crs}
	var mu sync.Mutex
	var clipCalls int
	eng := &fakeEngine{
		discovery: Discovery{CRS: crs, Bounds: bounds, PointCount: 400},
		clip: func(path string) (string, error) {
			mu.Lock()
			clipCalls++
			mu.Unlock()
			return path + ".chunk", nil
		},
	}

	var seen []string
	err := c.Chunks(context.Background(), eng, 10, 2, func(ctx context.Context, chunk *Cloud) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, chunk.Path)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if clipCalls != 4 {
		t.Errorf("expected 4 tiles for a 20x20 bound with a 10-unit chunk size, got %d", clipCalls)
	}
	if len(seen) != 4 {
		t.Errorf("expected fn called once per tile, got %d calls", len(seen))
	}
}

func TestChunksSkipsEmptyTilesWithoutFailing(t *testing.T) {
	p := mustTempFile(t)
	c, _ := Open(p)
	crs, _ := geo.NewCRSFromEPSG(32633)
	bounds := geo.BoundingBox{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10, CRS: crs}
	eng := &fakeEngine{
		discovery: Discovery{CRS: crs, Bounds: bounds},
		clip:      func(path string) (string, error) { return "", ErrEmptyOutput },
	}

	called := false
	err := c.Chunks(context.Background(), eng, 10, 1, func(ctx context.Context, chunk *Cloud) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("expected an empty tile to be skipped, not failed: %v", err)
	}
	if called {
		t.Error("fn should not run for a tile the engine reports empty")
	}
}

func TestClipByPolygonEmptyOutput(t *testing.T) {
	p := mustTempFile(t)
	c, _ := Open(p)
	eng := &fakeEngine{clip: func(path string) (string, error) { return "", ErrEmptyOutput }}
	_, err := ClipByPolygon(context.Background(), c, eng, []byte(`{}`))
	if err != ErrEmptyOutput {
		t.Errorf("expected ErrEmptyOutput, got %v", err)
	}
}
