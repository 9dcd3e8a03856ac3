package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sitecairn/lidarterrain/geo"
	"github.com/sitecairn/lidarterrain/pointcloud"
)

// fakeEngine is a minimal pointcloud.Engine that never shells out,
// matching the fakeEngine pattern pointcloud_test.go uses for its own
// package tests.
type fakeEngine struct {
	value      float64
	rasterizes int
}

func (f *fakeEngine) Discover(ctx context.Context, path string) (pointcloud.Discovery, error) {
	return pointcloud.Discovery{PointCount: 100}, nil
}

func (f *fakeEngine) GroundClassify(ctx context.Context, path string, p pointcloud.ClassifyParams) (string, error) {
	return path, nil
}

func (f *fakeEngine) Rasterize(ctx context.Context, path string, g geo.Grid, a pointcloud.Aggregator) (pointcloud.RasterBuffer, error) {
	f.rasterizes++
	values := make([]float64, g.W*g.H)
	for i := range values {
		values[i] = f.value
	}
	return pointcloud.RasterBuffer{Grid: g, Values: values}, nil
}

func (f *fakeEngine) ClipByPolygon(ctx context.Context, path string, poly []byte) (string, error) {
	return path, nil
}

// failOnCountEngine wraps fakeEngine but fails any Rasterize call using
// the count aggregator, letting tests force KindDensity specifically to
// fail without touching any other producer's engine calls.
type failOnCountEngine struct {
	fakeEngine
}

func (f *failOnCountEngine) Rasterize(ctx context.Context, path string, g geo.Grid, a pointcloud.Aggregator) (pointcloud.RasterBuffer, error) {
	if a.Kind == pointcloud.AggregatorCount {
		return pointcloud.RasterBuffer{}, fmt.Errorf("forced density rasterize failure")
	}
	return f.fakeEngine.Rasterize(ctx, path, g, a)
}

func testGrid() geo.Grid {
	crs, _ := geo.NewCRSFromEPSG(32633)
	return geo.Grid{OriginX: 0, OriginY: 10, Sx: 1, Sy: 1, W: 4, H: 4, CRS: crs}
}

func mustCloud(t *testing.T) *pointcloud.Cloud {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "region.las")
	if err := os.WriteFile(p, []byte("fake-las"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := pointcloud.Open(p)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestResolveDAGIncludesTransitiveDeps(t *testing.T) {
	order, err := resolveDAG([]Kind{KindCHM})
	if err != nil {
		t.Fatal(err)
	}
	seen := map[Kind]bool{}
	for _, k := range order {
		seen[k] = true
	}
	for _, want := range []Kind{KindDSM, KindDTM, KindCHM} {
		if !seen[want] {
			t.Errorf("expected %s in resolved DAG, got %v", want, order)
		}
	}
	// DTM and DSM must precede CHM in the returned order.
	pos := map[Kind]int{}
	for i, k := range order {
		pos[k] = i
	}
	if pos[KindDTM] > pos[KindCHM] || pos[KindDSM] > pos[KindCHM] {
		t.Errorf("expected dtm/dsm before chm, got order %v", order)
	}
}

func TestResolveDAGUnknownKindIsInvariantViolation(t *testing.T) {
	_, err := resolveDAG([]Kind{Kind("not_a_real_kind")})
	if err == nil {
		t.Fatal("expected an error for an unregistered kind")
	}
}

func TestLevelsGroupsCHMAfterItsDeps(t *testing.T) {
	order, err := resolveDAG([]Kind{KindCHM})
	if err != nil {
		t.Fatal(err)
	}
	waves := levels(order)
	levelOf := func(k Kind) int {
		for i, wave := range waves {
			for _, w := range wave {
				if w == k {
					return i
				}
			}
		}
		return -1
	}
	if levelOf(KindDTM) >= levelOf(KindCHM) || levelOf(KindDSM) >= levelOf(KindCHM) {
		t.Errorf("expected chm's level to come strictly after dtm/dsm, waves=%v", waves)
	}
}

func TestFingerprintIsDeterministicAndParamSensitive(t *testing.T) {
	p1 := DefaultParams().DTM
	p2 := DefaultParams().DTM
	p2.HoleFill.MaxRadiusPixels = p2.HoleFill.MaxRadiusPixels + 1

	a := Fingerprint(KindDTM, "standard", p1, "region-a")
	b := Fingerprint(KindDTM, "standard", p1, "region-a")
	if a != b {
		t.Errorf("expected identical inputs to fingerprint identically, got %q vs %q", a, b)
	}

	c := Fingerprint(KindDTM, "standard", p2, "region-a")
	if a == c {
		t.Error("expected different params to change the fingerprint")
	}

	d := Fingerprint(KindDTM, "standard", p1, "region-b")
	if a == d {
		t.Error("expected different region scoping to change the fingerprint")
	}
}

func TestRunPoolReturnsFirstError(t *testing.T) {
	jobs := []Kind{KindDTM, KindDSM, KindCHM}
	err := runPool(jobs, 2, func(k Kind) error {
		if k == KindDSM {
			return kindError(k, ErrExternalFailure, "boom", nil)
		}
		return nil
	})
	if err == nil {
		t.Fatal("expected the dsm job's error to propagate")
	}
}

func TestBuildWritesManifestAndSkipsOnRepeat(t *testing.T) {
	cloud := mustCloud(t)
	eng := &fakeEngine{value: 100}
	outDir := t.TempDir()

	opts := Options{
		OutDir: outDir,
		Grid:   testGrid(),
		Engine: eng,
		Params: DefaultParams(),
	}

	report, err := Build(context.Background(), "testregion", []Kind{KindDTM}, cloud, opts)
	if err != nil {
		t.Fatalf("first build failed: %v", err)
	}
	first := report.Nodes[KindDTM]
	if first.Status != StatusDone {
		t.Fatalf("expected dtm done, got %v (err=%v)", first.Status, first.Err)
	}
	if first.Cached {
		t.Error("first build should not be a cache hit")
	}
	if _, err := os.Stat(report.Rasters[KindDTM]); err != nil {
		t.Errorf("expected dtm raster on disk: %v", err)
	}
	if _, err := os.Stat(manifestPath(outDir, first.Fingerprint)); err != nil {
		t.Errorf("expected manifest on disk: %v", err)
	}
	firstRasterizeCalls := eng.rasterizes

	report2, err := Build(context.Background(), "testregion", []Kind{KindDTM}, cloud, opts)
	if err != nil {
		t.Fatalf("second build failed: %v", err)
	}
	second := report2.Nodes[KindDTM]
	if !second.Cached {
		t.Error("second build with identical inputs should be a cache hit")
	}
	if eng.rasterizes != firstRasterizeCalls {
		t.Errorf("expected no additional rasterize calls on cache hit, went from %d to %d", firstRasterizeCalls, eng.rasterizes)
	}
	if second.Fingerprint != first.Fingerprint {
		t.Error("expected identical fingerprints across repeat builds")
	}
}

func TestBuildForceRebuildBypassesCache(t *testing.T) {
	cloud := mustCloud(t)
	eng := &fakeEngine{value: 50}
	outDir := t.TempDir()

	opts := Options{OutDir: outDir, Grid: testGrid(), Engine: eng, Params: DefaultParams()}
	if _, err := Build(context.Background(), "region2", []Kind{KindDTM}, cloud, opts); err != nil {
		t.Fatal(err)
	}
	before := eng.rasterizes

	opts.ForceRebuild = true
	report, err := Build(context.Background(), "region2", []Kind{KindDTM}, cloud, opts)
	if err != nil {
		t.Fatal(err)
	}
	if report.Nodes[KindDTM].Cached {
		t.Error("force_rebuild should never report a cache hit")
	}
	if eng.rasterizes <= before {
		t.Error("expected force_rebuild to invoke the engine again")
	}
}

// TestRunWavesBlocksOnlyTransitiveDependents matches the review's own
// example: a KindDensity failure must block KindMask (its dependent)
// but leave KindDTM, which has no dependency on density per registry.go,
// running to completion.
func TestRunWavesBlocksOnlyTransitiveDependents(t *testing.T) {
	cloud := mustCloud(t)
	eng := &failOnCountEngine{fakeEngine: fakeEngine{value: 10}}
	outDir := t.TempDir()

	opts := Options{
		OutDir: outDir,
		Grid:   testGrid(),
		Engine: eng,
		Params: DefaultParams(),
	}

	report, err := Build(context.Background(), "blockregion", []Kind{KindMask, KindDTM}, cloud, opts)
	if err == nil {
		t.Fatal("expected the density failure to propagate out of Build")
	}

	if got := report.Nodes[KindDensity].Status; got != StatusFailed {
		t.Errorf("expected density failed, got %v", got)
	}
	if got := report.Nodes[KindMask].Status; got != StatusBlocked {
		t.Errorf("expected mask (density's dependent) blocked, got %v", got)
	}
	if got := report.Nodes[KindDTM].Status; got != StatusDone {
		t.Errorf("expected dtm (independent of density) done, got %v (err=%v)", got, report.Nodes[KindDTM].Err)
	}
}
