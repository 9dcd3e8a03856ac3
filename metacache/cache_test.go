package metacache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sitecairn/lidarterrain/geo"
	"github.com/sitecairn/lidarterrain/pointcloud"
)

type fakeEngine struct {
	calls     int
	discovery pointcloud.Discovery
}

func (f *fakeEngine) Discover(ctx context.Context, path string) (pointcloud.Discovery, error) {
	f.calls++
	return f.discovery, nil
}
func (f *fakeEngine) GroundClassify(ctx context.Context, path string, p pointcloud.ClassifyParams) (string, error) {
	return path, nil
}
func (f *fakeEngine) Rasterize(ctx context.Context, path string, g geo.Grid, a pointcloud.Aggregator) (pointcloud.RasterBuffer, error) {
	return pointcloud.RasterBuffer{}, nil
}
func (f *fakeEngine) ClipByPolygon(ctx context.Context, path string, poly []byte) (string, error) {
	return path, nil
}

func mustCloud(t *testing.T) *pointcloud.Cloud {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "region.las")
	if err := os.WriteFile(p, []byte("fake"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := pointcloud.Open(p)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestGetMissingKeyReturnsFalse(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "meta.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	_, ok, err := c.Get(Key{Path: "/nope"})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected no entry for an unseen key")
	}
}

func TestPutThenGetRoundTrips(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "meta.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	crs, _ := geo.NewCRSFromEPSG(4326)
	key := Key{Path: "/a/region.las", MTimeUnixNano: 1, Size: 100}
	want := pointcloud.Discovery{CRS: crs, PointCount: 42}

	if err := c.Put(key, want, time.Now()); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected entry to round-trip")
	}
	if got.PointCount != want.PointCount {
		t.Errorf("expected point count %d, got %d", want.PointCount, got.PointCount)
	}
}

func TestPutTwiceKeepsLatest(t *testing.T) {
	c, err := Open(filepath.Join(t.TempDir(), "meta.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	key := Key{Path: "/a/region.las", MTimeUnixNano: 1, Size: 100}
	if err := c.Put(key, pointcloud.Discovery{PointCount: 1}, time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(key, pointcloud.Discovery{PointCount: 2}, time.Now()); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || got.PointCount != 2 {
		t.Errorf("expected the later Put to win, got %+v (ok=%v)", got, ok)
	}
}

func TestCompactPreservesLatestAndShrinksLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.jsonl")
	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	key := Key{Path: "/a/region.las", MTimeUnixNano: 1, Size: 100}
	for i := 0; i < 5; i++ {
		if err := c.Put(key, pointcloud.Discovery{PointCount: i}, time.Now()); err != nil {
			t.Fatal(err)
		}
	}
	before, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Compact(); err != nil {
		t.Fatal(err)
	}
	after, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if after.Size() >= before.Size() {
		t.Errorf("expected compaction to shrink the log, before=%d after=%d", before.Size(), after.Size())
	}
	got, ok, err := c.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || got.PointCount != 4 {
		t.Errorf("expected the latest entry to survive compaction, got %+v", got)
	}
}

func TestDiscoverCachesAcrossCloudValues(t *testing.T) {
	dir := t.TempDir()
	cloud := mustCloud(t)
	c, err := Open(filepath.Join(dir, "meta.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	crs, _ := geo.NewCRSFromEPSG(4326)
	eng := &fakeEngine{discovery: pointcloud.Discovery{CRS: crs, PointCount: 7}}

	if _, err := c.Discover(context.Background(), cloud, eng); err != nil {
		t.Fatal(err)
	}
	if eng.calls != 1 {
		t.Fatalf("expected one engine call, got %d", eng.calls)
	}

	// A fresh *pointcloud.Cloud value for the same file (simulating a
	// new process run) should still hit the persistent log, not the engine.
	cloud2, err := pointcloud.Open(cloud.Path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Discover(context.Background(), cloud2, eng); err != nil {
		t.Fatal(err)
	}
	if eng.calls != 1 {
		t.Errorf("expected the second Discover to hit the persistent cache, engine called %d times", eng.calls)
	}
}
