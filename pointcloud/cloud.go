// Package pointcloud is the point-cloud stage (§4.1): it opens LAS/LAZ
// files, exposes ground classification and rasterization, and never
// materializes a full point cloud in memory — it always talks to the
// external point-processing engine (PDAL, in production) through chunked
// calls, the same way github.com/airbusgeo/godal keeps one thin Go
// handle per call into a C library rather than copying pixels around
// needlessly.
package pointcloud

import (
	"context"
	"fmt"
	"os"

	"github.com/sitecairn/lidarterrain/geo"
)

// Cloud is an opaque handle to a point cloud on disk. It never holds a
// materialized point slice; Points() is not a method on this type.
type Cloud struct {
	Path string

	// discovered is populated lazily by BoundsAndCRS and is immutable
	// once set, matching the metadata cache's single-computation contract.
	discovered *Discovery
}

// Discovery is the metadata the point-cloud stage can extract from a
// cloud without fully reading it: bounds, CRS, point count, and whether
// classification codes are present.
type Discovery struct {
	Bounds               geo.BoundingBox
	CRS                  geo.CRS
	PointCount           int
	HasClassification    bool
	LASVersionMajor      int
	LASVersionMinor      int
}

// Open validates that path exists and returns a handle; it does not read
// the file's contents. Use BoundsAndCRS to trigger discovery.
func Open(path string) (*Cloud, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("pointcloud: %s: cloud_not_found: %w", path, err)
	}
	return &Cloud{Path: path}, nil
}

// Identity returns the tuple the metadata cache uses as its key:
// (path, mtime, size).
func (c *Cloud) Identity() (path string, mtimeUnixNano int64, size int64, err error) {
	info, err := os.Stat(c.Path)
	if err != nil {
		return "", 0, 0, fmt.Errorf("pointcloud: %s: cloud_not_found: %w", c.Path, err)
	}
	return c.Path, info.ModTime().UnixNano(), info.Size(), nil
}

// BoundsAndCRS discovers (or returns the cached) bounds, CRS, and point
// count for the cloud. Idempotent: the second call for the same Cloud
// value returns the same Discovery without re-invoking the engine.
func (c *Cloud) BoundsAndCRS(ctx context.Context, eng Engine) (Discovery, error) {
	if c.discovered != nil {
		return *c.discovered, nil
	}
	d, err := eng.Discover(ctx, c.Path)
	if err != nil {
		return Discovery{}, err
	}
	if !d.CRS.Valid() {
		return Discovery{}, fmt.Errorf("pointcloud: %s: crs_missing", c.Path)
	}
	if d.LASVersionMajor == 1 && d.LASVersionMinor > 4 {
		return Discovery{}, fmt.Errorf("pointcloud: %s: unsupported_las_version %d.%d", c.Path, d.LASVersionMajor, d.LASVersionMinor)
	}
	c.discovered = &d
	return d, nil
}

// withDerivedPath returns a Cloud referring to a new file path, carrying
// no cached discovery (the derived cloud's bounds differ from the
// original's), used by GroundClassify and ClipByPolygon to return a
// distinct cloud′ per §4.1.
func withDerivedPath(path string) *Cloud {
	return &Cloud{Path: path}
}
