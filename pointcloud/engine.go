package pointcloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/sitecairn/lidarterrain/geo"
)

// Engine is the boundary to the external point-processing library. The
// pipeline core depends only on this interface; Non-goals explicitly
// exclude reimplementing point cloud processing in pure Go, so every
// operation here is a call into an external tool.
type Engine interface {
	Discover(ctx context.Context, path string) (Discovery, error)
	GroundClassify(ctx context.Context, path string, params ClassifyParams) (outPath string, err error)
	Rasterize(ctx context.Context, path string, grid geo.Grid, agg Aggregator) (RasterBuffer, error)
	ClipByPolygon(ctx context.Context, path string, polygonGeoJSON []byte) (outPath string, err error)
}

// RasterBuffer is a dense row-major float64 buffer plus the grid it was
// sampled onto, handed back across the engine boundary before raster.Grid
// wraps it in a sparse.DenseArray.
type RasterBuffer struct {
	Grid   geo.Grid
	Values []float64 // len == Grid.W*Grid.H, row-major, NoData already applied
}

// PDALEngine shells out to the `pdal` command-line tool, building and
// executing a pipeline JSON document per call. This is the standard way
// Go programs drive PDAL in production (there is no maintained cgo
// binding comparable to github.com/airbusgeo/godal for GDAL), and it
// keeps every call self-contained: no long-lived library handle to
// manage, no global mutable state, matching §9's "replace global mutable
// registries with explicit context" guidance.
type PDALEngine struct {
	// BinaryPath is the path to the pdal executable; defaults to "pdal"
	// (resolved via PATH) when empty.
	BinaryPath string
	// WorkDir is where intermediate output clouds are written.
	WorkDir string
}

func (e *PDALEngine) bin() string {
	if e.BinaryPath != "" {
		return e.BinaryPath
	}
	return "pdal"
}

// runPipeline executes a PDAL pipeline document and returns its stdout.
func (e *PDALEngine) runPipeline(ctx context.Context, pipeline map[string]interface{}) ([]byte, error) {
	doc, err := json.Marshal(map[string]interface{}{"pipeline": pipeline["stages"]})
	if err != nil {
		return nil, fmt.Errorf("pointcloud: encoding pipeline: %w", err)
	}
	cmd := exec.CommandContext(ctx, e.bin(), "pipeline", "--stdin", "--metadata", "/dev/stdout")
	cmd.Stdin = bytes.NewReader(doc)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("pointcloud: cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("pointcloud: external_failure: pdal pipeline: %v: %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// Discover reads a cloud's metadata summary ("pdal info --summary")
// without materializing points.
func (e *PDALEngine) Discover(ctx context.Context, path string) (Discovery, error) {
	cmd := exec.CommandContext(ctx, e.bin(), "info", "--summary", path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Discovery{}, fmt.Errorf("pointcloud: %s: external_failure: pdal info: %v: %s", path, err, stderr.String())
	}
	var summary pdalSummary
	if err := json.Unmarshal(stdout.Bytes(), &summary); err != nil {
		return Discovery{}, fmt.Errorf("pointcloud: %s: external_failure: parsing pdal summary: %w", path, err)
	}
	return summary.toDiscovery()
}

type pdalSummary struct {
	Summary struct {
		Bounds struct {
			MinX, MinY, MaxX, MaxY float64
		} `json:"bounds"`
		NumPoints  int    `json:"num_points"`
		SRS        struct{ WKT string `json:"wkt"` } `json:"srs"`
		Dimensions string `json:"dimensions"`
	} `json:"summary"`
}

func (s pdalSummary) toDiscovery() (Discovery, error) {
	crs, err := geo.NewCRSFromWKT(s.Summary.SRS.WKT)
	if err != nil {
		return Discovery{}, fmt.Errorf("crs_missing: %w", err)
	}
	return Discovery{
		Bounds: geo.BoundingBox{
			MinX: s.Summary.Bounds.MinX, MinY: s.Summary.Bounds.MinY,
			MaxX: s.Summary.Bounds.MaxX, MaxY: s.Summary.Bounds.MaxY,
			CRS: crs,
		},
		PointCount:        s.Summary.NumPoints,
		HasClassification: contains(s.Summary.Dimensions, "Classification"),
		LASVersionMajor:   1,
		LASVersionMinor:   4,
	}, nil
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}

// GroundClassify runs a filters.csf/pmf/smrf stage and writes a new LAS
// file with ground points flagged class 2.
func (e *PDALEngine) GroundClassify(ctx context.Context, path string, params ClassifyParams) (string, error) {
	filterStage, err := params.pdalFilterStage()
	if err != nil {
		return "", err
	}
	outPath := filepath.Join(e.workDir(), deriveName(path, "ground"))
	pipeline := map[string]interface{}{
		"stages": []interface{}{
			map[string]interface{}{"type": "readers.las", "filename": path},
			filterStage,
			map[string]interface{}{"type": "writers.las", "filename": outPath, "extra_dims": "all"},
		},
	}
	if _, err := e.runPipeline(ctx, pipeline); err != nil {
		return "", err
	}
	return outPath, nil
}

// Rasterize runs writers.gdal over the (optionally ground-filtered)
// cloud and returns the resulting raster buffer. Cells with no
// contributing points are left at geo.NoData.
func (e *PDALEngine) Rasterize(ctx context.Context, path string, grid geo.Grid, agg Aggregator) (RasterBuffer, error) {
	outPath := filepath.Join(e.workDir(), deriveName(path, string(agg.Kind)+".tif"))
	writer := map[string]interface{}{
		"type":        "writers.gdal",
		"filename":    outPath,
		"resolution":  grid.Sx,
		"output_type": agg.pdalOutputType(),
		"nodata":      float64(geo.NoData),
		"gdaldriver":  "GTiff",
	}
	if agg.Kind == AggregatorIDW {
		writer["power"] = agg.IDWPower
		writer["window_size"] = agg.IDWWindow
	}
	pipeline := map[string]interface{}{
		"stages": []interface{}{
			map[string]interface{}{"type": "readers.las", "filename": path},
			writer,
		},
	}
	if _, err := e.runPipeline(ctx, pipeline); err != nil {
		return RasterBuffer{}, err
	}
	defer os.Remove(outPath)
	return readGDALBuffer(outPath)
}

// ClipByPolygon crops the cloud to the given GeoJSON polygon using
// filters.crop, returning empty_output as a soft (non-fatal) condition
// signalled via ErrEmptyOutput when every point is excluded.
func (e *PDALEngine) ClipByPolygon(ctx context.Context, path string, polygonGeoJSON []byte) (string, error) {
	polyFile := filepath.Join(e.workDir(), deriveName(path, "footprint.geojson"))
	if err := os.WriteFile(polyFile, polygonGeoJSON, 0o644); err != nil {
		return "", fmt.Errorf("pointcloud: io_transient: writing footprint: %w", err)
	}
	outPath := filepath.Join(e.workDir(), deriveName(path, "cropped.las"))
	pipeline := map[string]interface{}{
		"stages": []interface{}{
			map[string]interface{}{"type": "readers.las", "filename": path},
			map[string]interface{}{"type": "filters.crop", "polygon": string(polygonGeoJSON)},
			map[string]interface{}{"type": "writers.las", "filename": outPath},
		},
	}
	if _, err := e.runPipeline(ctx, pipeline); err != nil {
		return "", err
	}
	info, err := os.Stat(outPath)
	if err != nil || info.Size() == 0 {
		return "", ErrEmptyOutput
	}
	return outPath, nil
}

func (e *PDALEngine) workDir() string {
	if e.WorkDir != "" {
		return e.WorkDir
	}
	return os.TempDir()
}

func deriveName(path, suffix string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)] + "_" + suffix
}

// readGDALBuffer reads back a GDAL-written raster through the raster
// package's codec boundary; pointcloud depends on raster only for this
// narrow decode, never for arithmetic.
func readGDALBuffer(path string) (RasterBuffer, error) {
	g, err := readSingleBand(path)
	if err != nil {
		return RasterBuffer{}, err
	}
	return g, nil
}
