package raster

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/airbusgeo/godal"
	"github.com/sitecairn/lidarterrain/geo"
)

func init() {
	godal.RegisterAll()
}

// WriteOptions controls the GeoTIFF encoding used by Write, matching
// §6.2's "tiled GeoTIFF, LZW-compressed, explicit NoData" contract.
type WriteOptions struct {
	Compression    string // default "LZW"
	TileSize       int    // default 256
	OverviewLevels []int  // e.g. []int{2, 4, 8}; empty disables overviews
}

// DefaultWriteOptions returns the canonical options used for every
// product raster this pipeline emits.
func DefaultWriteOptions() WriteOptions {
	return WriteOptions{Compression: "LZW", TileSize: 256}
}

// Read opens a GeoTIFF (or any GDAL-readable raster) and loads its first
// band into memory. A raster whose CRS cannot be resolved fails with
// crs_missing, per §4.2.
func Read(path string) (*Grid, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("raster: opening %s: %w", path, err)
	}
	defer ds.Close()

	sr := ds.SpatialRef()
	if sr == nil {
		return nil, fmt.Errorf("raster: %s: crs_missing", path)
	}
	wkt, err := sr.WKT()
	if err != nil {
		return nil, fmt.Errorf("raster: %s: reading CRS WKT: %w", path, err)
	}
	crs, err := geo.NewCRSFromWKT(wkt)
	if err != nil {
		return nil, fmt.Errorf("raster: %s: crs_missing: %w", path, err)
	}

	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("raster: %s: reading geotransform: %w", path, err)
	}
	structure := ds.Structure()
	gg := geo.Grid{
		OriginX: gt[0], OriginY: gt[3],
		Sx: gt[1], Sy: -gt[5],
		W: structure.SizeX, H: structure.SizeY,
		CRS: crs,
	}

	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, fmt.Errorf("raster: %s has no bands", path)
	}
	band := bands[0]

	dtype := dtypeFromBandStructure(band.Structure())
	out := NewGrid(gg, dtype)

	buf := make([]float32, gg.W*gg.H)
	if err := band.Read(0, 0, buf, gg.W, gg.H); err != nil {
		return nil, fmt.Errorf("raster: %s: reading band: %w", path, err)
	}
	nodata, hasNoData := band.NoData()
	for row := 0; row < gg.H; row++ {
		for col := 0; col < gg.W; col++ {
			v := float64(buf[row*gg.W+col])
			if hasNoData && v == nodata {
				if dtype == Float32 {
					v = float64(geo.NoData)
				} else {
					out.MarkNoData(row, col)
					v = 0
				}
			}
			out.Set(row, col, v)
		}
	}
	return out, nil
}

func dtypeFromBandStructure(s godal.BandStructure) Dtype {
	switch s.DataType {
	case godal.Byte:
		return Byte
	case godal.UInt16:
		return UInt16
	default:
		return Float32
	}
}

// byteNoDataValue and uint16NoDataValue are the sentinels Write tags a
// non-Float32 band's NoData metadata with: the top of each type's
// range, one level dearer than a real pixel is ever allowed to get
// (clampBelowNoDataTag enforces that on the way out), since neither
// type has geo.NoData's -9999 headroom to spare.
const (
	byteNoDataValue   = 255
	uint16NoDataValue = 65535
)

// noDataTagFor returns the NoData value Write records for a band of the
// given dtype: the Float32 sentinel for continuous rasters, or the
// reserved top-of-range value for Byte/UInt16 rasters, whose true
// NoData cells are tracked by Grid.valid instead of a sentinel.
func noDataTagFor(d Dtype) float64 {
	switch d {
	case Byte:
		return float64(byteNoDataValue)
	case UInt16:
		return float64(uint16NoDataValue)
	default:
		return float64(geo.NoData)
	}
}

// clampBelowNoDataTag keeps a legitimate pixel value from colliding with
// the reserved NoData tag noDataTagFor assigns its band.
func clampBelowNoDataTag(v float64, d Dtype) float64 {
	switch d {
	case Byte:
		if v >= byteNoDataValue {
			return byteNoDataValue - 1
		}
	case UInt16:
		if v >= uint16NoDataValue {
			return uint16NoDataValue - 1
		}
	}
	return v
}

func gdalDType(d Dtype) godal.DataType {
	switch d {
	case Byte:
		return godal.Byte
	case UInt16:
		return godal.UInt16
	default:
		return godal.Float32
	}
}

// Write encodes g to a tiled, LZW-compressed GeoTIFF at path. The write
// is atomic: g is fully written to a temp file in the same directory,
// then renamed into place, so no observer ever reads a partial file
// (§8 property 8).
func Write(g *Grid, path string, opts WriteOptions) error {
	if opts.Compression == "" {
		opts = DefaultWriteOptions()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("raster: creating output dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*-"+filepath.Base(path))
	if err != nil {
		return fmt.Errorf("raster: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	createOpts := []godal.DatasetCreateOption{
		godal.CreationOption(
			"COMPRESS="+opts.Compression,
			"TILED=YES",
		),
	}
	if opts.TileSize > 0 {
		createOpts = append(createOpts, godal.CreationOption(
			fmt.Sprintf("BLOCKXSIZE=%d", opts.TileSize),
			fmt.Sprintf("BLOCKYSIZE=%d", opts.TileSize),
		))
	}

	ds, err := godal.Create(godal.GTiff, tmpPath, 1, gdalDType(g.Dtype), g.W, g.H, createOpts...)
	if err != nil {
		return fmt.Errorf("raster: creating %s: %w", path, err)
	}

	if g.CRS.Valid() {
		if sr, err := godal.NewSpatialRefFromWKT(wktOf(g.CRS)); err == nil {
			ds.SetSpatialRef(sr)
			sr.Close()
		}
	}
	gt := g.Affine()
	if err := ds.SetGeoTransform([6]float64{gt[4], gt[0], gt[1], gt[5], gt[2], gt[3]}); err != nil {
		ds.Close()
		return fmt.Errorf("raster: setting geotransform: %w", err)
	}

	band := ds.Bands()[0]
	noDataTag := noDataTagFor(g.Dtype)
	if err := band.SetNoData(noDataTag); err != nil {
		ds.Close()
		return fmt.Errorf("raster: setting nodata: %w", err)
	}

	buf := make([]float32, g.W*g.H)
	for row := 0; row < g.H; row++ {
		for col := 0; col < g.W; col++ {
			i := row*g.W + col
			if g.Dtype != Float32 && g.IsNoData(row, col) {
				buf[i] = float32(noDataTag)
				continue
			}
			buf[i] = float32(clampBelowNoDataTag(g.At(row, col), g.Dtype))
		}
	}
	if err := band.Write(0, 0, buf, g.W, g.H); err != nil {
		ds.Close()
		return fmt.Errorf("raster: writing band: %w", err)
	}

	if len(opts.OverviewLevels) > 0 {
		if err := ds.BuildOverviews(godal.Levels(opts.OverviewLevels...)); err != nil {
			ds.Close()
			return fmt.Errorf("raster: building overviews: %w", err)
		}
	}

	if err := ds.Close(); err != nil {
		return fmt.Errorf("raster: closing %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("raster: finalizing %s: %w", path, err)
	}
	return nil
}

// wktOf renders a geo.CRS back to WKT for handoff to GDAL. Grids built
// in-process from an EPSG code round-trip through proj's WKT export;
// grids read from disk already carry their source WKT.
func wktOf(c geo.CRS) string {
	if c.WKT != "" {
		return c.WKT
	}
	return c.String()
}
