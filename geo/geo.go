// Package geo provides the bounding-box, affine-grid, and coordinate
// reference system primitives shared by every other package in this
// module. It defines no I/O and no rasterization; it is the vocabulary
// the rest of the pipeline is written in.
package geo

import (
	"fmt"
	"math"

	"github.com/ctessum/geom/proj"
)

// NoData is the canonical sentinel marking an absent value in a Float32
// band. It is never a computable number: callers must test for it with
// IsNoData rather than comparing floats directly, since NaN-propagation
// and float equality are both traps here.
const NoData float32 = -9999

// IsNoData reports whether v is the NoData sentinel.
func IsNoData(v float32) bool {
	return v == NoData || math.IsNaN(float64(v))
}

// CRS is a coordinate reference system handle. It carries both the
// original declaration (an EPSG code or a WKT string, whichever the
// source used) and, when available, a parsed projection usable for
// reprojection.
type CRS struct {
	// Authority is usually "EPSG"; Code is the numeric code within that
	// authority. Either Authority+Code or WKT must be set.
	Authority string
	Code      int
	WKT       string

	sr *proj.SR
}

// NewCRSFromEPSG builds a CRS from an EPSG code, eagerly parsing the
// projection definition so that later reprojection calls cannot fail on
// a CRS that was accepted at ingestion time. Only the small set of codes
// commonly seen in airborne LiDAR deliverables (geographic WGS84 and UTM
// north/south zones) are resolved to a PROJ4 string without consulting an
// external EPSG database; anything else is rejected with crs_missing-style
// error, matching §6.1's requirement that a cloud declare a horizontal CRS
// the pipeline can actually act on.
func NewCRSFromEPSG(code int) (CRS, error) {
	proj4, ok := epsgToProj4(code)
	if !ok {
		return CRS{}, fmt.Errorf("geo: EPSG:%d is not a recognized geographic or UTM code", code)
	}
	sr, err := proj.Parse(proj4)
	if err != nil {
		return CRS{}, fmt.Errorf("geo: parsing EPSG:%d: %w", code, err)
	}
	return CRS{Authority: "EPSG", Code: code, sr: sr}, nil
}

// NewCRSFromWKT builds a CRS from a WKT string.
func NewCRSFromWKT(wkt string) (CRS, error) {
	sr, err := proj.Parse(wkt)
	if err != nil {
		return CRS{}, fmt.Errorf("geo: parsing WKT: %w", err)
	}
	return CRS{WKT: wkt, sr: sr}, nil
}

// epsgToProj4 resolves the handful of EPSG codes the pipeline is
// guaranteed to understand without a full EPSG database: WGS84 (4326)
// and the UTM zones (326xx north, 327xx south).
func epsgToProj4(code int) (string, bool) {
	switch {
	case code == 4326:
		return "+proj=longlat +ellps=WGS84 +datum=WGS84 +no_defs", true
	case code >= 32601 && code <= 32660:
		zone := code - 32600
		return fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", zone), true
	case code >= 32701 && code <= 32760:
		zone := code - 32700
		return fmt.Sprintf("+proj=utm +zone=%d +south +datum=WGS84 +units=m +no_defs", zone), true
	default:
		return "", false
	}
}

// Valid reports whether the CRS was built successfully and carries a
// usable projection.
func (c CRS) Valid() bool { return c.sr != nil }

// String renders the CRS identifier for logging and manifest output.
func (c CRS) String() string {
	if c.Authority != "" && c.Code != 0 {
		return fmt.Sprintf("%s:%d", c.Authority, c.Code)
	}
	if c.WKT != "" {
		return c.WKT
	}
	return "unknown"
}

// Equal reports whether two CRS values denote the same coordinate system
// for the purposes of the pixel-alignment invariant in RasterGrid. This
// is deliberately a shallow comparison of the declared identifier: two
// CRSes that are mathematically equivalent but spelled differently (e.g.
// an EPSG code vs. its equivalent WKT) are treated as distinct, forcing
// an explicit reprojection rather than a silent promotion, per spec.
func (c CRS) Equal(o CRS) bool {
	if c.Authority != "" || o.Authority != "" {
		return c.Authority == o.Authority && c.Code == o.Code
	}
	return c.WKT == o.WKT
}

// SR returns the parsed projection, for use by callers that need to
// reproject points (e.g. raster.Align, pointcloud ingestion).
func (c CRS) SR() *proj.SR { return c.sr }

// Point is a 2D coordinate in some CRS.
type Point struct {
	X, Y float64
}

// BoundingBox is an axis-aligned rectangle in a declared CRS.
//
// Invariant: MinX <= MaxX and MinY <= MaxY, except for the sentinel
// Empty box, which no computation may treat as a real extent.
type BoundingBox struct {
	MinX, MinY, MaxX, MaxY float64
	CRS                    CRS
}

// EmptyBoundingBox is the sentinel "no data" bounding box value.
func EmptyBoundingBox() BoundingBox {
	return BoundingBox{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
}

// IsEmpty reports whether b is the empty sentinel.
func (b BoundingBox) IsEmpty() bool {
	return b.MaxX < b.MinX || b.MaxY < b.MinY
}

// Valid reports whether b has min <= max on both axes, i.e. it is either
// a real extent or the empty sentinel, never an inverted box produced by
// a bug.
func (b BoundingBox) Valid() bool {
	sentinel := math.IsInf(b.MinX, 1) && math.IsInf(b.MinY, 1) &&
		math.IsInf(b.MaxX, -1) && math.IsInf(b.MaxY, -1)
	return sentinel || (b.MinX <= b.MaxX && b.MinY <= b.MaxY)
}

// Extend grows b to include o, returning the union. Extending the empty
// box by a real box yields that real box.
func (b BoundingBox) Extend(o BoundingBox) BoundingBox {
	if o.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return o
	}
	return BoundingBox{
		MinX: math.Min(b.MinX, o.MinX),
		MinY: math.Min(b.MinY, o.MinY),
		MaxX: math.Max(b.MaxX, o.MaxX),
		MaxY: math.Max(b.MaxY, o.MaxY),
		CRS:  b.CRS,
	}
}

// Intersects reports whether b and o overlap.
func (b BoundingBox) Intersects(o BoundingBox) bool {
	if b.IsEmpty() || o.IsEmpty() {
		return false
	}
	return b.MinX <= o.MaxX && b.MaxX >= o.MinX && b.MinY <= o.MaxY && b.MaxY >= o.MinY
}

// Contains reports whether p lies within b (inclusive of the boundary).
func (b BoundingBox) Contains(p Point) bool {
	return p.X >= b.MinX && p.X <= b.MaxX && p.Y >= b.MinY && p.Y <= b.MaxY
}

// Width and Height report the extent of b on each axis.
func (b BoundingBox) Width() float64  { return b.MaxX - b.MinX }
func (b BoundingBox) Height() float64 { return b.MaxY - b.MinY }

// Grid describes the affine geometry of a raster: origin, pixel size,
// dimensions, and CRS. It carries no pixel data — raster.Grid embeds it
// alongside band storage.
//
// Convention: origin is the top-left corner, and Sy is stored positive
// with the south-up sign flip applied internally, matching the common
// GeoTIFF "north up" convention (row 0 is the northernmost row).
type Grid struct {
	OriginX, OriginY float64
	Sx, Sy           float64 // pixel size; Sy > 0
	W, H             int
	CRS              CRS
}

// Bounds returns the spatial extent covered by g.
func (g Grid) Bounds() BoundingBox {
	return BoundingBox{
		MinX: g.OriginX,
		MinY: g.OriginY - float64(g.H)*g.Sy,
		MaxX: g.OriginX + float64(g.W)*g.Sx,
		MaxY: g.OriginY,
		CRS:  g.CRS,
	}
}

// PixelToWorld converts a (col, row) pixel coordinate to world space,
// returning the coordinate of the pixel's top-left corner.
func (g Grid) PixelToWorld(col, row int) Point {
	return Point{
		X: g.OriginX + float64(col)*g.Sx,
		Y: g.OriginY - float64(row)*g.Sy,
	}
}

// WorldToPixel converts a world coordinate to the (col, row) of the pixel
// containing it. The result may be out of [0,W)x[0,H) if p lies outside g.
func (g Grid) WorldToPixel(p Point) (col, row int) {
	col = int(math.Floor((p.X - g.OriginX) / g.Sx))
	row = int(math.Floor((g.OriginY - p.Y) / g.Sy))
	return col, row
}

// AlignedWith reports whether g and o share the same CRS, pixel size,
// dimensions, and origin modulo pixel size — the pixel-alignment
// invariant required before any pixelwise arithmetic between two grids.
func (g Grid) AlignedWith(o Grid) bool {
	const eps = 1e-9
	if !g.CRS.Equal(o.CRS) {
		return false
	}
	if g.W != o.W || g.H != o.H {
		return false
	}
	if math.Abs(g.Sx-o.Sx) > eps || math.Abs(g.Sy-o.Sy) > eps {
		return false
	}
	dx := math.Mod(g.OriginX-o.OriginX, g.Sx)
	dy := math.Mod(g.OriginY-o.OriginY, g.Sy)
	return math.Abs(dx) < eps && math.Abs(dy) < eps
}

// Affine returns the six world-file coefficients (sx, rotX, rotY, -sy, x0, y0)
// used by .pgw/.wld sidecar files and by RenderedImage's georeferencing
// invariant.
func (g Grid) Affine() [6]float64 {
	return [6]float64{g.Sx, 0, 0, -g.Sy, g.OriginX, g.OriginY}
}
