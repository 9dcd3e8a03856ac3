package footprint

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/ctessum/geom/encoding/shp"
	goshp "github.com/jonas-p/go-shp"

	"github.com/sitecairn/lidarterrain/geo"
	"github.com/sitecairn/lidarterrain/raster"
)

// DefaultSimplifyTolerance and DefaultMinArea are the default Douglas-
// Peucker tolerance (meters) and minimum ring area (square meters) per
// §3 FootprintPolygon.
const (
	DefaultSimplifyTolerance = 0.5
	DefaultMinArea           = 100.0
)

// ErrEmptyFootprint is returned by Polygonize when every cell of mask is
// below threshold: there is no valid region to vectorize (§4.3 failure
// semantics, "empty_footprint").
var ErrEmptyFootprint = fmt.Errorf("footprint: empty_footprint")

// ErrFootprintDegenerate is returned when the unioned, simplified polygon
// has zero area after the minimum-area filter removes every ring.
var ErrFootprintDegenerate = fmt.Errorf("footprint: footprint_degenerate")

// PolygonizeParams controls vectorization.
type PolygonizeParams struct {
	SimplifyTolerance float64
	MinArea           float64
}

// DefaultPolygonizeParams returns the §3-documented defaults.
func DefaultPolygonizeParams() PolygonizeParams {
	return PolygonizeParams{SimplifyTolerance: DefaultSimplifyTolerance, MinArea: DefaultMinArea}
}

// Polygonize vectorizes every mask cell with value 1 into a single
// geom.Polygon, unioning per-cell unit squares via ctessum/geom's
// polyclip-go-backed Union, then simplifying with Douglas-Peucker at
// tolerance τ and dropping rings below minArea. The result's CRS is
// mask's CRS (carried alongside, since geom.Polygon itself is CRS-less).
func Polygonize(mask *raster.Grid, params PolygonizeParams) (geom.Polygon, error) {
	if params.SimplifyTolerance <= 0 {
		params.SimplifyTolerance = DefaultSimplifyTolerance
	}
	if params.MinArea <= 0 {
		params.MinArea = DefaultMinArea
	}

	var union geom.Polygon
	first := true
	for row := 0; row < mask.H; row++ {
		for col := 0; col < mask.W; col++ {
			if mask.At(row, col) != 1 {
				continue
			}
			cell := cellSquare(mask.Grid, row, col)
			if first {
				union = cell
				first = false
				continue
			}
			union = union.Union(cell)
		}
	}
	if first {
		return nil, ErrEmptyFootprint
	}

	simplified, ok := union.Simplify(params.SimplifyTolerance).(geom.Polygon)
	if !ok {
		return nil, fmt.Errorf("footprint: invariant_violation: simplify did not return a polygon")
	}

	var kept geom.Polygon
	for _, ring := range simplified {
		if ringArea(ring) >= params.MinArea {
			kept = append(kept, ring)
		}
	}
	if len(kept) == 0 {
		return nil, ErrFootprintDegenerate
	}
	return kept, nil
}

// cellSquare returns the world-space unit-cell rectangle for (row, col)
// as a single-ring polygon, closed per geom's OGC convention.
func cellSquare(g geo.Grid, row, col int) geom.Polygon {
	tl := g.PixelToWorld(col, row)
	br := g.PixelToWorld(col+1, row+1)
	ring := []geom.Point{
		{X: tl.X, Y: tl.Y},
		{X: br.X, Y: tl.Y},
		{X: br.X, Y: br.Y},
		{X: tl.X, Y: br.Y},
		{X: tl.X, Y: tl.Y},
	}
	return geom.Polygon{ring}
}

// ringArea computes the absolute area of a closed ring via the shoelace
// formula.
func ringArea(ring []geom.Point) float64 {
	if len(ring) < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < len(ring)-1; i++ {
		sum += ring[i].X*ring[i+1].Y - ring[i+1].X*ring[i].Y
	}
	return math.Abs(sum) / 2
}

// ToGeoJSON encodes p as GeoJSON bytes, the primary vector output format
// per §6.
func ToGeoJSON(p geom.Polygon) ([]byte, error) {
	return geojson.Encode(p)
}

// ToShapefile encodes p as a single-record ESRI Shapefile (plus its
// .dbf/.shx siblings) at path, the vector sibling format §6 lists for GIS
// tooling that consumes Shapefiles rather than GeoJSON. Its one dbf field
// carries the polygon's own area, mirroring how a multi-field shapefile
// would be built from any other per-feature attribute.
func ToShapefile(p geom.Polygon, path string) error {
	enc, err := shp.NewEncoderFromFields(path, goshp.POLYGON, goshp.FloatField("area_m2", 18, 4))
	if err != nil {
		return fmt.Errorf("footprint: creating shapefile %s: %w", path, err)
	}
	defer enc.Close()

	var area float64
	for _, ring := range p {
		area += ringArea(ring)
	}
	if err := enc.EncodeFields(p, area); err != nil {
		return fmt.Errorf("footprint: writing shapefile %s: %w", path, err)
	}
	return nil
}
