package derive

import (
	"math"

	"github.com/sitecairn/lidarterrain/raster"
)

// HillshadeFormulationVersion is recorded in the build manifest per the
// DESIGN.md §9 decision, so a future change to the gradient method is a
// visible cache-busting version bump rather than a silent change.
const HillshadeFormulationVersion = "horn-v1"

// HillshadeParams controls a single-direction hillshade render.
type HillshadeParams struct {
	AzimuthDegrees float64 // [0, 360)
	AltitudeDegrees float64 // [0, 90]
	ZFactor         float64 // >= 0, default 1.0
}

// DefaultHillshadeParams returns the conventional 315/45 illumination.
func DefaultHillshadeParams() HillshadeParams {
	return HillshadeParams{AzimuthDegrees: 315, AltitudeDegrees: 45, ZFactor: 1.0}
}

// Hillshade computes Lambertian shading from dtm using Horn's gradient
// (the same kernel Slope/Aspect use), producing a Byte grid in [0,255].
// NoData propagates from the 3x3 window exactly as it does for slope.
func Hillshade(dtm *raster.Grid, params HillshadeParams) *raster.Grid {
	if params.ZFactor <= 0 {
		params.ZFactor = 1.0
	}
	// The sun azimuth is a compass bearing (0 = north, clockwise);
	// lambertianShade compares it with a math-convention aspect
	// (counterclockwise from east), so convert it to that convention.
	azRad := (450 - params.AzimuthDegrees) * math.Pi / 180
	altRad := params.AltitudeDegrees * math.Pi / 180

	out := raster.NewGrid(dtm.Grid, raster.Byte)
	for row := 0; row < dtm.H; row++ {
		for col := 0; col < dtm.W; col++ {
			dzdx, dzdy, ok := hornGradient(dtm, row, col)
			if !ok {
				out.MarkNoData(row, col)
				continue
			}
			out.Set(row, col, float64(lambertianShade(dzdx*params.ZFactor, dzdy*params.ZFactor, azRad, altRad)))
		}
	}
	return out
}

// lambertianShade computes standard Lambertian hillshade from a surface
// gradient and sun position, returning a byte value clamped to [0,255].
// azimuthRad is the sun direction counterclockwise from east; altitudeRad
// is the sun's elevation above the horizon.
func lambertianShade(dzdx, dzdy, azimuthRad, altitudeRad float64) byte {
	slopeRad := math.Atan(math.Hypot(dzdx, dzdy))
	var aspectRad float64
	if dzdx != 0 || dzdy != 0 {
		aspectRad = math.Atan2(dzdy, -dzdx)
	}
	shade := math.Sin(altitudeRad)*math.Cos(slopeRad) +
		math.Cos(altitudeRad)*math.Sin(slopeRad)*math.Cos(azimuthRad-aspectRad)
	if shade < 0 {
		shade = 0
	}
	v := shade * 255
	if v > 255 {
		v = 255
	}
	return byte(v)
}

// MultiDirectional combines hillshades from N >= 2 distinct azimuths by
// taking the mean per cell (§4.5 multi-directional mode).
func MultiDirectional(dtm *raster.Grid, base HillshadeParams, azimuths []float64) *raster.Grid {
	if len(azimuths) < 2 {
		azimuths = []float64{base.AzimuthDegrees, math.Mod(base.AzimuthDegrees+180, 360)}
	}
	layers := make([]*raster.Grid, len(azimuths))
	for i, az := range azimuths {
		p := base
		p.AzimuthDegrees = az
		layers[i] = Hillshade(dtm, p)
	}
	out := raster.NewGrid(dtm.Grid, raster.Byte)
	for row := 0; row < dtm.H; row++ {
		for col := 0; col < dtm.W; col++ {
			var sum float64
			invalid := false
			for _, l := range layers {
				if l.IsNoData(row, col) {
					invalid = true
					break
				}
				sum += l.At(row, col)
			}
			if invalid {
				out.MarkNoData(row, col)
				continue
			}
			out.Set(row, col, sum/float64(len(layers)))
		}
	}
	return out
}

// RGBComposite assigns three azimuths' hillshades to R, G, B bands,
// returned as three single-band Byte grids sharing dtm's geometry
// (§4.5's RGB-composite mode); combining them into one 3-band image is
// left to the caller.
func RGBComposite(dtm *raster.Grid, base HillshadeParams, azR, azG, azB float64) (r, g, b *raster.Grid) {
	pr, pg, pb := base, base, base
	pr.AzimuthDegrees, pg.AzimuthDegrees, pb.AzimuthDegrees = azR, azG, azB
	return Hillshade(dtm, pr), Hillshade(dtm, pg), Hillshade(dtm, pb)
}
