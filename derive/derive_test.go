package derive

import (
	"math"
	"testing"

	"github.com/sitecairn/lidarterrain/geo"
	"github.com/sitecairn/lidarterrain/raster"
)

func flatDTM(w, h int, elevation float64) *raster.Grid {
	crs, _ := geo.NewCRSFromEPSG(4326)
	g := geo.Grid{OriginX: 0, OriginY: float64(h), Sx: 1, Sy: 1, W: w, H: h, CRS: crs}
	out := raster.NewGrid(g, raster.Float32)
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			out.Set(row, col, elevation)
		}
	}
	return out
}

func TestSlopeFlatIsZero(t *testing.T) {
	dtm := flatDTM(5, 5, 100)
	slope := Slope(dtm)
	if slope.IsNoData(2, 2) {
		t.Fatal("expected interior cell to be valid")
	}
	if math.Abs(slope.At(2, 2)) > 1e-9 {
		t.Errorf("expected 0 slope on a flat plane, got %v", slope.At(2, 2))
	}
}

func TestSlopeEdgeCellsAreNoData(t *testing.T) {
	dtm := flatDTM(5, 5, 100)
	slope := Slope(dtm)
	if !slope.IsNoData(0, 0) {
		t.Error("expected edge cell (0,0) to be NoData (3x3 window leaves grid)")
	}
}

func TestAspectFlatGetsSentinel(t *testing.T) {
	dtm := flatDTM(5, 5, 100)
	aspect := Aspect(dtm, 0)
	if aspect.At(2, 2) != FlatAspectSentinel {
		t.Errorf("expected flat-aspect sentinel, got %v", aspect.At(2, 2))
	}
}

func TestHillshadeFlatIsUniform(t *testing.T) {
	dtm := flatDTM(5, 5, 50)
	hs := Hillshade(dtm, DefaultHillshadeParams())
	center := hs.At(2, 2)
	if center < 0 || center > 255 {
		t.Errorf("expected byte-range hillshade, got %v", center)
	}
	for row := 1; row < 4; row++ {
		for col := 1; col < 4; col++ {
			if hs.At(row, col) != center {
				t.Errorf("expected uniform hillshade on a flat plane at (%d,%d): %v != %v", row, col, hs.At(row, col), center)
			}
		}
	}
}

func TestTRIFlatIsZero(t *testing.T) {
	dtm := flatDTM(5, 5, 10)
	tri := TRI(dtm)
	if tri.At(2, 2) != 0 {
		t.Errorf("expected 0 TRI on a flat plane, got %v", tri.At(2, 2))
	}
}

func TestRoughnessFlatIsZero(t *testing.T) {
	dtm := flatDTM(5, 5, 10)
	r := Roughness(dtm)
	if r.At(2, 2) != 0 {
		t.Errorf("expected 0 roughness on a flat plane, got %v", r.At(2, 2))
	}
}

func TestTPIFlatIsZero(t *testing.T) {
	dtm := flatDTM(5, 5, 10)
	tpi := TPI(dtm, DefaultTPIParams())
	if tpi.At(2, 2) != 0 {
		t.Errorf("expected 0 TPI on a flat plane, got %v", tpi.At(2, 2))
	}
}

func TestMultiDirectionalAveragesLayers(t *testing.T) {
	dtm := flatDTM(5, 5, 10)
	md := MultiDirectional(dtm, DefaultHillshadeParams(), []float64{0, 90, 180, 270})
	if md.At(2, 2) < 0 || md.At(2, 2) > 255 {
		t.Errorf("expected byte-range multi-directional hillshade, got %v", md.At(2, 2))
	}
}
