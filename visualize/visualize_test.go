package visualize

import (
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

func TestSVFFlatPlaneIsFullyOpen(t *testing.T) {
	dtm := flatDTM(25, 25, 10)
	svf := SVF(dtm, DefaultSVFParams())
	center := svf.At(12, 12)
	if center < 0.95 || center > 1.0001 {
		t.Errorf("expected near-1.0 sky-view factor on a flat plane, got %v", center)
	}
}

func TestSVFEdgeCellMayBeNoData(t *testing.T) {
	dtm := flatDTM(5, 5, 10)
	svf := SVF(dtm, SVFParams{NumDirections: 16, MaxRadiusCells: 10})
	if !svf.IsNoData(0, 0) {
		t.Error("expected corner cell with too few usable rays to be NoData")
	}
}

func TestAutoWindowSizeTable(t *testing.T) {
	cases := map[float64]int{0.3: 61, 1.0: 31, 1.5: 21, 5.0: 11}
	for px, want := range cases {
		if got := AutoWindowSize(px); got != want {
			t.Errorf("AutoWindowSize(%v) = %d, want %d", px, got, want)
		}
	}
}

func TestLRMFlatPlaneIsZero(t *testing.T) {
	dtm := flatDTM(15, 15, 100)
	lrm := LRM(dtm, LRMParams{WindowSize: 5, FilterType: FilterUniform})
	if lrm.IsNoData(7, 7) {
		t.Fatal("expected interior cell valid")
	}
	if v := lrm.At(7, 7); v < -1e-9 || v > 1e-9 {
		t.Errorf("expected 0 LRM on a flat plane, got %v", v)
	}
}

func TestLRMEnhancedNormalizationBounded(t *testing.T) {
	crs, _ := geo.NewCRSFromEPSG(4326)
	g := geo.Grid{OriginX: 0, OriginY: 20, Sx: 1, Sy: 1, W: 20, H: 20, CRS: crs}
	dtm := raster.NewGrid(g, raster.Float32)
	for row := 0; row < 20; row++ {
		for col := 0; col < 20; col++ {
			v := 100.0
			if (row+col)%3 == 0 {
				v += float64(row * col % 7)
			}
			dtm.Set(row, col, v)
		}
	}
	lrm := LRM(dtm, LRMParams{WindowSize: 5, FilterType: FilterUniform, Enhanced: true, PercentileLow: 2, PercentileHigh: 98})
	for row := 3; row < 17; row++ {
		for col := 3; col < 17; col++ {
			if lrm.IsNoData(row, col) {
				continue
			}
			if v := lrm.At(row, col); v < -1.0001 || v > 1.0001 {
				t.Fatalf("expected enhanced-normalized LRM in [-1,1], got %v at (%d,%d)", v, row, col)
			}
		}
	}
}
