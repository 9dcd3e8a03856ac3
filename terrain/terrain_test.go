package terrain

import (
	"testing"

	"github.com/sitecairn/lidarterrain/geo"
	"github.com/sitecairn/lidarterrain/raster"
)

func testGeoGrid(w, h int) geo.Grid {
	crs, _ := geo.NewCRSFromEPSG(4326)
	return geo.Grid{OriginX: 0, OriginY: float64(h), Sx: 1, Sy: 1, W: w, H: h, CRS: crs}
}

func TestCHMNonNegativeAndNoDataPropagation(t *testing.T) {
	g := testGeoGrid(2, 2)
	dsm := raster.NewGrid(g, raster.Float32)
	dtm := raster.NewGrid(g, raster.Float32)
	dsm.Set(0, 0, 10)
	dtm.Set(0, 0, 12) // DSM < DTM: must clamp to 0, not go negative
	dsm.Set(1, 0, 20)
	dtm.Set(1, 0, 5)
	// (0,1) left NoData in dtm to check propagation
	dsm.Set(0, 1, 7)

	chm, err := CHM(dsm, dtm)
	if err != nil {
		t.Fatal(err)
	}
	if chm.At(0, 0) != 0 {
		t.Errorf("expected clamp to 0, got %v", chm.At(0, 0))
	}
	if chm.At(1, 0) != 15 {
		t.Errorf("expected 15, got %v", chm.At(1, 0))
	}
	if !chm.IsNoData(0, 1) {
		t.Error("expected NoData propagation where dtm is NoData")
	}
}

func TestCHMRejectsMisalignedGrids(t *testing.T) {
	dsm := raster.NewGrid(testGeoGrid(2, 2), raster.Float32)
	dtm := raster.NewGrid(testGeoGrid(3, 3), raster.Float32)
	if _, err := CHM(dsm, dtm); err == nil {
		t.Error("expected invariant_violation for mismatched grids")
	}
}

func TestFillHolesRespectsSearchRadius(t *testing.T) {
	g := raster.NewGrid(testGeoGrid(5, 1), raster.Float32)
	g.Set(0, 0, 10)
	// (0,1)..(0,3) are holes; (0,4) is far outside any cell's radius only
	// if radius is small. Use a small radius to confirm isolated NoData
	// outside radius stays NoData.
	FillHoles(g, HoleFillParams{MaxRadiusPixels: 1, Passes: 2, IDWPower: 2.0})
	if g.IsNoData(0, 1) {
		t.Error("expected (0,1) to be filled from its neighbor at distance 1")
	}
	if !g.IsNoData(0, 3) {
		t.Error("expected (0,3) to remain NoData: out of reach of any valid cell within radius 1 after pass 1")
	}
}

func TestFillHolesNoValidNeighborsStaysNoData(t *testing.T) {
	g := raster.NewGrid(testGeoGrid(3, 3), raster.Float32) // entirely NoData
	FillHoles(g, DefaultHoleFillParams())
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			if !g.IsNoData(row, col) {
				t.Errorf("expected (%d,%d) to remain NoData with no valid seed cells", row, col)
			}
		}
	}
}
