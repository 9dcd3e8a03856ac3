package raster

import (
	"testing"

	"github.com/sitecairn/lidarterrain/geo"
)

func gridOf(g geo.Grid, dtype Dtype, values [][]float64) *Grid {
	out := NewGrid(g, dtype)
	for r, row := range values {
		for c, v := range row {
			out.Set(r, c, v)
		}
	}
	return out
}

func testGeoGrid() geo.Grid {
	return geo.Grid{OriginX: 0, OriginY: 10, Sx: 1, Sy: 1, W: 3, H: 3}
}

func TestBinaryOpNoDataPropagation(t *testing.T) {
	g := testGeoGrid()
	a := gridOf(g, Float32, [][]float64{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}})
	b := gridOf(g, Float32, [][]float64{{1, 1, 1}, {1, float64(geo.NoData), 1}, {1, 1, 1}})

	out, err := BinaryOp(a, b, func(x, y float64) float64 { return x - y })
	if err != nil {
		t.Fatal(err)
	}
	if out.IsNoData(0, 0) {
		t.Error("cell (0,0) should be valid")
	}
	if out.At(0, 0) != 0 {
		t.Errorf("expected 0, got %v", out.At(0, 0))
	}
	if !out.IsNoData(1, 1) {
		t.Error("cell (1,1) should be NoData since b was NoData there")
	}
}

func TestBinaryOpRejectsMisalignedGrids(t *testing.T) {
	a := NewGrid(testGeoGrid(), Float32)
	misaligned := testGeoGrid()
	misaligned.W = 4
	b := NewGrid(misaligned, Float32)
	if _, err := BinaryOp(a, b, func(x, y float64) float64 { return x + y }); err == nil {
		t.Error("expected error for misaligned grids")
	}
}

func TestClamp(t *testing.T) {
	g := gridOf(testGeoGrid(), Float32, [][]float64{{-5, 0, 5}, {10, float64(geo.NoData), -10}, {1, 2, 3}})
	out := Clamp(g, 0, 5)
	if out.At(0, 0) != 0 {
		t.Errorf("expected clamp to 0, got %v", out.At(0, 0))
	}
	if out.At(1, 0) != 5 {
		t.Errorf("expected clamp to 5, got %v", out.At(1, 0))
	}
	if !out.IsNoData(1, 1) {
		t.Error("NoData should pass through Clamp untouched")
	}
}

func TestAlignAlreadyAligned(t *testing.T) {
	a := NewGrid(testGeoGrid(), Float32)
	b := NewGrid(testGeoGrid(), Float32)
	aa, bb, err := Align(a, b, Nearest)
	if err != nil {
		t.Fatal(err)
	}
	if aa != a || bb != b {
		t.Error("already-aligned grids should be returned unchanged")
	}
}
