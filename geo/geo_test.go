package geo

import "testing"

func TestIsNoData(t *testing.T) {
	if !IsNoData(NoData) {
		t.Error("NoData sentinel should report IsNoData")
	}
	if IsNoData(0) {
		t.Error("0 is a valid value, not NoData")
	}
	if IsNoData(-9998.9) {
		t.Error("near-sentinel value should not be treated as NoData")
	}
}

func TestBoundingBoxEmpty(t *testing.T) {
	b := EmptyBoundingBox()
	if !b.IsEmpty() {
		t.Error("EmptyBoundingBox should be empty")
	}
	real := BoundingBox{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	if real.IsEmpty() {
		t.Error("non-degenerate box should not be empty")
	}
	if !real.Valid() {
		t.Error("min <= max box should be valid")
	}
}

func TestBoundingBoxExtend(t *testing.T) {
	a := BoundingBox{MinX: 0, MinY: 0, MaxX: 5, MaxY: 5}
	b := BoundingBox{MinX: 3, MinY: -2, MaxX: 10, MaxY: 4}
	u := a.Extend(b)
	if u.MinX != 0 || u.MinY != -2 || u.MaxX != 10 || u.MaxY != 5 {
		t.Errorf("unexpected union: %+v", u)
	}
	if EmptyBoundingBox().Extend(a) != a {
		t.Error("extending empty by a should yield a")
	}
}

func TestGridBoundsAndPixelConversion(t *testing.T) {
	g := Grid{OriginX: 100, OriginY: 200, Sx: 1, Sy: 1, W: 10, H: 20}
	b := g.Bounds()
	if b.MinX != 100 || b.MaxX != 110 || b.MinY != 180 || b.MaxY != 200 {
		t.Errorf("unexpected bounds: %+v", b)
	}
	p := g.PixelToWorld(0, 0)
	if p.X != 100 || p.Y != 200 {
		t.Errorf("pixel (0,0) should map to origin, got %+v", p)
	}
	col, row := g.WorldToPixel(Point{X: 100.5, Y: 199.5})
	if col != 0 || row != 0 {
		t.Errorf("expected (0,0), got (%d,%d)", col, row)
	}
}

func TestGridAlignedWith(t *testing.T) {
	a := Grid{OriginX: 0, OriginY: 0, Sx: 1, Sy: 1, W: 10, H: 10}
	b := Grid{OriginX: 0, OriginY: 0, Sx: 1, Sy: 1, W: 10, H: 10}
	if !a.AlignedWith(b) {
		t.Error("identical grids should be aligned")
	}
	c := Grid{OriginX: 0.5, OriginY: 0, Sx: 1, Sy: 1, W: 10, H: 10}
	if a.AlignedWith(c) {
		t.Error("grids offset by a fraction of a pixel should not be aligned")
	}
	d := Grid{OriginX: 0, OriginY: 0, Sx: 2, Sy: 1, W: 10, H: 10}
	if a.AlignedWith(d) {
		t.Error("grids with different pixel size should not be aligned")
	}
}

func TestCRSEqual(t *testing.T) {
	a := CRS{Authority: "EPSG", Code: 4326}
	b := CRS{Authority: "EPSG", Code: 4326}
	c := CRS{Authority: "EPSG", Code: 32610}
	if !a.Equal(b) {
		t.Error("same EPSG code should be equal")
	}
	if a.Equal(c) {
		t.Error("different EPSG codes should not be equal")
	}
}
