package render

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/sitecairn/lidarterrain/derive"
	"github.com/sitecairn/lidarterrain/raster"
)

// ProductKind names a renderable raster product for the purposes of
// picking a colormap and normalization rule from the §4.8 policy table.
type ProductKind int

const (
	ProductDTM ProductKind = iota
	ProductDSM
	ProductCHM
	ProductSlope
	ProductAspect
	ProductHillshade
	ProductSVF
	ProductLRM
	ProductTPI
	ProductTRI
	ProductRoughness
)

// Policy bundles the colormap and normalization rule for one product kind.
type Policy struct {
	Kind     ProductKind
	Colormap Colormap
	Normalize func(g *raster.Grid, opts RenderOptions) Normalized
}

// RenderOptions carries the few operator-tunable knobs the §4.8 table
// allows: the slope clamp ceiling and the LRM/percentile-stat clip bounds
// (shared with visualize's enhanced normalization so both stages agree).
type RenderOptions struct {
	MaxSlopeDegrees        float64 // default 60
	PercentileLow, PercentileHigh float64 // default 2, 98
}

// DefaultRenderOptions returns the spec's documented defaults.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{MaxSlopeDegrees: 60, PercentileLow: 2, PercentileHigh: 98}
}

// Normalized holds, per cell, a [0,1] value ready for colormap lookup plus
// a validity mask (false = render as transparent/background).
type Normalized struct {
	T     []float64 // row-major, len W*H
	Valid []bool
	W, H  int
	// FlatMask marks cells the Aspect renderer must paint with
	// FlatAspectGray instead of consulting the colormap.
	FlatMask []bool
}

func newNormalized(g *raster.Grid) Normalized {
	n := g.W * g.H
	return Normalized{T: make([]float64, n), Valid: make([]bool, n), W: g.W, H: g.H}
}

func (n Normalized) idx(row, col int) int { return row*n.W + col }

// PolicyFor returns the fixed colormap/normalization policy for kind, per
// the §4.8 table.
func PolicyFor(kind ProductKind) Policy {
	switch kind {
	case ProductDTM, ProductDSM:
		return Policy{Kind: kind, Colormap: Viridis, Normalize: percentileStretch(2, 98, false)}
	case ProductCHM:
		return Policy{Kind: kind, Colormap: GreenSequential, Normalize: percentileStretch(2, 98, true)}
	case ProductSlope:
		return Policy{Kind: kind, Colormap: Inferno, Normalize: linearStretchSlope}
	case ProductAspect:
		return Policy{Kind: kind, Colormap: Cyclic, Normalize: aspectStretch}
	case ProductHillshade:
		return Policy{Kind: kind, Colormap: Grayscale, Normalize: linearStretch(0, 255)}
	case ProductSVF:
		return Policy{Kind: kind, Colormap: Cividis, Normalize: linearStretch(0, 1)}
	case ProductLRM:
		return Policy{Kind: kind, Colormap: Coolwarm, Normalize: divergingStretch}
	case ProductTPI, ProductTRI, ProductRoughness:
		return Policy{Kind: kind, Colormap: SequentialStat, Normalize: percentileStretch(2, 98, false)}
	default:
		return Policy{Kind: kind, Colormap: Grayscale, Normalize: linearStretch(0, 1)}
	}
}

// percentileStretch clips a grid's valid values to their own (low, high)
// percentiles and maps that range to [0,1]. clampNonNegative implements
// CHM's "clamped >= 0" rule.
func percentileStretch(low, high float64, clampNonNegative bool) func(*raster.Grid, RenderOptions) Normalized {
	return func(g *raster.Grid, opts RenderOptions) Normalized {
		l, h := low, high
		if opts.PercentileLow > 0 {
			l = opts.PercentileLow
		}
		if opts.PercentileHigh > 0 {
			h = opts.PercentileHigh
		}
		values := g.ValidValues()
		out := newNormalized(g)
		if len(values) == 0 {
			return out
		}
		pLow := percentile(values, l)
		pHigh := percentile(values, h)
		if clampNonNegative && pLow < 0 {
			pLow = 0
		}
		span := pHigh - pLow
		for row := 0; row < g.H; row++ {
			for col := 0; col < g.W; col++ {
				if g.IsNoData(row, col) {
					continue
				}
				v := g.At(row, col)
				if clampNonNegative && v < 0 {
					v = 0
				}
				i := out.idx(row, col)
				out.Valid[i] = true
				if span <= 0 {
					out.T[i] = 0.5
					continue
				}
				out.T[i] = clampUnit((v - pLow) / span)
			}
		}
		return out
	}
}

// linearStretch maps [lo, hi] linearly to [0, 1], clamping outliers.
func linearStretch(lo, hi float64) func(*raster.Grid, RenderOptions) Normalized {
	return func(g *raster.Grid, opts RenderOptions) Normalized {
		out := newNormalized(g)
		span := hi - lo
		for row := 0; row < g.H; row++ {
			for col := 0; col < g.W; col++ {
				if g.IsNoData(row, col) {
					continue
				}
				i := out.idx(row, col)
				out.Valid[i] = true
				if span <= 0 {
					out.T[i] = 0
					continue
				}
				out.T[i] = clampUnit((g.At(row, col) - lo) / span)
			}
		}
		return out
	}
}

// linearStretchSlope is linearStretch(0, opts.MaxSlopeDegrees) with the
// spec's documented default ceiling.
func linearStretchSlope(g *raster.Grid, opts RenderOptions) Normalized {
	ceiling := opts.MaxSlopeDegrees
	if ceiling <= 0 {
		ceiling = 60
	}
	return linearStretch(0, ceiling)(g, opts)
}

// aspectStretch maps compass bearings [0,360) to [0,1) for the cyclic
// colormap, marking FlatAspectSentinel cells in FlatMask instead.
func aspectStretch(g *raster.Grid, opts RenderOptions) Normalized {
	out := newNormalized(g)
	out.FlatMask = make([]bool, g.W*g.H)
	for row := 0; row < g.H; row++ {
		for col := 0; col < g.W; col++ {
			if g.IsNoData(row, col) {
				continue
			}
			i := out.idx(row, col)
			out.Valid[i] = true
			v := g.At(row, col)
			if v == derive.FlatAspectSentinel {
				out.FlatMask[i] = true
				continue
			}
			out.T[i] = math.Mod(v, 360) / 360
		}
	}
	return out
}

// divergingStretch centers a grid about 0 using the (P_low, P_high)
// percentile-derived scale, matching visualize.LRM's enhanced
// normalization convention, then maps [-1,1] to [0,1] for the colormap.
func divergingStretch(g *raster.Grid, opts RenderOptions) Normalized {
	low, high := opts.PercentileLow, opts.PercentileHigh
	if low <= 0 {
		low = 2
	}
	if high <= 0 {
		high = 98
	}
	values := g.ValidValues()
	out := newNormalized(g)
	if len(values) == 0 {
		return out
	}
	pLow := percentile(values, low)
	pHigh := percentile(values, high)
	scale := pHigh
	if -pLow > scale {
		scale = -pLow
	}
	for row := 0; row < g.H; row++ {
		for col := 0; col < g.W; col++ {
			if g.IsNoData(row, col) {
				continue
			}
			i := out.idx(row, col)
			out.Valid[i] = true
			v := g.At(row, col)
			if scale > 0 {
				v = clamp(v, -scale, scale) / scale // [-1, 1]
			} else {
				v = 0
			}
			out.T[i] = (v + 1) / 2
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// percentile returns the p-th percentile (0-100) of values via gonum's
// empirical quantile estimator, the same one visualize.LRM's enhanced
// normalization uses, kept independent here since render's normalization
// runs before any visualize-specific enhancement and must not import
// visualize's internal helper.
func percentile(values []float64, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 0 {
		return 0
	}
	return stat.Quantile(p/100, stat.Empirical, sorted, nil)
}
