package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	draw2 "image/draw"
	"image/png"
	"os"
	"path/filepath"

	"github.com/ctessum/plotextra"
	"github.com/sitecairn/lidarterrain/raster"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Output is the set of files one Render call produces for a single
// product, matching §4.8's "clean image + decorated image + world file"
// triple and §6's directory layout (png/<product>.png for the clean
// image, <product>.decorated.png, and <product>.pgw).
type Output struct {
	CleanPath     string
	DecoratedPath string
	WorldFilePath string
	Stats         Summary
}

// Renderer turns raster products into the PNG outputs of §4.8.
type Renderer struct {
	OutDir string
}

// Render normalizes g once under kind's fixed colormap/normalization
// policy and writes both the clean (pixel-exact) and decorated
// (colorbar + title + stats) PNGs plus one shared world file, so the
// percentile-stretch pass referenced by spec.md's §4.8 table runs
// exactly once.
func (r *Renderer) Render(g *raster.Grid, kind ProductKind, productName string, opts RenderOptions) (Output, error) {
	if err := os.MkdirAll(r.OutDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("render: creating output dir: %w", err)
	}
	policy := PolicyFor(kind)
	norm := policy.Normalize(g, opts)
	summary := Describe(g)

	clean := rasterize(norm, policy.Colormap)

	cleanPath := filepath.Join(r.OutDir, productName+".png")
	if err := writeAtomicPNG(cleanPath, clean); err != nil {
		return Output{}, fmt.Errorf("render: writing clean image for %s: %w", productName, err)
	}

	worldPath := filepath.Join(r.OutDir, productName+".pgw")
	if err := writeWorldFile(worldPath, g.Affine()); err != nil {
		return Output{}, fmt.Errorf("render: writing world file for %s: %w", productName, err)
	}

	decoratedPath := filepath.Join(r.OutDir, productName+".decorated.png")
	decorated, err := decorate(clean, productName, summary, policy.Colormap)
	if err != nil {
		return Output{}, fmt.Errorf("render: decorating %s: %w", productName, err)
	}
	if err := writeAtomicPNG(decoratedPath, decorated); err != nil {
		return Output{}, fmt.Errorf("render: writing decorated image for %s: %w", productName, err)
	}

	return Output{CleanPath: cleanPath, DecoratedPath: decoratedPath, WorldFilePath: worldPath, Stats: summary}, nil
}

// rasterize paints norm through cm into a pixel-exact RGBA image (w, h
// equal to the source grid's), NoData cells left fully transparent per
// §4.8's background policy. This is a direct pixel write, not a chart —
// gonum/plot draws the decorated variant's colorbar and text instead.
func rasterize(norm Normalized, cm Colormap) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, norm.W, norm.H))
	for row := 0; row < norm.H; row++ {
		for col := 0; col < norm.W; col++ {
			i := norm.idx(row, col)
			if !norm.Valid[i] {
				continue // stays zero-alpha: NoData -> transparent
			}
			if norm.FlatMask != nil && norm.FlatMask[i] {
				img.SetRGBA(col, row, FlatAspectGray)
				continue
			}
			img.SetRGBA(col, row, cm(norm.T[i]))
		}
	}
	return img
}

func writeAtomicPNG(path string, img image.Image) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// writeWorldFile writes the six-line .pgw sidecar (sx, rotX, rotY, -sy,
// x0, y0) a RenderedImage's pixel-to-world affine, per §4.8/§6.
func writeWorldFile(path string, affine [6]float64) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	for _, v := range affine {
		if _, err := fmt.Fprintf(f, "%.10f\n", v); err != nil {
			f.Close()
			os.Remove(tmp)
			return err
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// decorate composes the clean raster onto a larger canvas with a title
// band, a gonum/plot colorbar (via a plotextra.BrokenColorMap whose top
// end, above its high cut, is drawn in a distinct overflow color; the
// raster pixels themselves are not recolored), and a one-line
// statistics summary, the same
// title+colorbar+stats composition spec.md's §4.8 calls the "decorated"
// image.
func decorate(clean *image.RGBA, title string, summary Summary, cm Colormap) (image.Image, error) {
	const margin = 10
	const titleHeight = 22
	const barHeight = 40
	const statsHeight = 16

	barImg, err := colorbarImage(cm, 300, barHeight-10)
	if err != nil {
		return nil, err
	}

	w := clean.Bounds().Dx() + 2*margin
	if barImg.Bounds().Dx()+2*margin > w {
		w = barImg.Bounds().Dx() + 2*margin
	}
	h := clean.Bounds().Dy() + 2*margin + titleHeight + barHeight + statsHeight

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	draw2.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, draw2.Src)

	drawLabel(out, title, margin, titleHeight-8)

	rasterOrigin := image.Pt(margin, titleHeight+margin)
	draw2.Draw(out, image.Rect(rasterOrigin.X, rasterOrigin.Y, rasterOrigin.X+clean.Bounds().Dx(), rasterOrigin.Y+clean.Bounds().Dy()), clean, image.Point{}, draw2.Over)

	barOrigin := image.Pt(margin, rasterOrigin.Y+clean.Bounds().Dy()+margin)
	draw2.Draw(out, image.Rect(barOrigin.X, barOrigin.Y, barOrigin.X+barImg.Bounds().Dx(), barOrigin.Y+barImg.Bounds().Dy()), barImg, image.Point{}, draw2.Over)

	statsLine := fmt.Sprintf("n=%d mean=%.2f std=%.2f min=%.2f max=%.2f", summary.Count, summary.Mean, summary.StdDev, summary.Min, summary.Max)
	drawLabel(out, statsLine, margin, barOrigin.Y+barImg.Bounds().Dy()+statsHeight-4)

	return out, nil
}

// colorbarImage renders a gonum/plot plotter.ColorBar fed by cm through
// a plotextra.BrokenColorMap, the same plotter.ColorBar +
// plotextra.BrokenColorMap + vgimg.PngCanvas pipeline
// emissions/slca/eieio's legend() function uses to rasterize a colorbar
// to a PNG byte buffer.
func colorbarImage(cm Colormap, widthPx, heightPx int) (image.Image, error) {
	base := &gridPalette{cm: cm, min: 0, max: 1}
	overflow := &highlightPalette{color: clipHighlight, min: 0, max: 1}
	bcm := &plotextra.BrokenColorMap{Base: base, OverFlow: overflow}
	bcm.SetMin(0)
	bcm.SetMax(1)
	bcm.SetHighCut(0.995)

	p := plot.New()
	bar := &plotter.ColorBar{ColorMap: bcm}
	p.Add(bar)
	p.HideY()
	p.X.Padding = 0

	img := vgimg.New(vg.Points(float64(widthPx)), vg.Points(float64(heightPx)))
	dc := draw.New(img)
	p.Draw(dc)

	buf := new(bytes.Buffer)
	canvas := vgimg.PngCanvas{Canvas: img}
	if _, err := canvas.WriteTo(buf); err != nil {
		return nil, fmt.Errorf("render: encoding colorbar: %w", err)
	}
	decoded, err := png.Decode(buf)
	if err != nil {
		return nil, fmt.Errorf("render: decoding colorbar: %w", err)
	}
	return decoded, nil
}

func drawLabel(dst draw2.Image, text string, x, baselineY int) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(baselineY)},
	}
	d.DrawString(text)
}
