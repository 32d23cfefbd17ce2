package analysis

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/splidsboel/assignment3/pkg/fsutil"
	"github.com/splidsboel/assignment3/pkg/results"
)

// ErrNothingToPlot is returned when no table contributes a data point.
var ErrNothingToPlot = errors.New("no data points to plot")

const (
	plotWidth  = 6 * vg.Inch
	plotHeight = 4 * vg.Inch
	plotDPI    = 200

	// Log axes cannot show zero; zero durations are drawn at 1ns.
	minTimeMS = 1 / nsPerMS
)

var scatterGlyphs = []draw.GlyphDrawer{
	draw.CircleGlyph{},
	draw.TriangleGlyph{},
	draw.CrossGlyph{},
	draw.SquareGlyph{},
	draw.PlusGlyph{},
	draw.RingGlyph{},
}

// BoxPlot writes a PNG with one box per table showing the distribution of
// query time in milliseconds on a log scale. Outliers are not drawn.
func BoxPlot(tables []*results.Table, path string, owner *fsutil.OwnerConfig) error {
	p := plot.New()
	p.Title.Text = "Query runtime comparison"
	p.Y.Label.Text = "Query time (ms)"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{}

	p.Add(dashedGrid())

	labels := make([]string, 0, len(tables))

	for i, t := range tables {
		if len(t.Records) == 0 {
			return fmt.Errorf("box plot: table %s has no records", t.Label)
		}

		values := make(plotter.Values, len(t.Records))
		for j, ms := range TimesMS(t.Records) {
			values[j] = math.Max(ms, minTimeMS)
		}

		box, err := plotter.NewBoxPlot(vg.Points(30), float64(i), values)
		if err != nil {
			return fmt.Errorf("box plot for %s: %w", t.Label, err)
		}

		box.Outside = nil
		box.Min = box.AdjLow
		box.Max = box.AdjHigh

		p.Add(box)

		labels = append(labels, t.Label)
	}

	p.NominalX(labels...)

	return savePNG(p, path, owner)
}

// ScatterPlot writes a PNG of relaxed edges against distance with one
// glyph shape per table. Unreachable queries are skipped.
func ScatterPlot(tables []*results.Table, path string, owner *fsutil.OwnerConfig) error {
	p := plot.New()
	p.Title.Text = "Relaxed edges vs distance"
	p.X.Label.Text = "Distance"
	p.Y.Label.Text = "Relaxed edges"
	p.Legend.Top = true

	p.Add(dashedGrid())

	points := 0

	for i, t := range tables {
		xys := make(plotter.XYs, 0, len(t.Records))

		for _, r := range t.Records {
			if !r.Reachable() {
				continue
			}

			xys = append(xys, plotter.XY{X: float64(r.Distance), Y: float64(r.Relaxed)})
		}

		if len(xys) == 0 {
			continue
		}

		s, err := plotter.NewScatter(xys)
		if err != nil {
			return fmt.Errorf("scatter for %s: %w", t.Label, err)
		}

		s.GlyphStyle.Shape = scatterGlyphs[i%len(scatterGlyphs)]
		s.GlyphStyle.Color = plotutil.Color(i)
		s.GlyphStyle.Radius = vg.Points(2)

		p.Add(s)
		p.Legend.Add(t.Label, s)

		points += len(xys)
	}

	if points == 0 {
		return ErrNothingToPlot
	}

	return savePNG(p, path, owner)
}

func dashedGrid() *plotter.Grid {
	g := plotter.NewGrid()
	g.Vertical.Color = nil
	g.Horizontal.Width = vg.Points(0.5)
	g.Horizontal.Dashes = []vg.Length{vg.Points(3), vg.Points(3)}

	return g
}

func savePNG(p *plot.Plot, path string, owner *fsutil.OwnerConfig) error {
	c := vgimg.NewWith(vgimg.UseWH(plotWidth, plotHeight), vgimg.UseDPI(plotDPI))
	p.Draw(draw.New(c))

	f, err := fsutil.Create(path, owner)
	if err != nil {
		return fmt.Errorf("creating plot file: %w", err)
	}

	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(f); err != nil {
		_ = f.Close()

		return fmt.Errorf("writing plot %s: %w", path, err)
	}

	return f.Close()
}
