// Package chart draws the rotation angle of an analysed trial against time,
// with the accepted peaks marked and labelled by their angle.
package chart

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/danielmundi/PronoSupinoADM/internal/rotation/l4peaks"
	"github.com/danielmundi/PronoSupinoADM/internal/rotation/pipeline"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// ErrNoData is returned when the report has no finite angle to draw.
var ErrNoData = errors.New("nothing to plot")

// Size is the drawing area of a static chart.
type Size struct {
	Width, Height vg.Length
}

// DefaultSize matches a landscape page figure.
var DefaultSize = Size{Width: 10 * vg.Inch, Height: 5 * vg.Inch}

var (
	curveColor      = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	pronationColor  = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	supinationColor = color.RGBA{R: 44, G: 160, B: 44, A: 255}
)

// PeakLabel formats a peak angle the way charts annotate it.
func PeakLabel(angle float64) string {
	return fmt.Sprintf("%.0f°", angle)
}

// Title returns the heading used for a report's charts.
func Title(r *pipeline.Report) string {
	if r.ROM == nil {
		return "Forearm rotation"
	}
	return "Forearm rotation: " + r.ROM.String()
}

// Plot builds the annotated angle-vs-time figure for r.
func Plot(r *pipeline.Report) (*plot.Plot, error) {
	segments := curveSegments(r)
	if len(segments) == 0 {
		return nil, ErrNoData
	}

	p := plot.New()
	p.Title.Text = Title(r)
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Angle (degrees)"
	p.Add(plotter.NewGrid())

	// NaN frames split the curve; each run is its own line.
	for i, pts := range segments {
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create curve: %w", err)
		}
		line.Color = curveColor
		line.Width = vg.Points(1)
		p.Add(line)
		if i == 0 {
			p.Legend.Add("angle", line)
		}
	}

	for _, class := range []struct {
		peaks []l4peaks.Peak
		color color.Color
		shape draw.GlyphDrawer
		yOffs vg.Length
	}{
		{r.Peaks.Pronation, pronationColor, draw.TriangleGlyph{}, vg.Points(6)},
		{r.Peaks.Supination, supinationColor, draw.CircleGlyph{}, -vg.Points(12)},
	} {
		if len(class.peaks) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(class.peaks))
		labels := make([]string, len(class.peaks))
		for i, pk := range class.peaks {
			pts[i] = plotter.XY{X: pk.Time, Y: pk.Angle}
			labels[i] = PeakLabel(pk.Angle)
		}

		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s markers: %w", class.peaks[0].Class, err)
		}
		scatter.GlyphStyle.Color = class.color
		scatter.GlyphStyle.Shape = class.shape
		scatter.GlyphStyle.Radius = vg.Points(3)
		p.Add(scatter)
		p.Legend.Add(class.peaks[0].Class.String(), scatter)

		text, err := plotter.NewLabels(plotter.XYLabels{XYs: pts, Labels: labels})
		if err != nil {
			return nil, fmt.Errorf("failed to create %s labels: %w", class.peaks[0].Class, err)
		}
		text.Offset = vg.Point{X: -vg.Points(8), Y: class.yOffs}
		p.Add(text)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// curveSegments splits the series into runs of finite values.
func curveSegments(r *pipeline.Report) []plotter.XYs {
	var out []plotter.XYs
	var cur plotter.XYs
	for i, v := range r.Series.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			if len(cur) > 0 {
				out = append(out, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, plotter.XY{X: r.Series.Time(i), Y: v})
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// RenderPNG writes the figure for r as a PNG image.
func RenderPNG(w io.Writer, r *pipeline.Report, size Size) error {
	p, err := Plot(r)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(size.Width, size.Height, "png")
	if err != nil {
		return fmt.Errorf("failed to render png: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// Save writes the figure for r to path; the extension picks the format
// (png, svg, pdf, jpg, ...).
func Save(path string, r *pipeline.Report, size Size) error {
	p, err := Plot(r)
	if err != nil {
		return err
	}
	if err := p.Save(size.Width, size.Height, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}
