package chart

import (
	"fmt"
	"io"
	"math"

	"github.com/danielmundi/PronoSupinoADM/internal/rotation/l4peaks"
	"github.com/danielmundi/PronoSupinoADM/internal/rotation/pipeline"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// HTMLOptions tunes the interactive chart.
type HTMLOptions struct {
	// AssetsHost serves echarts.min.js; empty uses the go-echarts CDN.
	AssetsHost string
	Theme      string
}

// RenderHTML writes a self-contained interactive page for r: the angle
// curve with zoom, and both peak classes as labelled markers.
func RenderHTML(w io.Writer, r *pipeline.Report, o HTMLOptions) error {
	if len(curveSegments(r)) == 0 {
		return ErrNoData
	}

	curve := make([]opts.LineData, len(r.Series.Values))
	for i, v := range r.Series.Values {
		// echarts leaves a gap at "-"; JSON has no NaN.
		var y any = v
		if math.IsNaN(v) || math.IsInf(v, 0) {
			y = "-"
		}
		curve[i] = opts.LineData{Value: []any{r.Series.Time(i), y}}
	}

	subtitle := fmt.Sprintf("%d frames at %d Hz, %d pronation and %d supination peaks",
		r.Frames(), r.FrequencyHz, len(r.Peaks.Pronation), len(r.Peaks.Supination))
	if n := len(r.Series.Failures); n > 0 {
		subtitle += fmt.Sprintf(", %d frames skipped", n)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Forearm rotation", Theme: o.Theme, Width: "1100px", Height: "560px", AssetsHost: o.AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: Title(r), Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "Angle (degrees)", NameLocation: "middle", NameGap: 40}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}, opts.DataZoom{Type: "slider"}),
	)
	line.AddSeries("angle", curve,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#1f77b4"}),
	)

	line.Overlap(
		peakSeries(r.Peaks.Pronation, l4peaks.Pronation, "#d62728", "top"),
		peakSeries(r.Peaks.Supination, l4peaks.Supination, "#2ca02c", "bottom"),
	)

	if err := line.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

func peakSeries(peaks []l4peaks.Peak, class l4peaks.Class, color, position string) *charts.Scatter {
	data := make([]opts.ScatterData, len(peaks))
	for i, pk := range peaks {
		data[i] = opts.ScatterData{Name: PeakLabel(pk.Angle), Value: []any{pk.Time, pk.Angle}}
	}

	scatter := charts.NewScatter()
	scatter.AddSeries(class.String(), data,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 9}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: color}),
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: position, Formatter: "{b}"}),
	)
	return scatter
}
