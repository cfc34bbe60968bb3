package viz

import (
	"fmt"
	"image/color"
	"math"

	"github.com/guptarohit/asciigraph"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// ProfileGraph plots moisture against cell index, top cell first, one
// series per profile.
func ProfileGraph(profiles [][]float64, captions []string, height int) string {
	if len(profiles) == 0 {
		return ""
	}

	colors := []asciigraph.AnsiColor{asciigraph.Blue, asciigraph.Red, asciigraph.Green, asciigraph.Yellow}
	series := make([]asciigraph.AnsiColor, len(profiles))
	for i := range profiles {
		series[i] = colors[i%len(colors)]
	}

	opts := []asciigraph.Option{
		asciigraph.Height(height),
		asciigraph.Precision(3),
		asciigraph.SeriesColors(series...),
		asciigraph.Caption("theta by cell, surface on the left"),
	}
	if len(captions) == len(profiles) {
		opts = append(opts, asciigraph.SeriesLegends(captions...))
	}
	return asciigraph.PlotMany(profiles, opts...)
}

// TimeGraph plots one scalar over time.
func TimeGraph(values []float64, caption string, height, width int) string {
	if len(values) == 0 {
		return ""
	}
	return asciigraph.Plot(values,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	)
}

// SaveProfilePNG draws moisture against depth for every profile. depths
// are the cell centres in metres below the surface. The format follows
// the file extension.
func SaveProfilePNG(path string, depths []float64, profiles [][]float64, labels []string) error {
	p := plot.New()
	p.Title.Text = "Soil moisture"
	p.X.Label.Text = "theta [-]"
	p.Y.Label.Text = "depth [m]"
	p.Legend.Top = true

	for i, theta := range profiles {
		if len(theta) != len(depths) {
			return fmt.Errorf("profile %d has %d cells, want %d", i, len(theta), len(depths))
		}
		pts := make(plotter.XYs, len(theta))
		for j := range theta {
			pts[j].X = theta[j]
			pts[j].Y = -math.Abs(depths[j])
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1.5)
		p.Add(line)
		if i < len(labels) {
			p.Legend.Add(labels[i], line)
		}
	}
	p.Add(plotter.NewGrid())
	p.BackgroundColor = color.White

	return p.Save(4*vg.Inch, 6*vg.Inch, path)
}
