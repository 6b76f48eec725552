package main

import (
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// plotForecast draws history, ground truth and forecast of one node.
func plotForecast(path string, history, truth, forecast []float64) error {
	p := plot.New()
	p.Title.Text = "node 0 forecast"
	p.X.Label.Text = "step"
	p.Y.Label.Text = "reading"

	series := []struct {
		name   string
		offset int
		values []float64
	}{
		{"history", 0, history},
		{"truth", len(history), truth},
		{"forecast", len(history), forecast},
	}
	for i, s := range series {
		pts := make(plotter.XYs, len(s.values))
		for j, v := range s.values {
			pts[j] = plotter.XY{X: float64(s.offset + j), Y: v}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = plotutil.Color(i)
		if i > 0 {
			line.Dashes = []vg.Length{vg.Points(2 * float64(i)), vg.Points(2)}
		}
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	return p.Save(8*vg.Inch, 4*vg.Inch, path)
}
