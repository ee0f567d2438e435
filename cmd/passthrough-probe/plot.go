package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"tailscale.com/tsweb"

	"github.com/banshee-data/passthrough/internal/passthrough"
)

var errNoIntervals = errors.New("no capture intervals recorded")

const (
	plotWidth  = 10 * vg.Inch
	plotHeight = 4 * vg.Inch
)

// intervalPlot charts capture intervals in milliseconds with their mean.
func intervalPlot(intervals []time.Duration) (*plot.Plot, error) {
	if len(intervals) == 0 {
		return nil, errNoIntervals
	}
	ms := make([]float64, len(intervals))
	pts := make(plotter.XYs, len(intervals))
	for i, d := range intervals {
		ms[i] = float64(d) / float64(time.Millisecond)
		pts[i].X = float64(i)
		pts[i].Y = ms[i]
	}
	mean := stat.Mean(ms, nil)

	p := plot.New()
	p.Title.Text = "Camera capture intervals"
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Interval (ms)"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("failed to create interval line: %w", err)
	}
	line.Width = vg.Points(1)

	meanLine := plotter.NewFunction(func(float64) float64 { return mean })
	meanLine.Width = vg.Points(1)
	meanLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(plotter.NewGrid(), line, meanLine)
	p.Legend.Add("interval", line)
	p.Legend.Add(fmt.Sprintf("mean %.2f ms", mean), meanLine)
	p.Legend.Top = true
	return p, nil
}

// writeIntervalPlot saves the interval chart as an image; the format
// follows the file extension.
func writeIntervalPlot(path string, intervals []time.Duration) error {
	p, err := intervalPlot(intervals)
	if err != nil {
		return err
	}
	return p.Save(plotWidth, plotHeight, path)
}

// attachPlotRoute serves the live interval chart as a PNG debug page.
func attachPlotRoute(mux *http.ServeMux, mgr *passthrough.CameraManager) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("passthrough-intervals", "capture interval chart (PNG)", func(w http.ResponseWriter, r *http.Request) {
		p, err := intervalPlot(mgr.CaptureIntervals())
		if errors.Is(err, errNoIntervals) {
			http.Error(w, "No frames captured yet", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		wt, err := p.WriterTo(plotWidth, plotHeight, "png")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		wt.WriteTo(w)
	})
}
