package main

import (
	"fmt"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/limbcontrol/internal/limb"
	"github.com/banshee-data/limbcontrol/internal/roc"
	"github.com/banshee-data/limbcontrol/internal/security"
)

// curves samples every joint of e at steps+1 evenly spaced progress values.
func curves(e *roc.Element, steps int) []plotter.XYs {
	if steps < 1 {
		steps = 1
	}
	out := make([]plotter.XYs, len(e.Joints))
	for j := range out {
		out[j] = make(plotter.XYs, steps+1)
	}
	var vals []float64
	for i := 0; i <= steps; i++ {
		p := float64(i) / float64(steps)
		vals = e.Values(p, vals)
		for j, v := range vals {
			out[j][i] = plotter.XY{X: p, Y: limb.RadToDeg(v)}
		}
	}
	return out
}

// fileName turns an element name like "Three Finger Pinch Grasp" into
// "roc_03_three_finger_pinch_grasp.png".
func fileName(e *roc.Element) string {
	return fmt.Sprintf("roc_%02d_%s.png", e.ID, security.SanitizeFilename(e.Name))
}

// renderElement writes one PNG for e into dir and returns its path.
func renderElement(e *roc.Element, steps int, dir string) (string, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("ROC %d - %s", e.ID, e.Name)
	p.X.Label.Text = "Progress"
	p.Y.Label.Text = "Angle (deg)"
	p.X.Min, p.X.Max = 0, 1

	for j, pts := range curves(e, steps) {
		line, err := plotter.NewLine(pts)
		if err != nil {
			return "", err
		}
		line.Color = plotutil.Color(j)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(e.Joints[j].String(), line)

		wp := make(plotter.XYs, len(e.Waypoints))
		for w, at := range e.Waypoints {
			wp[w] = plotter.XY{X: at, Y: limb.RadToDeg(e.Angles[w][j])}
		}
		marks, err := plotter.NewScatter(wp)
		if err != nil {
			return "", err
		}
		marks.Color = plotutil.Color(j)
		p.Add(marks)
	}
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	path := filepath.Join(dir, fileName(e))
	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return "", err
	}
	return path, nil
}
