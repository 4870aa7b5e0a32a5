// session-plot renders the parameter trajectory of an exported adjustment
// log as PNG charts, one per parameter group. Feed it the JSON produced by
// the /log/export endpoint:
//
//	session-plot -input adjustments-<session>.json -output plots/
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/splatmaps/georef/internal/georef"
)

var (
	inputFile = flag.String("input", "", "Exported adjustment log (JSON)")
	outputDir = flag.String("output", "plots", "Directory for rendered PNGs")
)

func main() {
	flag.Parse()

	if *inputFile == "" {
		log.Fatal("-input is required")
	}

	data, err := os.ReadFile(*inputFile)
	if err != nil {
		log.Fatalf("read export: %v", err)
	}

	var export georef.AuditExport
	if err := json.Unmarshal(data, &export); err != nil {
		log.Fatalf("parse export: %v", err)
	}
	if len(export.Entries) == 0 {
		log.Fatal("export contains no adjustment entries")
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}

	trajectories := replay(export)

	count, err := renderPlots(trajectories, *outputDir)
	if err != nil {
		log.Fatalf("render plots: %v", err)
	}

	log.Printf("rendered %d plots to %s (%d entries replayed)",
		count, *outputDir, len(export.Entries))
}

// trajectory is one parameter's value at every step of the log, step 0
// being the session's initial state.
type trajectory struct {
	name   string
	unit   string
	values []float64
}

// replay walks the audit log forward from the initial state so every
// parameter has a value at every step. After values are authoritative.
func replay(export georef.AuditExport) []trajectory {
	state := export.Initial

	trajectories := []trajectory{
		{name: "scale", unit: "m per unit"},
		{name: "yaw", unit: "rad"},
		{name: "pitch", unit: "rad"},
		{name: "roll", unit: "rad"},
		{name: "east", unit: "m"},
		{name: "north", unit: "m"},
		{name: "up", unit: "m"},
	}

	record := func() {
		vals := []float64{
			state.Scale, state.YawRad, state.PitchRad, state.RollRad,
			state.TEast, state.TNorth, state.TUp,
		}
		for i := range trajectories {
			trajectories[i].values = append(trajectories[i].values, vals[i])
		}
	}
	record()

	for _, e := range export.Entries {
		switch e.Kind {
		case georef.AdjustScaleKind:
			if len(e.After) > 0 {
				state.Scale = e.After[0]
			}
		case georef.AdjustYawKind:
			if len(e.After) > 0 {
				state.YawRad = e.After[0]
			}
		case georef.AdjustPitchKind:
			if len(e.After) > 0 {
				state.PitchRad = e.After[0]
			}
		case georef.AdjustRollKind:
			if len(e.After) > 0 {
				state.RollRad = e.After[0]
			}
		case georef.AdjustPositionKind:
			if len(e.After) >= 3 {
				state.TEast = e.After[0]
				state.TNorth = e.After[1]
				state.TUp = e.After[2]
			}
		case georef.AdjustHeightKind:
			if len(e.After) > 0 {
				state.TUp = e.After[0]
			}
		}
		record()
	}

	return trajectories
}

// renderPlots writes one PNG per trajectory plus a combined translation
// chart (east/north/up on shared axes).
func renderPlots(trajectories []trajectory, outDir string) (int, error) {
	count := 0

	for _, tr := range trajectories {
		p := plot.New()
		p.Title.Text = fmt.Sprintf("Adjustment trajectory - %s", tr.name)
		p.X.Label.Text = "Step"
		p.Y.Label.Text = fmt.Sprintf("%s (%s)", tr.name, tr.unit)

		line, err := plotter.NewLine(toXYs(tr.values))
		if err != nil {
			return count, err
		}
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Add(plotter.NewGrid())

		out := filepath.Join(outDir, fmt.Sprintf("trajectory_%s.png", tr.name))
		if err := p.Save(10*vg.Inch, 5*vg.Inch, out); err != nil {
			return count, fmt.Errorf("save %s plot: %w", tr.name, err)
		}
		count++
	}

	// Combined ENU translation chart
	p := plot.New()
	p.Title.Text = "Adjustment trajectory - translation (ENU)"
	p.X.Label.Text = "Step"
	p.Y.Label.Text = "offset (m)"

	colors := []color.Color{
		color.RGBA{R: 214, G: 69, B: 65, A: 255},
		color.RGBA{R: 46, G: 134, B: 193, A: 255},
		color.RGBA{R: 40, G: 180, B: 99, A: 255},
	}
	for i, name := range []string{"east", "north", "up"} {
		tr := findTrajectory(trajectories, name)
		if tr == nil {
			continue
		}
		line, err := plotter.NewLine(toXYs(tr.values))
		if err != nil {
			return count, err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(name, line)
	}
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	out := filepath.Join(outDir, "trajectory_translation.png")
	if err := p.Save(10*vg.Inch, 5*vg.Inch, out); err != nil {
		return count, fmt.Errorf("save translation plot: %w", err)
	}
	count++

	return count, nil
}

func toXYs(values []float64) plotter.XYs {
	pts := make(plotter.XYs, len(values))
	for i, v := range values {
		pts[i] = plotter.XY{X: float64(i), Y: v}
	}
	return pts
}

func findTrajectory(trajectories []trajectory, name string) *trajectory {
	for i := range trajectories {
		if trajectories[i].name == name {
			return &trajectories[i]
		}
	}
	return nil
}
