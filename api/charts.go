package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/splatmaps/georef/internal/georef"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleLogChart renders the adjustment history as a line chart (HTML).
// This is a debugging-only endpoint (no auth) to eyeball how the operator
// converged on the final pose without the viewer UI.
// Query params:
//   - series (optional): comma-free single series name to isolate, one of
//     scale, yaw, pitch, roll, east, north, up
func (s *Server) handleLogChart(w http.ResponseWriter, r *http.Request, sess *liveSession) {
	entries := sess.controller.Tracker().Entries()
	if len(entries) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "no adjustments recorded")
		return
	}

	initial := sess.controller.Tracker().Initial()

	// Replay the log so every series has a value at every step, not just
	// the steps that touched it.
	labels := make([]string, 0, len(entries)+1)
	series := map[string][]opts.LineData{
		"scale": nil, "yaw": nil, "pitch": nil, "roll": nil,
		"east": nil, "north": nil, "up": nil,
	}

	state := initial
	appendState := func(label string) {
		labels = append(labels, label)
		series["scale"] = append(series["scale"], opts.LineData{Value: state.Scale})
		series["yaw"] = append(series["yaw"], opts.LineData{Value: state.YawRad})
		series["pitch"] = append(series["pitch"], opts.LineData{Value: state.PitchRad})
		series["roll"] = append(series["roll"], opts.LineData{Value: state.RollRad})
		series["east"] = append(series["east"], opts.LineData{Value: state.TEast})
		series["north"] = append(series["north"], opts.LineData{Value: state.TNorth})
		series["up"] = append(series["up"], opts.LineData{Value: state.TUp})
	}
	appendState("start")

	for i, e := range entries {
		applyAdjustment(&state, e)
		appendState(fmt.Sprintf("%d:%s", i+1, e.Kind))
	}

	only := r.URL.Query().Get("series")
	if only != "" {
		if _, ok := series[only]; !ok {
			s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown series %q", only))
			return
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:  "Adjustment History",
			Theme:      "dark",
			Width:      "1200px",
			Height:     "700px",
			AssetsHost: echartsAssetsPrefix,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Adjustment History",
			Subtitle: fmt.Sprintf("session=%s entries=%d", sess.id, len(entries)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	line.SetXAxis(labels)
	for _, name := range []string{"scale", "yaw", "pitch", "roll", "east", "north", "up"} {
		if only != "" && name != only {
			continue
		}
		line.AddSeries(name, series[name],
			charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}))
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// applyAdjustment replays one audit entry onto a parameter state. After
// values are authoritative, so replay is a straight assignment per kind.
func applyAdjustment(state *georef.EnuParams, e georef.Adjustment) {
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
}
