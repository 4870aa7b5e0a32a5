package georef

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// AdjustmentKind identifies which parameter a log entry mutated.
type AdjustmentKind string

const (
	AdjustScaleKind    AdjustmentKind = "scale"
	AdjustYawKind      AdjustmentKind = "yaw"
	AdjustPitchKind    AdjustmentKind = "pitch"
	AdjustRollKind     AdjustmentKind = "roll"
	AdjustPositionKind AdjustmentKind = "position"
	AdjustHeightKind   AdjustmentKind = "height"
)

// AdjustmentSource distinguishes manual keyboard deltas from calibration
// assignments in the shared audit log.
type AdjustmentSource string

const (
	SourceManual      AdjustmentSource = "manual"
	SourceCalibration AdjustmentSource = "calibration"
)

// Adjustment is one immutable audit entry. Scalar kinds carry one element
// in Before/After/Delta; position entries carry three (east, north, up).
// Entries are appended only, never mutated or removed.
type Adjustment struct {
	TimestampNs int64            `json:"timestamp_ns"`
	Kind        AdjustmentKind   `json:"kind"`
	Source      AdjustmentSource `json:"source"`
	Before      []float64        `json:"before"`
	After       []float64        `json:"after"`
	Delta       []float64        `json:"delta"`
}

// TotalDeltas is each parameter's net drift from the session's initial
// values, not from the previous entry. Scale is the multiplicative ratio
// current/initial; the rest are signed differences.
type TotalDeltas struct {
	Scale    float64 `json:"scale"`
	YawRad   float64 `json:"yaw_rad"`
	PitchRad float64 `json:"pitch_rad"`
	RollRad  float64 `json:"roll_rad"`
	EastM    float64 `json:"east_m"`
	NorthM   float64 `json:"north_m"`
	UpM      float64 `json:"up_m"`
}

// Tracker is the append-only audit log of a session's adjustments plus a
// live mirror of the current parameter state. It knows nothing about
// geometry beyond the parameter field names. It carries its own lock:
// summaries and exports are served while mutations keep appending.
type Tracker struct {
	mu      sync.Mutex
	initial EnuParams
	current EnuParams
	entries []Adjustment
}

// NewTracker starts an audit log baselined at the session's initial pose.
func NewTracker(initial EnuParams) *Tracker {
	return &Tracker{
		initial: initial.Clone(),
		current: initial.Clone(),
	}
}

func (t *Tracker) appendLocked(kind AdjustmentKind, source AdjustmentSource, before, after []float64) {
	delta := make([]float64, len(before))
	for i := range before {
		delta[i] = after[i] - before[i]
	}
	t.entries = append(t.entries, Adjustment{
		TimestampNs: time.Now().UnixNano(),
		Kind:        kind,
		Source:      source,
		Before:      before,
		After:       after,
		Delta:       delta,
	})
}

// RecordScale logs a scale change and updates the live mirror.
func (t *Tracker) RecordScale(source AdjustmentSource, before, after float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendLocked(AdjustScaleKind, source, []float64{before}, []float64{after})
	t.current.Scale = after
}

// RecordYaw logs a yaw change.
func (t *Tracker) RecordYaw(source AdjustmentSource, before, after float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendLocked(AdjustYawKind, source, []float64{before}, []float64{after})
	t.current.YawRad = after
}

// RecordPitch logs a pitch change.
func (t *Tracker) RecordPitch(source AdjustmentSource, before, after float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendLocked(AdjustPitchKind, source, []float64{before}, []float64{after})
	t.current.PitchRad = after
}

// RecordRoll logs a roll change.
func (t *Tracker) RecordRoll(source AdjustmentSource, before, after float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendLocked(AdjustRollKind, source, []float64{before}, []float64{after})
	t.current.RollRad = after
}

// RecordPosition logs a compound east/north/up offset change as a single
// entry.
func (t *Tracker) RecordPosition(source AdjustmentSource, beforeE, beforeN, beforeU, afterE, afterN, afterU float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendLocked(AdjustPositionKind, source,
		[]float64{beforeE, beforeN, beforeU},
		[]float64{afterE, afterN, afterU})
	t.current.TEast = afterE
	t.current.TNorth = afterN
	t.current.TUp = afterU
}

// RecordHeight logs a vertical-only offset change.
func (t *Tracker) RecordHeight(source AdjustmentSource, before, after float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendLocked(AdjustHeightKind, source, []float64{before}, []float64{after})
	t.current.TUp = after
}

// TotalDeltas returns the cumulative drift from the session's starting
// pose.
func (t *Tracker) TotalDeltas() TotalDeltas {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalDeltasLocked()
}

func (t *Tracker) totalDeltasLocked() TotalDeltas {
	scale := 0.0
	if t.initial.Scale != 0 {
		scale = t.current.Scale / t.initial.Scale
	}
	return TotalDeltas{
		Scale:    scale,
		YawRad:   t.current.YawRad - t.initial.YawRad,
		PitchRad: t.current.PitchRad - t.initial.PitchRad,
		RollRad:  t.current.RollRad - t.initial.RollRad,
		EastM:    t.current.TEast - t.initial.TEast,
		NorthM:   t.current.TNorth - t.initial.TNorth,
		UpM:      t.current.TUp - t.initial.TUp,
	}
}

// Len returns the number of logged adjustments.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Entries returns a copy of the audit log.
func (t *Tracker) Entries() []Adjustment {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Adjustment, len(t.entries))
	copy(out, t.entries)
	return out
}

// Initial returns the session's starting pose.
func (t *Tracker) Initial() EnuParams {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.initial.Clone()
}

// Current returns the live parameter mirror.
func (t *Tracker) Current() EnuParams {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current.Clone()
}

// Reset discards the log and re-baselines both snapshots at the given
// pose.
func (t *Tracker) Reset(newInitial EnuParams) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.initial = newInitial.Clone()
	t.current = newInitial.Clone()
	t.entries = nil
}

// Summary renders a human-readable digest of the session: initial versus
// current pose, total drift, and entry count.
func (t *Tracker) Summary() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	d := t.totalDeltasLocked()
	var b strings.Builder
	fmt.Fprintf(&b, "adjustments: %d entries\n", len(t.entries))
	fmt.Fprintf(&b, "scale:    %.6f -> %.6f (x%.6f)\n", t.initial.Scale, t.current.Scale, d.Scale)
	fmt.Fprintf(&b, "yaw:      %.6f -> %.6f rad (%+.6f)\n", t.initial.YawRad, t.current.YawRad, d.YawRad)
	fmt.Fprintf(&b, "pitch:    %.6f -> %.6f rad (%+.6f)\n", t.initial.PitchRad, t.current.PitchRad, d.PitchRad)
	fmt.Fprintf(&b, "roll:     %.6f -> %.6f rad (%+.6f)\n", t.initial.RollRad, t.current.RollRad, d.RollRad)
	fmt.Fprintf(&b, "east:     %.3f -> %.3f m (%+.3f)\n", t.initial.TEast, t.current.TEast, d.EastM)
	fmt.Fprintf(&b, "north:    %.3f -> %.3f m (%+.3f)\n", t.initial.TNorth, t.current.TNorth, d.NorthM)
	fmt.Fprintf(&b, "up:       %.3f -> %.3f m (%+.3f)", t.initial.TUp, t.current.TUp, d.UpM)
	return b.String()
}

// AuditExport is the structured form of the full log.
type AuditExport struct {
	Initial EnuParams    `json:"initial"`
	Current EnuParams    `json:"current"`
	Totals  TotalDeltas  `json:"totals"`
	Entries []Adjustment `json:"entries"`
}

// ExportJSON serialises the complete audit trail. The snapshot is taken
// under one lock so the entries never run ahead of the current pose.
func (t *Tracker) ExportJSON() ([]byte, error) {
	t.mu.Lock()
	entries := make([]Adjustment, len(t.entries))
	copy(entries, t.entries)
	export := AuditExport{
		Initial: t.initial.Clone(),
		Current: t.current.Clone(),
		Totals:  t.totalDeltasLocked(),
		Entries: entries,
	}
	t.mu.Unlock()
	return json.MarshalIndent(export, "", "  ")
}
