package georef

import (
	"encoding/json"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTrackerScaleTotals(t *testing.T) {
	tr := NewTracker(DefaultParams())

	// Two 10% bumps: 1.0 -> 1.1 -> 1.21, a net ratio of 1.21.
	tr.RecordScale(SourceManual, 1.0, 1.1)
	tr.RecordScale(SourceManual, 1.1, 1.21)

	if tr.Len() != 2 {
		t.Fatalf("entries = %d, want 2", tr.Len())
	}
	totals := tr.TotalDeltas()
	if math.Abs(totals.Scale-1.21) > 1e-12 {
		t.Errorf("total scale ratio = %v, want 1.21", totals.Scale)
	}
}

func TestTrackerAngleAndOffsetTotals(t *testing.T) {
	initial := DefaultParams()
	initial.YawRad = 0.5
	initial.TEast = 10
	tr := NewTracker(initial)

	tr.RecordYaw(SourceManual, 0.5, 0.8)
	tr.RecordYaw(SourceManual, 0.8, 0.6)
	tr.RecordPosition(SourceManual, 10, 0, 0, 12.5, -1, 2)
	tr.RecordHeight(SourceManual, 2, 7)

	totals := tr.TotalDeltas()
	if math.Abs(totals.YawRad-0.1) > 1e-12 {
		t.Errorf("yaw drift = %v, want 0.1", totals.YawRad)
	}
	if totals.EastM != 2.5 || totals.NorthM != -1 {
		t.Errorf("east/north drift = %v/%v, want 2.5/-1", totals.EastM, totals.NorthM)
	}
	if totals.UpM != 7 {
		t.Errorf("up drift = %v, want 7", totals.UpM)
	}
}

func TestTrackerEntryShape(t *testing.T) {
	tr := NewTracker(DefaultParams())
	tr.RecordPosition(SourceManual, 0, 0, 0, 1, 2, 3)
	tr.RecordScale(SourceCalibration, 1, 3)

	entries := tr.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}

	pos := entries[0]
	if pos.Kind != AdjustPositionKind || pos.Source != SourceManual {
		t.Errorf("position entry kind/source = %v/%v", pos.Kind, pos.Source)
	}
	if diff := cmp.Diff([]float64{1, 2, 3}, pos.Delta); diff != "" {
		t.Errorf("position delta mismatch (-want +got):\n%s", diff)
	}

	cal := entries[1]
	if cal.Kind != AdjustScaleKind || cal.Source != SourceCalibration {
		t.Errorf("calibration entry kind/source = %v/%v", cal.Kind, cal.Source)
	}
	if diff := cmp.Diff([]float64{2}, cal.Delta); diff != "" {
		t.Errorf("scale delta mismatch (-want +got):\n%s", diff)
	}
	if pos.TimestampNs == 0 || cal.TimestampNs < pos.TimestampNs {
		t.Errorf("timestamps not monotonic: %d then %d", pos.TimestampNs, cal.TimestampNs)
	}
}

func TestTrackerEntriesAreACopy(t *testing.T) {
	tr := NewTracker(DefaultParams())
	tr.RecordYaw(SourceManual, 0, 1)

	entries := tr.Entries()
	entries[0].Kind = "tampered"

	if got := tr.Entries()[0].Kind; got != AdjustYawKind {
		t.Errorf("external mutation leaked into the log: kind = %v", got)
	}
}

func TestTrackerReset(t *testing.T) {
	tr := NewTracker(DefaultParams())
	tr.RecordScale(SourceManual, 1, 2)

	rebase := DefaultParams()
	rebase.Scale = 2
	tr.Reset(rebase)

	if tr.Len() != 0 {
		t.Errorf("entries after reset = %d, want 0", tr.Len())
	}
	if got := tr.TotalDeltas().Scale; got != 1 {
		t.Errorf("scale ratio after reset = %v, want 1", got)
	}
	if got := tr.Initial().Scale; got != 2 {
		t.Errorf("rebased initial scale = %v, want 2", got)
	}
}

func TestTrackerExportJSON(t *testing.T) {
	tr := NewTracker(DefaultParams())
	tr.RecordScale(SourceManual, 1, 1.1)
	tr.RecordYaw(SourceCalibration, 0, 0.25)

	data, err := tr.ExportJSON()
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	var export AuditExport
	if err := json.Unmarshal(data, &export); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}

	want := AuditExport{
		Initial: tr.Initial(),
		Current: tr.Current(),
		Totals:  tr.TotalDeltas(),
		Entries: tr.Entries(),
	}
	if diff := cmp.Diff(want, export); diff != "" {
		t.Errorf("export round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestTrackerSummary(t *testing.T) {
	tr := NewTracker(DefaultParams())
	tr.RecordScale(SourceManual, 1, 1.5)

	s := tr.Summary()
	if !strings.Contains(s, "1 entries") {
		t.Errorf("summary missing entry count: %q", s)
	}
	if !strings.Contains(s, "1.500000") {
		t.Errorf("summary missing current scale: %q", s)
	}
}

func TestTrackerConcurrentRecordAndRead(t *testing.T) {
	tr := NewTracker(DefaultParams())

	const writers = 4
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				tr.RecordYaw(SourceManual, 0, 0.1)
			}
		}()
	}

	// Readers hammer the query surface while the writers append, the same
	// shape as summary and export requests racing live adjustments.
	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_ = tr.Entries()
				_ = tr.TotalDeltas()
				_ = tr.Summary()
				if _, err := tr.ExportJSON(); err != nil {
					t.Errorf("export: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if got := tr.Len(); got != writers*perWriter {
		t.Errorf("entries = %d, want %d", got, writers*perWriter)
	}
	if got := tr.Current().YawRad; got != 0.1 {
		t.Errorf("current yaw = %v, want 0.1", got)
	}
}
