package georef

import (
	"errors"
	"math"
	"testing"
)

func TestScaleFromRoadWidth(t *testing.T) {
	// A 12m road measured as 4 splat units means 3 metres per unit.
	scale, err := ScaleFromRoadWidth(12, 4)
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	if scale != 3.0 {
		t.Errorf("scale = %v, want exactly 3.0", scale)
	}
}

func TestScaleFromRoadWidthRejectsBadInputs(t *testing.T) {
	tests := []struct {
		name      string
		trueWidth float64
		measured  float64
	}{
		{"zero true width", 0, 4},
		{"negative true width", -12, 4},
		{"zero measured", 12, 0},
		{"negative measured", 12, -4},
	}

	for _, tt := range tests {
		if _, err := ScaleFromRoadWidth(tt.trueWidth, tt.measured); !errors.Is(err, ErrInvalidMeasurement) {
			t.Errorf("%s: err = %v, want ErrInvalidMeasurement", tt.name, err)
		}
	}
}

func TestScaleFromImagingGeometry(t *testing.T) {
	// 100m altitude, 24mm lens, 2.4um pixels: GSD = 100 * 2.4e-6 / 0.024
	// = 0.01 m/px.
	scale, err := ScaleFromImagingGeometry(100, 24, 2.4)
	if err != nil {
		t.Fatalf("calibrate: %v", err)
	}
	if math.Abs(scale-0.01) > 1e-15 {
		t.Errorf("scale = %v, want 0.01", scale)
	}
}

func TestScaleFromImagingGeometryRejectsBadInputs(t *testing.T) {
	tests := []struct {
		name            string
		alt, focal, pix float64
	}{
		{"zero altitude", 0, 24, 2.4},
		{"negative altitude", -100, 24, 2.4},
		{"zero focal", 100, 0, 2.4},
		{"zero pixel pitch", 100, 24, 0},
	}

	for _, tt := range tests {
		if _, err := ScaleFromImagingGeometry(tt.alt, tt.focal, tt.pix); !errors.Is(err, ErrInvalidMeasurement) {
			t.Errorf("%s: err = %v, want ErrInvalidMeasurement", tt.name, err)
		}
	}
}

func TestEstimateRoadWidthMeters(t *testing.T) {
	tests := []struct {
		name      string
		roadClass string
		lanes     int
		want      float64
	}{
		{"lane count wins", "motorway", 2, 7.2},
		{"residential lookup", "residential", 0, 6},
		{"motorway lookup", "motorway", 0, 24},
		{"pedestrian lookup", "pedestrian", 0, 3},
		{"unknown class default", "canal_towpath", 0, DefaultRoadWidthM},
		{"empty class default", "", 0, DefaultRoadWidthM},
		{"negative lanes ignored", "residential", -2, 6},
	}

	for _, tt := range tests {
		if got := EstimateRoadWidthMeters(tt.roadClass, tt.lanes); got != tt.want {
			t.Errorf("%s: width = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestEstimateRoadWidthCustomLaneWidth(t *testing.T) {
	if got := estimateRoadWidth("", 3, 3.0, DefaultRoadWidthM); got != 9.0 {
		t.Errorf("3 lanes at 3.0m = %v, want 9.0", got)
	}
}

func TestEstimateRoadWidthCustomUnknownWidth(t *testing.T) {
	if got := estimateRoadWidth("canal_towpath", 0, LaneWidthM, 12.5); got != 12.5 {
		t.Errorf("unknown class = %v, want the configured 12.5", got)
	}
	// The fallback only applies to unknown classes.
	if got := estimateRoadWidth("motorway", 0, LaneWidthM, 12.5); got != 24 {
		t.Errorf("motorway = %v, want 24", got)
	}
}
