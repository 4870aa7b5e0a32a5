package georef

import "fmt"

// LaneWidthM is the canonical per-lane width used when a road's lane count
// is known. Survey sources in the original tooling disagreed between 3.5
// and 3.6 metres for the same quantity; 3.6 is the standardised value here
// (see DESIGN.md) and stays configurable through the session config.
const LaneWidthM = 3.6

// DefaultRoadWidthM is used for road classes outside the lookup table.
const DefaultRoadWidthM = 8.0

// roadClassWidthsM maps OSM-style highway classifications to canonical
// carriageway widths in metres.
var roadClassWidthsM = map[string]float64{
	"motorway":      24,
	"trunk":         20,
	"primary":       16,
	"secondary":     12,
	"tertiary":      10,
	"unclassified":  8,
	"residential":   6,
	"living_street": 5,
	"service":       4,
	"pedestrian":    3,
}

// ScaleFromRoadWidth derives metres-per-local-unit from a road whose true
// physical width is known and whose width was measured in unscaled splat
// units. The exact ratio is returned without clamping; UI-safety clamping
// is the controller's policy.
func ScaleFromRoadWidth(trueWidthM, measuredWidthUnits float64) (float64, error) {
	if trueWidthM <= 0 {
		return 0, fmt.Errorf("true road width %v m: %w", trueWidthM, ErrInvalidMeasurement)
	}
	if measuredWidthUnits <= 0 {
		return 0, fmt.Errorf("measured road width %v units: %w", measuredWidthUnits, ErrInvalidMeasurement)
	}
	return trueWidthM / measuredWidthUnits, nil
}

// ScaleFromImagingGeometry approximates ground-sample distance in metres
// per pixel from capture EXIF data: camera altitude, focal length and
// sensor pixel pitch. It is the fallback calibration path when no
// identifiable road crosses the scan; it does not compose with the
// road-width path.
func ScaleFromImagingGeometry(altitudeM, focalLengthMm, pixelPitchMicrons float64) (float64, error) {
	if altitudeM <= 0 {
		return 0, fmt.Errorf("altitude %v m: %w", altitudeM, ErrInvalidMeasurement)
	}
	if focalLengthMm <= 0 {
		return 0, fmt.Errorf("focal length %v mm: %w", focalLengthMm, ErrInvalidMeasurement)
	}
	if pixelPitchMicrons <= 0 {
		return 0, fmt.Errorf("pixel pitch %v um: %w", pixelPitchMicrons, ErrInvalidMeasurement)
	}

	focalM := focalLengthMm * 1e-3
	pitchM := pixelPitchMicrons * 1e-6
	return altitudeM * pitchM / focalM, nil
}

// EstimateRoadWidthMeters supplies the true-width operand for
// ScaleFromRoadWidth when the road network carries no explicit width tag.
// A known positive lane count overrides the classification table at
// LaneWidthM per lane.
func EstimateRoadWidthMeters(roadClass string, laneCount int) float64 {
	return estimateRoadWidth(roadClass, laneCount, LaneWidthM, DefaultRoadWidthM)
}

// estimateRoadWidth is the configurable form used by the controller so
// sessions can override the per-lane constant and the unknown-class
// fallback.
func estimateRoadWidth(roadClass string, laneCount int, laneWidthM, unknownWidthM float64) float64 {
	if laneCount > 0 && laneWidthM > 0 {
		return float64(laneCount) * laneWidthM
	}
	if w, ok := roadClassWidthsM[roadClass]; ok {
		return w
	}
	return unknownWidthM
}
