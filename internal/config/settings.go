// Package config loads the alignment session settings. The schema matches
// the /api/align/settings endpoint so the same JSON serves startup
// configuration and runtime inspection.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Settings is the root configuration for an alignment service. Fields are
// pointers so a partial JSON file only overrides what it names; the Get*
// accessors supply defaults for everything else.
type Settings struct {
	// Scale clamp bounds and the multiplicative keyboard step.
	ScaleMin        *float64 `json:"scale_min,omitempty"`
	ScaleMax        *float64 `json:"scale_max,omitempty"`
	ScaleStepFactor *float64 `json:"scale_step_factor,omitempty"`

	// Keyboard increments. Angles in degrees, offsets in metres.
	AngleStepDeg  *float64 `json:"angle_step_deg,omitempty"`
	PositionStepM *float64 `json:"position_step_m,omitempty"`
	HeightStepM   *float64 `json:"height_step_m,omitempty"`

	// Road calibration.
	LaneWidthM        *float64 `json:"lane_width_m,omitempty"`
	UnknownRoadWidthM *float64 `json:"unknown_road_width_m,omitempty"`
}

// Load reads a Settings file. Missing fields keep their defaults, so
// partial configs are safe.
func Load(path string) (*Settings, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Settings{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that configured values are usable.
func (c *Settings) Validate() error {
	if c.ScaleMin != nil && *c.ScaleMin <= 0 {
		return fmt.Errorf("scale_min must be positive, got %f", *c.ScaleMin)
	}
	if c.ScaleMax != nil && *c.ScaleMax <= 0 {
		return fmt.Errorf("scale_max must be positive, got %f", *c.ScaleMax)
	}
	if c.ScaleMin != nil && c.ScaleMax != nil && *c.ScaleMin >= *c.ScaleMax {
		return fmt.Errorf("scale_min (%f) must be below scale_max (%f)", *c.ScaleMin, *c.ScaleMax)
	}
	if c.ScaleStepFactor != nil && *c.ScaleStepFactor <= 1 {
		return fmt.Errorf("scale_step_factor must be above 1, got %f", *c.ScaleStepFactor)
	}
	if c.LaneWidthM != nil && *c.LaneWidthM <= 0 {
		return fmt.Errorf("lane_width_m must be positive, got %f", *c.LaneWidthM)
	}
	return nil
}

// GetScaleMin returns the scale clamp lower bound or the default.
func (c *Settings) GetScaleMin() float64 {
	if c.ScaleMin == nil {
		return 0.1
	}
	return *c.ScaleMin
}

// GetScaleMax returns the scale clamp upper bound or the default.
func (c *Settings) GetScaleMax() float64 {
	if c.ScaleMax == nil {
		return 50.0
	}
	return *c.ScaleMax
}

// GetScaleStepFactor returns the multiplicative keyboard scale step.
func (c *Settings) GetScaleStepFactor() float64 {
	if c.ScaleStepFactor == nil {
		return 1.1
	}
	return *c.ScaleStepFactor
}

// GetAngleStepDeg returns the keyboard rotation step in degrees.
func (c *Settings) GetAngleStepDeg() float64 {
	if c.AngleStepDeg == nil {
		return 5.0
	}
	return *c.AngleStepDeg
}

// GetPositionStepM returns the horizontal keyboard step in metres.
func (c *Settings) GetPositionStepM() float64 {
	if c.PositionStepM == nil {
		return 1.0
	}
	return *c.PositionStepM
}

// GetHeightStepM returns the vertical keyboard step in metres.
func (c *Settings) GetHeightStepM() float64 {
	if c.HeightStepM == nil {
		return 10.0
	}
	return *c.HeightStepM
}

// GetLaneWidthM returns the per-lane road width in metres.
func (c *Settings) GetLaneWidthM() float64 {
	if c.LaneWidthM == nil {
		return 3.6
	}
	return *c.LaneWidthM
}

// GetUnknownRoadWidthM returns the width assumed for unclassified roads.
func (c *Settings) GetUnknownRoadWidthM() float64 {
	if c.UnknownRoadWidthM == nil {
		return 8.0
	}
	return *c.UnknownRoadWidthM
}
