package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"github.com/splatmaps/georef/internal/georef"
	"github.com/splatmaps/georef/internal/monitoring"
	"github.com/splatmaps/georef/internal/security"
	"github.com/splatmaps/georef/internal/sessiondb"
)

const degToRad = math.Pi / 180

func newSessionID() string { return uuid.New().String() }

// SessionResponse describes a session in JSON API responses.
type SessionResponse struct {
	SessionID   string           `json:"session_id"`
	Anchor      georef.Anchor    `json:"anchor"`
	Description string           `json:"description,omitempty"`
	Params      georef.EnuParams `json:"params"`
	TiltLocked  bool             `json:"tilt_locked"`
	Mode        string           `json:"rotation_mode"`
	CreatedAt   string           `json:"created_at,omitempty"`
}

// PoseResponse is returned by every mutation: the parameters after the
// change and the placement matrix they compose to.
type PoseResponse struct {
	SessionID string           `json:"session_id"`
	Params    georef.EnuParams `json:"params"`
	Matrix    [16]float64      `json:"matrix"`
	Blocked   []string         `json:"blocked,omitempty"`
	Timestamp string           `json:"timestamp"`
}

func (s *Server) poseResponse(sess *liveSession, blocked []string) PoseResponse {
	return PoseResponse{
		SessionID: sess.id,
		Params:    sess.controller.Params(),
		Matrix:    sess.controller.Matrix(),
		Blocked:   blocked,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// mutationStatus maps controller errors onto HTTP status codes.
func mutationStatus(err error) int {
	switch {
	case errors.Is(err, georef.ErrBlockedByLock):
		return http.StatusConflict
	case errors.Is(err, georef.ErrInvalidScale),
		errors.Is(err, georef.ErrInvalidMeasurement),
		errors.Is(err, georef.ErrInsufficientData):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// handleCreateSession handles POST /api/align/sessions
// Body: {"anchor": {"lat_deg": .., "lon_deg": .., "height_m": ..},
//
//	"description": "..", "params": {..optional initial state..}}
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Anchor      georef.Anchor     `json:"anchor"`
		Description string            `json:"description"`
		Params      *georef.EnuParams `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	initial := georef.DefaultParams()
	if req.Params != nil {
		initial = req.Params.Clone()
	}

	ctrl, err := georef.NewController(req.Anchor, initial, s.composer, georef.ControllerOptions{
		ScaleMin:          s.settings.GetScaleMin(),
		ScaleMax:          s.settings.GetScaleMax(),
		LaneWidthM:        s.settings.GetLaneWidthM(),
		UnknownRoadWidthM: s.settings.GetUnknownRoadWidthM(),
	})
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("create session: %v", err))
		return
	}

	record := &sessiondb.Session{
		Anchor:      req.Anchor,
		Description: req.Description,
	}
	if s.store != nil {
		if err := s.store.InsertSession(record); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("persist session: %v", err))
			return
		}
	} else {
		record.SessionID = newSessionID()
		record.CreatedAtNs = time.Now().UnixNano()
	}

	sess := s.addSession(record.SessionID, ctrl)
	monitoring.Logf("session %s created at anchor (%.6f, %.6f, %.1fm)",
		sess.id, req.Anchor.LatDeg, req.Anchor.LonDeg, req.Anchor.HeightM)

	s.writeJSON(w, http.StatusCreated, SessionResponse{
		SessionID:   record.SessionID,
		Anchor:      req.Anchor,
		Description: req.Description,
		Params:      ctrl.Params(),
		TiltLocked:  ctrl.TiltLocked(),
		Mode:        ctrl.RotationMode().String(),
		CreatedAt:   time.Unix(0, record.CreatedAtNs).UTC().Format(time.RFC3339),
	})
}

// handleListSessions handles GET /api/align/sessions
// Query params:
//   - limit (optional): max results (default 100)
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.handleListLiveSessions(w, r)
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	sessions, err := s.store.ListSessions(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list sessions: %v", err))
		return
	}

	out := struct {
		Sessions []*sessiondb.Session `json:"sessions"`
		Count    int                  `json:"count"`
	}{Sessions: sessions, Count: len(sessions)}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListLiveSessions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	out := struct {
		SessionIDs []string `json:"session_ids"`
		Count      int      `json:"count"`
	}{SessionIDs: ids, Count: len(ids)}
	s.writeJSON(w, http.StatusOK, out)
}

// handleGetSession handles GET /api/align/sessions/{session_id}
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, sess *liveSession) {
	ctrl := sess.controller
	resp := SessionResponse{
		SessionID:  sess.id,
		Anchor:     ctrl.Anchor(),
		Params:     ctrl.Params(),
		TiltLocked: ctrl.TiltLocked(),
		Mode:       ctrl.RotationMode().String(),
	}
	if s.store != nil {
		if record, err := s.store.GetSession(sess.id); err == nil {
			resp.Description = record.Description
			resp.CreatedAt = time.Unix(0, record.CreatedAtNs).UTC().Format(time.RFC3339)
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleAdjustScale handles POST .../adjust/scale
// Body: {"factor": 1.1} - multiplies the current scale.
func (s *Server) handleAdjustScale(w http.ResponseWriter, r *http.Request, sess *liveSession) {
	var req struct {
		Factor float64 `json:"factor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	mark := sess.controller.Tracker().Len()
	if err := sess.controller.AdjustScale(req.Factor); err != nil {
		s.writeJSONError(w, mutationStatus(err), fmt.Sprintf("adjust scale: %v", err))
		return
	}
	s.persistAdjustments(sess, mark)
	s.writeJSON(w, http.StatusOK, s.poseResponse(sess, nil))
}

// handleAdjustAngle handles POST .../adjust/{yaw,pitch,roll}
// Body: {"delta_deg": 5} or {"delta_rad": 0.0873}.
func (s *Server) handleAdjustAngle(w http.ResponseWriter, r *http.Request, sess *liveSession, axis string) {
	var req struct {
		DeltaDeg *float64 `json:"delta_deg"`
		DeltaRad *float64 `json:"delta_rad"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	var delta float64
	switch {
	case req.DeltaRad != nil:
		delta = *req.DeltaRad
	case req.DeltaDeg != nil:
		delta = *req.DeltaDeg * degToRad
	default:
		s.writeJSONError(w, http.StatusBadRequest, "missing delta_deg or delta_rad")
		return
	}

	mark := sess.controller.Tracker().Len()
	var err error
	switch axis {
	case "yaw":
		err = sess.controller.AdjustYaw(delta)
	case "pitch":
		err = sess.controller.AdjustPitch(delta)
	case "roll":
		err = sess.controller.AdjustRoll(delta)
	}
	if err != nil {
		s.writeJSONError(w, mutationStatus(err), fmt.Sprintf("adjust %s: %v", axis, err))
		return
	}
	s.persistAdjustments(sess, mark)
	s.writeJSON(w, http.StatusOK, s.poseResponse(sess, nil))
}

// handleAdjustPosition handles POST .../adjust/position
// Body: {"delta_east_m": .., "delta_north_m": .., "delta_up_m": ..}
func (s *Server) handleAdjustPosition(w http.ResponseWriter, r *http.Request, sess *liveSession) {
	var req struct {
		DeltaEastM  float64 `json:"delta_east_m"`
		DeltaNorthM float64 `json:"delta_north_m"`
		DeltaUpM    float64 `json:"delta_up_m"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	mark := sess.controller.Tracker().Len()
	if err := sess.controller.AdjustPosition(req.DeltaEastM, req.DeltaNorthM, req.DeltaUpM); err != nil {
		s.writeJSONError(w, mutationStatus(err), fmt.Sprintf("adjust position: %v", err))
		return
	}
	s.persistAdjustments(sess, mark)
	s.writeJSON(w, http.StatusOK, s.poseResponse(sess, nil))
}

// handleAdjustHeight handles POST .../adjust/height
// Body: {"delta_up_m": ..}
func (s *Server) handleAdjustHeight(w http.ResponseWriter, r *http.Request, sess *liveSession) {
	var req struct {
		DeltaUpM float64 `json:"delta_up_m"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	mark := sess.controller.Tracker().Len()
	if err := sess.controller.AdjustHeight(req.DeltaUpM); err != nil {
		s.writeJSONError(w, mutationStatus(err), fmt.Sprintf("adjust height: %v", err))
		return
	}
	s.persistAdjustments(sess, mark)
	s.writeJSON(w, http.StatusOK, s.poseResponse(sess, nil))
}

// handleLockTilt handles POST .../lock-tilt
// Body: {"ground_points": [[x,y,z], ...]} - at least three local-frame
// points sampled on the ground surface.
func (s *Server) handleLockTilt(w http.ResponseWriter, r *http.Request, sess *liveSession) {
	var req struct {
		GroundPoints [][3]float64 `json:"ground_points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	points := make([]r3.Vector, len(req.GroundPoints))
	for i, p := range req.GroundPoints {
		points[i] = r3.Vector{X: p[0], Y: p[1], Z: p[2]}
	}

	mark := sess.controller.Tracker().Len()
	alignment, err := sess.controller.LockTilt(points)
	if err != nil {
		s.writeJSONError(w, mutationStatus(err), fmt.Sprintf("lock tilt: %v", err))
		return
	}
	s.persistAdjustments(sess, mark)

	resp := struct {
		PoseResponse
		Normal   [3]float64 `json:"ground_normal"`
		PitchRad float64    `json:"residual_pitch_rad"`
		RollRad  float64    `json:"residual_roll_rad"`
	}{
		PoseResponse: s.poseResponse(sess, nil),
		Normal:       [3]float64{alignment.Normal.X, alignment.Normal.Y, alignment.Normal.Z},
		PitchRad:     alignment.PitchRad,
		RollRad:      alignment.RollRad,
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleUnlockTilt handles POST .../unlock-tilt
func (s *Server) handleUnlockTilt(w http.ResponseWriter, r *http.Request, sess *liveSession) {
	if err := sess.controller.UnlockTilt(); err != nil {
		s.writeJSONError(w, mutationStatus(err), fmt.Sprintf("unlock tilt: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, s.poseResponse(sess, nil))
}

// handleCalibrateRoadWidth handles POST .../calibrate/road-width
// Body: {"measured_width_units": .., and one of "true_width_m": ..,
// or "road_class": "residential", "lane_count": 2}
func (s *Server) handleCalibrateRoadWidth(w http.ResponseWriter, r *http.Request, sess *liveSession) {
	var req struct {
		MeasuredWidthUnits float64  `json:"measured_width_units"`
		TrueWidthM         *float64 `json:"true_width_m"`
		RoadClass          string   `json:"road_class"`
		LaneCount          int      `json:"lane_count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	trueWidth := 0.0
	if req.TrueWidthM != nil {
		trueWidth = *req.TrueWidthM
	} else {
		trueWidth = sess.controller.EstimateRoadWidth(req.RoadClass, req.LaneCount)
	}

	mark := sess.controller.Tracker().Len()
	scale, err := sess.controller.CalibrateScaleFromRoadWidth(trueWidth, req.MeasuredWidthUnits)
	if err != nil {
		s.writeJSONError(w, mutationStatus(err), fmt.Sprintf("calibrate road width: %v", err))
		return
	}
	s.persistAdjustments(sess, mark)

	resp := struct {
		PoseResponse
		TrueWidthM float64 `json:"true_width_m"`
		Scale      float64 `json:"scale"`
	}{
		PoseResponse: s.poseResponse(sess, nil),
		TrueWidthM:   trueWidth,
		Scale:        scale,
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleCalibrateImaging handles POST .../calibrate/imaging
// Body: {"altitude_m": .., "focal_length_mm": .., "pixel_pitch_um": ..}
func (s *Server) handleCalibrateImaging(w http.ResponseWriter, r *http.Request, sess *liveSession) {
	var req struct {
		AltitudeM     float64 `json:"altitude_m"`
		FocalLengthMm float64 `json:"focal_length_mm"`
		PixelPitchUm  float64 `json:"pixel_pitch_um"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	mark := sess.controller.Tracker().Len()
	scale, err := sess.controller.CalibrateScaleFromImaging(req.AltitudeM, req.FocalLengthMm, req.PixelPitchUm)
	if err != nil {
		s.writeJSONError(w, mutationStatus(err), fmt.Sprintf("calibrate imaging: %v", err))
		return
	}
	s.persistAdjustments(sess, mark)

	resp := struct {
		PoseResponse
		Scale float64 `json:"scale"`
	}{PoseResponse: s.poseResponse(sess, nil), Scale: scale}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleEstimateRoadWidth handles GET .../road-width
// Query params:
//   - class (optional): road classification, e.g. "residential"
//   - lanes (optional): lane count override
func (s *Server) handleEstimateRoadWidth(w http.ResponseWriter, r *http.Request, sess *liveSession) {
	roadClass := r.URL.Query().Get("class")
	lanes := 0
	if l := r.URL.Query().Get("lanes"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 0 {
			s.writeJSONError(w, http.StatusBadRequest, "invalid lanes")
			return
		}
		lanes = parsed
	}

	width := sess.controller.EstimateRoadWidth(roadClass, lanes)
	out := struct {
		RoadClass string  `json:"road_class,omitempty"`
		LaneCount int     `json:"lane_count,omitempty"`
		WidthM    float64 `json:"width_m"`
	}{RoadClass: roadClass, LaneCount: lanes, WidthM: width}
	s.writeJSON(w, http.StatusOK, out)
}

// handleGetParams handles GET .../params
func (s *Server) handleGetParams(w http.ResponseWriter, r *http.Request, sess *liveSession) {
	s.writeJSON(w, http.StatusOK, s.poseResponse(sess, nil))
}

// handleSetParams handles PUT .../params
// Body: a partial parameter patch; fields absent from the body are left
// unchanged. Fields refused by an active tilt lock are reported in
// "blocked" while the rest of the patch still applies.
func (s *Server) handleSetParams(w http.ResponseWriter, r *http.Request, sess *liveSession) {
	var patch georef.PartialParams
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	blocked, err := sess.controller.SetParams(patch)
	if err != nil {
		s.writeJSONError(w, mutationStatus(err), fmt.Sprintf("set params: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, s.poseResponse(sess, blocked))
}

// handleGetMatrix handles GET .../matrix
// Query params:
//   - frame (optional): "placement" (default) or "world-adjustment"
func (s *Server) handleGetMatrix(w http.ResponseWriter, r *http.Request, sess *liveSession) {
	frame := r.URL.Query().Get("frame")
	if frame == "" {
		frame = "placement"
	}

	var matrix [16]float64
	switch frame {
	case "placement":
		matrix = sess.controller.Matrix()
	case "world-adjustment":
		m, err := sess.controller.WorldAdjustmentMatrix()
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("compose world adjustment: %v", err))
			return
		}
		matrix = m
	default:
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown frame %q", frame))
		return
	}

	out := struct {
		SessionID string      `json:"session_id"`
		Frame     string      `json:"frame"`
		Matrix    [16]float64 `json:"matrix"`
		Timestamp string      `json:"timestamp"`
	}{
		SessionID: sess.id,
		Frame:     frame,
		Matrix:    matrix,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleLogSummary handles GET .../log/summary
func (s *Server) handleLogSummary(w http.ResponseWriter, r *http.Request, sess *liveSession) {
	tracker := sess.controller.Tracker()
	out := struct {
		SessionID string             `json:"session_id"`
		Entries   int                `json:"entries"`
		Totals    georef.TotalDeltas `json:"totals"`
		Summary   string             `json:"summary"`
	}{
		SessionID: sess.id,
		Entries:   tracker.Len(),
		Totals:    tracker.TotalDeltas(),
		Summary:   tracker.Summary(),
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleLogExport handles GET .../log/export
func (s *Server) handleLogExport(w http.ResponseWriter, r *http.Request, sess *liveSession) {
	data, err := sess.controller.Tracker().ExportJSON()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("export log: %v", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=adjustments-%s.json", security.SanitizeFilename(sess.id)))
	w.Write(data)
}

// handleLogReset handles POST .../log/reset
// Resets the audit baseline to the current parameters.
func (s *Server) handleLogReset(w http.ResponseWriter, r *http.Request, sess *liveSession) {
	sess.controller.ResetTracker()
	s.writeJSON(w, http.StatusOK, s.poseResponse(sess, nil))
}

// handleSaveSnapshot handles POST .../snapshot
func (s *Server) handleSaveSnapshot(w http.ResponseWriter, r *http.Request, sess *liveSession) {
	if s.store == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}

	id, err := s.store.SavePoseSnapshot(sess.id, sess.controller.Params())
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("save snapshot: %v", err))
		return
	}

	out := struct {
		SessionID  string `json:"session_id"`
		SnapshotID int64  `json:"snapshot_id"`
	}{SessionID: sess.id, SnapshotID: id}
	s.writeJSON(w, http.StatusCreated, out)
}

// handleRestoreSnapshot handles POST .../restore
// Restores the latest persisted snapshot wholesale: every parameter comes
// back exactly as saved, including the tilt lock and its baked align
// rotation. The audit log gains no synthetic entries; callers wanting a
// clean baseline reset the log.
func (s *Server) handleRestoreSnapshot(w http.ResponseWriter, r *http.Request, sess *liveSession) {
	if s.store == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}

	snap, err := s.store.LatestPoseSnapshot(sess.id)
	if err != nil {
		s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("restore snapshot: %v", err))
		return
	}

	if err := sess.controller.RestoreParams(snap.Params); err != nil {
		s.writeJSONError(w, mutationStatus(err), fmt.Sprintf("restore snapshot: %v", err))
		return
	}

	resp := struct {
		PoseResponse
		SnapshotID int64 `json:"snapshot_id"`
	}{PoseResponse: s.poseResponse(sess, nil), SnapshotID: snap.SnapshotID}
	s.writeJSON(w, http.StatusOK, resp)
}
