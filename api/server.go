// Package api exposes alignment sessions over HTTP: session lifecycle,
// parameter nudges, tilt locking, scale calibration, the placement matrix,
// the adjustment audit trail, and a live pose stream for viewers.
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/splatmaps/georef/internal/config"
	"github.com/splatmaps/georef/internal/geom"
	"github.com/splatmaps/georef/internal/georef"
	"github.com/splatmaps/georef/internal/monitoring"
	"github.com/splatmaps/georef/internal/sessiondb"
)

// Server hosts alignment sessions. All sessions share one composer, and
// therefore one anchor frame cache. Each live session owns its controller
// and pose stream hub.
type Server struct {
	settings *config.Settings
	db       *sessiondb.DB
	store    *sessiondb.Store
	composer *georef.Composer

	mu       sync.Mutex
	sessions map[string]*liveSession
}

// liveSession pairs a controller with its persistence identity and the hub
// that fans the recomposed matrix out to stream subscribers.
type liveSession struct {
	id         string
	controller *georef.Controller
	hub        *poseHub
}

// NewServer builds the HTTP layer. db may be nil, in which case sessions
// live only in memory and the audit trail is not persisted.
func NewServer(settings *config.Settings, db *sessiondb.DB) *Server {
	s := &Server{
		settings: settings,
		db:       db,
		composer: georef.NewComposer(nil),
		sessions: make(map[string]*liveSession),
	}
	if db != nil {
		s.store = sessiondb.NewStore(db)
	}
	return s
}

// ServeMux configures the HTTP routes and handlers.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/align/sessions", s.handleSessions)
	mux.HandleFunc("/api/align/sessions/", s.handleSessionByID)
	mux.HandleFunc("/api/align/commands", s.handleListCommands)
	mux.HandleFunc("/api/align/settings", s.handleGetSettings)

	if s.db != nil {
		if err := s.db.AttachAdminRoutes(mux); err != nil {
			monitoring.Logf("admin routes unavailable: %v", err)
		}
	}

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleGetSettings handles GET /api/align/settings
// Reports the effective settings, defaults resolved.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	out := struct {
		ScaleMin          float64 `json:"scale_min"`
		ScaleMax          float64 `json:"scale_max"`
		ScaleStepFactor   float64 `json:"scale_step_factor"`
		AngleStepDeg      float64 `json:"angle_step_deg"`
		PositionStepM     float64 `json:"position_step_m"`
		HeightStepM       float64 `json:"height_step_m"`
		LaneWidthM        float64 `json:"lane_width_m"`
		UnknownRoadWidthM float64 `json:"unknown_road_width_m"`
	}{
		ScaleMin:          s.settings.GetScaleMin(),
		ScaleMax:          s.settings.GetScaleMax(),
		ScaleStepFactor:   s.settings.GetScaleStepFactor(),
		AngleStepDeg:      s.settings.GetAngleStepDeg(),
		PositionStepM:     s.settings.GetPositionStepM(),
		HeightStepM:       s.settings.GetHeightStepM(),
		LaneWidthM:        s.settings.GetLaneWidthM(),
		UnknownRoadWidthM: s.settings.GetUnknownRoadWidthM(),
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleSessions handles:
//   - GET  /api/align/sessions - list persisted sessions
//   - POST /api/align/sessions - create a session
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListSessions(w, r)
	case http.MethodPost:
		s.handleCreateSession(w, r)
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleSessionByID dispatches /api/align/sessions/{session_id}[/...] to the
// per-session handlers.
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/align/sessions/"
	path := r.URL.Path
	if len(path) <= len(prefix) {
		s.writeJSONError(w, http.StatusBadRequest, "missing session_id in path")
		return
	}

	remainder := path[len(prefix):]
	sessionID := remainder
	subPath := ""
	if idx := strings.Index(remainder, "/"); idx != -1 {
		sessionID = remainder[:idx]
		subPath = remainder[idx+1:]
	}
	if sessionID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "missing session_id")
		return
	}

	sess, ok := s.session(sessionID)
	if !ok {
		s.writeJSONError(w, http.StatusNotFound, "session not found")
		return
	}

	switch {
	case subPath == "" && r.Method == http.MethodGet:
		s.handleGetSession(w, r, sess)
	case subPath == "adjust/scale" && r.Method == http.MethodPost:
		s.handleAdjustScale(w, r, sess)
	case subPath == "adjust/yaw" && r.Method == http.MethodPost:
		s.handleAdjustAngle(w, r, sess, "yaw")
	case subPath == "adjust/pitch" && r.Method == http.MethodPost:
		s.handleAdjustAngle(w, r, sess, "pitch")
	case subPath == "adjust/roll" && r.Method == http.MethodPost:
		s.handleAdjustAngle(w, r, sess, "roll")
	case subPath == "adjust/position" && r.Method == http.MethodPost:
		s.handleAdjustPosition(w, r, sess)
	case subPath == "adjust/height" && r.Method == http.MethodPost:
		s.handleAdjustHeight(w, r, sess)
	case subPath == "command" && r.Method == http.MethodPost:
		s.handleCommand(w, r, sess)
	case subPath == "lock-tilt" && r.Method == http.MethodPost:
		s.handleLockTilt(w, r, sess)
	case subPath == "unlock-tilt" && r.Method == http.MethodPost:
		s.handleUnlockTilt(w, r, sess)
	case subPath == "calibrate/road-width" && r.Method == http.MethodPost:
		s.handleCalibrateRoadWidth(w, r, sess)
	case subPath == "calibrate/imaging" && r.Method == http.MethodPost:
		s.handleCalibrateImaging(w, r, sess)
	case subPath == "road-width" && r.Method == http.MethodGet:
		s.handleEstimateRoadWidth(w, r, sess)
	case subPath == "params" && r.Method == http.MethodGet:
		s.handleGetParams(w, r, sess)
	case subPath == "params" && r.Method == http.MethodPut:
		s.handleSetParams(w, r, sess)
	case subPath == "matrix" && r.Method == http.MethodGet:
		s.handleGetMatrix(w, r, sess)
	case subPath == "log/summary" && r.Method == http.MethodGet:
		s.handleLogSummary(w, r, sess)
	case subPath == "log/export" && r.Method == http.MethodGet:
		s.handleLogExport(w, r, sess)
	case subPath == "log/reset" && r.Method == http.MethodPost:
		s.handleLogReset(w, r, sess)
	case subPath == "log/chart" && r.Method == http.MethodGet:
		s.handleLogChart(w, r, sess)
	case subPath == "snapshot" && r.Method == http.MethodPost:
		s.handleSaveSnapshot(w, r, sess)
	case subPath == "restore" && r.Method == http.MethodPost:
		s.handleRestoreSnapshot(w, r, sess)
	case subPath == "stream" && r.Method == http.MethodGet:
		s.handlePoseStream(w, r, sess)
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// session looks up a live session by ID.
func (s *Server) session(id string) (*liveSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// addSession registers a live controller and hooks the pose stream and the
// audit persistence into its recompose path.
func (s *Server) addSession(id string, ctrl *georef.Controller) *liveSession {
	sess := &liveSession{
		id:         id,
		controller: ctrl,
		hub:        newPoseHub(),
	}

	ctrl.OnRecompose(func(m geom.Mat4, p georef.EnuParams) {
		sess.hub.broadcast(poseUpdate{
			SessionID: id,
			Matrix:    m,
			Params:    p,
		})
	})

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	return sess
}

// persistAdjustments appends any audit entries past alreadyPersisted to the
// store. It is a no-op when the server runs without a database.
func (s *Server) persistAdjustments(sess *liveSession, from int) {
	if s.store == nil {
		return
	}
	entries := sess.controller.Tracker().Entries()
	for i := from; i < len(entries); i++ {
		if err := s.store.AppendAdjustment(sess.id, entries[i]); err != nil {
			monitoring.Logf("persist adjustment for session %s: %v", sess.id, err)
			return
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
