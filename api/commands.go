package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
)

// commandFunc applies one named nudge to a session's controller using the
// step sizes from the service settings.
type commandFunc func(s *Server, sess *liveSession) error

// Allow list of named nudge commands. These are the keyboard bindings the
// viewer sends verbatim; anything not in this table is rejected.
var allowedCommands = map[string]commandFunc{
	// Scale
	"scale-up": func(s *Server, sess *liveSession) error {
		return sess.controller.AdjustScale(s.settings.GetScaleStepFactor())
	},
	"scale-down": func(s *Server, sess *liveSession) error {
		return sess.controller.AdjustScale(1 / s.settings.GetScaleStepFactor())
	},

	// Rotation (yaw is always allowed; pitch and roll respect the tilt lock)
	"yaw-left": func(s *Server, sess *liveSession) error {
		return sess.controller.AdjustYaw(s.settings.GetAngleStepDeg() * degToRad)
	},
	"yaw-right": func(s *Server, sess *liveSession) error {
		return sess.controller.AdjustYaw(-s.settings.GetAngleStepDeg() * degToRad)
	},
	"pitch-up": func(s *Server, sess *liveSession) error {
		return sess.controller.AdjustPitch(s.settings.GetAngleStepDeg() * degToRad)
	},
	"pitch-down": func(s *Server, sess *liveSession) error {
		return sess.controller.AdjustPitch(-s.settings.GetAngleStepDeg() * degToRad)
	},
	"roll-left": func(s *Server, sess *liveSession) error {
		return sess.controller.AdjustRoll(-s.settings.GetAngleStepDeg() * degToRad)
	},
	"roll-right": func(s *Server, sess *liveSession) error {
		return sess.controller.AdjustRoll(s.settings.GetAngleStepDeg() * degToRad)
	},

	// Translation in the ENU tangent plane
	"nudge-east": func(s *Server, sess *liveSession) error {
		return sess.controller.AdjustPosition(s.settings.GetPositionStepM(), 0, 0)
	},
	"nudge-west": func(s *Server, sess *liveSession) error {
		return sess.controller.AdjustPosition(-s.settings.GetPositionStepM(), 0, 0)
	},
	"nudge-north": func(s *Server, sess *liveSession) error {
		return sess.controller.AdjustPosition(0, s.settings.GetPositionStepM(), 0)
	},
	"nudge-south": func(s *Server, sess *liveSession) error {
		return sess.controller.AdjustPosition(0, -s.settings.GetPositionStepM(), 0)
	},

	// Height uses its own, usually finer, step
	"raise": func(s *Server, sess *liveSession) error {
		return sess.controller.AdjustHeight(s.settings.GetHeightStepM())
	},
	"lower": func(s *Server, sess *liveSession) error {
		return sess.controller.AdjustHeight(-s.settings.GetHeightStepM())
	},

	// Tilt lock (locking requires ground points, so only unlock is bindable)
	"unlock-tilt": func(s *Server, sess *liveSession) error {
		return sess.controller.UnlockTilt()
	},
}

// handleCommand handles POST .../command
// Body: {"command": "scale-up"}. The command must be on the allow list.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request, sess *liveSession) {
	var req struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	fn, ok := allowedCommands[req.Command]
	if !ok {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown command %q", req.Command))
		return
	}

	mark := sess.controller.Tracker().Len()
	if err := fn(s, sess); err != nil {
		s.writeJSONError(w, mutationStatus(err), fmt.Sprintf("command %s: %v", req.Command, err))
		return
	}
	s.persistAdjustments(sess, mark)
	s.writeJSON(w, http.StatusOK, s.poseResponse(sess, nil))
}

// handleListCommands handles GET /api/align/commands
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	names := make([]string, 0, len(allowedCommands))
	for name := range allowedCommands {
		names = append(names, name)
	}
	sort.Strings(names)

	out := struct {
		Commands []string `json:"commands"`
		Count    int      `json:"count"`
	}{Commands: names, Count: len(names)}
	s.writeJSON(w, http.StatusOK, out)
}
