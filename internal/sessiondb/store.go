package sessiondb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/splatmaps/georef/internal/georef"
)

// Session is one persisted alignment session: the anchor is fixed at
// creation and every pose snapshot and adjustment hangs off the session ID.
type Session struct {
	SessionID   string        `json:"session_id"`
	Anchor      georef.Anchor `json:"anchor"`
	Description string        `json:"description,omitempty"`
	CreatedAtNs int64         `json:"created_at_ns"`
}

// PoseSnapshot is a persisted parameter state, the 7-field + lock flag +
// optional rotation record that round-trips exactly through composition.
type PoseSnapshot struct {
	SnapshotID  int64            `json:"snapshot_id"`
	SessionID   string           `json:"session_id"`
	Params      georef.EnuParams `json:"params"`
	CreatedAtNs int64            `json:"created_at_ns"`
}

// Store persists sessions, snapshots and adjustments.
type Store struct {
	db *DB
}

// NewStore wraps a session database.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// InsertSession creates a session row. An empty SessionID gets a fresh
// UUID; CreatedAtNs defaults to now.
func (s *Store) InsertSession(sess *Session) error {
	if sess.SessionID == "" {
		sess.SessionID = uuid.New().String()
	}
	if sess.CreatedAtNs == 0 {
		sess.CreatedAtNs = time.Now().UnixNano()
	}

	_, err := s.db.Exec(`
		INSERT INTO align_sessions (
			session_id, anchor_lat_deg, anchor_lon_deg, anchor_height_m,
			description, created_at_ns
		) VALUES (?, ?, ?, ?, ?, ?)`,
		sess.SessionID,
		sess.Anchor.LatDeg,
		sess.Anchor.LonDeg,
		sess.Anchor.HeightM,
		sess.Description,
		sess.CreatedAtNs,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(sessionID string) (*Session, error) {
	var sess Session
	err := s.db.QueryRow(`
		SELECT session_id, anchor_lat_deg, anchor_lon_deg, anchor_height_m,
		       description, created_at_ns
		FROM align_sessions WHERE session_id = ?`, sessionID).Scan(
		&sess.SessionID,
		&sess.Anchor.LatDeg,
		&sess.Anchor.LonDeg,
		&sess.Anchor.HeightM,
		&sess.Description,
		&sess.CreatedAtNs,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

// ListSessions returns sessions newest-first, capped at limit (default
// 100 when limit <= 0).
func (s *Store) ListSessions(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT session_id, anchor_lat_deg, anchor_lon_deg, anchor_height_m,
		       description, created_at_ns
		FROM align_sessions ORDER BY created_at_ns DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(
			&sess.SessionID,
			&sess.Anchor.LatDeg,
			&sess.Anchor.LonDeg,
			&sess.Anchor.HeightM,
			&sess.Description,
			&sess.CreatedAtNs,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// SavePoseSnapshot persists the current parameter state for a session.
func (s *Store) SavePoseSnapshot(sessionID string, params georef.EnuParams) (int64, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return 0, fmt.Errorf("marshal pose snapshot: %w", err)
	}

	res, err := s.db.Exec(`
		INSERT INTO pose_snapshots (session_id, params_json, created_at_ns)
		VALUES (?, ?, ?)`,
		sessionID, string(paramsJSON), time.Now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("insert pose snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get snapshot insert ID: %w", err)
	}
	return id, nil
}

// LatestPoseSnapshot returns the most recent snapshot for a session, or
// sql.ErrNoRows wrapped when none exists.
func (s *Store) LatestPoseSnapshot(sessionID string) (*PoseSnapshot, error) {
	var snap PoseSnapshot
	var paramsJSON string
	err := s.db.QueryRow(`
		SELECT snapshot_id, session_id, params_json, created_at_ns
		FROM pose_snapshots WHERE session_id = ?
		ORDER BY created_at_ns DESC LIMIT 1`, sessionID).Scan(
		&snap.SnapshotID, &snap.SessionID, &paramsJSON, &snap.CreatedAtNs)
	if err != nil {
		return nil, fmt.Errorf("latest pose snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(paramsJSON), &snap.Params); err != nil {
		return nil, fmt.Errorf("unmarshal pose snapshot: %w", err)
	}
	return &snap, nil
}

// AppendAdjustment persists one audit entry for a session.
func (s *Store) AppendAdjustment(sessionID string, adj georef.Adjustment) error {
	before, err := json.Marshal(adj.Before)
	if err != nil {
		return fmt.Errorf("marshal adjustment before: %w", err)
	}
	after, err := json.Marshal(adj.After)
	if err != nil {
		return fmt.Errorf("marshal adjustment after: %w", err)
	}
	delta, err := json.Marshal(adj.Delta)
	if err != nil {
		return fmt.Errorf("marshal adjustment delta: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO pose_adjustments (
			session_id, ts_unix_nanos, kind, source,
			before_json, after_json, delta_json
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, adj.TimestampNs, string(adj.Kind), string(adj.Source),
		string(before), string(after), string(delta))
	if err != nil {
		return fmt.Errorf("insert adjustment: %w", err)
	}
	return nil
}

// AdjustmentsForSession returns a session's audit rows oldest-first.
func (s *Store) AdjustmentsForSession(sessionID string, limit int) ([]georef.Adjustment, error) {
	if limit <= 0 {
		limit = 10000
	}
	rows, err := s.db.Query(`
		SELECT ts_unix_nanos, kind, source, before_json, after_json, delta_json
		FROM pose_adjustments WHERE session_id = ?
		ORDER BY ts_unix_nanos ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query adjustments: %w", err)
	}
	defer rows.Close()

	var out []georef.Adjustment
	for rows.Next() {
		var adj georef.Adjustment
		var kind, source, before, after, delta string
		if err := rows.Scan(&adj.TimestampNs, &kind, &source, &before, &after, &delta); err != nil {
			return nil, fmt.Errorf("scan adjustment: %w", err)
		}
		adj.Kind = georef.AdjustmentKind(kind)
		adj.Source = georef.AdjustmentSource(source)
		if err := json.Unmarshal([]byte(before), &adj.Before); err != nil {
			return nil, fmt.Errorf("unmarshal adjustment before: %w", err)
		}
		if err := json.Unmarshal([]byte(after), &adj.After); err != nil {
			return nil, fmt.Errorf("unmarshal adjustment after: %w", err)
		}
		if err := json.Unmarshal([]byte(delta), &adj.Delta); err != nil {
			return nil, fmt.Errorf("unmarshal adjustment delta: %w", err)
		}
		out = append(out, adj)
	}
	return out, rows.Err()
}
