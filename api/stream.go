package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/splatmaps/georef/internal/geom"
	"github.com/splatmaps/georef/internal/georef"
	"github.com/splatmaps/georef/internal/monitoring"
)

// poseUpdate is one frame of the live pose stream: pushed to every
// subscriber after each successful recompose.
type poseUpdate struct {
	SessionID string           `json:"session_id"`
	Matrix    geom.Mat4        `json:"matrix"`
	Params    georef.EnuParams `json:"params"`
}

const (
	streamWriteTimeout  = 5 * time.Second
	subscriberQueueSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Viewers connect from the renderer's origin, not ours.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// poseSubscriber is one websocket viewer. Frames are queued on send and
// written by the subscriber's own pump goroutine, so a slow socket never
// delays the mutation that produced the frame.
type poseSubscriber struct {
	conn *websocket.Conn
	send chan poseUpdate
}

// poseHub fans pose updates out to websocket subscribers. A subscriber
// whose queue fills up is dropped rather than allowed to stall the feed.
type poseHub struct {
	mu   sync.Mutex
	subs map[*poseSubscriber]struct{}
}

func newPoseHub() *poseHub {
	return &poseHub{subs: make(map[*poseSubscriber]struct{})}
}

// add registers the connection and queues initial as its first frame, then
// starts the write pump.
func (h *poseHub) add(conn *websocket.Conn, initial poseUpdate) *poseSubscriber {
	sub := &poseSubscriber{
		conn: conn,
		send: make(chan poseUpdate, subscriberQueueSize),
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	sub.send <- initial
	h.mu.Unlock()

	go h.writePump(sub)
	return sub
}

// remove unregisters the subscriber and closes its queue and socket.
// Idempotent; both the pump and the read drain call it.
func (h *poseHub) remove(sub *poseSubscriber) {
	h.mu.Lock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.send)
	}
	h.mu.Unlock()
	sub.conn.Close()
}

// broadcast queues the frame on every subscriber without blocking. Queue
// sends and removals share the hub lock, so a send never races a close.
func (h *poseHub) broadcast(update poseUpdate) {
	h.mu.Lock()
	for sub := range h.subs {
		select {
		case sub.send <- update:
		default:
			monitoring.Debugf("drop pose subscriber: queue full")
			delete(h.subs, sub)
			close(sub.send)
		}
	}
	h.mu.Unlock()
}

func (h *poseHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// writePump drains the subscriber's queue onto the socket. It exits when
// the queue is closed (subscriber dropped) or a write fails.
func (h *poseHub) writePump(sub *poseSubscriber) {
	defer sub.conn.Close()
	for update := range sub.send {
		sub.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := sub.conn.WriteJSON(update); err != nil {
			monitoring.Debugf("drop pose subscriber: %v", err)
			h.remove(sub)
			return
		}
	}
}

// handlePoseStream handles GET .../stream
// Upgrades to a websocket and pushes a pose update after every recompose.
// The current pose is sent immediately on connect.
func (s *Server) handlePoseStream(w http.ResponseWriter, r *http.Request, sess *liveSession) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		monitoring.Logf("pose stream upgrade for session %s: %v", sess.id, err)
		return
	}

	initial := poseUpdate{
		SessionID: sess.id,
		Matrix:    sess.controller.Matrix(),
		Params:    sess.controller.Params(),
	}
	sub := sess.hub.add(conn, initial)
	monitoring.Debugf("pose stream connected for session %s (%d subscribers)",
		sess.id, sess.hub.count())

	// Drain the read side so pings and close frames are processed; the
	// stream is write-only from our end.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				sess.hub.remove(sub)
				return
			}
		}
	}()
}
