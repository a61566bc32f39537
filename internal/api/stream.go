package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/position-dashboard/internal/logging"
	"github.com/position-dashboard/internal/state"
	"github.com/position-dashboard/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	subscriberBuf  = 16
	maxClientFrame = 512
)

var (
	_ state.Sink    = (*StreamHub)(nil)
	_ state.Remover = (*StreamHub)(nil)
)

// StreamHub fans committed states out to the websocket subscribers of each session
type StreamHub struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

type subscriber struct {
	send   chan *types.DisplayState
	closed chan struct{}
	once   sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.closed) })
}

// NewStreamHub creates an empty hub
func NewStreamHub() *StreamHub {
	return &StreamHub{subs: make(map[string]map[*subscriber]struct{})}
}

// Name identifies the sink in logs and metrics
func (h *StreamHub) Name() string {
	return "websocket"
}

// Publish queues st for every subscriber of its session. A subscriber that
// falls behind loses its oldest queued state, never the newest.
func (h *StreamHub) Publish(_ context.Context, st *types.DisplayState) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[st.SessionID] {
		select {
		case sub.send <- st:
			continue
		default:
		}
		select {
		case <-sub.send:
		default:
		}
		select {
		case sub.send <- st:
		default:
		}
	}
	return nil
}

// Remove closes every stream of a torn down session
func (h *StreamHub) Remove(_ context.Context, sessionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[sessionID] {
		sub.close()
	}
	delete(h.subs, sessionID)
	return nil
}

// Subscribers returns the number of open streams of a session
func (h *StreamHub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}

func (h *StreamHub) subscribe(sessionID string) *subscriber {
	sub := &subscriber{
		send:   make(chan *types.DisplayState, subscriberBuf),
		closed: make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[*subscriber]struct{})
	}
	h.subs[sessionID][sub] = struct{}{}
	return sub
}

func (h *StreamHub) unsubscribe(sessionID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.subs[sessionID], sub)
	if len(h.subs[sessionID]) == 0 {
		delete(h.subs, sessionID)
	}
	sub.close()
}

// handleStream handles GET /api/sessions/{id}/stream. The current state is
// sent first, then every commit until the client leaves or the session is
// torn down.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	if !s.sessions.Touch(sessionID) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found", nil)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the response
		return
	}
	defer conn.Close()

	sub := s.hub.subscribe(sessionID)
	defer s.hub.unsubscribe(sessionID, sub)

	logger := logging.WithField("session", sessionID)

	current, err := s.sessions.State(sessionID)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
			time.Now().Add(writeWait))
		return
	}

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		conn.SetReadLimit(maxClientFrame)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	last := current
	if err := writeState(conn, current); err != nil {
		logger.WithError(err).Debug("Stream write failed")
		return
	}

	for {
		select {
		case st := <-sub.send:
			if st.UpdatedAt.Before(last.UpdatedAt) {
				continue
			}
			last = st
			if err := writeState(conn, st); err != nil {
				logger.WithError(err).Debug("Stream write failed")
				return
			}
		case <-sub.closed:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
				time.Now().Add(writeWait))
			return
		case <-readDone:
			return
		case <-ticker.C:
			s.sessions.Touch(sessionID)
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func writeState(conn *websocket.Conn, st *types.DisplayState) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(st)
}
