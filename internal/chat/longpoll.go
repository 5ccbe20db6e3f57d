package chat

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// PollHandshake answers a new long-polling session.
type PollHandshake struct {
	SessionID    string `json:"sid"`
	PingInterval int64  `json:"pingInterval"`
	PingTimeout  int64  `json:"pingTimeout"`
}

// pollSession is a long-polling connection. Dispatch is serialized per
// session so frames are handled in the order they were posted.
type pollSession struct {
	client *Client
	mu     sync.Mutex
	timer  *time.Timer
}

type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*pollSession
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*pollSession)}
}

func (s *sessionRegistry) add(sess *pollSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.client.ID] = sess
}

func (s *sessionRegistry) get(id string) (*pollSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *sessionRegistry) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.timer.Stop()
		delete(s.sessions, id)
	}
}

func (s *sessionRegistry) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Routes mounts both transports on router.
func (r *Relay) Routes(router chi.Router) {
	router.Get("/ws", r.ServeWS)
	router.Route("/poll", func(pr chi.Router) {
		pr.Post("/", r.openPoll)
		pr.Get("/{sid}", r.receivePoll)
		pr.Post("/{sid}", r.sendPoll)
		pr.Delete("/{sid}", r.closePoll)
	})
}

func (r *Relay) sessionWindow() time.Duration {
	return r.cfg.PingInterval + r.cfg.PingTimeout
}

func (r *Relay) openPoll(w http.ResponseWriter, req *http.Request) {
	identity := r.Identify(req)

	c := r.Connect(identity, TransportLongPoll, func(c *Client) { r.sessions.remove(c.ID) })
	sess := &pollSession{client: c}
	sess.timer = time.AfterFunc(r.sessionWindow(), func() {
		r.logger.Debug().Str("conn_id", c.ID).Msg("long-poll session expired")
		r.Disconnect(c)
	})
	r.sessions.add(sess)

	writeJSON(w, http.StatusOK, PollHandshake{
		SessionID:    c.ID,
		PingInterval: r.cfg.PingInterval.Milliseconds(),
		PingTimeout:  r.cfg.PingTimeout.Milliseconds(),
	})
}

// receivePoll waits up to one ping interval for frames and returns every
// frame queued by then as a JSON array.
func (r *Relay) receivePoll(w http.ResponseWriter, req *http.Request) {
	sess, ok := r.sessions.get(chi.URLParam(req, "sid"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	sess.timer.Reset(r.sessionWindow())
	defer sess.timer.Reset(r.sessionWindow())

	frames := make([]json.RawMessage, 0)
	wait := time.NewTimer(r.cfg.PingInterval)
	defer wait.Stop()

	select {
	case frame, ok := <-sess.client.Send:
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session closed"})
			return
		}
		frames = append(frames, frame)
	case <-wait.C:
	case <-req.Context().Done():
		return
	}

drain:
	for {
		select {
		case frame, ok := <-sess.client.Send:
			if !ok {
				break drain
			}
			frames = append(frames, frame)
		default:
			break drain
		}
	}
	writeJSON(w, http.StatusOK, frames)
}

// sendPoll accepts one envelope or an array of envelopes.
func (r *Relay) sendPoll(w http.ResponseWriter, req *http.Request) {
	sess, ok := r.sessions.get(chi.URLParam(req, "sid"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxFrameSize))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "frame too large"})
		return
	}

	frames := []json.RawMessage{body}
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &frames); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed frame batch"})
			return
		}
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	for _, frame := range frames {
		r.Dispatch(r.ctx, sess.client, frame)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Relay) closePoll(w http.ResponseWriter, req *http.Request) {
	sess, ok := r.sessions.get(chi.URLParam(req, "sid"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	r.Disconnect(sess.client)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
