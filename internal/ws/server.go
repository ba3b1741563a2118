package ws

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/proctorai/proctor/internal/proctor"
	"github.com/proctorai/proctor/internal/session"
)

// maxBodyBytes bounds request bodies on the signal and create endpoints.
const maxBodyBytes = 64 << 10

type Server struct {
	store          *session.Store
	broadcaster    *Broadcaster
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
	started        time.Time
	proc           *process.Process
}

func NewServer(store *session.Store, broadcaster *Broadcaster, allowedOrigins []string, authToken string) *Server {
	s := &Server{
		store:          store,
		broadcaster:    broadcaster,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      authToken,
		started:        time.Now(),
	}

	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = p
	} else {
		log.Printf("process stats unavailable: %v", err)
	}

	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/", s.handleSessionRoutes)
	mux.HandleFunc("/api/health", s.handleHealth)
}

// Handler returns the full route set wrapped in the security headers
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return securityHeaders(mux)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	c, err := s.broadcaster.AddClient(conn)
	if err != nil {
		log.Printf("ws client rejected: %s: %v", r.RemoteAddr, err)
		data, _ := json.Marshal(WSMessage{Type: MsgError, Payload: ErrorPayload{Message: err.Error()}})
		conn.WriteMessage(websocket.TextMessage, data)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		conn.Close()
		return
	}
	log.Printf("WebSocket client connected: %s", r.RemoteAddr)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			log.Printf("WebSocket client disconnected: %s", r.RemoteAddr)
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg ClientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if msg.Type == MsgResync {
				s.broadcaster.SendSnapshot(c)
			}
		}
	}()
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.broadcaster.FilterSessions(s.store.GetAll()))
	case http.MethodPost:
		var req CreateSessionRequest
		if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sess, err := s.store.Create(req.ID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		log.Printf("Session created: %s", sess.ID())
		writeJSON(w, http.StatusCreated, sess.Snapshot())
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// sessionActions are the body-less POST operations on one session.
var sessionActions = map[string]func(*proctor.Session) proctor.State{
	"start":    (*proctor.Session).Start,
	"stop":     (*proctor.Session).Stop,
	"reset":    (*proctor.Session).Reset,
	"examiner": (*proctor.Session).ToggleExaminerMode,
	"warning":  (*proctor.Session).IncrementWarning,
}

func (s *Server) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	// Parse: /api/sessions/{id}[/{action}]
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.SplitN(path, "/", 2)

	sessionID, err := url.PathUnescape(parts[0])
	if err != nil || sessionID == "" {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	sess, realID, ok := s.store.Resolve(sessionID, s.broadcaster.Filter())
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	if len(parts) == 1 {
		s.handleSession(w, r, sess, realID)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if parts[1] == "signals" {
		s.handleSignals(w, r, sess)
		return
	}
	action, ok := sessionActions[parts[1]]
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.broadcaster.FilterState(action(sess)))
}

// handleSession serves GET and DELETE on one session. Responses go through
// the viewer filter so callers see the same ids as the live feed.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request, sess *proctor.Session, id string) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.broadcaster.FilterState(sess.Snapshot()))
	case http.MethodDelete:
		if !s.store.Remove(id) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		log.Printf("Session removed: %s", id)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request, sess *proctor.Session) {
	var req SignalRequest
	if err := decodeBody(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.FaceCount != nil && *req.FaceCount < 0 {
		http.Error(w, "faceCount must not be negative", http.StatusBadRequest)
		return
	}

	st := applySignals(sess, req)
	writeJSON(w, http.StatusOK, s.broadcaster.FilterState(st))
}

// applySignals feeds the present fields to the session in a fixed order and
// returns the resulting state.
func applySignals(sess *proctor.Session, req SignalRequest) proctor.State {
	if req.FaceDetected != nil {
		sess.SetFaceDetected(*req.FaceDetected)
	}
	if req.FaceCount != nil {
		sess.SetFaceCount(*req.FaceCount)
	}
	if req.HeadPose != nil {
		sess.SetHeadPose(*req.HeadPose)
	}
	if req.EyeGaze != nil {
		sess.SetEyeGaze(*req.EyeGaze)
	}
	if req.AudioLevel != nil {
		sess.SetAudioLevel(*req.AudioLevel)
	}
	if req.AudioDetected != nil {
		sess.SetAudioDetected(*req.AudioDetected)
	}
	return sess.Snapshot()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := HealthResponse{
		Status:         "ok",
		UptimeSeconds:  int64(time.Since(s.started).Seconds()),
		Sessions:       s.store.Count(),
		ActiveSessions: s.store.ActiveCount(),
		Clients:        s.broadcaster.ClientCount(),
		Goroutines:     runtime.NumGoroutine(),
	}
	if s.proc != nil {
		if mem, err := s.proc.MemoryInfo(); err == nil {
			resp.RSSBytes = mem.RSS
		}
		if cpu, err := s.proc.CPUPercent(); err == nil {
			resp.CPUPercent = cpu
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, session.ErrExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, session.ErrInvalidID):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("response encode error: %v", err)
	}
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if s.tokenMatches(r.URL.Query().Get("token")) {
		return true
	}

	if s.tokenMatches(r.Header.Get("X-Proctor-Token")) {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && s.tokenMatches(strings.TrimPrefix(auth, "Bearer ")) {
		return true
	}

	return false
}

func (s *Server) tokenMatches(candidate string) bool {
	if candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(s.authToken)) == 1
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	return parsed.Host == r.Host || isLoopback(parsed.Hostname())
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// securityHeaders sets conservative response headers on every route.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// NewHTTPServer builds the listening server for host:port.
func NewHTTPServer(host string, port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
