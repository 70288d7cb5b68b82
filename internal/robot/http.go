package robot

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/keepmind9/wirebot/internal/logger"
	"github.com/sirupsen/logrus"
)

// maxSayBodySize caps the body of a say request
const maxSayBodySize = 64 * 1024

// Health is the body served by /healthz
type Health struct {
	Name      string    `json:"name"`
	Adapter   string    `json:"adapter"`
	Connected bool      `json:"connected"`
	StartedAt time.Time `json:"started_at"`
	Users     int       `json:"users"`
}

// Health reports the robot's current state
func (r *Robot) Health() Health {
	r.mu.RLock()
	adapterName := r.adapterName
	r.mu.RUnlock()

	return Health{
		Name:      r.name,
		Adapter:   adapterName,
		Connected: r.Connected(),
		StartedAt: r.startedAt,
		Users:     len(r.brain.Users()),
	}
}

// Handler returns the robot's HTTP routes
func (r *Robot) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/wirebot/say", r.handleSay)
	return mux
}

// startRouter starts the HTTP router. It blocks until the router is shut down.
func (r *Robot) startRouter() {
	server := &http.Server{
		Addr:              r.httpAddr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	r.mu.Lock()
	if r.ctx.Err() != nil {
		r.mu.Unlock()
		return
	}
	r.router = server
	r.mu.Unlock()

	logger.WithField("address", r.httpAddr).Info("http-router-listening")

	// Shutdown makes ListenAndServe return ErrServerClosed
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Errorf("http-router-error: %v", err)
	}

	logger.Info("http-router-stopped")
}

func (r *Robot) handleHealth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(r.Health()); err != nil {
		logger.Errorf("failed-to-write-health-response: %v", err)
	}
}

// handleSay posts the request body to the room given by the room query
// parameter. A configured token must be sent as "Authorization: Bearer <token>".
func (r *Robot) handleSay(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !r.authorized(req) {
		logger.WithField("remote_addr", req.RemoteAddr).Warn("unauthorized-say-request")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	room := req.URL.Query().Get("room")
	if room == "" {
		logger.Warn("missing-room-query-parameter-in-say-request")
		http.Error(w, "Missing room parameter", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(io.LimitReader(req.Body, maxSayBodySize))
	if err != nil {
		logger.Errorf("failed-to-read-request-body: %v", err)
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer req.Body.Close()

	text := strings.TrimSpace(string(data))
	if text == "" {
		logger.Warn("empty-request-body-in-say-request")
		http.Error(w, "Empty request body", http.StatusBadRequest)
		return
	}

	if r.Adapter() == nil {
		http.Error(w, "No adapter loaded", http.StatusServiceUnavailable)
		return
	}

	logger.WithFields(logrus.Fields{
		"room":   room,
		"length": len(text),
	}).Info("say-request-received")

	r.MessageRoom(room, text)
	w.WriteHeader(http.StatusAccepted)
}

// authorized checks the bearer token when the robot has one
func (r *Robot) authorized(req *http.Request) bool {
	if r.httpToken == "" {
		return true
	}
	auth := req.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return false
	}
	got := strings.TrimPrefix(auth, "Bearer ")
	return subtle.ConstantTimeCompare([]byte(got), []byte(r.httpToken)) == 1
}
