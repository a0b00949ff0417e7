// Package api exposes the engine over HTTP: websocket landmark ingest,
// websocket intent broadcast, and the runtime tuning surface.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/handwave-data/handwave/internal/arbiter"
	"github.com/handwave-data/handwave/internal/bus"
	"github.com/handwave-data/handwave/internal/config"
	"github.com/handwave-data/handwave/internal/monitoring"
	"github.com/handwave-data/handwave/internal/pipeline"
)

// writeWait bounds a single websocket write to a slow intent consumer.
const writeWait = 5 * time.Second

// sensorTick is one websocket message from the landmark producer.
type sensorTick struct {
	TimestampMs float64               `json:"timestamp_ms"`
	Hands       []pipeline.SensorHand `json:"hands"`
}

// Server wires the engine, bus, and tuning surface to HTTP.
type Server struct {
	engine *pipeline.Engine
	bus    *bus.Bus

	upgrader websocket.Upgrader
	start    time.Time
}

// NewServer creates a Server for the given engine and bus.
func NewServer(engine *pipeline.Engine, b *bus.Bus) *Server {
	return &Server{
		engine: engine,
		bus:    b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The landmark producer is a local browser page; the
			// daemon binds to loopback in production.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		start: time.Now(),
	}
}

// ServeMux returns the route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/params", s.handleParams)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/ws/landmarks", s.handleLandmarks)
	mux.HandleFunc("/ws/intent", s.handleIntent)
	return mux
}

// handleParams serves the tuning surface. GET returns the live snapshot;
// POST merges a partial document onto it, validates, and applies without
// resetting in-flight FSM state.
func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.engine.Tuning())
	case http.MethodPost:
		patch := config.EmptyTuningConfig()
		if err := json.NewDecoder(r.Body).Decode(patch); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		merged := s.engine.Tuning().Merge(patch)
		if err := merged.Validate(); err != nil {
			s.writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.engine.ApplyTuning(merged)
		s.writeJSON(w, http.StatusOK, merged)
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// statsResponse is the /api/stats payload.
type statsResponse struct {
	Session      string           `json:"session"`
	UptimeSecs   float64          `json:"uptime_secs"`
	ActiveHandID *int             `json:"active_hand_id"`
	Pipeline     pipeline.Metrics `json:"pipeline"`
	BusDropped   uint64           `json:"bus_dropped"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp := statsResponse{
		Session:    s.engine.Session(),
		UptimeSecs: time.Since(s.start).Seconds(),
		Pipeline:   s.engine.MetricsSnapshot(),
		BusDropped: s.bus.Dropped(),
	}
	if owner := s.engine.ActiveHandID(); owner != arbiter.NoOwner {
		resp.ActiveHandID = &owner
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleLandmarks ingests sensor ticks from the landmark producer. One
// producer connection at a time is the expected topology; concurrent
// producers are serialised by the engine.
func (s *Server) handleLandmarks(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("[API] landmark upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	monitoring.Logf("[API] landmark producer connected from %s", r.RemoteAddr)

	for {
		var tick sensorTick
		if err := conn.ReadJSON(&tick); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				monitoring.Logf("[API] landmark producer read error: %v", err)
			}
			return
		}
		nowMs := tick.TimestampMs
		if nowMs <= 0 {
			// Producer without a monotonic clock: fall back to the
			// server's, which is monotonic per process.
			nowMs = float64(time.Since(s.start).Microseconds()) / 1000.0
		}
		s.engine.ProcessSensor(nowMs, tick.Hands)
	}
}

// handleIntent streams stabilised intent records to one consumer. Each
// connection holds its own bus subscription; a consumer that stalls past
// its buffer loses records rather than stalling the pipeline.
func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("[API] intent upgrade failed: %v", err)
		return
	}

	sub := s.bus.Subscribe(0)
	monitoring.Logf("[API] intent consumer connected from %s", r.RemoteAddr)

	// Reader goroutine: drains control frames and signals close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		s.bus.Unsubscribe(sub)
		conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				monitoring.Logf("[API] intent consumer write error: %v", err)
				return
			}
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("[API] write response: %v", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
