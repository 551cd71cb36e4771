// Package server provides HTTP and WebSocket handlers
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/tablesight/tablesight/internal/bridge"
	"github.com/tablesight/tablesight/internal/drift"
	"github.com/tablesight/tablesight/internal/engine"
	apperrors "github.com/tablesight/tablesight/internal/errors"
	"github.com/tablesight/tablesight/internal/sites"
	"github.com/tablesight/tablesight/internal/state"
	"github.com/tablesight/tablesight/internal/trace"
)

// Message types.
type Message struct {
	Type string `json:"type"`
}

type StateMessage struct {
	Type  string           `json:"type"`
	State state.TableState `json:"state"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type addBaselineRequest struct {
	Notes string `json:"notes"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	// Prune old timestamps
	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	eng      *engine.Engine
	bus      *bridge.Bridge
	site     *sites.SiteConfig
	store    *drift.Store
	reporter *drift.Reporter
}

// New creates a new server.
func New(eng *engine.Engine, bus *bridge.Bridge, site *sites.SiteConfig, store *drift.Store, reporter *drift.Reporter) *Server {
	return &Server{
		eng:      eng,
		bus:      bus,
		site:     site,
		store:    store,
		reporter: reporter,
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("POST /api/force-update", s.handleForceUpdate)
	mux.HandleFunc("POST /api/calibrate", s.handleCalibrate)
	mux.HandleFunc("GET /api/baselines", s.handleListBaselines)
	mux.HandleFunc("GET /api/baselines/manifest", s.handleBaselineManifest)
	mux.HandleFunc("POST /api/baselines", s.handleAddBaseline)
	mux.HandleFunc("POST /api/drift/check", s.handleDriftCheck)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	baseCtx := r.Context()
	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	// Stream every published state to this connection.
	subID := s.bus.Subscribe(func(st state.TableState) {
		if err := wsjson.Write(baseCtx, conn, StateMessage{Type: "state", State: st}); err != nil {
			log.Debug("websocket write failed", "error", err)
		}
	}, nil)
	defer s.bus.Unsubscribe(subID)

	// Greet with the latest state so a reconnecting client is current.
	if st, ok := s.bus.Latest(); ok {
		_ = wsjson.Write(baseCtx, conn, StateMessage{Type: "state", State: st})
	}

	rl := &rateLimiter{}
	for {
		var msg json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !rl.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			_ = wsjson.Write(baseCtx, conn, ErrorMessage{
				Type:    "error",
				Message: "rate limit exceeded",
			})
			continue
		}

		var base Message
		if err := json.Unmarshal(msg, &base); err != nil {
			continue
		}

		switch base.Type {
		case "force_update":
			ctx, span := trace.StartSpan(baseCtx, "ws_force_update")
			st, err := s.eng.ForceUpdate(ctx)
			span.End()
			if err != nil {
				_ = wsjson.Write(baseCtx, conn, ErrorMessage{Type: "error", Message: err.Error()})
				continue
			}
			_ = wsjson.Write(baseCtx, conn, StateMessage{Type: "state", State: st})
		case "latest":
			if st, ok := s.bus.Latest(); ok {
				_ = wsjson.Write(baseCtx, conn, StateMessage{Type: "state", State: st})
			} else {
				_ = wsjson.Write(baseCtx, conn, ErrorMessage{Type: "error", Message: "no state yet"})
			}
		}
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st, ok := s.bus.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "no state published yet")
		return
	}
	writeJSON(w, st)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.eng.History())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.eng.Stats())
}

func (s *Server) handleForceUpdate(w http.ResponseWriter, r *http.Request) {
	st, err := s.eng.ForceUpdate(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, st)
}

func (s *Server) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.Calibrate(r.Context()); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, map[string]any{"calibrated": true, "site": s.site.Name})
}

func (s *Server) handleListBaselines(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List()
	if err != nil {
		writeAppError(w, err)
		return
	}
	if records == nil {
		records = []drift.BaselineRecord{}
	}
	writeJSON(w, records)
}

func (s *Server) handleBaselineManifest(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.Manifest()
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, entries)
}

func (s *Server) handleAddBaseline(w http.ResponseWriter, r *http.Request) {
	var req addBaselineRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	frame, err := s.eng.CaptureFrame(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}

	rec, err := s.store.Add(frame, s.site.Name, s.site.Theme, s.site.Resolution, req.Notes)
	if err != nil {
		writeAppError(w, err)
		return
	}
	trace.Logger(r.Context()).Info("baseline stored", "id", rec.ID, "site", rec.SiteName)
	writeJSON(w, rec)
}

func (s *Server) handleDriftCheck(w http.ResponseWriter, r *http.Request) {
	frame, err := s.eng.CaptureFrame(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}

	res := drift.CompareAll(s.store, frame, s.site)
	rep := drift.BuildReport(s.site.Name, s.site.Theme, res.BestBaselineID, res)
	if _, err := s.reporter.Write(rep); err != nil {
		slog.Warn("drift report write failed", "error", err)
	}
	writeJSON(w, rep)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeAppError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperrors.CodeOf(err) {
	case apperrors.CodeBaselineNotFound:
		status = http.StatusNotFound
	case apperrors.CodeConfigInvalid:
		status = http.StatusBadRequest
	case apperrors.CodeSourceUnavailable, apperrors.CodeCaptureTimeout:
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, err.Error())
}
