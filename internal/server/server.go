package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/GriffinCanCode/pixel-trigger/internal/config"
	"github.com/GriffinCanCode/pixel-trigger/internal/engine"
	apperrors "github.com/GriffinCanCode/pixel-trigger/internal/errors"
	"github.com/GriffinCanCode/pixel-trigger/internal/syncx"
	"github.com/GriffinCanCode/pixel-trigger/internal/trace"
)

// Controller is the engine surface the control plane drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	EmergencyStop() error
	Arm(on bool)
	Snapshot() engine.Status
	ResetStats()
	Configure(s engine.Settings) error
	RecentEvents() []engine.Event
	Events() <-chan engine.Event
}

// Options configure a Server.
type Options struct {
	// ConfigPath receives PUT /api/config updates. Empty disables persistence.
	ConfigPath     string
	PushInterval   time.Duration
	AllowedOrigins []string
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	ctrl Controller
	opts Options
	cfg  *syncx.RWGuard[*config.Config]

	mu    sync.RWMutex
	conns map[*websocket.Conn]*rateLimiter
}

// New creates a server around ctrl. cfg is the configuration ctrl was built from.
func New(ctrl Controller, cfg *config.Config, opts Options) *Server {
	if opts.PushInterval <= 0 {
		opts.PushInterval = DefaultPushInterval
	}
	return &Server{
		ctrl:  ctrl,
		opts:  opts,
		cfg:   syncx.NewGuard(cfg),
		conns: make(map[*websocket.Conn]*rateLimiter),
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("POST /api/start", s.handleStart)
	mux.HandleFunc("POST /api/stop", s.handleStop)
	mux.HandleFunc("POST /api/emergency-stop", s.handleEmergencyStop)
	mux.HandleFunc("POST /api/stats/reset", s.handleResetStats)
	mux.HandleFunc("POST /api/arm", s.handleArm)
	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	mux.HandleFunc("PUT /api/config", s.handlePutConfig)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

// Run broadcasts engine events and periodic stats to websocket clients until
// ctx ends.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PushInterval)
	defer ticker.Stop()
	events := s.ctrl.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			s.broadcast(ctx, Envelope{Type: TypeEvent, Data: ev})
		case <-ticker.C:
			if s.clients() == 0 {
				continue
			}
			s.broadcast(ctx, Envelope{Type: TypeStats, Data: s.ctrl.Snapshot()})
		}
	}
}

// Config returns the configuration currently served.
func (s *Server) Config() *config.Config { return s.cfg.Get() }

// ApplyConfig validates cfg, reconfigures the engine and serves cfg from now on.
// Settings take effect from the next start.
func (s *Server) ApplyConfig(cfg *config.Config) error {
	settings, err := cfg.Settings()
	if err != nil {
		return err
	}
	if err := s.ctrl.Configure(settings); err != nil {
		return err
	}
	s.cfg.Set(cfg)
	return nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	st := s.ctrl.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{"state": st.State, "armed": st.Armed})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.RecentEvents())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "start", s.ctrl.Start(r.Context()))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "stop", s.ctrl.Stop())
}

func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, "emergency_stop", s.ctrl.EmergencyStop())
}

func (s *Server) handleResetStats(w http.ResponseWriter, r *http.Request) {
	s.ctrl.ResetStats()
	s.respond(w, r, "reset_stats", nil)
}

func (s *Server) handleArm(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Armed bool `json:"armed"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, MaxConfigBody)).Decode(&body); err != nil {
		writeError(w, apperrors.Wrap(err, apperrors.InvalidArgument, "decode arm request"))
		return
	}
	s.ctrl.Arm(body.Armed)
	s.respond(w, r, "arm", nil)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Get())
}

// handlePutConfig merges the body over the current configuration, so partial
// documents are accepted.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "put_config")
	defer span.End()

	next, err := cloneConfig(s.cfg.Get())
	if err != nil {
		writeError(w, apperrors.Wrap(err, apperrors.Internal, "copy config"))
		return
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, MaxConfigBody)).Decode(next); err != nil {
		writeError(w, apperrors.Wrap(err, apperrors.InvalidArgument, "decode config"))
		return
	}
	if err := next.Validate(); err != nil {
		span.SetAttr("error", err.Error())
		writeError(w, err)
		return
	}
	if err := s.ApplyConfig(next); err != nil {
		writeError(w, err)
		return
	}
	if s.opts.ConfigPath != "" {
		if err := config.Save(s.opts.ConfigPath, next); err != nil {
			writeError(w, apperrors.Wrap(err, apperrors.Internal, "persist config"))
			return
		}
	}
	trace.Logger(ctx).Info("config updated", "persisted", s.opts.ConfigPath != "")
	writeJSON(w, http.StatusOK, next)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, action string, err error) {
	log := trace.Logger(r.Context())
	if err != nil {
		log.Warn("control request failed", "action", action, "error", err)
		writeError(w, err)
		return
	}
	log.Info("control request", "action", action)
	st := s.ctrl.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "state": st.State, "armed": st.Armed})
}

func cloneConfig(c *config.Config) (*config.Config, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var out config.Config
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ErrorBody is the JSON shape of every failed request.
type ErrorBody struct {
	Error    string            `json:"error"`
	Code     string            `json:"code"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	appErr, ok := apperrors.As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch appErr.Code {
	case apperrors.InvalidArgument, apperrors.ConfigInvalid:
		return http.StatusBadRequest
	case apperrors.NotRunning, apperrors.AlreadyRunning:
		return http.StatusConflict
	case apperrors.PlatformUnavailable, apperrors.ResourceLost, apperrors.SampleUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(err error) ErrorBody {
	body := ErrorBody{Error: err.Error(), Code: apperrors.Unknown.String()}
	if appErr, ok := apperrors.As(err); ok {
		body.Error = appErr.Message
		body.Code = appErr.Code.String()
		body.Metadata = appErr.Metadata
	}
	return body
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), errorBody(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}
