package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sourcegraph/conc"

	apperrors "github.com/GriffinCanCode/pixel-trigger/internal/errors"
	"github.com/GriffinCanCode/pixel-trigger/internal/trace"
)

// Frame types pushed to clients.
const (
	TypeStatus = "status"
	TypeStats  = "stats"
	TypeEvent  = "event"
	TypeAck    = "ack"
	TypeError  = "error"
)

// Commands accepted from clients.
const (
	CmdStart         = "start"
	CmdStop          = "stop"
	CmdEmergencyStop = "emergency_stop"
	CmdArm           = "arm"
	CmdDisarm        = "disarm"
	CmdResetStats    = "reset_stats"
	CmdStatus        = "status"
)

// Envelope wraps every server-to-client frame.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Command is a client-to-server frame.
type Command struct {
	Type    string `json:"type"`
	TraceID string `json:"trace_id,omitempty"`
}

// Ack answers a Command.
type Ack struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	State   string `json:"state"`
	Armed   bool   `json:"armed"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
	now        func() time.Time
}

func newRateLimiter() *rateLimiter { return &rateLimiter{now: time.Now} }

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-RateLimitWindow)

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

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.opts.AllowedOrigins,
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	rl := newRateLimiter()
	s.mu.Lock()
	s.conns[conn] = rl
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	baseCtx := r.Context()
	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	if err := s.write(baseCtx, conn, Envelope{Type: TypeStatus, Data: s.ctrl.Snapshot()}); err != nil {
		return
	}

	for {
		var raw json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &raw); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !rl.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			_ = s.write(baseCtx, conn, Envelope{Type: TypeError, Data: "rate limit exceeded"})
			continue
		}

		var cmd Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			_ = s.write(baseCtx, conn, Envelope{Type: TypeError, Data: "malformed command"})
			continue
		}

		ctx := baseCtx
		if tc, ok := trace.ExtractFromJSON(raw); ok {
			ctx = trace.WithContext(ctx, tc)
		} else {
			ctx, _ = trace.EnsureContext(ctx)
		}
		_ = s.write(ctx, conn, Envelope{Type: TypeAck, Data: s.execute(ctx, cmd.Type)})
	}
}

// execute runs one websocket command.
func (s *Server) execute(ctx context.Context, name string) Ack {
	ctx, span := trace.StartSpan(ctx, "ws_command")
	defer span.End()
	span.SetAttr("command", name)

	var err error
	switch name {
	case CmdStart:
		err = s.ctrl.Start(ctx)
	case CmdStop:
		err = s.ctrl.Stop()
	case CmdEmergencyStop:
		err = s.ctrl.EmergencyStop()
	case CmdArm:
		s.ctrl.Arm(true)
	case CmdDisarm:
		s.ctrl.Arm(false)
	case CmdResetStats:
		s.ctrl.ResetStats()
	case CmdStatus:
	default:
		return Ack{Command: name, Error: "unknown command", Code: apperrors.InvalidArgument.String()}
	}

	st := s.ctrl.Snapshot()
	ack := Ack{Command: name, OK: err == nil, State: st.State, Armed: st.Armed}
	if err != nil {
		span.SetAttr("error", err.Error())
		body := errorBody(err)
		ack.Error = body.Error
		ack.Code = body.Code
		trace.Logger(ctx).Warn("websocket command failed", "command", name, "error", err)
	}
	return ack
}

func (s *Server) clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

// broadcast writes msg to every client concurrently and waits for all writes.
func (s *Server) broadcast(ctx context.Context, msg Envelope) {
	s.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	var wg conc.WaitGroup
	for _, c := range conns {
		wg.Go(func() { _ = s.write(ctx, c, msg) })
	}
	wg.Wait()
}

func (s *Server) write(ctx context.Context, c *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, WriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, c, v)
}
