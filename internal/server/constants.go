// Package server exposes the engine over HTTP, WebSocket and gRPC health.
package server

import "time"

// Control plane constants.
const (
	// Per-connection command rate limit (sliding window).
	RateLimitMessages = 20
	RateLimitWindow   = time.Second

	// WriteTimeout bounds a single websocket frame write.
	WriteTimeout = 2 * time.Second

	// DefaultPushInterval is used when Options.PushInterval is zero.
	DefaultPushInterval = 500 * time.Millisecond

	// HealthService is the gRPC health service name tracking the engine state.
	HealthService = "pixeltrigger.Engine"

	// MaxConfigBody caps PUT /api/config payloads.
	MaxConfigBody = 1 << 16
)
