// Package server provides HTTP and WebSocket handlers
package server

import "time"

// Server configuration constants
const (
	// Per-connection inbound message rate limiting
	RateLimitMessages = 10          // Max messages per connection per window
	RateLimitWindow   = time.Second // Sliding window duration

	// Graceful shutdown bound for in-flight requests
	ShutdownTimeout = 5 * time.Second
)
