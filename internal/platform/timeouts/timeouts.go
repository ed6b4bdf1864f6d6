// Package timeouts defines shared timeout constants used across the service.
// Centralizing these values prevents drift between components and makes the
// durations discoverable.
package timeouts

import "time"

// SessionReap is how long a terminal session stays readable in the live
// registry before it is removed, so a client still rendering the final
// board can complete its reads.
const SessionReap = 5 * time.Second

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// OTelShutdown caps the wait when flushing pending spans at exit.
const OTelShutdown = 5 * time.Second
