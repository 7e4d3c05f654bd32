// Package constants defines magic numbers and default values used throughout anytls-go.
package constants

import "time"

// Protocol identity.
const (
	StreamIDFirst   = 1 // client-allocated stream ids start here; 0 is reserved for control frames
	ProtocolVersion = 2
)

// Session lifecycle timeouts.
const (
	SynAckTimeout       = 30 * time.Second
	OutboundConnTimeout = 15 * time.Second
	DNSLookupTimeout    = 10 * time.Second
	WriterShutdownGrace = 1 * time.Second
)

// Session pool defaults.
const (
	DefaultPoolCheckInterval   = 30 * time.Second
	DefaultPoolIdleTimeout     = 60 * time.Second
	DefaultPoolMinIdleSessions = 1
)

// Heartbeat defaults (only active when a HeartbeatConfig is supplied).
const (
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultHeartbeatTimeout  = 45 * time.Second
)

// DNS cache defaults.
const (
	DNSCacheTTL = 60 * time.Second
)

// UDP-over-TCP limits.
const (
	MaxUDPPacketSize = 65535
)
