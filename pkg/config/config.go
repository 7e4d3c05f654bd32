// Package config defines the typed configuration surfaces for the AnyTLS
// client and server: documented structs with a DefaultXxxConfig
// constructor alongside each.
package config

import (
	"crypto/tls"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/anytls/anytls-go/pkg/constants"
	"github.com/anytls/anytls-go/pkg/metrics"
	"github.com/anytls/anytls-go/pkg/pool"
	"github.com/anytls/anytls-go/pkg/session"
	"github.com/anytls/anytls-go/pkg/settings"
)

// SessionPoolConfig controls the client-side session pool. Alias of
// pool.Config so callers configure the pool without importing pkg/pool
// directly.
type SessionPoolConfig = pool.Config

// DefaultSessionPoolConfig returns the stock pool tuning.
func DefaultSessionPoolConfig() SessionPoolConfig {
	return pool.DefaultConfig()
}

// HeartbeatConfig is an alias of session.HeartbeatConfig for callers
// configuring a client without importing pkg/session directly.
type HeartbeatConfig = session.HeartbeatConfig

// DefaultHeartbeatConfig returns the stock keepalive cadence for clients
// that opt into heartbeats.
func DefaultHeartbeatConfig() *HeartbeatConfig {
	return &HeartbeatConfig{
		Interval: constants.DefaultHeartbeatInterval,
		Timeout:  constants.DefaultHeartbeatTimeout,
	}
}

// ClientConfig configures a client-side AnyTLS deployment: the facade and
// the pool it reuses sessions through.
type ClientConfig struct {
	// ServerAddr is the "host:port" of the AnyTLS server.
	ServerAddr string
	// Password is the shared symmetric secret authenticated during the handshake.
	Password string
	// TLSConfig is the caller-supplied TLS client configuration (external collaborator).
	TLSConfig *tls.Config
	// PaddingScheme overrides padding.DefaultScheme, if non-empty.
	PaddingScheme []byte
	// ClientLabel is an informational value sent in the startup Settings frame.
	ClientLabel string
	// Pool configures idle-session reuse.
	Pool SessionPoolConfig
	// Heartbeat enables the client keepalive loop when non-nil.
	Heartbeat *HeartbeatConfig
	// DialTimeout bounds the initial TCP dial for a fresh session.
	DialTimeout time.Duration
	Logger      *zap.Logger
	Metrics     *metrics.Registry
}

// DefaultClientConfig returns a ClientConfig with pool/timeout defaults
// applied; Password, ServerAddr, and TLSConfig are still the caller's
// responsibility to set.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Pool:        DefaultSessionPoolConfig(),
		DialTimeout: 10 * time.Second,
	}
}

// ServerConfig configures the server dispatcher.
type ServerConfig struct {
	// Password is the shared symmetric secret compared against the client's hash.
	Password string
	// TLSConfig is the caller-supplied TLS server configuration (external collaborator).
	TLSConfig *tls.Config
	// PaddingScheme overrides padding.DefaultScheme, if non-empty.
	PaddingScheme []byte
	// ServerSettings are hints echoed in every ServerSettings frame
	// (idle_session_check_interval, idle_session_timeout, min_idle_session).
	ServerSettings settings.Map
	// MaxConnections caps concurrently accepted connections; 0 means no cap.
	MaxConnections int
	Logger         *zap.Logger
	Metrics        *metrics.Registry
}

// DefaultServerConfig returns a ServerConfig whose ServerSettings hints
// mirror DefaultSessionPoolConfig, so a client without its own pool
// opinion converges on the server's.
func DefaultServerConfig() ServerConfig {
	d := DefaultSessionPoolConfig()
	return ServerConfig{
		ServerSettings: settings.Map{
			settings.KeyIdleSessionCheckInterval: durationSeconds(d.CheckInterval),
			settings.KeyIdleSessionTimeout:       durationSeconds(d.IdleTimeout),
			settings.KeyMinIdleSession:           strconv.Itoa(d.MinIdleSessions),
		},
	}
}

func durationSeconds(d time.Duration) string {
	return strconv.Itoa(int(d / time.Second))
}
