package session

import (
	"time"

	"go.uber.org/zap"

	"github.com/anytls/anytls-go/pkg/protocol"
)

// heartbeatLoop periodically checks for a stalled peer and otherwise
// sends a keepalive, on a client session configured with a
// HeartbeatConfig. This is the liveness guarantee the session pool relies
// on to detect dead TLS tunnels before handing them to a caller.
func (s *Session) heartbeatLoop() {
	ticker := time.NewTicker(s.heartbeat.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			last := time.Unix(0, s.heartbeat.lastResponse.Load())
			if time.Since(last) > s.heartbeat.cfg.Timeout {
				s.logger.Debug("heartbeat timeout, closing session", zap.Duration("since_last_response", time.Since(last)))
				s.closeWithError(protocolErr("heartbeat timeout"))
				return
			}
			if err := s.writeFrame(protocol.NewControlFrame(protocol.CmdHeartRequest)); err != nil {
				s.closeWithError(err)
				return
			}
		case <-s.closeNotify:
			return
		}
	}
}
