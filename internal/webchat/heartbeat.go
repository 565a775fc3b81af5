package webchat

import (
	"time"
)

// HeartbeatConfig holds heartbeat tuning parameters.
type HeartbeatConfig struct {
	Interval time.Duration // how often to ping (default: 30s)
	Timeout  time.Duration // max time to wait for activity after ping (default: 10s)
}

// DefaultHeartbeatConfig returns sensible defaults for heartbeat monitoring.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
	}
}

func (h HeartbeatConfig) deadline() time.Duration {
	return h.Interval + h.Timeout
}

// runHeartbeat pings every connection each Interval and closes those with
// no frame read within Interval + Timeout. It exits when done is closed.
func (s *Server) runHeartbeat(done <-chan struct{}) {
	ticker := time.NewTicker(s.config.Heartbeat.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.checkConnections(time.Now())
		}
	}
}

func (s *Server) checkConnections(now time.Time) {
	deadline := s.config.Heartbeat.deadline()
	for _, c := range s.conns.All() {
		if idle := now.Sub(c.LastSeen()); idle > deadline {
			s.logger.Info("heartbeat timeout", "session_id", c.ID, "idle", idle.Round(time.Second).String())
			s.RemoveConnection(c)
			continue
		}
		if err := c.WritePing(); err != nil {
			s.logger.Info("heartbeat ping failed", "session_id", c.ID, "error", err)
			s.RemoveConnection(c)
		}
	}
}
