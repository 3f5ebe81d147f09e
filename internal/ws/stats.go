package ws

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/portfoliokit/realtime-gateway/internal/metrics"
	"github.com/portfoliokit/realtime-gateway/internal/protocol"
)

// snapshot reads the current connection count into a metrics snapshot.
func (d *Dispatcher) snapshot() metrics.Snapshot {
	return d.metrics.Snapshot(d.registry.Count())
}

// handleStatsGet answers with one snapshot.
func (d *Dispatcher) handleStatsGet(c *Conn, payload json.RawMessage) error {
	var req protocol.StatsRequest
	if err := protocol.DecodeAndValidate(payload, &req); err != nil {
		return err
	}

	return c.Send(protocol.EventStatsGet, d.snapshot())
}

// handleStatsSubscribe sends one snapshot immediately, then pushes a fresh
// one every interval until the connection closes.
func (d *Dispatcher) handleStatsSubscribe(c *Conn, payload json.RawMessage) error {
	var req protocol.StatsSubscribeRequest
	if err := protocol.DecodeAndValidate(payload, &req); err != nil {
		return err
	}

	interval := time.Duration(req.Interval()) * time.Millisecond

	if err := c.Send(protocol.EventStatsSubscribe, d.snapshot()); err != nil {
		return err
	}

	go d.pushStats(c, interval)
	return nil
}

// pushStats is the per-subscription timer loop. Its lifetime is bounded by
// the connection's done channel, so the ticker is released on every exit
// path, abnormal disconnects included.
func (d *Dispatcher) pushStats(c *Conn, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := c.Context().Logger
	log.Debug("stats subscription started", zap.Duration("interval", interval))

	for {
		select {
		case <-c.Done():
			log.Debug("stats subscription stopped")
			return
		case <-ticker.C:
			if err := c.Send(protocol.EventStatsSubscribe, d.snapshot()); err != nil {
				log.Debug("stats push failed, stopping subscription", zap.Error(err))
				return
			}
		}
	}
}
