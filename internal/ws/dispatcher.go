package ws

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/portfoliokit/realtime-gateway/internal/metrics"
	"github.com/portfoliokit/realtime-gateway/internal/protocol"
	"github.com/portfoliokit/realtime-gateway/internal/ratelimit"
)

// route is one entry in the static event table. Adding an event means adding
// an entry here; the dispatch pipeline itself never changes.
type route struct {
	// mutating routes pass through the rate-limit gate for authenticated users
	mutating bool
	// deprecated routes answer with the HTTP migration hint instead of a handler
	deprecated bool
	handle     func(c *Conn, payload json.RawMessage) error
}

// Dispatcher routes inbound frames: envelope decode, event lookup, payload
// validation, rate-limit gate, handler dispatch, metrics and completion log.
type Dispatcher struct {
	routes   map[string]route
	registry *Registry
	metrics  *metrics.Recorder
	limiter  *ratelimit.Limiter
	apiBase  string
}

// NewDispatcher builds the event table over the injected collaborators.
func NewDispatcher(registry *Registry, recorder *metrics.Recorder, limiter *ratelimit.Limiter, apiBase string) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		metrics:  recorder,
		limiter:  limiter,
		apiBase:  apiBase,
	}

	d.routes = map[string]route{
		protocol.EventPing:           {handle: d.handlePing},
		protocol.EventStatsGet:       {handle: d.handleStatsGet},
		protocol.EventStatsSubscribe: {handle: d.handleStatsSubscribe},
	}
	for _, event := range protocol.DeprecatedEvents {
		d.routes[event] = route{mutating: true, deprecated: true}
	}

	return d
}

// HandleMessage processes one inbound frame. Every frame that names an event
// records exactly one metrics sample and one completion log line; frames that
// fail JSON parsing are answered and dropped without a sample, since no event
// was determined.
func (d *Dispatcher) HandleMessage(c *Conn, raw []byte) {
	log := c.Context().Logger

	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Debug("dropping frame with invalid json", zap.Error(err))
		_ = c.SendError("invalid json", "")
		return
	}

	start := time.Now()
	ok := false
	outcome := ""

	defer func() {
		duration := time.Since(start)
		d.metrics.RecordEvent(duration, ok)
		log.Info("event handled",
			zap.String("event", env.Event),
			zap.Duration("duration", duration),
			zap.Bool("ok", ok),
			zap.String("outcome", outcome),
		)
	}()

	rt, found := d.routes[env.Event]
	if !found {
		outcome = "unknown_event"
		_ = c.SendError("unknown event: "+env.Event, "")
		return
	}

	// Mutating events from authenticated users spend a token before anything
	// else runs; anonymous connections cannot reach mutating handlers.
	if rt.mutating && c.Context().Authenticated() {
		if !d.limiter.Allow(c.Context().UserID, 1) {
			outcome = "rate_limited"
			_ = c.SendError("rate_limited", "")
			return
		}
	}

	if rt.deprecated {
		outcome = "deprecated"
		_ = c.SendError("deprecated_event_use_http", d.apiBase)
		return
	}

	if err := rt.handle(c, env.Payload); err != nil {
		outcome = "failed"
		_ = c.SendError(err.Error(), "")
		return
	}

	ok = true
	outcome = "success"
}

// handlePing echoes the client timestamp with observed latency. A clock ahead
// of the server clamps to zero rather than reporting negative latency.
func (d *Dispatcher) handlePing(c *Conn, payload json.RawMessage) error {
	var req protocol.PingRequest
	if err := protocol.DecodeAndValidate(payload, &req); err != nil {
		return err
	}

	latency := time.Now().UnixMilli() - req.TS
	if latency < 0 {
		latency = 0
	}

	return c.Send(protocol.EventPing, protocol.PingResponse{
		Pong:      true,
		TS:        req.TS,
		LatencyMs: latency,
	})
}
