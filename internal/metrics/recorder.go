// Package metrics keeps in-memory sliding-window counters for the websocket
// protocol layer: events per minute, a rolling latency buffer for p95, and an
// error counter. Prometheus counters are maintained alongside the window for
// scrape-based monitoring.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// maxDurationSamples caps the rolling latency buffer; oldest samples are
	// evicted first.
	maxDurationSamples = 1000

	// throughputWindow is the trailing window used for events-per-minute.
	throughputWindow = 60 * time.Second
)

// Snapshot is a point-in-time view of protocol health.
type Snapshot struct {
	Connections     int     `json:"connections"`
	EventsPerMinute int     `json:"epm"`
	ErrorRate       float64 `json:"errorRate"`
	P95Ms           float64 `json:"p95Ms"`
}

// Recorder accumulates per-event duration and outcome samples.
// All methods are safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	durations []float64 // milliseconds, most recent maxDurationSamples
	stamps    []time.Time
	errors    int
	total     int

	now func() time.Time

	eventsTotal *prometheus.CounterVec
	connections prometheus.Gauge
}

// NewRecorder creates a recorder and registers its prometheus collectors.
// A nil registerer skips registration, which keeps tests free of global state.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		now: time.Now,
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ws_events_total",
			Help: "Total websocket events processed, by outcome.",
		}, []string{"outcome"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ws_connections",
			Help: "Currently open websocket connections.",
		}),
	}

	if reg != nil {
		reg.MustRegister(r.eventsTotal, r.connections)
	}

	return r
}

// RecordEvent records one inbound frame's duration and outcome.
func (r *Recorder) RecordEvent(duration time.Duration, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	r.eventsTotal.WithLabelValues(outcome).Inc()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.durations = append(r.durations, float64(duration)/float64(time.Millisecond))
	if len(r.durations) > maxDurationSamples {
		r.durations = r.durations[1:]
	}

	r.stamps = append(r.stamps, r.now())
	r.total++
	if !ok {
		r.errors++
	}
}

// ConnectionOpened bumps the exported connection gauge.
func (r *Recorder) ConnectionOpened() {
	r.connections.Inc()
}

// ConnectionClosed drops the exported connection gauge.
func (r *Recorder) ConnectionClosed() {
	r.connections.Dec()
}

// Snapshot prunes the timestamp window and computes the current view.
// Pruning mutates shared state, so this is not a pure read. The p95 is
// computed by a full sort of the duration buffer, O(n log n) per call, which
// is fine at the 1000-sample cap.
func (r *Recorder) Snapshot(connections int) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-throughputWindow)
	i := 0
	for i < len(r.stamps) && r.stamps[i].Before(cutoff) {
		i++
	}
	r.stamps = r.stamps[i:]

	errorRate := 0.0
	if r.total > 0 {
		errorRate = math.Round(float64(r.errors)/float64(r.total)*10000) / 10000
	}

	return Snapshot{
		Connections:     connections,
		EventsPerMinute: len(r.stamps),
		ErrorRate:       errorRate,
		P95Ms:           percentile95(r.durations),
	}
}

func percentile95(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
