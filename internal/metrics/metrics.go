package metrics

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter is anything that can report how many of something it holds.
type Counter interface {
	Count() int
}

// CounterFunc adapts a plain function to Counter.
type CounterFunc func() int

func (f CounterFunc) Count() int { return f() }

// Sources feed the gauges. Nil sources are skipped.
type Sources struct {
	Connections  Counter
	Participants Counter
	Instances    Counter
	Entities     Counter
}

// Metrics holds the Prometheus collectors for the sync server. Each Metrics
// owns its registry so several can live in one process.
type Metrics struct {
	registry  *prometheus.Registry
	sources   Sources
	startTime time.Time

	connections   prometheus.Gauge
	participants  prometheus.Gauge
	instances     prometheus.Gauge
	entities      prometheus.Gauge
	uptimeSeconds prometheus.Gauge
	goroutines    prometheus.Gauge

	eventsTotal     *prometheus.CounterVec
	rejectedTotal   *prometheus.CounterVec
	broadcastsTotal *prometheus.CounterVec
}

func NewMetrics(sources Sources, startTime time.Time) *Metrics {
	m := &Metrics{
		registry:  prometheus.NewRegistry(),
		sources:   sources,
		startTime: startTime,
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ubichill_connections",
			Help: "Number of open client connections.",
		}),
		participants: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ubichill_participants",
			Help: "Number of participants joined to an instance.",
		}),
		instances: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ubichill_instances",
			Help: "Number of live world instances.",
		}),
		entities: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ubichill_entities",
			Help: "Number of entities across all instances.",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ubichill_uptime_seconds",
			Help: "Server uptime in seconds.",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ubichill_goroutines",
			Help: "Number of active goroutines.",
		}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ubichill_events_total",
			Help: "Inbound client events by name.",
		}, []string{"event"}),
		rejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ubichill_events_rejected_total",
			Help: "Inbound client events rejected, by reason.",
		}, []string{"reason"}),
		broadcastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ubichill_broadcasts_total",
			Help: "Group broadcasts published, by event.",
		}, []string{"event"}),
	}

	m.registry.MustRegister(
		m.connections,
		m.participants,
		m.instances,
		m.entities,
		m.uptimeSeconds,
		m.goroutines,
		m.eventsTotal,
		m.rejectedTotal,
		m.broadcastsTotal,
	)

	return m
}

func (m *Metrics) EventReceived(event string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(event).Inc()
}

func (m *Metrics) EventRejected(reason string) {
	if m == nil {
		return
	}
	m.rejectedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) Broadcast(event string) {
	if m == nil {
		return
	}
	m.broadcastsTotal.WithLabelValues(event).Inc()
}

// Update refreshes every gauge from its source.
func (m *Metrics) Update() {
	set := func(g prometheus.Gauge, c Counter) {
		if c != nil {
			g.Set(float64(c.Count()))
		}
	}
	set(m.connections, m.sources.Connections)
	set(m.participants, m.sources.Participants)
	set(m.instances, m.sources.Instances)
	set(m.entities, m.sources.Entities)

	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())
	m.goroutines.Set(float64(runtime.NumGoroutine()))
}

// Tick lets the driver refresh gauges between scrapes.
func (m *Metrics) Tick(_ context.Context) error {
	m.Update()
	return nil
}

// Handler returns an http.Handler that updates metrics before serving them.
func (m *Metrics) Handler() http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Update()
		inner.ServeHTTP(w, r)
	})
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
