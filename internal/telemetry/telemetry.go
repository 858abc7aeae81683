// Package telemetry exports engine statistics to Prometheus.
//
// A disabled Telemetry hands out no-op metrics, so callers observe
// unconditionally.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	bbe "github.com/Brotcrunsher/BrotboxEngine"
)

const subsystem = "engine"

type Gauge interface {
	Set(float64)
}

type Counter interface {
	Add(float64)
}

type GaugeVec interface {
	With(labels ...string) Gauge
}

type NoopStat struct{}

func (NoopStat) Set(float64) {}
func (NoopStat) Add(float64) {}

type noopGaugeVec struct{}

func (noopGaugeVec) With(...string) Gauge { return NoopStat{} }

type prometheusGaugeVec struct {
	vec *prometheus.GaugeVec
}

func (p *prometheusGaugeVec) With(labelValues ...string) Gauge {
	return p.vec.WithLabelValues(labelValues...)
}

// Telemetry owns a registry and the engine metrics registered on it.
type Telemetry struct {
	registry  *prometheus.Registry
	namespace string

	arenaInUse       GaugeVec
	arenaCapacity    GaugeVec
	arenaPeak        GaugeVec
	arenaDestructors GaugeVec

	frames           Counter
	buffersCreated   Counter
	buffersReclaimed Counter
	reclaimPending   Gauge
	frameState       GaugeVec
	shaderModules    Gauge

	last renderTotals
}

// renderTotals remembers the last observed counter values so that
// monotonic snapshots can be turned into counter increments.
type renderTotals struct {
	frames    uint64
	created   uint64
	reclaimed uint64
	state     string
}

// New creates the telemetry. When enabled is false every metric is a no-op
// and Handler returns nil.
func New(enabled bool, namespace string) *Telemetry {
	t := &Telemetry{namespace: namespace}
	if enabled {
		t.registry = prometheus.NewRegistry()
		t.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		t.registry.MustRegister(collectors.NewGoCollector())
	}

	t.arenaInUse = t.newGaugeVec("arena_bytes_in_use", "Bytes below the arena cursor", "arena")
	t.arenaCapacity = t.newGaugeVec("arena_capacity_bytes", "Fixed arena capacity", "arena")
	t.arenaPeak = t.newGaugeVec("arena_peak_bytes", "Highest arena cursor offset", "arena")
	t.arenaDestructors = t.newGaugeVec("arena_destructors", "Registered arena destructors", "arena")

	t.frames = t.newCounter("frames_total", "Frames presented")
	t.buffersCreated = t.newCounter("buffers_created_total", "Vertex buffers created")
	t.buffersReclaimed = t.newCounter("buffers_reclaimed_total", "Retired buffers destroyed after their frame")
	t.reclaimPending = t.newGauge("reclaim_pending", "Retired buffers waiting for their frame to complete")
	t.frameState = t.newGaugeVec("frame_state", "1 for the current frame cycle state", "state")
	t.shaderModules = t.newGauge("shader_modules", "Cached shader modules")

	if enabled {
		bbe.Logger().Info("telemetry: prometheus metrics enabled", "namespace", namespace)
	}
	return t
}

// Enabled reports whether metrics are collected.
func (t *Telemetry) Enabled() bool { return t.registry != nil }

// Registry returns the underlying registry, nil when disabled.
func (t *Telemetry) Registry() *prometheus.Registry { return t.registry }

// Handler returns the HTTP handler serving the metrics, nil when disabled.
func (t *Telemetry) Handler() http.Handler {
	if t.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{Registry: t.registry})
}

func (t *Telemetry) newCounter(name, help string) Counter {
	if t.registry == nil {
		return NoopStat{}
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: t.namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
	t.registry.MustRegister(c)
	return c
}

func (t *Telemetry) newGauge(name, help string) Gauge {
	if t.registry == nil {
		return NoopStat{}
	}
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: t.namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
	t.registry.MustRegister(g)
	return g
}

func (t *Telemetry) newGaugeVec(name, help string, labels ...string) GaugeVec {
	if t.registry == nil {
		return noopGaugeVec{}
	}
	v := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: t.namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
	t.registry.MustRegister(v)
	return &prometheusGaugeVec{vec: v}
}
