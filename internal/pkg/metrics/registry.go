// Package metrics exposes gateway counters to Prometheus.
package metrics

import (
	"errors"

	"sim-gateway-go/internal/pkg/state"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "simgw"

// Registry owns the Prometheus registry and the gateway's own metrics.
// It satisfies hardware.Observer and server.Observer.
type Registry struct {
	registry *prometheus.Registry

	sessionsOpened prometheus.Counter
	sessionsActive prometheus.Gauge
	commands       *prometheus.CounterVec
	stateEvents    *prometheus.CounterVec
	frames         *prometheus.CounterVec
}

// NewRegistry creates a registry with process and Go runtime collectors.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "sessions_opened_total",
			Help:      "Client sessions accepted",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "sessions_active",
			Help:      "Client sessions currently open",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "commands_total",
			Help:      "Commands executed by name and result",
		}, []string{"command", "result"}),
		stateEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "events_total",
			Help:      "State change events processed by simulator type",
		}, []string{"sim"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "frames_total",
			Help:      "Serial frames by device and outcome",
		}, []string{"device", "outcome"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.sessionsOpened,
		r.sessionsActive,
		r.commands,
		r.stateEvents,
		r.frames,
	)
	return r
}

// Prometheus returns the underlying registry.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}

// Registerer is handed to components that own their metrics, such as worker pools.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.registry
}

// Register adds an external collector. Registering the same collector twice is not an error.
func (r *Registry) Register(c prometheus.Collector) error {
	err := r.registry.Register(c)
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return nil
	}
	return err
}

func (r *Registry) SessionOpened() {
	r.sessionsOpened.Inc()
	r.sessionsActive.Inc()
}

func (r *Registry) SessionClosed() {
	r.sessionsActive.Dec()
}

func (r *Registry) CommandExecuted(name string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.commands.WithLabelValues(name, result).Inc()
}

func (r *Registry) FrameWritten(device string) { r.frames.WithLabelValues(device, "written").Inc() }
func (r *Registry) FrameDropped(device string) { r.frames.WithLabelValues(device, "dropped").Inc() }
func (r *Registry) WriteFailed(device string)  { r.frames.WithLabelValues(device, "failed").Inc() }

// Handler counts processed state events.
func (r *Registry) Handler() state.Handler {
	return func(ev state.Event) {
		r.stateEvents.WithLabelValues(ev.Control.SimType).Inc()
	}
}
