package usbip

import (
	"context"
	"net"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors the server updates as
// connections come and go. A nil *Metrics is valid everywhere a *Metrics is
// accepted: every method no-ops on a nil receiver.
type Metrics struct {
	ConnectionsActive prometheus.Gauge
	DevicesAttached   prometheus.Gauge
	URBsInFlight      *prometheus.GaugeVec
	URBsCompleted     *prometheus.CounterVec
}

// NewMetrics registers the server's collectors with reg and returns them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "usbip_connections_active",
			Help: "Number of currently open USB/IP client connections.",
		}),
		DevicesAttached: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "usbip_devices_attached",
			Help: "Number of simulated devices currently imported by a client.",
		}),
		URBsInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "usbip_urbs_in_flight",
			Help: "URBs currently submitted and not yet completed or unlinked, partitioned by endpoint.",
		}, []string{"endpoint"}),
		URBsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usbip_urbs_completed_total",
			Help: "Completed URBs, partitioned by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.ConnectionsActive, m.DevicesAttached, m.URBsInFlight, m.URBsCompleted)
	return m
}

func (m *Metrics) deviceAttached() {
	if m != nil {
		m.DevicesAttached.Inc()
	}
}

func (m *Metrics) deviceDetached() {
	if m != nil {
		m.DevicesAttached.Dec()
	}
}

func (m *Metrics) urbSubmitted(endpoint string) {
	if m != nil {
		m.URBsInFlight.WithLabelValues(endpoint).Inc()
	}
}

func (m *Metrics) urbRetired(endpoint, outcome string) {
	if m != nil {
		m.URBsInFlight.WithLabelValues(endpoint).Dec()
		m.URBsCompleted.WithLabelValues(outcome).Inc()
	}
}

// Server accepts TCP connections and runs the USB/IP protocol engine on
// each. It is the outer harness around the core protocol/dispatch logic;
// the core itself only needs an io.ReadWriteCloser per connection.
type Server struct {
	listener net.Listener
	registry *Registry
	logger   log.Logger
	metrics  *Metrics

	wg sync.WaitGroup
}

// NewServer wraps an already-bound listener. logger and metrics may be nil.
func NewServer(listener net.Listener, registry *Registry, logger log.Logger, metrics *Metrics) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Server{
		listener: listener,
		registry: registry,
		logger:   log.With(logger, "component", "server"),
		metrics:  metrics,
	}
}

// Serve accepts connections until ctx is cancelled or the listener errors.
// It blocks until every in-flight connection's goroutine has returned.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.wg.Wait()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		s.wg.Add(1)
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.ConnectionsActive.Inc()
		defer s.metrics.ConnectionsActive.Dec()
	}

	c := NewConnection(conn, s.registry, s.logger, s.metrics)
	if err := c.Serve(ctx); err != nil {
		level.Debug(s.logger).Log("msg", "connection closed", "err", err)
	}
}
