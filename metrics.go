package fchat

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for a bot. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	framesReceived    *prometheus.CounterVec
	framesSent        *prometheus.CounterVec
	malformedFrames   prometheus.Counter
	handlerErrors     *prometheus.CounterVec
	handshakeDuration prometheus.Histogram
	connected         prometheus.Gauge
}

// NewMetrics registers the collectors on reg under the "fchat" namespace.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fchat",
			Name:      "frames_received_total",
			Help:      "Frames received from the chat server, by code",
		}, []string{"code"}),

		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fchat",
			Name:      "frames_sent_total",
			Help:      "Frames queued for the chat server, by code",
		}, []string{"code"}),

		malformedFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "fchat",
			Name:      "malformed_frames_total",
			Help:      "Received frames whose body was not valid JSON",
		}),

		handlerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fchat",
			Name:      "handler_errors_total",
			Help:      "Handler invocations that returned an error, by code",
		}, []string{"code"}),

		handshakeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fchat",
			Name:      "handshake_duration_seconds",
			Help:      "Time from sending IDN to the server's confirmation",
			Buckets:   prometheus.DefBuckets,
		}),

		connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "fchat",
			Name:      "connected",
			Help:      "1 while a chat connection is open",
		}),
	}
}

func (m *Metrics) frameReceived(code string) {
	if m != nil {
		m.framesReceived.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) frameSent(code string) {
	if m != nil {
		m.framesSent.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) frameMalformed() {
	if m != nil {
		m.malformedFrames.Inc()
	}
}

func (m *Metrics) handlerFailed(code string) {
	if m != nil {
		m.handlerErrors.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) handshakeDone(d time.Duration) {
	if m != nil {
		m.handshakeDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) setConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}
