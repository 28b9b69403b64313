package smbc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cloudsoda/smbc/internal/smb2"
)

// Metrics collects client-side Prometheus metrics. A nil *Metrics is a
// valid no-op collector, so Dialer.Metrics may be left unset.
type Metrics struct {
	// Requests counts completed exchanges.
	// Labels: command, status
	Requests *prometheus.CounterVec

	// RequestDuration tracks round-trip time per command.
	RequestDuration *prometheus.HistogramVec

	// Bytes counts SMB2 message bytes moved over the transport.
	// Labels: direction=[sent, received]
	Bytes *prometheus.CounterVec

	// OpenHandles tracks file and directory handles across all shares.
	OpenHandles prometheus.Gauge

	// AuthAttempts counts SESSION_SETUP rounds by outcome.
	// Labels: result=[success, rejected, aborted]
	AuthAttempts *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smbc_requests_total",
				Help: "Total SMB2 exchanges by command and response status",
			},
			[]string{"command", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "smbc_request_duration_seconds",
				Help:    "SMB2 exchange round-trip time in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		Bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smbc_bytes_total",
				Help: "SMB2 message bytes by direction",
			},
			[]string{"direction"},
		),
		OpenHandles: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "smbc_open_handles",
				Help: "Current number of open file and directory handles",
			},
		),
		AuthAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smbc_auth_attempts_total",
				Help: "Authentication attempts by result",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(
		m.Requests,
		m.RequestDuration,
		m.Bytes,
		m.OpenHandles,
		m.AuthAttempts,
	)

	return m
}

func (m *Metrics) observeExchange(cmd uint16, status uint32, sent, received int, d time.Duration) {
	if m == nil {
		return
	}
	name := smb2.GetCommandName(cmd)
	m.Requests.WithLabelValues(name, smb2.GetStatusName(status)).Inc()
	m.RequestDuration.WithLabelValues(name).Observe(d.Seconds())
	m.Bytes.WithLabelValues("sent").Add(float64(sent))
	m.Bytes.WithLabelValues("received").Add(float64(received))
}

func (m *Metrics) handleOpened() {
	if m == nil {
		return
	}
	m.OpenHandles.Inc()
}

func (m *Metrics) handleClosed() {
	if m == nil {
		return
	}
	m.OpenHandles.Dec()
}

func (m *Metrics) authAttempt(result string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(result).Inc()
}
