package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the OCPP engine, exposed at /metrics.
var (
	MessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_ocpp_messages_total",
		Help: "OCPP frames by transport, direction and action",
	}, []string{"transport", "direction", "action"})

	ConnectedChargers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csms_connected_chargers",
		Help: "Charge points currently attached to a transport",
	})

	CallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "csms_server_call_duration_seconds",
		Help:    "Latency of server-initiated calls until the correlated reply",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	CallTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "csms_server_call_timeouts_total",
		Help: "Server-initiated calls that hit their deadline",
	})

	CallErrorsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_call_errors_sent_total",
		Help: "CALLERROR frames sent to chargers by error code",
	}, []string{"code"})

	DecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "csms_frame_decode_failures_total",
		Help: "Inbound frames discarded as malformed",
	})
)
