// Package metrics defines the prometheus metric types exported by the RELP
// engine. When adding a new operation, these are the usual things worth
// tracking:
//   - things coming into or out of the engine: frames, sessions, bytes.
//   - the success or error status of any of the above.
//   - the distribution of processing latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesReceived counts frames successfully parsed off the wire, by verb.
	//
	// Provides metrics:
	//   relp_frames_received_total
	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relp_frames_received_total",
			Help: "Number of RELP frames received, by command verb.",
		}, []string{"cmd"})

	// FramesSent counts frames written to the wire, by verb.
	FramesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relp_frames_sent_total",
			Help: "Number of RELP frames sent, by command verb.",
		}, []string{"cmd"})

	// SessionsOpened counts sessions that completed the open handshake.
	SessionsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relp_sessions_opened_total",
			Help: "Number of sessions that completed the open handshake.",
		},
	)

	// SessionsBroken counts sessions that transitioned to the Broken state,
	// by the error code that broke them.
	SessionsBroken = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relp_sessions_broken_total",
			Help: "Number of sessions broken, by errcode.",
		}, []string{"code"})

	// ActiveSessions tracks the number of live sessions right now.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relp_active_sessions",
			Help: "Number of currently active RELP sessions.",
		},
	)

	// WindowUtilization tracks, per session event, how full the send window
	// was at the moment a frame was queued.
	WindowUtilization = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relp_window_utilization_ratio",
			Help:    "Fraction of the send window in use when a frame was queued.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	// FrameLatency tracks round-trip time from send to matching rsp.
	FrameLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "relp_frame_rtt_seconds",
			Help: "Round-trip latency from a frame being sent to its rsp being processed.",
			Buckets: []float64{
				0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
				0.25, 0.5, 1, 2.5, 5, 10,
			},
		},
	)

	// TLSHandshakes counts TLS handshake attempts, by outcome.
	TLSHandshakes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relp_tls_handshakes_total",
			Help: "Number of TLS handshakes attempted, by outcome (ok/error).",
		}, []string{"outcome"})

	// AuthFailures counts peer-authentication rejections, by auth mode.
	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relp_auth_failures_total",
			Help: "Number of peer authentication failures, by auth mode.",
		}, []string{"mode"})

	// ReconnectAttempts counts client reconnect-and-resend attempts, by
	// outcome.
	ReconnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relp_reconnect_attempts_total",
			Help: "Number of client reconnect-and-resend attempts, by outcome (ok/error).",
		}, []string{"outcome"})
)
