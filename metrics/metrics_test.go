package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/rsyslog/rsyslog-sub006/metrics"
)

func TestFramesReceivedCountsByVerb(t *testing.T) {
	before := testutil.ToFloat64(metrics.FramesReceived.WithLabelValues("syslog"))
	metrics.FramesReceived.WithLabelValues("syslog").Inc()
	after := testutil.ToFloat64(metrics.FramesReceived.WithLabelValues("syslog"))
	require.Equal(t, before+1, after)
}

func TestActiveSessionsGaugeIncDec(t *testing.T) {
	metrics.ActiveSessions.Set(0)
	metrics.ActiveSessions.Inc()
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.ActiveSessions))
	metrics.ActiveSessions.Dec()
	require.Equal(t, float64(0), testutil.ToFloat64(metrics.ActiveSessions))
}

func TestSessionsBrokenLabeledByCode(t *testing.T) {
	before := testutil.ToFloat64(metrics.SessionsBroken.WithLabelValues("SessionBroken"))
	metrics.SessionsBroken.WithLabelValues("SessionBroken").Inc()
	after := testutil.ToFloat64(metrics.SessionsBroken.WithLabelValues("SessionBroken"))
	require.Equal(t, before+1, after)
}
