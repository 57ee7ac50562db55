// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatherFamily(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric family %s not registered", name)
	return nil
}

func TestSetRelayState_OneHot(t *testing.T) {
	states := []string{"waiting_for_live", "relaying", "restarting"}
	SetRelayState("relaying", states)

	mf := gatherFamily(t, "streamrelay_relay_state")
	active := 0
	for _, m := range mf.GetMetric() {
		if m.GetGauge().GetValue() == 1 {
			active++
			require.Len(t, m.GetLabel(), 1)
			assert.Equal(t, "relaying", m.GetLabel()[0].GetValue())
		}
	}
	assert.Equal(t, 1, active)

	SetRelayState("restarting", states)
	assert.Equal(t, 0.0, testutil.ToFloat64(relayState.WithLabelValues("relaying")))
	assert.Equal(t, 1.0, testutil.ToFloat64(relayState.WithLabelValues("restarting")))
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(relayRestarts.WithLabelValues("upgrade"))
	IncRestart("upgrade")
	assert.Equal(t, before+1, testutil.ToFloat64(relayRestarts.WithLabelValues("upgrade")))

	before = testutil.ToFloat64(procTerminate.WithLabelValues("SIGTERM", "sent"))
	IncProcTerminate("SIGTERM", "sent")
	assert.Equal(t, before+1, testutil.ToFloat64(procTerminate.WithLabelValues("SIGTERM", "sent")))

	SetEncoderRunning(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(encoderRunning))
	SetEncoderRunning(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(encoderRunning))
}

func TestObserveStormBackoff(t *testing.T) {
	ObserveStormBackoff(4)
	mf := gatherFamily(t, "streamrelay_relay_storm_backoff_seconds")
	require.Len(t, mf.GetMetric(), 1)
	assert.GreaterOrEqual(t, mf.GetMetric()[0].GetHistogram().GetSampleCount(), uint64(1))
}
