package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.SequencerRun("forward", ResultEnqueued, 200)
	m.SequencerRun("forward", ResultSkipped, 0)
	m.Dispatched("live", 7, 120)
	m.SlotProcessed(ResultCommitted, 3, 250*time.Millisecond)
	m.SlotProcessed(ResultAlreadyProcessed, 0, 0)
	m.ObserveRPC("getBlock", "ok", 40*time.Millisecond)
	m.RegistryHit("pubkey")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SequencerRuns.WithLabelValues("forward", ResultEnqueued)))
	assert.Equal(t, 200.0, testutil.ToFloat64(m.SequencerEnqueued.WithLabelValues("forward")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.DispatcherStarted.WithLabelValues("live")))
	assert.Equal(t, 120.0, testutil.ToFloat64(m.QueueDepth.WithLabelValues("live")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ProcessorTxs))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProcessorSlots.WithLabelValues(ResultAlreadyProcessed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCCalls.WithLabelValues("getBlock", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistryHits.WithLabelValues("pubkey")))
}

func TestNewRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	require.Error(t, err)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.SequencerRun("forward", ResultIdle, 0)
	m.ObserveRPC("getBlock", "ok", time.Second)
	m.SlotProcessed(ResultError, 0, 0)
}

func TestServerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)
	m.ProcessorTxs.Add(2)

	srv := httptest.NewServer(NewServer(":0", reg).Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "sedimentology_processor_txs_total 2"))
}
