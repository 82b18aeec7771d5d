package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordFetch(t *testing.T) {
	before := testutil.ToFloat64(TelemetryFetchesTotal.WithLabelValues(OriginPoll, OutcomeError))
	RecordFetch(OriginPoll, OutcomeError, 15*time.Millisecond)
	after := testutil.ToFloat64(TelemetryFetchesTotal.WithLabelValues(OriginPoll, OutcomeError))
	assert.Equal(t, before+1, after)
}

func TestRecordFetchMissingCapability(t *testing.T) {
	// Should not panic
	RecordFetch(OriginRequest, OutcomeMissingCapability, 0)
}

func TestAddPending(t *testing.T) {
	before := testutil.ToFloat64(TelemetryPendingRequests)
	AddPending(3)
	AddPending(-3)
	assert.Equal(t, before, testutil.ToFloat64(TelemetryPendingRequests))
}

func TestRecordBroadcast(t *testing.T) {
	before := testutil.ToFloat64(TelemetryBroadcastsTotal)
	RecordBroadcast()
	assert.Equal(t, before+1, testutil.ToFloat64(TelemetryBroadcastsTotal))
}

func TestRecordExport(t *testing.T) {
	okBefore := testutil.ToFloat64(ExportsTotal.WithLabelValues(OutcomeSuccess))
	errBefore := testutil.ToFloat64(ExportsTotal.WithLabelValues(OutcomeError))

	RecordExport(true, time.Second, 3)
	RecordExport(false, time.Millisecond, 0)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(ExportsTotal.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(ExportsTotal.WithLabelValues(OutcomeError)))
}

func TestWebsocketClientGauge(t *testing.T) {
	before := testutil.ToFloat64(WebsocketClients)
	WebsocketClientConnected()
	assert.Equal(t, before+1, testutil.ToFloat64(WebsocketClients))
	WebsocketClientDisconnected()
	assert.Equal(t, before, testutil.ToFloat64(WebsocketClients))
}

func TestRecordAPIRequest(t *testing.T) {
	counter := APIRequestsTotal.WithLabelValues("GET", "unmatched", "404")
	before := testutil.ToFloat64(counter)
	RecordAPIRequest("GET", "", 404, time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
