package metrics

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nvr-ai/go-reps/sink"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkSetsGauges(t *testing.T) {
	before := testutil.ToFloat64(RepetitionsTotal)

	var s Sink
	s.Publish(sink.Snapshot{Activity: 500, Baseline: 27.5, Repetitions: 0})
	assert.Equal(t, 500.0, testutil.ToFloat64(Activity))
	assert.Equal(t, 27.5, testutil.ToFloat64(Baseline))
	assert.Equal(t, before, testutil.ToFloat64(RepetitionsTotal))

	s.Publish(sink.Snapshot{Activity: 10, Baseline: 255, Repetitions: 1, Counted: true})
	assert.Equal(t, 1.0, testutil.ToFloat64(Repetitions))
	assert.Equal(t, before+1, testutil.ToFloat64(RepetitionsTotal))
}

func TestStartTickObserves(t *testing.T) {
	before := testutil.CollectAndCount(TickDuration)
	done := StartTick()
	done()
	assert.Equal(t, before, testutil.CollectAndCount(TickDuration), "histogram is a single series")

	assert.Contains(t, gather(t), "reps_tick_duration_seconds_count")
}

func TestRecordDropAndRunning(t *testing.T) {
	before := testutil.ToFloat64(SinkDroppedTotal.WithLabelValues("mqtt"))
	RecordDrop("mqtt")
	assert.Equal(t, before+1, testutil.ToFloat64(SinkDroppedTotal.WithLabelValues("mqtt")))

	SetRunning(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(Running))
	SetRunning(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(Running))
}

func TestHandlerHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestServerServesMetrics(t *testing.T) {
	srv := NewServer("127.0.0.1:0", zerolog.Nop())
	require.NoError(t, srv.Start())
	defer srv.Stop()

	TicksTotal.Inc()

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "reps_ticks_total"))
}

func gather(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestServerStartAddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := NewServer(ln.Addr().String(), zerolog.Nop())
	assert.Error(t, srv.Start())
}
