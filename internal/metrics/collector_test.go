package metrics

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/vstream/vstream"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.blocksTotal)
	assert.NotNil(t, collector.xrunsTotal)
	assert.NotNil(t, collector.streamActive)
	assert.NotNil(t, collector.httpRequestsTotal)
}

func TestCollector_StreamCounters(t *testing.T) {
	collector := NewCollectorWith(prometheus.NewRegistry(), nextTestNamespace(), nil)

	collector.BlockTransferred("audio_in", vstream.DirectionIn)
	collector.BlockTransferred("audio_in", vstream.DirectionIn)
	collector.BlockTransferred("audio_out", vstream.DirectionOut)
	collector.Xrun("audio_in", vstream.DirectionIn)
	collector.Xrun("audio_out", vstream.DirectionOut)
	collector.EndOfStream("video_in")
	collector.StartFailed("video_out")

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.blocksTotal.WithLabelValues("audio_in", "in")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.blocksTotal.WithLabelValues("audio_out", "out")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.xrunsTotal.WithLabelValues("audio_in", "overflow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.xrunsTotal.WithLabelValues("audio_out", "underflow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.eosTotal.WithLabelValues("video_in")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.startFailuresTotal.WithLabelValues("video_out")))
}

func TestCollector_Gauges(t *testing.T) {
	collector := NewCollectorWith(prometheus.NewRegistry(), nextTestNamespace(), nil)

	collector.ActiveChanged("audio_in", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.streamActive.WithLabelValues("audio_in")))
	collector.ActiveChanged("audio_in", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.streamActive.WithLabelValues("audio_in")))

	collector.BlocksOwned("audio_out", 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.blocksOwned.WithLabelValues("audio_out")))
	collector.BlocksOwned("audio_out", 0)
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.blocksOwned.WithLabelValues("audio_out")))
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollectorWith(prometheus.NewRegistry(), nextTestNamespace(), nil)

	collector.RecordHTTPRequest("GET", "/status", 200, 10*time.Millisecond)
	collector.RecordHTTPRequest("GET", "/status", 503, 10*time.Millisecond)
	collector.RecordHTTPRequest("GET", "/status", 204, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/status", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/status", "5xx")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.httpRequestDuration))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollectorWith(prometheus.NewRegistry(), nextTestNamespace(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				collector.BlockTransferred("audio_in", vstream.DirectionIn)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000.0, testutil.ToFloat64(collector.blocksTotal.WithLabelValues("audio_in", "in")))
}

func TestCollector_Exposition(t *testing.T) {
	reg := prometheus.NewRegistry()
	ns := nextTestNamespace()
	collector := NewCollectorWith(reg, ns, zap.NewNop())

	collector.EndOfStream("audio_in")

	expected := fmt.Sprintf(`
# HELP %[1]s_eos_total Total number of end-of-stream notifications
# TYPE %[1]s_eos_total counter
%[1]s_eos_total{channel="audio_in"} 1
`, ns)
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), ns+"_eos_total"))
}

func TestCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	ns := nextTestNamespace()
	NewCollectorWith(reg, ns, nil)

	assert.Panics(t, func() { NewCollectorWith(reg, ns, nil) })
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "2xx", statusCode(200))
	assert.Equal(t, "3xx", statusCode(301))
	assert.Equal(t, "4xx", statusCode(404))
	assert.Equal(t, "5xx", statusCode(500))
	assert.Equal(t, "unknown", statusCode(100))
}
