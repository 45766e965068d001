package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMessagesPostedIncrementsPerStreamKind(t *testing.T) {
	before := testutil.ToFloat64(MessagesPosted.WithLabelValues("room"))
	MessagesPosted.WithLabelValues("room").Inc()
	after := testutil.ToFloat64(MessagesPosted.WithLabelValues("room"))
	assert.Equal(t, before+1, after)
}

func TestObserveFanoutKeepsSingleHistogramSeries(t *testing.T) {
	countBefore := testutil.CollectAndCount(HubFanoutDuration)
	ObserveFanout(time.Now().Add(-time.Millisecond))
	countAfter := testutil.CollectAndCount(HubFanoutDuration)
	assert.Equal(t, countBefore, countAfter, "a Histogram's series count never changes, only its buckets")
}

func TestHandlerServesPrometheusExposition(t *testing.T) {
	assert.NotNil(t, Handler())

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "orc_realtime_sessions_active")
}
