package monitoring

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"farecast/ml"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservePredictionOutcomes(t *testing.T) {
	m := NewMetrics("test")

	m.ObservePrediction("file", 3, 2*time.Millisecond, nil)
	m.ObservePrediction("form", 1, time.Millisecond, &ml.ValidationError{Field: "passenger_count", Reason: "required"})
	m.ObservePrediction("json", 0, time.Millisecond, &ml.ModelUnavailableError{Path: "model.json", Err: errors.New("missing")})
	m.ObservePrediction("json", 0, time.Millisecond, &ml.PredictionError{Err: errors.New("boom")})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("file", "ok")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.rows.WithLabelValues("file")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("form", "rejected")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("json", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("normalize")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("load")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("predict")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.rows.WithLabelValues("form")))
}

func TestObserveCache(t *testing.T) {
	m := NewMetrics("test")
	m.ObserveCache(true)
	m.ObserveCache(true)
	m.ObserveCache(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheMisses))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics("farecast")
	m.ObserveHTTP("POST", "/api/predict", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, `farecast_http_requests_total{code="200",method="POST",route="/api/predict"} 1`), text)
	assert.Contains(t, text, "farecast_http_request_duration_seconds_bucket")
	assert.Contains(t, text, "go_goroutines")
}
