package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveBuild(t *testing.T) {
	m := New()
	m.ObserveBuild(OutcomeOK, 120, 2, time.Second)
	m.ObserveBuild(OutcomeCanceled, 0, 0, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BuildsTotal.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BuildsTotal.WithLabelValues(OutcomeCanceled)))
	assert.Equal(t, 120.0, testutil.ToFloat64(m.RecordsIndexed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PagesSkipped))
}

func TestObserveSearchAndContext(t *testing.T) {
	m := New()
	m.ObserveSearch(OutcomeOK, 7, 10*time.Millisecond)
	m.ObserveSearch(OutcomeEmpty, 0, 0)
	m.ObserveContext(OutcomeNotFound)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueries.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueries.WithLabelValues(OutcomeEmpty)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ContextLookups.WithLabelValues(OutcomeNotFound)))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveBuild(OutcomeOK, 1, 0, time.Second)
		m.ObserveSearch(OutcomeOK, 1, time.Second)
		m.ObserveContext(OutcomeOK)
	})
}

func TestIndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveSearch(OutcomeOK, 3, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tgsift_search_queries_total")
}
