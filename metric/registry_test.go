package metric

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCounter(name string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "test",
		Name:      name,
	})
}

func TestRegistry_RegisterAndUnregister(t *testing.T) {
	r := NewRegistry()

	c := newTestCounter("frames_total")
	require.NoError(t, r.RegisterCounter("stream", "frames", c))
	assert.Equal(t, 1, r.Count())

	// Same key twice is rejected.
	err := r.RegisterCounter("stream", "frames", newTestCounter("frames_dup_total"))
	assert.Error(t, err)

	assert.True(t, r.Unregister("stream", "frames"))
	assert.False(t, r.Unregister("stream", "frames"))
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_ScrapeIncludesRegisteredMetric(t *testing.T) {
	r := NewRegistry()

	c := newTestCounter("scraped_total")
	require.NoError(t, r.RegisterCounter("stream", "scraped", c))
	c.Add(3)

	srv := NewServer(0, "/metrics", r)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	assert.Contains(t, body, "robotlink_test_scraped_total 3")
}
