package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureCounter struct {
	mu      sync.Mutex
	records [][]Label
	total   float64
}

func (c *captureCounter) Inc(ctx context.Context, labels ...Label) {
	c.Add(ctx, 1, labels...)
}

func (c *captureCounter) Add(_ context.Context, val float64, labels ...Label) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, append([]Label(nil), labels...))
	c.total += val
}

type captureHistogram struct {
	records [][]Label
}

func (h *captureHistogram) Record(_ context.Context, _ float64, labels ...Label) {
	h.records = append(h.records, append([]Label(nil), labels...))
}

type captureGauge struct {
	last float64
}

func (g *captureGauge) Set(_ context.Context, val float64, _ ...Label) { g.last = val }
func (g *captureGauge) Inc(context.Context, ...Label)                  { g.last++ }
func (g *captureGauge) Dec(context.Context, ...Label)                  { g.last-- }

func labelValue(labels []Label, key string) string {
	for _, label := range labels {
		if label.Key == key {
			return label.Value
		}
	}
	return ""
}

func TestNew_DisabledReturnsNoop(t *testing.T) {
	m, err := New(&Config{Enabled: false})
	require.NoError(t, err)

	c, err := m.Counter("x_total", "x")
	require.NoError(t, err)
	c.Inc(context.Background())

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestNew_NilConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestMeter_ExposesPrometheusFormat(t *testing.T) {
	m, err := New(&Config{Enabled: true, ServiceName: "dealflow-test"})
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	rm, err := NewResilienceMetrics(m)
	require.NoError(t, err)
	rm.ObserveCall(context.Background(), "docusign", OutcomeSuccess, 2, 120*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "resilience_calls_total")
	assert.Contains(t, string(body), `kind="docusign"`)
}

func TestResilienceMetrics_FallbackCounted(t *testing.T) {
	calls, fallbacks, attempts := &captureCounter{}, &captureCounter{}, &captureCounter{}
	rm := &ResilienceMetrics{
		calls:     calls,
		duration:  &captureHistogram{},
		attempts:  attempts,
		fallbacks: fallbacks,
	}

	ctx := context.Background()
	rm.ObserveCall(ctx, "roi-calculation", OutcomeSuccess, 1, time.Millisecond)
	rm.ObserveCall(ctx, "roi-calculation", OutcomeFallback, 3, time.Second)
	rm.ObserveCall(ctx, "roi-calculation", OutcomeCircuitOpen, 0, 0)

	assert.Len(t, calls.records, 3)
	assert.Len(t, fallbacks.records, 2)
	assert.Equal(t, float64(4), attempts.total)
	assert.Equal(t, OutcomeFallback, labelValue(calls.records[1], LabelOutcome))
}

func TestResilienceMetrics_Transition(t *testing.T) {
	transitions, gauge := &captureCounter{}, &captureGauge{}
	rm := &ResilienceMetrics{transitions: transitions, state: gauge}

	rm.ObserveTransition(context.Background(), "docusign", "CLOSED", "OPEN", 2)

	require.Len(t, transitions.records, 1)
	assert.Equal(t, "OPEN", labelValue(transitions.records[0], LabelToState))
	assert.Equal(t, float64(2), gauge.last)
}

func TestResilienceMetrics_NilSafe(t *testing.T) {
	var rm *ResilienceMetrics
	rm.ObserveCall(context.Background(), "k", OutcomeSuccess, 1, 0)
	rm.ObserveRejected(context.Background(), "k")
	rm.ObserveRetryDelay(context.Background(), "k", time.Second)
	rm.ObserveTransition(context.Background(), "k", "a", "b", 0)
}

func TestGinHTTPMiddleware_Routes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	counter, histogram := &captureCounter{}, &captureHistogram{}
	httpMetrics := &HTTPServerMetrics{service: "svc", requestTotal: counter, duration: histogram}

	router := gin.New()
	router.Use(GinHTTPMiddleware(httpMetrics))
	router.GET("/v1/breakers/:kind", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/v1/breakers/docusign", "/missing"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Len(t, counter.records, 2)
	assert.Equal(t, "/v1/breakers/:kind", labelValue(counter.records[0], LabelRoute))
	assert.Equal(t, "2xx", labelValue(counter.records[0], LabelStatusClass))
	assert.Equal(t, UnknownRoute, labelValue(counter.records[1], LabelRoute))
	assert.Equal(t, OutcomeError, labelValue(counter.records[1], LabelOutcome))
	assert.Len(t, histogram.records, 2)
}

func TestHTTPStatusClass(t *testing.T) {
	assert.Equal(t, "5xx", HTTPStatusClass(503))
	assert.Equal(t, "unknown", HTTPStatusClass(42))
	assert.Equal(t, OutcomeSuccess, HTTPOutcome(302))
}
