package ratelimit_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/dealflow/ratelimit"
	"github.com/ceyewan/dealflow/testkit"
	"github.com/ceyewan/dealflow/xerrors"
)

func newStandalone(t *testing.T, kit *testkit.Kit) ratelimit.Limiter {
	t.Helper()
	l, err := ratelimit.New(nil,
		ratelimit.WithLogger(kit.Logger), ratelimit.WithMeter(kit.Meter), ratelimit.WithClock(kit.Clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestStandalone_TokenBucket(t *testing.T) {
	kit := testkit.NewKit(t)
	l := newStandalone(t, kit)
	limit := ratelimit.Limit{Rate: 2, Burst: 3}

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(kit.Ctx, "ip:1", limit)
		require.NoError(t, err)
		assert.True(t, ok, "burst request %d", i)
	}
	ok, _ := l.Allow(kit.Ctx, "ip:1", limit)
	assert.False(t, ok)

	ok, _ = l.Allow(kit.Ctx, "ip:2", limit)
	assert.True(t, ok, "keys are independent")

	kit.Clock.Advance(500 * time.Millisecond)
	ok, _ = l.Allow(kit.Ctx, "ip:1", limit)
	assert.True(t, ok, "one token refilled")

	ok, _ = l.AllowN(kit.Ctx, "ip:3", limit, 4)
	assert.False(t, ok, "more than burst")
}

func TestStandalone_InvalidArgs(t *testing.T) {
	kit := testkit.NewKit(t)
	l := newStandalone(t, kit)

	_, err := l.Allow(kit.Ctx, "", ratelimit.Limit{Rate: 1, Burst: 1})
	assert.ErrorIs(t, err, ratelimit.ErrKeyEmpty)
	_, err = l.Allow(kit.Ctx, "k", ratelimit.Limit{})
	assert.ErrorIs(t, err, ratelimit.ErrInvalidLimit)
	_, err = l.AllowN(kit.Ctx, "k", ratelimit.Limit{Rate: 1, Burst: 1}, 0)
	assert.ErrorIs(t, err, ratelimit.ErrInvalidLimit)
}

func TestNew_ConfigErrors(t *testing.T) {
	_, err := ratelimit.New(&ratelimit.Config{Mode: "leaky"})
	assert.True(t, xerrors.IsValidation(err))
	_, err = ratelimit.New(&ratelimit.Config{Mode: ratelimit.ModeDistributed})
	assert.True(t, xerrors.IsValidation(err))

	cfg := &ratelimit.Config{}
	l, err := ratelimit.New(cfg)
	require.NoError(t, err)
	defer l.Close()
	assert.Equal(t, ratelimit.Limit{Rate: 20, Burst: 40}, cfg.Default())
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	kit := testkit.NewKit(t)
	l := newStandalone(t, kit)

	r := gin.New()
	r.Use(ratelimit.GinMiddleware(l, nil, ratelimit.PerRoute(
		map[string]ratelimit.Limit{"/v1/roi": {Rate: 1, Burst: 1}},
		ratelimit.Limit{Rate: 100, Burst: 100})))
	r.POST("/v1/roi", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(method, path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/v1/roi").Code)
	w := do(http.MethodPost, "/v1/roi")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"code":"rate_limited","message":"rate limit exceeded"}`, w.Body.String())
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/healthz").Code)
}

func TestDistributed(t *testing.T) {
	kit := testkit.NewKit(t)
	conn := testkit.NewRedisConnector(t)

	l, err := ratelimit.New(&ratelimit.Config{Mode: ratelimit.ModeDistributed, Prefix: "test:" + testkit.NewID() + ":"},
		ratelimit.WithRedisConnector(conn), ratelimit.WithLogger(kit.Logger), ratelimit.WithClock(kit.Clock))
	require.NoError(t, err)
	defer l.Close()

	limit := ratelimit.Limit{Rate: 1, Burst: 2}
	for i := 0; i < 2; i++ {
		ok, err := l.Allow(kit.Ctx, "user:1", limit)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(kit.Ctx, "user:1", limit)
	require.NoError(t, err)
	assert.False(t, ok)

	kit.Clock.Advance(time.Second)
	ok, err = l.Allow(kit.Ctx, "user:1", limit)
	require.NoError(t, err)
	assert.True(t, ok)
}
