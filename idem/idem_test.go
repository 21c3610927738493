package idem_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/dealflow/idem"
	"github.com/ceyewan/dealflow/testkit"
	"github.com/ceyewan/dealflow/xerrors"
)

func newGuard(t *testing.T, kit *testkit.Kit, cfg *idem.Config, opts ...idem.Option) *idem.Guard {
	t.Helper()
	opts = append([]idem.Option{idem.WithLogger(kit.Logger), idem.WithClock(kit.Clock)}, opts...)
	g, err := idem.New(cfg, opts...)
	require.NoError(t, err)
	return g
}

func TestExecute_ReplaysSavedResult(t *testing.T) {
	kit := testkit.NewKit(t)
	g := newGuard(t, kit, &idem.Config{TTL: time.Hour})

	calls := 0
	fn := func(context.Context) ([]byte, error) {
		calls++
		return []byte("synced"), nil
	}

	val, replayed, err := g.Execute(kit.Ctx, "opp-1", fn)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, "synced", string(val))

	val, replayed, err = g.Execute(kit.Ctx, "opp-1", fn)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, "synced", string(val))
	assert.Equal(t, 1, calls)

	kit.Clock.Advance(time.Hour)
	_, replayed, err = g.Execute(kit.Ctx, "opp-1", fn)
	require.NoError(t, err)
	assert.False(t, replayed, "expired result runs again")
	assert.Equal(t, 2, calls)
}

func TestExecute_FailureReleasesLock(t *testing.T) {
	kit := testkit.NewKit(t)
	g := newGuard(t, kit, nil)
	boom := errors.New("crm down")

	_, _, err := g.Execute(kit.Ctx, "opp-2", func(context.Context) ([]byte, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	val, replayed, err := g.Execute(kit.Ctx, "opp-2", func(context.Context) ([]byte, error) { return []byte("ok"), nil })
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, "ok", string(val))

	_, _, err = g.Execute(kit.Ctx, "", func(context.Context) ([]byte, error) { return nil, nil })
	assert.ErrorIs(t, err, idem.ErrKeyEmpty)
}

func TestExecute_InFlight(t *testing.T) {
	kit := testkit.NewKit(t)
	g := newGuard(t, kit, &idem.Config{WaitTimeout: time.Second, WaitInterval: 100 * time.Millisecond})

	_, _, err := g.Execute(kit.Ctx, "opp-3", func(ctx context.Context) ([]byte, error) {
		_, _, inner := g.Execute(ctx, "opp-3", func(context.Context) ([]byte, error) { return []byte("dup"), nil })
		return nil, inner
	})
	require.ErrorIs(t, err, idem.ErrInFlight)
	assert.Len(t, kit.Clock.Sleeps(), 10, "polled until the wait timeout")
}

func TestExecute_LockExpired(t *testing.T) {
	kit := testkit.NewKit(t)
	g := newGuard(t, kit, &idem.Config{LockTTL: time.Second})

	_, _, err := g.Execute(kit.Ctx, "opp-4", func(context.Context) ([]byte, error) {
		kit.Clock.Advance(2 * time.Second)
		return []byte("late"), nil
	})
	assert.ErrorIs(t, err, idem.ErrLockLost)
}

func TestNew_ConfigErrors(t *testing.T) {
	_, err := idem.New(&idem.Config{Driver: "etcd"})
	assert.True(t, xerrors.IsValidation(err))

	_, err = idem.New(&idem.Config{Driver: idem.DriverRedis})
	assert.True(t, xerrors.IsValidation(err))
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	kit := testkit.NewKit(t)
	g := newGuard(t, kit, nil)

	calls := 0
	r := gin.New()
	r.POST("/v1/stage-transitions", g.GinMiddleware(), func(c *gin.Context) {
		calls++
		if c.Query("fail") != "" {
			c.JSON(http.StatusBadRequest, gin.H{"code": "invalid_argument"})
			return
		}
		c.Header("X-Call", "first")
		c.JSON(http.StatusOK, gin.H{"calls": calls})
	})

	do := func(key, query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/stage-transitions"+query, strings.NewReader("{}"))
		if key != "" {
			req.Header.Set(idem.HeaderKey, key)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := do("k1", "")
	require.Equal(t, http.StatusOK, first.Code)
	assert.JSONEq(t, `{"calls":1}`, first.Body.String())
	assert.Empty(t, first.Header().Get(idem.HeaderReplayed))

	again := do("k1", "")
	require.Equal(t, http.StatusOK, again.Code)
	assert.JSONEq(t, `{"calls":1}`, again.Body.String())
	assert.Equal(t, "true", again.Header().Get(idem.HeaderReplayed))
	assert.Equal(t, "first", again.Header().Get("X-Call"))
	assert.Equal(t, 1, calls)

	assert.JSONEq(t, `{"calls":2}`, do("k2", "").Body.String())
	assert.JSONEq(t, `{"calls":3}`, do("", "").Body.String())

	assert.Equal(t, http.StatusBadRequest, do("k3", "?fail=1").Code)
	assert.Equal(t, http.StatusOK, do("k3", "").Code, "failed responses are not saved")
	assert.Equal(t, 5, calls)
}

func TestRedisStore(t *testing.T) {
	kit := testkit.NewKit(t)
	conn := testkit.NewRedisConnector(t)
	g := newGuard(t, kit, &idem.Config{Driver: idem.DriverRedis, Prefix: "idem-test:" + testkit.NewID() + ":"},
		idem.WithRedisConnector(conn))

	calls := 0
	fn := func(context.Context) ([]byte, error) {
		calls++
		return []byte("queued"), nil
	}
	_, replayed, err := g.Execute(kit.Ctx, "opp-r", fn)
	require.NoError(t, err)
	assert.False(t, replayed)

	val, replayed, err := g.Execute(kit.Ctx, "opp-r", fn)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, "queued", string(val))
	assert.Equal(t, 1, calls)

	_, _, err = g.Execute(kit.Ctx, "opp-r2", func(ctx context.Context) ([]byte, error) {
		_, _, inner := g.Execute(ctx, "opp-r2", fn)
		return nil, inner
	})
	assert.ErrorIs(t, err, idem.ErrInFlight)
}
