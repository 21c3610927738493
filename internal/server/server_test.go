package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/dealflow/auth"
	"github.com/ceyewan/dealflow/cache"
	"github.com/ceyewan/dealflow/connector"
	"github.com/ceyewan/dealflow/db"
	"github.com/ceyewan/dealflow/dlock"
	"github.com/ceyewan/dealflow/events"
	"github.com/ceyewan/dealflow/history"
	"github.com/ceyewan/dealflow/idem"
	"github.com/ceyewan/dealflow/internal/server"
	"github.com/ceyewan/dealflow/mq"
	"github.com/ceyewan/dealflow/pipeline"
	"github.com/ceyewan/dealflow/ratelimit"
	"github.com/ceyewan/dealflow/resilience"
	"github.com/ceyewan/dealflow/roi"
	"github.com/ceyewan/dealflow/testkit"
)

const secret = "0123456789abcdef0123456789abcdef"

type fixture struct {
	kit     *testkit.Kit
	handler http.Handler
	auth    *auth.Authenticator
	bus     mq.Client
}

type option func(*server.Deps)

func newFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	kit := testkit.NewKit(t)

	reg, err := resilience.NewRegistry(resilience.DefaultConfig(),
		resilience.WithClock(kit.Clock), resilience.WithLogger(kit.Logger))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	orch := resilience.NewOrchestrator(reg)

	sqlite := testkit.NewSQLiteConnector(t)
	database, err := db.New(sqlite, nil)
	require.NoError(t, err)
	store, err := history.NewStore(kit.Ctx, database, 1)
	require.NoError(t, err)

	bus, err := mq.New(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })

	local, err := cache.New(&cache.Config{Mode: cache.ModeLocal})
	require.NoError(t, err)
	t.Cleanup(func() { _ = local.Close() })

	authn, err := auth.New(&auth.Config{SecretKey: secret}, auth.WithClock(kit.Clock))
	require.NoError(t, err)

	limiter, err := ratelimit.New(nil, ratelimit.WithClock(kit.Clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = limiter.Close() })

	guard, err := idem.New(nil, idem.WithClock(kit.Clock))
	require.NoError(t, err)
	locker, err := dlock.New(nil)
	require.NoError(t, err)

	deps := server.Deps{
		Logger:       kit.Logger,
		Meter:        kit.Meter,
		Orchestrator: orch,
		Validator:    pipeline.NewValidator(pipeline.WithClock(kit.Clock)),
		ROI:          roi.NewCachedEngine(roi.NewEngine(), local),
		History:      store,
		Syncer:       events.NewStageSyncer(events.NewPublisher(bus), orch, 0),
		Limiter:      limiter,
		Limit:        ratelimit.FixedLimit(ratelimit.Limit{Rate: 1000, Burst: 1000}),
		Idempotency:  guard,
		Locker:       locker,
		Auth:         authn,
		Health:       []connector.Connector{sqlite},
	}
	for _, opt := range opts {
		opt(&deps)
	}
	srv, err := server.New(server.Config{ServiceName: "dealflow-test"}, deps)
	require.NoError(t, err)
	return &fixture{kit: kit, handler: srv.Handler(), auth: authn, bus: bus}
}

func (f *fixture) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type transitionBody struct {
	Result pipeline.TransitionResult `json:"result"`
	Sync   *events.SyncResult        `json:"sync"`
}

func TestStageTransitions(t *testing.T) {
	f := newFixture(t)

	var published []pipeline.CRMUpdate
	done := make(chan struct{}, 8)
	_, err := events.SubscribeStageChanged(f.kit.Ctx, f.bus, "crm", func(_ context.Context, u pipeline.CRMUpdate) error {
		published = append(published, u)
		done <- struct{}{}
		return nil
	})
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/v1/stage-transitions", map[string]any{"opportunity_id": "opp-1", "to": "qualification"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[transitionBody](t, w)
	assert.True(t, body.Result.Accepted)
	assert.Equal(t, pipeline.StageQualification, body.Result.To)
	require.NotNil(t, body.Sync)
	assert.Equal(t, events.SyncStatusSynced, body.Sync.Status)

	f.kit.Clock.Advance(time.Hour)
	w = f.do(t, http.MethodPost, "/v1/stage-transitions", map[string]any{"opportunity_id": "opp-1", "to": "PROPOSAL", "reason": "pricing sent"})
	require.Equal(t, http.StatusOK, w.Code)
	body = decode[transitionBody](t, w)
	assert.Equal(t, pipeline.StageQualification, body.Result.From, "from is read from history")
	assert.Equal(t, 60, body.Result.ResultingProbability)
	assert.Equal(t, "Proposal Sent", body.Result.CRMStage)

	f.kit.Clock.Advance(time.Hour)
	w = f.do(t, http.MethodPost, "/v1/stage-transitions", map[string]any{"opportunity_id": "opp-1", "to": "ENGAGEMENT"})
	require.Equal(t, http.StatusOK, w.Code)
	body = decode[transitionBody](t, w)
	assert.False(t, body.Result.Accepted)
	assert.True(t, body.Result.Applied)
	assert.Contains(t, body.Result.Warning, "PROPOSAL -> ENGAGEMENT")

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("stage update not published")
		}
	}
	assert.Equal(t, "pricing sent", published[1].TransitionReason)

	w = f.do(t, http.MethodGet, "/v1/opportunities/opp-1/history?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	hist := decode[struct {
		History []history.Record `json:"history"`
	}](t, w)
	require.Len(t, hist.History, 2)
	assert.Equal(t, "ENGAGEMENT", hist.History[0].ToStage)
	assert.Equal(t, "PROPOSAL", hist.History[1].ToStage)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/v1/opportunities/opp-1/history?limit=x", nil).Code)
}

func TestStageTransitions_StrictAndInvalid(t *testing.T) {
	f := newFixture(t, func(d *server.Deps) {
		d.Validator = pipeline.NewValidator(pipeline.WithStrict())
	})

	w := f.do(t, http.MethodPost, "/v1/stage-transitions",
		map[string]any{"opportunity_id": "opp-2", "from": "NEGOTIATION", "to": "QUALIFICATION"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "backward_transition", decode[map[string]any](t, w)["code"])

	w = f.do(t, http.MethodPost, "/v1/stage-transitions", map[string]any{"opportunity_id": "opp-2"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_argument", decode[map[string]any](t, w)["code"])

	w = f.do(t, http.MethodPost, "/v1/stage-transitions", map[string]any{"to": "PROPOSAL"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/v1/stage-transitions", "{").Code)
}

type roiBody struct {
	Success  bool           `json:"success"`
	Fallback bool           `json:"fallback"`
	Result   map[string]any `json:"result"`
	Error    string         `json:"error"`
}

func TestROI(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/v1/roi", map[string]any{"service": "uti", "beds": 10})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[roiBody](t, w)
	assert.True(t, body.Success)
	assert.Equal(t, "icu", body.Result["service"])
	assert.Equal(t, "400", body.Result["roi_percent"])
	assert.EqualValues(t, 3, body.Result["payback_months"])

	w = f.do(t, http.MethodPost, "/v1/roi", map[string]any{"service": "icu"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type brokenCalculator struct{}

func (brokenCalculator) Compute(context.Context, roi.Inputs) (roi.Result, error) {
	return roi.Result{}, errors.New("benchmark service unavailable")
}

func TestROI_Fallback(t *testing.T) {
	f := newFixture(t, func(d *server.Deps) { d.ROI = brokenCalculator{} })

	w := f.do(t, http.MethodPost, "/v1/roi", map[string]any{"service": "icu", "beds": 10})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[roiBody](t, w)
	assert.False(t, body.Success)
	assert.True(t, body.Fallback)
	assert.Equal(t, true, body.Result["estimated"])
	assert.Contains(t, body.Error, "benchmark service unavailable")
}

func TestQualification(t *testing.T) {
	f := newFixture(t)

	full := map[string]any{
		"opportunity_id":   "opp-3",
		"metrics":          map[string]bool{"defined": true, "quantified": true, "agreement": true},
		"economicBuyer":    map[string]bool{"identified": true, "accessible": true, "engaged": true},
		"decisionCriteria": map[string]bool{"documented": true, "aligned": true},
		"decisionProcess":  map[string]bool{"mapped": true, "timeline": true},
		"identifyPain":     map[string]bool{"critical": true, "quantified": true},
		"champion":         map[string]bool{"identified": true, "influential": true, "committed": true},
	}
	w := f.do(t, http.MethodPost, "/v1/qualification", full)
	require.Equal(t, http.StatusOK, w.Code)
	score := decode[map[string]any](t, w)
	assert.EqualValues(t, 10, score["total"])
	assert.Equal(t, "excellent", score["level"])
	assert.Equal(t, "proceed", score["recommendation"])

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/v1/qualification", map[string]any{}).Code)
}

func TestBreakers(t *testing.T) {
	f := newFixture(t)

	// 触发 roi-calculation 电路的创建
	f.do(t, http.MethodPost, "/v1/roi", map[string]any{"service": "generic"})

	w := f.do(t, http.MethodGet, "/v1/breakers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"kind":"roi-calculation"`)
	assert.Contains(t, w.Body.String(), `"state":"closed"`)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/v1/breakers/docusign/reset", nil).Code)

	viewer, err := f.auth.Issue(f.kit.Ctx, "viewer@example.com")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden,
		f.do(t, http.MethodPost, "/v1/breakers/docusign/reset", nil, "Authorization", "Bearer "+viewer).Code)

	admin, err := f.auth.Issue(f.kit.Ctx, "ops@example.com", auth.RoleAdmin)
	require.NoError(t, err)
	w = f.do(t, http.MethodPost, "/v1/breakers/DocuSign/reset", nil, "Authorization", "Bearer "+admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"kind":"docusign","state":"closed"}`, w.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, w)["checks"].(map[string]any)["sqlite:test-sqlite"])

	w = f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_server_requests_total")
}

func TestRateLimited(t *testing.T) {
	f := newFixture(t, func(d *server.Deps) {
		d.Limit = ratelimit.FixedLimit(ratelimit.Limit{Rate: 1, Burst: 1})
	})
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/v1/breakers", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(t, http.MethodGet, "/v1/breakers", nil).Code)
}

func TestNew_RequiresOrchestrator(t *testing.T) {
	_, err := server.New(server.Config{}, server.Deps{})
	assert.Error(t, err)
}

func TestStageTransitions_Idempotent(t *testing.T) {
	f := newFixture(t)
	req := map[string]any{"opportunity_id": "opp-idem", "to": "engagement"}

	first := f.do(t, http.MethodPost, "/v1/stage-transitions", req, idem.HeaderKey, "retry-1")
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())

	replay := f.do(t, http.MethodPost, "/v1/stage-transitions", req, idem.HeaderKey, "retry-1")
	require.Equal(t, http.StatusOK, replay.Code)
	assert.Equal(t, "true", replay.Header().Get(idem.HeaderReplayed))
	assert.JSONEq(t, first.Body.String(), replay.Body.String())

	w := f.do(t, http.MethodGet, "/v1/opportunities/opp-idem/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var hist struct {
		History []json.RawMessage `json:"history"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hist))
	assert.Len(t, hist.History, 1, "replayed request is not applied twice")
}
