package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/dealflow/auth"
	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/events"
	"github.com/ceyewan/dealflow/history"
	"github.com/ceyewan/dealflow/pipeline"
	"github.com/ceyewan/dealflow/qualification"
	"github.com/ceyewan/dealflow/resilience"
	"github.com/ceyewan/dealflow/roi"
	"github.com/ceyewan/dealflow/xerrors"
)

// 错误码
const (
	codeInvalidArgument = "invalid_argument"
	codeConflict        = "backward_transition"
	codeUnavailable     = "unavailable"
	codeInternal        = "internal"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError 校验错误 400，其余 500
func (s *Server) writeError(c *gin.Context, err error) {
	if xerrors.IsValidation(err) {
		c.JSON(http.StatusBadRequest, errorBody{Code: codeInvalidArgument, Message: err.Error()})
		return
	}
	s.logger.ErrorContext(c.Request.Context(), "request failed",
		clog.String("route", c.FullPath()), clog.Error(err))
	c.JSON(http.StatusInternalServerError, errorBody{Code: codeInternal, Message: "internal error"})
}

func (s *Server) bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Code: codeInvalidArgument, Message: err.Error()})
		return false
	}
	return true
}

func (s *Server) healthz(c *gin.Context) {
	status := http.StatusOK
	checks := make(map[string]string, len(s.deps.Health))
	for _, conn := range s.deps.Health {
		if err := conn.HealthCheck(c.Request.Context()); err != nil {
			status = http.StatusServiceUnavailable
			checks[conn.Name()] = err.Error()
			continue
		}
		checks[conn.Name()] = "ok"
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": checks})
}

type transitionResponse struct {
	Result pipeline.TransitionResult `json:"result"`
	Sync   *events.SyncResult        `json:"sync,omitempty"`
}

// stageTransition 校验迁移、写入历史，再通过编排器同步到 CRM
//
// From 为空时使用历史中的当前阶段。
func (s *Server) stageTransition(c *gin.Context) {
	ctx := c.Request.Context()
	var req pipeline.TransitionRequest
	if !s.bind(c, &req) {
		return
	}
	if req.OpportunityID == "" {
		s.writeError(c, xerrors.NewValidation("opportunity_id", "opportunity id is required"))
		return
	}

	if s.deps.Locker != nil {
		lease, err := s.deps.Locker.Lock(ctx, "opp:"+req.OpportunityID)
		if err != nil {
			s.writeError(c, xerrors.Wrap(err, "lock opportunity"))
			return
		}
		defer func() {
			if err := lease.Unlock(context.WithoutCancel(ctx)); err != nil {
				s.logger.WarnContext(ctx, "failed to release opportunity lock",
					clog.String("opportunity_id", req.OpportunityID), clog.Error(err))
			}
		}()
	}

	if req.From == "" && s.deps.History != nil {
		current, ok, err := s.deps.History.Current(ctx, req.OpportunityID)
		if err != nil {
			s.writeError(c, err)
			return
		}
		if ok {
			req.From = current
		}
	}

	res, err := s.deps.Validator.Validate(req)
	if errors.Is(err, pipeline.ErrBackwardTransition) {
		c.JSON(http.StatusConflict, gin.H{
			"code":    codeConflict,
			"message": err.Error(),
			"result":  res,
		})
		return
	}
	if err != nil {
		s.writeError(c, err)
		return
	}

	if s.deps.History != nil {
		if err := s.deps.History.Append(ctx, history.FromResult(res)); err != nil {
			s.writeError(c, err)
			return
		}
	}

	resp := transitionResponse{Result: res}
	if s.deps.Syncer != nil {
		sync, err := s.deps.Syncer.Sync(ctx, pipeline.BuildUpdate(req, res))
		if err != nil {
			s.writeError(c, err)
			return
		}
		resp.Sync = &sync
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) stageHistory(c *gin.Context) {
	if s.deps.History == nil {
		c.JSON(http.StatusServiceUnavailable, errorBody{Code: codeUnavailable, Message: "stage history is not configured"})
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(c, xerrors.NewValidation("limit", "limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	records, err := s.deps.History.List(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"opportunity_id": c.Param("id"), "history": records})
}

type roiResponse struct {
	Success  bool       `json:"success"`
	Fallback bool       `json:"fallback"`
	CallID   string     `json:"call_id"`
	Result   roi.Result `json:"result"`
	Error    string     `json:"error,omitempty"`
}

// computeROI 以 roi-calculation 编排计算，失败时返回保守估算
func (s *Server) computeROI(c *gin.Context) {
	var in roi.Inputs
	if !s.bind(c, &in) {
		return
	}
	out, err := resilience.ExecuteOutcome(c.Request.Context(), s.deps.Orchestrator, resilience.KindROICalculation, s.cfg.ROITimeout,
		func(ctx context.Context) (roi.Result, error) { return s.deps.ROI.Compute(ctx, in) },
		roi.Fallback)
	if err != nil {
		s.writeError(c, err)
		return
	}
	resp := roiResponse{Success: out.Success, Fallback: out.Fallback, CallID: out.CallID, Result: out.Value}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) qualify(c *gin.Context) {
	var a qualification.Assessment
	if !s.bind(c, &a) {
		return
	}
	score, err := qualification.Evaluate(a)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, score)
}

func (s *Server) listBreakers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"breakers": s.deps.Orchestrator.Registry().Breaker().Snapshot()})
}

func (s *Server) resetBreaker(c *gin.Context) {
	kind := resilience.OperationKind(c.Param("kind"))
	if err := kind.Validate(); err != nil {
		s.writeError(c, err)
		return
	}
	kind = kind.Normalize()
	brk := s.deps.Orchestrator.Registry().Breaker()
	brk.Reset(string(kind))

	subject := ""
	if claims, ok := auth.GetClaims(c); ok {
		subject = claims.Subject
	}
	s.logger.WarnContext(c.Request.Context(), "circuit reset by operator",
		clog.String("kind", string(kind)), clog.String("subject", subject))
	c.JSON(http.StatusOK, gin.H{"kind": kind, "state": brk.State(string(kind))})
}
