package events

import (
	"context"
	"time"

	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/pipeline"
	"github.com/ceyewan/dealflow/resilience"
)

// 同步状态
const (
	SyncStatusSynced = "synced"
	SyncStatusQueued = "queued"
)

// SyncResult 一次 CRM 同步的结果
type SyncResult struct {
	CallID      string `json:"call_id"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	CircuitOpen bool   `json:"circuit_open"`
	Error       string `json:"error,omitempty"`
}

// StageSyncer 以 crm-stage-update 类型编排阶段变更的发布
//
// 发布失败或熔断时返回 queued，由调用方保留历史记录，稍后补偿。
type StageSyncer struct {
	publisher *Publisher
	orch      *resilience.Orchestrator
	timeout   time.Duration
	logger    clog.Logger
}

// NewStageSyncer timeout <= 0 时使用 kind 的单次超时
func NewStageSyncer(p *Publisher, orch *resilience.Orchestrator, timeout time.Duration) *StageSyncer {
	return &StageSyncer{
		publisher: p,
		orch:      orch,
		timeout:   timeout,
		logger:    p.opts.logger,
	}
}

// Sync 发布一次阶段变更；返回的 error 只表示调用方错误
func (s *StageSyncer) Sync(ctx context.Context, u pipeline.CRMUpdate) (SyncResult, error) {
	out, err := resilience.ExecuteOutcome(ctx, s.orch, resilience.KindCRMStageUpdate, s.timeout,
		func(ctx context.Context) (string, error) {
			if err := s.publisher.PublishStageChanged(ctx, u); err != nil {
				return "", err
			}
			return SyncStatusSynced, nil
		},
		func() string { return SyncStatusQueued })
	if err != nil {
		return SyncResult{}, err
	}

	res := SyncResult{
		CallID:      out.CallID,
		Status:      out.Value,
		Attempts:    len(out.Attempts),
		CircuitOpen: out.CircuitOpen,
	}
	if !out.Success {
		res.Error = out.Err.Error()
		s.logger.WarnContext(ctx, "stage update queued",
			clog.String("opportunity_id", u.OpportunityID),
			clog.String("call_id", out.CallID),
			clog.Error(out.Err))
	}
	return res, nil
}
