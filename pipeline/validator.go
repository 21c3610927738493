package pipeline

import (
	"fmt"
	"time"

	"github.com/ceyewan/dealflow/clock"
	"github.com/ceyewan/dealflow/clog"
	"github.com/ceyewan/dealflow/xerrors"
)

// ErrBackwardTransition 严格模式下拒绝的迁移
var ErrBackwardTransition = xerrors.New("backward stage transition")

// TransitionRequest 一次阶段变更请求
type TransitionRequest struct {
	OpportunityID     string    `json:"opportunity_id"`
	From              Stage     `json:"from,omitempty"`
	To                Stage     `json:"to"`
	Reason            string    `json:"reason,omitempty"`
	ExpectedCloseDate time.Time `json:"expected_close_date,omitzero"`
	DealValue         float64   `json:"deal_value,omitempty"`
}

// HistoryEntry 阶段变更历史
type HistoryEntry struct {
	OpportunityID string    `json:"opportunity_id"`
	From          Stage     `json:"from,omitempty"`
	To            Stage     `json:"to"`
	Reason        string    `json:"reason,omitempty"`
	At            time.Time `json:"at"`
}

// TransitionResult 校验结果
//
// Accepted 表示迁移符合规则；Applied 表示迁移会被执行。
// 宽松模式下违反规则的迁移 Accepted=false、Applied=true，并带 Warning。
type TransitionResult struct {
	Accepted             bool         `json:"accepted"`
	Applied              bool         `json:"applied"`
	From                 Stage        `json:"from,omitempty"`
	To                   Stage        `json:"to"`
	ResultingProbability int          `json:"resulting_probability"`
	CRMStage             string       `json:"crm_stage"`
	Warning              string       `json:"warning,omitempty"`
	History              HistoryEntry `json:"history"`
}

// Option Validator 选项
type Option func(*Validator)

// WithStrict 拒绝后退的迁移
func WithStrict() Option {
	return func(v *Validator) {
		v.strict = true
	}
}

// WithClock 注入时钟，用于历史记录时间戳
func WithClock(c clock.Clock) Option {
	return func(v *Validator) {
		if c != nil {
			v.clock = c
		}
	}
}

// WithLogger 设置 Logger，自动追加 "pipeline" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger.WithNamespace("pipeline")
		}
	}
}

// Validator 阶段迁移校验器，无状态，可并发使用
type Validator struct {
	strict bool
	clock  clock.Clock
	logger clog.Logger
}

// NewValidator 默认宽松模式
func NewValidator(opts ...Option) *Validator {
	v := &Validator{
		clock:  clock.Real(),
		logger: clog.Discard(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Strict 是否为严格模式
func (v *Validator) Strict() bool {
	return v.strict
}

// Validate 校验一次迁移
//
// To 为空返回 ValidationError；From 为空视为首次进入阶段，直接接受。
// 违反规则的迁移在宽松模式下仍然执行并带 Warning，
// 严格模式下返回包装 ErrBackwardTransition 的终止性错误。
func (v *Validator) Validate(req TransitionRequest) (TransitionResult, error) {
	to := ParseStage(string(req.To))
	from := ParseStage(string(req.From))
	if to == "" {
		return TransitionResult{}, xerrors.NewValidation("to", "target stage is required")
	}

	res := TransitionResult{
		Accepted:             true,
		Applied:              true,
		From:                 from,
		To:                   to,
		ResultingProbability: Probability(to),
		CRMStage:             CRMStage(to),
		History: HistoryEntry{
			OpportunityID: req.OpportunityID,
			From:          from,
			To:            to,
			Reason:        req.Reason,
			At:            v.clock.Now(),
		},
	}
	if from == "" || Accept(from, to) {
		return res, nil
	}

	res.Accepted = false
	res.Warning = fmt.Sprintf("invalid stage transition detected: %s -> %s", from, to)
	if v.strict {
		res.Applied = false
		v.logger.Warn("stage transition refused",
			clog.String("opportunity_id", req.OpportunityID),
			clog.String("from", string(from)),
			clog.String("to", string(to)))
		return res, xerrors.Terminal(fmt.Errorf("%w: %s -> %s", ErrBackwardTransition, from, to))
	}

	v.logger.Warn("invalid stage transition detected",
		clog.String("opportunity_id", req.OpportunityID),
		clog.String("from", string(from)),
		clog.String("to", string(to)))
	return res, nil
}
