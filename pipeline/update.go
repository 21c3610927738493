package pipeline

import "time"

// CRMUpdate 推送到 CRM 的阶段变更
type CRMUpdate struct {
	OpportunityID    string    `json:"opportunity_id" msgpack:"opportunity_id"`
	StageName        string    `json:"stage_name" msgpack:"stage_name"`
	InternalStage    Stage     `json:"internal_stage" msgpack:"internal_stage"`
	PreviousStage    Stage     `json:"previous_stage,omitempty" msgpack:"previous_stage,omitempty"`
	Probability      int       `json:"probability" msgpack:"probability"`
	TransitionReason string    `json:"transition_reason,omitempty" msgpack:"transition_reason,omitempty"`
	CloseDate        time.Time `json:"close_date,omitzero" msgpack:"close_date,omitempty"`
	Amount           float64   `json:"amount,omitempty" msgpack:"amount,omitempty"`
	ChangedAt        time.Time `json:"changed_at" msgpack:"changed_at"`
	Warning          string    `json:"warning,omitempty" msgpack:"warning,omitempty"`
}

// BuildUpdate 由请求与校验结果生成 CRM 变更
func BuildUpdate(req TransitionRequest, res TransitionResult) CRMUpdate {
	return CRMUpdate{
		OpportunityID:    req.OpportunityID,
		StageName:        res.CRMStage,
		InternalStage:    res.To,
		PreviousStage:    res.From,
		Probability:      res.ResultingProbability,
		TransitionReason: req.Reason,
		CloseDate:        req.ExpectedCloseDate,
		Amount:           req.DealValue,
		ChangedAt:        res.History.At,
		Warning:          res.Warning,
	}
}
