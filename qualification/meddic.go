// Package qualification 按 MEDDIC 框架为商机打分。
//
// 六个组成部分合计 0..10 分：Metrics、Economic buyer、Decision criteria、
// Decision process 各 0..2 分，Identify pain 与 Champion 各 0..1 分。
// Evaluate 是纯函数，不访问外部系统。
package qualification

import (
	"github.com/ceyewan/dealflow/xerrors"
)

// Component 组成部分名称，同时用作 gap 前缀
type Component string

const (
	ComponentMetrics          Component = "metrics"
	ComponentEconomicBuyer    Component = "economicBuyer"
	ComponentDecisionCriteria Component = "decisionCriteria"
	ComponentDecisionProcess  Component = "decisionProcess"
	ComponentIdentifyPain     Component = "identifyPain"
	ComponentChampion         Component = "champion"
)

// MetricsEvidence 量化收益
type MetricsEvidence struct {
	Defined    bool `json:"defined"`
	Quantified bool `json:"quantified"`
	Agreement  bool `json:"agreement"`
}

// EconomicBuyerEvidence 经济决策人
type EconomicBuyerEvidence struct {
	Identified bool `json:"identified"`
	Accessible bool `json:"accessible"`
	Engaged    bool `json:"engaged"`
}

// DecisionCriteriaEvidence 决策标准
type DecisionCriteriaEvidence struct {
	Documented bool `json:"documented"`
	Aligned    bool `json:"aligned"`
}

// DecisionProcessEvidence 决策流程
type DecisionProcessEvidence struct {
	Mapped   bool `json:"mapped"`
	Timeline bool `json:"timeline"`
}

// PainEvidence 客户痛点
type PainEvidence struct {
	Critical   bool `json:"critical"`
	Quantified bool `json:"quantified"`
}

// ChampionEvidence 内部支持者
type ChampionEvidence struct {
	Identified  bool `json:"identified"`
	Influential bool `json:"influential"`
	Committed   bool `json:"committed"`
}

// Assessment 一次评估的输入，未采集的部分为 nil，按 0 分计
type Assessment struct {
	OpportunityID    string                    `json:"opportunity_id,omitempty"`
	Metrics          *MetricsEvidence          `json:"metrics,omitempty"`
	EconomicBuyer    *EconomicBuyerEvidence    `json:"economicBuyer,omitempty"`
	DecisionCriteria *DecisionCriteriaEvidence `json:"decisionCriteria,omitempty"`
	DecisionProcess  *DecisionProcessEvidence  `json:"decisionProcess,omitempty"`
	IdentifyPain     *PainEvidence             `json:"identifyPain,omitempty"`
	Champion         *ChampionEvidence         `json:"champion,omitempty"`
}

// Level 资格等级
type Level string

const (
	LevelExcellent    Level = "excellent"
	LevelGood         Level = "good"
	LevelMarginal     Level = "marginal"
	LevelDisqualified Level = "disqualified"
)

// Recommendation 下一步建议
type Recommendation string

const (
	RecommendProceed    Recommendation = "proceed"
	RecommendCoach      Recommendation = "coach_and_improve"
	RecommendDisqualify Recommendation = "disqualify"
)

// ActionItem 针对某个缺口的跟进动作
type ActionItem struct {
	Component Component `json:"component"`
	Action    string    `json:"action"`
	Priority  string    `json:"priority"`
}

// Score 评估结果
type Score struct {
	OpportunityID  string            `json:"opportunity_id,omitempty"`
	Total          int               `json:"total"`
	Components     map[Component]int `json:"components"`
	Level          Level             `json:"level"`
	Tier           string            `json:"tier"`
	Recommendation Recommendation    `json:"recommendation"`
	Gaps           []string          `json:"gaps"`
	ActionItems    []ActionItem      `json:"action_items"`
}

// MaxScore 满分
const MaxScore = 10

// Evaluate 计算 MEDDIC 得分；六个部分全部缺失时返回 ValidationError
func Evaluate(a Assessment) (Score, error) {
	parts := a.parts()
	present := false
	for _, p := range parts {
		if p.present {
			present = true
			break
		}
	}
	if !present {
		return Score{}, xerrors.NewValidation("meddic", "missing required MEDDIC components")
	}

	s := Score{
		OpportunityID: a.OpportunityID,
		Components:    make(map[Component]int, len(parts)),
		Gaps:          []string{},
		ActionItems:   []ActionItem{},
	}
	for _, p := range parts {
		s.Components[p.name] = p.score
		s.Total += p.score

		if p.score == 0 {
			s.Gaps = append(s.Gaps, string(p.name))
			s.ActionItems = append(s.ActionItems, ActionItem{
				Component: p.name,
				Action:    actions[p.name],
				Priority:  "high",
			})
			continue
		}
		missing := false
		for _, f := range p.flags {
			if !f.ok {
				s.Gaps = append(s.Gaps, string(p.name)+"_"+f.name)
				missing = true
			}
		}
		if missing {
			s.ActionItems = append(s.ActionItems, ActionItem{
				Component: p.name,
				Action:    actions[p.name],
				Priority:  "medium",
			})
		}
	}

	s.Level, s.Tier, s.Recommendation = classify(s.Total)
	return s, nil
}

func classify(total int) (Level, string, Recommendation) {
	switch {
	case total >= 8:
		return LevelExcellent, "Tier 1 - High", RecommendProceed
	case total >= 6:
		return LevelGood, "Tier 2 - Medium", RecommendCoach
	case total >= 4:
		return LevelMarginal, "Tier 3 - Low", RecommendCoach
	default:
		return LevelDisqualified, "Tier 4 - Disqualified", RecommendDisqualify
	}
}

var actions = map[Component]string{
	ComponentMetrics:          "Quantify the business impact and agree on success metrics with the customer",
	ComponentEconomicBuyer:    "Identify and secure a meeting with the economic buyer",
	ComponentDecisionCriteria: "Document the decision criteria and align the solution to them",
	ComponentDecisionProcess:  "Map the decision process and confirm the buying timeline",
	ComponentIdentifyPain:     "Validate a critical, quantified pain with the stakeholders",
	ComponentChampion:         "Develop a committed internal champion",
}

type flag struct {
	name string
	ok   bool
}

type part struct {
	name    Component
	present bool
	score   int
	flags   []flag
}

func (a Assessment) parts() []part {
	parts := make([]part, 0, 6)

	p := part{name: ComponentMetrics}
	if m := a.Metrics; m != nil {
		p.present = true
		p.score = points(m.Defined, m.Quantified && m.Agreement)
		p.flags = []flag{{"quantified", m.Quantified}, {"agreement", m.Agreement}}
	}
	parts = append(parts, p)

	p = part{name: ComponentEconomicBuyer}
	if e := a.EconomicBuyer; e != nil {
		p.present = true
		p.score = points(e.Identified, e.Accessible && e.Engaged)
		p.flags = []flag{{"accessible", e.Accessible}, {"engaged", e.Engaged}}
	}
	parts = append(parts, p)

	p = part{name: ComponentDecisionCriteria}
	if d := a.DecisionCriteria; d != nil {
		p.present = true
		p.score = points(d.Documented, d.Aligned)
		p.flags = []flag{{"aligned", d.Aligned}}
	}
	parts = append(parts, p)

	p = part{name: ComponentDecisionProcess}
	if d := a.DecisionProcess; d != nil {
		p.present = true
		p.score = points(d.Mapped, d.Timeline)
		p.flags = []flag{{"timeline", d.Timeline}}
	}
	parts = append(parts, p)

	p = part{name: ComponentIdentifyPain}
	if i := a.IdentifyPain; i != nil {
		p.present = true
		if i.Critical {
			p.score = 1
		}
		p.flags = []flag{{"quantified", i.Quantified}}
	}
	parts = append(parts, p)

	p = part{name: ComponentChampion}
	if c := a.Champion; c != nil {
		p.present = true
		if c.Identified && c.Committed {
			p.score = 1
		}
		p.flags = []flag{{"influential", c.Influential}}
	}
	parts = append(parts, p)

	return parts
}

// points 基础条件得 1 分，基础条件满足时附加条件再得 1 分
func points(base, bonus bool) int {
	switch {
	case !base:
		return 0
	case bonus:
		return 2
	default:
		return 1
	}
}
