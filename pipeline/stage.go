// Package pipeline 实现销售阶段的状态机：阶段表、迁移规则、赢单概率与 CRM 名称映射。
//
// 阶段只允许单调前进；任意阶段都可以进入 CLOSED_WON 或 CLOSED_LOST。
// 后退的迁移默认带警告放行（销售需要修正阶段），WithStrict 时拒绝。
package pipeline

import (
	"strings"
)

// Stage 销售阶段名，统一为大写下划线形式
type Stage string

const (
	StageQualification      Stage = "QUALIFICATION"
	StageEngagement         Stage = "ENGAGEMENT"
	StageValueDemonstration Stage = "VALUE_DEMONSTRATION"
	StageProposal           Stage = "PROPOSAL"
	StageNegotiation        Stage = "NEGOTIATION"
	StageClosedWon          Stage = "CLOSED_WON"
	StageClosedLost         Stage = "CLOSED_LOST"
)

// unknownCRMStage 未知阶段在 CRM 中的名称
const unknownCRMStage = "Open"

// StageDefinition 阶段定义。Rank 为 0 表示不参与排序（CLOSED_LOST）。
type StageDefinition struct {
	Name           Stage  `json:"name"`
	Rank           int    `json:"rank"`
	WinProbability int    `json:"win_probability"`
	CRMName        string `json:"crm_name"`
}

var definitions = []StageDefinition{
	{StageQualification, 1, 10, "Qualification"},
	{StageEngagement, 2, 40, "Engagement"},
	{StageValueDemonstration, 3, 50, "Value Demonstration"},
	{StageProposal, 4, 60, "Proposal Sent"},
	{StageNegotiation, 5, 75, "Negotiation"},
	{StageClosedWon, 6, 100, "Closed Won"},
	{StageClosedLost, 0, 0, "Closed Lost"},
}

var byStage = func() map[Stage]StageDefinition {
	m := make(map[Stage]StageDefinition, len(definitions))
	for _, d := range definitions {
		m[d.Name] = d
	}
	return m
}()

// Definitions 返回阶段表的副本
func Definitions() []StageDefinition {
	out := make([]StageDefinition, len(definitions))
	copy(out, definitions)
	return out
}

// ParseStage 规范化外部输入："value demonstration"、"Value-Demonstration" 都解析为 VALUE_DEMONSTRATION。
// 不在表中的名称原样保留（规范化后），由调用方通过 Known 判断。
func ParseStage(s string) Stage {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return Stage(strings.ToUpper(s))
}

// Known 是否为阶段表中的阶段
func (s Stage) Known() bool {
	_, ok := byStage[s]
	return ok
}

// Rank 阶段序号；CLOSED_LOST 与未知阶段返回 false
func (s Stage) Rank() (int, bool) {
	d, ok := byStage[s]
	if !ok || d.Rank == 0 {
		return 0, false
	}
	return d.Rank, true
}

// Closed 是否为 CLOSED_WON 或 CLOSED_LOST
func (s Stage) Closed() bool {
	return s == StageClosedWon || s == StageClosedLost
}

func (s Stage) String() string {
	return string(s)
}

// Probability 阶段的赢单概率（百分比），未知阶段取最低序号阶段的概率
func Probability(s Stage) int {
	if d, ok := byStage[s]; ok {
		return d.WinProbability
	}
	return definitions[0].WinProbability
}

// CRMStage 阶段在 CRM 中的显示名，未知阶段为 "Open"
func CRMStage(s Stage) string {
	if d, ok := byStage[s]; ok {
		return d.CRMName
	}
	return unknownCRMStage
}

// Accept 迁移规则：进入 CLOSED_* 总是允许；否则两端都有序号且不后退
func Accept(from, to Stage) bool {
	if to.Closed() {
		return true
	}
	fromRank, ok := from.Rank()
	if !ok {
		return false
	}
	toRank, ok := to.Rank()
	if !ok {
		return false
	}
	return toRank >= fromRank
}
