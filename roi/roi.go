// Package roi 按服务类型的基准参数计算投资回报率、回本周期与三年投影。
//
// Compute 是纯函数：相同输入得到完全相同的结果，所有金额使用 decimal 计算并
// 按四舍五入保留两位小数。缺少必需的数值参数时返回 *xerrors.ValidationError。
//
//	res, err := roi.Compute(roi.Inputs{Service: roi.ServiceICU, Beds: 10})
//	// res.ROIPercent = 400, res.PaybackMonths = 3
package roi

import (
	"github.com/shopspring/decimal"

	"github.com/ceyewan/dealflow/xerrors"
)

// Financials 客户财务数据
type Financials struct {
	// RadiologyAnnualCost 当前放射科年成本，0 表示使用基准值
	RadiologyAnnualCost float64 `json:"radiology_annual_cost,omitempty" msgpack:"radiology_annual_cost,omitempty"`
}

// Inputs 计算输入
type Inputs struct {
	Service       ServiceKind `json:"service" msgpack:"service"`
	Beds          int         `json:"beds,omitempty" msgpack:"beds,omitempty"`
	Lives         int         `json:"lives,omitempty" msgpack:"lives,omitempty"`
	AverageTicket float64     `json:"average_ticket,omitempty" msgpack:"average_ticket,omitempty"`
	Financials    Financials  `json:"financials" msgpack:"financials"`
}

// Component 年收益的组成部分
type Component struct {
	Name   string          `json:"name" msgpack:"name"`
	Amount decimal.Decimal `json:"amount" msgpack:"amount"`
}

// YearProjection 第 Year 年的投影，累计值按年线性增长
type YearProjection struct {
	Year                 int             `json:"year" msgpack:"year"`
	Investment           decimal.Decimal `json:"investment" msgpack:"investment"`
	Benefit              decimal.Decimal `json:"benefit" msgpack:"benefit"`
	NetProfit            decimal.Decimal `json:"net_profit" msgpack:"net_profit"`
	CumulativeInvestment decimal.Decimal `json:"cumulative_investment" msgpack:"cumulative_investment"`
	CumulativeBenefit    decimal.Decimal `json:"cumulative_benefit" msgpack:"cumulative_benefit"`
	CumulativeROIPercent decimal.Decimal `json:"cumulative_roi_percent" msgpack:"cumulative_roi_percent"`
}

// Result 计算结果
type Result struct {
	Service           ServiceKind       `json:"service" msgpack:"service"`
	Label             string            `json:"label" msgpack:"label"`
	ROIPercent        decimal.Decimal   `json:"roi_percent" msgpack:"roi_percent"`
	PaybackMonths     int               `json:"payback_months" msgpack:"payback_months"`
	BreakEvenMonth    int               `json:"break_even_month" msgpack:"break_even_month"`
	AnnualBenefit     decimal.Decimal   `json:"annual_benefit" msgpack:"annual_benefit"`
	AnnualInvestment  decimal.Decimal   `json:"annual_investment" msgpack:"annual_investment"`
	MonthlyInvestment decimal.Decimal   `json:"monthly_investment" msgpack:"monthly_investment"`
	Components        []Component       `json:"components,omitempty" msgpack:"components,omitempty"`
	Metrics           map[string]string `json:"metrics,omitempty" msgpack:"metrics,omitempty"`
	Projection        []YearProjection  `json:"projection,omitempty" msgpack:"projection,omitempty"`
	// Estimated 为 true 表示这是兜底估算而非实际计算
	Estimated bool `json:"estimated" msgpack:"estimated"`
}

// plan 单个服务类型的未舍入中间结果
type plan struct {
	benefit    decimal.Decimal
	investment decimal.Decimal
	monthly    decimal.Decimal
	components []Component
	metrics    map[string]string
}

// Compute 计算 ROI；未知服务类型按 generic 计算
func Compute(in Inputs) (Result, error) {
	svc := ParseServiceKind(string(in.Service))

	var (
		p   plan
		err error
	)
	switch svc {
	case ServiceICU:
		p, err = icuPlan(in)
	case ServiceRadiology:
		p, err = radiologyPlan(in)
	case ServiceCorporatePlan:
		p, err = corporatePlan(in)
	case ServiceCombo:
		p, err = comboPlan(in)
	default:
		p = genericPlan()
	}
	if err != nil {
		return Result{}, err
	}
	if !p.benefit.IsPositive() || !p.investment.IsPositive() {
		return Result{}, xerrors.NewConfiguration("service", "benchmark produced a non-positive benefit or investment")
	}
	return finalize(svc, p), nil
}

func icuPlan(in Inputs) (plan, error) {
	if in.Beds <= 0 {
		return plan{}, xerrors.NewValidation("beds", "must be > 0 for icu")
	}
	beds := decimal.NewFromInt(int64(in.Beds))
	base := beds.Mul(icuMonthlyCostPerBed).Mul(twelve)
	cost := base.Mul(icuCostReduction)
	occupancy := base.Mul(icuOccupancyImprovement)
	monthly := beds.Mul(icuMonthlyInvestmentPerBed)
	return plan{
		benefit:    cost.Add(occupancy),
		investment: monthly.Mul(twelve),
		monthly:    monthly,
		components: []Component{
			{ComponentCostReduction, round(cost)},
			{ComponentOccupancyRevenue, round(occupancy)},
		},
	}, nil
}

func radiologyPlan(in Inputs) (plan, error) {
	if in.Financials.RadiologyAnnualCost < 0 {
		return plan{}, xerrors.NewValidation("financials.radiology_annual_cost", "must be >= 0")
	}
	base := radiologyDefaultAnnualCost
	if in.Financials.RadiologyAnnualCost > 0 {
		base = decimal.NewFromFloat(in.Financials.RadiologyAnnualCost)
	}
	cost := base.Mul(radiologyCostReduction)
	efficiency := base.Mul(radiologyEfficiencyGain)
	return plan{
		benefit:    cost.Add(efficiency),
		investment: radiologyMonthlyInvestment.Mul(twelve),
		monthly:    radiologyMonthlyInvestment,
		components: []Component{
			{ComponentCostReduction, round(cost)},
			{ComponentEfficiencyGains, round(efficiency)},
		},
		metrics: map[string]string{MetricTurnaroundImprovement: radiologyTurnaroundImprovement},
	}, nil
}

func corporatePlan(in Inputs) (plan, error) {
	if in.Lives <= 0 {
		return plan{}, xerrors.NewValidation("lives", "must be > 0 for corporate_plan")
	}
	if in.AverageTicket < 0 {
		return plan{}, xerrors.NewValidation("average_ticket", "must be >= 0")
	}
	ticket := corporateDefaultTicket
	if in.AverageTicket > 0 {
		ticket = decimal.NewFromFloat(in.AverageTicket)
	}
	lives := decimal.NewFromInt(int64(in.Lives))
	revenue := lives.Mul(ticket).Mul(twelve)
	claims := revenue.Mul(corporateClaimsReduction)
	retention := revenue.Mul(corporateRetentionImprovement)
	monthly := lives.Mul(corporateMonthlyInvestmentPerLife)
	return plan{
		benefit:    claims.Add(retention),
		investment: monthly.Mul(twelve),
		monthly:    monthly,
		components: []Component{
			{ComponentClaimsReduction, round(claims)},
			{ComponentRetentionImprovement, round(retention)},
		},
		metrics: map[string]string{MetricLives: lives.String()},
	}, nil
}

// comboPlan 三项服务的已舍入收益之和乘以协同系数，投资之和打九折
func comboPlan(in Inputs) (plan, error) {
	parts := []struct {
		kind ServiceKind
		fn   func(Inputs) (plan, error)
	}{
		{ServiceICU, icuPlan},
		{ServiceRadiology, radiologyPlan},
		{ServiceCorporatePlan, corporatePlan},
	}

	var (
		benefit, investment decimal.Decimal
		components          []Component
	)
	for _, part := range parts {
		p, err := part.fn(in)
		if err != nil {
			return plan{}, err
		}
		b := round(p.benefit)
		benefit = benefit.Add(b)
		investment = investment.Add(round(p.investment))
		components = append(components, Component{Name: string(part.kind), Amount: b})
	}

	total := benefit.Mul(comboSynergy)
	components = append(components, Component{ComponentSynergyBonus, round(total.Sub(benefit))})
	discounted := investment.Mul(comboDiscount)
	return plan{
		benefit:    total,
		investment: discounted,
		monthly:    discounted.Div(twelve),
		components: components,
		metrics: map[string]string{
			MetricSynergyBonus:  "10%",
			MetricComboDiscount: "10%",
		},
	}, nil
}

func genericPlan() plan {
	return plan{
		benefit:    genericAnnualBenefit,
		investment: genericAnnualInvestment,
		monthly:    genericAnnualInvestment.Div(twelve),
	}
}

func finalize(svc ServiceKind, p plan) Result {
	payback := int(p.investment.Mul(twelve).Div(p.benefit).Ceil().IntPart())
	res := Result{
		Service:           svc,
		Label:             svc.Label(),
		ROIPercent:        roiPercent(p.benefit, p.investment),
		PaybackMonths:     payback,
		BreakEvenMonth:    payback,
		AnnualBenefit:     round(p.benefit),
		AnnualInvestment:  round(p.investment),
		MonthlyInvestment: round(p.monthly),
		Components:        p.components,
		Metrics:           p.metrics,
		Projection:        make([]YearProjection, 0, ProjectionYears),
	}
	for y := 1; y <= ProjectionYears; y++ {
		years := decimal.NewFromInt(int64(y))
		benefit := p.benefit.Mul(years)
		investment := p.investment.Mul(years)
		res.Projection = append(res.Projection, YearProjection{
			Year:                 y,
			Investment:           round(p.investment),
			Benefit:              round(p.benefit),
			NetProfit:            round(p.benefit.Sub(p.investment)),
			CumulativeInvestment: round(investment),
			CumulativeBenefit:    round(benefit),
			CumulativeROIPercent: roiPercent(benefit, investment),
		})
	}
	return res
}

func roiPercent(benefit, investment decimal.Decimal) decimal.Decimal {
	return benefit.Sub(investment).Mul(hundred).Div(investment).Round(2)
}

// round 两位小数，四舍五入（金额均为正数，远离零舍入即四舍五入）
func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Fallback 无法计算时使用的通用估算
func Fallback() Result {
	monthly := decimal.NewFromInt(40_000)
	return Result{
		Service:           ServiceGeneric,
		Label:             "Estimativa Genérica",
		ROIPercent:        decimal.NewFromInt(150),
		PaybackMonths:     8,
		BreakEvenMonth:    8,
		AnnualBenefit:     decimal.NewFromInt(1_000_000),
		AnnualInvestment:  monthly.Mul(twelve),
		MonthlyInvestment: monthly,
		Metrics:           map[string]string{"status": "fallback"},
		Estimated:         true,
	}
}
