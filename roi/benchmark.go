package roi

import "github.com/shopspring/decimal"

var (
	twelve  = decimal.NewFromInt(12)
	hundred = decimal.NewFromInt(100)
)

// 各服务类型的基准参数（年化金额，单位 BRL）
var (
	icuMonthlyCostPerBed       = decimal.NewFromInt(50_000)
	icuMonthlyInvestmentPerBed = decimal.NewFromInt(5_000)
	icuCostReduction           = decimal.RequireFromString("0.30")
	icuOccupancyImprovement    = decimal.RequireFromString("0.20")

	radiologyDefaultAnnualCost     = decimal.NewFromInt(1_200_000)
	radiologyMonthlyInvestment     = decimal.NewFromInt(30_000)
	radiologyCostReduction         = decimal.RequireFromString("0.25")
	radiologyEfficiencyGain        = decimal.RequireFromString("0.10")
	radiologyTurnaroundImprovement = "40%"

	corporateDefaultTicket            = decimal.NewFromInt(500)
	corporateMonthlyInvestmentPerLife = decimal.NewFromInt(15)
	corporateClaimsReduction          = decimal.RequireFromString("0.15")
	corporateRetentionImprovement     = decimal.RequireFromString("0.10")

	comboSynergy  = decimal.RequireFromString("1.10")
	comboDiscount = decimal.RequireFromString("0.90")

	genericAnnualBenefit    = decimal.NewFromInt(1_000_000)
	genericAnnualInvestment = decimal.NewFromInt(400_000)
)

// ProjectionYears 投影年数
const ProjectionYears = 3

// 组件名称
const (
	ComponentCostReduction        = "cost_reduction"
	ComponentOccupancyRevenue     = "occupancy_revenue"
	ComponentEfficiencyGains      = "efficiency_gains"
	ComponentClaimsReduction      = "claims_reduction"
	ComponentRetentionImprovement = "retention_improvement"
	ComponentSynergyBonus         = "synergy_bonus"
)

// 非货币指标
const (
	MetricTurnaroundImprovement = "turnaround_improvement"
	MetricLives                 = "lives"
	MetricSynergyBonus          = "synergy_bonus"
	MetricComboDiscount         = "combo_discount"
)
