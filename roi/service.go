package roi

import "strings"

// ServiceKind 服务类型，未识别的输入一律归为 generic
type ServiceKind string

const (
	ServiceICU           ServiceKind = "icu"
	ServiceRadiology     ServiceKind = "radiology"
	ServiceCorporatePlan ServiceKind = "corporate_plan"
	ServiceCombo         ServiceKind = "combo"
	ServiceGeneric       ServiceKind = "generic"
)

var serviceAliases = map[string]ServiceKind{
	"icu":               ServiceICU,
	"uti":               ServiceICU,
	"radiology":         ServiceRadiology,
	"radiologia":        ServiceRadiology,
	"corporate_plan":    ServiceCorporatePlan,
	"plano_corporativo": ServiceCorporatePlan,
	"combo":             ServiceCombo,
	"generic":           ServiceGeneric,
}

// ParseServiceKind 不区分大小写，接受 "corporate-plan" 等写法
func ParseServiceKind(s string) ServiceKind {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if k, ok := serviceAliases[key]; ok {
		return k
	}
	return ServiceGeneric
}

// Label 报告中展示的服务名称
func (k ServiceKind) Label() string {
	switch k {
	case ServiceICU:
		return "UTI/ICU"
	case ServiceRadiology:
		return "Radiologia"
	case ServiceCorporatePlan:
		return "Plano Corporativo"
	case ServiceCombo:
		return "Combo (UTI + Radiologia + Corporativo)"
	default:
		return "Genérico"
	}
}

func (k ServiceKind) String() string {
	return string(k)
}
