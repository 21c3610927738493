package resilience

import (
	"sort"
	"strings"
	"time"

	"github.com/ceyewan/dealflow/xerrors"
)

// OperationKind 共享同一熔断电路和重试策略的一组调用
type OperationKind string

// 工作流中的远程调用类型
const (
	KindANSRegistration       OperationKind = "ans-registration"
	KindAPIKeyGeneration      OperationKind = "api-key-generation"
	KindAccountingPosting     OperationKind = "accounting-posting"
	KindBillingSetup          OperationKind = "billing-setup"
	KindCRMReporting          OperationKind = "crm-reporting"
	KindCRMStageUpdate        OperationKind = "crm-stage-update"
	KindCRMTaskCreation       OperationKind = "crm-task-creation"
	KindCRMUpdate             OperationKind = "crm-update"
	KindCalendarInvite        OperationKind = "calendar-invite"
	KindClicksign             OperationKind = "clicksign"
	KindContractGeneration    OperationKind = "contract-generation"
	KindCredentialDelivery    OperationKind = "credential-delivery"
	KindDataWarehouse         OperationKind = "data-warehouse"
	KindDigitalCard           OperationKind = "digital-card"
	KindDocuSign              OperationKind = "docusign"
	KindFinancialData         OperationKind = "financial-data"
	KindHealthCardGeneration  OperationKind = "health-card-generation"
	KindHubSpotUpdate         OperationKind = "hubspot-update"
	KindKPIDashboard          OperationKind = "kpi-dashboard"
	KindLeadEnrichment        OperationKind = "lead-enrichment"
	KindMLScoring             OperationKind = "ml-scoring"
	KindMobileAppProvisioning OperationKind = "mobile-app-provisioning"
	KindOCRProcessing         OperationKind = "ocr-processing"
	KindPortalActivation      OperationKind = "portal-activation"
	KindPredictiveAnalytics   OperationKind = "predictive-analytics"
	KindProposalGeneration    OperationKind = "proposal-generation"
	KindROICalculation        OperationKind = "roi-calculation"
	KindS3DocumentStorage     OperationKind = "s3-document-storage"
	KindSalesforceSync        OperationKind = "salesforce-sync"
	KindSendGridEmail         OperationKind = "sendgrid-email"
	KindSlackNotification     OperationKind = "slack-notification"
	KindTasyERP               OperationKind = "tasy-erp"
	KindTelehealthSetup       OperationKind = "telehealth-setup"
	KindTwilioSMS             OperationKind = "twilio-sms"
	KindVideoConference       OperationKind = "video-conference"
	KindWhatsAppNotification  OperationKind = "whatsapp-notification"
)

// builtinOverrides 个别类型的内置参数，配置文件中的 kinds 优先级更高
var builtinOverrides = map[OperationKind]Policy{
	KindDataWarehouse: {
		PerAttemptTimeout: 45 * time.Second,
		OpenStateWait:     120 * time.Second,
		RetryBaseDelay:    10 * time.Second,
	},
	KindTasyERP: {
		PerAttemptTimeout: 45 * time.Second,
		OpenStateWait:     120 * time.Second,
		RetryBaseDelay:    10 * time.Second,
	},
	KindOCRProcessing: {
		PerAttemptTimeout: 60 * time.Second,
		RetryBaseDelay:    10 * time.Second,
	},
	KindS3DocumentStorage: {
		PerAttemptTimeout: 60 * time.Second,
	},
	KindProposalGeneration: {
		MaxRetryAttempts: 2,
	},
	// 固定 5 分钟间隔重试
	KindLeadEnrichment: {
		PerAttemptTimeout:      120 * time.Second,
		RetryBaseDelay:         5 * time.Minute,
		RetryBackoffMultiplier: 1,
	},
}

var catalogue = map[OperationKind]struct{}{
	KindANSRegistration: {}, KindAPIKeyGeneration: {}, KindAccountingPosting: {}, KindBillingSetup: {},
	KindCRMReporting: {}, KindCRMStageUpdate: {}, KindCRMTaskCreation: {}, KindCRMUpdate: {},
	KindCalendarInvite: {}, KindClicksign: {}, KindContractGeneration: {}, KindCredentialDelivery: {},
	KindDataWarehouse: {}, KindDigitalCard: {}, KindDocuSign: {}, KindFinancialData: {},
	KindHealthCardGeneration: {}, KindHubSpotUpdate: {}, KindKPIDashboard: {}, KindLeadEnrichment: {},
	KindMLScoring: {}, KindMobileAppProvisioning: {}, KindOCRProcessing: {}, KindPortalActivation: {},
	KindPredictiveAnalytics: {}, KindProposalGeneration: {}, KindROICalculation: {}, KindS3DocumentStorage: {},
	KindSalesforceSync: {}, KindSendGridEmail: {}, KindSlackNotification: {}, KindTasyERP: {},
	KindTelehealthSetup: {}, KindTwilioSMS: {}, KindVideoConference: {}, KindWhatsAppNotification: {},
}

// Catalogue 返回所有已知类型，按名称排序
func Catalogue() []OperationKind {
	out := make([]OperationKind, 0, len(catalogue))
	for k := range catalogue {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Known 是否为目录中的类型；未知类型同样可用，使用默认策略
func (k OperationKind) Known() bool {
	_, ok := catalogue[k.Normalize()]
	return ok
}

// Normalize 去除空白并转为小写
func (k OperationKind) Normalize() OperationKind {
	return OperationKind(strings.ToLower(strings.TrimSpace(string(k))))
}

// Validate 空类型是调用方错误
func (k OperationKind) Validate() error {
	if k.Normalize() == "" {
		return xerrors.NewValidation("kind", "operation kind is required")
	}
	return nil
}

func (k OperationKind) String() string {
	return string(k)
}
