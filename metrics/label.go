package metrics

import "strconv"

// Label 指标标签，应避免高基数的值（例如调用 ID）
type Label struct {
	Key   string
	Value string
}

// L 创建一个 Label
func L(key, value string) Label {
	return Label{Key: key, Value: value}
}

const (
	LabelService     = "service"
	LabelOperation   = "operation"
	LabelMethod      = "method"
	LabelRoute       = "route"
	LabelStatusClass = "status_class"
	LabelOutcome     = "outcome"
	LabelKind        = "kind"
	LabelState       = "state"
	LabelFromState   = "from"
	LabelToState     = "to"
)

const (
	OperationHTTPServer = "http.server"
	OperationRemoteCall = "remote.call"
)

const (
	OutcomeSuccess     = "success"
	OutcomeError       = "error"
	OutcomeFallback    = "fallback"
	OutcomeCircuitOpen = "circuit_open"
	OutcomeTimeout     = "timeout"
	OutcomeRejected    = "rejected"
)

// UnknownRoute 未命中路由时的统一标签值
const UnknownRoute = "unknown"

// HTTPStatusClass 返回 HTTP 状态类标签值：1xx/2xx/3xx/4xx/5xx/unknown
func HTTPStatusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}

// HTTPOutcome 将 HTTP 状态码映射到 success/error
func HTTPOutcome(status int) string {
	if status >= 200 && status < 400 {
		return OutcomeSuccess
	}
	return OutcomeError
}
