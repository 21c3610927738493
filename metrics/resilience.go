package metrics

import (
	"context"
	"time"

	"github.com/ceyewan/dealflow/xerrors"
)

const (
	MetricResilienceCallsTotal      = "resilience_calls_total"
	MetricResilienceCallDuration    = "resilience_call_duration_seconds"
	MetricResilienceAttemptsTotal   = "resilience_attempts_total"
	MetricResilienceFallbacksTotal  = "resilience_fallbacks_total"
	MetricBreakerStateTransitions   = "breaker_state_transitions_total"
	MetricBreakerState              = "breaker_state"
	MetricBreakerRejectedCallsTotal = "breaker_rejected_calls_total"
	MetricResilienceRetryDelay      = "resilience_retry_delay_seconds"
)

var defaultCallDurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 30, 60, 120}

// ResilienceMetrics 远程调用编排和熔断器的指标集
//
// nil 接收者上的方法都是空操作。
type ResilienceMetrics struct {
	calls       Counter
	duration    Histogram
	attempts    Counter
	fallbacks   Counter
	retryDelay  Histogram
	transitions Counter
	state       Gauge
	rejected    Counter
}

// NewResilienceMetrics 创建远程调用指标集
func NewResilienceMetrics(m Meter) (*ResilienceMetrics, error) {
	if m == nil {
		return nil, xerrors.New("meter is nil")
	}

	var (
		rm   ResilienceMetrics
		errs []error
		err  error
	)
	rm.calls, err = m.Counter(MetricResilienceCallsTotal, "Total number of orchestrated remote calls.")
	errs = append(errs, err)
	rm.duration, err = m.Histogram(MetricResilienceCallDuration, "Orchestrated remote call duration in seconds.",
		WithUnit("s"), WithBuckets(defaultCallDurationBuckets))
	errs = append(errs, err)
	rm.attempts, err = m.Counter(MetricResilienceAttemptsTotal, "Total number of remote call attempts.")
	errs = append(errs, err)
	rm.fallbacks, err = m.Counter(MetricResilienceFallbacksTotal, "Total number of fallback values served.")
	errs = append(errs, err)
	rm.retryDelay, err = m.Histogram(MetricResilienceRetryDelay, "Backoff delay before a retry in seconds.", WithUnit("s"))
	errs = append(errs, err)
	rm.transitions, err = m.Counter(MetricBreakerStateTransitions, "Total number of circuit breaker state transitions.")
	errs = append(errs, err)
	rm.state, err = m.Gauge(MetricBreakerState, "Current circuit breaker state (0 closed, 1 half-open, 2 open).")
	errs = append(errs, err)
	rm.rejected, err = m.Counter(MetricBreakerRejectedCallsTotal, "Total number of calls rejected by an open circuit.")
	errs = append(errs, err)

	if err := xerrors.Combine(errs...); err != nil {
		return nil, xerrors.Wrap(err, "create resilience metrics")
	}
	return &rm, nil
}

// ObserveCall 记录一次编排调用的最终结果
func (m *ResilienceMetrics) ObserveCall(ctx context.Context, kind, outcome string, attempts int, d time.Duration) {
	if m == nil {
		return
	}
	labels := []Label{L(LabelKind, kind), L(LabelOutcome, outcome)}
	m.calls.Inc(ctx, labels...)
	m.duration.Record(ctx, d.Seconds(), labels...)
	m.attempts.Add(ctx, float64(attempts), L(LabelKind, kind))
	if outcome == OutcomeFallback || outcome == OutcomeCircuitOpen {
		m.fallbacks.Inc(ctx, L(LabelKind, kind))
	}
}

// ObserveRetryDelay 记录一次重试前的退避时长
func (m *ResilienceMetrics) ObserveRetryDelay(ctx context.Context, kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.retryDelay.Record(ctx, d.Seconds(), L(LabelKind, kind))
}

// ObserveTransition 记录熔断器状态迁移，stateValue 为迁移后的状态数值
func (m *ResilienceMetrics) ObserveTransition(ctx context.Context, kind, from, to string, stateValue float64) {
	if m == nil {
		return
	}
	m.transitions.Inc(ctx, L(LabelKind, kind), L(LabelFromState, from), L(LabelToState, to))
	m.state.Set(ctx, stateValue, L(LabelKind, kind))
}

// ObserveRejected 记录一次被熔断器拒绝的调用
func (m *ResilienceMetrics) ObserveRejected(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.rejected.Inc(ctx, L(LabelKind, kind))
}
