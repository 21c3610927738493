// Package breaker 提供按 OperationKind 隔离的熔断器。
//
// 每个 kind 拥有独立的熔断电路（circuit），状态在 closed、open、half_open 之间迁移：
//   - closed：放行所有调用，结果写入滑动窗口；窗口已满且失败率达到阈值时打开
//   - open：拒绝调用，等待 OpenWait 后由第一个调用者进入 half_open
//   - half_open：只放行一个试探调用，其结果决定回到 closed 还是重新 open
//
// 提供两种驱动：
//   - DriverWindow：基于环形缓冲区的滑动窗口实现（默认）
//   - DriverGoBreaker：基于 sony/gobreaker 的 TwoStepCircuitBreaker
//
// 基本使用：
//
//	brk, _ := breaker.New(breaker.DriverWindow, func(kind string) breaker.Settings {
//		return breaker.DefaultSettings()
//	}, breaker.WithLogger(logger))
//
//	permit, err := brk.Acquire("crm-stage-update")
//	if err != nil {
//		// breaker.ErrOpenState / breaker.ErrTooManyRequests
//		return fallback()
//	}
//	if err := call(); err != nil {
//		permit.Failure()
//	} else {
//		permit.Success()
//	}
package breaker

import (
	"fmt"
	"strings"
	"time"

	"github.com/ceyewan/dealflow/xerrors"
)

// Breaker 多 kind 熔断器
type Breaker interface {
	// Acquire 申请一次调用许可。电路打开时返回 ErrOpenState，
	// half_open 且试探调用尚未结束时返回 ErrTooManyRequests。
	Acquire(kind string) (Permit, error)

	// Allow 等价于 Acquire 成功；获得的许可需要通过 RecordSuccess/RecordFailure 结束
	Allow(kind string) bool
	RecordSuccess(kind string)
	RecordFailure(kind string)

	// State 返回 kind 的当前状态，未使用过的 kind 视为 closed
	State(kind string) State

	// Reset 将 kind 的电路恢复为 closed 并清空窗口，仅供运维操作
	Reset(kind string)

	// Snapshot 返回所有已创建电路的快照，按 kind 排序
	Snapshot() []Snapshot

	// Reconfigure 替换参数来源，已有电路在下一次 Acquire 时应用新参数
	Reconfigure(fn SettingsFunc)
}

// Permit 一次调用许可，Success/Failure/Release 只有第一次调用生效
type Permit interface {
	// Success 记录成功
	Success()
	// Failure 记录失败
	Failure()
	// Release 放弃许可，不计入任何结果（例如参数校验失败、调用方取消）
	Release()
}

// Driver 熔断器实现
type Driver string

const (
	DriverWindow    Driver = "window"
	DriverGoBreaker Driver = "gobreaker"
)

// State 熔断器状态
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// MarshalText 以字符串形式输出状态
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Settings 单个电路的参数
type Settings struct {
	// FailureRateThreshold 失败率阈值，百分比 (0, 100]
	FailureRateThreshold float64 `json:"failure_rate_threshold"`
	// WindowSize 滑动窗口大小
	WindowSize int `json:"window_size"`
	// OpenWait open 状态持续时间
	OpenWait time.Duration `json:"open_wait"`
}

// DefaultSettings 50% 阈值、窗口 10、等待 60s
func DefaultSettings() Settings {
	return Settings{
		FailureRateThreshold: 50,
		WindowSize:           10,
		OpenWait:             60 * time.Second,
	}
}

// Validate 校验参数
func (s Settings) Validate() error {
	if s.FailureRateThreshold <= 0 || s.FailureRateThreshold > 100 {
		return xerrors.NewConfiguration("failure_rate_threshold", fmt.Sprintf("must be in (0, 100], got %v", s.FailureRateThreshold))
	}
	if s.WindowSize < 1 {
		return xerrors.NewConfiguration("sliding_window_size", fmt.Sprintf("must be >= 1, got %d", s.WindowSize))
	}
	if s.OpenWait <= 0 {
		return xerrors.NewConfiguration("open_state_wait", fmt.Sprintf("must be > 0, got %s", s.OpenWait))
	}
	return nil
}

// orDefault 非法参数回退到默认值
func (s Settings) orDefault() Settings {
	if s.Validate() != nil {
		return DefaultSettings()
	}
	return s
}

// SettingsFunc 根据 kind 返回电路参数
type SettingsFunc func(kind string) Settings

// Snapshot 电路快照
type Snapshot struct {
	Kind        string    `json:"kind"`
	State       State     `json:"state"`
	Total       int       `json:"total"`
	Failures    int       `json:"failures"`
	FailureRate float64   `json:"failure_rate"`
	OpenedAt    time.Time `json:"opened_at,omitzero"`
	Settings    Settings  `json:"settings"`
}

// New 按驱动创建熔断器，settings 为 nil 时所有 kind 使用 DefaultSettings
func New(driver Driver, settings SettingsFunc, opts ...Option) (Breaker, error) {
	if settings == nil {
		settings = func(string) Settings { return DefaultSettings() }
	}
	o := applyOptions(opts...)

	switch Driver(strings.ToLower(string(driver))) {
	case DriverWindow, "":
		return newWindowBreaker(settings, o), nil
	case DriverGoBreaker:
		return newGoBreaker(settings, o), nil
	default:
		return nil, xerrors.NewConfiguration("driver", fmt.Sprintf("unknown breaker driver %q", driver))
	}
}
