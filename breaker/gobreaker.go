package breaker

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sony/gobreaker/v2"

	"github.com/ceyewan/dealflow/xerrors"
)

// goBreaker 基于 gobreaker.TwoStepCircuitBreaker 的驱动
//
// 与窗口驱动的差异：
//   - closed 状态的计数是累计值，只在状态迁移时清零，而不是滑动淘汰
//   - closed 状态下 Release 不报告结果，不计入失败率
//   - half_open 试探被 Release 时按失败计，电路回到 open；gobreaker 无法归还试探名额
//   - 使用真实时间，WithClock 不生效
type goBreaker struct {
	circuits sync.Map // map[string]*goCircuit
	settings atomic.Pointer[SettingsFunc]
	opts     *options
}

type goCircuit struct {
	cb       *gobreaker.TwoStepCircuitBreaker[struct{}]
	settings Settings

	mu      sync.Mutex
	pending []func(success bool) // Allow 获得、尚未 Record 的许可
}

func newGoBreaker(fn SettingsFunc, opts *options) *goBreaker {
	b := &goBreaker{opts: opts}
	b.settings.Store(&fn)
	return b
}

func (b *goBreaker) circuit(kind string) *goCircuit {
	s := (*b.settings.Load())(kind).orDefault()
	if v, ok := b.circuits.Load(kind); ok {
		c := v.(*goCircuit)
		if c.settings == s {
			return c
		}
		// 参数变化时重建电路，状态随之清零
		next := b.newCircuit(kind, s)
		if b.circuits.CompareAndSwap(kind, c, next) {
			return next
		}
		v, _ := b.circuits.Load(kind)
		return v.(*goCircuit)
	}
	actual, _ := b.circuits.LoadOrStore(kind, b.newCircuit(kind, s))
	return actual.(*goCircuit)
}

func (b *goBreaker) newCircuit(kind string, s Settings) *goCircuit {
	minimum := uint32(s.WindowSize)
	threshold := s.FailureRateThreshold
	st := gobreaker.Settings{
		Name:        kind,
		MaxRequests: 1,
		Timeout:     s.OpenWait,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			decided := counts.TotalSuccesses + counts.TotalFailures
			if decided < minimum {
				return false
			}
			return float64(counts.TotalFailures)*100/float64(decided) >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.opts.transition(name, fromGoState(from), fromGoState(to))
		},
	}
	return &goCircuit{
		cb:       gobreaker.NewTwoStepCircuitBreaker[struct{}](st),
		settings: s,
	}
}

func (b *goBreaker) Acquire(kind string) (Permit, error) {
	c := b.circuit(kind)
	done, err := c.cb.Allow()
	if err != nil {
		err = mapGoError(err)
		b.opts.rejected(kind, err)
		return nil, err
	}
	trial := c.cb.State() == gobreaker.StateHalfOpen
	return &permit{report: func(o outcome) {
		switch {
		case o == outcomeSuccess:
			done(true)
		case o == outcomeFailure, trial:
			done(false)
		}
	}}, nil
}

func (b *goBreaker) Allow(kind string) bool {
	c := b.circuit(kind)
	done, err := c.cb.Allow()
	if err != nil {
		b.opts.rejected(kind, mapGoError(err))
		return false
	}
	c.mu.Lock()
	c.pending = append(c.pending, done)
	c.mu.Unlock()
	return true
}

func (b *goBreaker) RecordSuccess(kind string) { b.recordPending(kind, true) }
func (b *goBreaker) RecordFailure(kind string) { b.recordPending(kind, false) }

// recordPending 优先结束 Allow 留下的许可；没有时直接申请并报告
func (b *goBreaker) recordPending(kind string, success bool) {
	c := b.circuit(kind)
	c.mu.Lock()
	var done func(bool)
	if n := len(c.pending); n > 0 {
		done = c.pending[0]
		c.pending = c.pending[1:]
	}
	c.mu.Unlock()

	if done == nil {
		var err error
		if done, err = c.cb.Allow(); err != nil {
			return
		}
	}
	done(success)
}

func (b *goBreaker) State(kind string) State {
	v, ok := b.circuits.Load(kind)
	if !ok {
		return StateClosed
	}
	return fromGoState(v.(*goCircuit).cb.State())
}

// Reset gobreaker 没有 Reset，删除后按需重建
func (b *goBreaker) Reset(kind string) {
	v, ok := b.circuits.LoadAndDelete(kind)
	if !ok {
		return
	}
	if from := fromGoState(v.(*goCircuit).cb.State()); from != StateClosed {
		b.opts.transition(kind, from, StateClosed)
	}
}

func (b *goBreaker) Snapshot() []Snapshot {
	var out []Snapshot
	b.circuits.Range(func(k, v any) bool {
		c := v.(*goCircuit)
		counts := c.cb.Counts()
		decided := counts.TotalSuccesses + counts.TotalFailures
		snap := Snapshot{
			Kind:     k.(string),
			State:    fromGoState(c.cb.State()),
			Total:    int(decided),
			Failures: int(counts.TotalFailures),
			Settings: c.settings,
		}
		if decided > 0 {
			snap.FailureRate = float64(counts.TotalFailures) * 100 / float64(decided)
		}
		out = append(out, snap)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

func (b *goBreaker) Reconfigure(fn SettingsFunc) {
	if fn == nil {
		return
	}
	b.settings.Store(&fn)
}

func fromGoState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

func mapGoError(err error) error {
	switch {
	case xerrors.Is(err, gobreaker.ErrOpenState):
		return ErrOpenState
	case xerrors.Is(err, gobreaker.ErrTooManyRequests):
		return ErrTooManyRequests
	default:
		return err
	}
}
