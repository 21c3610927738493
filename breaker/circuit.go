package breaker

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeRelease
)

// windowBreaker 滑动窗口驱动，每个 kind 一个 circuit
type windowBreaker struct {
	circuits sync.Map // map[string]*circuit
	settings atomic.Pointer[SettingsFunc]
	opts     *options
}

func newWindowBreaker(fn SettingsFunc, opts *options) *windowBreaker {
	b := &windowBreaker{opts: opts}
	b.settings.Store(&fn)
	return b
}

func (b *windowBreaker) settingsFor(kind string) Settings {
	return (*b.settings.Load())(kind).orDefault()
}

func (b *windowBreaker) circuit(kind string) *circuit {
	if v, ok := b.circuits.Load(kind); ok {
		return v.(*circuit)
	}
	s := b.settingsFor(kind)
	c := &circuit{kind: kind, settings: s, window: NewWindow(s.WindowSize)}
	actual, _ := b.circuits.LoadOrStore(kind, c)
	return actual.(*circuit)
}

func (b *windowBreaker) Acquire(kind string) (Permit, error) {
	c := b.circuit(kind)
	gen, tr, err := c.acquire(b.settingsFor(kind), b.opts.clock.Now())
	b.notify(kind, tr)
	if err != nil {
		b.opts.rejected(kind, err)
		return nil, err
	}
	return &permit{report: func(o outcome) { b.record(c, gen, o) }}, nil
}

func (b *windowBreaker) Allow(kind string) bool {
	_, err := b.Acquire(kind)
	return err == nil
}

func (b *windowBreaker) RecordSuccess(kind string) {
	c := b.circuit(kind)
	b.record(c, c.currentGeneration(), outcomeSuccess)
}

func (b *windowBreaker) RecordFailure(kind string) {
	c := b.circuit(kind)
	b.record(c, c.currentGeneration(), outcomeFailure)
}

func (b *windowBreaker) record(c *circuit, gen uint64, o outcome) {
	b.notify(c.kind, c.record(gen, o, b.opts.clock.Now()))
}

func (b *windowBreaker) State(kind string) State {
	v, ok := b.circuits.Load(kind)
	if !ok {
		return StateClosed
	}
	c := v.(*circuit)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (b *windowBreaker) Reset(kind string) {
	v, ok := b.circuits.Load(kind)
	if !ok {
		return
	}
	c := v.(*circuit)
	c.mu.Lock()
	tr := c.moveTo(StateClosed, time.Time{})
	c.mu.Unlock()
	b.notify(kind, tr)
}

func (b *windowBreaker) Snapshot() []Snapshot {
	var out []Snapshot
	b.circuits.Range(func(_, v any) bool {
		out = append(out, v.(*circuit).snapshot())
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

func (b *windowBreaker) Reconfigure(fn SettingsFunc) {
	if fn == nil {
		return
	}
	b.settings.Store(&fn)
}

func (b *windowBreaker) notify(kind string, tr *transition) {
	if tr != nil {
		b.opts.transition(kind, tr.from, tr.to)
	}
}

type transition struct {
	from, to State
}

// circuit 单个 kind 的电路，mu 只保护状态读写，不跨越远程调用
type circuit struct {
	mu         sync.Mutex
	kind       string
	settings   Settings
	state      State
	window     *Window
	openedAt   time.Time
	generation uint64 // 每次状态迁移递增，旧许可的结果被忽略
	trial      bool   // half_open 试探调用进行中
}

func (c *circuit) acquire(s Settings, now time.Time) (uint64, *transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.apply(s)

	var tr *transition
	switch c.state {
	case StateOpen:
		if now.Sub(c.openedAt) < c.settings.OpenWait {
			return 0, nil, ErrOpenState
		}
		tr = c.moveTo(StateHalfOpen, c.openedAt)
		c.trial = true
	case StateHalfOpen:
		if c.trial {
			return 0, nil, ErrTooManyRequests
		}
		c.trial = true
	}
	return c.generation, tr, nil
}

func (c *circuit) record(gen uint64, o outcome, now time.Time) *transition {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return nil
	}

	switch c.state {
	case StateClosed:
		if o == outcomeRelease {
			return nil
		}
		c.window.Record(o == outcomeFailure)
		if o == outcomeFailure && c.window.Full() && c.window.FailureRate() >= c.settings.FailureRateThreshold {
			return c.moveTo(StateOpen, now)
		}
	case StateHalfOpen:
		switch o {
		case outcomeSuccess:
			return c.moveTo(StateClosed, time.Time{})
		case outcomeFailure:
			return c.moveTo(StateOpen, now)
		default:
			c.trial = false
		}
	}
	return nil
}

// moveTo 迁移状态并使已发出的许可失效，调用方持有 mu
func (c *circuit) moveTo(to State, openedAt time.Time) *transition {
	from := c.state
	c.state = to
	c.openedAt = openedAt
	c.generation++
	c.trial = false
	if to == StateClosed {
		c.window.Reset()
	}
	if from == to {
		return nil
	}
	return &transition{from: from, to: to}
}

// apply 应用新参数，窗口大小变化时保留最近的结果
func (c *circuit) apply(s Settings) {
	if s == c.settings {
		return
	}
	c.window.Resize(s.WindowSize)
	c.settings = s
}

func (c *circuit) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *circuit) snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Kind:        c.kind,
		State:       c.state,
		Total:       c.window.Total(),
		Failures:    c.window.Failures(),
		FailureRate: c.window.FailureRate(),
		OpenedAt:    c.openedAt,
		Settings:    c.settings,
	}
}

// permit 只有第一次报告生效
type permit struct {
	done   atomic.Bool
	report func(outcome)
}

func (p *permit) Success() { p.finish(outcomeSuccess) }
func (p *permit) Failure() { p.finish(outcomeFailure) }
func (p *permit) Release() { p.finish(outcomeRelease) }

func (p *permit) finish(o outcome) {
	if p.done.CompareAndSwap(false, true) {
		p.report(o)
	}
}
