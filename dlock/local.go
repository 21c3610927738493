package dlock

import (
	"context"
	"sync"

	"github.com/ceyewan/dealflow/clog"
)

// localLocker 每个键一个容量为 1 的信号量，空闲后回收
type localLocker struct {
	mu     sync.Mutex
	cfg    Config
	logger clog.Logger
	slots  map[string]*localSlot
}

type localSlot struct {
	ch   chan struct{}
	refs int
}

func newLocalLocker(cfg Config, logger clog.Logger) *localLocker {
	return &localLocker{cfg: cfg, logger: logger, slots: make(map[string]*localSlot)}
}

func (l *localLocker) slot(key string) *localSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &localSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *localLocker) drop(key string, s *localSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

func (l *localLocker) Lock(ctx context.Context, key string) (Lease, error) {
	if key == "" {
		return nil, ErrKeyEmpty
	}
	s := l.slot(key)
	select {
	case s.ch <- struct{}{}:
		return &localLease{locker: l, key: key, slot: s}, nil
	case <-ctx.Done():
		l.drop(key, s)
		return nil, ctx.Err()
	}
}

func (l *localLocker) TryLock(_ context.Context, key string) (Lease, bool, error) {
	if key == "" {
		return nil, false, ErrKeyEmpty
	}
	s := l.slot(key)
	select {
	case s.ch <- struct{}{}:
		return &localLease{locker: l, key: key, slot: s}, true, nil
	default:
		l.drop(key, s)
		return nil, false, nil
	}
}

type localLease struct {
	locker *localLocker
	key    string
	slot   *localSlot
	once   sync.Once
}

func (ll *localLease) Key() string { return ll.key }

func (ll *localLease) Unlock(context.Context) error {
	ll.once.Do(func() {
		<-ll.slot.ch
		ll.locker.drop(ll.key, ll.slot)
	})
	return nil
}
