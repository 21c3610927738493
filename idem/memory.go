package idem

import (
	"context"
	"sync"
	"time"

	"github.com/ceyewan/dealflow/clock"
)

type memoryLock struct {
	token     LockToken
	expiresAt time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// memoryStore 单进程存储
type memoryStore struct {
	mu      sync.Mutex
	prefix  string
	clock   clock.Clock
	locks   map[string]memoryLock
	results map[string]memoryEntry
}

func newMemoryStore(prefix string, c clock.Clock) *memoryStore {
	return &memoryStore{
		prefix:  prefix,
		clock:   c,
		locks:   make(map[string]memoryLock),
		results: make(map[string]memoryEntry),
	}
}

func (ms *memoryStore) Lock(ctx context.Context, key string, ttl time.Duration) (LockToken, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	now := ms.clock.Now()
	lockKey := ms.prefix + key + lockSuffix

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if l, ok := ms.locks[lockKey]; ok && l.expiresAt.After(now) {
		return "", false, nil
	}
	token, err := newLockToken()
	if err != nil {
		return "", false, err
	}
	ms.locks[lockKey] = memoryLock{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (ms *memoryStore) Unlock(_ context.Context, key string, token LockToken) error {
	lockKey := ms.prefix + key + lockSuffix
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if l, ok := ms.locks[lockKey]; ok && l.token == token {
		delete(ms.locks, lockKey)
	}
	return nil
}

func (ms *memoryStore) SetResult(ctx context.Context, key string, val []byte, ttl time.Duration, token LockToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := ms.clock.Now()
	lockKey := ms.prefix + key + lockSuffix

	ms.mu.Lock()
	defer ms.mu.Unlock()
	l, ok := ms.locks[lockKey]
	if !ok || l.token != token || !l.expiresAt.After(now) {
		return ErrLockLost
	}
	delete(ms.locks, lockKey)
	ms.results[ms.prefix+key+resultSuffix] = memoryEntry{
		value:     append([]byte(nil), val...),
		expiresAt: now.Add(ttl),
	}
	return nil
}

func (ms *memoryStore) GetResult(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resultKey := ms.prefix + key + resultSuffix

	ms.mu.Lock()
	defer ms.mu.Unlock()
	e, ok := ms.results[resultKey]
	if !ok {
		return nil, ErrResultNotFound
	}
	if !e.expiresAt.After(ms.clock.Now()) {
		delete(ms.results, resultKey)
		return nil, ErrResultNotFound
	}
	return append([]byte(nil), e.value...), nil
}
