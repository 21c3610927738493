package idem

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/ceyewan/dealflow/xerrors"
)

// Store 幂等存储
//
// 一个键有三种状态：不存在、处理中（Lock 成功）、已完成（SetResult 之后）。
type Store interface {
	// Lock 尝试标记处理中，被占用时返回 ok=false
	Lock(ctx context.Context, key string, ttl time.Duration) (token LockToken, ok bool, err error)
	// Unlock 只释放 token 对应的锁
	Unlock(ctx context.Context, key string, token LockToken) error
	// SetResult 保存结果并释放锁；锁已不属于 token 时返回 ErrLockLost
	SetResult(ctx context.Context, key string, val []byte, ttl time.Duration, token LockToken) error
	// GetResult 读取已完成的结果，不存在时返回 ErrResultNotFound
	GetResult(ctx context.Context, key string) ([]byte, error)
}

const (
	lockSuffix   = ":lock"
	resultSuffix = ":result"
)

// LockToken 锁持有者标识
type LockToken string

func newLockToken() (LockToken, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", xerrors.Wrap(err, "idem: generate lock token")
	}
	return LockToken(hex.EncodeToString(b)), nil
}
