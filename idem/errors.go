package idem

import "github.com/ceyewan/dealflow/xerrors"

var (
	// ErrKeyEmpty 幂等键为空
	ErrKeyEmpty = xerrors.New("idem: key is empty")
	// ErrInFlight 同一个键的请求仍在处理中
	ErrInFlight = xerrors.New("idem: request with the same key is in flight")
	// ErrResultNotFound 没有保存的结果
	ErrResultNotFound = xerrors.New("idem: result not found")
	// ErrLockLost 锁已过期或被其他持有者占用
	ErrLockLost = xerrors.New("idem: lock lost")
)
