package ratelimit

import "github.com/ceyewan/dealflow/xerrors"

// 哨兵错误
var (
	ErrKeyEmpty     = xerrors.New("ratelimit: key is empty")
	ErrInvalidLimit = xerrors.New("ratelimit: invalid limit")
)
