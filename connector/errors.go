package connector

import "github.com/ceyewan/dealflow/xerrors"

var (
	// ErrNotConnected Connect 之前或 Close 之后访问连接
	ErrNotConnected = xerrors.New("connector: not connected")
	// ErrConnection 重试耗尽后仍无法建立连接
	ErrConnection = xerrors.New("connector: connection failed")
	// ErrHealthCheck 健康检查失败
	ErrHealthCheck = xerrors.New("connector: health check failed")
)
