package clog

import (
	"runtime"
	"time"
)

var nowFunc = time.Now

// callerPC 跳过 clog 内部调用栈，返回业务代码的调用位置
func callerPC() uintptr {
	var pcs [1]uintptr
	// runtime.Callers, callerPC, log, Info/InfoContext
	runtime.Callers(4, pcs[:])
	return pcs[0]
}
