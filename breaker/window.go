package breaker

// Window 滑动窗口，使用环形缓冲区记录最近 N 次调用结果
//
// Window 不是并发安全的，由所属电路加锁保护。
type Window struct {
	buffer   []bool // true 表示失败
	index    int    // 下一次写入位置
	total    int
	failures int
}

// NewWindow 创建容量为 size 的窗口，size <= 0 时使用 10
func NewWindow(size int) *Window {
	if size <= 0 {
		size = 10
	}
	return &Window{buffer: make([]bool, size)}
}

// Record 记录一次结果，窗口已满时淘汰最旧的记录
func (w *Window) Record(failure bool) {
	if w.total == len(w.buffer) {
		if w.buffer[w.index] {
			w.failures--
		}
	} else {
		w.total++
	}

	w.buffer[w.index] = failure
	if failure {
		w.failures++
	}
	w.index = (w.index + 1) % len(w.buffer)
}

// FailureRate 失败率百分比，空窗口为 0
func (w *Window) FailureRate() float64 {
	if w.total == 0 {
		return 0
	}
	return float64(w.failures) * 100 / float64(w.total)
}

func (w *Window) Total() int    { return w.total }
func (w *Window) Failures() int { return w.failures }
func (w *Window) Size() int     { return len(w.buffer) }

// Full 窗口是否已写满
func (w *Window) Full() bool {
	return w.total == len(w.buffer)
}

// Reset 清空窗口
func (w *Window) Reset() {
	clear(w.buffer)
	w.index = 0
	w.total = 0
	w.failures = 0
}

// Resize 调整容量，保留最近的 min(size, Total()) 条记录
func (w *Window) Resize(size int) {
	if size <= 0 || size == len(w.buffer) {
		return
	}
	recent := w.outcomes()
	if len(recent) > size {
		recent = recent[len(recent)-size:]
	}

	w.buffer = make([]bool, size)
	w.index, w.total, w.failures = 0, 0, 0
	for _, failure := range recent {
		w.Record(failure)
	}
}

// outcomes 按从旧到新的顺序返回窗口内容
func (w *Window) outcomes() []bool {
	out := make([]bool, 0, w.total)
	start := (w.index - w.total + len(w.buffer)) % len(w.buffer)
	for i := 0; i < w.total; i++ {
		out = append(out, w.buffer[(start+i)%len(w.buffer)])
	}
	return out
}
