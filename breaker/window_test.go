package breaker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindow_EvictsOldest(t *testing.T) {
	w := NewWindow(3)
	w.Record(true)
	w.Record(false)
	w.Record(false)
	assert.True(t, w.Full())
	assert.Equal(t, 1, w.Failures())

	w.Record(false) // 淘汰最早的失败
	assert.Equal(t, 3, w.Total())
	assert.Equal(t, 0, w.Failures())
	assert.Equal(t, float64(0), w.FailureRate())

	w.Record(true)
	w.Record(true)
	assert.InDelta(t, 66.67, w.FailureRate(), 0.01)
}

func TestWindow_ResizeKeepsRecent(t *testing.T) {
	w := NewWindow(4)
	for _, f := range []bool{true, true, false, true} {
		w.Record(f)
	}

	w.Resize(2)
	assert.Equal(t, 2, w.Size())
	assert.Equal(t, 2, w.Total())
	assert.Equal(t, 1, w.Failures())

	w.Resize(5)
	assert.Equal(t, 2, w.Total())
	assert.False(t, w.Full())
}

func TestWindow_Reset(t *testing.T) {
	w := NewWindow(0)
	assert.Equal(t, 10, w.Size())
	w.Record(true)
	w.Reset()
	assert.Equal(t, 0, w.Total())
	assert.Equal(t, 0, w.Failures())
}
