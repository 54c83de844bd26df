package window_test

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"

	"github.com/pointmatic/gentlify/window"
)

func TestWindow_PruneBoundary(t *testing.T) {
	mock := clock.NewMock()
	w := window.New(mock, 10*time.Second)

	w.Record(1)
	mock.Add(10 * time.Second)
	// entry is exactly at the boundary: still live
	assert.Equal(t, 1, w.Count())

	mock.Add(time.Nanosecond)
	// now strictly older than the window: pruned
	assert.Equal(t, 0, w.Count())
}

func TestWindow_RecordNeverPrunes(t *testing.T) {
	mock := clock.NewMock()
	w := window.New(mock, time.Second)
	w.Record(1)
	mock.Add(5 * time.Second)
	w.Record(2)
	// Record doesn't prune; a read does.
	assert.Equal(t, 2, w.Sum())
}

func TestWindow_MonotonicPrune(t *testing.T) {
	mock := clock.NewMock()
	w := window.New(mock, time.Second)
	for i := 0; i < 5; i++ {
		w.Record(1)
		mock.Add(300 * time.Millisecond)
	}
	first := w.Count()
	mock.Add(time.Second)
	second := w.Count()
	assert.LessOrEqual(t, second, first)
}

func TestWindow_Clear(t *testing.T) {
	mock := clock.NewMock()
	w := window.New(mock, time.Minute)
	w.Record(1)
	w.Clear()
	assert.Equal(t, 0, w.Count())
}
