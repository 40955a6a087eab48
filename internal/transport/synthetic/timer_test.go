package synthetic_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cory-johannsen/duel/internal/transport/synthetic"
)

func TestThinkTimer_Fires(t *testing.T) {
	var tt synthetic.ThinkTimer
	var called atomic.Int32
	tt.Schedule(20*time.Millisecond, func() { called.Add(1) })
	assert.Eventually(t, func() bool { return called.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), called.Load())
}

func TestThinkTimer_ZeroDelayFires(t *testing.T) {
	var tt synthetic.ThinkTimer
	done := make(chan struct{})
	tt.Schedule(0, func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("zero-delay callback never fired")
	}
}

func TestThinkTimer_Stop_PreventsCallback(t *testing.T) {
	var tt synthetic.ThinkTimer
	var called atomic.Int32
	tt.Schedule(30*time.Millisecond, func() { called.Add(1) })
	tt.Stop()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), called.Load())
}

func TestThinkTimer_ScheduleSupersedes(t *testing.T) {
	var tt synthetic.ThinkTimer
	var first, second atomic.Int32
	tt.Schedule(20*time.Millisecond, func() { first.Add(1) })
	tt.Schedule(40*time.Millisecond, func() { second.Add(1) })
	assert.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
}

func TestThinkTimer_ScheduleAfterStopIsNoOp(t *testing.T) {
	var tt synthetic.ThinkTimer
	var called atomic.Int32
	tt.Stop()
	tt.Stop()
	tt.Schedule(0, func() { called.Add(1) })
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), called.Load())
}
