package world

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runLoop(t *testing.T, l *Loop) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return cancel
}

func TestLoop_ExecutesTasksInOrder(t *testing.T) {
	l := NewLoop(0, 0)
	runLoop(t, l)

	var order []int
	for i := 0; i < 10; i++ {
		i := i
		l.Execute(func() { order = append(order, i) })
	}
	// Call встаёт в ту же очередь, поэтому все предыдущие задачи уже выполнены
	require.NoError(t, l.Call(context.Background(), func() {}))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestLoop_TicksRunHandlers(t *testing.T) {
	l := NewLoop(0, time.Millisecond)
	var last atomic.Uint64
	l.OnTick(func(n uint64) { last.Store(n) })
	runLoop(t, l)

	assert.Eventually(t, func() bool { return last.Load() >= 3 }, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, l.Tick(), last.Load())
}

func TestLoop_CallAfterStop(t *testing.T) {
	l := NewLoop(0, 0)
	cancel := runLoop(t, l)
	cancel()
	<-l.Done()

	assert.ErrorIs(t, l.Call(context.Background(), func() {}), ErrLoopStopped)
	// Execute не блокируется на остановленном потоке
	l.Execute(func() { t.Error("задача не должна выполниться") })
}

func TestLoop_CallRespectsContext(t *testing.T) {
	l := NewLoop(0, 0)
	runLoop(t, l)

	release := make(chan struct{})
	l.Execute(func() { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Call(ctx, func() {}), context.DeadlineExceeded)
}

func TestLoop_ExecuteFromLoopWithFullBuffer(t *testing.T) {
	l := NewLoop(2, 0)
	runLoop(t, l)

	const n = 10
	var ran atomic.Int32
	// Задача в потоке симуляции ставит больше задач, чем вмещает буфер
	l.Execute(func() {
		for i := 0; i < n; i++ {
			l.Execute(func() { ran.Add(1) })
		}
	})

	assert.Eventually(t, func() bool { return ran.Load() == n }, time.Second, time.Millisecond)
	assert.Positive(t, l.Overflow())
}

func TestPayloadCloneIsDeep(t *testing.T) {
	src := Payload{
		"health": 10,
		"inventory": []interface{}{
			map[string]interface{}{"id": "stone", "count": 3},
		},
		"passengers": []Payload{{"type": "zombie"}},
	}
	dst := src.Clone()
	require.Equal(t, src, dst)

	dst["health"] = 1
	dst["inventory"].([]interface{})[0].(map[string]interface{})["count"] = 0
	dst["passengers"].([]Payload)[0]["type"] = "pig"

	assert.Equal(t, 10, src["health"])
	assert.Equal(t, 3, src["inventory"].([]interface{})[0].(map[string]interface{})["count"])
	assert.Equal(t, "zombie", src["passengers"].([]Payload)[0]["type"])
	assert.Nil(t, Payload(nil).Clone())
}
