package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu      sync.Mutex
	drops   map[string]int
	panics  int
	submits int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{drops: map[string]int{}}
}

func (o *recordingObserver) ObserveSubmit(string, int) {
	o.mu.Lock()
	o.submits++
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveDrop(_ string, reason string, n int) {
	o.mu.Lock()
	o.drops[reason] += n
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveDone(_ string, _ int, panicked bool) {
	if panicked {
		o.mu.Lock()
		o.panics++
		o.mu.Unlock()
	}
}

func queued[T any](w *Worker[T]) []T {
	var out []T
	for {
		select {
		case v := <-w.items:
			out = append(out, v)
		default:
			return out
		}
	}
}

func TestSubmitOverflowEvictsOldest(t *testing.T) {
	obs := newRecordingObserver()
	w := New(Config{Name: "test", Capacity: 3, Observer: obs}, func(context.Context, int) {})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= 4; i++ {
			assert.True(t, w.Submit(i))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a full queue")
	}

	assert.Equal(t, 3, w.Len())
	assert.Equal(t, int64(1), w.Dropped())
	assert.Equal(t, 1, obs.drops["overflow"])
	assert.Equal(t, []int{2, 3, 4}, queued(w))
}

func TestProcessesInOrder(t *testing.T) {
	var (
		mu  sync.Mutex
		got []int
	)
	w := New(Config{Name: "test", Capacity: 100}, func(_ context.Context, v int) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	})
	w.Start()

	for i := 0; i < 50; i++ {
		require.True(t, w.Submit(i))
	}
	require.NoError(t, w.Stop(time.Second))

	expected := make([]int, 50)
	for i := range expected {
		expected[i] = i
	}
	assert.Equal(t, expected, got)
	assert.Equal(t, int64(50), w.Processed())
}

func TestSubmitAfterStopRefused(t *testing.T) {
	w := New(Config{Capacity: 2}, func(context.Context, string) {})
	w.Start()
	require.NoError(t, w.Stop(time.Second))

	assert.False(t, w.Submit("late"))
	assert.NoError(t, w.Stop(time.Second), "second stop is a no-op")
}

func TestStopWithoutStartDiscards(t *testing.T) {
	obs := newRecordingObserver()
	w := New(Config{Capacity: 5, Observer: obs}, func(context.Context, int) {})
	w.Submit(1)
	w.Submit(2)

	require.NoError(t, w.Stop(time.Second))
	assert.Equal(t, 2, obs.drops["shutdown"])
	assert.Equal(t, 0, w.Len())
}

func TestStopTimeoutCancelsAndDiscards(t *testing.T) {
	var cancelled atomic.Bool
	obs := newRecordingObserver()

	w := New(Config{Name: "slow", Capacity: 10, Observer: obs}, func(ctx context.Context, _ int) {
		<-ctx.Done()
		cancelled.Store(true)
	})
	w.Start()
	for i := 0; i < 5; i++ {
		w.Submit(i)
	}

	err := w.Stop(20 * time.Millisecond)
	require.ErrorIs(t, err, ErrStopTimeout)

	require.Eventually(t, func() bool {
		select {
		case <-w.done:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	assert.True(t, cancelled.Load())
	assert.Equal(t, int64(1), w.Processed())
	obs.mu.Lock()
	assert.Equal(t, 4, obs.drops["shutdown"])
	obs.mu.Unlock()
}

func TestHandlerPanicRecovered(t *testing.T) {
	obs := newRecordingObserver()
	var handled atomic.Int32
	w := New(Config{Capacity: 4, Observer: obs}, func(_ context.Context, v int) {
		if v == 1 {
			panic("bad item")
		}
		handled.Add(1)
	})
	w.Start()
	w.Submit(1)
	w.Submit(2)
	require.NoError(t, w.Stop(time.Second))

	assert.Equal(t, int32(1), handled.Load())
	assert.Equal(t, 1, obs.panics)
}

func TestConcurrentSubmitNeverBlocks(t *testing.T) {
	w := New(Config{Capacity: 8}, func(context.Context, int) {
		time.Sleep(time.Millisecond)
	})
	w.Start()

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				w.Submit(i)
			}
		}()
	}
	wg.Wait()
	_ = w.Stop(5 * time.Second)

	assert.Equal(t, int64(1000), w.Processed()+w.Dropped())
}

func TestDefaults(t *testing.T) {
	w := New(Config{}, func(context.Context, int) {})
	assert.Equal(t, DefaultCapacity, w.Cap())
	assert.Equal(t, "worker", w.name)
}
