package engine

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/inappkit/internal/bus"
)

func eventTask(id string) task {
	return task{event: &bus.Event{Type: bus.TypeApplicationEvent, ID: id}}
}

func TestTaskQueue_EnqueueDequeue(t *testing.T) {
	q := newTaskQueue()

	ok := q.Enqueue(eventTask("ev-1"))
	require.True(t, ok, "enqueue should succeed")

	got, ok := q.TryDequeue()
	require.True(t, ok, "dequeue should succeed")
	require.NotNil(t, got.event)
	assert.Equal(t, "ev-1", got.event.ID)
}

func TestTaskQueue_FIFO(t *testing.T) {
	q := newTaskQueue()

	for _, id := range []string{"A", "B", "C"} {
		q.Enqueue(eventTask(id))
	}

	for _, want := range []string{"A", "B", "C"} {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got.event.ID)
	}
}

func TestTaskQueue_TryDequeue_Empty(t *testing.T) {
	q := newTaskQueue()

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestTaskQueue_MixedTaskKinds(t *testing.T) {
	q := newTaskQueue()

	q.Enqueue(task{track: &trackRequest{id: "req-1"}})
	q.Enqueue(eventTask("ev-1"))

	first, ok := q.TryDequeue()
	require.True(t, ok)
	require.NotNil(t, first.track)
	assert.Equal(t, "req-1", first.track.id)

	second, ok := q.TryDequeue()
	require.True(t, ok)
	require.NotNil(t, second.event)
}

func TestTaskQueue_EnqueueAfterClose(t *testing.T) {
	q := newTaskQueue()
	q.Close()

	ok := q.Enqueue(eventTask("ev-1"))
	assert.False(t, ok, "enqueue after close should fail")

	// Close is idempotent.
	q.Close()
}

func TestTaskQueue_ConcurrentEnqueue(t *testing.T) {
	q := newTaskQueue()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Enqueue(eventTask(fmt.Sprintf("ev-%d", i)))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, q.Len())

	seen := make(map[string]bool)
	for {
		tk, ok := q.TryDequeue()
		if !ok {
			break
		}
		seen[tk.event.ID] = true
	}
	assert.Len(t, seen, n, "every enqueued task should dequeue exactly once")
}

func TestTaskQueue_SignalWakesWaiter(t *testing.T) {
	q := newTaskQueue()

	done := make(chan string, 1)
	go func() {
		<-q.Wait()
		tk, ok := q.TryDequeue()
		if ok {
			done <- tk.event.ID
		}
	}()

	q.Enqueue(eventTask("ev-wake"))
	assert.Equal(t, "ev-wake", <-done)
}
