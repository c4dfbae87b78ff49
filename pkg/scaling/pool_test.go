package scaling

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDrainPolicy(t *testing.T) {
	p, err := ParseDrainPolicy("drain")
	require.NoError(t, err)
	assert.Equal(t, DrainAll, p)

	p, err = ParseDrainPolicy("discard")
	require.NoError(t, err)
	assert.Equal(t, Discard, p)

	p, err = ParseDrainPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DrainAll, p)

	_, err = ParseDrainPolicy("explode")
	assert.Error(t, err)
}

func TestPoolDeliversExactlyOnce(t *testing.T) {
	const items = 500

	var mu sync.Mutex
	seen := make(map[int]int, items)
	p, err := newPool("test", 7, DrainAll, nil, func(n int) {
		mu.Lock()
		seen[n]++
		mu.Unlock()
	}, nil)
	require.NoError(t, err)
	require.NoError(t, p.Start())

	for i := 0; i < items; i++ {
		require.NoError(t, p.Submit(i))
	}
	require.NoError(t, p.Shutdown())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, items)
	for n, count := range seen {
		assert.Equal(t, 1, count, "item %d delivered %d times", n, count)
	}
}

func TestPoolSubmitAfterShutdown(t *testing.T) {
	p, err := newPool("test", 1, DrainAll, nil, func(int) {}, nil)
	require.NoError(t, err)
	require.NoError(t, p.Start())
	require.NoError(t, p.Shutdown())

	assert.ErrorIs(t, p.Submit(1), ErrQueueClosed)
}

func TestPoolShutdownIdempotent(t *testing.T) {
	var delivered atomic.Int64
	p, err := newPool("test", 3, DrainAll, nil, func(int) {
		delivered.Add(1)
	}, nil)
	require.NoError(t, err)
	require.NoError(t, p.Start())
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Submit(i))
	}

	require.NoError(t, p.Shutdown())
	require.NoError(t, p.Shutdown())
	assert.Equal(t, int64(20), delivered.Load())
}

func TestPoolDrainsQueuedItems(t *testing.T) {
	// One worker held at a gate while more items queue up behind it. The
	// drain policy must deliver every queued item before Shutdown returns.
	gate := make(chan struct{})
	var delivered atomic.Int64
	first := true

	p, err := newPool("test", 1, DrainAll, nil, func(int) {
		if first {
			first = false
			<-gate
		}
		delivered.Add(1)
	}, nil)
	require.NoError(t, err)
	require.NoError(t, p.Start())

	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(i))
	}

	done := make(chan struct{})
	go func() {
		_ = p.Shutdown()
		close(done)
	}()
	close(gate)
	<-done

	assert.Equal(t, int64(10), delivered.Load())
}

func TestPoolDiscardsQueuedItems(t *testing.T) {
	gate := make(chan struct{})
	var delivered atomic.Int64

	p, err := newPool("test", 1, Discard, nil, func(int) {
		<-gate
		delivered.Add(1)
	}, nil)
	require.NoError(t, err)
	require.NoError(t, p.Start())

	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(i))
	}

	done := make(chan struct{})
	go func() {
		_ = p.Shutdown()
		close(done)
	}()
	close(gate)
	<-done

	// The in-flight item finishes; the other nine are dropped.
	assert.LessOrEqual(t, delivered.Load(), int64(2))
}

func TestPoolDropCallbackOnDiscard(t *testing.T) {
	gate := make(chan struct{})
	var dropped atomic.Int64

	p, err := newPool("test", 1, Discard, nil, func(int) {
		<-gate
	}, func(int) {
		dropped.Add(1)
	})
	require.NoError(t, err)
	require.NoError(t, p.Start())

	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(i))
	}

	done := make(chan struct{})
	go func() {
		_ = p.Shutdown()
		close(done)
	}()
	close(gate)
	<-done

	// Every queued item that never reached a worker was dropped.
	assert.GreaterOrEqual(t, dropped.Load(), int64(8))
}

func TestPoolStartTwice(t *testing.T) {
	p, err := newPool("test", 1, DrainAll, nil, func(int) {}, nil)
	require.NoError(t, err)
	require.NoError(t, p.Start())
	assert.Error(t, p.Start())
	require.NoError(t, p.Shutdown())
}

func TestPoolRejectsBadSizing(t *testing.T) {
	_, err := newPool("test", 0, DrainAll, nil, func(int) {}, nil)
	assert.Error(t, err)

	_, err = newPool[int]("test", 1, DrainAll, nil, nil, nil)
	assert.Error(t, err)
}
