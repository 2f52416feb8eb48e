package amqpio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMailboxDrainsInOrder(t *testing.T) {
	var box mailbox
	var got []int
	for i := 0; i < 3; i++ {
		box.post(func() { got = append(got, i) })
	}
	assert.Equal(t, 3, box.len())

	assert.Equal(t, 3, box.drain())
	assert.Equal(t, []int{0, 1, 2}, got)
	assert.Equal(t, 0, box.drain())
}

func TestMailboxDefersReentrantPosts(t *testing.T) {
	var box mailbox
	ran := 0
	box.post(func() {
		ran++
		box.post(func() { ran++ })
	})

	assert.Equal(t, 1, box.drain())
	assert.Equal(t, 1, ran)
	assert.Equal(t, 1, box.drain())
	assert.Equal(t, 2, ran)
}

func TestWorkerRunsSerially(t *testing.T) {
	defer goleak.VerifyNone(t)

	var wg sync.WaitGroup
	w := newWorker(context.Background(), &wg)

	var mu sync.Mutex
	var order []int
	active := 0
	for i := 0; i < 10; i++ {
		require.True(t, w.submit(func(context.Context) {
			mu.Lock()
			active++
			assert.Equal(t, 1, active)
			order = append(order, i)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}))
	}
	w.stop()
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
	assert.False(t, w.submit(func(context.Context) {}))
}
