package amqpio

import (
	"context"
	"sync"
)

// mailbox collects callbacks posted by workers until DoWork drains them on
// the caller's goroutine.
type mailbox struct {
	mu      sync.Mutex
	pending []func()
}

func (m *mailbox) post(fn func()) {
	m.mu.Lock()
	m.pending = append(m.pending, fn)
	m.mu.Unlock()
}

// drain runs the callbacks posted so far in order and returns how many ran.
// Callbacks posted while draining wait for the next drain.
func (m *mailbox) drain() int {
	m.mu.Lock()
	batch := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
	return len(batch)
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// worker runs blocking operations one at a time, in submission order.
type worker struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	queue    []func(context.Context)
	stopping bool
	wake     chan struct{}
}

func newWorker(parent context.Context, wg *sync.WaitGroup) *worker {
	ctx, cancel := context.WithCancel(parent)
	w := &worker{
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.run()
	}()
	return w
}

// submit queues op. It reports false once the worker is stopping.
func (w *worker) submit(op func(context.Context)) bool {
	w.mu.Lock()
	if w.stopping {
		w.mu.Unlock()
		return false
	}
	w.queue = append(w.queue, op)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

// stop lets queued operations finish, then exits. It does not wait.
func (w *worker) stop() {
	w.mu.Lock()
	w.stopping = true
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *worker) run() {
	defer w.cancel()

	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			stopping := w.stopping
			w.mu.Unlock()
			if stopping {
				return
			}
			select {
			case <-w.wake:
			case <-w.ctx.Done():
				return
			}
			continue
		}
		op := w.queue[0]
		w.queue[0] = nil
		w.queue = w.queue[1:]
		w.mu.Unlock()

		if w.ctx.Err() != nil {
			return
		}
		op(w.ctx)
	}
}
