package remotesync

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hyperengineering/goalboard/internal/types"
)

// SaveFunc persists one patch.
type SaveFunc func(ctx context.Context, p types.Patch) error

// Writer is an ordered write-back queue between store mutations and Save.
//
// Enqueue never blocks. A single goroutine saves patches in FIFO order and
// reports each outcome to the result callback. Failed saves are not retried.
type Writer struct {
	save     SaveFunc
	onResult func(types.Patch, error)
	ctx      context.Context

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []types.Patch
	pending int
	closed  bool
	done    chan struct{}
}

// NewWriter starts a writer. onResult may be nil.
func NewWriter(ctx context.Context, save SaveFunc, onResult func(types.Patch, error)) *Writer {
	w := &Writer{
		save:     save,
		onResult: onResult,
		ctx:      context.WithoutCancel(ctx),
		done:     make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	go w.loop()
	return w
}

// Enqueue adds p to the queue. Patches enqueued after Close are dropped.
func (w *Writer) Enqueue(p types.Patch) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		slog.Warn("write after close dropped", "component", "remotesync", "action", "enqueue")
		return
	}
	w.queue = append(w.queue, p)
	w.pending++
	w.cond.Broadcast()
}

func (w *Writer) loop() {
	defer close(w.done)
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.closed {
			w.cond.Wait()
		}
		if len(w.queue) == 0 {
			w.mu.Unlock()
			return
		}
		p := w.queue[0]
		w.queue[0] = types.Patch{}
		w.queue = w.queue[1:]
		w.mu.Unlock()

		err := w.save(w.ctx, p)
		if err != nil {
			slog.Warn("write-back failed", "component", "remotesync", "action", "save", "error", err)
		}
		if w.onResult != nil {
			w.onResult(p, err)
		}

		w.mu.Lock()
		w.pending--
		w.cond.Broadcast()
		w.mu.Unlock()
	}
}

// Flush blocks until every patch enqueued so far has been saved or failed.
func (w *Writer) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.pending > 0 {
		w.cond.Wait()
	}
}

// Pending returns the number of patches not yet saved.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending
}

// Close stops accepting patches, drains the queue and waits for the goroutine.
func (w *Writer) Close() {
	w.mu.Lock()
	w.closed = true
	w.cond.Broadcast()
	w.mu.Unlock()
	<-w.done
}
