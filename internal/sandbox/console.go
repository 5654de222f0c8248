package sandbox

import (
	"context"
	"sync"
	"time"

	"github.com/vk/sqlgrid/internal/console"
)

const (
	// consoleBuffer is how many undelivered lines a boundary holds before it
	// starts dropping new ones.
	consoleBuffer = 1024
	// consoleFlushTimeout bounds how long delivery of the remaining lines
	// may take once the worker has exited.
	consoleFlushTimeout = 250 * time.Millisecond
)

// consoleQueue decouples reading worker stderr from delivering lines to the
// request's console. Pushing never blocks; lines beyond the buffer are
// dropped and counted.
type consoleQueue struct {
	mu      sync.Mutex
	lines   []console.Line
	max     int
	dropped int
	closed  bool

	notify  chan struct{}
	closing chan struct{}
	flush   time.Duration
}

func newConsoleQueue(max int, flush time.Duration) *consoleQueue {
	return &consoleQueue{
		max:     max,
		flush:   flush,
		notify:  make(chan struct{}, 1),
		closing: make(chan struct{}),
	}
}

func (q *consoleQueue) push(l console.Line) {
	q.mu.Lock()
	if q.closed || len(q.lines) >= q.max {
		q.dropped++
		q.mu.Unlock()
		return
	}
	q.lines = append(q.lines, l)
	q.mu.Unlock()
	q.wake()
}

// close stops accepting lines and switches delivery to bounded flushing.
func (q *consoleQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.closing)
	q.wake()
}

func (q *consoleQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// next blocks until a line is queued. It reports false once the queue is
// closed and empty or ctx is done.
func (q *consoleQueue) next(ctx context.Context) (console.Line, bool) {
	for {
		q.mu.Lock()
		if len(q.lines) > 0 {
			l := q.lines[0]
			q.lines = q.lines[1:]
			q.mu.Unlock()
			return l, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return console.Line{}, false
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			return console.Line{}, false
		}
	}
}

// abandon drops l and everything still queued.
func (q *consoleQueue) abandon() {
	q.mu.Lock()
	q.dropped += len(q.lines) + 1
	q.lines = nil
	q.mu.Unlock()
}

// Dropped returns the number of lines that were never delivered.
func (q *consoleQueue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// deliver sends queued lines to out until the queue is closed and drained.
// While the worker runs a slow consumer only fills the buffer. After close
// each line gets at most the flush timeout, and the first timeout abandons
// the rest.
func (q *consoleQueue) deliver(ctx context.Context, out chan<- console.Line) {
	for {
		l, ok := q.next(ctx)
		if !ok {
			return
		}
		select {
		case out <- l:
			continue
		case <-ctx.Done():
			q.abandon()
			return
		case <-q.closing:
		}

		timer := time.NewTimer(q.flush)
		select {
		case out <- l:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			q.abandon()
			return
		case <-timer.C:
			q.abandon()
			return
		}
	}
}
