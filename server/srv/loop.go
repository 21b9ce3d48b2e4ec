package srv

import (
	"context"
	"errors"
	"time"

	"layeredge/server/surge"
)

// ErrLoopStopped is returned by Do once the loop has exited.
var ErrLoopStopped = errors.New("srv: event loop stopped")

// Loop runs posted tasks one at a time on a single goroutine. Registry,
// market, surge and viral state is only touched from inside a task.
type Loop struct {
	tasks chan func()
	done  chan struct{}
}

func NewLoop(size int) *Loop {
	if size <= 0 {
		size = 1024
	}
	return &Loop{tasks: make(chan func(), size), done: make(chan struct{})}
}

// Run executes tasks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Post queues fn. It must not be called from inside a task while the queue
// is full; timers and connections post from their own goroutines.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}
	select {
	case l.tasks <- task:
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} { return l.done }

// loopClock fires timer callbacks as loop tasks.
type loopClock struct {
	loop *Loop
}

// NewClock returns a surge.Clock whose callbacks run on l.
func NewClock(l *Loop) surge.Clock {
	return loopClock{loop: l}
}

func (c loopClock) Now() time.Time { return time.Now() }

func (c loopClock) AfterFunc(d time.Duration, f func()) surge.Timer {
	return time.AfterFunc(d, func() { c.loop.Post(f) })
}
