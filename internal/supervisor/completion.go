package supervisor

import "sync"

// completion is the single-fire "run finished" event. The waiter, the
// timeout watcher and the interrupt path race to fire it; the first
// cause wins and later calls are ignored.
type completion struct {
	once  sync.Once
	done  chan struct{}
	cause Cause
}

func newCompletion() *completion {
	return &completion{done: make(chan struct{})}
}

// Fire records cause and closes Done. It reports whether this call won.
func (c *completion) Fire(cause Cause) bool {
	won := false
	c.once.Do(func() {
		c.cause = cause
		won = true
		close(c.done)
	})
	return won
}

// Done is closed once the event has fired.
func (c *completion) Done() <-chan struct{} {
	return c.done
}

// Cause returns the winning cause, or CauseNone before the event fires.
func (c *completion) Cause() Cause {
	select {
	case <-c.done:
		return c.cause
	default:
		return CauseNone
	}
}
