package daemon

import (
	"sync"
	"sync/atomic"
)

// Coordinator carries the process-wide exit signal. It is triggered once,
// either by the EXIT command or by a termination signal.
type Coordinator struct {
	once   sync.Once
	done   chan struct{}
	code   atomic.Int64
	reason atomic.Value // string
}

// NewCoordinator creates an untriggered coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{done: make(chan struct{})}
}

// Trigger sets the exit flag and releases everything waiting on Done.
// Only the first call has an effect; it reports whether this call won.
func (c *Coordinator) Trigger(code int64, reason string) bool {
	fired := false
	c.once.Do(func() {
		c.code.Store(code)
		c.reason.Store(reason)
		close(c.done)
		fired = true
	})
	return fired
}

// Done is closed once Trigger has been called.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Triggered reports whether shutdown has been requested.
func (c *Coordinator) Triggered() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Code returns the exit flag passed to Trigger.
func (c *Coordinator) Code() int64 { return c.code.Load() }

// Reason returns the reason passed to Trigger, or "".
func (c *Coordinator) Reason() string {
	r, _ := c.reason.Load().(string)
	return r
}
