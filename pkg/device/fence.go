package device

import "sync"

// fence is resolved once the hardware has executed a batch or faulted
type fence struct {
	batch uint64
	done  chan struct{}
	err   error
}

// wait blocks until the fence is resolved. It cannot be interrupted.
func (f *fence) wait() error {
	<-f.done
	return f.err
}

// completions tracks in-flight batches in submission order. The interrupt
// path only calls complete and fail, which never block.
type completions struct {
	mu      sync.Mutex
	pending []*fence
	fault   error
}

// arm registers a fence for a batch about to be published
func (c *completions) arm(batch uint64) (*fence, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fault != nil {
		return nil, c.fault
	}
	f := &fence{batch: batch, done: make(chan struct{})}
	c.pending = append(c.pending, f)
	return f, nil
}

// complete resolves the oldest pending fence
func (c *completions) complete() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) == 0 {
		return
	}
	f := c.pending[0]
	c.pending[0] = nil
	c.pending = c.pending[1:]
	close(f.done)
}

// fail resolves every pending fence with err and keeps failing later arms
func (c *completions) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fault == nil {
		c.fault = err
	}
	for _, f := range c.pending {
		f.err = c.fault
		close(f.done)
	}
	c.pending = nil
}

// inflight returns the number of unresolved fences
func (c *completions) inflight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
