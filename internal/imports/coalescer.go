package imports

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Coalescer holds inbox paths until they have been quiet for the debounce
// window, so a zip still being copied in is imported once, after the last write.
type Coalescer struct {
	window time.Duration
	clock  clock.Clock

	mu      sync.Mutex
	pending map[string]*pendingPath
	seq     uint64
	ready   chan string
	stopCh  chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

type pendingPath struct {
	timer *clock.Timer
	seq   uint64
}

// NewCoalescer creates a Coalescer. A nil clock uses wall time.
func NewCoalescer(window time.Duration, clk clock.Clock) *Coalescer {
	if clk == nil {
		clk = clock.New()
	}
	return &Coalescer{
		window:  window,
		clock:   clk,
		pending: make(map[string]*pendingPath),
		ready:   make(chan string, 256),
		stopCh:  make(chan struct{}),
	}
}

// Touch records activity on path and restarts its quiet period.
func (c *Coalescer) Touch(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	if p, ok := c.pending[path]; ok {
		p.timer.Stop()
	}
	c.seq++
	seq := c.seq
	timer := c.clock.AfterFunc(c.window, func() {
		c.emit(path, seq)
	})
	c.pending[path] = &pendingPath{timer: timer, seq: seq}
}

// Forget drops a pending path, typically because it was removed or moved away.
func (c *Coalescer) Forget(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.pending[path]; ok {
		p.timer.Stop()
		delete(c.pending, path)
	}
}

// Ready returns the channel of paths whose quiet period has elapsed.
func (c *Coalescer) Ready() <-chan string {
	return c.ready
}

// Pending returns the number of paths waiting out their quiet period.
func (c *Coalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Stop discards pending paths and closes the Ready channel.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	for path, p := range c.pending {
		p.timer.Stop()
		delete(c.pending, path)
	}
	close(c.stopCh)
	c.mu.Unlock()

	c.wg.Wait()
	close(c.ready)
}

func (c *Coalescer) emit(path string, seq uint64) {
	c.mu.Lock()
	// A timer superseded by a later Touch, or a forgotten path, is ignored.
	p, ok := c.pending[path]
	if c.stopped || !ok || p.seq != seq {
		c.mu.Unlock()
		return
	}
	delete(c.pending, path)
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	select {
	case c.ready <- path:
	case <-c.stopCh:
	}
}
