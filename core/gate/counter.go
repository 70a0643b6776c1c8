package gate

import "sync"

// Counter is a thread-safe counter exposing a waitable "is zero" signal that
// flips on every transition to and from zero.
type Counter struct {
	mu             sync.Mutex
	value          int
	allowBelowZero bool
	zero           *Signal
}

// CounterOption configures a Counter.
type CounterOption func(*Counter)

// WithInitial sets the starting value.
func WithInitial(v int) CounterOption {
	return func(c *Counter) { c.value = v }
}

// AllowBelowZero lets the counter go negative instead of clamping at zero.
func AllowBelowZero() CounterOption {
	return func(c *Counter) { c.allowBelowZero = true }
}

// NewCounter creates a counter, zero by default.
func NewCounter(opts ...CounterOption) *Counter {
	c := &Counter{}
	for _, opt := range opts {
		opt(c)
	}
	if !c.allowBelowZero && c.value < 0 {
		c.value = 0
	}
	c.zero = NewSignal(c.value == 0)
	return c
}

// Add adjusts the counter by n and returns the new value.
func (c *Counter) Add(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value += n
	if !c.allowBelowZero && c.value < 0 {
		c.value = 0
	}
	if c.value == 0 {
		c.zero.Set()
	} else {
		c.zero.Clear()
	}
	return c.value
}

// Inc increments the counter by one.
func (c *Counter) Inc() int { return c.Add(1) }

// Dec decrements the counter by one.
func (c *Counter) Dec() int { return c.Add(-1) }

// Value returns the current value.
func (c *Counter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Zero returns the signal that is set while the value is zero.
func (c *Counter) Zero() *Signal { return c.zero }

// Hold increments the counter and returns a function undoing it. The returned
// function is safe to call more than once.
func (c *Counter) Hold() (release func()) {
	c.Inc()
	var once sync.Once
	return func() { once.Do(func() { c.Dec() }) }
}
