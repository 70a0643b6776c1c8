package eventbus

import "sync"

// tap forwards events into a buffered channel. Delivery is non-blocking: when
// the subscriber lags behind, events are dropped.
type tap struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func (t *tap) Handle(e Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	select {
	case t.ch <- e:
	default:
	}
	return nil
}

func (t *tap) close() {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.ch)
	}
	t.mu.Unlock()
}

// Subscribe registers a channel subscriber for the given names, or for every
// supported name when none is given. The returned cancel function unregisters
// the subscriber and closes its channel.
func (b *Bus) Subscribe(buffer int, names ...Name) (<-chan Event, func(), error) {
	if len(names) == 0 {
		names = b.Supported()
	}
	for _, n := range names {
		if err := b.validate(n); err != nil {
			return nil, nil, err
		}
	}
	if buffer <= 0 {
		buffer = 8
	}
	t := &tap{ch: make(chan Event, buffer)}
	for _, n := range names {
		// names are validated above, Register cannot fail here
		_ = b.Register(n, t)
	}
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			for _, n := range names {
				_ = b.Unregister(n, t)
			}
			t.close()
		})
	}
	return t.ch, cancel, nil
}
