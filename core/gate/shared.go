package gate

import (
	"context"
	"sync"
)

// Shared holds a value that readers use concurrently and that only exclusive
// operations may replace.
type Shared[T any] struct {
	gate *Gate
	mu   sync.RWMutex
	v    T
}

// NewShared guards v with g.
func NewShared[T any](g *Gate, v T) *Shared[T] {
	return &Shared[T]{gate: g, v: v}
}

// Gate returns the guarding gate.
func (s *Shared[T]) Gate() *Gate { return s.gate }

// Peek returns the current value without entering the gate.
func (s *Shared[T]) Peek() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v
}

// Read runs fn as a gate reader with the current value.
func (s *Shared[T]) Read(ctx context.Context, fn func(T) error) error {
	return s.gate.Read(ctx, func() error {
		return fn(s.Peek())
	})
}

// Exclusive runs fn with the current value once readers have drained. When fn
// succeeds its result replaces the held value.
func (s *Shared[T]) Exclusive(ctx context.Context, fn func(T) (T, error)) error {
	return s.gate.Exclusive(ctx, func() error {
		next, err := fn(s.Peek())
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.v = next
		s.mu.Unlock()
		return nil
	})
}
