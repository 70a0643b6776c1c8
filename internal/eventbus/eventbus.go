package eventbus

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/kilianp07/etr/core/logger"
	"github.com/kilianp07/etr/core/monitoring"
)

// Name identifies an event kind.
type Name string

// Event is an immutable notification: a name plus positional and keyword
// arguments.
type Event struct {
	Name   Name
	Args   []any
	Kwargs map[string]any
}

// Arg returns the i-th positional argument or nil.
func (e Event) Arg(i int) any {
	if i < 0 || i >= len(e.Args) {
		return nil
	}
	return e.Args[i]
}

// Kwarg returns the keyword argument k or nil.
func (e Event) Kwarg(k string) any {
	return e.Kwargs[k]
}

// Handler reacts to events. Handlers are compared by identity, so they must be
// of a comparable type (pointers are the usual choice).
type Handler interface {
	Handle(Event) error
}

type funcHandler struct {
	fn func(Event) error
}

func (h *funcHandler) Handle(e Event) error { return h.fn(e) }

// Func wraps fn into a Handler. Each call returns a distinct handler, keep the
// returned value to unregister it later.
func Func(fn func(Event) error) Handler {
	return &funcHandler{fn: fn}
}

// ErrUnsupportedEvent is matched by every UnsupportedEventError.
var ErrUnsupportedEvent = errors.New("event not supported")

// UnsupportedEventError reports a name outside the bus's supported set.
type UnsupportedEventError struct {
	Name Name
}

func (e *UnsupportedEventError) Error() string {
	return fmt.Sprintf("event %s not supported", e.Name)
}

func (e *UnsupportedEventError) Unwrap() error { return ErrUnsupportedEvent }

// HandlerError wraps the failure of a single handler invocation. Panics are
// recovered and reported as HandlerErrors too.
type HandlerError struct {
	Name  Name
	Index int
	Err   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %d for %s: %v", e.Index, e.Name, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Option configures a Bus.
type Option func(*Bus)

// WithStrict makes the first failing handler abort the raise and propagate
// its error.
func WithStrict(strict bool) Option {
	return func(b *Bus) { b.strict = strict }
}

// WithLogger sets the logger used to report isolated handler failures.
func WithLogger(l logger.Logger) Option {
	return func(b *Bus) { b.log = logger.OrNop(l) }
}

// Bus is a registry of handlers keyed by event name.
type Bus struct {
	names     []Name
	supported map[Name]struct{}
	strict    bool
	log       logger.Logger

	mu       sync.RWMutex
	handlers map[Name][]Handler
}

// New creates a bus accepting exactly the given event names.
func New(supported []Name, opts ...Option) *Bus {
	b := &Bus{
		names:     append([]Name(nil), supported...),
		supported: make(map[Name]struct{}, len(supported)),
		log:       logger.Nop{},
		handlers:  make(map[Name][]Handler),
	}
	for _, n := range supported {
		b.supported[n] = struct{}{}
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Supported returns the event names accepted by the bus.
func (b *Bus) Supported() []Name {
	return append([]Name(nil), b.names...)
}

// Strict reports whether handler failures propagate.
func (b *Bus) Strict() bool { return b.strict }

func (b *Bus) validate(name Name) error {
	if _, ok := b.supported[name]; !ok {
		return &UnsupportedEventError{Name: name}
	}
	return nil
}

// Register adds h to the handlers of name. Registering the same handler twice
// is a no-op.
func (b *Bus) Register(name Name, h Handler) error {
	if err := b.validate(name); err != nil {
		return err
	}
	if h == nil {
		return fmt.Errorf("register %s: nil handler", name)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.handlers[name] {
		if sameHandler(existing, h) {
			return nil
		}
	}
	b.handlers[name] = append(b.handlers[name], h)
	return nil
}

// Unregister removes h from the handlers of name. Unknown handlers are ignored.
func (b *Bus) Unregister(name Name, h Handler) error {
	if err := b.validate(name); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.handlers[name]
	for i, existing := range list {
		if sameHandler(existing, h) {
			b.handlers[name] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

// Raise invokes the handlers of name with positional arguments.
func (b *Bus) Raise(name Name, args ...any) error {
	return b.RaiseKw(name, nil, args...)
}

// RaiseKw invokes the handlers of name with keyword and positional arguments.
// Handlers run synchronously on the calling goroutine in registration order.
func (b *Bus) RaiseKw(name Name, kwargs map[string]any, args ...any) error {
	if err := b.validate(name); err != nil {
		return err
	}
	b.mu.RLock()
	list := append([]Handler(nil), b.handlers[name]...)
	b.mu.RUnlock()

	ev := Event{Name: name, Args: args, Kwargs: kwargs}
	for i, h := range list {
		if err := invoke(h, ev); err != nil {
			herr := &HandlerError{Name: name, Index: i, Err: err}
			if b.strict {
				return herr
			}
			b.log.Errorf("%v", herr)
			monitoring.CaptureException(herr, map[string]string{"module": "eventbus", "event": string(name)})
		}
	}
	return nil
}

func invoke(h Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = fmt.Errorf("panic: %w", e)
			} else {
				err = fmt.Errorf("panic: %v", r)
			}
		}
	}()
	return h.Handle(ev)
}

func sameHandler(a, b Handler) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
