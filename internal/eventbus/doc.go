// Package eventbus provides a synchronous publish/subscribe bus over a closed
// set of event names.
//
// Handlers are invoked in registration order on the raising goroutine. A bus
// either isolates handler failures (they are logged and reported, remaining
// handlers still run) or, in strict mode, stops at the first failure and
// returns it to the caller. Channel subscriptions are layered on top of the
// handler registry for consumers that prefer to receive events asynchronously.
package eventbus
