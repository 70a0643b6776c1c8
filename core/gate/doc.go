// Package gate implements the access gate shared by every engine component.
//
// A Gate lets any number of readers use a shared resource concurrently while
// an exclusive caller can close the gate, wait for active readers to drain,
// mutate the resource and reopen the gate. Readers arriving while an exclusive
// operation is pending block until it completes. Exclusive callers are
// serialised: the "wait until no exclusive operation, then claim it" step is a
// single check-and-set under the gate mutex.
//
// Every wait is a channel wait that honours context cancellation, nothing
// polls.
package gate
