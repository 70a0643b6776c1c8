// Package events defines the closed set of events raised by the engine and
// typed accessors for their arguments.
//
// Available events:
//   - ApiSwitched(isDemo): the backend handle was replaced
//   - CommandCompleted(id, name, result, ok, error): outcome of a remote command
//   - CredentialsRequired(): the backend rejected the current credential
//   - CredentialsResult(id, payload, ok, error): outcome of a credential load
//   - NewFramesReady(frames=...): one batch of frames per poll tick
//   - PollStarting(), PollStopping(), PollStopped(error=...): poller lifecycle
//   - RequestDemoApi(), RequestRealApi(): ask the owner to swap backends
package events
