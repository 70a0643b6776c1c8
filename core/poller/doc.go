// Package poller implements the background loop refreshing vehicle state.
//
// Each tick enters the access gate as a reader, lists the vehicles, fetches
// the detail of every online vehicle in parallel and raises one
// NewFramesReady event with the combined frames. The loop is cooperative:
// Stop only sets a flag that is observed at the next tick boundary, timer
// wake-up or gate wait, in-flight backend calls are never interrupted.
package poller
