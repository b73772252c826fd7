// Package events carries job status change notifications between the stores
// that write status and the completion waiters that block on it.
//
// The primary components are:
// - StatusChangedEvent: emitted after every status write
// - Broadcaster: delivers events to registered handlers in-process
// - Hub: turns events into per-repository wake-up signals
package events
