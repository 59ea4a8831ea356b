// Package stream owns the WebSocket listener, the connection registry,
// the heartbeat timer, and inbound-command dispatch.
//
// A Server is constructed explicitly and torn down explicitly; there is
// no ambient global registry, so independent instances can coexist in
// tests. Broadcast is best-effort at-most-once: a failed write is
// treated as proof of death and the connection is removed inline
// without aborting delivery to the remaining peers.
package stream
