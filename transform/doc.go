// Package transform maps internal agent messages and task-lifecycle
// events into Stream Events carrying normalized Content Envelopes.
//
// The mapping is pure aside from diagnostic logging: a Transformer
// holds no mutable state and is safe for concurrent use across
// messages. Every entry point degrades gracefully — malformed payloads
// and unrecognized categories produce placeholder or error events, and
// never a fault in the caller.
package transform
