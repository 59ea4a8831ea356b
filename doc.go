// Package roocodeserver provides the real-time event-distribution
// subsystem for the Roo Code host application.
//
// The subsystem does two things:
//
//  1. Runs a WebSocket endpoint that accepts client connections and lets
//     the host push a continuous stream of agent-activity events to them.
//  2. Normalizes heterogeneous internal agent messages and task-lifecycle
//     notifications into a single, stable, role-tagged content envelope
//     format that external consumers can parse uniformly.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│          Host Adapter               │  task orchestration,
//	│   (excluded, boundary in host/)     │  command handler callback
//	└──────────────┬──────────────────────┘
//	               │ internal messages / task events
//	               ↓
//	┌─────────────────────────────────────┐
//	│        Event Transformer            │  transform/
//	│  (pure category-table mapping)      │
//	└──────────────┬──────────────────────┘
//	               │ Stream Events
//	               ↓
//	┌─────────────────────────────────────┐
//	│        Streaming Server             │  stream/
//	│  (listener, connection registry,    │
//	│   heartbeat, command dispatch)      │
//	└──────────────┬──────────────────────┘
//	               │ one JSON frame per write
//	               ↓
//	         WebSocket clients
//
// # Packages
//
//   - message: Content Envelope model, Stream Event, wire frames
//   - host: boundary contract with the host's orchestration layer
//   - transform: internal message → Stream Event mapping
//   - stream: WebSocket server, connection registry, heartbeat
//   - config: server configuration, defaults, partial updates
//   - metric: Prometheus metrics registry and HTTP handler
//   - errors: structured error handling
//
// Delivery is best-effort, at-most-once: there is no authentication,
// no acknowledged delivery, and no history replay for late joiners.
package roocodeserver
