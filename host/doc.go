// Package host defines the boundary contract with the host
// application's task-orchestration layer.
//
// The orchestration layer itself (creating, pausing, resuming agent
// tasks, persisting conversation history) is external to this
// subsystem. It interacts through two narrow surfaces: it feeds agent
// messages and task-lifecycle events into the Event Transformer, and it
// supplies a TaskCommandHandler callback that the Streaming Server
// invokes for inbound client commands.
package host
