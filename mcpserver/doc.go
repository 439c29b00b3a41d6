// Package mcpserver owns the MCP semantics the dispatcher delegates to:
// session initialization, ping, and the tools capability backed by a typed
// tool container. It is transport-agnostic; transports and the dispatcher
// never appear in its API.
package mcpserver
