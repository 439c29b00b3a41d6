// Package mcp declares the Model Context Protocol wire types and method
// names used by this server. Only the surface this server speaks is modeled:
// session initialization and the tools capability.
package mcp
