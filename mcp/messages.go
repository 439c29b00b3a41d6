package mcp

// Method is an MCP method identifier used in JSON-RPC messages.
type Method string

// Lifecycle
const (
	InitializeMethod              Method = "initialize"
	InitializedNotificationMethod Method = "notifications/initialized"
	PingMethod                    Method = "ping"
)

// Tools
const (
	ToolsListMethod Method = "tools/list"
	ToolsCallMethod Method = "tools/call"
)

// Utility notifications the peer may emit; accepted and ignored.
const (
	CancelledNotificationMethod Method = "notifications/cancelled"
	ProgressNotificationMethod  Method = "notifications/progress"
)

// ProtocolVersion is the protocol revision this server implements. The
// HTTP+SSE endpoint-event wire shape belongs to this revision.
const ProtocolVersion = "2024-11-05"
