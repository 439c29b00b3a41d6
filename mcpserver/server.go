package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/schemahub/registry-mcp-go/internal/jsonrpc"
	"github.com/schemahub/registry-mcp-go/internal/logctx"
	"github.com/schemahub/registry-mcp-go/mcp"
)

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithServerInfo sets the implementation info advertised during initialize.
func WithServerInfo(name, version string) Option {
	return func(s *Server) {
		s.info = mcp.ImplementationInfo{Name: name, Version: version}
	}
}

// WithInstructions sets the optional usage instructions surfaced to the peer.
func WithInstructions(instructions string) Option {
	return func(s *Server) { s.instructions = instructions }
}

// Server routes decoded requests and notifications to the tools container.
// It satisfies the dispatcher's Server contract.
type Server struct {
	log          *slog.Logger
	info         mcp.ImplementationInfo
	instructions string
	tools        *ToolSet
}

// New constructs a Server serving the given tool set.
func New(tools *ToolSet, opts ...Option) *Server {
	s := &Server{
		log:   slog.Default(),
		info:  mcp.ImplementationInfo{Name: "registry-mcp", Version: "dev"},
		tools: tools,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleRequest processes one request and returns its result value. Protocol
// errors come back as *jsonrpc.Error so they reach the wire with their code
// intact.
func (s *Server) HandleRequest(ctx context.Context, req *jsonrpc.Request) (any, error) {
	switch mcp.Method(req.Method) {
	case mcp.InitializeMethod:
		var params mcp.InitializeRequest
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return nil, jsonrpc.NewError(jsonrpc.ErrorCodeInvalidParams, "invalid initialize params: %v", err)
			}
		}
		s.log.InfoContext(ctx, "session.initialize",
			slog.String("client", params.ClientInfo.Name),
			slog.String("client_version", params.ClientInfo.Version),
			slog.String("protocol_version", params.ProtocolVersion))
		return &mcp.InitializeResult{
			ProtocolVersion: mcp.ProtocolVersion,
			Capabilities:    mcp.ServerCapabilities{Tools: &mcp.ToolsServerCapability{}},
			ServerInfo:      s.info,
			Instructions:    s.instructions,
		}, nil

	case mcp.PingMethod:
		return struct{}{}, nil

	case mcp.ToolsListMethod:
		var params mcp.ListToolsRequest
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return nil, jsonrpc.NewError(jsonrpc.ErrorCodeInvalidParams, "invalid tools/list params: %v", err)
			}
		}
		tools, next := s.tools.List(params.Cursor)
		return &mcp.ListToolsResult{Tools: tools, NextCursor: next}, nil

	case mcp.ToolsCallMethod:
		var params mcp.CallToolRequest
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, jsonrpc.NewError(jsonrpc.ErrorCodeInvalidParams, "invalid tools/call params: %v", err)
		}
		ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: params.Name})
		s.log.InfoContext(ctx, "tool.call")
		return s.tools.Call(ctx, &params)

	default:
		return nil, jsonrpc.NewError(jsonrpc.ErrorCodeMethodNotFound, "method not found: %s", req.Method)
	}
}

// HandleNotification processes one notification. Unknown notifications are
// ignored: the peer expects no feedback channel for them.
func (s *Server) HandleNotification(ctx context.Context, req *jsonrpc.Request) error {
	switch mcp.Method(req.Method) {
	case mcp.InitializedNotificationMethod:
		s.log.InfoContext(ctx, "session.initialized")
	case mcp.CancelledNotificationMethod, mcp.ProgressNotificationMethod:
		s.log.DebugContext(ctx, "notification.ignored", slog.String("method", req.Method))
	default:
		s.log.DebugContext(ctx, "notification.unknown", slog.String("method", req.Method))
	}
	return nil
}
