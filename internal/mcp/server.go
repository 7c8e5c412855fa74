// Package mcp exposes the built-in lyric tools as a Model Context Protocol
// server, built on the official MCP Go SDK
// (github.com/modelcontextprotocol/go-sdk).
//
// The server can be served over stdio for a single local client, or mounted
// on the HTTP API via [Server.Handler] for Streamable HTTP clients.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/chetanrakshe2510/karaoke-maker/internal/mcp/tools"
	"github.com/chetanrakshe2510/karaoke-maker/internal/observe"
)

const serverName = "karaoke-maker"

// Server wraps an SDK server with the registered tool set.
type Server struct {
	srv     *mcpsdk.Server
	metrics *observe.Metrics
	names   []string
}

// NewServer registers ts on a new MCP server. A nil m disables tool metrics.
// It returns an error when two tools share a name.
func NewServer(version string, ts []tools.Tool, m *observe.Metrics) (*Server, error) {
	s := &Server{
		srv:     mcpsdk.NewServer(&mcpsdk.Implementation{Name: serverName, Version: version}, nil),
		metrics: m,
	}
	seen := make(map[string]bool, len(ts))
	for _, t := range ts {
		if t.Name == "" || t.Handler == nil {
			return nil, fmt.Errorf("mcp: tool %q has no name or handler", t.Name)
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("mcp: duplicate tool %q", t.Name)
		}
		seen[t.Name] = true
		s.names = append(s.names, t.Name)

		s.srv.AddTool(&mcpsdk.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		}, s.handler(t))
	}
	return s, nil
}

// Tools returns the registered tool names in registration order.
func (s *Server) Tools() []string { return s.names }

// SDK returns the underlying SDK server.
func (s *Server) SDK() *mcpsdk.Server { return s.srv }

// Run serves a single client over stdin/stdout until ctx is done or the
// client disconnects.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("mcp server listening", "transport", TransportStdio, "tools", s.names)
	err := s.srv.Run(ctx, &mcpsdk.StdioTransport{})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handler serves the tools over Streamable HTTP.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s.srv }, nil)
}

// handler adapts a tool to the SDK's raw handler. Tool failures are returned
// as error results so the client sees the message; only protocol problems
// surface as Go errors.
func (s *Server) handler(t tools.Tool) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var args json.RawMessage
		if req.Params != nil {
			args = req.Params.Arguments
		}
		if t.DeclaredMax > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(t.DeclaredMax)*time.Millisecond)
			defer cancel()
		}

		start := time.Now()
		out, err := t.Handler(ctx, string(args))
		status := "ok"
		if err != nil {
			status = "error"
		}
		if s.metrics != nil {
			s.metrics.RecordToolCall(ctx, t.Name, status)
		}
		observe.Logger(ctx).Debug("mcp tool call", "tool", t.Name, "status", status, "duration", time.Since(start))

		if err != nil {
			return &mcpsdk.CallToolResult{
				IsError: true,
				Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
			}, nil
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: out}},
		}, nil
	}
}
