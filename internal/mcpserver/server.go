// Package mcpserver implements the stdio MCP surface of spec §4.G: it
// enumerates GitNexus's fifteen tools and two resources, and dispatches
// every tools/call through the validator, firewall, resilience kit, and
// bridge in that order. It generalizes the teacher's internal/mcp package
// (server.go/tools.go/schemas.go) from three hand-built tools backed by
// local SQLite storage to fifteen tools backed by a remote browser.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gitnexus/gateway/internal/bridge"
	"github.com/gitnexus/gateway/internal/registry"
	"github.com/gitnexus/gateway/internal/resilience"
)

const (
	ServerName    = "gitnexus-gateway"
	ServerVersion = "1.0.0"
)

// Server wraps the MCP protocol server with GitNexus's application
// dependencies: the bridge, the shared circuit breaker, and the resolved
// category timeouts.
type Server struct {
	mcp *server.MCPServer

	bridge    *bridge.Bridge
	breaker   *resilience.Breaker
	timeouts  resilience.Timeouts
	debug     bool
	agentName string
	logger    *slog.Logger
}

// New builds a Server and registers every tool and resource. agentName is
// the name resolved once at startup by config.Load (spec §4.I); every
// dispatched call and its request-scoped logger carry it as a field.
func New(br *bridge.Bridge, breaker *resilience.Breaker, timeouts resilience.Timeouts, debug bool, agentName string, logger *slog.Logger) *Server {
	s := &Server{
		bridge:    br,
		breaker:   breaker,
		timeouts:  timeouts,
		debug:     debug,
		agentName: agentName,
		logger:    logger,
	}

	s.mcp = server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithRecovery(),
	)

	s.registerTools()
	s.registerResources()
	return s
}

// Serve blocks on the stdio transport until the client disconnects or ctx
// is canceled.
func (s *Server) Serve(ctx context.Context) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}

func (s *Server) registerTools() {
	for _, d := range registry.All() {
		d := d
		s.mcp.AddTool(d.Tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return s.handleToolCall(ctx, d, req)
		})
	}
}

func requestID() string {
	return fmt.Sprintf("req-%d", time.Now().UnixNano())
}
