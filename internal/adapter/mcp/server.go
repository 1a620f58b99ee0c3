// Package mcp exposes the agent pool over the Model Context Protocol so MCP
// clients can inspect agents, tasks, and pending approvals.
package mcp

import (
	"fmt"
	"log/slog"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hiveworks/hive/internal/engine"
)

// Server hosts the MCP tool surface over stdio.
type Server struct {
	mcpServer *mcpserver.MCPServer
	engine    *engine.Engine
}

// NewServer creates an MCP server exposing the engine's read surface.
func NewServer(eng *engine.Engine, version string) *Server {
	s := &Server{
		mcpServer: mcpserver.NewMCPServer("hive", version),
		engine:    eng,
	}
	s.registerTools()
	return s
}

// ServeStdio blocks serving MCP over stdin/stdout.
func (s *Server) ServeStdio() error {
	slog.Info("mcp server starting", "transport", "stdio")
	if err := mcpserver.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("mcp serve: %w", err)
	}
	return nil
}
