package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.listAgentsTool(),
		s.getAgentTool(),
		s.listTasksTool(),
		s.listChangesTool(),
		s.listPendingPermissionsTool(),
	)
}

func (s *Server) listAgentsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_agents",
		mcplib.WithDescription("List all agents in the pool with their status"),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListAgents,
	}
}

func (s *Server) getAgentTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_agent",
		mcplib.WithDescription("Get full details of an agent, including its messages and tasks"),
		mcplib.WithString("agent_id",
			mcplib.Required(),
			mcplib.Description("The agent ID to look up"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetAgent,
	}
}

func (s *Server) listTasksTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_tasks",
		mcplib.WithDescription("List an agent's tasks with status, progress and results"),
		mcplib.WithString("agent_id",
			mcplib.Required(),
			mcplib.Description("The agent whose tasks to list"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListTasks,
	}
}

func (s *Server) listChangesTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_changes",
		mcplib.WithDescription("List proposed code changes for an agent"),
		mcplib.WithString("agent_id",
			mcplib.Required(),
			mcplib.Description("The agent whose changes to list"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListChanges,
	}
}

func (s *Server) listPendingPermissionsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_pending_permissions",
		mcplib.WithDescription("List permission requests awaiting approval"),
		mcplib.WithString("agent_id",
			mcplib.Description("Optional agent ID filter"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListPendingPermissions,
	}
}

func (s *Server) handleListAgents(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	data, err := json.Marshal(s.engine.List(ctx))
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal agents", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}

func (s *Server) handleGetAgent(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	agentID, ok := req.GetArguments()["agent_id"].(string)
	if !ok || agentID == "" {
		return mcplib.NewToolResultError("agent_id is required"), nil
	}
	a, err := s.engine.Get(ctx, agentID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get agent %s", agentID), err,
		), nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal agent", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}

func (s *Server) handleListTasks(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	agentID, ok := req.GetArguments()["agent_id"].(string)
	if !ok || agentID == "" {
		return mcplib.NewToolResultError("agent_id is required"), nil
	}
	a, err := s.engine.Get(ctx, agentID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get agent %s", agentID), err,
		), nil
	}
	data, err := json.Marshal(a.Tasks)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal tasks", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}

func (s *Server) handleListChanges(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	agentID, ok := req.GetArguments()["agent_id"].(string)
	if !ok || agentID == "" {
		return mcplib.NewToolResultError("agent_id is required"), nil
	}
	changes, err := s.engine.ListChanges(ctx, agentID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to list changes for agent %s", agentID), err,
		), nil
	}
	data, err := json.Marshal(changes)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal changes", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}

func (s *Server) handleListPendingPermissions(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	agentID, _ := req.GetArguments()["agent_id"].(string)
	data, err := json.Marshal(s.engine.PendingRequests(agentID))
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal requests", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}
