// Package mcpbridge exposes the IPC control channel to Claude subprocesses
// as MCP tools over stdio.
//
// Each instance's subprocess launches "veda mcp" as an MCP server. The
// server reads the session and instance ids from its environment and
// forwards every tool call to the orchestrator socket, addressed to the
// instance it belongs to.
package mcpbridge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ShayCichocki/veda/internal/agent"
	"github.com/ShayCichocki/veda/internal/ipc"
	"github.com/ShayCichocki/veda/internal/logging"
)

// Tool names.
const (
	ToolSpawnInstances = "veda_spawn_instances"
	ToolListInstances  = "veda_list_instances"
	ToolCloseInstance  = "veda_close_instance"
)

// ErrNoSession is returned when the session id is missing from the
// environment.
var ErrNoSession = errors.New(agent.EnvSessionID + " is not set; run inside a veda instance")

// Sender delivers a command to the orchestrator. *ipc.Client implements it.
type Sender interface {
	Send(ctx context.Context, cmd ipc.Command) (ipc.Reply, error)
}

// Bridge translates MCP tool calls into IPC commands.
type Bridge struct {
	client    Sender
	sessionID string
	// targetID is the id of the instance this bridge serves. Empty means
	// the orchestrator's main instance.
	targetID string
}

// New creates a Bridge for sessionID sending through client.
func New(client Sender, sessionID, targetID string) *Bridge {
	return &Bridge{client: client, sessionID: sessionID, targetID: targetID}
}

// FromEnv creates a Bridge from the ids set on instance subprocesses.
func FromEnv(getenv func(string) string) (*Bridge, error) {
	session := getenv(agent.EnvSessionID)
	if session == "" {
		return nil, ErrNoSession
	}
	client := ipc.NewClient(ipc.SocketPath(session))
	return New(client, session, getenv(agent.EnvTargetInstanceID)), nil
}

// Server builds the MCP server with the three instance tools registered.
func (b *Bridge) Server(version string) *server.MCPServer {
	s := server.NewMCPServer(
		"veda",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Tools for coordinating with sibling Claude Code instances in the same veda session."),
	)

	s.AddTool(mcp.NewTool(ToolSpawnInstances,
		mcp.WithDescription("Spawn additional Claude Code instances that split a task between them. Each new instance receives one scoped subtask."),
		mcp.WithString("task_description", mcp.Required(), mcp.Description("The overall task to divide between the new instances")),
		mcp.WithNumber("num_instances", mcp.Description("How many instances to spawn (default 2)")),
	), b.handleSpawn)

	s.AddTool(mcp.NewTool(ToolListInstances,
		mcp.WithDescription("List the active instances in this session with their state. Your own instance is marked [you]."),
	), b.handleList)

	s.AddTool(mcp.NewTool(ToolCloseInstance,
		mcp.WithDescription("Close an instance by name, e.g. Veda-3. The main instance and the last instance cannot be closed."),
		mcp.WithString("instance_name", mcp.Required(), mcp.Description("Name of the instance to close")),
	), b.handleClose)

	return s
}

// Serve runs the MCP server over stdio until stdin closes.
func (b *Bridge) Serve(version string) error {
	return server.ServeStdio(b.Server(version))
}

func (b *Bridge) target() *string {
	if b.targetID == "" {
		return nil
	}
	id := b.targetID
	return &id
}

func (b *Bridge) handleSpawn(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task, err := req.RequireString("task_description")
	if err != nil || strings.TrimSpace(task) == "" {
		return mcp.NewToolResultError("task_description is required"), nil
	}
	n := req.GetInt("num_instances", ipc.DefaultSpawnCount)
	if n < 1 {
		return mcp.NewToolResultError(fmt.Sprintf("num_instances must be at least 1, got %d", n)), nil
	}

	return b.send(ctx, ipc.SpawnInstances{
		SessionID:        b.sessionID,
		TaskDescription:  task,
		NumInstances:     n,
		TargetInstanceID: b.target(),
	})
}

func (b *Bridge) handleList(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return b.send(ctx, ipc.ListInstances{SessionID: b.sessionID, TargetInstanceID: b.target()})
}

func (b *Bridge) handleClose(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("instance_name")
	if err != nil || strings.TrimSpace(name) == "" {
		return mcp.NewToolResultError("instance_name is required"), nil
	}
	return b.send(ctx, ipc.CloseInstance{
		SessionID:        b.sessionID,
		InstanceName:     strings.TrimSpace(name),
		TargetInstanceID: b.target(),
	})
}

// send forwards cmd and maps the reply to a tool result. Orchestrator-side
// failures are tool errors, not protocol errors.
func (b *Bridge) send(ctx context.Context, cmd ipc.Command) (*mcp.CallToolResult, error) {
	log := logging.L().With(zap.String("command", string(cmd.Type())), zap.String("session", b.sessionID))
	reply, err := b.client.Send(ctx, cmd)
	if err != nil {
		log.Warn("control socket unreachable", zap.Error(err))
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !reply.OK {
		log.Debug("command rejected", zap.String("error", reply.Error))
		return mcp.NewToolResultError(reply.Error), nil
	}
	return mcp.NewToolResultText(reply.Message), nil
}
