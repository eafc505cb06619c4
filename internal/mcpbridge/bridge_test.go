package mcpbridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/veda/internal/agent"
	"github.com/ShayCichocki/veda/internal/ipc"
)

type recordingSender struct {
	sent  []ipc.Command
	reply ipc.Reply
	err   error
}

func (s *recordingSender) Send(ctx context.Context, cmd ipc.Command) (ipc.Reply, error) {
	s.sent = append(s.sent, cmd)
	return s.reply, s.err
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return text.Text
}

func TestSpawn_AddressesOwnInstance(t *testing.T) {
	s := &recordingSender{reply: ipc.Reply{OK: true, Message: "Coordinating 3 new instance(s) for task: docs"}}
	b := New(s, "sess", "2b7c9d1e-0000-4000-8000-000000000001")

	res, err := b.handleSpawn(context.Background(), call(map[string]any{
		"task_description": "docs",
		"num_instances":    float64(3),
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "Coordinating 3 new instance(s) for task: docs", resultText(t, res))

	require.Len(t, s.sent, 1)
	cmd, ok := s.sent[0].(ipc.SpawnInstances)
	require.True(t, ok)
	assert.Equal(t, "sess", cmd.SessionID)
	assert.Equal(t, 3, cmd.NumInstances)
	require.NotNil(t, cmd.TargetInstanceID)
	assert.Equal(t, "2b7c9d1e-0000-4000-8000-000000000001", *cmd.TargetInstanceID)
}

func TestSpawn_Defaults(t *testing.T) {
	s := &recordingSender{reply: ipc.Reply{OK: true}}
	b := New(s, "sess", "")

	_, err := b.handleSpawn(context.Background(), call(map[string]any{"task_description": "tests"}))
	require.NoError(t, err)

	cmd := s.sent[0].(ipc.SpawnInstances)
	assert.Equal(t, ipc.DefaultSpawnCount, cmd.NumInstances)
	assert.Nil(t, cmd.TargetInstanceID)
}

func TestSpawn_InvalidArguments(t *testing.T) {
	s := &recordingSender{}
	b := New(s, "sess", "")

	res, err := b.handleSpawn(context.Background(), call(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = b.handleSpawn(context.Background(), call(map[string]any{"task_description": "x", "num_instances": float64(0)}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Empty(t, s.sent)
}

func TestClose_ReplyErrorBecomesToolError(t *testing.T) {
	s := &recordingSender{reply: ipc.Reply{OK: false, Error: "cannot close the main instance: Veda-1"}}
	b := New(s, "sess", "")

	res, err := b.handleClose(context.Background(), call(map[string]any{"instance_name": " Veda-1 "}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "main instance")
	assert.Equal(t, "Veda-1", s.sent[0].(ipc.CloseInstance).InstanceName)
}

func TestList_TransportError(t *testing.T) {
	s := &recordingSender{err: errors.New("connect: no such file")}
	b := New(s, "sess", "")

	res, err := b.handleList(context.Background(), call(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "no such file")
	assert.IsType(t, ipc.ListInstances{}, s.sent[0])
}

func TestFromEnv(t *testing.T) {
	env := map[string]string{}
	getenv := func(k string) string { return env[k] }

	_, err := FromEnv(getenv)
	assert.ErrorIs(t, err, ErrNoSession)

	env[agent.EnvSessionID] = "abc"
	env[agent.EnvTargetInstanceID] = "id-1"
	b, err := FromEnv(getenv)
	require.NoError(t, err)
	assert.Equal(t, "abc", b.sessionID)
	assert.Equal(t, "id-1", b.targetID)
}

func TestServer_ListsTools(t *testing.T) {
	s := New(&recordingSender{}, "sess", "").Server("test")
	resp := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	for _, name := range []string{ToolSpawnInstances, ToolListInstances, ToolCloseInstance} {
		assert.Contains(t, string(data), name)
	}
}
