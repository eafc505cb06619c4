package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/ShayCichocki/veda/internal/protocol"
)

const (
	// EnvSessionID names the orchestrator session shared by every instance.
	EnvSessionID = "VEDA_SESSION_ID"
	// EnvTargetInstanceID names the id of the instance a subprocess belongs to.
	// It is set fresh for every spawn and never inherited from the parent.
	EnvTargetInstanceID = "VEDA_TARGET_INSTANCE_ID"
)

// StartOptions configures a single subprocess turn.
type StartOptions struct {
	// Binary is the CLI to execute. Defaults to "claude".
	Binary string
	// WorkDir is the subprocess working directory.
	WorkDir string
	// Model is passed with --model when set.
	Model string
	// MCPConfig is passed with --mcp-config when set.
	MCPConfig string
	// ResumeSessionID continues an earlier conversation with --resume.
	ResumeSessionID string
	// SystemPrompt is passed with --append-system-prompt when set.
	SystemPrompt string
	// Env is the complete environment for the subprocess.
	Env []string
}

// Runner is one subprocess turn producing protocol events.
type Runner interface {
	// Start launches the subprocess with the given prompt.
	Start(prompt string, opts StartOptions) error
	// Events delivers decoded events. It is closed after the process exits
	// and always carries a terminal event before closing.
	Events() <-chan protocol.Event
	// Wait blocks until the process has exited.
	Wait() error
	// Kill terminates the process immediately.
	Kill() error
	// Stderr returns captured stderr output.
	Stderr() string
	// PID returns the process id, or 0 if not started.
	PID() int
}

// Factory creates a Runner bound to ctx.
type Factory func(ctx context.Context) Runner

// Verify ClaudeProcess implements Runner at compile time.
var _ Runner = (*ClaudeProcess)(nil)

// SpawnError reports that an instance's subprocess could not be launched.
type SpawnError struct {
	Instance string
	Err      error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Instance, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// BuildEnv returns base with the session and instance variables replaced.
// Any inherited VEDA_TARGET_INSTANCE_ID is dropped.
func BuildEnv(base []string, sessionID, instanceID string) []string {
	env := make([]string, 0, len(base)+2)
	for _, kv := range base {
		if strings.HasPrefix(kv, EnvTargetInstanceID+"=") || strings.HasPrefix(kv, EnvSessionID+"=") {
			continue
		}
		env = append(env, kv)
	}
	if sessionID != "" {
		env = append(env, EnvSessionID+"="+sessionID)
	}
	env = append(env, EnvTargetInstanceID+"="+instanceID)
	return env
}

// buildArgs assembles the claude CLI arguments for one turn.
func buildArgs(prompt string, opts StartOptions) []string {
	args := []string{
		"-p", prompt,
		"--output-format", "stream-json",
		"--verbose",
	}
	if opts.MCPConfig != "" {
		args = append(args, "--mcp-config", opts.MCPConfig)
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.ResumeSessionID != "" {
		args = append(args, "--resume", opts.ResumeSessionID)
	}
	if opts.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", opts.SystemPrompt)
	}
	return args
}
