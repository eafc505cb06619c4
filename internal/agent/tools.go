package agent

import (
	"encoding/json"
	"path/filepath"
	"strings"
)

// DescribeTool renders a tool invocation as a short human-readable action
// such as "Reading auth.go".
func DescribeTool(name string, params json.RawMessage) string {
	if name == "" {
		return ""
	}

	var input map[string]any
	if len(params) > 0 {
		_ = json.Unmarshal(params, &input)
	}
	str := func(key string) string {
		s, _ := input[key].(string)
		return s
	}

	switch name {
	case "Read":
		if path := str("file_path"); path != "" {
			return "Reading " + truncate(filepath.Base(path), 20)
		}
		return "Reading file"
	case "Edit", "MultiEdit":
		if path := str("file_path"); path != "" {
			return "Editing " + truncate(filepath.Base(path), 20)
		}
		return "Editing file"
	case "Write":
		if path := str("file_path"); path != "" {
			return "Writing " + truncate(filepath.Base(path), 20)
		}
		return "Writing file"
	case "Bash":
		if cmd := str("command"); cmd != "" {
			return "Running " + truncate(firstWord(cmd), 20)
		}
		return "Running command"
	case "Glob":
		if pattern := str("pattern"); pattern != "" {
			return "Searching " + pattern
		}
		return "Searching files"
	case "Grep":
		if pattern := str("pattern"); pattern != "" {
			return "Grep " + truncate(pattern, 15)
		}
		return "Searching code"
	case "WebFetch":
		return "Fetching URL"
	case "Task":
		return "Running subagent"
	}

	if strings.HasPrefix(name, "mcp__") {
		parts := strings.Split(name, "__")
		return "Calling " + parts[len(parts)-1]
	}
	return name
}

func firstWord(s string) string {
	if i := strings.IndexAny(s, " \n"); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}
