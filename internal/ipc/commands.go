// Package ipc implements the local control channel used by instances to
// spawn, list and close sibling instances.
package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// CommandType is the wire discriminator of a Command.
type CommandType string

const (
	TypeSpawnInstances CommandType = "spawn_instances"
	TypeListInstances  CommandType = "list_instances"
	TypeCloseInstance  CommandType = "close_instance"
)

// DefaultSpawnCount is used when a spawn command omits num_instances.
const DefaultSpawnCount = 2

// Command is a decoded IPC command. Implementations are SpawnInstances,
// ListInstances and CloseInstance.
type Command interface {
	Type() CommandType
	// Target returns the optional addressee id exactly as sent.
	Target() *string
	// Session returns the session the sender belongs to.
	Session() string
	sealed()
}

// SpawnInstances asks for new instances working on TaskDescription.
type SpawnInstances struct {
	SessionID        string  `json:"session_id"`
	TaskDescription  string  `json:"task_description"`
	NumInstances     int     `json:"num_instances"`
	TargetInstanceID *string `json:"target_instance_id,omitempty"`
}

// ListInstances asks for the current instances.
type ListInstances struct {
	SessionID        string  `json:"session_id"`
	TargetInstanceID *string `json:"target_instance_id,omitempty"`
}

// CloseInstance asks for the instance named InstanceName to be closed.
type CloseInstance struct {
	SessionID        string  `json:"session_id"`
	InstanceName     string  `json:"instance_name"`
	TargetInstanceID *string `json:"target_instance_id,omitempty"`
}

func (SpawnInstances) Type() CommandType { return TypeSpawnInstances }
func (ListInstances) Type() CommandType  { return TypeListInstances }
func (CloseInstance) Type() CommandType  { return TypeCloseInstance }

func (c SpawnInstances) Target() *string { return c.TargetInstanceID }
func (c ListInstances) Target() *string  { return c.TargetInstanceID }
func (c CloseInstance) Target() *string  { return c.TargetInstanceID }

func (c SpawnInstances) Session() string { return c.SessionID }
func (c ListInstances) Session() string  { return c.SessionID }
func (c CloseInstance) Session() string  { return c.SessionID }

func (SpawnInstances) sealed() {}
func (ListInstances) sealed()  {}
func (CloseInstance) sealed()  {}

// ErrInvalidCommand wraps every decode and validation failure.
var ErrInvalidCommand = errors.New("invalid command")

// Decode parses one JSON command object.
func Decode(data []byte) (Command, error) {
	var head struct {
		Type CommandType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	switch head.Type {
	case TypeSpawnInstances:
		var c SpawnInstances
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
		if strings.TrimSpace(c.TaskDescription) == "" {
			return nil, fmt.Errorf("%w: task_description is required", ErrInvalidCommand)
		}
		if c.NumInstances < 0 {
			return nil, fmt.Errorf("%w: num_instances must be positive", ErrInvalidCommand)
		}
		if c.NumInstances == 0 {
			c.NumInstances = DefaultSpawnCount
		}
		return c, nil
	case TypeListInstances:
		var c ListInstances
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
		return c, nil
	case TypeCloseInstance:
		var c CloseInstance
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
		if strings.TrimSpace(c.InstanceName) == "" {
			return nil, fmt.Errorf("%w: instance_name is required", ErrInvalidCommand)
		}
		return c, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrInvalidCommand)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, head.Type)
	}
}

// Encode serializes cmd with its type discriminator.
func Encode(cmd Command) ([]byte, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	typ, _ := json.Marshal(cmd.Type())
	fields["type"] = typ
	return json.Marshal(fields)
}

// Reply is the response to one command.
type Reply struct {
	OK        bool              `json:"ok"`
	Message   string            `json:"message,omitempty"`
	Error     string            `json:"error,omitempty"`
	Instances []InstanceSummary `json:"instances,omitempty"`
}

// InstanceSummary is one entry of a list reply.
type InstanceSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	State   string `json:"state"`
	Main    bool   `json:"main,omitempty"`
	Current bool   `json:"current,omitempty"`
}

// Failure builds an error Reply.
func Failure(err error) Reply {
	return Reply{OK: false, Error: err.Error()}
}
