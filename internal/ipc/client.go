package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Client sends commands to a running orchestrator.
type Client struct {
	path    string
	timeout time.Duration
}

// NewClient creates a Client for the socket at path.
func NewClient(path string) *Client {
	return &Client{path: path, timeout: 30 * time.Second}
}

// Send writes cmd and waits for its reply.
func (c *Client) Send(ctx context.Context, cmd Command) (Reply, error) {
	data, err := Encode(cmd)
	if err != nil {
		return Reply{}, fmt.Errorf("encode command: %w", err)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.path)
	if err != nil {
		return Reply{}, fmt.Errorf("connect to orchestrator at %s: %w", c.path, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	if _, err := conn.Write(append(data, '\n')); err != nil {
		return Reply{}, fmt.Errorf("write command: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return Reply{}, fmt.Errorf("read reply: %w", err)
	}

	var reply Reply
	if err := json.Unmarshal(line, &reply); err != nil {
		return Reply{}, fmt.Errorf("decode reply: %w", err)
	}
	return reply, nil
}
