package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/ShayCichocki/veda/internal/orchestrator"
)

// console is the subset of the orchestrator the headless mode drives.
type console interface {
	Events() <-chan orchestrator.Event
	Submit(text string) bool
	Done() <-chan struct{}
}

// runHeadless prints events to out and submits each line of in until ctx is
// cancelled, the orchestrator stops or in reaches EOF.
func runHeadless(ctx context.Context, c console, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	events := c.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			fmt.Fprintln(out, formatEvent(ev))
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if !c.Submit(line) {
				fmt.Fprintln(out, color.YellowString("⚠ input dropped: %s", line))
			}
		}
	}
}

// formatEvent renders one event as a coloured status line.
func formatEvent(ev orchestrator.Event) string {
	ts := ev.Timestamp.Format("15:04:05")
	text := ev.Message
	if text == "" {
		text = describeEvent(ev.Type)
	}
	if ev.InstanceName != "" {
		text = ev.InstanceName + ": " + text
	}

	symbol, attr := "•", color.FgCyan
	switch ev.Type {
	case orchestrator.EventSpawnFailed:
		symbol, attr = "✗", color.FgRed
	case orchestrator.EventInstanceSpawned, orchestrator.EventCoordinationFinished:
		symbol, attr = "✓", color.FgGreen
	case orchestrator.EventStallDetected:
		symbol, attr = "⚠", color.FgYellow
	}
	if ev.Error != nil {
		symbol, attr = "✗", color.FgRed
		text += " (" + ev.Error.Error() + ")"
	}
	return fmt.Sprintf("%s %s %s", color.New(color.FgHiBlack).Sprint(ts), color.New(attr).Sprint(symbol), text)
}
