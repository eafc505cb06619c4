// Package agent runs Claude Code subprocesses and streams their output as
// protocol events.
package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ShayCichocki/veda/internal/protocol"
)

// ClaudeProcess manages one Claude Code subprocess turn.
type ClaudeProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser

	ctx       context.Context
	cancel    context.CancelFunc
	log       *zap.Logger
	outputCh  chan protocol.Event
	stderrBuf []byte
	stderrWG  sync.WaitGroup
	waitErr   error
	once      sync.Once
	mu        sync.Mutex
	started   bool
	done      chan struct{}
}

// NewClaudeProcess creates a new ClaudeProcess bound to ctx.
// Cancelling ctx kills the subprocess.
func NewClaudeProcess(ctx context.Context, log *zap.Logger) *ClaudeProcess {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &ClaudeProcess{
		ctx:      ctx,
		cancel:   cancel,
		log:      log,
		outputCh: make(chan protocol.Event, 100),
		done:     make(chan struct{}),
	}
}

// NewFactory returns a Factory producing ClaudeProcess runners.
func NewFactory(log *zap.Logger) Factory {
	return func(ctx context.Context) Runner {
		return NewClaudeProcess(ctx, log)
	}
}

// Start launches the subprocess.
func (p *ClaudeProcess) Start(prompt string, opts StartOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.New("process already started")
	}

	binary := opts.Binary
	if binary == "" {
		binary = "claude"
	}

	p.cmd = exec.CommandContext(p.ctx, binary, buildArgs(prompt, opts)...)
	if opts.WorkDir != "" {
		p.cmd.Dir = opts.WorkDir
	}
	if opts.Env != nil {
		p.cmd.Env = opts.Env
	}

	var err error
	p.stdout, err = p.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	p.stderr, err = p.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}

	p.started = true
	p.log.Debug("claude process started",
		zap.Int("pid", p.cmd.Process.Pid),
		zap.String("dir", opts.WorkDir),
		zap.Bool("resume", opts.ResumeSessionID != ""),
	)

	p.stderrWG.Add(1)
	go p.readStderr()
	go p.readOutput()

	return nil
}

// readOutput decodes stdout into events. When the stream ends without a
// terminal event one is synthesized from the exit status.
func (p *ClaudeProcess) readOutput() {
	defer close(p.done)
	defer close(p.outputCh)

	sc := protocol.NewScanner(p.stdout)
	terminated := false

	for sc.Next() {
		if err := sc.DecodeErr(); err != nil {
			p.log.Warn("skipping undecodable stream line", zap.Error(err))
			continue
		}
		ev := sc.Event()
		if ev == nil {
			continue
		}
		if !p.emit(ev) {
			break
		}
		if protocol.IsTerminal(ev) {
			terminated = true
		}
	}

	readErr := sc.Err()
	// Wait blocks until the child exits, which it cannot do while stuck
	// writing to a full pipe.
	_, _ = io.Copy(io.Discard, p.stdout)
	p.stderrWG.Wait()
	p.waitErr = p.cmd.Wait()

	if terminated {
		return
	}

	switch {
	case p.ctx.Err() != nil:
		p.emit(protocol.Error{Message: "process cancelled"})
	case readErr != nil:
		p.emit(protocol.Error{Message: fmt.Sprintf("read error: %v", readErr)})
	case p.waitErr != nil:
		msg := fmt.Sprintf("process exited with error: %v", p.waitErr)
		if stderr := strings.TrimSpace(p.Stderr()); stderr != "" {
			msg += "; stderr: " + stderr
		}
		p.emit(protocol.Error{Message: msg})
	default:
		p.emit(protocol.End{})
	}
}

// emit delivers ev unless the process context has been cancelled.
// Events are still delivered after cancel if the buffer has room so the
// closing terminal event is not lost.
func (p *ClaudeProcess) emit(ev protocol.Event) bool {
	select {
	case p.outputCh <- ev:
		return true
	default:
	}
	select {
	case p.outputCh <- ev:
		return true
	case <-p.ctx.Done():
		return false
	}
}

// readStderr captures stderr for error reporting.
func (p *ClaudeProcess) readStderr() {
	defer p.stderrWG.Done()

	scanner := bufio.NewScanner(p.stderr)
	scanner.Buffer(make([]byte, 16*1024), 256*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		p.mu.Lock()
		p.stderrBuf = append(p.stderrBuf, line...)
		p.stderrBuf = append(p.stderrBuf, '\n')
		p.mu.Unlock()
		p.log.Debug("claude stderr", zap.ByteString("line", line))
	}
}

// Events returns the channel of decoded events.
func (p *ClaudeProcess) Events() <-chan protocol.Event {
	return p.outputCh
}

// Wait waits for the process to exit and returns any error.
func (p *ClaudeProcess) Wait() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return errors.New("process not started")
	}
	p.mu.Unlock()

	<-p.done

	if p.waitErr != nil {
		if stderr := strings.TrimSpace(p.Stderr()); stderr != "" {
			return fmt.Errorf("process exited with error: %w; stderr: %s", p.waitErr, stderr)
		}
		return fmt.Errorf("process exited with error: %w", p.waitErr)
	}
	return nil
}

// Kill terminates the process immediately.
func (p *ClaudeProcess) Kill() error {
	p.once.Do(p.cancel)

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started || p.cmd.Process == nil {
		return nil
	}
	select {
	case <-p.done:
		return nil
	default:
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// Stderr returns any stderr output captured from the process.
func (p *ClaudeProcess) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.stderrBuf)
}

// PID returns the process ID of the subprocess, or 0 if not started.
func (p *ClaudeProcess) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil && p.cmd.Process != nil {
		return p.cmd.Process.Pid
	}
	return 0
}
