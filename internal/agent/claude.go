package agent

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// waitDelay bounds how long Close waits for claude and the processes it
// started to exit after interrupt before the process group is killed.
const waitDelay = 5 * time.Second

// maxLineBytes bounds a single stream-json line. Tool results can be large.
const maxLineBytes = 16 * 1024 * 1024

type item struct {
	ev  Event
	err error
}

// CLIClient runs one session of the claude CLI in stream-json mode.
type CLIClient struct {
	opts Options

	tmpDir string
	cmd    *exec.Cmd
	cancel context.CancelFunc
	items  chan item
	done   chan struct{}
	wg     sync.WaitGroup
	stderr bytes.Buffer

	closeOnce sync.Once
	closeErr  error
}

// NewCLIClient prepares a client. Nothing starts until Query.
func NewCLIClient(opts Options) *CLIClient {
	return &CLIClient{
		opts:  opts,
		items: make(chan item),
		done:  make(chan struct{}),
	}
}

// NewFactory returns a Factory that builds a fresh CLIClient with a new
// session id on every call.
func NewFactory(cfg SessionConfig) Factory {
	return func() (Client, error) {
		return NewCLIClient(cfg.NewSession(uuid.NewString())), nil
	}
}

// SessionID returns the id passed to claude.
func (c *CLIClient) SessionID() string {
	return c.opts.SessionID
}

// Query starts claude with the prompt on stdin.
func (c *CLIClient) Query(ctx context.Context, prompt string) error {
	if c.cmd != nil {
		return errors.New("agent: query already sent")
	}

	tmpDir, err := os.MkdirTemp("", "loopwatch-session-")
	if err != nil {
		return fmt.Errorf("agent: create session dir: %w", err)
	}
	c.tmpDir = tmpDir

	mcpPath, settingsPath, err := c.opts.writeConfigFiles(tmpDir)
	if err != nil {
		return fmt.Errorf("agent: %w", err)
	}

	// The process lives until Close, independent of the caller's ctx; the
	// caller's cancellation is observed in Next.
	procCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel

	cmd := exec.CommandContext(procCtx, c.opts.Bin, c.opts.args(mcpPath, settingsPath)...)
	cmd.Dir = c.opts.ProjectDir
	cmd.Stdin = strings.NewReader(prompt)
	cmd.Stderr = &c.stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return signalGroup(cmd.Process.Pid, syscall.SIGINT) }
	cmd.WaitDelay = waitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("agent: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("agent: start %s: %w", c.opts.Bin, err)
	}
	c.cmd = cmd

	c.wg.Add(1)
	go c.read(stdout)
	return nil
}

// read turns stdout lines into events until the stream or the process ends.
func (c *CLIClient) read(stdout io.Reader) {
	defer c.wg.Done()
	defer close(c.items)

	sawResult := false
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		events, err := ParseLine(scanner.Bytes())
		if err != nil {
			c.send(item{err: err})
			_ = c.cmd.Wait()
			return
		}
		for _, ev := range events {
			if ev.Kind == EventResult {
				sawResult = true
			}
			if !c.send(item{ev: ev}) {
				_ = c.cmd.Wait()
				return
			}
		}
	}
	scanErr := scanner.Err()
	waitErr := c.cmd.Wait()

	switch {
	case scanErr != nil:
		c.send(item{err: fmt.Errorf("read agent output: %w", scanErr)})
	case waitErr != nil && !sawResult:
		c.send(item{err: fmt.Errorf("%s exited: %w%s", c.opts.Bin, waitErr, stderrTail(c.stderr.String()))})
	}
}

func (c *CLIClient) send(it item) bool {
	select {
	case c.items <- it:
		return true
	case <-c.done:
		return false
	}
}

// Next blocks for the next event.
func (c *CLIClient) Next(ctx context.Context) (Event, error) {
	if c.cmd == nil {
		return Event{}, errors.New("agent: no query in flight")
	}
	select {
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case it, ok := <-c.items:
		if !ok {
			return Event{}, io.EOF
		}
		return it.ev, it.err
	}
}

// Close stops claude if it is still running and removes the session's
// config files. Safe to call more than once.
func (c *CLIClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.cancel != nil {
			c.cancel()
		}
		finished := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(finished)
		}()
		select {
		case <-finished:
		case <-time.After(waitDelay):
			c.killGroup()
			<-finished
		}
		// Tool commands claude left running in the background.
		c.killGroup()
		if c.tmpDir != "" {
			c.closeErr = os.RemoveAll(c.tmpDir)
		}
	})
	return c.closeErr
}

func (c *CLIClient) killGroup() {
	if c.cmd == nil || c.cmd.Process == nil {
		return
	}
	_ = signalGroup(c.cmd.Process.Pid, syscall.SIGKILL)
}

// signalGroup signals every process in the group led by pid.
func signalGroup(pid int, sig syscall.Signal) error {
	err := syscall.Kill(-pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}

// stderrTail returns the last lines of stderr formatted for an error message.
func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return ": " + strings.Join(lines, " | ")
}
