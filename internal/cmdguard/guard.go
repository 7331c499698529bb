package cmdguard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/loopwatch/internal/gate"
)

// defaultTimeout bounds a single gated command.
const defaultTimeout = 5 * time.Minute

// maxOutputBytes caps captured stdout and stderr separately.
const maxOutputBytes = 256 * 1024

// Config holds command guard configuration.
type Config struct {
	Gate    *gate.Gate
	Dir     string
	Timeout time.Duration
}

// Result captures subprocess execution outcome.
type Result struct {
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	ExitCode        int    `json:"exit_code"`
	StdoutTruncated bool   `json:"stdout_truncated,omitempty"`
	StderrTruncated bool   `json:"stderr_truncated,omitempty"`
	Redacted        int    `json:"redacted,omitempty"`
}

// BlockedError is returned when the gate denies a command.
type BlockedError struct {
	Command string
	Reason  string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("command blocked: %s", e.Reason)
}

// Guard evaluates commands against the gate and executes allowed ones with sh -c.
type Guard struct {
	gate    *gate.Gate
	dir     string
	timeout time.Duration
	mu      sync.RWMutex
}

// NewGuard creates a Guard. A nil gate means the default lists.
func NewGuard(cfg Config) *Guard {
	g := cfg.Gate
	if g == nil {
		g = gate.NewDefault()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Guard{gate: g, dir: cfg.Dir, timeout: timeout}
}

// SetGate swaps the gate, e.g. after the lists file changed on disk.
func (g *Guard) SetGate(gt *gate.Gate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gate = gt
}

// Gate returns the gate currently in effect.
func (g *Guard) Gate() *gate.Gate {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.gate
}

// Check evaluates the command without executing it.
func (g *Guard) Check(command string) gate.Decision {
	return g.Gate().Evaluate(command)
}

// Run evaluates the command and executes it if allowed. Denials return *BlockedError.
// A non-zero exit status is reported in Result, not as an error.
func (g *Guard) Run(ctx context.Context, command string) (*Result, error) {
	d := g.Check(command)
	if !d.Allowed {
		return nil, &BlockedError{Command: command, Reason: d.Reason}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = g.dir
	cmd.Env = sanitizeEnv(os.Environ())
	stdout := newLimitedWriter(maxOutputBytes)
	stderr := newLimitedWriter(maxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("command interrupted: %w", ctx.Err())
		}
		exitCode = exitErr.ExitCode()
	}

	outText, outSecrets := ScanOutputFull(stdout.String())
	errText, errSecrets := ScanOutputFull(stderr.String())

	return &Result{
		Stdout:          outText,
		Stderr:          errText,
		ExitCode:        exitCode,
		StdoutTruncated: stdout.truncated,
		StderrTruncated: stderr.truncated,
		Redacted:        outSecrets + errSecrets,
	}, nil
}

// sensitiveEnvPrefixes name credentials the agent's shell never needs.
var sensitiveEnvPrefixes = []string{
	"LINEAR_",
	"ANTHROPIC_",
	"OPENAI_",
	"LOOPWATCH_",
	"GITHUB_TOKEN",
	"CLAUDE_CODE_OAUTH_TOKEN",
	"API_KEY",
	"API_SECRET",
}

// sanitizeEnv drops credential variables from a child environment.
func sanitizeEnv(env []string) []string {
	clean := make([]string, 0, len(env))
	for _, entry := range env {
		name, _, _ := strings.Cut(entry, "=")
		sensitive := false
		for _, p := range sensitiveEnvPrefixes {
			if strings.HasPrefix(name, p) {
				sensitive = true
				break
			}
		}
		if !sensitive {
			clean = append(clean, entry)
		}
	}
	return clean
}

// limitedWriter keeps the first limit bytes and silently drops the rest,
// so a chatty command cannot exhaust memory.
type limitedWriter struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newLimitedWriter(limit int) *limitedWriter {
	return &limitedWriter{limit: limit}
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	room := w.limit - w.buf.Len()
	if room <= 0 {
		if len(p) > 0 {
			w.truncated = true
		}
		return len(p), nil
	}
	if len(p) > room {
		w.buf.Write(p[:room])
		w.truncated = true
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}

func (w *limitedWriter) String() string {
	return w.buf.String()
}
