package mcp

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/loopwatch/internal/audit"
)

const testGate = `allowlist: [echo, pwd, ls]
`

func newTestServer(t *testing.T) (*Server, Config) {
	t.Helper()
	dir := t.TempDir()
	gatePath := filepath.Join(dir, "gate.yaml")
	if err := os.WriteFile(gatePath, []byte(testGate), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := Config{
		SessionID:    "sess-1",
		ProjectDir:   dir,
		GatePath:     gatePath,
		AuditLogPath: filepath.Join(dir, ".loopwatch", "audit.jsonl"),
		Log:          &bytes.Buffer{},
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create MCP server: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, cfg
}

func TestExecAllowed(t *testing.T) {
	s, _ := newTestServer(t)

	result, out, err := s.handleExec(context.Background(), &mcpsdk.CallToolRequest{}, ExecInput{Command: "echo hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil && result.IsError {
		t.Fatal("expected success, got error result")
	}
	if !strings.Contains(out.Stdout, "hello") {
		t.Fatalf("expected stdout to contain 'hello', got %q", out.Stdout)
	}
	if out.Blocked {
		t.Fatal("expected not blocked")
	}
}

func TestExecRunsInProjectDir(t *testing.T) {
	s, cfg := newTestServer(t)

	_, out, err := s.handleExec(context.Background(), &mcpsdk.CallToolRequest{}, ExecInput{Command: "pwd"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := filepath.EvalSymlinks(cfg.ProjectDir)
	got, _ := filepath.EvalSymlinks(strings.TrimSpace(out.Stdout))
	if got != want {
		t.Fatalf("expected cwd %q, got %q", want, got)
	}
}

func TestExecBlocked(t *testing.T) {
	s, _ := newTestServer(t)

	for _, cmd := range []string{"rm -rf /", "git status", "echo hi; rm x"} {
		result, out, err := s.handleExec(context.Background(), &mcpsdk.CallToolRequest{}, ExecInput{Command: cmd})
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", cmd, err)
		}
		if result == nil || !result.IsError {
			t.Fatalf("%q: expected IsError result for blocked command", cmd)
		}
		if !out.Blocked {
			t.Fatalf("%q: expected blocked=true", cmd)
		}
		if !strings.HasPrefix(out.Reason, "Command blocked: ") || !strings.Contains(out.Reason, "Allowed commands: echo, ls, pwd") {
			t.Fatalf("%q: unexpected reason %q", cmd, out.Reason)
		}
		text, ok := result.Content[0].(*mcpsdk.TextContent)
		if !ok || text.Text != out.Reason {
			t.Fatalf("%q: expected reason as text content, got %#v", cmd, result.Content)
		}
	}
}

func TestExecAudited(t *testing.T) {
	s, cfg := newTestServer(t)
	ctx := context.Background()

	s.handleExec(ctx, &mcpsdk.CallToolRequest{}, ExecInput{Command: "echo ok"})
	s.handleExec(ctx, &mcpsdk.CallToolRequest{}, ExecInput{Command: "sudo echo no"})

	result, err := audit.Replay(cfg.AuditLogPath, audit.ReplayFilter{SessionID: "sess-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(result.Entries))
	}
	if result.Summary.AllowCount != 1 || result.Summary.DenyCount != 1 {
		t.Fatalf("unexpected summary %+v", result.Summary)
	}
	if e := result.Entries[1]; e.Source != audit.SourceMCP || e.Tool != ToolShellExec {
		t.Fatalf("unexpected entry %+v", e)
	}
	if v := audit.Verify(cfg.AuditLogPath); !v.Valid {
		t.Fatalf("audit chain broken: %s", v.Error)
	}
}

func TestCheckDryRun(t *testing.T) {
	s, cfg := newTestServer(t)
	ctx := context.Background()

	_, out, err := s.handleCheck(ctx, &mcpsdk.CallToolRequest{}, CheckInput{Command: "/bin/echo hi"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Decision != "allow" || out.BaseCommand != "echo" || out.Allowed != nil {
		t.Fatalf("unexpected check output %+v", out)
	}

	_, out, err = s.handleCheck(ctx, &mcpsdk.CallToolRequest{}, CheckInput{Command: "touch created"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Decision != "deny" || out.Reason != "command 'touch' is not in allowlist" || len(out.Allowed) != 3 {
		t.Fatalf("unexpected check output %+v", out)
	}
	if _, err := os.Stat(filepath.Join(cfg.ProjectDir, "created")); !os.IsNotExist(err) {
		t.Fatal("gate_check must not execute the command")
	}
}

func TestReloadGate(t *testing.T) {
	s, cfg := newTestServer(t)

	if err := os.WriteFile(cfg.GatePath, []byte("allowlist: [git]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := s.ReloadGate(); err != nil {
		t.Fatal(err)
	}
	if d := s.guard.Check("git status"); !d.Allowed {
		t.Fatalf("expected git allowed after reload: %s", d.Reason)
	}
	if d := s.guard.Check("echo hi"); d.Allowed {
		t.Fatal("expected echo denied after reload")
	}

	if err := os.WriteFile(cfg.GatePath, []byte("allowlist: [\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := s.ReloadGate(); err == nil {
		t.Fatal("expected parse error")
	}
	if d := s.guard.Check("git status"); !d.Allowed {
		t.Fatal("failed reload must keep the previous lists")
	}
}

func TestReloaderWatchesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gate.yaml")
	if err := os.WriteFile(path, []byte(testGate), 0o600); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan struct{}, 4)
	r, err := NewReloader(path, func() error {
		reloaded <- struct{}{}
		return nil
	}, &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	// unrelated files in the same directory are ignored
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("allowlist: [git]\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("reload not triggered")
	}
}
