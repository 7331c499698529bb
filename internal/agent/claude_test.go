package agent

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClaude writes an executable script that records its prompt, args and
// working directory next to itself and then runs body.
func fakeClaude(t *testing.T, body string) (bin, dir string) {
	t.Helper()
	dir = t.TempDir()
	bin = filepath.Join(dir, "claude")
	script := "#!/bin/sh\n" +
		"here=$(dirname \"$0\")\n" +
		"cat > \"$here/prompt.txt\"\n" +
		"echo \"$@\" > \"$here/args.txt\"\n" +
		"pwd > \"$here/cwd.txt\"\n" +
		body + "\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))
	return bin, dir
}

func drain(t *testing.T, c Client) ([]Event, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var events []Event
	for {
		ev, err := c.Next(ctx)
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}

func TestCLIClientStream(t *testing.T) {
	bin, dir := fakeClaude(t, `cat <<'JSONL'
{"type":"system","subtype":"init"}
{"type":"assistant","message":{"content":[{"type":"text","text":"hi"},{"type":"tool_use","name":"Bash","input":{"command":"ls"}}]}}
{"type":"user","message":{"content":[{"type":"tool_result","content":"README.md"}]}}
{"type":"result","subtype":"success","result":"done"}
JSONL`)
	project := t.TempDir()

	c := NewCLIClient(Options{Bin: bin, Model: "m", ProjectDir: project, SessionID: "sid-1"})
	require.NoError(t, c.Query(context.Background(), "build the app"))

	events, err := drain(t, c)
	assert.ErrorIs(t, err, io.EOF)
	require.Len(t, events, 4)
	assert.Equal(t, EventText, events[0].Kind)
	assert.Equal(t, EventToolUse, events[1].Kind)
	assert.Equal(t, EventToolResult, events[2].Kind)
	assert.Equal(t, "README.md", events[2].Output)
	assert.Equal(t, EventResult, events[3].Kind)
	assert.Empty(t, events[3].Err)

	prompt, err := os.ReadFile(filepath.Join(dir, "prompt.txt"))
	require.NoError(t, err)
	assert.Equal(t, "build the app", string(prompt))

	args, err := os.ReadFile(filepath.Join(dir, "args.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(args), "--session-id sid-1")
	assert.Contains(t, string(args), "--output-format stream-json")

	cwd, err := os.ReadFile(filepath.Join(dir, "cwd.txt"))
	require.NoError(t, err)
	wantDir, err := filepath.EvalSymlinks(project)
	require.NoError(t, err)
	gotDir, err := filepath.EvalSymlinks(strings.TrimSpace(string(cwd)))
	require.NoError(t, err)
	assert.Equal(t, wantDir, gotDir)

	require.NoError(t, c.Close())
}

func TestCLIClientExitWithoutResult(t *testing.T) {
	bin, _ := fakeClaude(t, `echo "not logged in" >&2
exit 3`)

	c := NewCLIClient(Options{Bin: bin, Model: "m", ProjectDir: t.TempDir()})
	require.NoError(t, c.Query(context.Background(), "p"))
	defer c.Close()

	events, err := drain(t, c)
	assert.Empty(t, events)
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
	assert.Contains(t, err.Error(), "exited")
	assert.Contains(t, err.Error(), "not logged in")
}

func TestCLIClientMalformedLine(t *testing.T) {
	bin, _ := fakeClaude(t, `echo '{"type":"assistant",'`)

	c := NewCLIClient(Options{Bin: bin, Model: "m", ProjectDir: t.TempDir()})
	require.NoError(t, c.Query(context.Background(), "p"))
	defer c.Close()

	_, err := drain(t, c)
	assert.ErrorContains(t, err, "malformed stream line")
}

func TestCLIClientCancelledNext(t *testing.T) {
	bin, _ := fakeClaude(t, `exec sleep 30`)

	c := NewCLIClient(Options{Bin: bin, Model: "m", ProjectDir: t.TempDir()})
	require.NoError(t, c.Query(context.Background(), "p"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := c.Next(ctx)
	assert.True(t, errors.Is(err, context.Canceled))

	start := time.Now()
	require.NoError(t, c.Close())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCLIClientCloseKillsBackgroundChildren(t *testing.T) {
	// The backgrounded sleep ignores SIGINT and keeps stdout open.
	bin, _ := fakeClaude(t, `sleep 30 &
echo '{"type":"result","subtype":"success","result":"done"}'`)

	c := NewCLIClient(Options{Bin: bin, Model: "m", ProjectDir: t.TempDir()})
	require.NoError(t, c.Query(context.Background(), "p"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ev, err := c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, EventResult, ev.Kind)

	start := time.Now()
	require.NoError(t, c.Close())
	assert.Less(t, time.Since(start), waitDelay+5*time.Second)
}

func TestCLIClientCloseRemovesConfig(t *testing.T) {
	bin, _ := fakeClaude(t, `echo '{"type":"result","subtype":"success"}'`)

	c := NewCLIClient(Options{Bin: bin, Model: "m", ProjectDir: t.TempDir(), MCPServers: map[string]MCPServer{
		"linear": {Type: "http", URL: DefaultLinearMCPURL},
	}})
	require.NoError(t, c.Query(context.Background(), "p"))
	tmp := c.tmpDir
	_, err := os.Stat(filepath.Join(tmp, "mcp.json"))
	require.NoError(t, err)

	_, _ = drain(t, c)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = os.Stat(tmp)
	assert.True(t, os.IsNotExist(err))
}

func TestCLIClientMissingBinary(t *testing.T) {
	c := NewCLIClient(Options{Bin: filepath.Join(t.TempDir(), "nope"), Model: "m"})
	err := c.Query(context.Background(), "p")
	assert.ErrorContains(t, err, "start")
	require.NoError(t, c.Close())
}

func TestCLIClientQueryTwice(t *testing.T) {
	bin, _ := fakeClaude(t, `true`)

	c := NewCLIClient(Options{Bin: bin, Model: "m", ProjectDir: t.TempDir()})
	require.NoError(t, c.Query(context.Background(), "p"))
	defer c.Close()

	assert.Error(t, c.Query(context.Background(), "again"))
}

func TestNextWithoutQuery(t *testing.T) {
	c := NewCLIClient(Options{})
	_, err := c.Next(context.Background())
	assert.Error(t, err)
}

func TestNewFactoryFreshSessions(t *testing.T) {
	f := NewFactory(SessionConfig{ProjectDir: "/p"})
	a, err := f()
	require.NoError(t, err)
	b, err := f()
	require.NoError(t, err)

	ida := a.(*CLIClient).SessionID()
	idb := b.(*CLIClient).SessionID()
	assert.NotEmpty(t, ida)
	assert.NotEqual(t, ida, idb)
}
