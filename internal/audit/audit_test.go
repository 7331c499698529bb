package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLog(t *testing.T) (*Log, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "audit.jsonl")
	l, err := Open(path)
	require.NoError(t, err)
	return l, path
}

func testEntry(decision string) Entry {
	return Entry{
		SessionID: "s-test123",
		Source:    SourceHook,
		Tool:      "Bash",
		Command:   "git status",
		Decision:  decision,
		Reason:    "test reason",
	}
}

func writeEntries(t *testing.T, l *Log, n int, decision string) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, l.Record(testEntry(decision)))
	}
	require.NoError(t, l.Close())
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func writeLines(t *testing.T, path string, lines []string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
}

func TestSequentialWritesProduceValidChain(t *testing.T) {
	l, path := newTestLog(t)
	writeEntries(t, l, 5, DecisionAllow)

	result := Verify(path)
	require.True(t, result.Valid, "error at line %d: %s", result.ErrorLine, result.Error)
	assert.Equal(t, 5, result.Lines)
}

func TestVerifyDetectsTamperedEntry(t *testing.T) {
	l, path := newTestLog(t)
	writeEntries(t, l, 3, DecisionAllow)

	lines := readLines(t, path)
	lines[1] = strings.Replace(lines[1], `"allow"`, `"deny"`, 1)
	writeLines(t, path, lines)

	result := Verify(path)
	assert.False(t, result.Valid)
	assert.Equal(t, 3, result.ErrorLine)
}

func TestVerifyDetectsDeletedEntry(t *testing.T) {
	l, path := newTestLog(t)
	writeEntries(t, l, 3, DecisionAllow)

	lines := readLines(t, path)
	writeLines(t, path, []string{lines[0], lines[2]})

	result := Verify(path)
	assert.False(t, result.Valid)
	assert.Equal(t, 2, result.ErrorLine)
}

func TestVerifyDetectsInsertedEntry(t *testing.T) {
	l, path := newTestLog(t)
	writeEntries(t, l, 3, DecisionAllow)

	lines := readLines(t, path)
	fake := testEntry(DecisionDeny)
	fake.PrevHash = "sha256:fake"
	fakeJSON, err := json.Marshal(fake)
	require.NoError(t, err)
	writeLines(t, path, []string{lines[0], string(fakeJSON), lines[1], lines[2]})

	result := Verify(path)
	assert.False(t, result.Valid)
	assert.Equal(t, 2, result.ErrorLine)
}

func TestVerifyRejectsNonGenesisFirstEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	e := testEntry(DecisionAllow)
	e.PrevHash = "sha256:nope"
	line, err := json.Marshal(e)
	require.NoError(t, err)
	writeLines(t, path, []string{string(line)})

	result := Verify(path)
	assert.False(t, result.Valid)
	assert.Equal(t, 1, result.ErrorLine)
	assert.Contains(t, result.Error, "genesis")
}

func TestVerifyMissingFile(t *testing.T) {
	result := Verify(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.False(t, result.Valid)
	assert.Contains(t, result.Error, "open")
}

func TestEmptyLogPassesVerification(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.jsonl")
	require.NoError(t, os.WriteFile(path, []byte{}, 0o600))

	result := Verify(path)
	assert.True(t, result.Valid, result.Error)
	assert.Zero(t, result.Lines)
}

func TestConcurrentWritesSerializeCorrectly(t *testing.T) {
	l, path := newTestLog(t)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Record(testEntry(DecisionAllow))
		}()
	}
	wg.Wait()
	require.NoError(t, l.Close())

	result := Verify(path)
	require.True(t, result.Valid, "error at line %d: %s", result.ErrorLine, result.Error)
	assert.Equal(t, 100, result.Lines)
}

func TestGenesisHashAndTimestamp(t *testing.T) {
	l, path := newTestLog(t)
	writeEntries(t, l, 1, DecisionAllow)

	var entry Entry
	require.NoError(t, json.Unmarshal([]byte(readLines(t, path)[0]), &entry))
	assert.Equal(t, GenesisHash, entry.PrevHash)
	assert.NotEmpty(t, entry.Timestamp)
}

func TestHashLineIsDeterministic(t *testing.T) {
	line := []byte(`{"ts":"2025-01-15T10:30:00.000Z","session_id":"s-abc","source":"hook","tool":"Bash","command":"ls","decision":"allow","prev_hash":"sha256:def"}`)
	h1 := HashLine(line)
	assert.Equal(t, h1, HashLine(line))
	assert.True(t, strings.HasPrefix(h1, "sha256:"))
	assert.Len(t, h1, 7+64)
}

func TestOpenExistingLogContinuesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.jsonl")

	l1, err := Open(path)
	require.NoError(t, err)
	writeEntries(t, l1, 3, DecisionAllow)

	l2, err := Open(path)
	require.NoError(t, err)
	writeEntries(t, l2, 2, DecisionDeny)

	result := Verify(path)
	require.True(t, result.Valid, "error at line %d: %s", result.ErrorLine, result.Error)
	assert.Equal(t, 5, result.Lines)
}

func TestInterleavedWritersKeepChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.jsonl")

	hook, err := Open(path)
	require.NoError(t, err)
	defer hook.Close()
	server, err := Open(path)
	require.NoError(t, err)
	defer server.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, hook.Record(testEntry(DecisionAllow)))
		require.NoError(t, server.Record(testEntry(DecisionDeny)))
	}

	result := Verify(path)
	require.True(t, result.Valid, "error at line %d: %s", result.ErrorLine, result.Error)
	assert.Equal(t, 6, result.Lines)
}

func TestReplayFiltersBySessionAndDecision(t *testing.T) {
	l, path := newTestLog(t)
	for _, e := range []Entry{
		{SessionID: "a", Source: SourceHook, Command: "git status", Decision: DecisionAllow},
		{SessionID: "a", Source: SourceHook, Command: "sudo ls", Decision: DecisionDeny, Reason: "contains blocked pattern: sudo"},
		{SessionID: "b", Source: SourceMCP, Command: "ls", Decision: DecisionAllow},
	} {
		require.NoError(t, l.Record(e))
	}
	require.NoError(t, l.Close())

	result, err := Replay(path, ReplayFilter{SessionID: "a"})
	require.NoError(t, err)
	assert.Len(t, result.Entries, 2)
	assert.Equal(t, 1, result.Summary.AllowCount)
	assert.Equal(t, 1, result.Summary.DenyCount)

	result, err = Replay(path, ReplayFilter{Decision: DecisionDeny})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "sudo ls", result.Entries[0].Command)

	text := FormatTimeline(result)
	assert.Contains(t, text, "DENY")
	assert.Contains(t, text, "sudo ls")
	assert.Contains(t, text, "1 deny")
}

func TestFormatTimelineEmpty(t *testing.T) {
	out := FormatTimeline(&ReplayResult{SessionID: "x"})
	assert.Equal(t, "Session: x | No entries found.\n", out)
}

func TestTail(t *testing.T) {
	l, path := newTestLog(t)
	for _, cmd := range []string{"one", "two", "three"} {
		e := testEntry(DecisionAllow)
		e.Command = cmd
		require.NoError(t, l.Record(e))
	}
	require.NoError(t, l.Close())

	entries, err := Tail(path, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "two", entries[0].Command)
	assert.Equal(t, "three", entries[1].Command)
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, DecisionAllow, DecisionString(true))
	assert.Equal(t, DecisionDeny, DecisionString(false))
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/work", ".loopwatch", "audit.jsonl"), DefaultPath("/work"))
}
