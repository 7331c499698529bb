// Package session runs one bounded agent interaction and classifies how it
// ended.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/loopwatch/internal/agent"
	"github.com/ppiankov/loopwatch/internal/cmdguard"
)

// Status classifies a finished session.
type Status string

const (
	StatusSuccess     Status = "SUCCESS"
	StatusError       Status = "ERROR"
	StatusInterrupted Status = "INTERRUPTED"
)

// previewRunes bounds the tool result preview on the operator stream.
const previewRunes = 100

// Outcome is the result of one session. Payload is the concatenated agent
// text on success, the error description on error and a note on interrupt.
type Outcome struct {
	Status  Status
	Payload string
}

// Runner runs sessions. Every Run gets a fresh client from NewClient.
type Runner struct {
	NewClient agent.Factory
	Out       io.Writer
}

// Run sends prompt to a new agent client and consumes its response stream.
// It never returns an error: every fault is folded into the Outcome.
func (r *Runner) Run(ctx context.Context, prompt string) Outcome {
	out := r.Out
	if out == nil {
		out = io.Discard
	}

	client, err := r.NewClient()
	if err != nil {
		return errorOutcome(fmt.Errorf("create agent client: %w", err))
	}
	defer client.Close()

	if err := client.Query(ctx, prompt); err != nil {
		if ctx.Err() != nil {
			return interrupted()
		}
		return errorOutcome(err)
	}

	var text strings.Builder
	for {
		ev, err := client.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return interrupted()
			}
			return errorOutcome(err)
		}

		switch ev.Kind {
		case agent.EventText:
			fmt.Fprint(out, ev.Text)
			text.WriteString(ev.Text)
		case agent.EventToolUse:
			fmt.Fprintf(out, "\n[Tool: %s]", ev.ToolName)
		case agent.EventToolResult:
			fmt.Fprintf(out, " -> %s\n", Preview(ev.Output))
		case agent.EventResult:
			if ev.Err != "" {
				fmt.Fprintf(out, "\n[Error: %s]\n", ev.Err)
				return Outcome{Status: StatusError, Payload: ev.Err}
			}
		default:
			return errorOutcome(fmt.Errorf("unexpected agent event %s", ev.Kind))
		}
	}

	if ctx.Err() != nil {
		return interrupted()
	}
	return Outcome{Status: StatusSuccess, Payload: text.String()}
}

// Preview redacts secrets from a tool result and truncates it for display.
func Preview(s string) string {
	s, _ = cmdguard.ScanOutput(s)
	if utf8.RuneCountInString(s) <= previewRunes {
		return s
	}
	return string([]rune(s)[:previewRunes]) + "..."
}

func errorOutcome(err error) Outcome {
	return Outcome{Status: StatusError, Payload: err.Error()}
}

func interrupted() Outcome {
	return Outcome{Status: StatusInterrupted, Payload: "user interrupted"}
}
