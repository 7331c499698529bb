// Package loop drives agent sessions until the iteration budget is spent
// or the operator stops it.
//
// Each iteration re-reads the project state to pick a mode. The first
// successful INITIALIZER session marks the project initialized; every later
// iteration runs in CODING mode. Failed sessions back off and retry. All
// waits are cancellable through the context.
package loop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ppiankov/loopwatch/internal/console"
	"github.com/ppiankov/loopwatch/internal/session"
	"github.com/ppiankov/loopwatch/internal/state"
)

const (
	// ErrorBackoff is the pause after a failed session.
	ErrorBackoff = 10 * time.Second
	// ContinueDelay is the pause between successful sessions.
	ContinueDelay = 3 * time.Second
)

// Mode selects which prompt a session runs with.
type Mode string

const (
	ModeInitializer Mode = "INITIALIZER"
	ModeCoding      Mode = "CODING"
)

// State is a loop state.
type State int

const (
	StateDetermineMode State = iota
	StateRunSession
	StateHandleError
	StateHandleSuccess
	StateWait
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDetermineMode:
		return "DETERMINE_MODE"
	case StateRunSession:
		return "RUN_SESSION"
	case StateHandleError:
		return "HANDLE_ERROR"
	case StateHandleSuccess:
		return "HANDLE_SUCCESS"
	case StateWait:
		return "WAIT"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Runner runs one agent session.
type Runner interface {
	Run(ctx context.Context, prompt string) session.Outcome
}

// Prompts supplies the prompt for each mode.
type Prompts interface {
	Initializer(projectDir string) (string, error)
	Coding(projectDir string) (string, error)
}

// Journal records sessions for the operator. Journal failures are reported
// and never stop the loop.
type Journal interface {
	Start(ctx context.Context, iteration int, mode string) (int64, error)
	Finish(ctx context.Context, id int64, status, payload string) error
}

// SleepFunc waits for d or until ctx is done, returning ctx.Err() in the
// latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real-clock SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Options bound a single loop run.
type Options struct {
	MaxIterations int
	InitOnly      bool
	SkipInit      bool
}

// Summary describes a finished loop run.
type Summary struct {
	Sessions    int
	Succeeded   int
	Failed      int
	Interrupted bool
}

// Controller is the loop state machine.
type Controller struct {
	ProjectDir string
	Store      state.Store
	Runner     Runner
	Prompts    Prompts

	// Optional.
	Journal Journal
	Out     *console.Printer
	Sleep   SleepFunc
}

// ErrStateWrite wraps a failure to persist the initialized marker.
var ErrStateWrite = errors.New("persist project state")

// run holds the mutable state of one Run call.
type run struct {
	opts      Options
	iteration int
	mode      Mode
	prompt    string
	outcome   session.Outcome
	summary   Summary
}

// Run executes the loop until STOPPED. The returned error is non-nil only
// for faults outside a session: an unreadable project state, a missing
// prompt or a failed marker write. Interruption is not an error.
func (c *Controller) Run(ctx context.Context, opts Options) (Summary, error) {
	if opts.MaxIterations <= 0 {
		return Summary{}, fmt.Errorf("max iterations must be positive, got %d", opts.MaxIterations)
	}
	out := c.Out
	if out == nil {
		out = console.NewPlain(io.Discard)
	}
	sleep := c.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	r := &run{opts: opts}
	st := StateDetermineMode
	for st != StateStopped {
		var err error
		switch st {
		case StateDetermineMode:
			st, err = c.determineMode(ctx, r, out)
		case StateRunSession:
			st = c.runSession(ctx, r, out)
		case StateHandleError:
			st = c.handleError(ctx, r, out, sleep)
		case StateHandleSuccess:
			st, err = c.handleSuccess(r, out)
		case StateWait:
			st = c.wait(ctx, r, out, sleep)
		default:
			err = fmt.Errorf("unknown loop state %s", st)
		}
		if err != nil {
			return r.summary, err
		}
	}

	out.Section("Autonomous agent completed", fmt.Sprintf("Total sessions: %d", r.summary.Sessions))
	return r.summary, nil
}

func (c *Controller) determineMode(ctx context.Context, r *run, out *console.Printer) (State, error) {
	if r.iteration >= r.opts.MaxIterations {
		return StateStopped, nil
	}
	if ctx.Err() != nil {
		r.summary.Interrupted = true
		return StateStopped, nil
	}

	mode := ModeCoding
	if !r.opts.SkipInit {
		initialized, err := c.Store.Initialized()
		if err != nil {
			return StateStopped, fmt.Errorf("read project state: %w", err)
		}
		if !initialized {
			mode = ModeInitializer
		}
	}

	var (
		prompt string
		err    error
	)
	if mode == ModeInitializer {
		prompt, err = c.Prompts.Initializer(c.ProjectDir)
	} else {
		prompt, err = c.Prompts.Coding(c.ProjectDir)
	}
	if err != nil {
		return StateStopped, fmt.Errorf("build %s prompt: %w", mode, err)
	}

	r.iteration++
	r.mode = mode
	r.prompt = prompt

	out.Section(fmt.Sprintf("Session %d of %d", r.iteration, r.opts.MaxIterations))
	out.Println()
	if mode == ModeInitializer {
		out.Printf("Mode: %s (creating Linear issues)\n", out.Paint(string(mode), console.Cyan))
	} else {
		out.Printf("Mode: %s (implementing next issue)\n", out.Paint(string(mode), console.Cyan))
	}
	return StateRunSession, nil
}

func (c *Controller) runSession(ctx context.Context, r *run, out *console.Printer) State {
	var (
		journalID int64
		journaled bool
	)
	if c.Journal != nil {
		id, err := c.Journal.Start(ctx, r.iteration, string(r.mode))
		if err != nil {
			out.Warn("history: %v", err)
		} else {
			journalID, journaled = id, true
		}
	}

	r.outcome = c.Runner.Run(ctx, r.prompt)
	r.summary.Sessions++

	if journaled {
		// The session may have ended because ctx was cancelled; the journal
		// entry is still closed out.
		jctx := context.WithoutCancel(ctx)
		if err := c.Journal.Finish(jctx, journalID, string(r.outcome.Status), r.outcome.Payload); err != nil {
			out.Warn("history: %v", err)
		}
	}

	out.Printf("\n\nSession ended with status: %s\n", r.outcome.Status)

	switch r.outcome.Status {
	case session.StatusInterrupted:
		out.Warn("User interrupted. Exiting...")
		r.summary.Interrupted = true
		return StateStopped
	case session.StatusError:
		r.summary.Failed++
		return StateHandleError
	default:
		r.summary.Succeeded++
		return StateHandleSuccess
	}
}

func (c *Controller) handleError(ctx context.Context, r *run, out *console.Printer, sleep SleepFunc) State {
	out.Fail("Error occurred: %s", r.outcome.Payload)
	if r.iteration >= r.opts.MaxIterations {
		return StateStopped
	}
	out.Printf("Waiting %s before retry...\n", ErrorBackoff)
	if err := sleep(ctx, ErrorBackoff); err != nil {
		out.Warn("\nInterrupted during backoff. Exiting...")
		r.summary.Interrupted = true
		return StateStopped
	}
	return StateDetermineMode
}

func (c *Controller) handleSuccess(r *run, out *console.Printer) (State, error) {
	if r.mode != ModeInitializer {
		return StateWait, nil
	}
	if err := c.Store.MarkInitialized(); err != nil {
		return StateStopped, fmt.Errorf("%w: %w", ErrStateWrite, err)
	}
	out.OK("\nLinear project initialized successfully!")
	if r.opts.InitOnly {
		out.Println("Init-only mode - exiting after initialization.")
		return StateStopped, nil
	}
	return StateWait, nil
}

func (c *Controller) wait(ctx context.Context, r *run, out *console.Printer, sleep SleepFunc) State {
	if r.iteration >= r.opts.MaxIterations {
		return StateStopped
	}
	out.Printf("\nAuto-continuing in %s...\n", ContinueDelay)
	out.Note("(Press Ctrl+C to stop)")
	if err := sleep(ctx, ContinueDelay); err != nil {
		out.Warn("\nStopping auto-continue. Exiting...")
		r.summary.Interrupted = true
		return StateStopped
	}
	return StateDetermineMode
}
