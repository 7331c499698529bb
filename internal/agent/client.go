package agent

import "context"

// Client is one isolated agent conversation. A Client is used for exactly one
// prompt and then closed; nothing carries over to the next session.
type Client interface {
	// Query sends the prompt as the sole instruction and starts the response stream.
	Query(ctx context.Context, prompt string) error
	// Next blocks for the next event. It returns io.EOF once the stream is done
	// and ctx.Err() if ctx is cancelled while waiting.
	Next(ctx context.Context) (Event, error)
	// Close tears down the conversation and everything it started.
	Close() error
}

// Factory builds a fresh Client per session.
type Factory func() (Client, error)
