package engine

import "context"

// Request is the work handed to a handler for one task.
type Request struct {
	TaskID      string
	Description string
	Capability  string
	Document    string // path of the task document, for context
}

// Result is the handler's outcome. Metadata entries are folded into the
// task's structured sub-bullets on completion.
type Result struct {
	Success  bool
	Notes    string
	Metadata map[string]string
}

// Handler executes the actual work for a routed task. The engine treats it
// as a black box: it only sees success or failure plus the returned notes.
// Implementations must honor ctx cancellation.
type Handler interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, req Request) (Result, error)

func (f HandlerFunc) Execute(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}
