// Package executor runs external tools in an isolated environment.
//
// The editor uses it to run formatters that have no Go implementation
// (Prettier for the web languages). Callers hand over a command and the
// bytes to feed on stdin; the sandbox is the implementation's concern.
package executor

import (
	"context"
	"time"
)

// ExitTimeout is reported when the command outlives its deadline, matching
// the exit status of coreutils timeout(1).
const ExitTimeout = 124

// Request describes one command run.
type Request struct {
	Cmd   []string `json:"cmd"`
	Stdin string   `json:"stdin"`
}

// Result is the captured output and status of a finished run.
type Result struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
}

// TimedOut reports whether the run was cut off by its deadline.
func (r *Result) TimedOut() bool {
	return r.ExitCode == ExitTimeout
}

// Executor runs commands in an isolated environment. A non-zero ExitCode
// is not an error; errors mean the sandbox itself failed.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}
