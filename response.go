package gopwsh

import "fmt"

// Response is the caller-facing outcome of one command.
//
// IsError means the mechanism failed (timeout, interrupted read,
// unexpected stream fault), not that the command itself reported a
// logical failure inside the shell; use Session.IsLastCommandInError
// for the latter.
type Response struct {
	IsError     bool
	Output      string
	ErrorOutput string
	IsTimeout   bool
}

func (r *Response) String() string {
	return fmt.Sprintf("Response [error=%v, output=%s, errorOutput=%s, timeout=%v]",
		r.IsError, r.Output, r.ErrorOutput, r.IsTimeout)
}

// errResponse builds the response used for script staging failures,
// which are reported as data rather than errors: the diagnostic is
// carried in both output fields.
func errResponse(diagnostic string) *Response {
	return &Response{IsError: true, Output: diagnostic, ErrorOutput: diagnostic}
}

// commandResult is the raw captured text of one command before it is
// folded into a Response.
type commandResult struct {
	output      string
	errorOutput string
}

// ResponseHandler is invoked synchronously after a chained command
// completes. Handler failures are logged, never propagated.
type ResponseHandler func(*Response) error
