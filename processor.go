package gopwsh

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/castortech/gopwsh/internal/stream"
)

const (
	// settlePause is the second, longer idle wait of the completion
	// heuristic. One poll interval is usually enough to see the next
	// line of a still-running command, but scheduling jitter between
	// the shell flushing and the pipe turning readable can exceed it,
	// so an idle verdict is only reached after this extra settle.
	settlePause = 50 * time.Millisecond

	// errReadWait bounds each single byte read while draining the
	// error stream.
	errReadWait = 5 * time.Millisecond

	// maxErrorBuffer caps how much error-channel text one command may
	// accumulate.
	maxErrorBuffer = 32 * 1024
)

// commandProcessor collects the output of exactly one command. In
// interactive mode it infers completion from stream idleness; in
// script mode it reads until the end-of-script sentinel.
//
// A processor is used once and closed on every exit path of the
// engine, so a lingering read cannot keep touching the stream after
// the command call has returned.
type commandProcessor struct {
	out           *stream.LineReader
	errs          *stream.ByteReader // nil when stderr is merged into stdout
	waitPause     time.Duration
	scriptMode    bool
	promoteFaults bool

	closed atomic.Bool
}

func newCommandProcessor(out *stream.LineReader, errs *stream.ByteReader, waitPause time.Duration, scriptMode, promoteFaults bool) *commandProcessor {
	return &commandProcessor{
		out:           out,
		errs:          errs,
		waitPause:     waitPause,
		scriptMode:    scriptMode,
		promoteFaults: promoteFaults,
	}
}

// run reads the command's output and, if the error stream is split,
// drains it afterwards. Cancellation short-circuits with whatever was
// accumulated so far. The returned error is either a stream fault or
// a promoted *ScriptFault.
func (p *commandProcessor) run(ctx context.Context) (commandResult, error) {
	var out strings.Builder
	if err := p.readOutput(ctx, &out); err != nil {
		return commandResult{}, err
	}

	res := commandResult{output: strings.TrimRight(out.String(), " \t\r\n")}

	if p.errs != nil {
		errText := strings.TrimSpace(p.drainErrors())
		if errText != "" {
			if p.promoteFaults {
				if fault := promoteFault(errText); fault != nil {
					return res, fault
				}
			}
			res.errorOutput = errText
		}
	}
	return res, nil
}

// readOutput appends arriving lines to out until completion is
// detected. Blocking on the line channel doubles as the start gate:
// before the first line the only ways forward are data or
// cancellation.
func (p *commandProcessor) readOutput(ctx context.Context, out *strings.Builder) error {
	lines := p.out.Lines()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				// Stream ended underneath us; surface the fault if the
				// scanner recorded one.
				return p.out.Err()
			}
			if p.scriptMode && line == EndScriptString {
				return nil
			}
			out.WriteString(line)
			out.WriteString("\n")
			if !p.scriptMode && (p.closed.Load() || !p.morePending(ctx, lines)) {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// morePending is the idle heuristic: a fast poll, then one longer
// settle, before concluding that the command has finished. Worst-case
// added latency per command is waitPause+settlePause when no further
// output is coming.
func (p *commandProcessor) morePending(ctx context.Context, lines <-chan string) bool {
	if len(lines) > 0 {
		return true
	}
	if !p.pause(ctx, p.waitPause) {
		return false
	}
	if len(lines) > 0 {
		return true
	}
	if !p.pause(ctx, settlePause) {
		return false
	}
	return len(lines) > 0
}

func (p *commandProcessor) pause(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return !p.closed.Load()
	}
}

// drainErrors pulls whatever the error stream currently holds, in
// bounded single-byte reads, stopping at the first read that comes up
// empty.
func (p *commandProcessor) drainErrors() string {
	buf := make([]byte, 0, 256)
	for len(buf) < maxErrorBuffer {
		c, ok := p.errs.ReadByte(errReadWait)
		if !ok {
			break
		}
		buf = append(buf, c)
	}
	return string(buf)
}

// close flags the processor as cancelled. The flag is observed at
// every wait boundary; it never touches the underlying streams, which
// stay owned by the session.
func (p *commandProcessor) close() {
	p.closed.Store(true)
}
