package gopwsh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/castortech/gopwsh/internal/codepage"
	"github.com/castortech/gopwsh/internal/logger"
	"github.com/castortech/gopwsh/internal/stream"
)

const (
	// EndCommandString is the dummy marker to emit from statement sets
	// that produce no native output, so the completion detector has
	// something to observe. See the package documentation.
	EndCommandString = "--END-GOPWSH-COMMAND--"

	// EndScriptString marks the end of a staged script. The script
	// runner appends a statement emitting it, and the detector stops
	// at the line without including it in the output. It must never
	// legitimately appear in real script output.
	EndScriptString = "--END-GOPWSH-SCRIPT--"

	// resyncString marks the drain point when recovering from a timed
	// out command, so residual output of the old command cannot be
	// misattributed to the next one.
	resyncString = "--END-GOPWSH-RESYNC--"

	// startupGrace is the bring-up window: a process that exits within
	// it is reported as unavailable rather than handed to the caller.
	startupGrace = 500 * time.Millisecond
)

var nonDigits = regexp.MustCompile(`\D`)

// Session is one live PowerShell process plus its stream wrappers and
// resolved configuration.
//
// A Session runs at most one command at a time: calls into Execute,
// ExecuteScript and friends must be serialized by the caller. The
// engine races on the shared pipes otherwise; it does not queue.
type Session struct {
	cfg settings
	log *slog.Logger

	cmd   *exec.Cmd
	pid   int64
	stdin io.WriteCloser
	out   *stream.LineReader
	errs  *stream.ByteReader // nil when streams are combined

	// procErr is written once, before procDone is closed.
	procDone chan struct{}
	procErr  error

	scriptMode  bool
	needsResync bool

	closeOnce sync.Once
	closed    atomic.Bool
}

// OpenSession starts a PowerShell console with the default
// configuration and returns the session wrapping it.
func OpenSession() (*Session, error) {
	return OpenSessionWithConfig(nil)
}

// OpenSessionWithExecutable starts a session using a PowerShell binary
// at a non-default path.
func OpenSessionWithExecutable(executable string) (*Session, error) {
	return OpenSessionWithConfig(&Config{Executable: executable})
}

// OpenSessionWithConfig starts a session with the given overrides; a
// nil config means defaults. It returns an error wrapping
// ErrProcessUnavailable when the process cannot be spawned, exits
// during bring-up, or rejects the configured session preferences.
func OpenSessionWithConfig(cfg *Config) (*Session, error) {
	st := resolveSettings(cfg)

	s := &Session{
		cfg:      st,
		log:      logger.WithSession(uuid.NewString()[:8]),
		pid:      -1,
		procDone: make(chan struct{}),
	}

	s.validateDirs()
	if err := s.prepareScriptDir(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessUnavailable, err)
	}

	if err := s.launch(); err != nil {
		return nil, err
	}

	s.pid = s.queryPID()
	s.log.Debug("session opened", "pid", s.pid, "executable", st.executable)

	if err := s.applyPreferences(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// ExecuteSingleCommand opens a throwaway session, runs one command and
// closes the session again.
func ExecuteSingleCommand(command string) (*Response, error) {
	s, err := OpenSession()
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Execute(command)
}

// launch spawns the shell process and wires up the stream wrappers.
func (s *Session) launch() error {
	argv := launchArgv(s.cfg)
	cmd := exec.Command(argv[0], argv[1:]...)

	// Keep ANSI escapes out of the pipes; the detector and callers
	// both want plain text.
	cmd.Env = append(os.Environ(),
		"PSStyle.OutputRendering=plaintext",
		"__SuppressAnsiEscapeSequences=1",
		"NO_COLOR=1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: stdin pipe: %v", ErrProcessUnavailable, err)
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("%w: stdout pipe: %v", ErrProcessUnavailable, err)
	}
	cmd.Stdout = outW

	var errR, errW *os.File
	if s.cfg.combineErrors {
		cmd.Stderr = outW
	} else {
		errR, errW, err = os.Pipe()
		if err != nil {
			outR.Close()
			outW.Close()
			return fmt.Errorf("%w: stderr pipe: %v", ErrProcessUnavailable, err)
		}
		cmd.Stderr = errW
	}

	if err := cmd.Start(); err != nil {
		outR.Close()
		outW.Close()
		if errW != nil {
			errR.Close()
			errW.Close()
		}
		return fmt.Errorf("%w: cannot execute %s: %v", ErrProcessUnavailable, s.cfg.executable, err)
	}

	// The child holds dups of the write ends; drop ours so EOF
	// propagates when the process exits.
	outW.Close()
	if errW != nil {
		errW.Close()
	}

	s.cmd = cmd
	go func() {
		s.procErr = cmd.Wait()
		close(s.procDone)
	}()

	select {
	case <-s.procDone:
		outR.Close()
		if errR != nil {
			errR.Close()
		}
		return fmt.Errorf("%w: process exited during startup with code %d",
			ErrProcessUnavailable, cmd.ProcessState.ExitCode())
	case <-time.After(startupGrace):
	}

	s.stdin = stdin
	s.out = stream.NewLineReader(outR)
	if errR != nil {
		s.errs = stream.NewByteReader(errR)
	}
	return nil
}

// launchArgv builds the platform launch vector. On Windows the call is
// wrapped in cmd.exe so the console code page can be aligned with the
// local text encoding before PowerShell starts.
func launchArgv(st settings) []string {
	if st.args != nil {
		return append([]string{st.executable}, st.args...)
	}
	if runtime.GOOS == "windows" {
		return []string{
			"cmd.exe", "/c", "chcp", codepage.Active(), ">", "NUL", "&",
			st.executable, "-ExecutionPolicy", "Bypass", "-NonInteractive", "-NoExit", "-NoProfile", "-Command", "-",
		}
	}
	return []string{st.executable, "-nologo", "-noexit", "-Command", "-"}
}

// Execute writes one command to the console and returns its captured
// output once the completion detector decides it has finished, bounded
// by the session's MaxWait deadline.
//
// Mechanism failures come back through the Response flags; the only
// errors returned are ErrSessionClosed and, with fault promotion
// enabled, *ScriptFault.
func (s *Session) Execute(command string) (*Response, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}

	if s.needsResync && !s.resync() {
		return &Response{IsError: true, IsTimeout: true}, nil
	}

	proc := newCommandProcessor(s.out, s.errs, s.cfg.waitPause, s.scriptMode, s.cfg.promoteFaults)
	defer proc.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		res commandResult
		err error
	}
	resCh := make(chan outcome, 1)
	go func() {
		res, err := proc.run(ctx)
		resCh <- outcome{res: res, err: err}
	}()

	if err := s.writeLine(command); err != nil {
		s.log.Error("failed to write command to console", "error", err)
		return &Response{IsError: true}, nil
	}

	select {
	case out := <-resCh:
		if out.err != nil {
			var fault *ScriptFault
			if errors.As(out.err, &fault) {
				return nil, fault
			}
			s.log.Error("unexpected error reading console output", "error", out.err)
			return &Response{IsError: true}, nil
		}
		return &Response{Output: out.res.output, ErrorOutput: out.res.errorOutput}, nil

	case <-time.After(s.cfg.maxWait):
		cancel()
		s.needsResync = true
		s.log.Warn("command timed out", "maxWait", s.cfg.maxWait)
		return &Response{IsError: true, IsTimeout: true}, nil
	}
}

// ExecuteAndChain runs a command and optionally hands the response to
// a handler, returning the session so calls can be chained. Handler
// failures and panics are logged, never propagated.
func (s *Session) ExecuteAndChain(command string, handlers ...ResponseHandler) *Session {
	resp, err := s.Execute(command)
	if err != nil {
		s.log.Error("chained command failed", "error", err)
		return s
	}
	if len(handlers) > 0 {
		s.handleResponse(handlers[0], resp)
	}
	return s
}

func (s *Session) handleResponse(handler ResponseHandler, resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("response handler panicked", "panic", r)
		}
	}()
	if err := handler(resp); err != nil {
		s.log.Error("response handler failed", "error", err)
	}
}

// IsLastCommandInError reports whether the previous command finished
// in a logical error inside the shell, probed via the $? automatic
// variable.
func (s *Session) IsLastCommandInError() bool {
	resp, err := s.Execute("$?")
	if err != nil || resp == nil {
		return true
	}
	ok, parseErr := strconv.ParseBool(strings.TrimSpace(resp.Output))
	if parseErr != nil {
		return true
	}
	return !ok
}

// PID returns the process id of the console, or -1 when it could not
// be determined.
func (s *Session) PID() int64 {
	return s.pid
}

// Close shuts the session down: a graceful "exit" bounded by the
// MaxWait deadline, escalation to a forceful kill when that stalls,
// then guaranteed stream cleanup. Idempotent; the closed state is
// flipped last so a failed teardown still leaves the session unusable.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		defer s.closed.Store(true)

		if s.cmd == nil {
			return
		}

		graceful := make(chan struct{})
		go func() {
			if s.stdin != nil {
				if err := s.writeLine("exit"); err != nil {
					s.log.Debug("exit write failed", "error", err)
				}
			}
			<-s.procDone
			close(graceful)
		}()

		select {
		case <-graceful:
		case <-time.After(s.cfg.maxWait):
			s.log.Warn("console cannot be closed gracefully, session seems blocked", "pid", s.pid)
			s.kill()
		}

		if s.stdin != nil {
			if err := s.stdin.Close(); err != nil {
				s.log.Warn("failed to close command writer", "error", err)
			}
		}
		if s.out != nil && s.alive() {
			if err := s.out.Close(); err != nil {
				s.log.Warn("failed to close output reader", "error", err)
			}
		}
		if s.errs != nil {
			if err := s.errs.Close(); err != nil {
				s.log.Warn("failed to close error reader", "error", err)
			}
		}
		s.log.Debug("session closed", "pid", s.pid)
	})
}

// kill forcefully terminates the console. On Windows the recorded pid
// is killed with its whole tree, since the launch is wrapped in
// cmd.exe and killing the wrapper would leave PowerShell behind.
func (s *Session) kill() {
	if runtime.GOOS == "windows" && s.pid > 0 {
		s.log.Info("forcing console to close", "pid", s.pid)
		if err := exec.Command("taskkill.exe", "/PID", strconv.FormatInt(s.pid, 10), "/F", "/T").Run(); err != nil {
			s.log.Error("failed to kill console process", "pid", s.pid, "error", err)
		}
		return
	}
	if s.cmd.Process != nil {
		if err := s.cmd.Process.Kill(); err != nil {
			s.log.Error("failed to kill console process", "pid", s.pid, "error", err)
		}
	}
}

// alive reports whether the console process is still running.
func (s *Session) alive() bool {
	select {
	case <-s.procDone:
		return false
	default:
		return true
	}
}

// resync recovers from a timed-out command by writing a marker and
// discarding everything up to it, so residual output of the old
// command is not misattributed to the next one.
func (s *Session) resync() bool {
	s.log.Debug("resynchronizing session after timeout")
	if err := s.writeLine(`Write-Output "` + resyncString + `"`); err != nil {
		return false
	}
	deadline := time.After(s.cfg.maxWait)
	for {
		select {
		case line, ok := <-s.out.Lines():
			if !ok {
				return false
			}
			if strings.TrimSpace(line) == resyncString {
				s.discardResidualErrors()
				s.needsResync = false
				return true
			}
		case <-deadline:
			s.log.Warn("session resynchronization timed out")
			return false
		}
	}
}

func (s *Session) discardResidualErrors() {
	if s.errs == nil {
		return
	}
	for {
		if _, ok := s.errs.ReadByte(errReadWait); !ok {
			return
		}
	}
}

func (s *Session) writeLine(text string) error {
	_, err := io.WriteString(s.stdin, text+"\n")
	return err
}

// queryPID asks the console for its own process id. The $pid variable
// is used instead of the spawned pid because the Windows launch is
// wrapped in cmd.exe.
func (s *Session) queryPID() int64 {
	resp, err := s.Execute("$pid")
	if err != nil || resp == nil {
		return -1
	}
	digits := nonDigits.ReplaceAllString(resp.Output, "")
	if digits == "" {
		return -1
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// applyPreferences assigns the configured session variables as one
// batched command. Setting a variable produces no output, so the batch
// is terminated with a statement emitting EndCommandString for the
// detector to observe. Applied in sorted name order.
func (s *Session) applyPreferences() error {
	if len(s.cfg.preferences) == 0 {
		return nil
	}

	names := make([]string, 0, len(s.cfg.preferences))
	for name := range s.cfg.preferences {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		variable := name
		if !strings.HasPrefix(variable, "$") {
			variable = "$" + variable
		}
		b.WriteString(variable)
		b.WriteString(" = ")
		b.WriteString(s.cfg.preferences[name])
		b.WriteString("\n")
	}
	b.WriteString(`Write-Output "` + EndCommandString + `"`)

	resp, err := s.Execute(b.String())
	if err != nil {
		return fmt.Errorf("%w: cannot configure session preferences: %v", ErrProcessUnavailable, err)
	}
	if resp.IsError || resp.IsTimeout {
		return fmt.Errorf("%w: cannot configure session preferences", ErrProcessUnavailable)
	}
	return nil
}

// validateDirs drops configured directories that do not exist, in
// favor of the defaults.
func (s *Session) validateDirs() {
	if s.cfg.tempDir != "" {
		if _, err := os.Stat(s.cfg.tempDir); err != nil {
			s.log.Warn("temp folder does not exist, using system default", "dir", s.cfg.tempDir)
			s.cfg.tempDir = ""
		}
	}
	if s.cfg.scriptDir != "" {
		if _, err := os.Stat(s.cfg.scriptDir); err != nil {
			s.log.Warn("script folder does not exist, ignoring", "dir", s.cfg.scriptDir)
			s.cfg.scriptDir = ""
		}
	}
}
