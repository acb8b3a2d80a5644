package gopwsh

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ExecuteScript runs the PowerShell script at path, with optional
// positional arguments appended to the invocation.
//
// Staging failures (unreadable source, temp file trouble) are reported
// as IsError responses carrying a diagnostic, never as errors; the
// returned error is reserved for ErrSessionClosed and promoted
// *ScriptFault values, as with Execute.
func (s *Session) ExecuteScript(path string, args ...string) (*Response, error) {
	f, err := os.Open(path)
	if err != nil {
		s.log.Error("cannot open script", "path", path, "error", err)
		return errResponse("wrong script path: " + path), nil
	}
	defer f.Close()
	return s.ExecuteScriptFromReader(f, args...)
}

// ExecuteScriptFromReader runs a script whose source is read from src,
// for callers that load scripts from embedded files or other
// non-filesystem locations.
func (s *Session) ExecuteScriptFromReader(src io.Reader, args ...string) (*Response, error) {
	if src == nil {
		s.log.Error("script source reader is nil")
		return errResponse("script source reader is nil"), nil
	}

	tmpPath, err := s.stageScript(src)
	if err != nil {
		s.log.Error("cannot stage script", "error", err)
		return errResponse("cannot create temp script file: " + err.Error()), nil
	}
	defer os.Remove(tmpPath)

	s.scriptMode = true
	defer func() { s.scriptMode = false }()

	command := tmpPath
	if joined := strings.Join(args, " "); joined != "" {
		command += " " + joined
	}
	return s.Execute(command)
}

// stageScript copies the script into a fresh temp file and appends the
// statement emitting the end-of-script sentinel, which is what lets
// script mode skip the idle heuristic entirely.
func (s *Session) stageScript(src io.Reader) (string, error) {
	dir := s.cfg.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, fmt.Sprintf("psscript_%s.ps1", uuid.NewString()))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}

	w := bufio.NewWriter(f)
	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		w.WriteString(scanner.Text())
		w.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("read script source: %w", err)
	}
	w.WriteString(`Write-Output "` + EndScriptString + `"` + "\n")

	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}

// prepareScriptDir copies the configured script folder, including
// sub-folders, into the temp directory at session open, so staged
// scripts can reference their companion files. The copy target becomes
// the session's temp directory.
func (s *Session) prepareScriptDir() error {
	if s.cfg.scriptDir == "" {
		return nil
	}

	target := s.cfg.tempDir
	if target == "" {
		dir, err := os.MkdirTemp("", "gopwsh-scripts-")
		if err != nil {
			return fmt.Errorf("create temp script dir: %v", err)
		}
		target = dir
	}
	if err := copyTree(s.cfg.scriptDir, target); err != nil {
		return err
	}
	s.cfg.tempDir = target
	return nil
}

// copyTree recursively copies src into dst, replacing existing files.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
