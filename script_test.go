package gopwsh

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/castortech/gopwsh/internal/logger"
)

// bareSession builds a session that never launched a process, enough
// for exercising staging failures that happen before any execution.
func bareSession() *Session {
	return &Session{
		cfg:      defaultSettings(),
		log:      logger.WithSession("test"),
		pid:      -1,
		procDone: make(chan struct{}),
	}
}

func TestExecuteScript_WrongPath(t *testing.T) {
	s := bareSession()

	resp, err := s.ExecuteScript("/no/such/script.ps1")
	if err != nil {
		t.Fatalf("ExecuteScript: %v", err)
	}
	if !resp.IsError {
		t.Error("IsError = false, want true for unreadable script")
	}
	if resp.IsTimeout {
		t.Error("IsTimeout = true, want false")
	}
	if !strings.Contains(resp.Output, "wrong script path") {
		t.Errorf("Output = %q, want diagnostic", resp.Output)
	}
	if resp.Output != resp.ErrorOutput {
		t.Error("diagnostic should be carried in both output fields")
	}
}

func TestExecuteScriptFromReader_NilReader(t *testing.T) {
	s := bareSession()

	resp, err := s.ExecuteScriptFromReader(nil)
	if err != nil {
		t.Fatalf("ExecuteScriptFromReader: %v", err)
	}
	if !resp.IsError {
		t.Error("IsError = false, want true for nil reader")
	}
}

func TestStageScript(t *testing.T) {
	s := bareSession()
	s.cfg.tempDir = t.TempDir()

	path, err := s.stageScript(strings.NewReader("Write-Output \"uno\"\nWrite-Output \"dos\""))
	if err != nil {
		t.Fatalf("stageScript: %v", err)
	}
	defer os.Remove(path)

	if filepath.Dir(path) != s.cfg.tempDir {
		t.Errorf("staged into %s, want %s", filepath.Dir(path), s.cfg.tempDir)
	}
	base := filepath.Base(path)
	if !strings.HasPrefix(base, "psscript_") || !strings.HasSuffix(base, ".ps1") {
		t.Errorf("staged file name %q", base)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read staged script: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("staged %d lines, want 3: %q", len(lines), lines)
	}
	if lines[2] != `Write-Output "`+EndScriptString+`"` {
		t.Errorf("last line = %q, want sentinel emitter", lines[2])
	}
}

func TestExecuteScript_EndToEnd(t *testing.T) {
	cfg := fakeShellConfig(t)
	tempDir := t.TempDir()
	cfg.TempDir = tempDir
	s := openFakeSession(t, cfg)

	scriptPath := filepath.Join(t.TempDir(), "demo.ps1")
	source := "Write-Output \"uno\"\nWrite-Output \"dos\"\n"
	if err := os.WriteFile(scriptPath, []byte(source), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	resp, err := s.ExecuteScript(scriptPath, "-Name", "value")
	if err != nil {
		t.Fatalf("ExecuteScript: %v", err)
	}
	if resp.IsError || resp.IsTimeout {
		t.Fatalf("flags = (error=%v, timeout=%v)", resp.IsError, resp.IsTimeout)
	}
	if resp.Output != "uno\ndos" {
		t.Errorf("Output = %q, want %q", resp.Output, "uno\ndos")
	}
	if strings.Contains(resp.Output, EndScriptString) {
		t.Error("script output leaked the end-of-script sentinel")
	}
	if s.scriptMode {
		t.Error("scriptMode flag still set after script execution")
	}

	// The staged temp file is always removed afterwards.
	leftovers, err := filepath.Glob(filepath.Join(tempDir, "psscript_*.ps1"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(leftovers) != 0 {
		t.Errorf("staged scripts left behind: %v", leftovers)
	}
}

func TestCopyTree(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	files := map[string]string{
		"main.ps1":          "Write-Output \"top\"",
		"nested/helper.ps1": "Write-Output \"nested\"",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(src, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	dst := t.TempDir()
	if err := copyTree(src, dst); err != nil {
		t.Fatalf("copyTree: %v", err)
	}

	for name, want := range files {
		data, err := os.ReadFile(filepath.Join(dst, name))
		if err != nil {
			t.Fatalf("copied %s missing: %v", name, err)
		}
		if string(data) != want {
			t.Errorf("%s content = %q, want %q", name, data, want)
		}
	}
}
