package stream

import (
	"io"
	"testing"
	"time"
)

func TestLineReader_DeliversLines(t *testing.T) {
	pr, pw := io.Pipe()
	lr := NewLineReader(pr)
	defer lr.Close()

	go func() {
		pw.Write([]byte("first\nsecond\n"))
		pw.Close()
	}()

	want := []string{"first", "second"}
	var got []string
	for line := range lr.Lines() {
		got = append(got, line)
	}
	if len(got) != len(want) {
		t.Fatalf("lines: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, got[i], want[i])
		}
	}
	if err := lr.Err(); err != nil {
		t.Errorf("unexpected stream error: %v", err)
	}
}

func TestLineReader_Ready(t *testing.T) {
	pr, pw := io.Pipe()
	lr := NewLineReader(pr)
	defer lr.Close()
	defer pw.Close()

	if lr.Ready() {
		t.Error("Ready() = true before any write")
	}

	if _, err := pw.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for !lr.Ready() {
		if time.Now().After(deadline) {
			t.Fatal("Ready() never became true after write")
		}
		time.Sleep(time.Millisecond)
	}

	select {
	case line := <-lr.Lines():
		if line != "hello" {
			t.Errorf("line: got %q, want %q", line, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("line not delivered")
	}
	if lr.Ready() {
		t.Error("Ready() = true after draining")
	}
}

func TestLineReader_CloseUnblocksPump(t *testing.T) {
	pr, pw := io.Pipe()
	lr := NewLineReader(pr)
	defer pw.Close()

	if err := lr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// A second close is a no-op.
	if err := lr.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, ok := <-lr.Lines(); ok {
		t.Error("Lines channel still open after Close")
	}
}

func TestByteReader_BoundedWait(t *testing.T) {
	pr, pw := io.Pipe()
	br := NewByteReader(pr)
	defer br.Close()
	defer pw.Close()

	start := time.Now()
	if _, ok := br.ReadByte(20 * time.Millisecond); ok {
		t.Error("ReadByte returned a byte from an empty stream")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("ReadByte blocked %v, want bounded wait", elapsed)
	}

	if _, err := pw.Write([]byte{'x'}); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, ok := br.ReadByte(time.Second)
	if !ok || c != 'x' {
		t.Errorf("ReadByte = (%q, %v), want ('x', true)", c, ok)
	}
}

func TestByteReader_EndOfStream(t *testing.T) {
	pr, pw := io.Pipe()
	br := NewByteReader(pr)
	defer br.Close()

	pw.Write([]byte("ab"))
	pw.Close()

	var got []byte
	for {
		c, ok := br.ReadByte(50 * time.Millisecond)
		if !ok {
			break
		}
		got = append(got, c)
	}
	if string(got) != "ab" {
		t.Errorf("drained %q, want %q", got, "ab")
	}
}
