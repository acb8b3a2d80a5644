// Package stream adapts the blocking pipes of a shell subprocess into
// readers that can answer "is more data available right now" without
// blocking, which is what the completion heuristic needs.
//
// Each reader runs a single pump goroutine that performs the blocking
// reads and feeds a buffered channel. Closing a reader closes the
// underlying stream, which unblocks the pump and lets it drain out.
package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	// lineBuffer is how many decoded lines may queue before the pump blocks.
	lineBuffer = 256

	// byteBuffer bounds the error-stream backlog, matching the largest
	// error payload a single command is allowed to return.
	byteBuffer = 32 * 1024

	// scannerInitialBufferSize is the initial buffer size for the line scanner.
	scannerInitialBufferSize = 64 * 1024

	// scannerMaxBufferSize is the maximum buffer size for the line scanner.
	scannerMaxBufferSize = 1024 * 1024

	// closeTimeout is the bounded wait for a pump goroutine to drain
	// after the underlying stream has been closed.
	closeTimeout = 2 * time.Second
)

// ErrPumpStuck is returned by Close when a pump goroutine does not
// stop within the bounded wait.
var ErrPumpStuck = errors.New("stream: pump goroutine did not stop")

// LineReader exposes a line-oriented stream as a channel of lines.
//
// The Lines channel is closed when the stream ends; Err reports what
// ended it. Ready answers without blocking.
type LineReader struct {
	lines chan string
	done  chan struct{}

	src       io.Closer
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// NewLineReader starts pumping lines from r. The reader owns r and
// closes it in Close.
func NewLineReader(r io.ReadCloser) *LineReader {
	l := &LineReader{
		lines: make(chan string, lineBuffer),
		done:  make(chan struct{}),
		src:   r,
	}
	go l.pump(r)
	return l
}

func (l *LineReader) pump(r io.Reader) {
	defer close(l.done)
	defer close(l.lines)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, scannerInitialBufferSize), scannerMaxBufferSize)
	for scanner.Scan() {
		l.lines <- scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		l.mu.Lock()
		l.err = err
		l.mu.Unlock()
	}
}

// Lines returns the channel of decoded lines. It is closed when the
// stream ends or the reader is closed.
func (l *LineReader) Lines() <-chan string {
	return l.lines
}

// Ready reports whether a line can be received without blocking.
func (l *LineReader) Ready() bool {
	return len(l.lines) > 0
}

// Err returns the error that terminated the stream, if any.
func (l *LineReader) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Close closes the underlying stream and waits, bounded, for the pump
// to stop. Safe to call more than once.
func (l *LineReader) Close() error {
	var closeErr error
	l.closeOnce.Do(func() {
		closeErr = l.src.Close()
	})
	select {
	case <-l.done:
	case <-time.After(closeTimeout):
		return ErrPumpStuck
	}
	return closeErr
}

// ByteReader exposes a byte-oriented stream behind bounded-wait reads.
// It stands in for the error channel of the subprocess, whose reads
// must never block past their deadline.
type ByteReader struct {
	bytes chan byte
	done  chan struct{}

	src       io.Closer
	closeOnce sync.Once
}

// NewByteReader starts pumping bytes from r. The reader owns r and
// closes it in Close.
func NewByteReader(r io.ReadCloser) *ByteReader {
	b := &ByteReader{
		bytes: make(chan byte, byteBuffer),
		done:  make(chan struct{}),
		src:   r,
	}
	go b.pump(r)
	return b
}

func (b *ByteReader) pump(r io.Reader) {
	defer close(b.done)
	defer close(b.bytes)

	br := bufio.NewReader(r)
	for {
		c, err := br.ReadByte()
		if err != nil {
			return
		}
		b.bytes <- c
	}
}

// Ready reports whether a byte can be read without blocking.
func (b *ByteReader) Ready() bool {
	return len(b.bytes) > 0
}

// ReadByte returns the next byte, waiting up to wait for one to show
// up. The second return is false when nothing arrived in time or the
// stream has ended.
func (b *ByteReader) ReadByte(wait time.Duration) (byte, bool) {
	select {
	case c, ok := <-b.bytes:
		return c, ok
	case <-time.After(wait):
		return 0, false
	}
}

// Close closes the underlying stream and waits, bounded, for the pump
// to stop. Safe to call more than once.
func (b *ByteReader) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		closeErr = b.src.Close()
	})
	select {
	case <-b.done:
	case <-time.After(closeTimeout):
		return fmt.Errorf("error stream: %w", ErrPumpStuck)
	}
	return closeErr
}
