package logger

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"
)

// DefaultBufferSize is the buffer size for file writes
const DefaultBufferSize = 32 * 1024

// LogFilePermissions restricts log files to the owner
const LogFilePermissions = 0o600

// BufferedFileWriter wraps a file with buffered I/O. It is safe for concurrent use.
// Buffers are written out on Flush and Close.
type BufferedFileWriter struct {
	mu       sync.Mutex
	file     *os.File
	writer   *bufio.Writer
	filePath string
	closed   bool
}

// NewBufferedFileWriter opens filePath in append mode.
func NewBufferedFileWriter(filePath string) (*BufferedFileWriter, error) {
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, LogFilePermissions) //nolint:gosec // file path from user config is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", filePath, err)
	}

	return &BufferedFileWriter{
		file:     file,
		writer:   bufio.NewWriterSize(file, DefaultBufferSize),
		filePath: filePath,
	}, nil
}

// Write implements io.Writer
func (w *BufferedFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, fmt.Errorf("write to closed log file %s", w.filePath)
	}
	return w.writer.Write(p)
}

// Flush writes buffered data to the OS
func (w *BufferedFileWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	return w.writer.Flush()
}

// Close flushes, syncs and closes the underlying file. Calling Close twice is a no-op.
func (w *BufferedFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	if err := w.writer.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush: %w", err))
	}
	if err := w.file.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("sync: %w", err))
	}
	if err := w.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	return errors.Join(errs...)
}
