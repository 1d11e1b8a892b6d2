// Package editor provides terminal and in-memory implementations of the
// surfaces the field inserter reads from and writes to.
package editor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// MemoryBuffer is an in-memory descriptor buffer safe for concurrent use.
type MemoryBuffer struct {
	mu   sync.Mutex
	text string
}

// NewMemoryBuffer returns a buffer holding text.
func NewMemoryBuffer(text string) *MemoryBuffer {
	return &MemoryBuffer{text: text}
}

func (b *MemoryBuffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

func (b *MemoryBuffer) SetText(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = text
}

// StdioPath selects stdin as the source and stdout as the destination.
const StdioPath = "-"

// FileBuffer is a descriptor buffer backed by a file. Text is read once by
// Load; every SetText rewrites the destination.
type FileBuffer struct {
	Path string
	// Output overrides the file written by SetText. Empty means Path.
	Output string

	Stdin  io.Reader
	Stdout io.Writer

	mu   sync.Mutex
	text string
	err  error
}

// NewFileBuffer returns a buffer for path using the process stdio for "-".
func NewFileBuffer(path string) *FileBuffer {
	return &FileBuffer{Path: path, Stdin: os.Stdin, Stdout: os.Stdout}
}

// Load reads the descriptor text from Path.
func (b *FileBuffer) Load() error {
	var (
		data []byte
		err  error
	)
	if b.Path == StdioPath {
		data, err = io.ReadAll(b.Stdin)
	} else {
		data, err = os.ReadFile(b.Path)
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", b.displayPath(b.Path), err)
	}

	b.mu.Lock()
	b.text = string(data)
	b.mu.Unlock()
	return nil
}

func (b *FileBuffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// SetText replaces the buffer content and writes it out. A write failure is
// kept and reported by Err, since SetText has no error return.
func (b *FileBuffer) SetText(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = text
	b.err = b.write(text)
}

// Err returns the error of the last write, if any.
func (b *FileBuffer) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Destination is the file SetText writes to, StdioPath for stdout.
func (b *FileBuffer) Destination() string {
	if b.Output != "" {
		return b.Output
	}
	return b.Path
}

func (b *FileBuffer) displayPath(path string) string {
	if path == StdioPath {
		return "stdin"
	}
	return path
}

func (b *FileBuffer) write(text string) error {
	dest := b.Destination()
	if dest == StdioPath {
		if _, err := io.WriteString(b.Stdout, text); err != nil {
			return fmt.Errorf("writing stdout: %w", err)
		}
		return nil
	}
	return writeFileAtomic(dest, []byte(text))
}

// writeFileAtomic replaces path through a temp file in the same directory,
// keeping the mode of an existing file.
func writeFileAtomic(path string, data []byte) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("setting mode on %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
