package editor

import (
	"fmt"
	"io"
	"sync"
)

// Form holds named field values. Unknown fields read as "".
type Form map[string]string

func (f Form) Value(field string) string {
	return f[field]
}

// StatusLine is a trigger control rendered as a line on a terminal stream.
// Every change is printed, so the busy bracket around a request is visible.
type StatusLine struct {
	w io.Writer

	mu       sync.Mutex
	label    string
	disabled bool
	history  []string
	// open is set while the line is drawn without a trailing newline.
	open bool
}

// NewStatusLine returns a control showing label on w.
func NewStatusLine(w io.Writer, label string) *StatusLine {
	s := &StatusLine{w: w, label: label}
	s.render(false)
	return s
}

func (s *StatusLine) Label() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.label
}

func (s *StatusLine) SetLabel(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.label = label
	s.history = append(s.history, label)
	s.render(false)
}

func (s *StatusLine) SetDisabled(disabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled = disabled
	s.render(!disabled)
}

// Disabled reports whether the control is currently disabled.
func (s *StatusLine) Disabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled
}

// History returns every label set on the control, oldest first.
func (s *StatusLine) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.history))
	copy(out, s.history)
	return out
}

// render rewrites the current terminal line, ending it when done is set.
// Caller holds mu.
func (s *StatusLine) render(done bool) {
	if s.w == nil {
		return
	}
	marker := ""
	if s.disabled {
		marker = " (busy)"
	}
	fmt.Fprintf(s.w, "\r\033[K[%s]%s", s.label, marker)
	if done {
		fmt.Fprintln(s.w)
	}
	s.open = !done
}

// Writer returns a stream for messages printed while the line is shown,
// such as alerts. A message replaces the drawn line and the line is drawn
// again below it. Messages should end with a newline.
func (s *StatusLine) Writer() io.Writer {
	return lineWriter{s}
}

type lineWriter struct {
	s *StatusLine
}

func (lw lineWriter) Write(p []byte) (int, error) {
	s := lw.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return len(p), nil
	}
	if !s.open {
		return s.w.Write(p)
	}
	if _, err := io.WriteString(s.w, "\r\033[K"); err != nil {
		return 0, err
	}
	n, err := s.w.Write(p)
	if err != nil {
		return n, err
	}
	s.render(false)
	return n, nil
}
