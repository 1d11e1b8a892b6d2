package editor

import (
	"fmt"
	"io"
	"sync"
)

// StderrNotifier prints alerts to a stream, typically os.Stderr.
type StderrNotifier struct {
	W      io.Writer
	Prefix string
}

func (n StderrNotifier) Alert(message string) {
	fmt.Fprintf(n.W, "%s%s\n", n.Prefix, message)
}

// RecordingNotifier keeps alerts in memory.
type RecordingNotifier struct {
	mu     sync.Mutex
	alerts []string
}

func (n *RecordingNotifier) Alert(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, message)
}

// Alerts returns the recorded alerts, oldest first.
func (n *RecordingNotifier) Alerts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.alerts))
	copy(out, n.alerts)
	return out
}
