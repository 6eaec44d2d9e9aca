package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/wealthops/wealthops-backend/internal/copilot"
)

// terminalNotifier renders transcript and service status changes to the
// terminal. The session calls it from its own goroutines, so writes are
// serialized with a mutex.
type terminalNotifier struct {
	mu        sync.Mutex
	out       io.Writer
	lastCount int
}

func (n *terminalNotifier) TranscriptChanged(transcript []copilot.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()

	// A shrinking transcript means the session was reset; reprint it all.
	if len(transcript) < n.lastCount {
		n.lastCount = 0
		fmt.Fprintln(n.out, "\n--- conversation reset ---")
	}

	for _, msg := range transcript[n.lastCount:] {
		n.printMessage(msg)
	}
	// Streaming placeholders rewrite in place, so only completed messages
	// advance the cursor.
	count := len(transcript)
	if count > 0 && transcript[count-1].Streaming {
		count--
	}
	n.lastCount = count
}

func (n *terminalNotifier) StatusChanged(status copilot.ServiceStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !status.Orchestrator {
		fmt.Fprintln(n.out, "[warning] orchestrator is unreachable")
	}
}

func (n *terminalNotifier) printTranscript(transcript []copilot.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, msg := range transcript {
		n.printMessage(msg)
	}
	n.lastCount = len(transcript)
}

func (n *terminalNotifier) printMessage(msg copilot.Message) {
	prefix := "copilot"
	if msg.Role == copilot.RoleUser {
		prefix = "you"
	}
	fmt.Fprintf(n.out, "[%s] %s\n", prefix, msg.Text)

	if msg.Streaming {
		return
	}
	if msg.GeneratedQuery != "" {
		fmt.Fprintf(n.out, "  sql: %s\n", msg.GeneratedQuery)
	}
	for _, c := range msg.Citations {
		line := fmt.Sprintf("  source: %s", c.Source)
		if c.Description != "" {
			line += " (" + c.Description + ")"
		}
		if c.Confidence != nil {
			line += fmt.Sprintf(" [%.2f]", *c.Confidence)
		}
		fmt.Fprintln(n.out, line)
	}
	if len(msg.AgentsInvoked) > 0 {
		fmt.Fprintf(n.out, "  agents: %s (%dms)\n",
			strings.Join(msg.AgentsInvoked, ", "), msg.ExecutionTimeMs)
	}
}
