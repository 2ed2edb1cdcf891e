package testutil

import (
	"context"
	"sync"

	"backoffice/internal/domain/audit"
)

// AuditEntry is one recorded audit event.
type AuditEntry struct {
	Action  audit.Action
	Subject string
	Payload map[string]any
}

// AuditLog is an in-memory audit.Recorder.
type AuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

var _ audit.Recorder = (*AuditLog)(nil)

// Record implements audit.Recorder.
func (l *AuditLog) Record(_ context.Context, action audit.Action, subject string, payload map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, AuditEntry{Action: action, Subject: subject, Payload: payload})
	return nil
}

// ByAction returns entries with the given action in record order.
func (l *AuditLog) ByAction(action audit.Action) []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []AuditEntry
	for _, e := range l.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}
