package inmem

import (
	"context"
	"sync"

	"github.com/sumitkpand3y/log-book-api/core/audit"
)

// AuditRecorder accumulates events in memory; tests read them back via Events.
type AuditRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

var _ audit.Recorder = (*AuditRecorder)(nil)

func NewAuditRecorder() *AuditRecorder {
	return &AuditRecorder{}
}

func (rec *AuditRecorder) Record(_ context.Context, ev audit.Event) error {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if ev.ID == "" {
		ev.ID = newID()
	}
	rec.events = append(rec.events, ev)
	return nil
}

func (rec *AuditRecorder) Events() []audit.Event {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	events := make([]audit.Event, len(rec.events))
	copy(events, rec.events)
	return events
}
