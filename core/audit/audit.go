// Package audit provides an append-only sink for workflow events. Events are
// observability records; nothing in the workflow reads them back.
package audit

import (
	"context"
	"time"
)

const (
	ActionCaseCreated   = "case.created"
	ActionCaseUpdated   = "case.updated"
	ActionCaseSubmitted = "case.submitted"
	ActionCaseApproved  = "case.approved"
	ActionCaseRejected  = "case.rejected"
	ActionCaseDeleted   = "case.deleted"
	ActionRosterSynced  = "roster.synced"
)

type Event struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	CourseID  string                 `json:"course_id"`
	Action    string                 `json:"action"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"` // UTC
}

type Recorder interface {
	Record(ctx context.Context, ev Event) error
}
