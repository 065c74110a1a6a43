package database

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/sumitkpand3y/log-book-api/core/audit"
)

// AuditRepository appends workflow events to the course_log table.
type AuditRepository struct {
	db *sqlx.DB
}

var _ audit.Recorder = (*AuditRepository)(nil)

func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (repo *AuditRepository) Record(ctx context.Context, ev audit.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	metadata := []byte("{}")
	if len(ev.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(ev.Metadata); err != nil {
			return errors.Wrap(err, "marshaling event metadata")
		}
	}

	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO course_log (id, user_id, course_id, action, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID,
		null.NewString(ev.UserID, ev.UserID != ""),
		null.NewString(ev.CourseID, ev.CourseID != ""),
		ev.Action, metadata, ev.CreatedAt,
	)
	return errors.Wrap(err, "recording audit event")
}
