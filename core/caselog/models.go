package caselog

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sumitkpand3y/log-book-api/core"
)

var (
	// errors
	ErrNotFound          = core.NewNotFoundError("case log not found")
	ErrCaseNumberExists  = core.NewConflictError("duplicate case number")
	ErrAlreadyProcessed  = core.NewConflictError("case log was already processed")
	ErrInvalidTransition = core.NewConflictError("case log status does not allow this action")
	ErrPermissionDenied  = core.NewPermissionError("permission denied")
	ErrNotEnrolled       = core.NewPermissionError("learner is not enrolled in this course")
)

// Status is the closed set of review-workflow states. Free-text status values
// never reach the state machine; use ParseStatus at the boundary.
type Status string

const (
	StatusDraft       Status = "DRAFT"
	StatusSubmitted   Status = "SUBMITTED"
	StatusApproved    Status = "APPROVED"
	StatusRejected    Status = "REJECTED"
	StatusResubmitted Status = "RESUBMITTED"
)

var AllStatuses = []Status{StatusDraft, StatusSubmitted, StatusApproved, StatusRejected, StatusResubmitted}

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusRejected, StatusResubmitted:
		return true
	}
	return false
}

// Pending reports whether the log awaits a teacher decision.
func (s Status) Pending() bool {
	return s == StatusSubmitted || s == StatusResubmitted
}

// ParseStatus maps a raw string onto the closed Status set.
func ParseStatus(raw string) (Status, bool) {
	s := Status(core.CleanString(raw, true))
	switch s {
	case "draft":
		return StatusDraft, true
	case "submitted":
		return StatusSubmitted, true
	case "approved":
		return StatusApproved, true
	case "rejected":
		return StatusRejected, true
	case "resubmitted":
		return StatusResubmitted, true
	}
	up := Status(core.CleanString(raw))
	if up.Valid() {
		return up, true
	}
	return "", false
}

// Log is a single medical-case submission record.
type Log struct {
	ID     string `json:"id"`
	CaseNo string `json:"case_no"`

	// clinical fields; free text, owned by the creating learner
	Date           time.Time `json:"date"`
	Age            int       `json:"age"`
	Sex            string    `json:"sex"`
	UHID           string    `json:"uhid"`
	ChiefComplaint string    `json:"chief_complaint"`
	History        string    `json:"history"`
	ExamFindings   string    `json:"exam_findings"`
	Diagnosis      string    `json:"diagnosis"`
	Management     string    `json:"management"`

	Status          Status `json:"status"`
	RejectionReason string `json:"rejection_reason,omitempty"` // present only while REJECTED
	TeacherComments string `json:"teacher_comments,omitempty"`

	CourseID     string `json:"course_id"`
	CreatedByID  string `json:"created_by_id"` // immutable after creation
	ApprovedByID string `json:"approved_by_id,omitempty"`
	RejectedByID string `json:"rejected_by_id,omitempty"`

	SubmittedAt time.Time `json:"submitted_at,omitempty"` // UTC; set on first submission
	ApprovedAt  time.Time `json:"approved_at,omitempty"`  // UTC
	RejectedAt  time.Time `json:"rejected_at,omitempty"`  // UTC
	CreatedAt   time.Time `json:"created_at"`             // UTC
	UpdatedAt   time.Time `json:"updated_at"`             // UTC
}

// NewLog contains information needed to create a new Log. Status may request
// an immediate submission; anything other than DRAFT or SUBMITTED is rejected.
type NewLog struct {
	CourseID       string    `json:"course_id" validate:"required"`
	Date           time.Time `json:"date" validate:"required"`
	Age            int       `json:"age" validate:"omitempty,gte=0,lte=130"`
	Sex            string    `json:"sex" validate:"omitempty,oneof=M F O"`
	UHID           string    `json:"uhid" validate:"omitempty,max=64"`
	ChiefComplaint string    `json:"chief_complaint" validate:"required,max=2000"`
	History        string    `json:"history" validate:"omitempty,max=5000"`
	ExamFindings   string    `json:"exam_findings" validate:"omitempty,max=5000"`
	Diagnosis      string    `json:"diagnosis" validate:"required,max=2000"`
	Management     string    `json:"management" validate:"omitempty,max=5000"`
	Status         Status    `json:"status" validate:"omitempty,initialstatus"`
}

func (nl *NewLog) Validate(validate *validator.Validate) error {
	nl.ChiefComplaint = core.CleanString(nl.ChiefComplaint)
	nl.Diagnosis = core.CleanString(nl.Diagnosis)
	if nl.Status == "" {
		nl.Status = StatusDraft
	}
	return validate.Struct(nl)
}

// UpdateLog defines the content fields the creating learner may modify.
type UpdateLog struct {
	Date           time.Time `json:"date"`
	Age            *int      `json:"age" validate:"omitempty,gte=0,lte=130"`
	Sex            string    `json:"sex" validate:"omitempty,oneof=M F O"`
	UHID           string    `json:"uhid" validate:"omitempty,max=64"`
	ChiefComplaint string    `json:"chief_complaint" validate:"omitempty,max=2000"`
	History        string    `json:"history" validate:"omitempty,max=5000"`
	ExamFindings   string    `json:"exam_findings" validate:"omitempty,max=5000"`
	Diagnosis      string    `json:"diagnosis" validate:"omitempty,max=2000"`
	Management     string    `json:"management" validate:"omitempty,max=5000"`
}

func (ul *UpdateLog) Validate(validate *validator.Validate) error {
	ul.ChiefComplaint = core.CleanString(ul.ChiefComplaint)
	ul.Diagnosis = core.CleanString(ul.Diagnosis)
	return validate.Struct(ul)
}

// ApproveDecision carries the optional teacher feedback on approval.
type ApproveDecision struct {
	Comments string `json:"comments" validate:"omitempty,max=2000"`
}

func (d *ApproveDecision) Validate(validate *validator.Validate) error {
	d.Comments = core.CleanString(d.Comments)
	return validate.Struct(d)
}

// RejectDecision requires an explanation of 10 to 1000 characters.
type RejectDecision struct {
	Reason   string `json:"reason" validate:"required,min=10,max=1000"`
	Comments string `json:"comments" validate:"omitempty,max=2000"`
}

func (d *RejectDecision) Validate(validate *validator.Validate) error {
	d.Reason = core.CleanString(d.Reason)
	d.Comments = core.CleanString(d.Comments)
	return validate.Struct(d)
}

// QueryFilter narrows log listings. CreatedByID and TeacherID are set by the
// service from the actor's visibility scope, never bound from the request.
type QueryFilter struct {
	Status     Status    `query:"status"`
	Search     string    `query:"search"`
	Department string    `query:"department"`
	CourseID   string    `query:"course_id"`
	DateFrom   time.Time `query:"date_from"`
	DateTo     time.Time `query:"date_to"`

	CreatedByID   string `query:"-"`
	TeacherID     string `query:"-"`
	ExcludeDrafts bool   `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Department = core.CleanString(qf.Department)
}

// Transition is the set of column updates a status change applies. It is only
// applied when the row's current status matches the expected source states, in
// the same statement.
type Transition struct {
	To              Status
	SubmittedAt     *time.Time
	ApprovedByID    string
	ApprovedAt      *time.Time
	RejectedByID    string
	RejectedAt      *time.Time
	RejectionReason *string // nil leaves as is; non-nil overwrites (empty clears)
	TeacherComments *string
	UpdatedAt       time.Time
}

type Repository interface {
	// CreateLog persists a new log; a caseNo collision from a concurrent
	// creation surfaces as ErrCaseNumberExists.
	CreateLog(ctx context.Context, lg Log, exec ...core.DBExecutor) (Log, error)
	GetLogByID(ctx context.Context, id string, exec ...core.DBExecutor) (Log, error)
	// FilterLogs returns one page of logs plus the unpaginated total count.
	FilterLogs(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Pagination, exec ...core.DBExecutor) ([]Log, int, error)
	// CountCourseYearLogs counts logs of a course whose clinical date falls in
	// the given calendar year.
	CountCourseYearLogs(ctx context.Context, courseID string, year int, exec ...core.DBExecutor) (int, error)
	// UpdateLogContent writes the content fields, refusing APPROVED rows in the
	// same statement (ErrAlreadyProcessed).
	UpdateLogContent(ctx context.Context, lg Log, exec ...core.DBExecutor) (Log, error)
	// TransitionLog applies tr iff the row's status is one of from, atomically.
	// When the row exists but the precondition no longer holds it returns
	// ErrAlreadyProcessed; when absent, ErrNotFound.
	TransitionLog(ctx context.Context, id string, from []Status, tr Transition, exec ...core.DBExecutor) (Log, error)
	// BulkApprove approves every listed log that is still pending and belongs
	// to a course taught by teacherID; rows already transitioned by a
	// concurrent reviewer are silently excluded. Returns the ids approved.
	BulkApprove(ctx context.Context, teacherID string, ids []string, comments string, now time.Time, exec ...core.DBExecutor) ([]string, error)
	// DeleteDraftLog hard-deletes a log iff it is still a draft.
	DeleteDraftLog(ctx context.Context, id string, exec ...core.DBExecutor) error
	// FilterReviewLogs returns the non-draft logs of all courses whose teacher
	// set includes teacherID, joined with learner and course data, ordered by
	// (createdAt desc, status asc) and paginated over raw rows.
	FilterReviewLogs(ctx context.Context, teacherID string, filter QueryFilter, page core.Pagination, exec ...core.DBExecutor) ([]ReviewLog, int, error)
}
