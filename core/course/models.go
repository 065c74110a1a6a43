package course

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sumitkpand3y/log-book-api/core"
)

var (
	// errors
	ErrNotFound               = core.NewNotFoundError("course not found")
	ErrEnrollmentNumberExists = core.NewConflictError("a course with this enrollment number already exists")
	ErrEnrollmentNotFound     = core.NewNotFoundError("enrollment not found")
	ErrAlreadyEnrolled        = core.NewConflictError("learner is already enrolled in this course")
)

// DefaultStatus is a free-text label, not a workflow state.
const DefaultStatus = "Active"

type Course struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	EnrollmentNumber string    `json:"enrollment_number"`
	Description      string    `json:"description,omitempty"`
	Faculty          string    `json:"faculty,omitempty"` // department name
	Location         string    `json:"location,omitempty"`
	TeacherID        string    `json:"teacher_id"` // primary teacher (owner)
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	Status           string    `json:"status"`
	Visible          bool      `json:"visible"`
	ExternalID       string    `json:"external_id,omitempty"` // upstream LMS classroom id
	CreatedAt        time.Time `json:"created_at"`            // UTC
	UpdatedAt        time.Time `json:"updated_at"`            // UTC
}

type Enrollment struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"course_id"`
	LearnerID   string    `json:"learner_id"`
	Progress    float64   `json:"progress"`
	Completed   bool      `json:"completed"`
	EnrolledAt  time.Time `json:"enrolled_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title            string    `json:"title" validate:"required,max=255"`
	EnrollmentNumber string    `json:"enrollment_number" validate:"required,max=64"`
	Description      string    `json:"description" validate:"omitempty,max=5000"`
	Faculty          string    `json:"faculty" validate:"omitempty,max=255"`
	Location         string    `json:"location" validate:"omitempty,max=255"`
	TeacherID        string    `json:"teacher_id" validate:"required"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	Visible          *bool     `json:"visible"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.EnrollmentNumber = core.CleanString(nc.EnrollmentNumber)
	return validate.Struct(nc)
}

// UpdateCourse defines what information may be provided to modify an existing Course.
type UpdateCourse struct {
	Title       string    `json:"title" validate:"omitempty,max=255"`
	Description string    `json:"description" validate:"omitempty,max=5000"`
	Faculty     string    `json:"faculty" validate:"omitempty,max=255"`
	Location    string    `json:"location" validate:"omitempty,max=255"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Status      string    `json:"status" validate:"omitempty,max=64"`
	Visible     *bool     `json:"visible"`
}

func (uc *UpdateCourse) Validate(validate *validator.Validate) error {
	uc.Title = core.CleanString(uc.Title)
	return validate.Struct(uc)
}

type QueryFilter struct {
	Search    string `query:"search"`
	Faculty   string `query:"faculty"`
	TeacherID string `query:"teacher_id"`
	Visible   *bool  `query:"visible"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Faculty = core.CleanString(qf.Faculty)
}

type Repository interface {
	CreateCourse(ctx context.Context, crs Course, exec ...core.DBExecutor) (Course, error)
	GetCourseByID(ctx context.Context, id string, exec ...core.DBExecutor) (Course, error)
	GetCourseByEnrollmentNumber(ctx context.Context, number string, exec ...core.DBExecutor) (Course, error)
	GetCourseByExternalID(ctx context.Context, externalID string, exec ...core.DBExecutor) (Course, error)
	// FilterCourses applies AND operation on available QueryFilter fields.
	// QueryFilter.Search does a case-insensitive match on Course.Title or Course.EnrollmentNumber.
	FilterCourses(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Course, error)
	UpdateCourse(ctx context.Context, crs Course, exec ...core.DBExecutor) (Course, error)

	// AddCoTeacher grants review rights; adding an existing co-teacher is a no-op.
	AddCoTeacher(ctx context.Context, courseID, teacherID string, exec ...core.DBExecutor) error
	// CourseTeacherIDs returns the owner teacher id followed by all co-teacher ids.
	CourseTeacherIDs(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]string, error)

	CreateEnrollment(ctx context.Context, enr Enrollment, exec ...core.DBExecutor) (Enrollment, error)
	GetEnrollment(ctx context.Context, courseID, learnerID string, exec ...core.DBExecutor) (Enrollment, error)
	FilterEnrollments(ctx context.Context, courseID, learnerID string, exec ...core.DBExecutor) ([]Enrollment, error)
}
