package course

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/sumitkpand3y/log-book-api/core"
	"github.com/sumitkpand3y/log-book-api/core/user"
)

var errNotATeacher = "user is not a teacher"

type Service struct {
	repo    Repository
	usrRepo user.Repository
	logger  core.Logger
}

func NewService(repo Repository, usrRepo user.Repository, logger core.Logger) *Service {
	return &Service{repo: repo, usrRepo: usrRepo, logger: logger}
}

// checkTeacher ensures the referenced user exists and holds the TEACHER role.
// The schema does not enforce this; it lives here.
func (svc *Service) checkTeacher(ctx context.Context, teacherID string) error {
	usr, err := svc.usrRepo.GetUserByID(ctx, teacherID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "teacher_id", Error: user.ErrNotFound.Error()})
		}
		return errors.Wrap(err, "finding teacher")
	}
	if !usr.IsTeacher() {
		return core.NewValidationError(nil, core.FieldError{Field: "teacher_id", Error: errNotATeacher})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nc NewCourse) (Course, error) {
	if err := svc.checkTeacher(ctx, nc.TeacherID); err != nil {
		return Course{}, err
	}

	now := time.Now().UTC()
	crs := Course{
		Title:            nc.Title,
		EnrollmentNumber: nc.EnrollmentNumber,
		Description:      nc.Description,
		Faculty:          nc.Faculty,
		Location:         nc.Location,
		TeacherID:        nc.TeacherID,
		StartDate:        nc.StartDate,
		EndDate:          nc.EndDate,
		Status:           DefaultStatus,
		Visible:          true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if nc.Visible != nil {
		crs.Visible = *nc.Visible
	}
	return svc.repo.CreateCourse(ctx, crs)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Course, error) {
	return svc.repo.GetCourseByID(ctx, id)
}

func (svc *Service) Filter(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Course, error) {
	return svc.repo.FilterCourses(ctx, filter, ordering)
}

func (svc *Service) Update(ctx context.Context, id string, uc UpdateCourse) (Course, error) {
	crs, err := svc.repo.GetCourseByID(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if uc.Title != "" {
		crs.Title = uc.Title
	}
	if uc.Description != "" {
		crs.Description = uc.Description
	}
	if uc.Faculty != "" {
		crs.Faculty = uc.Faculty
	}
	if uc.Location != "" {
		crs.Location = uc.Location
	}
	if !uc.StartDate.IsZero() {
		crs.StartDate = uc.StartDate
	}
	if !uc.EndDate.IsZero() {
		crs.EndDate = uc.EndDate
	}
	if uc.Status != "" {
		crs.Status = uc.Status
	}
	if uc.Visible != nil {
		crs.Visible = *uc.Visible
	}
	crs.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCourse(ctx, crs)
}

func (svc *Service) AddCoTeacher(ctx context.Context, courseID, teacherID string) error {
	if _, err := svc.repo.GetCourseByID(ctx, courseID); err != nil {
		return err
	}
	if err := svc.checkTeacher(ctx, teacherID); err != nil {
		return err
	}
	return svc.repo.AddCoTeacher(ctx, courseID, teacherID)
}

// TeacherIDs returns the owner and co-teacher ids of a course.
func (svc *Service) TeacherIDs(ctx context.Context, courseID string) ([]string, error) {
	return svc.repo.CourseTeacherIDs(ctx, courseID)
}

// Enroll registers a learner in a course. At most one enrollment may exist per
// (course, learner) pair; a duplicate surfaces ErrAlreadyEnrolled and leaves
// the original untouched.
func (svc *Service) Enroll(ctx context.Context, courseID, learnerID string) (Enrollment, error) {
	if _, err := svc.repo.GetCourseByID(ctx, courseID); err != nil {
		return Enrollment{}, err
	}
	usr, err := svc.usrRepo.GetUserByID(ctx, learnerID)
	if err != nil {
		return Enrollment{}, err
	}
	if !usr.IsLearner() {
		return Enrollment{}, core.NewValidationError(nil, core.FieldError{Field: "learner_id", Error: "user is not a learner"})
	}

	enr := Enrollment{
		CourseID:   courseID,
		LearnerID:  learnerID,
		EnrolledAt: time.Now().UTC(),
	}
	return svc.repo.CreateEnrollment(ctx, enr)
}

func (svc *Service) Enrollments(ctx context.Context, courseID, learnerID string) ([]Enrollment, error) {
	return svc.repo.FilterEnrollments(ctx, courseID, learnerID)
}

// IsEnrolled reports whether the learner holds an enrollment in the course.
func (svc *Service) IsEnrolled(ctx context.Context, courseID, learnerID string) (bool, error) {
	if _, err := svc.repo.GetEnrollment(ctx, courseID, learnerID); err != nil {
		if errors.Cause(err) == ErrEnrollmentNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
