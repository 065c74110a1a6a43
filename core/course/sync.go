package course

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/sumitkpand3y/log-book-api/core"
	"github.com/sumitkpand3y/log-book-api/core/user"
)

type (
	// RosterMember is an upstream LMS participant record.
	RosterMember struct {
		ExternalID string `json:"external_id"`
		Email      string `json:"email"`
		Name       string `json:"name"`
		StudentID  string `json:"student_id,omitempty"`
	}

	// RosterCourse is an upstream LMS classroom record with its participants.
	RosterCourse struct {
		ExternalID       string         `json:"external_id"`
		Title            string         `json:"title"`
		EnrollmentNumber string         `json:"enrollment_number"`
		Faculty          string         `json:"faculty"`
		StartDate        time.Time      `json:"start_date"`
		EndDate          time.Time      `json:"end_date"`
		Teacher          RosterMember   `json:"teacher"`
		CoTeachers       []RosterMember `json:"co_teachers"`
		Learners         []RosterMember `json:"learners"`
	}

	// RosterSource supplies course/enrollment/teacher records from an upstream LMS.
	RosterSource interface {
		FetchRoster(ctx context.Context) ([]RosterCourse, error)
	}

	SyncStats struct {
		Courses     int
		Enrollments int
	}
)

// SyncRoster upserts upstream records into local storage. Records are matched
// by external id first, then by natural key (enrollment number, email), so a
// repeated sync with identical upstream data creates nothing new.
func (svc *Service) SyncRoster(ctx context.Context, usrSvc *user.Service, records []RosterCourse) (SyncStats, error) {
	var stats SyncStats
	for _, rec := range records {
		if err := svc.syncCourse(ctx, usrSvc, rec, &stats); err != nil {
			return stats, errors.Wrapf(err, "syncing course %q", rec.ExternalID)
		}
	}
	return stats, nil
}

func (svc *Service) syncCourse(ctx context.Context, usrSvc *user.Service, rec RosterCourse, stats *SyncStats) error {
	teacher, err := usrSvc.GetOrCreate(ctx, rec.Teacher.Email, rec.Teacher.Name, user.RoleTeacher, rec.Teacher.ExternalID)
	if err != nil {
		return errors.Wrap(err, "upserting teacher")
	}

	crs, err := svc.findLocalCourse(ctx, rec)
	switch {
	case err == nil:
		// refresh mutable fields from upstream
		crs.Title = rec.Title
		crs.Faculty = rec.Faculty
		crs.StartDate = rec.StartDate
		crs.EndDate = rec.EndDate
		crs.TeacherID = teacher.ID
		if crs.ExternalID == "" {
			crs.ExternalID = rec.ExternalID
		}
		crs.UpdatedAt = time.Now().UTC()
		if crs, err = svc.repo.UpdateCourse(ctx, crs); err != nil {
			return errors.Wrap(err, "updating course")
		}
	case errors.Cause(err) == ErrNotFound:
		now := time.Now().UTC()
		crs = Course{
			Title:            rec.Title,
			EnrollmentNumber: rec.EnrollmentNumber,
			Faculty:          rec.Faculty,
			TeacherID:        teacher.ID,
			StartDate:        rec.StartDate,
			EndDate:          rec.EndDate,
			Status:           DefaultStatus,
			Visible:          true,
			ExternalID:       rec.ExternalID,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if crs, err = svc.repo.CreateCourse(ctx, crs); err != nil {
			return errors.Wrap(err, "creating course")
		}
		stats.Courses++
	default:
		return errors.Wrap(err, "finding course")
	}

	for _, co := range rec.CoTeachers {
		coUsr, err := usrSvc.GetOrCreate(ctx, co.Email, co.Name, user.RoleTeacher, co.ExternalID)
		if err != nil {
			return errors.Wrap(err, "upserting co-teacher")
		}
		if coUsr.ID == crs.TeacherID {
			continue
		}
		if err := svc.repo.AddCoTeacher(ctx, crs.ID, coUsr.ID); err != nil {
			return errors.Wrap(err, "linking co-teacher")
		}
	}

	for _, member := range rec.Learners {
		learner, err := usrSvc.GetOrCreate(ctx, member.Email, member.Name, user.RoleLearner, member.ExternalID)
		if err != nil {
			return errors.Wrap(err, "upserting learner")
		}
		enr := Enrollment{
			CourseID:   crs.ID,
			LearnerID:  learner.ID,
			EnrolledAt: time.Now().UTC(),
		}
		if _, err := svc.repo.CreateEnrollment(ctx, enr); err != nil {
			if core.IsConflict(err) {
				continue // already enrolled
			}
			return errors.Wrap(err, "enrolling learner")
		}
		stats.Enrollments++
	}
	return nil
}

func (svc *Service) findLocalCourse(ctx context.Context, rec RosterCourse) (Course, error) {
	if rec.ExternalID != "" {
		if crs, err := svc.repo.GetCourseByExternalID(ctx, rec.ExternalID); err == nil {
			return crs, nil
		} else if errors.Cause(err) != ErrNotFound {
			return Course{}, err
		}
	}
	return svc.repo.GetCourseByEnrollmentNumber(ctx, rec.EnrollmentNumber)
}
