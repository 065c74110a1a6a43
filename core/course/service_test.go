package course_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumitkpand3y/log-book-api/core"
	"github.com/sumitkpand3y/log-book-api/core/course"
	"github.com/sumitkpand3y/log-book-api/core/user"
	"github.com/sumitkpand3y/log-book-api/services/logger"
	"github.com/sumitkpand3y/log-book-api/storage/inmem"
)

type fixture struct {
	ctx     context.Context
	svc     *course.Service
	usrSvc  *user.Service
	usrRepo *inmem.UserRepository
	crsRepo *inmem.CourseRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:     context.Background(),
		usrRepo: inmem.NewUserRepository(),
		crsRepo: inmem.NewCourseRepository(),
	}
	log := logger.NewStdLogger(false)
	f.svc = course.NewService(f.crsRepo, f.usrRepo, log)
	f.usrSvc = user.NewService(f.usrRepo, log)
	return f
}

func (f *fixture) addUser(t *testing.T, email string, role user.Role) user.User {
	t.Helper()
	usr, err := f.usrRepo.CreateUser(f.ctx, user.User{Name: email, Email: email, Role: role})
	require.NoError(t, err)
	return usr
}

func TestServiceCreate(t *testing.T) {
	f := newFixture(t)
	teacher := f.addUser(t, "teacher@example.com", user.RoleTeacher)
	learner := f.addUser(t, "learner@example.com", user.RoleLearner)

	t.Run("ok", func(t *testing.T) {
		crs, err := f.svc.Create(f.ctx, course.NewCourse{
			Title: "Cardiology", EnrollmentNumber: "CARD-01", TeacherID: teacher.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, teacher.ID, crs.TeacherID)
		assert.Equal(t, course.DefaultStatus, crs.Status)
		assert.True(t, crs.Visible)
	})

	t.Run("owner must hold the teacher role", func(t *testing.T) {
		_, err := f.svc.Create(f.ctx, course.NewCourse{
			Title: "Orthopedics", EnrollmentNumber: "ORTH-01", TeacherID: learner.ID,
		})
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "teacher_id", vErr.Fields[0].Field)
	})

	t.Run("unknown owner", func(t *testing.T) {
		_, err := f.svc.Create(f.ctx, course.NewCourse{
			Title: "Neurology", EnrollmentNumber: "NEUR-01", TeacherID: "nope",
		})
		var vErr *core.ValidationError
		assert.ErrorAs(t, err, &vErr)
	})

	t.Run("duplicate enrollment number", func(t *testing.T) {
		_, err := f.svc.Create(f.ctx, course.NewCourse{
			Title: "Cardiology II", EnrollmentNumber: "CARD-01", TeacherID: teacher.ID,
		})
		assert.True(t, core.IsConflict(err))
	})
}

func TestServiceEnroll(t *testing.T) {
	f := newFixture(t)
	teacher := f.addUser(t, "teacher@example.com", user.RoleTeacher)
	learner := f.addUser(t, "learner@example.com", user.RoleLearner)
	crs, err := f.svc.Create(f.ctx, course.NewCourse{
		Title: "Cardiology", EnrollmentNumber: "CARD-01", TeacherID: teacher.ID,
	})
	require.NoError(t, err)

	enr, err := f.svc.Enroll(f.ctx, crs.ID, learner.ID)
	require.NoError(t, err)
	assert.Equal(t, crs.ID, enr.CourseID)

	enrolled, err := f.svc.IsEnrolled(f.ctx, crs.ID, learner.ID)
	require.NoError(t, err)
	assert.True(t, enrolled)

	t.Run("duplicate enrollment", func(t *testing.T) {
		_, err := f.svc.Enroll(f.ctx, crs.ID, learner.ID)
		assert.True(t, core.IsConflict(err))
	})

	t.Run("teachers are not enrollable", func(t *testing.T) {
		_, err := f.svc.Enroll(f.ctx, crs.ID, teacher.ID)
		var vErr *core.ValidationError
		assert.ErrorAs(t, err, &vErr)
	})

	t.Run("unknown course", func(t *testing.T) {
		_, err := f.svc.Enroll(f.ctx, "nope", learner.ID)
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("not enrolled elsewhere", func(t *testing.T) {
		other := f.addUser(t, "other@example.com", user.RoleLearner)
		enrolled, err := f.svc.IsEnrolled(f.ctx, crs.ID, other.ID)
		require.NoError(t, err)
		assert.False(t, enrolled)
	})
}

func TestServiceAddCoTeacher(t *testing.T) {
	f := newFixture(t)
	teacher := f.addUser(t, "teacher@example.com", user.RoleTeacher)
	coTeacher := f.addUser(t, "co@example.com", user.RoleTeacher)
	learner := f.addUser(t, "learner@example.com", user.RoleLearner)
	crs, err := f.svc.Create(f.ctx, course.NewCourse{
		Title: "Cardiology", EnrollmentNumber: "CARD-01", TeacherID: teacher.ID,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.AddCoTeacher(f.ctx, crs.ID, coTeacher.ID))

	ids, err := f.svc.TeacherIDs(f.ctx, crs.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{teacher.ID, coTeacher.ID}, ids) // owner first

	t.Run("learners cannot co-teach", func(t *testing.T) {
		err := f.svc.AddCoTeacher(f.ctx, crs.ID, learner.ID)
		var vErr *core.ValidationError
		assert.ErrorAs(t, err, &vErr)
	})
}

func rosterFixture() course.RosterCourse {
	return course.RosterCourse{
		ExternalID:       "lms-101",
		Title:            "Cardiology",
		EnrollmentNumber: "CARD-01",
		Faculty:          "Cardiology",
		StartDate:        time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
		EndDate:          time.Date(2024, 7, 8, 0, 0, 0, 0, time.UTC),
		Teacher:          course.RosterMember{ExternalID: "lms-t1", Email: "divya@example.com", Name: "Divya"},
		CoTeachers: []course.RosterMember{
			{ExternalID: "lms-t2", Email: "emeka@example.com", Name: "Emeka"},
		},
		Learners: []course.RosterMember{
			{ExternalID: "lms-l1", Email: "amina@example.com", Name: "Amina"},
			{ExternalID: "lms-l2", Email: "ben@example.com", Name: "Ben"},
		},
	}
}

func TestServiceSyncRoster(t *testing.T) {
	t.Run("creates courses, users and enrollments", func(t *testing.T) {
		f := newFixture(t)
		stats, err := f.svc.SyncRoster(f.ctx, f.usrSvc, []course.RosterCourse{rosterFixture()})
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Courses)
		assert.Equal(t, 2, stats.Enrollments)

		crs, err := f.crsRepo.GetCourseByExternalID(f.ctx, "lms-101")
		require.NoError(t, err)
		assert.Equal(t, "Cardiology", crs.Title)
		assert.True(t, crs.Visible)

		teacher, err := f.usrRepo.GetUserByEmail(f.ctx, "divya@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.RoleTeacher, teacher.Role)
		assert.Equal(t, teacher.ID, crs.TeacherID)

		ids, err := f.svc.TeacherIDs(f.ctx, crs.ID)
		require.NoError(t, err)
		assert.Len(t, ids, 2)
	})

	t.Run("repeated sync creates nothing new", func(t *testing.T) {
		f := newFixture(t)
		rec := rosterFixture()
		_, err := f.svc.SyncRoster(f.ctx, f.usrSvc, []course.RosterCourse{rec})
		require.NoError(t, err)

		stats, err := f.svc.SyncRoster(f.ctx, f.usrSvc, []course.RosterCourse{rec})
		require.NoError(t, err)
		assert.Zero(t, stats.Courses)
		assert.Zero(t, stats.Enrollments)
	})

	t.Run("refreshes mutable fields on resync", func(t *testing.T) {
		f := newFixture(t)
		rec := rosterFixture()
		_, err := f.svc.SyncRoster(f.ctx, f.usrSvc, []course.RosterCourse{rec})
		require.NoError(t, err)

		rec.Title = "Cardiology (updated)"
		rec.EndDate = rec.EndDate.Add(14 * 24 * time.Hour)
		stats, err := f.svc.SyncRoster(f.ctx, f.usrSvc, []course.RosterCourse{rec})
		require.NoError(t, err)
		assert.Zero(t, stats.Courses)

		crs, err := f.crsRepo.GetCourseByExternalID(f.ctx, "lms-101")
		require.NoError(t, err)
		assert.Equal(t, "Cardiology (updated)", crs.Title)
		assert.Equal(t, rec.EndDate, crs.EndDate)
	})

	t.Run("matches by enrollment number when external id is new", func(t *testing.T) {
		f := newFixture(t)
		rec := rosterFixture()
		rec.ExternalID = ""
		_, err := f.svc.SyncRoster(f.ctx, f.usrSvc, []course.RosterCourse{rec})
		require.NoError(t, err)

		rec.ExternalID = "lms-101"
		stats, err := f.svc.SyncRoster(f.ctx, f.usrSvc, []course.RosterCourse{rec})
		require.NoError(t, err)
		assert.Zero(t, stats.Courses)

		crs, err := f.crsRepo.GetCourseByEnrollmentNumber(f.ctx, "CARD-01")
		require.NoError(t, err)
		assert.Equal(t, "lms-101", crs.ExternalID)
	})
}
