package caselog_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumitkpand3y/log-book-api/core"
	"github.com/sumitkpand3y/log-book-api/core/caselog"
	"github.com/sumitkpand3y/log-book-api/core/course"
	"github.com/sumitkpand3y/log-book-api/core/user"
	"github.com/sumitkpand3y/log-book-api/services/email"
	"github.com/sumitkpand3y/log-book-api/services/logger"
	"github.com/sumitkpand3y/log-book-api/storage/inmem"
)

var fixedNow = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	ctx context.Context
	svc *caselog.Service

	usrRepo  *inmem.UserRepository
	crsRepo  *inmem.CourseRepository
	logRepo  *inmem.LogRepository
	recorder *inmem.AuditRecorder
	mail     *email.ServiceMock

	learner      user.User
	otherLearner user.User
	teacher      user.User
	coTeacher    user.User
	outsider     user.User // teacher of no relevant course
	admin        user.User

	course course.Course
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	caselog.NowFunc = func() time.Time { return fixedNow }
	t.Cleanup(func() { caselog.NowFunc = time.Now })

	validate, trans := core.NewValidator()
	caselog.RegisterValidators(validate, trans)

	f := &fixture{
		ctx:      context.Background(),
		usrRepo:  inmem.NewUserRepository(),
		crsRepo:  inmem.NewCourseRepository(),
		recorder: inmem.NewAuditRecorder(),
		mail:     email.NewServiceMock(),
	}
	f.logRepo = inmem.NewLogRepository(f.usrRepo, f.crsRepo)
	f.svc = caselog.NewService(f.logRepo, f.crsRepo, f.usrRepo, f.recorder, f.mail, logger.NewStdLogger(false), validate)

	f.learner = f.addUser(t, "amina", "amina@example.com", user.RoleLearner)
	f.otherLearner = f.addUser(t, "ben", "ben@example.com", user.RoleLearner)
	f.teacher = f.addUser(t, "divya", "divya@example.com", user.RoleTeacher)
	f.coTeacher = f.addUser(t, "emeka", "emeka@example.com", user.RoleTeacher)
	f.outsider = f.addUser(t, "farah", "farah@example.com", user.RoleTeacher)
	f.admin = f.addUser(t, "gopal", "gopal@example.com", user.RoleAdmin)

	f.course = f.addCourse(t, "cardio", "CARD-01", f.teacher.ID)
	require.NoError(t, f.crsRepo.AddCoTeacher(f.ctx, f.course.ID, f.coTeacher.ID))
	f.enroll(t, f.course.ID, f.learner.ID)
	f.enroll(t, f.course.ID, f.otherLearner.ID)
	return f
}

func (f *fixture) addUser(t *testing.T, id, mail string, role user.Role) user.User {
	t.Helper()
	usr, err := f.usrRepo.CreateUser(f.ctx, user.User{
		ID: id, Name: id, Email: mail, Role: role,
		CreatedAt: fixedNow, UpdatedAt: fixedNow,
	})
	require.NoError(t, err)
	return usr
}

func (f *fixture) addCourse(t *testing.T, id, number, teacherID string) course.Course {
	t.Helper()
	crs, err := f.crsRepo.CreateCourse(f.ctx, course.Course{
		ID: id, Title: id, EnrollmentNumber: number, Faculty: "Cardiology",
		TeacherID: teacherID, EndDate: fixedNow.Add(30 * 24 * time.Hour),
		Status: course.DefaultStatus, Visible: true,
		CreatedAt: fixedNow, UpdatedAt: fixedNow,
	})
	require.NoError(t, err)
	return crs
}

func (f *fixture) enroll(t *testing.T, courseID, learnerID string) {
	t.Helper()
	_, err := f.crsRepo.CreateEnrollment(f.ctx, course.Enrollment{
		CourseID: courseID, LearnerID: learnerID, EnrolledAt: fixedNow,
	})
	require.NoError(t, err)
}

func newLogInput(courseID string, status caselog.Status) caselog.NewLog {
	return caselog.NewLog{
		CourseID:       courseID,
		Date:           fixedNow.Add(-24 * time.Hour),
		Age:            54,
		Sex:            "M",
		UHID:           "UH-1001",
		ChiefComplaint: "Chest pain on exertion",
		Diagnosis:      "Stable angina",
		Status:         status,
	}
}

func (f *fixture) createLog(t *testing.T, actor user.User, status caselog.Status) caselog.Log {
	t.Helper()
	lg, err := f.svc.Create(f.ctx, actor, newLogInput(f.course.ID, status))
	require.NoError(t, err)
	return lg
}

func TestServiceCreate(t *testing.T) {
	t.Run("draft by default", func(t *testing.T) {
		f := newFixture(t)
		lg, err := f.svc.Create(f.ctx, f.learner, newLogInput(f.course.ID, ""))
		require.NoError(t, err)

		assert.Equal(t, caselog.StatusDraft, lg.Status)
		assert.Equal(t, "CASE-2024-001", lg.CaseNo)
		assert.Equal(t, f.learner.ID, lg.CreatedByID)
		assert.True(t, lg.SubmittedAt.IsZero())
	})

	t.Run("sequence grows within course and year", func(t *testing.T) {
		f := newFixture(t)
		f.createLog(t, f.learner, caselog.StatusDraft)
		f.createLog(t, f.learner, caselog.StatusDraft)
		lg := f.createLog(t, f.otherLearner, caselog.StatusSubmitted)
		assert.Equal(t, "CASE-2024-003", lg.CaseNo)
	})

	t.Run("sequence scoped to the clinical date year", func(t *testing.T) {
		f := newFixture(t)
		f.createLog(t, f.learner, caselog.StatusDraft) // CASE-2024-001

		nl := newLogInput(f.course.ID, caselog.StatusDraft)
		nl.Date = time.Date(2023, 12, 30, 0, 0, 0, 0, time.UTC)
		lg, err := f.svc.Create(f.ctx, f.learner, nl)
		require.NoError(t, err)
		assert.Equal(t, "CASE-2023-001", lg.CaseNo)
	})

	t.Run("submitted on create stamps submittedAt", func(t *testing.T) {
		f := newFixture(t)
		lg := f.createLog(t, f.learner, caselog.StatusSubmitted)
		assert.Equal(t, caselog.StatusSubmitted, lg.Status)
		assert.Equal(t, fixedNow, lg.SubmittedAt)
	})

	t.Run("requires enrollment", func(t *testing.T) {
		f := newFixture(t)
		other := f.addCourse(t, "ortho", "ORTH-01", f.outsider.ID)

		_, err := f.svc.Create(f.ctx, f.learner, newLogInput(other.ID, ""))
		assert.True(t, core.IsPermissionDenied(err))
	})

	t.Run("teachers cannot author logs", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Create(f.ctx, f.teacher, newLogInput(f.course.ID, ""))
		assert.True(t, core.IsPermissionDenied(err))
	})

	t.Run("invalid initial status", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Create(f.ctx, f.learner, newLogInput(f.course.ID, caselog.StatusApproved))
		require.Error(t, err)
		assert.False(t, core.IsPermissionDenied(err))
	})
}

func TestServiceSubmit(t *testing.T) {
	t.Run("draft to submitted", func(t *testing.T) {
		f := newFixture(t)
		lg := f.createLog(t, f.learner, caselog.StatusDraft)

		submitted, err := f.svc.Submit(f.ctx, f.learner, lg.ID)
		require.NoError(t, err)
		assert.Equal(t, caselog.StatusSubmitted, submitted.Status)
		assert.Equal(t, fixedNow, submitted.SubmittedAt)
	})

	t.Run("rejected to resubmitted clears the reason", func(t *testing.T) {
		f := newFixture(t)
		lg := f.createLog(t, f.learner, caselog.StatusSubmitted)
		_, err := f.svc.Reject(f.ctx, f.teacher, lg.ID, caselog.RejectDecision{Reason: "missing examination findings"})
		require.NoError(t, err)

		resubmitted, err := f.svc.Submit(f.ctx, f.learner, lg.ID)
		require.NoError(t, err)
		assert.Equal(t, caselog.StatusResubmitted, resubmitted.Status)
		assert.Empty(t, resubmitted.RejectionReason)
	})

	t.Run("submitted cannot be submitted again", func(t *testing.T) {
		f := newFixture(t)
		lg := f.createLog(t, f.learner, caselog.StatusSubmitted)
		_, err := f.svc.Submit(f.ctx, f.learner, lg.ID)
		assert.True(t, core.IsConflict(err))
	})

	t.Run("only the creator submits", func(t *testing.T) {
		f := newFixture(t)
		lg := f.createLog(t, f.learner, caselog.StatusDraft)
		_, err := f.svc.Submit(f.ctx, f.otherLearner, lg.ID)
		assert.True(t, core.IsNotFound(err))
	})
}

func TestServiceApprove(t *testing.T) {
	t.Run("approves a submitted log", func(t *testing.T) {
		f := newFixture(t)
		lg := f.createLog(t, f.learner, caselog.StatusSubmitted)

		approved, err := f.svc.Approve(f.ctx, f.teacher, lg.ID, caselog.ApproveDecision{Comments: "well documented"})
		require.NoError(t, err)
		assert.Equal(t, caselog.StatusApproved, approved.Status)
		assert.Equal(t, f.teacher.ID, approved.ApprovedByID)
		assert.Equal(t, fixedNow, approved.ApprovedAt)
		assert.Equal(t, "well documented", approved.TeacherComments)
		assert.True(t, !approved.ApprovedAt.Before(approved.SubmittedAt))
	})

	t.Run("co-teacher may approve", func(t *testing.T) {
		f := newFixture(t)
		lg := f.createLog(t, f.learner, caselog.StatusSubmitted)
		_, err := f.svc.Approve(f.ctx, f.coTeacher, lg.ID, caselog.ApproveDecision{})
		assert.NoError(t, err)
	})

	t.Run("unrelated teacher cannot even see the log", func(t *testing.T) {
		f := newFixture(t)
		lg := f.createLog(t, f.learner, caselog.StatusSubmitted)
		_, err := f.svc.Approve(f.ctx, f.outsider, lg.ID, caselog.ApproveDecision{})
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("approved is terminal", func(t *testing.T) {
		f := newFixture(t)
		lg := f.createLog(t, f.learner, caselog.StatusSubmitted)
		_, err := f.svc.Approve(f.ctx, f.teacher, lg.ID, caselog.ApproveDecision{})
		require.NoError(t, err)

		_, err = f.svc.Approve(f.ctx, f.teacher, lg.ID, caselog.ApproveDecision{})
		assert.True(t, core.IsConflict(err))
		_, err = f.svc.Reject(f.ctx, f.teacher, lg.ID, caselog.RejectDecision{Reason: "changed my mind about it"})
		assert.True(t, core.IsConflict(err))
		_, err = f.svc.Submit(f.ctx, f.learner, lg.ID)
		assert.True(t, core.IsConflict(err))
	})

	t.Run("draft cannot be approved", func(t *testing.T) {
		f := newFixture(t)
		lg := f.createLog(t, f.learner, caselog.StatusDraft)
		_, err := f.svc.Approve(f.ctx, f.teacher, lg.ID, caselog.ApproveDecision{})
		assert.True(t, core.IsConflict(err))
	})

	t.Run("notifies the learner", func(t *testing.T) {
		f := newFixture(t)
		lg := f.createLog(t, f.learner, caselog.StatusSubmitted)
		_, err := f.svc.Approve(f.ctx, f.teacher, lg.ID, caselog.ApproveDecision{})
		require.NoError(t, err)

		sent := f.mail.Sent()
		require.Len(t, sent, 1)
		assert.Equal(t, f.learner.Email, sent[0].To[0].Address)
		assert.Contains(t, sent[0].Subject, lg.CaseNo)
	})
}

func TestServiceReject(t *testing.T) {
	t.Run("requires a substantive reason", func(t *testing.T) {
		f := newFixture(t)
		lg := f.createLog(t, f.learner, caselog.StatusSubmitted)

		_, err := f.svc.Reject(f.ctx, f.teacher, lg.ID, caselog.RejectDecision{Reason: "too short"})
		require.Error(t, err)

		// nothing changed
		current, err := f.svc.Get(f.ctx, f.learner, lg.ID)
		require.NoError(t, err)
		assert.Equal(t, caselog.StatusSubmitted, current.Status)
		assert.Empty(t, current.RejectionReason)
	})

	t.Run("rejects with reason and actor", func(t *testing.T) {
		f := newFixture(t)
		lg := f.createLog(t, f.learner, caselog.StatusSubmitted)

		rejected, err := f.svc.Reject(f.ctx, f.teacher, lg.ID, caselog.RejectDecision{
			Reason: "diagnosis is not supported by the findings",
		})
		require.NoError(t, err)
		assert.Equal(t, caselog.StatusRejected, rejected.Status)
		assert.Equal(t, f.teacher.ID, rejected.RejectedByID)
		assert.Equal(t, fixedNow, rejected.RejectedAt)
		assert.Equal(t, "diagnosis is not supported by the findings", rejected.RejectionReason)
	})

	t.Run("full rework loop", func(t *testing.T) {
		f := newFixture(t)
		lg := f.createLog(t, f.learner, caselog.StatusSubmitted)

		_, err := f.svc.Reject(f.ctx, f.teacher, lg.ID, caselog.RejectDecision{Reason: "please add the management plan"})
		require.NoError(t, err)
		_, err = f.svc.Submit(f.ctx, f.learner, lg.ID)
		require.NoError(t, err)

		approved, err := f.svc.Approve(f.ctx, f.coTeacher, lg.ID, caselog.ApproveDecision{})
		require.NoError(t, err)
		assert.Equal(t, caselog.StatusApproved, approved.Status)
		assert.Empty(t, approved.RejectionReason)
	})
}

func TestServiceConcurrentDecisions(t *testing.T) {
	f := newFixture(t)
	lg := f.createLog(t, f.learner, caselog.StatusSubmitted)

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = f.svc.Approve(f.ctx, f.teacher, lg.ID, caselog.ApproveDecision{})
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = f.svc.Reject(f.ctx, f.coTeacher, lg.ID, caselog.RejectDecision{Reason: "needs more detail throughout"})
	}()
	wg.Wait()

	// exactly one decision wins; the loser sees a conflict
	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.True(t, core.IsConflict(err))
		}
	}
	assert.Equal(t, 1, wins)

	current, err := f.svc.Get(f.ctx, f.admin, lg.ID)
	require.NoError(t, err)
	assert.True(t, current.Status == caselog.StatusApproved || current.Status == caselog.StatusRejected)
}

func TestServiceUpdate(t *testing.T) {
	t.Run("creator edits content", func(t *testing.T) {
		f := newFixture(t)
		lg := f.createLog(t, f.learner, caselog.StatusDraft)

		updated, err := f.svc.Update(f.ctx, f.learner, lg.ID, caselog.UpdateLog{Diagnosis: "Unstable angina"})
		require.NoError(t, err)
		assert.Equal(t, "Unstable angina", updated.Diagnosis)
		assert.Equal(t, lg.ChiefComplaint, updated.ChiefComplaint)
		assert.Equal(t, lg.CaseNo, updated.CaseNo)
	})

	t.Run("reviewer cannot edit", func(t *testing.T) {
		f := newFixture(t)
		lg := f.createLog(t, f.learner, caselog.StatusSubmitted)
		_, err := f.svc.Update(f.ctx, f.teacher, lg.ID, caselog.UpdateLog{Diagnosis: "Changed"})
		assert.True(t, core.IsPermissionDenied(err))
	})

	t.Run("stranger sees not found", func(t *testing.T) {
		f := newFixture(t)
		lg := f.createLog(t, f.learner, caselog.StatusDraft)
		_, err := f.svc.Update(f.ctx, f.otherLearner, lg.ID, caselog.UpdateLog{Diagnosis: "Changed"})
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("approved log is immutable", func(t *testing.T) {
		f := newFixture(t)
		lg := f.createLog(t, f.learner, caselog.StatusSubmitted)
		_, err := f.svc.Approve(f.ctx, f.teacher, lg.ID, caselog.ApproveDecision{})
		require.NoError(t, err)

		_, err = f.svc.Update(f.ctx, f.learner, lg.ID, caselog.UpdateLog{Diagnosis: "Changed"})
		assert.True(t, core.IsPermissionDenied(err))
	})
}

func TestServiceDelete(t *testing.T) {
	t.Run("draft only", func(t *testing.T) {
		f := newFixture(t)
		draft := f.createLog(t, f.learner, caselog.StatusDraft)
		submitted := f.createLog(t, f.learner, caselog.StatusSubmitted)

		require.NoError(t, f.svc.Delete(f.ctx, f.learner, draft.ID))
		_, err := f.svc.Get(f.ctx, f.learner, draft.ID)
		assert.True(t, core.IsNotFound(err))

		err = f.svc.Delete(f.ctx, f.learner, submitted.ID)
		assert.True(t, core.IsPermissionDenied(err))
	})

	t.Run("only the creator deletes", func(t *testing.T) {
		f := newFixture(t)
		draft := f.createLog(t, f.learner, caselog.StatusDraft)
		err := f.svc.Delete(f.ctx, f.otherLearner, draft.ID)
		assert.True(t, core.IsNotFound(err))
	})
}

func TestServiceBulkApprove(t *testing.T) {
	f := newFixture(t)
	submitted1 := f.createLog(t, f.learner, caselog.StatusSubmitted)
	submitted2 := f.createLog(t, f.otherLearner, caselog.StatusSubmitted)
	draft := f.createLog(t, f.learner, caselog.StatusDraft)

	// a pending log in a course the teacher has no claim on
	other := f.addCourse(t, "ortho", "ORTH-01", f.outsider.ID)
	f.enroll(t, other.ID, f.learner.ID)
	foreign, err := f.svc.Create(f.ctx, f.learner, newLogInput(other.ID, caselog.StatusSubmitted))
	require.NoError(t, err)

	ids := []string{submitted1.ID, submitted2.ID, draft.ID, foreign.ID, "no-such-id"}
	approved, err := f.svc.BulkApprove(f.ctx, f.teacher, ids, "looks good")
	require.NoError(t, err)
	assert.Equal(t, 2, approved)

	for _, id := range []string{submitted1.ID, submitted2.ID} {
		lg, err := f.svc.Get(f.ctx, f.admin, id)
		require.NoError(t, err)
		assert.Equal(t, caselog.StatusApproved, lg.Status)
		assert.Equal(t, "looks good", lg.TeacherComments)
	}

	lg, err := f.svc.Get(f.ctx, f.admin, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, caselog.StatusDraft, lg.Status)

	lg, err = f.svc.Get(f.ctx, f.admin, foreign.ID)
	require.NoError(t, err)
	assert.Equal(t, caselog.StatusSubmitted, lg.Status)

	assert.Len(t, f.mail.Sent(), 2)
}

func TestServiceList(t *testing.T) {
	f := newFixture(t)
	mine := f.createLog(t, f.learner, caselog.StatusDraft)
	theirs := f.createLog(t, f.otherLearner, caselog.StatusSubmitted)

	// a log in a course outside f.teacher's scope
	other := f.addCourse(t, "ortho", "ORTH-01", f.outsider.ID)
	f.enroll(t, other.ID, f.learner.ID)
	foreign, err := f.svc.Create(f.ctx, f.learner, newLogInput(other.ID, caselog.StatusSubmitted))
	require.NoError(t, err)

	page := core.Pagination{Page: 1, Limit: 10}

	t.Run("learner sees only their own", func(t *testing.T) {
		logs, pageInfo, err := f.svc.List(f.ctx, f.learner, caselog.QueryFilter{}, nil, page)
		require.NoError(t, err)
		assert.Equal(t, 2, pageInfo.Total)
		for _, lg := range logs {
			assert.Equal(t, f.learner.ID, lg.CreatedByID)
		}
	})

	t.Run("teacher sees their courses", func(t *testing.T) {
		logs, pageInfo, err := f.svc.List(f.ctx, f.teacher, caselog.QueryFilter{}, nil, page)
		require.NoError(t, err)
		assert.Equal(t, 2, pageInfo.Total)
		ids := []string{logs[0].ID, logs[1].ID}
		assert.ElementsMatch(t, []string{mine.ID, theirs.ID}, ids)
	})

	t.Run("admin sees everything", func(t *testing.T) {
		_, pageInfo, err := f.svc.List(f.ctx, f.admin, caselog.QueryFilter{}, nil, page)
		require.NoError(t, err)
		assert.Equal(t, 3, pageInfo.Total)
	})

	t.Run("status filter", func(t *testing.T) {
		logs, _, err := f.svc.List(f.ctx, f.admin, caselog.QueryFilter{Status: caselog.StatusSubmitted}, nil, page)
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.ElementsMatch(t, []string{theirs.ID, foreign.ID}, []string{logs[0].ID, logs[1].ID})
	})

	t.Run("explicit ordering", func(t *testing.T) {
		ordering := []core.DBOrdering{{Field: "case_no", Ascending: true}}
		logs, _, err := f.svc.List(f.ctx, f.admin, caselog.QueryFilter{}, ordering, page)
		require.NoError(t, err)
		require.Len(t, logs, 3)
		nums := []string{logs[0].CaseNo, logs[1].CaseNo, logs[2].CaseNo}
		assert.True(t, sort.StringsAreSorted(nums), "got %v", nums)
	})
}

func TestServiceReviewDashboard(t *testing.T) {
	f := newFixture(t)
	f.createLog(t, f.learner, caselog.StatusDraft) // drafts stay off the dashboard
	f.createLog(t, f.learner, caselog.StatusSubmitted)
	sub2 := f.createLog(t, f.learner, caselog.StatusSubmitted)
	f.createLog(t, f.otherLearner, caselog.StatusSubmitted)
	_, err := f.svc.Reject(f.ctx, f.teacher, sub2.ID, caselog.RejectDecision{Reason: "incomplete history section"})
	require.NoError(t, err)

	subs, pageInfo, err := f.svc.ReviewDashboard(f.ctx, f.teacher, caselog.QueryFilter{}, core.Pagination{Page: 1, Limit: 10})
	require.NoError(t, err)

	assert.Equal(t, 3, pageInfo.Total) // raw non-draft rows, not groups
	require.Len(t, subs, 2)

	byLearner := map[string]caselog.Submission{}
	for _, sub := range subs {
		byLearner[sub.LearnerID] = sub
	}
	amina := byLearner[f.learner.ID]
	assert.Equal(t, 2, amina.TotalCases)
	assert.Equal(t, 1, amina.PendingCases)
	assert.Equal(t, 1, amina.RejectedCases)
	assert.Equal(t, caselog.SubmissionRejected, amina.Status)

	ben := byLearner[f.otherLearner.ID]
	assert.Equal(t, caselog.SubmissionPending, ben.Status)

	t.Run("learners are refused", func(t *testing.T) {
		_, _, err := f.svc.ReviewDashboard(f.ctx, f.learner, caselog.QueryFilter{}, core.Pagination{Page: 1, Limit: 10})
		assert.True(t, core.IsPermissionDenied(err))
	})
}

func TestServiceExportCSV(t *testing.T) {
	f := newFixture(t)
	f.createLog(t, f.learner, caselog.StatusDraft)
	f.createLog(t, f.learner, caselog.StatusSubmitted)

	var buf bytes.Buffer
	require.NoError(t, f.svc.ExportCSV(f.ctx, f.learner, caselog.QueryFilter{}, &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3) // header + 2 logs
	assert.Equal(t, "case_no", records[0][0])
	assert.Equal(t, "status", records[0][10])
}

func TestServiceAudit(t *testing.T) {
	f := newFixture(t)
	lg := f.createLog(t, f.learner, caselog.StatusSubmitted)
	_, err := f.svc.Approve(f.ctx, f.teacher, lg.ID, caselog.ApproveDecision{})
	require.NoError(t, err)

	events := f.recorder.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "case.created", events[0].Action)
	assert.Equal(t, "case.approved", events[1].Action)
	assert.Equal(t, f.teacher.ID, events[1].UserID)
	assert.Equal(t, lg.ID, events[1].Metadata["log_id"])
}

// contestedLogRepo lets a competing creation land first so the initial insert
// collides on the case number.
type contestedLogRepo struct {
	*inmem.LogRepository
	rivalCreator string
	once         sync.Once
}

func (r *contestedLogRepo) CreateLog(ctx context.Context, lg caselog.Log, exec ...core.DBExecutor) (caselog.Log, error) {
	r.once.Do(func() {
		rival := lg
		rival.ID = ""
		rival.CreatedByID = r.rivalCreator
		_, _ = r.LogRepository.CreateLog(ctx, rival)
	})
	return r.LogRepository.CreateLog(ctx, lg, exec...)
}

func TestServiceCreateRetriesOnCaseNumberConflict(t *testing.T) {
	f := newFixture(t)

	validate, trans := core.NewValidator()
	caselog.RegisterValidators(validate, trans)
	repo := &contestedLogRepo{LogRepository: f.logRepo, rivalCreator: f.otherLearner.ID}
	svc := caselog.NewService(repo, f.crsRepo, f.usrRepo, f.recorder, f.mail, logger.NewStdLogger(false), validate)

	created, err := svc.Create(f.ctx, f.learner, newLogInput(f.course.ID, caselog.StatusDraft))
	require.NoError(t, err)
	assert.Equal(t, "CASE-2024-002", created.CaseNo)

	// the competing log kept the first number
	logs, total, err := f.logRepo.FilterLogs(f.ctx, caselog.QueryFilter{CourseID: f.course.ID}, nil, core.Pagination{})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	assert.ElementsMatch(t,
		[]string{"CASE-2024-001", "CASE-2024-002"},
		[]string{logs[0].CaseNo, logs[1].CaseNo})
}

func TestServiceConcurrentCreate(t *testing.T) {
	f := newFixture(t)

	type result struct {
		lg  caselog.Log
		err error
	}
	results := make(chan result, 2)

	var wg sync.WaitGroup
	for _, actor := range []user.User{f.learner, f.otherLearner} {
		wg.Add(1)
		go func(actor user.User) {
			defer wg.Done()
			lg, err := f.svc.Create(f.ctx, actor, newLogInput(f.course.ID, caselog.StatusDraft))
			results <- result{lg, err}
		}(actor)
	}
	wg.Wait()
	close(results)

	var nums []string
	for res := range results {
		require.NoError(t, res.err)
		nums = append(nums, res.lg.CaseNo)
	}
	assert.ElementsMatch(t, []string{"CASE-2024-001", "CASE-2024-002"}, nums)
}
