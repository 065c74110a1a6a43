package caselog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/sumitkpand3y/log-book-api/core"
	"github.com/sumitkpand3y/log-book-api/core/audit"
	"github.com/sumitkpand3y/log-book-api/core/course"
	"github.com/sumitkpand3y/log-book-api/core/user"
)

var NowFunc = time.Now // mockable

var defaultOrdering = []core.DBOrdering{
	{Field: "created_at"},
	{Field: "status", Ascending: true},
}

type Service struct {
	repo     Repository
	crsRepo  course.Repository
	usrRepo  user.Repository
	recorder audit.Recorder
	mailSvc  core.EmailService
	logger   core.Logger
	validate *validator.Validate
}

func NewService(
	repo Repository,
	crsRepo course.Repository,
	usrRepo user.Repository,
	recorder audit.Recorder,
	mailSvc core.EmailService,
	logger core.Logger,
	validate *validator.Validate,
) *Service {
	return &Service{
		repo:     repo,
		crsRepo:  crsRepo,
		usrRepo:  usrRepo,
		recorder: recorder,
		mailSvc:  mailSvc,
		logger:   logger,
		validate: validate,
	}
}

// Create files a new case log for an enrolled learner. The requested status
// may be DRAFT or SUBMITTED; submitting on create stamps submittedAt.
// Case-number allocation is count-based and inherently racy, so creation
// retries when the storage unique constraint reports a collision.
func (svc *Service) Create(ctx context.Context, actor user.User, nl NewLog) (Log, error) {
	if !CanCreateLog(actor) {
		return Log{}, ErrPermissionDenied
	}
	if err := nl.Validate(svc.validate); err != nil {
		return Log{}, err
	}

	if _, err := svc.crsRepo.GetCourseByID(ctx, nl.CourseID); err != nil {
		return Log{}, err
	}
	if _, err := svc.crsRepo.GetEnrollment(ctx, nl.CourseID, actor.ID); err != nil {
		if errors.Cause(err) == course.ErrEnrollmentNotFound {
			return Log{}, ErrNotEnrolled
		}
		return Log{}, errors.Wrap(err, "checking enrollment")
	}

	now := NowFunc().UTC()
	lg := Log{
		Date:           nl.Date,
		Age:            nl.Age,
		Sex:            nl.Sex,
		UHID:           nl.UHID,
		ChiefComplaint: nl.ChiefComplaint,
		History:        nl.History,
		ExamFindings:   nl.ExamFindings,
		Diagnosis:      nl.Diagnosis,
		Management:     nl.Management,
		Status:         nl.Status,
		CourseID:       nl.CourseID,
		CreatedByID:    actor.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if lg.Status == StatusSubmitted {
		lg.SubmittedAt = now
	}

	year := lg.Date.Year()
	var created Log
	var err error
	for attempt := 0; attempt < caseNoAttempts; attempt++ {
		var count int
		if count, err = svc.repo.CountCourseYearLogs(ctx, nl.CourseID, year); err != nil {
			return Log{}, errors.Wrap(err, "counting course logs")
		}
		lg.CaseNo = FormatCaseNumber(year, count+1)

		if created, err = svc.repo.CreateLog(ctx, lg); err == nil {
			break
		}
		if errors.Cause(err) != ErrCaseNumberExists {
			return Log{}, err
		}
	}
	if err != nil {
		return Log{}, err
	}

	svc.record(ctx, actor, created, audit.ActionCaseCreated)
	return created, nil
}

// Get returns a single log if the actor may see it. Absent and forbidden are
// indistinguishable on purpose.
func (svc *Service) Get(ctx context.Context, actor user.User, id string) (Log, error) {
	lg, err := svc.repo.GetLogByID(ctx, id)
	if err != nil {
		return Log{}, err
	}
	if err := svc.checkVisible(ctx, actor, lg); err != nil {
		return Log{}, err
	}
	return lg, nil
}

// Update rewrites the content fields. Only the creator may edit, and an
// APPROVED log is immutable; the storage write re-checks that in the same
// statement so a racing approval cannot be overwritten.
func (svc *Service) Update(ctx context.Context, actor user.User, id string, ul UpdateLog) (Log, error) {
	lg, err := svc.repo.GetLogByID(ctx, id)
	if err != nil {
		return Log{}, err
	}
	if err := svc.checkVisible(ctx, actor, lg); err != nil {
		return Log{}, err
	}
	if !CanEditLog(actor, lg) {
		return Log{}, ErrPermissionDenied
	}
	if err := ul.Validate(svc.validate); err != nil {
		return Log{}, err
	}

	if !ul.Date.IsZero() {
		lg.Date = ul.Date
	}
	if ul.Age != nil {
		lg.Age = *ul.Age
	}
	if ul.Sex != "" {
		lg.Sex = ul.Sex
	}
	if ul.UHID != "" {
		lg.UHID = ul.UHID
	}
	if ul.ChiefComplaint != "" {
		lg.ChiefComplaint = ul.ChiefComplaint
	}
	if ul.History != "" {
		lg.History = ul.History
	}
	if ul.ExamFindings != "" {
		lg.ExamFindings = ul.ExamFindings
	}
	if ul.Diagnosis != "" {
		lg.Diagnosis = ul.Diagnosis
	}
	if ul.Management != "" {
		lg.Management = ul.Management
	}
	lg.UpdatedAt = NowFunc().UTC()

	updated, err := svc.repo.UpdateLogContent(ctx, lg)
	if err != nil {
		return Log{}, err
	}
	svc.record(ctx, actor, updated, audit.ActionCaseUpdated)
	return updated, nil
}

// Submit moves a draft to SUBMITTED, or a rejected log back into review as
// RESUBMITTED, clearing the rejection reason.
func (svc *Service) Submit(ctx context.Context, actor user.User, id string) (Log, error) {
	lg, err := svc.repo.GetLogByID(ctx, id)
	if err != nil {
		return Log{}, err
	}
	if err := svc.checkVisible(ctx, actor, lg); err != nil {
		return Log{}, err
	}
	if actor.ID != lg.CreatedByID {
		return Log{}, ErrPermissionDenied
	}

	var to Status
	switch lg.Status {
	case StatusDraft:
		to = StatusSubmitted
	case StatusRejected:
		to = StatusResubmitted
	default:
		return Log{}, ErrInvalidTransition
	}

	now := NowFunc().UTC()
	tr := Transition{
		To:          to,
		SubmittedAt: &now,
		UpdatedAt:   now,
	}
	if lg.Status == StatusRejected {
		empty := ""
		tr.RejectionReason = &empty
	}

	submitted, err := svc.repo.TransitionLog(ctx, id, []Status{lg.Status}, tr)
	if err != nil {
		return Log{}, err
	}
	svc.record(ctx, actor, submitted, audit.ActionCaseSubmitted)
	return submitted, nil
}

// Approve is a teacher decision on a pending log. The precondition status is
// re-checked by the conditional write: of two racing reviewers exactly one
// wins and the other observes ErrAlreadyProcessed.
func (svc *Service) Approve(ctx context.Context, actor user.User, id string, d ApproveDecision) (Log, error) {
	if _, err := svc.reviewable(ctx, actor, id); err != nil {
		return Log{}, err
	}
	if err := d.Validate(svc.validate); err != nil {
		return Log{}, err
	}

	now := NowFunc().UTC()
	empty := ""
	tr := Transition{
		To:              StatusApproved,
		ApprovedByID:    actor.ID,
		ApprovedAt:      &now,
		RejectionReason: &empty,
		UpdatedAt:       now,
	}
	if d.Comments != "" {
		tr.TeacherComments = &d.Comments
	}

	approved, err := svc.repo.TransitionLog(ctx, id, []Status{StatusSubmitted, StatusResubmitted}, tr)
	if err != nil {
		return Log{}, err
	}

	svc.record(ctx, actor, approved, audit.ActionCaseApproved)
	svc.notifyReviewed(ctx, actor, approved)
	return approved, nil
}

// Reject requires a reason of 10 to 1000 characters; validation failures leave
// the log untouched.
func (svc *Service) Reject(ctx context.Context, actor user.User, id string, d RejectDecision) (Log, error) {
	if _, err := svc.reviewable(ctx, actor, id); err != nil {
		return Log{}, err
	}
	if err := d.Validate(svc.validate); err != nil {
		return Log{}, err
	}

	now := NowFunc().UTC()
	tr := Transition{
		To:              StatusRejected,
		RejectedByID:    actor.ID,
		RejectedAt:      &now,
		RejectionReason: &d.Reason,
		UpdatedAt:       now,
	}
	if d.Comments != "" {
		tr.TeacherComments = &d.Comments
	}

	rejected, err := svc.repo.TransitionLog(ctx, id, []Status{StatusSubmitted, StatusResubmitted}, tr)
	if err != nil {
		return Log{}, err
	}

	svc.record(ctx, actor, rejected, audit.ActionCaseRejected)
	svc.notifyReviewed(ctx, actor, rejected)
	return rejected, nil
}

// Delete hard-deletes a draft. Anything past DRAFT stays.
func (svc *Service) Delete(ctx context.Context, actor user.User, id string) error {
	lg, err := svc.repo.GetLogByID(ctx, id)
	if err != nil {
		return err
	}
	if err := svc.checkVisible(ctx, actor, lg); err != nil {
		return err
	}
	if !CanDeleteLog(actor, lg) {
		return ErrPermissionDenied
	}
	if err := svc.repo.DeleteDraftLog(ctx, id); err != nil {
		return err
	}
	svc.record(ctx, actor, lg, audit.ActionCaseDeleted)
	return nil
}

// BulkApprove approves every listed pending log in the teacher's courses in a
// single batched write. Logs a concurrent reviewer already transitioned fall
// out of the batch silently; the count of wins is returned.
func (svc *Service) BulkApprove(ctx context.Context, actor user.User, ids []string, comments string) (int, error) {
	if !actor.IsTeacher() {
		return 0, ErrPermissionDenied
	}
	if len(ids) == 0 {
		return 0, nil
	}

	now := NowFunc().UTC()
	approvedIDs, err := svc.repo.BulkApprove(ctx, actor.ID, ids, comments, now)
	if err != nil {
		return 0, errors.Wrap(err, "bulk approving")
	}

	for _, id := range approvedIDs {
		lg, err := svc.repo.GetLogByID(ctx, id)
		if err != nil {
			svc.logger.Error(fmt.Sprintf("loading approved log %s: %v", id, err), err)
			continue
		}
		svc.record(ctx, actor, lg, audit.ActionCaseApproved)
		svc.notifyReviewed(ctx, actor, lg)
	}
	return len(approvedIDs), nil
}

// List returns the page of logs the actor may see: their own for learners,
// their courses' for teachers, everything for admins.
func (svc *Service) List(ctx context.Context, actor user.User, filter QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]Log, core.PageInfo, error) {
	filter.Clean()
	switch {
	case actor.IsLearner():
		filter.CreatedByID = actor.ID
	case actor.IsTeacher():
		filter.TeacherID = actor.ID
	case actor.IsAdmin():
	default:
		return nil, core.PageInfo{}, ErrPermissionDenied
	}
	if len(ordering) == 0 {
		ordering = defaultOrdering
	}

	logs, total, err := svc.repo.FilterLogs(ctx, filter, ordering, page)
	if err != nil {
		return nil, core.PageInfo{}, err
	}
	if logs == nil {
		logs = []Log{}
	}
	return logs, core.NewPageInfo(page, total), nil
}

// ReviewDashboard aggregates the teacher's visible non-draft logs into one
// submission per (learner, course). Pagination applies to the raw case rows
// before grouping, so a page of N rows may yield fewer submissions and one
// submission's cases can continue on the next page.
func (svc *Service) ReviewDashboard(ctx context.Context, actor user.User, filter QueryFilter, page core.Pagination) ([]Submission, core.PageInfo, error) {
	if !actor.IsTeacher() {
		return nil, core.PageInfo{}, ErrPermissionDenied
	}
	filter.Clean()
	filter.ExcludeDrafts = true

	rows, total, err := svc.repo.FilterReviewLogs(ctx, actor.ID, filter, page)
	if err != nil {
		return nil, core.PageInfo{}, err
	}
	return GroupSubmissions(rows, NowFunc().UTC()), core.NewPageInfo(page, total), nil
}

// ExportCSV streams every log the actor may see, unpaginated.
func (svc *Service) ExportCSV(ctx context.Context, actor user.User, filter QueryFilter, w io.Writer) error {
	logs, _, err := svc.List(ctx, actor, filter, defaultOrdering, core.Pagination{})
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{
		"case_no", "date", "age", "sex", "uhid", "chief_complaint", "history",
		"exam_findings", "diagnosis", "management", "status", "rejection_reason",
		"teacher_comments", "course_id", "created_by_id", "submitted_at",
		"approved_at", "rejected_at", "created_at",
	}
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	for _, lg := range logs {
		row := []string{
			lg.CaseNo,
			fmtDate(lg.Date),
			strconv.Itoa(lg.Age),
			lg.Sex,
			lg.UHID,
			lg.ChiefComplaint,
			lg.History,
			lg.ExamFindings,
			lg.Diagnosis,
			lg.Management,
			string(lg.Status),
			lg.RejectionReason,
			lg.TeacherComments,
			lg.CourseID,
			lg.CreatedByID,
			fmtTime(lg.SubmittedAt),
			fmtTime(lg.ApprovedAt),
			fmtTime(lg.RejectedAt),
			fmtTime(lg.CreatedAt),
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "writing csv row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing csv")
}

// reviewable loads a log and checks the actor may decide on it and that it is
// still pending.
func (svc *Service) reviewable(ctx context.Context, actor user.User, id string) (Log, error) {
	lg, err := svc.repo.GetLogByID(ctx, id)
	if err != nil {
		return Log{}, err
	}
	teacherIDs, err := svc.crsRepo.CourseTeacherIDs(ctx, lg.CourseID)
	if err != nil {
		return Log{}, errors.Wrap(err, "loading course teachers")
	}
	if !CanViewLog(actor, lg, teacherIDs) {
		return Log{}, ErrNotFound
	}
	if !CanReviewLog(actor, teacherIDs) {
		return Log{}, ErrPermissionDenied
	}
	if !lg.Status.Pending() {
		return Log{}, ErrInvalidTransition
	}
	return lg, nil
}

// checkVisible hides logs outside the actor's scope behind ErrNotFound so
// existence does not leak.
func (svc *Service) checkVisible(ctx context.Context, actor user.User, lg Log) error {
	if actor.ID == lg.CreatedByID || actor.IsAdmin() {
		return nil
	}
	teacherIDs, err := svc.crsRepo.CourseTeacherIDs(ctx, lg.CourseID)
	if err != nil {
		return errors.Wrap(err, "loading course teachers")
	}
	if !CanViewLog(actor, lg, teacherIDs) {
		return ErrNotFound
	}
	return nil
}

func (svc *Service) record(ctx context.Context, actor user.User, lg Log, action string) {
	ev := audit.Event{
		UserID:   actor.ID,
		CourseID: lg.CourseID,
		Action:   action,
		Metadata: map[string]interface{}{
			"log_id":  lg.ID,
			"case_no": lg.CaseNo,
			"status":  string(lg.Status),
		},
		CreatedAt: NowFunc().UTC(),
	}
	if err := svc.recorder.Record(ctx, ev); err != nil {
		svc.logger.Error(fmt.Sprintf("recording %s event: %v", action, err), err)
	}
}

// notifyReviewed emails the learner about the decision. Delivery is
// best-effort and never affects the committed transition.
func (svc *Service) notifyReviewed(ctx context.Context, teacher user.User, lg Log) {
	learner, err := svc.usrRepo.GetUserByID(ctx, lg.CreatedByID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("loading learner for notification: %v", err), err)
		return
	}
	crs, err := svc.crsRepo.GetCourseByID(ctx, lg.CourseID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("loading course for notification: %v", err), err)
		return
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: learner.Name, Address: learner.Email}},
		Subject:      fmt.Sprintf("Case %s %s", lg.CaseNo, strings.ToLower(string(lg.Status))),
		TemplateName: "case-reviewed",
		TemplateData: struct {
			LearnerName     string
			CaseNo          string
			CourseTitle     string
			Status          string
			TeacherName     string
			Comments        string
			RejectionReason string
			LogID           string
		}{
			LearnerName:     learner.Name,
			CaseNo:          lg.CaseNo,
			CourseTitle:     crs.Title,
			Status:          strings.ToLower(string(lg.Status)),
			TeacherName:     teacher.Name,
			Comments:        lg.TeacherComments,
			RejectionReason: lg.RejectionReason,
			LogID:           lg.ID,
		},
	})
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func fmtDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
