package inmem

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sumitkpand3y/log-book-api/core"
	"github.com/sumitkpand3y/log-book-api/core/caselog"
)

// LogRepository keeps case logs in memory. It leans on the user and course
// repositories for the review joins the database does in SQL.
type LogRepository struct {
	mu   sync.Mutex
	logs map[string]caselog.Log

	usrRepo *UserRepository
	crsRepo *CourseRepository
}

var _ caselog.Repository = (*LogRepository)(nil)

func NewLogRepository(usrRepo *UserRepository, crsRepo *CourseRepository) *LogRepository {
	return &LogRepository{
		logs:    make(map[string]caselog.Log),
		usrRepo: usrRepo,
		crsRepo: crsRepo,
	}
}

func (repo *LogRepository) CreateLog(_ context.Context, lg caselog.Log, _ ...core.DBExecutor) (caselog.Log, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	for _, existing := range repo.logs {
		if existing.CourseID == lg.CourseID && existing.CaseNo == lg.CaseNo {
			return caselog.Log{}, caselog.ErrCaseNumberExists
		}
	}
	if lg.ID == "" {
		lg.ID = newID()
	}
	repo.logs[lg.ID] = lg
	return lg, nil
}

func (repo *LogRepository) GetLogByID(_ context.Context, id string, _ ...core.DBExecutor) (caselog.Log, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	lg, ok := repo.logs[id]
	if !ok {
		return caselog.Log{}, caselog.ErrNotFound
	}
	return lg, nil
}

func (repo *LogRepository) FilterLogs(_ context.Context, filter caselog.QueryFilter, ordering []core.DBOrdering, page core.Pagination, _ ...core.DBExecutor) ([]caselog.Log, int, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	var logs []caselog.Log
	for _, lg := range repo.logs {
		if repo.matches(lg, filter) {
			logs = append(logs, lg)
		}
	}
	sortLogs(logs, ordering)
	total := len(logs)
	return paginate(logs, page), total, nil
}

func (repo *LogRepository) CountCourseYearLogs(_ context.Context, courseID string, year int, _ ...core.DBExecutor) (int, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	count := 0
	for _, lg := range repo.logs {
		if lg.CourseID == courseID && lg.Date.Year() == year {
			count++
		}
	}
	return count, nil
}

func (repo *LogRepository) UpdateLogContent(_ context.Context, lg caselog.Log, _ ...core.DBExecutor) (caselog.Log, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	current, ok := repo.logs[lg.ID]
	if !ok {
		return caselog.Log{}, caselog.ErrNotFound
	}
	if current.Status == caselog.StatusApproved {
		return caselog.Log{}, caselog.ErrAlreadyProcessed
	}

	current.Date = lg.Date
	current.Age = lg.Age
	current.Sex = lg.Sex
	current.UHID = lg.UHID
	current.ChiefComplaint = lg.ChiefComplaint
	current.History = lg.History
	current.ExamFindings = lg.ExamFindings
	current.Diagnosis = lg.Diagnosis
	current.Management = lg.Management
	current.UpdatedAt = lg.UpdatedAt
	repo.logs[current.ID] = current
	return current, nil
}

func (repo *LogRepository) TransitionLog(_ context.Context, id string, from []caselog.Status, tr caselog.Transition, _ ...core.DBExecutor) (caselog.Log, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	lg, ok := repo.logs[id]
	if !ok {
		return caselog.Log{}, caselog.ErrNotFound
	}
	if !statusIn(lg.Status, from) {
		return caselog.Log{}, caselog.ErrAlreadyProcessed
	}

	lg = applyTransition(lg, tr)
	repo.logs[id] = lg
	return lg, nil
}

func (repo *LogRepository) BulkApprove(ctx context.Context, teacherID string, ids []string, comments string, now time.Time, _ ...core.DBExecutor) ([]string, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	var approvedIDs []string
	for _, id := range ids {
		lg, ok := repo.logs[id]
		if !ok || !lg.Status.Pending() {
			continue
		}
		if !repo.crsRepo.isTeacher(teacherID, lg.CourseID) {
			continue
		}

		lg.Status = caselog.StatusApproved
		lg.ApprovedByID = teacherID
		lg.ApprovedAt = now
		lg.RejectionReason = ""
		if comments != "" {
			lg.TeacherComments = comments
		}
		lg.UpdatedAt = now
		repo.logs[id] = lg
		approvedIDs = append(approvedIDs, id)
	}
	return approvedIDs, nil
}

func (repo *LogRepository) DeleteDraftLog(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	lg, ok := repo.logs[id]
	if !ok {
		return caselog.ErrNotFound
	}
	if lg.Status != caselog.StatusDraft {
		return caselog.ErrAlreadyProcessed
	}
	delete(repo.logs, id)
	return nil
}

func (repo *LogRepository) FilterReviewLogs(_ context.Context, teacherID string, filter caselog.QueryFilter, page core.Pagination, _ ...core.DBExecutor) ([]caselog.ReviewLog, int, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	var logs []caselog.Log
	for _, lg := range repo.logs {
		if lg.Status == caselog.StatusDraft || !repo.matches(lg, filter) {
			continue
		}
		if !repo.crsRepo.isTeacher(teacherID, lg.CourseID) {
			continue
		}
		logs = append(logs, lg)
	}
	sortLogs(logs, nil)
	total := len(logs)

	var reviewLogs []caselog.ReviewLog
	for _, lg := range paginate(logs, page) {
		rl := caselog.ReviewLog{Log: lg}
		if usr, ok := repo.usrRepo.lookup(lg.CreatedByID); ok {
			rl.LearnerName = usr.Name
			rl.LearnerEmail = usr.Email
		}
		if crs, ok := repo.crsRepo.lookup(lg.CourseID); ok {
			rl.CourseTitle = crs.Title
			rl.CourseFaculty = crs.Faculty
			rl.CourseEndDate = crs.EndDate
		}
		reviewLogs = append(reviewLogs, rl)
	}
	return reviewLogs, total, nil
}

func (repo *LogRepository) matches(lg caselog.Log, filter caselog.QueryFilter) bool {
	if filter.Status != "" && lg.Status != filter.Status {
		return false
	}
	if filter.Search != "" {
		s := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(lg.CaseNo), s) &&
			!strings.Contains(strings.ToLower(lg.UHID), s) &&
			!strings.Contains(strings.ToLower(lg.ChiefComplaint), s) &&
			!strings.Contains(strings.ToLower(lg.Diagnosis), s) {
			return false
		}
	}
	if filter.Department != "" {
		crs, ok := repo.crsRepo.lookup(lg.CourseID)
		if !ok || !strings.EqualFold(crs.Faculty, filter.Department) {
			return false
		}
	}
	if filter.CourseID != "" && lg.CourseID != filter.CourseID {
		return false
	}
	if !filter.DateFrom.IsZero() && lg.Date.Before(filter.DateFrom) {
		return false
	}
	if !filter.DateTo.IsZero() && lg.Date.After(filter.DateTo) {
		return false
	}
	if filter.CreatedByID != "" && lg.CreatedByID != filter.CreatedByID {
		return false
	}
	if filter.TeacherID != "" && !repo.crsRepo.isTeacher(filter.TeacherID, lg.CourseID) {
		return false
	}
	if filter.ExcludeDrafts && lg.Status == caselog.StatusDraft {
		return false
	}
	return true
}

func applyTransition(lg caselog.Log, tr caselog.Transition) caselog.Log {
	lg.Status = tr.To
	lg.UpdatedAt = tr.UpdatedAt
	if tr.SubmittedAt != nil {
		lg.SubmittedAt = *tr.SubmittedAt
	}
	if tr.ApprovedByID != "" {
		lg.ApprovedByID = tr.ApprovedByID
	}
	if tr.ApprovedAt != nil {
		lg.ApprovedAt = *tr.ApprovedAt
	}
	if tr.RejectedByID != "" {
		lg.RejectedByID = tr.RejectedByID
	}
	if tr.RejectedAt != nil {
		lg.RejectedAt = *tr.RejectedAt
	}
	if tr.RejectionReason != nil {
		lg.RejectionReason = *tr.RejectionReason
	}
	if tr.TeacherComments != nil {
		lg.TeacherComments = *tr.TeacherComments
	}
	return lg
}

func statusIn(st caselog.Status, set []caselog.Status) bool {
	for _, s := range set {
		if s == st {
			return true
		}
	}
	return false
}

// sortLogs applies the requested ordering, defaulting to the review order:
// newest first, then status. Ties fall back to the log id.
func sortLogs(logs []caselog.Log, ordering []core.DBOrdering) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{
			{Field: "created_at"},
			{Field: "status", Ascending: true},
		}
	}
	sort.Slice(logs, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareLogField(logs[i], logs[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return logs[i].ID < logs[j].ID
	})
}

func compareLogField(a, b caselog.Log, field string) int {
	switch field {
	case "created_at":
		return compareTimes(a.CreatedAt, b.CreatedAt)
	case "updated_at":
		return compareTimes(a.UpdatedAt, b.UpdatedAt)
	case "date":
		return compareTimes(a.Date, b.Date)
	case "case_no":
		return strings.Compare(a.CaseNo, b.CaseNo)
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	}
	return 0
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func paginate(logs []caselog.Log, page core.Pagination) []caselog.Log {
	if page.Limit <= 0 {
		return logs
	}
	offset := page.Offset()
	if offset >= len(logs) {
		return nil
	}
	end := offset + page.Limit
	if end > len(logs) {
		end = len(logs)
	}
	return logs[offset:end]
}
