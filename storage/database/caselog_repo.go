package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/sumitkpand3y/log-book-api/core"
	"github.com/sumitkpand3y/log-book-api/core/caselog"
)

var logUniqueConstraints = map[string]error{
	"case_log_course_case_no_key": caselog.ErrCaseNumberExists,
}

const logColumns = `id, case_no, date, age, sex, uhid, chief_complaint, history, exam_findings,
diagnosis, management, status, rejection_reason, teacher_comments, course_id, created_by_id,
approved_by_id, rejected_by_id, submitted_at, approved_at, rejected_at, created_at, updated_at`

type logRow struct {
	ID              string      `db:"id"`
	CaseNo          string      `db:"case_no"`
	Date            time.Time   `db:"date"`
	Age             int         `db:"age"`
	Sex             string      `db:"sex"`
	UHID            string      `db:"uhid"`
	ChiefComplaint  string      `db:"chief_complaint"`
	History         string      `db:"history"`
	ExamFindings    string      `db:"exam_findings"`
	Diagnosis       string      `db:"diagnosis"`
	Management      string      `db:"management"`
	Status          string      `db:"status"`
	RejectionReason string      `db:"rejection_reason"`
	TeacherComments string      `db:"teacher_comments"`
	CourseID        string      `db:"course_id"`
	CreatedByID     string      `db:"created_by_id"`
	ApprovedByID    null.String `db:"approved_by_id"`
	RejectedByID    null.String `db:"rejected_by_id"`
	SubmittedAt     null.Time   `db:"submitted_at"`
	ApprovedAt      null.Time   `db:"approved_at"`
	RejectedAt      null.Time   `db:"rejected_at"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`
}

func (row logRow) toLog() caselog.Log {
	return caselog.Log{
		ID:              row.ID,
		CaseNo:          row.CaseNo,
		Date:            row.Date,
		Age:             row.Age,
		Sex:             row.Sex,
		UHID:            row.UHID,
		ChiefComplaint:  row.ChiefComplaint,
		History:         row.History,
		ExamFindings:    row.ExamFindings,
		Diagnosis:       row.Diagnosis,
		Management:      row.Management,
		Status:          caselog.Status(row.Status),
		RejectionReason: row.RejectionReason,
		TeacherComments: row.TeacherComments,
		CourseID:        row.CourseID,
		CreatedByID:     row.CreatedByID,
		ApprovedByID:    row.ApprovedByID.String,
		RejectedByID:    row.RejectedByID.String,
		SubmittedAt:     row.SubmittedAt.Time,
		ApprovedAt:      row.ApprovedAt.Time,
		RejectedAt:      row.RejectedAt.Time,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}

type reviewRow struct {
	logRow
	LearnerName   string    `db:"learner_name"`
	LearnerEmail  string    `db:"learner_email"`
	CourseTitle   string    `db:"course_title"`
	CourseFaculty string    `db:"course_faculty"`
	CourseEndDate null.Time `db:"course_end_date"`
}

type LogRepository struct {
	db *sqlx.DB
}

var _ caselog.Repository = (*LogRepository)(nil)

func NewLogRepository(db *sqlx.DB) *LogRepository {
	return &LogRepository{db: db}
}

func (repo *LogRepository) CreateLog(ctx context.Context, lg caselog.Log, exec ...core.DBExecutor) (caselog.Log, error) {
	if lg.ID == "" {
		lg.ID = uuid.New().String()
	}
	query := fmt.Sprintf(`INSERT INTO case_log (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`, logColumns)

	_, err := executor(repo.db, exec).ExecContext(ctx, query,
		lg.ID, lg.CaseNo, lg.Date, lg.Age, lg.Sex, lg.UHID,
		lg.ChiefComplaint, lg.History, lg.ExamFindings, lg.Diagnosis, lg.Management,
		string(lg.Status), lg.RejectionReason, lg.TeacherComments,
		lg.CourseID, lg.CreatedByID,
		null.NewString(lg.ApprovedByID, lg.ApprovedByID != ""),
		null.NewString(lg.RejectedByID, lg.RejectedByID != ""),
		null.NewTime(lg.SubmittedAt, !lg.SubmittedAt.IsZero()),
		null.NewTime(lg.ApprovedAt, !lg.ApprovedAt.IsZero()),
		null.NewTime(lg.RejectedAt, !lg.RejectedAt.IsZero()),
		lg.CreatedAt, lg.UpdatedAt,
	)
	if err != nil {
		return caselog.Log{}, errors.Wrap(trapUniqueErr(err, logUniqueConstraints), "creating case log")
	}
	return lg, nil
}

func (repo *LogRepository) GetLogByID(ctx context.Context, id string, exec ...core.DBExecutor) (caselog.Log, error) {
	var row logRow
	query := fmt.Sprintf(`SELECT %s FROM case_log WHERE id = $1`, logColumns)
	if err := executor(repo.db, exec).GetContext(ctx, &row, query, id); err != nil {
		return caselog.Log{}, errors.Wrap(trapNoRowsErr(err, caselog.ErrNotFound), "getting case log")
	}
	return row.toLog(), nil
}

func (repo *LogRepository) FilterLogs(ctx context.Context, filter caselog.QueryFilter, ordering []core.DBOrdering, page core.Pagination, exec ...core.DBExecutor) ([]caselog.Log, int, error) {
	ex := executor(repo.db, exec)
	where, args := logFilterWhere(filter, "")

	var total int
	countQuery := fmt.Sprintf(`SELECT count(*) FROM case_log WHERE %s`, where)
	if err := ex.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting case logs")
	}

	query := fmt.Sprintf(`SELECT %s FROM case_log WHERE %s ORDER BY %s%s`,
		logColumns, where, orderBy(ordering, "created_at DESC, status ASC"), limitOffset(page))

	var rows []logRow
	if err := ex.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, errors.Wrap(err, "filtering case logs")
	}
	logs := make([]caselog.Log, len(rows))
	for i, row := range rows {
		logs[i] = row.toLog()
	}
	return logs, total, nil
}

func (repo *LogRepository) CountCourseYearLogs(ctx context.Context, courseID string, year int, exec ...core.DBExecutor) (int, error) {
	var count int
	err := executor(repo.db, exec).GetContext(ctx, &count,
		`SELECT count(*) FROM case_log WHERE course_id = $1 AND date_part('year', date) = $2`,
		courseID, year)
	return count, errors.Wrap(err, "counting course year logs")
}

func (repo *LogRepository) UpdateLogContent(ctx context.Context, lg caselog.Log, exec ...core.DBExecutor) (caselog.Log, error) {
	ex := executor(repo.db, exec)

	// status re-checked in the same statement; a racing approval wins
	query := fmt.Sprintf(`UPDATE case_log
SET date = $2, age = $3, sex = $4, uhid = $5, chief_complaint = $6, history = $7,
    exam_findings = $8, diagnosis = $9, management = $10, updated_at = $11
WHERE id = $1 AND status <> '%s'
RETURNING %s`, caselog.StatusApproved, logColumns)

	var row logRow
	err := ex.GetContext(ctx, &row, query,
		lg.ID, lg.Date, lg.Age, lg.Sex, lg.UHID, lg.ChiefComplaint, lg.History,
		lg.ExamFindings, lg.Diagnosis, lg.Management, lg.UpdatedAt,
	)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return caselog.Log{}, repo.explainMiss(ctx, ex, lg.ID)
		}
		return caselog.Log{}, errors.Wrap(err, "updating case log content")
	}
	return row.toLog(), nil
}

func (repo *LogRepository) TransitionLog(ctx context.Context, id string, from []caselog.Status, tr caselog.Transition, exec ...core.DBExecutor) (caselog.Log, error) {
	ex := executor(repo.db, exec)

	args := []interface{}{id}
	set := func(col string, val interface{}) string {
		args = append(args, val)
		return fmt.Sprintf("%s = $%d", col, len(args))
	}

	sets := []string{set("status", string(tr.To)), set("updated_at", tr.UpdatedAt)}
	if tr.SubmittedAt != nil {
		sets = append(sets, set("submitted_at", *tr.SubmittedAt))
	}
	if tr.ApprovedByID != "" {
		sets = append(sets, set("approved_by_id", tr.ApprovedByID))
	}
	if tr.ApprovedAt != nil {
		sets = append(sets, set("approved_at", *tr.ApprovedAt))
	}
	if tr.RejectedByID != "" {
		sets = append(sets, set("rejected_by_id", tr.RejectedByID))
	}
	if tr.RejectedAt != nil {
		sets = append(sets, set("rejected_at", *tr.RejectedAt))
	}
	if tr.RejectionReason != nil {
		sets = append(sets, set("rejection_reason", *tr.RejectionReason))
	}
	if tr.TeacherComments != nil {
		sets = append(sets, set("teacher_comments", *tr.TeacherComments))
	}

	fromStatuses := make([]string, len(from))
	for i, st := range from {
		fromStatuses[i] = string(st)
	}
	args = append(args, pq.Array(fromStatuses))

	query := fmt.Sprintf(`UPDATE case_log SET %s WHERE id = $1 AND status = ANY($%d) RETURNING %s`,
		strings.Join(sets, ", "), len(args), logColumns)

	var row logRow
	if err := ex.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return caselog.Log{}, repo.explainMiss(ctx, ex, id)
		}
		return caselog.Log{}, errors.Wrap(err, "transitioning case log")
	}
	return row.toLog(), nil
}

func (repo *LogRepository) BulkApprove(ctx context.Context, teacherID string, ids []string, comments string, now time.Time, exec ...core.DBExecutor) ([]string, error) {
	// rows a racing reviewer already transitioned fall out of the predicate
	query := fmt.Sprintf(`UPDATE case_log
SET status = '%s', approved_by_id = $1, approved_at = $2, rejection_reason = '',
    teacher_comments = CASE WHEN $3 <> '' THEN $3 ELSE teacher_comments END, updated_at = $2
WHERE id = ANY($4)
  AND status IN ('%s', '%s')
  AND course_id IN (
      SELECT id FROM course WHERE teacher_id = $1
      UNION
      SELECT course_id FROM course_teacher WHERE teacher_id = $1)
RETURNING id`,
		caselog.StatusApproved, caselog.StatusSubmitted, caselog.StatusResubmitted)

	var approvedIDs []string
	err := executor(repo.db, exec).SelectContext(ctx, &approvedIDs, query,
		teacherID, now, comments, pq.Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, "bulk approving case logs")
	}
	return approvedIDs, nil
}

func (repo *LogRepository) DeleteDraftLog(ctx context.Context, id string, exec ...core.DBExecutor) error {
	ex := executor(repo.db, exec)

	res, err := ex.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM case_log WHERE id = $1 AND status = '%s'`, caselog.StatusDraft), id)
	if err != nil {
		return errors.Wrap(err, "deleting draft case log")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repo.explainMiss(ctx, ex, id)
	}
	return nil
}

func (repo *LogRepository) FilterReviewLogs(ctx context.Context, teacherID string, filter caselog.QueryFilter, page core.Pagination, exec ...core.DBExecutor) ([]caselog.ReviewLog, int, error) {
	ex := executor(repo.db, exec)

	where, args := logFilterWhere(filter, "cl.")
	args = append(args, teacherID)
	where += fmt.Sprintf(` AND cl.status <> '%s'
AND (c.teacher_id = $%d OR cl.course_id IN (SELECT course_id FROM course_teacher WHERE teacher_id = $%d))`,
		caselog.StatusDraft, len(args), len(args))

	fromClause := `FROM case_log cl
JOIN users u ON u.id = cl.created_by_id
JOIN course c ON c.id = cl.course_id`

	var total int
	countQuery := fmt.Sprintf(`SELECT count(*) %s WHERE %s`, fromClause, where)
	if err := ex.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting review logs")
	}

	cols := prefixColumns(logColumns, "cl.")
	query := fmt.Sprintf(`SELECT %s,
u.name AS learner_name, u.email AS learner_email,
c.title AS course_title, c.faculty AS course_faculty, c.end_date AS course_end_date
%s WHERE %s
ORDER BY cl.created_at DESC, cl.status ASC%s`, cols, fromClause, where, limitOffset(page))

	var rows []reviewRow
	if err := ex.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, errors.Wrap(err, "filtering review logs")
	}

	reviewLogs := make([]caselog.ReviewLog, len(rows))
	for i, row := range rows {
		reviewLogs[i] = caselog.ReviewLog{
			Log:           row.toLog(),
			LearnerName:   row.LearnerName,
			LearnerEmail:  row.LearnerEmail,
			CourseTitle:   row.CourseTitle,
			CourseFaculty: row.CourseFaculty,
			CourseEndDate: row.CourseEndDate.Time,
		}
	}
	return reviewLogs, total, nil
}

// explainMiss decides whether a conditional write missed because the row is
// gone or because its status moved on.
func (repo *LogRepository) explainMiss(ctx context.Context, ex core.DBExecutor, id string) error {
	var status string
	if err := ex.GetContext(ctx, &status, `SELECT status FROM case_log WHERE id = $1`, id); err != nil {
		return trapNoRowsErr(err, caselog.ErrNotFound)
	}
	return caselog.ErrAlreadyProcessed
}

// logFilterWhere builds the WHERE clause for a log listing. prefix qualifies
// the case_log columns when the query joins other tables.
func logFilterWhere(filter caselog.QueryFilter, prefix string) (string, []interface{}) {
	where := []string{"TRUE"}
	var args []interface{}

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("%sstatus = $%d", prefix, len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(%[1]scase_no ILIKE $%[2]d OR %[1]suhid ILIKE $%[2]d OR %[1]schief_complaint ILIKE $%[2]d OR %[1]sdiagnosis ILIKE $%[2]d)",
			prefix, n))
	}
	if filter.Department != "" {
		args = append(args, filter.Department)
		where = append(where, fmt.Sprintf(
			"%scourse_id IN (SELECT id FROM course WHERE faculty ILIKE $%d)", prefix, len(args)))
	}
	if filter.CourseID != "" {
		args = append(args, filter.CourseID)
		where = append(where, fmt.Sprintf("%scourse_id = $%d", prefix, len(args)))
	}
	if !filter.DateFrom.IsZero() {
		args = append(args, filter.DateFrom)
		where = append(where, fmt.Sprintf("%sdate >= $%d", prefix, len(args)))
	}
	if !filter.DateTo.IsZero() {
		args = append(args, filter.DateTo)
		where = append(where, fmt.Sprintf("%sdate <= $%d", prefix, len(args)))
	}
	if filter.CreatedByID != "" {
		args = append(args, filter.CreatedByID)
		where = append(where, fmt.Sprintf("%screated_by_id = $%d", prefix, len(args)))
	}
	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		n := len(args)
		where = append(where, fmt.Sprintf(
			"%scourse_id IN (SELECT id FROM course WHERE teacher_id = $%d UNION SELECT course_id FROM course_teacher WHERE teacher_id = $%d)",
			prefix, n, n))
	}
	if filter.ExcludeDrafts {
		where = append(where, fmt.Sprintf("%sstatus <> '%s'", prefix, caselog.StatusDraft))
	}

	return strings.Join(where, " AND "), args
}

// prefixColumns qualifies every column in a comma-separated list, for queries
// that join other tables.
func prefixColumns(columns, prefix string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = prefix + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

func limitOffset(page core.Pagination) string {
	if page.Limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", page.Limit, page.Offset())
}
