package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/sumitkpand3y/log-book-api/core"
	"github.com/sumitkpand3y/log-book-api/core/course"
)

var courseUniqueConstraints = map[string]error{
	"course_enrollment_number_key":  course.ErrEnrollmentNumberExists,
	"course_external_id_key":        core.NewConflictError("a course with this external id already exists"),
	"enrollment_course_learner_key": course.ErrAlreadyEnrolled,
}

const courseColumns = `id, title, enrollment_number, description, faculty, location, teacher_id,
start_date, end_date, status, visible, external_id, created_at, updated_at`

type courseRow struct {
	ID               string      `db:"id"`
	Title            string      `db:"title"`
	EnrollmentNumber string      `db:"enrollment_number"`
	Description      string      `db:"description"`
	Faculty          string      `db:"faculty"`
	Location         string      `db:"location"`
	TeacherID        string      `db:"teacher_id"`
	StartDate        null.Time   `db:"start_date"`
	EndDate          null.Time   `db:"end_date"`
	Status           string      `db:"status"`
	Visible          bool        `db:"visible"`
	ExternalID       null.String `db:"external_id"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
}

func (row courseRow) toCourse() course.Course {
	return course.Course{
		ID:               row.ID,
		Title:            row.Title,
		EnrollmentNumber: row.EnrollmentNumber,
		Description:      row.Description,
		Faculty:          row.Faculty,
		Location:         row.Location,
		TeacherID:        row.TeacherID,
		StartDate:        row.StartDate.Time,
		EndDate:          row.EndDate.Time,
		Status:           row.Status,
		Visible:          row.Visible,
		ExternalID:       row.ExternalID.String,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
}

type enrollmentRow struct {
	ID          string    `db:"id"`
	CourseID    string    `db:"course_id"`
	LearnerID   string    `db:"learner_id"`
	Progress    float64   `db:"progress"`
	Completed   bool      `db:"completed"`
	EnrolledAt  time.Time `db:"enrolled_at"`
	CompletedAt null.Time `db:"completed_at"`
}

func (row enrollmentRow) toEnrollment() course.Enrollment {
	return course.Enrollment{
		ID:          row.ID,
		CourseID:    row.CourseID,
		LearnerID:   row.LearnerID,
		Progress:    row.Progress,
		Completed:   row.Completed,
		EnrolledAt:  row.EnrolledAt,
		CompletedAt: row.CompletedAt.Time,
	}
}

type CourseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*CourseRepository)(nil)

func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

func (repo *CourseRepository) CreateCourse(ctx context.Context, crs course.Course, exec ...core.DBExecutor) (course.Course, error) {
	if crs.ID == "" {
		crs.ID = uuid.New().String()
	}
	query := fmt.Sprintf(`INSERT INTO course (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`, courseColumns)

	_, err := executor(repo.db, exec).ExecContext(ctx, query,
		crs.ID, crs.Title, crs.EnrollmentNumber, crs.Description, crs.Faculty, crs.Location,
		crs.TeacherID,
		null.NewTime(crs.StartDate, !crs.StartDate.IsZero()),
		null.NewTime(crs.EndDate, !crs.EndDate.IsZero()),
		crs.Status, crs.Visible,
		null.NewString(crs.ExternalID, crs.ExternalID != ""),
		crs.CreatedAt, crs.UpdatedAt,
	)
	if err != nil {
		return course.Course{}, errors.Wrap(trapUniqueErr(err, courseUniqueConstraints), "creating course")
	}
	return crs, nil
}

func (repo *CourseRepository) GetCourseByID(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	return repo.getCourse(ctx, "id = $1", id, exec)
}

func (repo *CourseRepository) GetCourseByEnrollmentNumber(ctx context.Context, number string, exec ...core.DBExecutor) (course.Course, error) {
	return repo.getCourse(ctx, "enrollment_number = $1", number, exec)
}

func (repo *CourseRepository) GetCourseByExternalID(ctx context.Context, externalID string, exec ...core.DBExecutor) (course.Course, error) {
	return repo.getCourse(ctx, "external_id = $1", externalID, exec)
}

func (repo *CourseRepository) getCourse(ctx context.Context, cond string, arg interface{}, exec []core.DBExecutor) (course.Course, error) {
	var row courseRow
	query := fmt.Sprintf(`SELECT %s FROM course WHERE %s`, courseColumns, cond)
	if err := executor(repo.db, exec).GetContext(ctx, &row, query, arg); err != nil {
		return course.Course{}, errors.Wrap(trapNoRowsErr(err, course.ErrNotFound), "getting course")
	}
	return row.toCourse(), nil
}

func (repo *CourseRepository) FilterCourses(ctx context.Context, filter course.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]course.Course, error) {
	where := []string{"TRUE"}
	var args []interface{}

	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR enrollment_number ILIKE $%d)", len(args), len(args)))
	}
	if filter.Faculty != "" {
		args = append(args, filter.Faculty)
		where = append(where, fmt.Sprintf("faculty ILIKE $%d", len(args)))
	}
	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		where = append(where, fmt.Sprintf(
			"(teacher_id = $%d OR id IN (SELECT course_id FROM course_teacher WHERE teacher_id = $%d))",
			len(args), len(args)))
	}
	if filter.Visible != nil {
		args = append(args, *filter.Visible)
		where = append(where, fmt.Sprintf("visible = $%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM course WHERE %s ORDER BY %s`,
		courseColumns, strings.Join(where, " AND "), orderBy(ordering, "created_at DESC"))

	var rows []courseRow
	if err := executor(repo.db, exec).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering courses")
	}
	courses := make([]course.Course, len(rows))
	for i, row := range rows {
		courses[i] = row.toCourse()
	}
	return courses, nil
}

func (repo *CourseRepository) UpdateCourse(ctx context.Context, crs course.Course, exec ...core.DBExecutor) (course.Course, error) {
	query := `UPDATE course
SET title = $2, description = $3, faculty = $4, location = $5, start_date = $6,
    end_date = $7, status = $8, visible = $9, external_id = $10, updated_at = $11
WHERE id = $1`

	res, err := executor(repo.db, exec).ExecContext(ctx, query,
		crs.ID, crs.Title, crs.Description, crs.Faculty, crs.Location,
		null.NewTime(crs.StartDate, !crs.StartDate.IsZero()),
		null.NewTime(crs.EndDate, !crs.EndDate.IsZero()),
		crs.Status, crs.Visible,
		null.NewString(crs.ExternalID, crs.ExternalID != ""),
		crs.UpdatedAt,
	)
	if err != nil {
		return course.Course{}, errors.Wrap(trapUniqueErr(err, courseUniqueConstraints), "updating course")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return course.Course{}, course.ErrNotFound
	}
	return crs, nil
}

func (repo *CourseRepository) AddCoTeacher(ctx context.Context, courseID, teacherID string, exec ...core.DBExecutor) error {
	_, err := executor(repo.db, exec).ExecContext(ctx,
		`INSERT INTO course_teacher (course_id, teacher_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		courseID, teacherID)
	return errors.Wrap(err, "adding co-teacher")
}

func (repo *CourseRepository) CourseTeacherIDs(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]string, error) {
	ex := executor(repo.db, exec)

	var ownerID string
	err := ex.GetContext(ctx, &ownerID, `SELECT teacher_id FROM course WHERE id = $1`, courseID)
	if err != nil {
		return nil, errors.Wrap(trapNoRowsErr(err, course.ErrNotFound), "getting course owner")
	}

	var coTeacherIDs []string
	err = ex.SelectContext(ctx, &coTeacherIDs,
		`SELECT teacher_id FROM course_teacher WHERE course_id = $1 AND teacher_id <> $2 ORDER BY teacher_id`,
		courseID, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "getting co-teachers")
	}
	return append([]string{ownerID}, coTeacherIDs...), nil
}

func (repo *CourseRepository) CreateEnrollment(ctx context.Context, enr course.Enrollment, exec ...core.DBExecutor) (course.Enrollment, error) {
	if enr.ID == "" {
		enr.ID = uuid.New().String()
	}
	query := `INSERT INTO enrollment (id, course_id, learner_id, progress, completed, enrolled_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := executor(repo.db, exec).ExecContext(ctx, query,
		enr.ID, enr.CourseID, enr.LearnerID, enr.Progress, enr.Completed, enr.EnrolledAt,
		null.NewTime(enr.CompletedAt, !enr.CompletedAt.IsZero()),
	)
	if err != nil {
		return course.Enrollment{}, errors.Wrap(trapUniqueErr(err, courseUniqueConstraints), "creating enrollment")
	}
	return enr, nil
}

func (repo *CourseRepository) GetEnrollment(ctx context.Context, courseID, learnerID string, exec ...core.DBExecutor) (course.Enrollment, error) {
	var row enrollmentRow
	query := `SELECT id, course_id, learner_id, progress, completed, enrolled_at, completed_at
FROM enrollment WHERE course_id = $1 AND learner_id = $2`

	if err := executor(repo.db, exec).GetContext(ctx, &row, query, courseID, learnerID); err != nil {
		return course.Enrollment{}, errors.Wrap(trapNoRowsErr(err, course.ErrEnrollmentNotFound), "getting enrollment")
	}
	return row.toEnrollment(), nil
}

func (repo *CourseRepository) FilterEnrollments(ctx context.Context, courseID, learnerID string, exec ...core.DBExecutor) ([]course.Enrollment, error) {
	where := []string{"TRUE"}
	var args []interface{}

	if courseID != "" {
		args = append(args, courseID)
		where = append(where, fmt.Sprintf("course_id = $%d", len(args)))
	}
	if learnerID != "" {
		args = append(args, learnerID)
		where = append(where, fmt.Sprintf("learner_id = $%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT id, course_id, learner_id, progress, completed, enrolled_at, completed_at
FROM enrollment WHERE %s ORDER BY enrolled_at`, strings.Join(where, " AND "))

	var rows []enrollmentRow
	if err := executor(repo.db, exec).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering enrollments")
	}
	enrs := make([]course.Enrollment, len(rows))
	for i, row := range rows {
		enrs[i] = row.toEnrollment()
	}
	return enrs, nil
}
