package inmem

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sumitkpand3y/log-book-api/core"
	"github.com/sumitkpand3y/log-book-api/core/course"
)

type CourseRepository struct {
	mu          sync.RWMutex
	courses     map[string]course.Course
	coTeachers  map[string][]string // courseID -> teacher ids
	enrollments map[string]course.Enrollment
}

var _ course.Repository = (*CourseRepository)(nil)

func NewCourseRepository() *CourseRepository {
	return &CourseRepository{
		courses:     make(map[string]course.Course),
		coTeachers:  make(map[string][]string),
		enrollments: make(map[string]course.Enrollment),
	}
}

func (repo *CourseRepository) CreateCourse(_ context.Context, crs course.Course, _ ...core.DBExecutor) (course.Course, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	for _, existing := range repo.courses {
		if existing.EnrollmentNumber == crs.EnrollmentNumber {
			return course.Course{}, course.ErrEnrollmentNumberExists
		}
	}
	if crs.ID == "" {
		crs.ID = newID()
	}
	repo.courses[crs.ID] = crs
	return crs, nil
}

func (repo *CourseRepository) GetCourseByID(_ context.Context, id string, _ ...core.DBExecutor) (course.Course, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	crs, ok := repo.courses[id]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	return crs, nil
}

func (repo *CourseRepository) GetCourseByEnrollmentNumber(_ context.Context, number string, _ ...core.DBExecutor) (course.Course, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	for _, crs := range repo.courses {
		if crs.EnrollmentNumber == number {
			return crs, nil
		}
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *CourseRepository) GetCourseByExternalID(_ context.Context, externalID string, _ ...core.DBExecutor) (course.Course, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	for _, crs := range repo.courses {
		if crs.ExternalID != "" && crs.ExternalID == externalID {
			return crs, nil
		}
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *CourseRepository) FilterCourses(_ context.Context, filter course.QueryFilter, _ []core.DBOrdering, _ ...core.DBExecutor) ([]course.Course, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	var courses []course.Course
	for _, crs := range repo.courses {
		if filter.Search != "" {
			s := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(crs.Title), s) && !strings.Contains(strings.ToLower(crs.EnrollmentNumber), s) {
				continue
			}
		}
		if filter.Faculty != "" && !strings.EqualFold(crs.Faculty, filter.Faculty) {
			continue
		}
		if filter.TeacherID != "" && !repo.teaches(filter.TeacherID, crs) {
			continue
		}
		if filter.Visible != nil && crs.Visible != *filter.Visible {
			continue
		}
		courses = append(courses, crs)
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].CreatedAt.After(courses[j].CreatedAt) })
	return courses, nil
}

func (repo *CourseRepository) UpdateCourse(_ context.Context, crs course.Course, _ ...core.DBExecutor) (course.Course, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	if _, ok := repo.courses[crs.ID]; !ok {
		return course.Course{}, course.ErrNotFound
	}
	repo.courses[crs.ID] = crs
	return crs, nil
}

func (repo *CourseRepository) AddCoTeacher(_ context.Context, courseID, teacherID string, _ ...core.DBExecutor) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	for _, id := range repo.coTeachers[courseID] {
		if id == teacherID {
			return nil
		}
	}
	repo.coTeachers[courseID] = append(repo.coTeachers[courseID], teacherID)
	return nil
}

func (repo *CourseRepository) CourseTeacherIDs(_ context.Context, courseID string, _ ...core.DBExecutor) ([]string, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	crs, ok := repo.courses[courseID]
	if !ok {
		return nil, course.ErrNotFound
	}
	ids := []string{crs.TeacherID}
	for _, id := range repo.coTeachers[courseID] {
		if id != crs.TeacherID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (repo *CourseRepository) CreateEnrollment(_ context.Context, enr course.Enrollment, _ ...core.DBExecutor) (course.Enrollment, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()

	for _, existing := range repo.enrollments {
		if existing.CourseID == enr.CourseID && existing.LearnerID == enr.LearnerID {
			return course.Enrollment{}, course.ErrAlreadyEnrolled
		}
	}
	if enr.ID == "" {
		enr.ID = newID()
	}
	repo.enrollments[enr.ID] = enr
	return enr, nil
}

func (repo *CourseRepository) GetEnrollment(_ context.Context, courseID, learnerID string, _ ...core.DBExecutor) (course.Enrollment, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	for _, enr := range repo.enrollments {
		if enr.CourseID == courseID && enr.LearnerID == learnerID {
			return enr, nil
		}
	}
	return course.Enrollment{}, course.ErrEnrollmentNotFound
}

func (repo *CourseRepository) FilterEnrollments(_ context.Context, courseID, learnerID string, _ ...core.DBExecutor) ([]course.Enrollment, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	var enrs []course.Enrollment
	for _, enr := range repo.enrollments {
		if courseID != "" && enr.CourseID != courseID {
			continue
		}
		if learnerID != "" && enr.LearnerID != learnerID {
			continue
		}
		enrs = append(enrs, enr)
	}
	sort.Slice(enrs, func(i, j int) bool { return enrs[i].EnrolledAt.Before(enrs[j].EnrolledAt) })
	return enrs, nil
}

// lookup and isTeacher take the lock themselves, for use by LogRepository.
func (repo *CourseRepository) lookup(courseID string) (course.Course, bool) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()
	crs, ok := repo.courses[courseID]
	return crs, ok
}

func (repo *CourseRepository) isTeacher(teacherID, courseID string) bool {
	repo.mu.RLock()
	defer repo.mu.RUnlock()
	crs, ok := repo.courses[courseID]
	return ok && repo.teaches(teacherID, crs)
}

func (repo *CourseRepository) teaches(teacherID string, crs course.Course) bool {
	if crs.TeacherID == teacherID {
		return true
	}
	for _, id := range repo.coTeachers[crs.ID] {
		if id == teacherID {
			return true
		}
	}
	return false
}
