package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumitkpand3y/log-book-api/core/course"
)

var courseOrderFields = map[string]string{
	"title":      "title",
	"start_date": "start_date",
	"end_date":   "end_date",
	"created_at": "created_at",
}

func (s *server) createCourse(c echo.Context) error {
	var nc course.NewCourse
	if err := c.Bind(&nc); err != nil {
		return err
	}
	if err := nc.Validate(s.validate); err != nil {
		return err
	}
	crs, err := s.crsSvc.Create(c.Request().Context(), nc)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, crs)
}

func (s *server) listCourses(c echo.Context) error {
	var filter course.QueryFilter
	if err := c.Bind(&filter); err != nil {
		return err
	}
	filter.Clean()

	// non-admins only see visible courses
	usr := currentUser(c)
	if !usr.IsAdmin() {
		visible := true
		filter.Visible = &visible
	}

	courses, err := s.crsSvc.Filter(c.Request().Context(), filter, bindOrdering(c, courseOrderFields))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, courses)
}

func (s *server) getCourse(c echo.Context) error {
	crs, err := s.crsSvc.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, crs)
}

func (s *server) updateCourse(c echo.Context) error {
	var uc course.UpdateCourse
	if err := c.Bind(&uc); err != nil {
		return err
	}
	if err := uc.Validate(s.validate); err != nil {
		return err
	}
	crs, err := s.crsSvc.Update(c.Request().Context(), c.Param("id"), uc)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, crs)
}

type addCoTeacherRequest struct {
	TeacherID string `json:"teacher_id"`
}

func (s *server) addCoTeacher(c echo.Context) error {
	var req addCoTeacherRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.TeacherID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "teacher_id is required")
	}
	if err := s.crsSvc.AddCoTeacher(c.Request().Context(), c.Param("id"), req.TeacherID); err != nil {
		return err
	}
	return respond(c, http.StatusOK, nil)
}

type enrollRequest struct {
	LearnerID string `json:"learner_id"`
}

func (s *server) enroll(c echo.Context) error {
	var req enrollRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.LearnerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "learner_id is required")
	}
	enr, err := s.crsSvc.Enroll(c.Request().Context(), c.Param("id"), req.LearnerID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, enr)
}

func (s *server) listEnrollments(c echo.Context) error {
	actor := currentUser(c)
	courseID := c.Param("id")

	// learners only see their own enrollment rows
	learnerID := ""
	if actor.IsLearner() {
		learnerID = actor.ID
	}

	enrs, err := s.crsSvc.Enrollments(c.Request().Context(), courseID, learnerID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, enrs)
}
