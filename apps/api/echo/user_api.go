package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumitkpand3y/log-book-api/core"
	"github.com/sumitkpand3y/log-book-api/core/user"
)

var userOrderFields = map[string]string{
	"name":       "name",
	"email":      "email",
	"created_at": "created_at",
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string    `json:"token"`
	User  user.User `json:"user"`
}

func (s *server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return err
	}

	usr, err := s.usrSvc.GetByEmail(c.Request().Context(), core.CleanString(req.Email, true))
	if err != nil {
		if core.IsNotFound(err) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
		}
		return err
	}
	if err = usr.CheckPassword(req.Password); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	if usr, err = s.usrSvc.SetLastLogin(c.Request().Context(), usr); err != nil {
		return err
	}
	token, err := GenerateToken(s.conf, usr)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, loginResponse{Token: token, User: usr})
}

func (s *server) me(c echo.Context) error {
	return respond(c, http.StatusOK, currentUser(c))
}

func (s *server) createUser(c echo.Context) error {
	var nu user.NewUser
	if err := c.Bind(&nu); err != nil {
		return err
	}
	if err := nu.Validate(s.validate, s.usrSvc); err != nil {
		return err
	}
	usr, err := s.usrSvc.Create(c.Request().Context(), nu)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, usr)
}

func (s *server) listUsers(c echo.Context) error {
	var filter user.QueryFilter
	if err := c.Bind(&filter); err != nil {
		return err
	}
	filter.Clean()

	users, err := s.usrSvc.Filter(c.Request().Context(), filter, bindOrdering(c, userOrderFields))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, users)
}

func (s *server) getUser(c echo.Context) error {
	id := c.Param("id")
	actor := currentUser(c)
	if !actor.IsAdmin() && actor.ID != id {
		return echo.NewHTTPError(http.StatusForbidden)
	}

	usr, err := s.usrSvc.GetByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, usr)
}

func (s *server) updateUser(c echo.Context) error {
	id := c.Param("id")
	actor := currentUser(c)
	if !actor.IsAdmin() && actor.ID != id {
		return echo.NewHTTPError(http.StatusForbidden)
	}

	var uu user.UpdateUser
	if err := c.Bind(&uu); err != nil {
		return err
	}
	orig, err := s.usrSvc.GetByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if err = uu.Validate(orig, s.validate); err != nil {
		return err
	}
	usr, err := s.usrSvc.Update(c.Request().Context(), id, uu)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, usr)
}
