// Package echoapi exposes the REST API over the echo framework.
package echoapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sumitkpand3y/log-book-api/core"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

type (
	response struct {
		Success bool        `json:"success"`
		Data    interface{} `json:"data,omitempty"`
		Error   *apiError   `json:"error,omitempty"`
	}

	apiError struct {
		Message string       `json:"message"`
		Fields  []fieldError `json:"fields,omitempty"`
	}

	fieldError struct {
		Field string `json:"field"`
		Error string `json:"error"`
	}

	listData struct {
		Items      interface{}   `json:"items"`
		Pagination core.PageInfo `json:"pagination"`
	}
)

func respond(c echo.Context, code int, data interface{}) error {
	return c.JSON(code, response{Success: true, Data: data})
}

func respondList(c echo.Context, items interface{}, page core.PageInfo) error {
	return respond(c, http.StatusOK, listData{Items: items, Pagination: page})
}

func respondError(c echo.Context, code int, apiErr apiError) error {
	return c.JSON(code, response{Success: false, Error: &apiErr})
}

// bindPagination reads ?page= and ?limit=, clamped to sane bounds.
func bindPagination(c echo.Context) core.Pagination {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return core.Pagination{Page: page, Limit: limit}
}

// bindOrdering reads ?sort=field,-other into DBOrdering, restricted to the
// given allowed column names. A leading dash means descending.
func bindOrdering(c echo.Context, allowed map[string]string) []core.DBOrdering {
	var ordering []core.DBOrdering
	for _, field := range strings.Split(c.QueryParam("sort"), ",") {
		if field == "" || field == "-" {
			continue
		}
		asc := true
		if field[0] == '-' {
			asc = false
			field = field[1:]
		}
		if col, ok := allowed[field]; ok {
			ordering = append(ordering, core.DBOrdering{Field: col, Ascending: asc})
		}
	}
	return ordering
}
