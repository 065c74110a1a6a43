package echoapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sumitkpand3y/log-book-api/core/caselog"
)

var logOrderFields = map[string]string{
	"date":       "date",
	"case_no":    "case_no",
	"status":     "status",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

func (s *server) createLog(c echo.Context) error {
	var nl caselog.NewLog
	if err := c.Bind(&nl); err != nil {
		return err
	}
	if st, ok := caselog.ParseStatus(string(nl.Status)); ok {
		nl.Status = st
	}

	lg, err := s.logSvc.Create(c.Request().Context(), currentUser(c), nl)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, lg)
}

func (s *server) listLogs(c echo.Context) error {
	filter, err := bindLogFilter(c)
	if err != nil {
		return err
	}
	page := bindPagination(c)

	logs, pageInfo, err := s.logSvc.List(c.Request().Context(), currentUser(c), filter, bindOrdering(c, logOrderFields), page)
	if err != nil {
		return err
	}
	return respondList(c, logs, pageInfo)
}

func (s *server) getLog(c echo.Context) error {
	lg, err := s.logSvc.Get(c.Request().Context(), currentUser(c), c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, lg)
}

func (s *server) updateLog(c echo.Context) error {
	var ul caselog.UpdateLog
	if err := c.Bind(&ul); err != nil {
		return err
	}
	lg, err := s.logSvc.Update(c.Request().Context(), currentUser(c), c.Param("id"), ul)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, lg)
}

func (s *server) deleteLog(c echo.Context) error {
	if err := s.logSvc.Delete(c.Request().Context(), currentUser(c), c.Param("id")); err != nil {
		return err
	}
	return respond(c, http.StatusOK, nil)
}

func (s *server) submitLog(c echo.Context) error {
	lg, err := s.logSvc.Submit(c.Request().Context(), currentUser(c), c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, lg)
}

func (s *server) approveLog(c echo.Context) error {
	var d caselog.ApproveDecision
	if err := c.Bind(&d); err != nil {
		return err
	}
	lg, err := s.logSvc.Approve(c.Request().Context(), currentUser(c), c.Param("id"), d)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, lg)
}

func (s *server) rejectLog(c echo.Context) error {
	var d caselog.RejectDecision
	if err := c.Bind(&d); err != nil {
		return err
	}
	lg, err := s.logSvc.Reject(c.Request().Context(), currentUser(c), c.Param("id"), d)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, lg)
}

type bulkApproveRequest struct {
	IDs      []string `json:"ids"`
	Comments string   `json:"comments"`
}

type bulkApproveResponse struct {
	Approved int `json:"approved"`
}

func (s *server) bulkApproveLogs(c echo.Context) error {
	var req bulkApproveRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	approved, err := s.logSvc.BulkApprove(c.Request().Context(), currentUser(c), req.IDs, req.Comments)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, bulkApproveResponse{Approved: approved})
}

func (s *server) exportLogs(c echo.Context) error {
	filter, err := bindLogFilter(c)
	if err != nil {
		return err
	}

	filename := fmt.Sprintf("case-logs-%s.csv", time.Now().UTC().Format("2006-01-02"))
	c.Response().Header().Set(echo.HeaderContentType, "text/csv")
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename=%q`, filename))
	c.Response().WriteHeader(http.StatusOK)

	return s.logSvc.ExportCSV(c.Request().Context(), currentUser(c), filter, c.Response())
}

func (s *server) reviewDashboard(c echo.Context) error {
	filter, err := bindLogFilter(c)
	if err != nil {
		return err
	}
	page := bindPagination(c)

	subs, pageInfo, err := s.logSvc.ReviewDashboard(c.Request().Context(), currentUser(c), filter, page)
	if err != nil {
		return err
	}
	return respondList(c, subs, pageInfo)
}

// bindLogFilter binds the query filter and normalizes the status so lowercase
// values match the stored uppercase forms.
func bindLogFilter(c echo.Context) (caselog.QueryFilter, error) {
	var filter caselog.QueryFilter
	if err := c.Bind(&filter); err != nil {
		return caselog.QueryFilter{}, err
	}
	if raw := c.QueryParam("status"); raw != "" {
		st, ok := caselog.ParseStatus(raw)
		if !ok {
			return caselog.QueryFilter{}, echo.NewHTTPError(http.StatusBadRequest, "unknown status "+raw)
		}
		filter.Status = st
	}
	filter.Clean()
	return filter, nil
}
