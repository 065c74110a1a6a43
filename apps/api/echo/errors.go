package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/sumitkpand3y/log-book-api/core"
)

// httpErrorHandler maps domain errors to HTTP statuses. Anything unrecognized
// is a 500 and gets logged with its cause.
func (s *server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	cause := errors.Cause(err)

	var respErr error
	switch {
	case isValidationErr(cause):
		respErr = respondError(c, http.StatusBadRequest, s.validationError(cause))
	case core.IsPermissionDenied(cause):
		respErr = respondError(c, http.StatusForbidden, apiError{Message: cause.Error()})
	case core.IsNotFound(cause):
		respErr = respondError(c, http.StatusNotFound, apiError{Message: cause.Error()})
	case core.IsConflict(cause):
		respErr = respondError(c, http.StatusConflict, apiError{Message: cause.Error()})
	default:
		if httpErr, ok := cause.(*echo.HTTPError); ok {
			respErr = respondError(c, httpErr.Code, apiError{Message: httpErrMessage(httpErr)})
			break
		}
		s.logger.Error("request failed", err)
		respErr = respondError(c, http.StatusInternalServerError, apiError{
			Message: http.StatusText(http.StatusInternalServerError),
		})
	}

	if respErr != nil {
		s.logger.Error("writing error response", respErr)
	}
}

func isValidationErr(err error) bool {
	switch err.(type) {
	case *core.ValidationError, validator.ValidationErrors:
		return true
	}
	return false
}

func (s *server) validationError(err error) apiError {
	apiErr := apiError{Message: "validation failed"}

	switch verr := err.(type) {
	case *core.ValidationError:
		if verr.Err != nil {
			apiErr.Message = verr.Err.Error()
		}
		for _, fld := range verr.Fields {
			apiErr.Fields = append(apiErr.Fields, fieldError{Field: fld.Field, Error: fld.Error})
		}
	case validator.ValidationErrors:
		for _, fld := range verr {
			apiErr.Fields = append(apiErr.Fields, fieldError{
				Field: fld.Field(),
				Error: fld.Translate(s.trans),
			})
		}
	}
	return apiErr
}

func httpErrMessage(httpErr *echo.HTTPError) string {
	if msg, ok := httpErr.Message.(string); ok {
		return msg
	}
	return http.StatusText(httpErr.Code)
}
