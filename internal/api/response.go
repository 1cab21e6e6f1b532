package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/fishnet-go/internal/errors"
	"github.com/tphakala/fishnet-go/internal/logger"
)

const (
	statusSuccess = "success"
	statusFailed  = "failed"
)

// envelope is the body shape of the /db endpoints.
type envelope struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

func success(c echo.Context, code int, data any) error {
	return c.JSON(code, envelope{Status: statusSuccess, Data: data})
}

// badRequest is rendered as a failed envelope by the error handler.
func badRequest(message string) error {
	return echo.NewHTTPError(http.StatusBadRequest, message)
}

// HandleError maps a datastore error to a status code and a caller safe
// message. Internal detail is logged with the request id only.
func (s *Server) HandleError(c echo.Context, err error, operation string) error {
	code, message := http.StatusInternalServerError, "Database error"
	switch {
	case errors.IsCategory(err, errors.CategoryValidation):
		code, message = http.StatusBadRequest, err.Error()
	case errors.IsNotFound(err):
		code, message = http.StatusNotFound, "Record not found"
	case errors.IsCategory(err, errors.CategoryConflict):
		code, message = http.StatusConflict, err.Error()
	case errors.IsCategory(err, errors.CategoryImageStorage):
		message = "Failed to remove the image"
	}

	log := s.log.WithContext(c.Request().Context())
	fields := []logger.Field{
		logger.String("operation", operation),
		logger.Int("status", code),
		logger.Error(err),
	}
	if code >= http.StatusInternalServerError {
		log.Error("request failed", fields...)
	} else {
		log.Debug("request rejected", fields...)
	}
	return c.JSON(code, envelope{Status: statusFailed, Error: message})
}
