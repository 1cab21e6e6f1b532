package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/fishnet-go/internal/errors"
	"github.com/tphakala/fishnet-go/internal/logger"
	"github.com/tphakala/fishnet-go/internal/recognition"
)

// Form field names of the recognition endpoints.
const (
	fieldUsername     = "username"
	fieldInputImage   = "input_image"
	fieldPreDetection = "pre_detection"
)

// DetectFish handles POST /detect_fish.
func (s *Server) DetectFish(c echo.Context) error {
	return s.recognize(c, s.recognizer.Detect)
}

// IdentifyFish handles POST /identify_fish.
func (s *Server) IdentifyFish(c echo.Context) error {
	return s.recognize(c, s.recognizer.Identify)
}

// recognize turns the multipart form into a recognition.Request. A missing
// or unreadable image part is passed on as a nil body so the service applies
// its own validation order.
func (s *Server) recognize(c echo.Context, run func(context.Context, recognition.Request) recognition.Response) error {
	req := recognition.Request{
		RequestID:    requestID(c),
		Username:     c.FormValue(fieldUsername),
		PreDetection: c.FormValue(fieldPreDetection),
	}

	header, err := c.FormFile(fieldInputImage)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return err
		}
		if !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
			s.log.WithContext(c.Request().Context()).Debug("unreadable multipart form",
				logger.Error(err))
		}
	} else {
		file, err := header.Open()
		if err != nil {
			s.log.WithContext(c.Request().Context()).Error("failed to open uploaded part",
				logger.String("filename", header.Filename),
				logger.Error(err))
			return c.JSON(http.StatusOK, recognition.Response{
				Status: recognition.StatusFailed,
				Error:  recognition.KindStorage.Message(),
			})
		}
		defer file.Close()

		req.Filename = header.Filename
		req.Body = file
		req.Size = header.Size
	}

	resp := run(c.Request().Context(), req)
	return c.JSON(resp.HTTPStatus(), resp)
}
