package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/tphakala/fishnet-go/internal/logger"
	"github.com/tphakala/fishnet-go/internal/recognition"
)

const (
	rateLimiterExpiry = 3 * time.Minute
	tooManyRequests   = "Too many requests, please retry later"
)

// configureMiddleware sets up middleware for the server.
func (s *Server) configureMiddleware() {
	s.Echo.Pre(middleware.RemoveTrailingSlash())
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(s.requestIDMiddleware())
	s.Echo.Use(s.requestLogger())
	if limit := s.settings.WebServer.MaxUploadSize; limit != "" {
		s.Echo.Use(middleware.BodyLimit(limit))
	}
}

// requestIDMiddleware assigns every request a correlation id, echoes it in
// X-Request-ID and stores it as the trace id of the request context.
func (s *Server) requestIDMiddleware() echo.MiddlewareFunc {
	return middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(logger.WithTraceID(req.Context(), id)))
		},
	})
}

// requestID returns the correlation id assigned to c.
func requestID(c echo.Context) string {
	return c.Response().Header().Get(echo.HeaderXRequestID)
}

// requestLogger logs one line per request and feeds the HTTP metrics.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:       true,
		LogURI:          true,
		LogMethod:       true,
		LogLatency:      true,
		LogRemoteIP:     true,
		LogRoutePath:    true,
		LogResponseSize: true,
		LogRequestID:    true,
		LogError:        true,
		HandleError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if s.metrics != nil {
				s.metrics.HTTP.RecordRequest(v.Method, v.RoutePath, v.Status, v.Latency.Seconds(), v.ResponseSize)
			}

			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", logger.RedactSensitiveData(v.URI)),
				logger.Int("status", v.Status),
				logger.String("ip", v.RemoteIP),
				logger.String("request_id", v.RequestID),
				logger.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}

			log := s.log.WithContext(c.Request().Context())
			switch {
			case v.Status >= http.StatusInternalServerError:
				log.Error("request", fields...)
			case v.Status >= http.StatusBadRequest:
				log.Warn("request", fields...)
			default:
				log.Debug("request", fields...)
			}
			return nil
		},
	})
}

// rateLimiter limits recognition requests per client address. It is a
// pass-through when rate limiting is disabled.
func (s *Server) rateLimiter() echo.MiddlewareFunc {
	cfg := s.settings.WebServer.RateLimit
	if !cfg.Enabled || cfg.RequestsPerSecond <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.RequestsPerSecond),
		Burst:     max(1, cfg.Burst),
		ExpiresIn: rateLimiterExpiry,
	})

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, recognition.Response{
				Status: recognition.StatusFailed,
				Error:  http.StatusText(http.StatusForbidden),
			})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			if s.metrics != nil {
				s.metrics.HTTP.RecordRateLimited(c.Path())
			}
			s.log.Warn("rate limit exceeded",
				logger.String("ip", identifier),
				logger.String("path", c.Path()))
			return c.JSON(http.StatusTooManyRequests, recognition.Response{
				Status: recognition.StatusFailed,
				Error:  tooManyRequests,
			})
		},
	})
}
