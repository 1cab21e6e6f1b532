// Package api serves the recognition endpoints, the /db CRUD endpoints and
// the operational endpoints over echo.
package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/fishnet-go/internal/buildinfo"
	"github.com/tphakala/fishnet-go/internal/conf"
	"github.com/tphakala/fishnet-go/internal/datastore"
	"github.com/tphakala/fishnet-go/internal/errors"
	"github.com/tphakala/fishnet-go/internal/imagestore"
	"github.com/tphakala/fishnet-go/internal/logger"
	"github.com/tphakala/fishnet-go/internal/observability"
	"github.com/tphakala/fishnet-go/internal/recognition"
)

// Recognizer runs the recognition flows.
type Recognizer interface {
	Detect(ctx context.Context, req recognition.Request) recognition.Response
	Identify(ctx context.Context, req recognition.Request) recognition.Response
}

// Dependencies are the handles the server needs. DB, Metrics and Build are
// optional.
type Dependencies struct {
	Settings   *conf.Settings
	Recognizer Recognizer
	Store      *imagestore.Store
	DB         datastore.Interface
	Metrics    *observability.Metrics
	Build      *buildinfo.Context
	Models     map[string]string // role to model name, reported by /health
	Logger     logger.Logger
}

// Server encapsulates the echo instance and its handlers.
type Server struct {
	Echo *echo.Echo

	settings   *conf.Settings
	recognizer Recognizer
	store      *imagestore.Store
	db         datastore.Interface
	metrics    *observability.Metrics
	build      *buildinfo.Context
	models     map[string]string
	log        logger.Logger
}

// New builds the echo instance, its middleware and routes.
func New(deps Dependencies) *Server {
	log := deps.Logger
	if log == nil {
		log = logger.NewDiscardLogger()
	}

	s := &Server{
		Echo:       echo.New(),
		settings:   deps.Settings,
		recognizer: deps.Recognizer,
		store:      deps.Store,
		db:         deps.DB,
		metrics:    deps.Metrics,
		build:      deps.Build,
		models:     deps.Models,
		log:        log.Module("api"),
	}

	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.Logger = logger.NewEchoLoggerAdapter(s.log)
	s.Echo.IPExtractor = echo.ExtractIPFromXFFHeader()
	s.Echo.HTTPErrorHandler = s.errorHandler

	s.configureMiddleware()
	s.initRoutes()
	return s
}

// initRoutes registers every endpoint.
func (s *Server) initRoutes() {
	limiter := s.rateLimiter()
	s.Echo.POST("/detect_fish", s.DetectFish, limiter)
	s.Echo.POST("/identify_fish", s.IdentifyFish, limiter)

	db := s.Echo.Group("/db", s.requireDB)
	db.GET("/query_fish_recent_capture", s.QueryRecentCaptures)
	db.GET("/query_fish_for_search", s.SearchFish)
	db.GET("/query_fish_collection", s.QueryCollections)
	db.GET("/query_fish_by_local_name", s.QueryFishByLocalName)
	db.POST("/create_fish_collection", s.CreateCollection)
	db.POST("/delete_fish_collection", s.DeleteCollection)
	db.POST("/update_fish_collection", s.UpdateCollection)
	db.POST("/create_user_profile", s.CreateUserProfile)
	db.POST("/delete_fish_image", s.DeleteFishImage)

	s.Echo.GET("/health", s.Health)

	if s.metrics != nil && s.settings.Metrics.Enabled {
		path := s.settings.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		s.Echo.GET(path, echo.WrapHandler(s.metrics.Handler()))
	}

	if media := strings.TrimRight(s.settings.Media.URL, "/"); media != "" && s.settings.Media.Root != "" {
		s.Echo.Static(media, s.settings.Media.Root)
	}
}

// Start listens on the configured address and serves until Shutdown.
// It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	ws := s.settings.WebServer
	s.Echo.Server.ReadTimeout = ws.ReadTimeout
	s.Echo.Server.WriteTimeout = ws.WriteTimeout

	addr := net.JoinHostPort(ws.Host, ws.Port)
	s.log.Info("HTTP server starting", logger.String("address", addr))

	err := s.Echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	start := time.Now()
	err := s.Echo.Shutdown(ctx)
	s.log.Info("HTTP server stopped", logger.Duration("elapsed", time.Since(start)), logger.Error(err))
	return err
}

// errorHandler keeps the body shape of each route family for errors raised
// by echo itself, e.g. body limit or unknown routes.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(code)
		}
	}
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed",
			logger.String("path", c.Request().URL.Path),
			logger.String("request_id", requestID(c)),
			logger.Error(err))
		message = http.StatusText(code)
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(code)
	} else {
		writeErr = c.JSON(code, envelope{Status: statusFailed, Error: message})
	}
	if writeErr != nil {
		s.log.Warn("failed to write error response", logger.Error(writeErr))
	}
}

// requireDB rejects /db requests when no database is configured.
func (s *Server) requireDB(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.db == nil {
			return c.JSON(http.StatusServiceUnavailable, envelope{
				Status: statusFailed,
				Error:  "Database is not configured",
			})
		}
		return next(c)
	}
}
