package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tphakala/fishnet-go/internal/logger"
)

const healthCheckTimeout = 2 * time.Second

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	BuildDate string            `json:"build_date"`
	Uptime    string            `json:"uptime"`
	Models    map[string]string `json:"models,omitempty"`
	Database  *DatabaseHealth   `json:"database,omitempty"`
	Memory    *MemoryHealth     `json:"memory,omitempty"`
	Load      *load.AvgStat     `json:"load,omitempty"`
}

// DatabaseHealth reports database reachability.
type DatabaseHealth struct {
	Dialect string `json:"dialect"`
	Status  string `json:"status"`
}

// MemoryHealth reports host memory usage.
type MemoryHealth struct {
	TotalBytes  uint64  `json:"total_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// Health handles GET /health. It answers 503 when the database is
// configured but unreachable.
func (s *Server) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Version:   s.build.Version(),
		BuildDate: s.build.BuildDate(),
		Uptime:    s.build.Uptime().Round(time.Second).String(),
		Models:    s.models,
	}
	code := http.StatusOK

	if s.db != nil {
		resp.Database = &DatabaseHealth{Dialect: s.db.Dialect(), Status: "ok"}
		if err := s.db.Ping(ctx); err != nil {
			s.log.Warn("database health check failed", logger.Error(err))
			resp.Database.Status = "unreachable"
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		resp.Memory = &MemoryHealth{
			TotalBytes:  vm.Total,
			UsedBytes:   vm.Used,
			UsedPercent: vm.UsedPercent,
		}
	} else {
		s.log.Debug("memory stats unavailable", logger.Error(err))
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		resp.Load = avg
	}

	return c.JSON(code, resp)
}
