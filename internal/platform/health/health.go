package health

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Checker reports whether a dependency is usable.
type Checker func(ctx context.Context) error

type namedCheck struct {
	name  string
	check Checker
}

// Handler serves /health (liveness) and /ready (readiness).
type Handler struct {
	service string
	timeout time.Duration
	checks  []namedCheck
}

// NewHandler creates a health handler for the named service.
func NewHandler(service string) *Handler {
	return &Handler{service: service, timeout: 2 * time.Second}
}

// AddCheck registers a readiness dependency.
func (h *Handler) AddCheck(name string, check Checker) {
	h.checks = append(h.checks, namedCheck{name: name, check: check})
}

// RegisterRoutes mounts the liveness and readiness endpoints.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.Live)
	r.GET("/ready", h.Ready)
}

// Live always answers 200 while the process is serving.
func (h *Handler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": h.service})
}

// Ready runs every registered check and answers 503 if any fails.
func (h *Handler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	failures := make(map[string]string)
	for _, nc := range h.checks {
		if err := nc.check(ctx); err != nil {
			failures[nc.name] = err.Error()
		}
	}

	if len(failures) > 0 {
		names := make([]string, 0, len(failures))
		for n := range failures {
			names = append(names, n)
		}
		sort.Strings(names)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unavailable",
			"service": h.service,
			"failing": names,
			"checks":  failures,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready", "service": h.service})
}

// DBCheck pings the database behind a gorm handle.
func DBCheck(db *gorm.DB) Checker {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
