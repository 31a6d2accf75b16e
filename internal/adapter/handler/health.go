package handler

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/johnquangdev/meeting-transcriber/internal/domain/engine"
)

const checkTimeout = 3 * time.Second

// Health reports process liveness plus the health of each dependency
type Health struct {
	environment string
	checks      map[string]engine.HealthChecker
	started     time.Time
}

// NewHealthHandler creates a health handler. Nil checks are skipped.
func NewHealthHandler(environment string, checks map[string]engine.HealthChecker) *Health {
	h := &Health{environment: environment, checks: map[string]engine.HealthChecker{}, started: time.Now()}
	for name, p := range checks {
		if p != nil {
			h.checks[name] = p
		}
	}
	return h
}

// Check handles GET /health. The process is always reported; a failed check
// turns the status into "degraded" and the response into 503.
func (h *Health) Check(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), checkTimeout)
	defer cancel()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		services = make(map[string]string, len(h.checks))
	)
	for name, p := range h.checks {
		wg.Add(1)
		go func(name string, p engine.HealthChecker) {
			defer wg.Done()
			status := "ok"
			if err := p.Health(ctx); err != nil {
				status = err.Error()
			}
			mu.Lock()
			services[name] = status
			mu.Unlock()
		}(name, p)
	}
	wg.Wait()

	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)

	status, code := "ok", http.StatusOK
	for _, name := range names {
		if services[name] != "ok" {
			status, code = "degraded", http.StatusServiceUnavailable
			break
		}
	}

	return c.JSON(code, map[string]interface{}{
		"status":      status,
		"environment": h.environment,
		"uptime":      time.Since(h.started).Round(time.Second).String(),
		"services":    services,
	})
}
