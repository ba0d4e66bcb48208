package app

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const healthCheckTimeout = 2 * time.Second

const (
	statusPass = "pass"
	statusFail = "fail"
)

type HealthChecker struct {
	infra  Infrastructure
	probes map[string]func(ctx context.Context) error
}

// NewHealthChecker probes Postgres (credentials) and Redis (lockout
// counters, rate limits, mail queue). Either one down makes the service unfit.
func NewHealthChecker(infra Infrastructure) *HealthChecker {
	return &HealthChecker{
		infra: infra,
		probes: map[string]func(ctx context.Context) error{
			"postgres": func(ctx context.Context) error { return infra.Postgres().Ping(ctx) },
			"redis":    func(ctx context.Context) error { return infra.Redis().Ping(ctx) },
		},
	}
}

// check runs every probe in parallel and returns a status per dependency
func (h *HealthChecker) check(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		healthy = true
		checks  = make(map[string]string, len(h.probes))
	)

	for name, probe := range h.probes {
		wg.Add(1)
		go func() {
			defer wg.Done()

			status := statusPass
			if err := probe(ctx); err != nil {
				status = statusFail
				h.infra.Logger().Warn("health probe failed", zap.String("dependency", name), zap.Error(err))
			}

			mu.Lock()
			defer mu.Unlock()
			checks[name] = status
			if status == statusFail {
				healthy = false
			}
		}()
	}
	wg.Wait()

	return checks, healthy
}

// Handler never exposes error text, only pass/fail per dependency
func (h *HealthChecker) Handler(c *gin.Context) {
	checks, healthy := h.check(c.Request.Context())

	code, status := http.StatusOK, statusPass
	if !healthy {
		code, status = http.StatusServiceUnavailable, statusFail
	}

	c.JSON(code, gin.H{
		"status":  status,
		"service": serviceName,
		"checks":  checks,
	})
}
