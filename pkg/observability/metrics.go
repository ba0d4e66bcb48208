package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PrometheusHandler returns a Gin handler for Prometheus metrics
func PrometheusHandler(handler http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if handler != nil {
			handler.ServeHTTP(c.Writer, c.Request)
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "metrics handler not initialized",
			})
		}
	}
}

// AuthMetrics counts security-relevant auth events.
// A nil *AuthMetrics records nothing, so services can run without telemetry.
type AuthMetrics struct {
	loginFailures metric.Int64Counter
	lockouts      metric.Int64Counter
	otpRequests   metric.Int64Counter
	refreshes     metric.Int64Counter
}

// NewAuthMetrics registers the auth counters on meter.
// The Prometheus exporter appends the _total suffix.
func NewAuthMetrics(meter metric.Meter) (*AuthMetrics, error) {
	var m AuthMetrics
	var err error

	if m.loginFailures, err = meter.Int64Counter("auth_login_failures",
		metric.WithDescription("Failed login attempts by reason")); err != nil {
		return nil, fmt.Errorf("failed to create login failures counter: %w", err)
	}
	if m.lockouts, err = meter.Int64Counter("auth_lockouts",
		metric.WithDescription("Identifiers locked after repeated failures")); err != nil {
		return nil, fmt.Errorf("failed to create lockouts counter: %w", err)
	}
	if m.otpRequests, err = meter.Int64Counter("auth_otp_requests",
		metric.WithDescription("Password reset code requests")); err != nil {
		return nil, fmt.Errorf("failed to create otp requests counter: %w", err)
	}
	if m.refreshes, err = meter.Int64Counter("auth_token_refreshes",
		metric.WithDescription("Refresh token rotations by outcome")); err != nil {
		return nil, fmt.Errorf("failed to create token refreshes counter: %w", err)
	}

	return &m, nil
}

func (m *AuthMetrics) LoginFailed(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.loginFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *AuthMetrics) Locked(ctx context.Context) {
	if m == nil {
		return
	}
	m.lockouts.Add(ctx, 1)
}

func (m *AuthMetrics) OTPRequested(ctx context.Context) {
	if m == nil {
		return
	}
	m.otpRequests.Add(ctx, 1)
}

func (m *AuthMetrics) TokenRefreshed(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
