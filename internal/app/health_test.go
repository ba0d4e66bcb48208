package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prperemyshlev/care-auth/internal/mail"
	"github.com/prperemyshlev/care-auth/internal/oauth"
	"github.com/prperemyshlev/care-auth/pkg/database"
	"github.com/prperemyshlev/care-auth/pkg/observability"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// storesOnly provides the two stores the health check probes
type storesOnly struct {
	postgres *database.Postgres
	redis    *database.Redis
}

func (s *storesOnly) Postgres() *database.Postgres { return s.postgres }
func (s *storesOnly) Redis() *database.Redis { return s.redis }
func (s *storesOnly) Logger() *zap.Logger { return zap.NewNop() }
func (s *storesOnly) MetricsHandler() http.Handler { return nil }
func (s *storesOnly) Metrics() *observability.AuthMetrics { return nil }
func (s *storesOnly) Mail() *mail.Dispatcher { return nil }
func (s *storesOnly) Google() oauth.Provider { return nil }
func (s *storesOnly) Shutdown(ctx context.Context) error { return nil }

type healthBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func TestHealthChecker_ReportsEachDependency(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	// nothing listens on port 1, so every ping fails fast
	db, err := sqlx.Open("postgres", "host=127.0.0.1 port=1 user=x dbname=x sslmode=disable connect_timeout=1")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	h := NewHealthChecker(&storesOnly{
		postgres: &database.Postgres{DB: db},
		redis:    database.NewRedisFromClient(rdb),
	})

	router := gin.New()
	router.GET("/health", h.Handler)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body healthBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "fail", body.Status)
	assert.Equal(t, map[string]string{"postgres": "fail", "redis": "pass"}, body.Checks)
	assert.NotContains(t, w.Body.String(), "connection refused")
}
