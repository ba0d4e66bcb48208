package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prperemyshlev/care-auth/internal/config"
	"github.com/prperemyshlev/care-auth/internal/domain"
	"github.com/prperemyshlev/care-auth/internal/handler"
	"github.com/prperemyshlev/care-auth/internal/repository"
	"github.com/prperemyshlev/care-auth/internal/service"
	"github.com/prperemyshlev/care-auth/internal/utils"
	"github.com/prperemyshlev/care-auth/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	infra  Infrastructure
	config *config.Config
	router *gin.Engine
	server *http.Server
}

type routes struct {
	auth        *handler.AuthHandler
	google      *handler.GoogleHandler
	authService service.AuthService
	rateLimiter *service.RateLimiter
	health      *HealthChecker
	metrics     http.Handler
	logger      *zap.Logger
}

func NewApp(infra Infrastructure, cfg *config.Config) (*App, error) {
	return newApp(infra, cfg, clockwork.NewRealClock())
}

func newApp(infra Infrastructure, cfg *config.Config, clock clockwork.Clock) (*App, error) {
	logger := infra.Logger()
	repos := repository.NewRepositories(infra.Postgres(), infra.Redis())

	jwtManager := utils.NewJWTManager(
		cfg.JWT.Secret,
		cfg.JWT.Issuer,
		cfg.JWT.AccessTokenExpiry.Duration,
		clock,
	)

	tokens := service.NewTokenService(repos.User, jwtManager, cfg.JWT.RefreshTokenExpiry.Duration, clock)

	guard := service.NewLockoutGuard(
		repos.LoginAttempt,
		domain.LockoutPolicy{
			MaxAttempts:  cfg.Lockout.MaxAttempts,
			BaseDuration: cfg.Lockout.BaseDuration.Duration,
			Window:       cfg.Lockout.Window.Duration,
			Cap:          cfg.Lockout.Cap.Duration,
			RecordTTL:    cfg.Lockout.RecordTTL.Duration,
		},
		service.GuardOptions{
			StoreTimeout: cfg.Lockout.StoreTimeout.Duration,
			StoreRetries: cfg.Lockout.StoreRetries,
			FailOpen:     cfg.Lockout.FailOpen,
		},
		clock,
		logger.Named("lockout"),
		infra.Metrics(),
	)

	recovery := service.NewRecoveryService(
		repos.User,
		infra.Mail(),
		service.RecoveryOptions{
			OTPTTL:         cfg.Recovery.OTPTTL.Duration,
			OTPMaxAttempts: cfg.Recovery.OTPMaxAttempts,
			ResetTokenTTL:  cfg.Recovery.ResetTokenTTL.Duration,
			ResetURLWeb:    cfg.Mail.ResetURLWeb,
			ResetURLMobile: cfg.Mail.ResetURLMobile,
			BCryptCost:     cfg.Security.BCryptCost,
		},
		clock,
		logger.Named("recovery"),
		infra.Metrics(),
	)

	federated := service.NewFederatedIdentityService(repos.User, clock, logger.Named("federated"))

	authService, err := service.NewAuthService(service.Deps{
		Users:      repos.User,
		Tokens:     tokens,
		Guard:      guard,
		Recovery:   recovery,
		Federated:  federated,
		BCryptCost: cfg.Security.BCryptCost,
		Clock:      clock,
		Logger:     logger.Named("auth"),
		Metrics:    infra.Metrics(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create auth service: %w", err)
	}

	if !cfg.IsTest() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid SERVER_TRUSTED_PROXIES: %w", err)
	}
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(handler.LoggerMiddleware(logger))
	router.Use(handler.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders))

	setupRoutes(router, cfg, routes{
		auth:        handler.NewAuthHandler(authService, logger),
		google:      handler.NewGoogleHandler(authService, infra.Google(), logger),
		authService: authService,
		rateLimiter: service.NewRateLimiter(infra.Redis(), clock),
		health:      NewHealthChecker(infra),
		metrics:     infra.MetricsHandler(),
		logger:      logger,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	return &App{
		infra:  infra,
		config: cfg,
		router: router,
		server: srv,
	}, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func setupRoutes(router *gin.Engine, cfg *config.Config, r routes) {
	router.GET("/metrics", observability.PrometheusHandler(r.metrics))
	router.GET("/health", r.health.Handler)

	limit := func() gin.HandlerFunc {
		return handler.RateLimitMiddleware(
			r.rateLimiter,
			cfg.Security.RateLimitRequests,
			cfg.Security.RateLimitWindow.Duration,
			handler.RouteAndIPKey,
			r.logger,
		)
	}
	authenticated := handler.AuthMiddleware(r.authService, r.logger)

	api := router.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", limit(), r.auth.Register)
			auth.POST("/login", limit(), r.auth.Login)
			auth.POST("/refresh", r.auth.Refresh)
			auth.POST("/logout", authenticated, r.auth.Logout)
			auth.GET("/me", authenticated, r.auth.GetMe)

			auth.POST("/forgot-password", limit(), r.auth.ForgotPassword)
			auth.POST("/reset-password", limit(), r.auth.ResetPassword)

			otp := auth.Group("/password-otp", limit())
			{
				otp.POST("/request", r.auth.RequestPasswordOTP)
				otp.POST("/verify", r.auth.VerifyPasswordOTP)
				otp.POST("/reset", r.auth.ResetPasswordWithOTP)
			}

			google := auth.Group("/google")
			{
				google.GET("", r.google.Redirect)
				google.GET("/callback", r.google.Callback)
				google.POST("/token", limit(), r.google.Token)
			}

			auth.POST("/complete-registration", authenticated, r.auth.CompleteRegistration)

			admin := auth.Group("/admin", authenticated, handler.RequireRoles(domain.RolePlatformAdmin))
			{
				admin.DELETE("/lockouts/:identifier", r.auth.UnlockAccount)
			}
		}
	}
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		a.infra.Logger().Info("Application starting",
			zap.String("host", a.config.Server.Host),
			zap.String("port", a.config.Server.Port),
		)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.infra.Logger().Error("Server error", zap.Error(err))
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case err := <-errChan:
		a.infra.Logger().Error("Application failed to start", zap.Error(err))
		serverErr = err
	case <-ctx.Done():
		a.infra.Logger().Info("Application stopped by context")
	}

	if err := a.Shutdown(); err != nil {
		if serverErr != nil {
			return errors.Join(serverErr, err)
		}
		return err
	}

	return serverErr
}

// Shutdown drains HTTP first so no request outlives the stores it needs
func (a *App) Shutdown() error {
	a.infra.Logger().Info("Application shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := errors.Join(
		a.server.Shutdown(ctx),
		a.infra.Shutdown(ctx),
	)
	if err != nil {
		a.infra.Logger().Error("Shutdown failed", zap.Error(err))
		return err
	}

	a.infra.Logger().Info("Application exited successfully")
	return nil
}
