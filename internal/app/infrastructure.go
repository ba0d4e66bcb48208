package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/jonboulle/clockwork"
	"github.com/prperemyshlev/care-auth/internal/config"
	"github.com/prperemyshlev/care-auth/internal/mail"
	"github.com/prperemyshlev/care-auth/internal/oauth"
	"github.com/prperemyshlev/care-auth/pkg/database"
	"github.com/prperemyshlev/care-auth/pkg/observability"
	"go.uber.org/zap"
)

const serviceName = "care-auth"

type Infrastructure interface {
	Postgres() *database.Postgres
	Redis() *database.Redis
	Logger() *zap.Logger
	MetricsHandler() http.Handler
	Metrics() *observability.AuthMetrics
	Mail() *mail.Dispatcher
	// Google is nil when Google sign-in is not configured
	Google() oauth.Provider

	Shutdown(ctx context.Context) error
}

type infrastructure struct {
	postgres  *database.Postgres
	redis     *database.Redis
	logger    *zap.Logger
	telemetry *observability.Telemetry
	mailQueue *asynq.Client
	mail      *mail.Dispatcher
	mailer    *mail.Worker
	google    oauth.Provider
}

var _ Infrastructure = &infrastructure{}

func NewInfrastructure(ctx context.Context, cfg config.Config) (_ *infrastructure, err error) {
	i := &infrastructure{}

	logger, err := observability.InitLogger(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	i.logger = logger

	defer func() {
		if err != nil {
			if i.mailQueue != nil {
				_ = i.mailQueue.Close()
			}
			_ = i.closeStores()
		}
	}()

	i.postgres, err = database.NewPostgres(ctx, cfg.Postgres.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if cfg.Postgres.AutoMigrate {
		if err := i.postgres.Migrate(logger); err != nil {
			return nil, err
		}
	}

	i.redis, err = database.NewRedis(ctx, cfg.Redis.Address(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	i.telemetry, err = observability.InitTelemetry(serviceName)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Address(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	i.mailQueue = asynq.NewClient(redisOpt)
	i.mail = mail.NewDispatcher(i.mailQueue, cfg.Mail.QueueName, clockwork.NewRealClock())
	i.mailer = mail.NewWorker(redisOpt, cfg.Mail.QueueName, cfg.Mail.Concurrency, newMailer(cfg, logger), logger)
	if err := i.mailer.Start(); err != nil {
		return nil, err
	}

	if cfg.Google.Enabled() {
		i.google, err = oauth.NewGoogleProvider(ctx, oauth.GoogleConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
			Audiences:    cfg.Google.Audiences,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize google sign-in: %w", err)
		}
	} else {
		logger.Info("google sign-in disabled, GOOGLE_CLIENT_ID is not set")
	}

	return i, nil
}

func newMailer(cfg config.Config, logger *zap.Logger) mail.Mailer {
	if !cfg.SMTP.Enabled() {
		logger.Warn("SMTP_HOST is not set, outgoing mail is only logged")
		return mail.NewNopMailer(logger)
	}
	return mail.NewSMTPMailer(mail.SMTPConfig{
		Host:        cfg.SMTP.Host,
		Port:        cfg.SMTP.Port,
		Username:    cfg.SMTP.Username,
		Password:    cfg.SMTP.Password,
		FromAddress: cfg.Mail.FromAddress,
	})
}

func (i *infrastructure) Postgres() *database.Postgres {
	return i.postgres
}

func (i *infrastructure) Redis() *database.Redis {
	return i.redis
}

func (i *infrastructure) Logger() *zap.Logger {
	return i.logger
}

func (i *infrastructure) MetricsHandler() http.Handler {
	return i.telemetry.Handler
}

func (i *infrastructure) Metrics() *observability.AuthMetrics {
	return i.telemetry.Metrics
}

func (i *infrastructure) Mail() *mail.Dispatcher {
	return i.mail
}

func (i *infrastructure) Google() oauth.Provider {
	return i.google
}

func (i *infrastructure) Shutdown(ctx context.Context) error {
	// stop consuming before the stores go away
	i.mailer.Shutdown()

	errs := make(chan error, 3)

	go func() { errs <- errors.Join(i.mailQueue.Close(), i.closeStores()) }()
	go func() { errs <- observability.Shutdown(ctx, i.telemetry, i.logger) }()
	go func() { errs <- i.logger.Sync() }()

	return errors.Join(<-errs, <-errs, <-errs)
}

func (i *infrastructure) closeStores() error {
	var errs []error
	if i.postgres != nil {
		errs = append(errs, i.postgres.Close())
	}
	if i.redis != nil {
		errs = append(errs, i.redis.Close())
	}
	return errors.Join(errs...)
}
