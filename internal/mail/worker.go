package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prperemyshlev/care-auth/internal/utils"
	"go.uber.org/zap"
)

// Worker drains the mail queue
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

// NewWorker builds an asynq server bound to queue and routes both task types to mailer
func NewWorker(redisOpt asynq.RedisClientOpt, queue string, concurrency int, mailer Mailer, logger *zap.Logger) *Worker {
	if queue == "" {
		queue = "default"
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     concurrency,
		Queues:          map[string]int{queue: 1},
		ShutdownTimeout: 10 * time.Second,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			logger.Error("mail task failed",
				zap.String("type", task.Type()),
				zap.Int("retried", retried),
				zap.Error(err))
		}),
		Logger: &zapLogger{logger: logger.Sugar()},
	})

	return &Worker{
		server: server,
		mux:    NewServeMux(mailer, logger),
		logger: logger,
	}
}

// NewServeMux routes mail task types to their handlers
func NewServeMux(mailer Mailer, logger *zap.Logger) *asynq.ServeMux {
	h := &taskHandler{mailer: mailer, logger: logger}

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskPasswordResetOTP, h.handle(passwordResetOTPMessage))
	mux.HandleFunc(TaskPasswordResetLink, h.handle(passwordResetLinkMessage))
	return mux
}

// Start runs the worker in the background
func (w *Worker) Start() error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start mail worker: %w", err)
	}
	w.logger.Info("mail worker started")
	return nil
}

// Shutdown waits for in-flight tasks and stops the worker
func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

type taskHandler struct {
	mailer Mailer
	logger *zap.Logger
}

func (h *taskHandler) handle(build func(to, secret string, expiresIn time.Duration) Message) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p passwordResetPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
		}
		if p.To == "" || p.Secret == "" {
			return fmt.Errorf("incomplete payload: %w", asynq.SkipRetry)
		}

		if err := h.mailer.Send(ctx, build(p.To, p.Secret, p.ExpiresIn)); err != nil {
			return fmt.Errorf("failed to send %s: %w", task.Type(), err)
		}

		h.logger.Info("mail delivered",
			zap.String("type", task.Type()),
			zap.String("to", utils.MaskIdentifier(p.To)))
		return nil
	}
}

// zapLogger adapts zap to asynq.Logger
type zapLogger struct {
	logger *zap.SugaredLogger
}

func (l *zapLogger) Debug(args ...any) { l.logger.Debug(args...) }
func (l *zapLogger) Info(args ...any)  { l.logger.Info(args...) }
func (l *zapLogger) Warn(args ...any)  { l.logger.Warn(args...) }
func (l *zapLogger) Error(args ...any) { l.logger.Error(args...) }
func (l *zapLogger) Fatal(args ...any) { l.logger.Fatal(args...) }
