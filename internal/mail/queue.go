package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jonboulle/clockwork"
)

// Task types handled by Worker
const (
	TaskPasswordResetOTP  = "mail:password_reset_otp"
	TaskPasswordResetLink = "mail:password_reset_link"
)

// passwordResetPayload carries a short-lived secret (code or link) to the worker.
// Completed tasks are not retained so the secret leaves Redis once delivered.
type passwordResetPayload struct {
	To        string        `json:"to"`
	Secret    string        `json:"secret"`
	ExpiresIn time.Duration `json:"expires_in"`
}

// enqueuer is the part of *asynq.Client the dispatcher needs
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher queues recovery mail and returns without waiting for SMTP
type Dispatcher struct {
	client enqueuer
	queue  string
	clock  clockwork.Clock
}

// NewDispatcher wraps an asynq client; queue names the asynq queue to use and
// clock dates the delivery deadline of every task
func NewDispatcher(client *asynq.Client, queue string, clock clockwork.Clock) *Dispatcher {
	return newDispatcher(client, queue, clock)
}

func newDispatcher(client enqueuer, queue string, clock clockwork.Clock) *Dispatcher {
	if queue == "" {
		queue = "default"
	}
	return &Dispatcher{client: client, queue: queue, clock: clock}
}

// SendPasswordResetOTP queues a message carrying a one-time code
func (d *Dispatcher) SendPasswordResetOTP(ctx context.Context, to, code string, expiresIn time.Duration) error {
	return d.enqueue(ctx, TaskPasswordResetOTP, passwordResetPayload{To: to, Secret: code, ExpiresIn: expiresIn})
}

// SendPasswordResetLink queues a message carrying a reset link
func (d *Dispatcher) SendPasswordResetLink(ctx context.Context, to, link string, expiresIn time.Duration) error {
	return d.enqueue(ctx, TaskPasswordResetLink, passwordResetPayload{To: to, Secret: link, ExpiresIn: expiresIn})
}

func (d *Dispatcher) enqueue(ctx context.Context, taskType string, payload passwordResetPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", taskType, err)
	}

	opts := []asynq.Option{
		asynq.Queue(d.queue),
		asynq.MaxRetry(5),
		asynq.Timeout(30 * time.Second),
	}
	if payload.ExpiresIn > 0 {
		// a code is useless after it expires
		opts = append(opts, asynq.Deadline(d.clock.Now().Add(payload.ExpiresIn)))
	}

	if _, err := d.client.EnqueueContext(ctx, asynq.NewTask(taskType, data), opts...); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", taskType, err)
	}
	return nil
}
