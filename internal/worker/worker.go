// Package worker consumes jobs queued by the API: manual video retries and
// operator emails.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-academy/backend/internal/models"
	"github.com/aura-academy/backend/internal/monitoring"
	"github.com/aura-academy/backend/pkg/apperr"
	"github.com/aura-academy/backend/pkg/queue"
)

// Retrier runs the retry loop of one video.
type Retrier interface {
	RetryVideo(ctx context.Context, id uuid.UUID, override *monitoring.RetryConfig) (bool, error)
}

// Mailer sends one HTML email.
type Mailer interface {
	SendHTML(to, subject, htmlBody string) error
}

// EmailLogger records delivery attempts.
type EmailLogger interface {
	Insert(ctx context.Context, el *models.EmailLog) error
}

// JobQueue is the subset of the Redis queue the worker loop uses.
type JobQueue interface {
	Dequeue(ctx context.Context, lists ...string) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Processor executes video retry and email jobs.
type Processor struct {
	retrier Retrier
	mailer  Mailer
	logs    EmailLogger
	queue   JobQueue
	backoff time.Duration
	logger  *zap.Logger
}

// NewProcessor creates a job processor. logs may be nil.
func NewProcessor(retrier Retrier, mailer Mailer, logs EmailLogger, q JobQueue, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{retrier: retrier, mailer: mailer, logs: logs, queue: q, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeVideoRetry:
		var payload queue.VideoRetryPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return p.retryVideo(ctx, payload)
	case queue.JobTypeEmail:
		var payload queue.EmailPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		return p.sendEmail(ctx, payload)
	}
	return fmt.Errorf("unknown job type: %s", job.Type)
}

func (p *Processor) retryVideo(ctx context.Context, payload queue.VideoRetryPayload) error {
	recovered, err := p.retrier.RetryVideo(ctx, payload.VideoID, nil)
	if errors.Is(err, apperr.ErrNotFound) {
		p.logger.Info("retry job for deleted video dropped", zap.String("video_id", payload.VideoID.String()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("retry video %s: %w", payload.VideoID, err)
	}
	p.logger.Info("manual retry finished",
		zap.String("video_id", payload.VideoID.String()),
		zap.String("requested_by", payload.RequestedBy),
		zap.Bool("recovered", recovered),
	)
	return nil
}

func (p *Processor) sendEmail(ctx context.Context, payload queue.EmailPayload) error {
	sendErr := p.mailer.SendHTML(payload.RecipientEmail, payload.Subject, payload.BodyHTML)

	el := &models.EmailLog{
		VideoID:        payload.VideoID,
		EmailType:      payload.EmailType,
		RecipientEmail: payload.RecipientEmail,
		Subject:        payload.Subject,
		Status:         models.EmailLogStatusSent,
	}
	if sendErr != nil {
		el.Status = models.EmailLogStatusFailed
		el.ErrorMessage = sendErr.Error()
	} else {
		now := time.Now()
		el.SentAt = &now
	}
	if p.logs != nil {
		if err := p.logs.Insert(ctx, el); err != nil {
			p.logger.Warn("email log insert failed", zap.String("recipient", payload.RecipientEmail), zap.Error(err))
		}
	}
	if sendErr != nil {
		return fmt.Errorf("send email: %w", sendErr)
	}
	p.logger.Info("email sent", zap.String("email_type", payload.EmailType), zap.String("recipient", payload.RecipientEmail))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error. It returns when ctx is done.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("job worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.wait(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(context.WithoutCancel(ctx), job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.wait(ctx)
		}
	}
}

func (p *Processor) wait(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
