package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueVideoRetry is the Redis list key for manual video retry jobs.
	QueueVideoRetry = "worker:video_retry"
	// QueueEmails is the Redis list key for email jobs.
	QueueEmails = "worker:emails"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
	// DequeueTimeout bounds one blocking pop so the worker notices shutdown.
	DequeueTimeout = 5 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeVideoRetry JobType = "video_retry"
	JobTypeEmail      JobType = "email"
)

// VideoRetryPayload is the payload for manual video retry jobs.
type VideoRetryPayload struct {
	VideoID     uuid.UUID `json:"video_id"`
	RequestedBy string    `json:"requested_by,omitempty"`
}

// EmailPayload is the payload for email jobs.
type EmailPayload struct {
	EmailType      string     `json:"email_type"`
	VideoID        *uuid.UUID `json:"video_id,omitempty"`
	RecipientEmail string     `json:"recipient_email"`
	Subject        string     `json:"subject"`
	BodyHTML       string     `json:"body_html"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// ListFor returns the Redis list a job type is queued on.
func ListFor(t JobType) (string, error) {
	switch t {
	case JobTypeVideoRetry:
		return QueueVideoRetry, nil
	case JobTypeEmail:
		return QueueEmails, nil
	}
	return "", fmt.Errorf("unknown job type: %s", t)
}

// EnqueueVideoRetry enqueues a manual retry of a failed video.
func (q *Queue) EnqueueVideoRetry(ctx context.Context, payload VideoRetryPayload) (string, error) {
	id, err := q.enqueue(ctx, JobTypeVideoRetry, payload)
	if err != nil {
		return "", err
	}
	q.logger.Debug("enqueued video retry job", zap.String("job_id", id), zap.String("video_id", payload.VideoID.String()))
	return id, nil
}

// EnqueueEmail enqueues an email job.
func (q *Queue) EnqueueEmail(ctx context.Context, payload EmailPayload) error {
	id, err := q.enqueue(ctx, JobTypeEmail, payload)
	if err != nil {
		return err
	}
	q.logger.Debug("enqueued email job", zap.String("job_id", id), zap.String("email_type", payload.EmailType))
	return nil
}

func (q *Queue) enqueue(ctx context.Context, t JobType, payload any) (string, error) {
	list, err := ListFor(t)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      t,
		Payload:   body,
		Attempt:   0,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, list, raw).Err(); err != nil {
		return "", fmt.Errorf("rpush: %w", err)
	}
	return job.ID, nil
}

// Dequeue blocks up to DequeueTimeout for a job on any of lists (all job
// lists when none are given). Returns job and key (queue name); a nil job
// means the wait timed out or the payload was unreadable.
func (q *Queue) Dequeue(ctx context.Context, lists ...string) (*Job, string, error) {
	if len(lists) == 0 {
		lists = []string{QueueVideoRetry, QueueEmails}
	}
	result, err := q.client.BLPop(ctx, DequeueTimeout, lists...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, "", nil
		}
		return nil, "", err
	}
	if len(result) < 2 {
		return nil, "", nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, result[0], nil
	}
	return &job, result[0], nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	list, err := ListFor(job.Type)
	if err != nil || job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.client.RPush(ctx, list, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}
