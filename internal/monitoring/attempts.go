package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aura-academy/backend/internal/models"
)

// AttemptStore holds the transient retry history of failed videos.
type AttemptStore interface {
	Append(ctx context.Context, a models.RetryAttempt) error
	History(ctx context.Context, videoID uuid.UUID) ([]models.RetryAttempt, error)
	// MarkNotified records that the terminal notification went out and
	// reports whether this call was the first to do so.
	MarkNotified(ctx context.Context, videoID uuid.UUID) (bool, error)
	// Clear drops the history and the notified mark.
	Clear(ctx context.Context, videoID uuid.UUID) error
}

// MaxAttemptHistory caps the attempts kept per video. Exhausted videos keep
// recording one attempt per retry pass, so older entries are dropped.
const MaxAttemptHistory = 50

// MemoryAttemptStore keeps attempts for the life of the process.
type MemoryAttemptStore struct {
	mu       sync.Mutex
	attempts map[uuid.UUID][]models.RetryAttempt
	notified map[uuid.UUID]bool
}

// NewMemoryAttemptStore creates an empty in-process attempt store.
func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{
		attempts: make(map[uuid.UUID][]models.RetryAttempt),
		notified: make(map[uuid.UUID]bool),
	}
}

func (s *MemoryAttemptStore) Append(_ context.Context, a models.RetryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := append(s.attempts[a.VideoID], a)
	if len(list) > MaxAttemptHistory {
		list = append([]models.RetryAttempt(nil), list[len(list)-MaxAttemptHistory:]...)
	}
	s.attempts[a.VideoID] = list
	return nil
}

func (s *MemoryAttemptStore) History(_ context.Context, videoID uuid.UUID) ([]models.RetryAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.attempts[videoID]
	out := make([]models.RetryAttempt, len(list))
	copy(out, list)
	return out, nil
}

func (s *MemoryAttemptStore) MarkNotified(_ context.Context, videoID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notified[videoID] {
		return false, nil
	}
	s.notified[videoID] = true
	return true, nil
}

func (s *MemoryAttemptStore) Clear(_ context.Context, videoID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, videoID)
	delete(s.notified, videoID)
	return nil
}

// DefaultAttemptTTL expires Redis attempt history nobody cleared.
const DefaultAttemptTTL = 7 * 24 * time.Hour

// RedisAttemptStore shares attempt history between the API and worker processes.
type RedisAttemptStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisAttemptStore creates a Redis-backed attempt store. ttl <= 0 uses DefaultAttemptTTL.
func NewRedisAttemptStore(client *redis.Client, ttl time.Duration) *RedisAttemptStore {
	if ttl <= 0 {
		ttl = DefaultAttemptTTL
	}
	return &RedisAttemptStore{client: client, ttl: ttl}
}

func attemptsKey(id uuid.UUID) string { return "retry:attempts:" + id.String() }

func notifiedKey(id uuid.UUID) string { return "retry:notified:" + id.String() }

func (s *RedisAttemptStore) Append(ctx context.Context, a models.RetryAttempt) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	key := attemptsKey(a.VideoID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, raw)
	pipe.LTrim(ctx, key, -MaxAttemptHistory, -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append attempt: %w", err)
	}
	return nil
}

func (s *RedisAttemptStore) History(ctx context.Context, videoID uuid.UUID) ([]models.RetryAttempt, error) {
	raws, err := s.client.LRange(ctx, attemptsKey(videoID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load attempts: %w", err)
	}
	out := make([]models.RetryAttempt, 0, len(raws))
	for _, raw := range raws {
		var a models.RetryAttempt
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("decode attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *RedisAttemptStore) MarkNotified(ctx context.Context, videoID uuid.UUID) (bool, error) {
	ok, err := s.client.SetNX(ctx, notifiedKey(videoID), time.Now().Unix(), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark notified: %w", err)
	}
	return ok, nil
}

func (s *RedisAttemptStore) Clear(ctx context.Context, videoID uuid.UUID) error {
	if err := s.client.Del(ctx, attemptsKey(videoID), notifiedKey(videoID)).Err(); err != nil {
		return fmt.Errorf("clear attempts: %w", err)
	}
	return nil
}
