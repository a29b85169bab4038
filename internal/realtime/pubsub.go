package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aura-academy/backend/internal/models"
)

const (
	channelPrefix = "course-videos:"
	eventTTL      = 5 * time.Second

	// EventVideoStatus carries a VideoStatusEvent.
	EventVideoStatus = "video_status"
)

// redisPayload is the message published to Redis for cross-instance broadcast.
type redisPayload struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	At    int64           `json:"at"`
}

// VideoStatusEvent is the live view of a video pushed to dashboards.
type VideoStatusEvent struct {
	VideoID            uuid.UUID          `json:"video_id"`
	CourseID           uuid.UUID          `json:"course_id"`
	LessonID           string             `json:"lesson_id"`
	Status             models.VideoStatus `json:"status"`
	ProcessingProgress int                `json:"processing_progress"`
	ErrorMessage       *string            `json:"error_message,omitempty"`
	PlaybackHLS        *string            `json:"playback_hls,omitempty"`
	PlaybackDASH       *string            `json:"playback_dash,omitempty"`
	ThumbnailURL       *string            `json:"thumbnail_url,omitempty"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// RedisPubSub fans video events out to every API instance through Redis.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a Redis pub/sub bridge for course video events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger}
}

// PublishVideoStatus publishes v on its course channel.
func (r *RedisPubSub) PublishVideoStatus(ctx context.Context, v *models.Video) error {
	payload, err := json.Marshal(VideoStatusEvent{
		VideoID:            v.ID,
		CourseID:           v.CourseID,
		LessonID:           v.LessonID,
		Status:             v.Status,
		ProcessingProgress: v.ProcessingProgress,
		ErrorMessage:       v.ErrorMessage,
		PlaybackHLS:        v.PlaybackHLS,
		PlaybackDASH:       v.PlaybackDASH,
		ThumbnailURL:       v.ThumbnailURL,
		UpdatedAt:          v.UpdatedAt,
	})
	if err != nil {
		return err
	}
	return r.PublishCourseEvent(ctx, v.CourseID, EventVideoStatus, payload)
}

// PublishCourseEvent publishes an event to the course's Redis channel.
func (r *RedisPubSub) PublishCourseEvent(ctx context.Context, courseID uuid.UUID, event string, payload []byte) error {
	body, err := json.Marshal(redisPayload{Event: event, Data: payload, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, eventTTL)
	defer cancel()
	return r.client.Publish(ctx, channelPrefix+courseID.String(), body).Err()
}

// SubscribeCourse subscribes to a course's Redis channel and calls handler for each message.
// Returns a cancel function to stop the subscription.
func (r *RedisPubSub) SubscribeCourse(courseID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, channelPrefix+courseID.String())
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var p redisPayload
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					r.logger.Debug("dropping malformed course event", zap.Error(err))
					continue
				}
				handler(p.Event, p.Data)
			}
		}
	}()
	return cancelCtx, nil
}
