package models

import (
	"time"

	"github.com/google/uuid"
)

// VideoStatus is the local transcoding lifecycle of a lecture video.
type VideoStatus string

const (
	VideoStatusQueued     VideoStatus = "queued"
	VideoStatusInProgress VideoStatus = "in_progress"
	VideoStatusReady      VideoStatus = "ready"
	VideoStatusError      VideoStatus = "error"
)

// LiveStatuses are the states in which a job is still expected to progress at the provider.
var LiveStatuses = []VideoStatus{VideoStatusQueued, VideoStatusInProgress}

// IsValid reports whether s is one of the four known statuses.
func (s VideoStatus) IsValid() bool {
	switch s {
	case VideoStatusQueued, VideoStatusInProgress, VideoStatusReady, VideoStatusError:
		return true
	}
	return false
}

// IsLive reports whether s is queued or in_progress.
func (s VideoStatus) IsLive() bool {
	return s == VideoStatusQueued || s == VideoStatusInProgress
}

// CanTransition reports whether a record may move from s to next.
// Staying in the same status is always allowed (progress and metadata refresh).
// ready never regresses; error may recover to any other status.
func (s VideoStatus) CanTransition(next VideoStatus) bool {
	if !next.IsValid() {
		return false
	}
	if s == next {
		return true
	}
	switch s {
	case VideoStatusQueued:
		return next == VideoStatusInProgress || next == VideoStatusReady || next == VideoStatusError
	case VideoStatusInProgress:
		return next == VideoStatusReady || next == VideoStatusError
	case VideoStatusError:
		return true
	}
	return false
}

// Video is one uploaded lecture video and its transcoding state.
type Video struct {
	ID                 uuid.UUID      `json:"id"`
	ExternalID         string         `json:"external_id"`
	CourseID           uuid.UUID      `json:"course_id"`
	LessonID           string         `json:"lesson_id"`
	Title              string         `json:"title"`
	Description        *string        `json:"description,omitempty"`
	Status             VideoStatus    `json:"status"`
	ProcessingProgress int            `json:"processing_progress"`
	ErrorMessage       *string        `json:"error_message,omitempty"`
	ErrorCode          *string        `json:"error_code,omitempty"`
	PlaybackHLS        *string        `json:"playback_hls,omitempty"`
	PlaybackDASH       *string        `json:"playback_dash,omitempty"`
	ThumbnailURL       *string        `json:"thumbnail_url,omitempty"`
	DurationSeconds    *float64       `json:"duration_seconds,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// CreateVideoInput registers an upload that the provider has already accepted.
type CreateVideoInput struct {
	CourseID    uuid.UUID      `json:"course_id"`
	LessonID    string         `json:"lesson_id"`
	ExternalID  string         `json:"external_id"`
	Title       string         `json:"title"`
	Description *string        `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// VideoUpdate carries only the columns to change; nil fields are left alone.
// A pointer to an empty string stores NULL. ClearError nulls error_message and error_code.
type VideoUpdate struct {
	Title              *string        `json:"title,omitempty"`
	Description        *string        `json:"description,omitempty"`
	Status             *VideoStatus   `json:"status,omitempty"`
	ProcessingProgress *int           `json:"processing_progress,omitempty"`
	ErrorMessage       *string        `json:"error_message,omitempty"`
	ErrorCode          *string        `json:"error_code,omitempty"`
	PlaybackHLS        *string        `json:"playback_hls,omitempty"`
	PlaybackDASH       *string        `json:"playback_dash,omitempty"`
	ThumbnailURL       *string        `json:"thumbnail_url,omitempty"`
	DurationSeconds    *float64       `json:"duration_seconds,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	ClearError         bool           `json:"-"`
}

// IsEmpty reports whether the update would not touch any column.
func (u VideoUpdate) IsEmpty() bool {
	return u.Title == nil && u.Description == nil && u.Status == nil && u.ProcessingProgress == nil &&
		u.ErrorMessage == nil && u.ErrorCode == nil && u.PlaybackHLS == nil && u.PlaybackDASH == nil &&
		u.ThumbnailURL == nil && u.DurationSeconds == nil && u.Metadata == nil && !u.ClearError
}

// TouchesPlayback reports whether any playback column is being written.
func (u VideoUpdate) TouchesPlayback() bool {
	return u.PlaybackHLS != nil || u.PlaybackDASH != nil || u.ThumbnailURL != nil || u.DurationSeconds != nil
}

// RetryAttempt is one process-lifetime retry of a failed video. Never persisted to Postgres.
type RetryAttempt struct {
	VideoID uuid.UUID `json:"video_id"`
	Attempt int       `json:"attempt"`
	At      time.Time `json:"at"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}

// Course is the subset of a course row the video engine needs.
type Course struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
	Slug  string    `json:"slug"`
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// StatusPtr returns a pointer to s.
func StatusPtr(s VideoStatus) *VideoStatus { return &s }

// IntPtr returns a pointer to n.
func IntPtr(n int) *int { return &n }

// Deref returns *p, or "" when p is nil.
func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
