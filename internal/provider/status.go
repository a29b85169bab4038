// Package provider talks to the remote video transcoding service and maps its
// asynchronous job states onto local video statuses.
package provider

import (
	"fmt"
	"strings"

	"github.com/aura-academy/backend/internal/models"
	"github.com/aura-academy/backend/pkg/apperr"
)

// State is a remote transcoding job state.
type State int

const (
	StateQueued State = iota
	StateInProgress
	StateReady
	StateError

	numStates
)

var stateNames = [...]string{
	StateQueued:     "queued",
	StateInProgress: "inprogress",
	StateReady:      "ready",
	StateError:      "error",
}

// localStatus is indexed by State. Every remote state must have an entry.
var localStatus = [...]models.VideoStatus{
	StateQueued:     models.VideoStatusQueued,
	StateInProgress: models.VideoStatusInProgress,
	StateReady:      models.VideoStatusReady,
	StateError:      models.VideoStatusError,
}

// Compile-time guards: adding a State without a name and a local mapping
// makes these index expressions go out of range.
var (
	_ = [1]struct{}{}[len(localStatus)-int(numStates)]
	_ = [1]struct{}{}[len(stateNames)-int(numStates)]
)

func (s State) String() string {
	if s < 0 || s >= numStates {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// LocalStatus maps a remote state onto the local lifecycle.
func (s State) LocalStatus() models.VideoStatus {
	if s < 0 || s >= numStates {
		return models.VideoStatusError
	}
	return localStatus[s]
}

// ParseState accepts the provider's state strings. The pre-ingest states
// (pendingupload, downloading) are reported as queued.
func ParseState(raw string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pendingupload", "downloading", "queued":
		return StateQueued, nil
	case "inprogress", "in_progress":
		return StateInProgress, nil
	case "ready":
		return StateReady, nil
	case "error":
		return StateError, nil
	}
	return 0, apperr.Wrap(apperr.ErrExternalService, "parse state", fmt.Sprintf("unknown remote state %q", raw), nil)
}

// Status is one observation of a remote job.
type Status struct {
	State           State
	ProgressPercent int
	DurationSeconds *float64
	PlaybackHLS     string
	PlaybackDASH    string
	ThumbnailURL    string
	ErrorCode       string
	ErrorText       string
	Meta            map[string]any
}

// PlaybackAvailable reports whether at least one manifest URL was returned.
func (s Status) PlaybackAvailable() bool {
	return s.PlaybackHLS != "" || s.PlaybackDASH != ""
}

// EffectiveStatus is the local status this observation justifies. A job the
// provider calls ready but without any manifest is kept in_progress until a
// later check sees playback.
func (s Status) EffectiveStatus() models.VideoStatus {
	if s.State == StateReady && !s.PlaybackAvailable() {
		return models.VideoStatusInProgress
	}
	return s.State.LocalStatus()
}

// ErrorDetail joins the error code and text for logs and attempt history.
func (s Status) ErrorDetail() string {
	switch {
	case s.ErrorCode != "" && s.ErrorText != "":
		return s.ErrorCode + ": " + s.ErrorText
	case s.ErrorCode != "":
		return s.ErrorCode
	case s.ErrorText != "":
		return s.ErrorText
	}
	return "remote reported error"
}
