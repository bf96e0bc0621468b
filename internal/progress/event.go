// Package progress defines the event pushed by the manager for each episode job.
package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Stage names reported by the processing worker. Other non-empty stage
// strings are accepted as-is.
const (
	StageDownloading = "downloading"
	StageDownloaded  = "downloaded"
	StageProcessing  = "processing"
	StageUploading   = "uploading"
	StageCompleted   = "completed"
	StageFailed      = "failed"
)

// ErrMalformedEvent wraps every decoding or validation failure of an inbound frame.
var ErrMalformedEvent = errors.New("malformed progress event")

// Event is the most recent known processing state for one episode.
type Event struct {
	// EpisodeID identifies the episode in the manager database.
	EpisodeID int64 `json:"episode_id"`
	// Progress is the completion percentage in [0, 100].
	Progress float64 `json:"progress"`
	// Stage names the pipeline step the worker is in.
	Stage string `json:"stage"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.EpisodeID <= 0 {
		return errors.New("episode_id must be positive")
	}
	if math.IsNaN(e.Progress) || e.Progress < 0 || e.Progress > 100 {
		return fmt.Errorf("progress %v out of range [0, 100]", e.Progress)
	}
	if e.Stage == "" {
		return errors.New("stage is required")
	}
	return nil
}

// Terminal reports whether the stage ends the episode's job.
func (e Event) Terminal() bool {
	return e.Stage == StageCompleted || e.Stage == StageFailed
}

type wireEvent struct {
	EpisodeID *int64   `json:"episode_id"`
	Progress  *float64 `json:"progress"`
	Stage     *string  `json:"stage"`
}

// DecodeEvent parses one inbound JSON frame. Every field is required; a frame
// that is not JSON, lacks a field, or fails Validate yields ErrMalformedEvent.
func DecodeEvent(payload []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	switch {
	case w.EpisodeID == nil:
		return Event{}, fmt.Errorf("%w: missing episode_id", ErrMalformedEvent)
	case w.Progress == nil:
		return Event{}, fmt.Errorf("%w: missing progress", ErrMalformedEvent)
	case w.Stage == nil:
		return Event{}, fmt.Errorf("%w: missing stage", ErrMalformedEvent)
	}
	evt := Event{EpisodeID: *w.EpisodeID, Progress: *w.Progress, Stage: *w.Stage}
	if err := evt.Validate(); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	return evt, nil
}
