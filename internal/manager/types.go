package manager

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state the manager stores for an episode.
type Status string

// Episode statuses.
const (
	StatusDiscovered Status = "discovered"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCleaned    Status = "cleaned"
	StatusFailed     Status = "failed"
	StatusIgnored    Status = "ignored"
)

// Active reports whether a worker may currently be processing the episode.
// The manager keeps "queued" for the whole worker run, so both count.
func (s Status) Active() bool {
	return s == StatusQueued || s == StatusProcessing
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDiscovered, StatusQueued, StatusProcessing, StatusCleaned, StatusFailed, StatusIgnored:
		return true
	}
	return false
}

// Time decodes the manager's timestamps, which are ISO-8601 and usually
// carry no zone. Zone-less values are UTC.
type Time struct {
	time.Time
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON accepts RFC 3339, zone-less ISO-8601 and null.
func (t *Time) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode timestamp: %w", err)
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		t.Time = parsed.UTC()
		return nil
	}
	for _, layout := range naiveLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("decode timestamp %q: unsupported layout", raw)
}

// MarshalJSON writes RFC 3339 or null for the zero time.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// Feed is a subscribed podcast source.
type Feed struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	RSSURL      string  `json:"rss_url"`
	Description *string `json:"description,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`
	Author      *string `json:"author,omitempty"`
	AutoProcess bool    `json:"auto_process"`
	CreatedAt   Time    `json:"created_at"`
	UpdatedAt   Time    `json:"updated_at"`
}

// Episode is one row of the episode listing.
type Episode struct {
	ID            int64   `json:"id"`
	FeedID        int64   `json:"feed_id"`
	FeedTitle     string  `json:"feed_title"`
	GUID          string  `json:"guid"`
	Status        Status  `json:"status"`
	Title         string  `json:"title"`
	AudioURL      string  `json:"audio_url"`
	PublishedAt   *Time   `json:"published_at,omitempty"`
	LocalFilename *string `json:"local_filename,omitempty"`
	CreatedAt     Time    `json:"created_at"`
	UpdatedAt     Time    `json:"updated_at"`
}

// EpisodePage is the paginated listing envelope.
type EpisodePage struct {
	Items      []Episode `json:"items"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	TotalPages int       `json:"total_pages"`
}

// Default listing pagination.
const (
	DefaultPage     = 1
	DefaultPageSize = 25
)

// ListEpisodesParams filters and paginates the episode listing. Zero values
// are omitted from the query so the manager applies its own defaults.
type ListEpisodesParams struct {
	FeedID      int64
	Status      Status
	ShowIgnored bool
	Page        int
	PageSize    int
}

// TaskRef links a queued episode to the worker task dispatched for it.
type TaskRef struct {
	EpisodeID int64  `json:"episode_id"`
	TaskID    string `json:"task_id"`
}

// QueueResult is returned by QueueEpisodes.
type QueueResult struct {
	Queued int       `json:"queued"`
	Tasks  []TaskRef `json:"tasks"`
}

// IgnoreResult is returned by IgnoreEpisodes.
type IgnoreResult struct {
	Ignored int `json:"ignored"`
}

// RestoreResult is returned by RestoreEpisodes.
type RestoreResult struct {
	Restored int `json:"restored"`
}

// DeleteFeedResult is returned by DeleteFeed.
type DeleteFeedResult struct {
	Message         string `json:"message"`
	DeletedEpisodes int    `json:"deleted_episodes"`
}

// IngestedEpisode is one newly discovered episode.
type IngestedEpisode struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Status Status `json:"status"`
}

// IngestResult is returned by IngestFeed.
type IngestResult struct {
	Message     string            `json:"message"`
	NewEpisodes int               `json:"new_episodes"`
	Episodes    []IngestedEpisode `json:"episodes"`
}

type bulkRequest struct {
	EpisodeIDs []int64 `json:"episode_ids"`
}
