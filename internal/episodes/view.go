// Package episodes polls the manager's episode listing and overlays live
// progress on rows that are being processed.
package episodes

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/purifier-console/internal/clock"
	"github.com/JakeFAU/purifier-console/internal/clock/system"
	"github.com/JakeFAU/purifier-console/internal/manager"
	"github.com/JakeFAU/purifier-console/internal/progress"
)

// DefaultInterval is how often the listing is re-fetched.
const DefaultInterval = 5 * time.Second

// Lister fetches the authoritative episode listing.
type Lister interface {
	ListEpisodes(ctx context.Context, params manager.ListEpisodesParams) (manager.EpisodePage, error)
}

// ProgressSource answers the latest progress event per episode. A source
// that also implements Connected() bool has its connection state copied
// into every frame.
type ProgressSource interface {
	Progress(episodeID int64) (progress.Event, bool)
}

type connectionReporter interface {
	Connected() bool
}

// Row is one listing item, possibly carrying the latest progress event.
type Row struct {
	manager.Episode
	Progress *progress.Event `json:"progress,omitempty"`
}

// Percent returns the overlaid completion percentage.
func (r Row) Percent() (float64, bool) {
	if r.Progress == nil {
		return 0, false
	}
	return r.Progress.Progress, true
}

// Stage returns the overlaid stage, or "" when the row has no overlay.
func (r Row) Stage() string {
	if r.Progress == nil {
		return ""
	}
	return r.Progress.Stage
}

// Frame is the result of one refresh.
type Frame struct {
	Page      manager.EpisodePage
	Rows      []Row
	FetchedAt time.Time
	Connected bool
	// Err is the listing failure of this refresh. Page and Rows then hold the
	// last successful listing, re-overlaid.
	Err error
}

// Overlay pairs each item with the source's latest event when the item's
// status is active. Inactive rows never carry progress.
func Overlay(items []manager.Episode, source ProgressSource) []Row {
	rows := make([]Row, len(items))
	for i, item := range items {
		rows[i] = Row{Episode: item}
		if source == nil || !item.Status.Active() {
			continue
		}
		if evt, ok := source.Progress(item.ID); ok {
			rows[i].Progress = &evt
		}
	}
	return rows
}

// Config wires a View.
type Config struct {
	Lister   Lister
	Source   ProgressSource
	Interval time.Duration
	Params   manager.ListEpisodesParams
	Clock    clock.Clock
	Logger   *zap.Logger
}

// View is the polling episode table.
type View struct {
	lister   Lister
	source   ProgressSource
	interval time.Duration
	clock    clock.Clock
	logger   *zap.Logger

	mu     sync.Mutex
	params manager.ListEpisodesParams
	last   manager.EpisodePage
}

// NewView validates cfg. Params default to the first page of 25 items.
func NewView(cfg Config) (*View, error) {
	if cfg.Lister == nil {
		return nil, errors.New("episode view requires a lister")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Params.Page <= 0 {
		cfg.Params.Page = manager.DefaultPage
	}
	if cfg.Params.PageSize <= 0 {
		cfg.Params.PageSize = manager.DefaultPageSize
	}
	clk := cfg.Clock
	if clk == nil {
		clk = system.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &View{
		lister:   cfg.Lister,
		source:   cfg.Source,
		interval: cfg.Interval,
		clock:    clk,
		logger:   logger,
		params:   cfg.Params,
	}, nil
}

// Interval returns the polling period.
func (v *View) Interval() time.Duration {
	return v.interval
}

// Params returns the current filter and page.
func (v *View) Params() manager.ListEpisodesParams {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.params
}

// SetParams changes the filter or page used by the next refresh.
func (v *View) SetParams(params manager.ListEpisodesParams) {
	if params.Page <= 0 {
		params.Page = manager.DefaultPage
	}
	if params.PageSize <= 0 {
		params.PageSize = manager.DefaultPageSize
	}
	v.mu.Lock()
	v.params = params
	v.last = manager.EpisodePage{}
	v.mu.Unlock()
}

// Refresh fetches the listing once and builds a frame. A fetch error is
// returned and also recorded in the frame.
func (v *View) Refresh(ctx context.Context) (Frame, error) {
	params := v.Params()
	page, err := v.lister.ListEpisodes(ctx, params)

	v.mu.Lock()
	if err == nil {
		v.last = page
	} else {
		page = v.last
	}
	v.mu.Unlock()

	frame := Frame{
		Page:      page,
		Rows:      Overlay(page.Items, v.source),
		FetchedAt: v.clock.Now(),
		Err:       err,
	}
	if reporter, ok := v.source.(connectionReporter); ok {
		frame.Connected = reporter.Connected()
	}
	return frame, err
}

// Run refreshes immediately and then every interval, handing each frame to
// render, until ctx is done. Fetch errors arrive in Frame.Err and polling
// continues.
func (v *View) Run(ctx context.Context, render func(Frame)) error {
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()
	for {
		frame, err := v.Refresh(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			v.logger.Warn("episode listing refresh failed", zap.Error(err))
		}
		render(frame)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
