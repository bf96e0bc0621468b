// Package console implements the operator actions of the admin console on top
// of the manager client. Every successful mutation is recorded in the audit
// log.
package console

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/purifier-console/internal/clock"
	"github.com/JakeFAU/purifier-console/internal/clock/system"
	"github.com/JakeFAU/purifier-console/internal/manager"
	"github.com/JakeFAU/purifier-console/internal/store"
)

// ErrInvalidInput marks operator input rejected before reaching the manager.
var ErrInvalidInput = errors.New("invalid input")

// Manager is the subset of the manager client the service needs.
type Manager interface {
	Health(ctx context.Context) error
	ListFeeds(ctx context.Context) ([]manager.Feed, error)
	CreateFeed(ctx context.Context, rssURL string) (manager.Feed, error)
	DeleteFeed(ctx context.Context, feedID int64) (manager.DeleteFeedResult, error)
	SetAutoProcess(ctx context.Context, feedID int64, enabled bool) (manager.Feed, error)
	IngestFeed(ctx context.Context, feedID int64) (manager.IngestResult, error)
	ListEpisodes(ctx context.Context, params manager.ListEpisodesParams) (manager.EpisodePage, error)
	QueueEpisodes(ctx context.Context, ids []int64) (manager.QueueResult, error)
	IgnoreEpisodes(ctx context.Context, ids []int64) (manager.IgnoreResult, error)
	RestoreEpisodes(ctx context.Context, ids []int64) (manager.RestoreResult, error)
	ReportProgress(ctx context.Context, episodeID int64, percent int, stage string) error
}

// IDGenerator mints audit entry IDs.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Config wires a Service. Manager is required.
type Config struct {
	Manager Manager
	Actions store.ActionRepository
	Clock   clock.Clock
	IDs     IDGenerator
	Logger  *zap.Logger
}

// Service validates operator input, forwards it to the manager and audits
// the outcome.
type Service struct {
	manager Manager
	actions store.ActionRepository
	clock   clock.Clock
	ids     IDGenerator
	logger  *zap.Logger
}

// New constructs a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Manager == nil {
		return nil, errors.New("console service requires a manager client")
	}
	actions := cfg.Actions
	if actions == nil {
		actions = store.NoopActions{}
	}
	clk := cfg.Clock
	if clk == nil {
		clk = system.New()
	}
	ids := cfg.IDs
	if ids == nil {
		ids = uuidV7{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{manager: cfg.Manager, actions: actions, clock: clk, ids: ids, logger: logger}, nil
}

type uuidV7 struct{}

func (uuidV7) NewRawID() (uuid.UUID, error) { return uuid.NewV7() }

// Health reports whether the manager answers its liveness probe.
func (s *Service) Health(ctx context.Context) error {
	return s.manager.Health(ctx)
}

// ListFeeds returns every subscribed feed.
func (s *Service) ListFeeds(ctx context.Context) ([]manager.Feed, error) {
	return s.manager.ListFeeds(ctx)
}

// CreateFeed subscribes to an http(s) RSS URL.
func (s *Service) CreateFeed(ctx context.Context, rssURL string) (manager.Feed, error) {
	normalized, err := ValidateRSSURL(rssURL)
	if err != nil {
		return manager.Feed{}, err
	}
	feed, err := s.manager.CreateFeed(ctx, normalized)
	if err != nil {
		return manager.Feed{}, err
	}
	s.record(ctx, store.Action{Kind: store.ActionCreateFeed, FeedID: &feed.ID, Affected: 1, Detail: feed.Title})
	return feed, nil
}

// DeleteFeed removes a feed and its episodes.
func (s *Service) DeleteFeed(ctx context.Context, feedID int64) (manager.DeleteFeedResult, error) {
	if err := validateID("feed id", feedID); err != nil {
		return manager.DeleteFeedResult{}, err
	}
	res, err := s.manager.DeleteFeed(ctx, feedID)
	if err != nil {
		return manager.DeleteFeedResult{}, err
	}
	s.record(ctx, store.Action{Kind: store.ActionDeleteFeed, FeedID: &feedID, Affected: res.DeletedEpisodes, Detail: res.Message})
	return res, nil
}

// SetAutoProcess toggles automatic queueing for a feed.
func (s *Service) SetAutoProcess(ctx context.Context, feedID int64, enabled bool) (manager.Feed, error) {
	if err := validateID("feed id", feedID); err != nil {
		return manager.Feed{}, err
	}
	feed, err := s.manager.SetAutoProcess(ctx, feedID, enabled)
	if err != nil {
		return manager.Feed{}, err
	}
	s.record(ctx, store.Action{Kind: store.ActionSetAutoProcess, FeedID: &feedID, Affected: 1, Detail: fmt.Sprintf("auto_process=%t", enabled)})
	return feed, nil
}

// IngestFeed triggers an on-demand read of the feed.
func (s *Service) IngestFeed(ctx context.Context, feedID int64) (manager.IngestResult, error) {
	if err := validateID("feed id", feedID); err != nil {
		return manager.IngestResult{}, err
	}
	res, err := s.manager.IngestFeed(ctx, feedID)
	if err != nil {
		return manager.IngestResult{}, err
	}
	ids := make([]int64, 0, len(res.Episodes))
	for _, ep := range res.Episodes {
		ids = append(ids, ep.ID)
	}
	s.record(ctx, store.Action{Kind: store.ActionIngestFeed, FeedID: &feedID, EpisodeIDs: ids, Affected: res.NewEpisodes, Detail: res.Message})
	return res, nil
}

// ListEpisodes validates pagination and fetches one page.
func (s *Service) ListEpisodes(ctx context.Context, params manager.ListEpisodesParams) (manager.EpisodePage, error) {
	if params.FeedID < 0 {
		return manager.EpisodePage{}, fmt.Errorf("%w: feed id must be positive", ErrInvalidInput)
	}
	if params.Status != "" && !params.Status.Valid() {
		return manager.EpisodePage{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, params.Status)
	}
	if params.Page < 0 || params.PageSize < 0 {
		return manager.EpisodePage{}, fmt.Errorf("%w: page and page size must be positive", ErrInvalidInput)
	}
	return s.manager.ListEpisodes(ctx, params)
}

// QueueEpisodes dispatches episodes to the worker.
func (s *Service) QueueEpisodes(ctx context.Context, ids []int64) (manager.QueueResult, error) {
	ids, err := NormalizeEpisodeIDs(ids)
	if err != nil {
		return manager.QueueResult{}, err
	}
	res, err := s.manager.QueueEpisodes(ctx, ids)
	if err != nil {
		return manager.QueueResult{}, err
	}
	s.record(ctx, store.Action{Kind: store.ActionQueueEpisodes, EpisodeIDs: ids, Affected: res.Queued, Detail: fmt.Sprintf("%d tasks dispatched", len(res.Tasks))})
	return res, nil
}

// IgnoreEpisodes hides episodes from the inbox.
func (s *Service) IgnoreEpisodes(ctx context.Context, ids []int64) (manager.IgnoreResult, error) {
	ids, err := NormalizeEpisodeIDs(ids)
	if err != nil {
		return manager.IgnoreResult{}, err
	}
	res, err := s.manager.IgnoreEpisodes(ctx, ids)
	if err != nil {
		return manager.IgnoreResult{}, err
	}
	s.record(ctx, store.Action{Kind: store.ActionIgnoreEpisodes, EpisodeIDs: ids, Affected: res.Ignored})
	return res, nil
}

// RestoreEpisodes brings ignored episodes back.
func (s *Service) RestoreEpisodes(ctx context.Context, ids []int64) (manager.RestoreResult, error) {
	ids, err := NormalizeEpisodeIDs(ids)
	if err != nil {
		return manager.RestoreResult{}, err
	}
	res, err := s.manager.RestoreEpisodes(ctx, ids)
	if err != nil {
		return manager.RestoreResult{}, err
	}
	s.record(ctx, store.Action{Kind: store.ActionRestoreEpisodes, EpisodeIDs: ids, Affected: res.Restored})
	return res, nil
}

// ReportProgress injects a progress event through the manager, which
// broadcasts it to every subscriber.
func (s *Service) ReportProgress(ctx context.Context, episodeID int64, percent int, stage string) error {
	if err := validateID("episode id", episodeID); err != nil {
		return err
	}
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: progress %d out of range [0, 100]", ErrInvalidInput, percent)
	}
	stage = strings.TrimSpace(stage)
	if stage == "" {
		return fmt.Errorf("%w: stage is required", ErrInvalidInput)
	}
	if err := s.manager.ReportProgress(ctx, episodeID, percent, stage); err != nil {
		return err
	}
	s.record(ctx, store.Action{Kind: store.ActionReportProgress, EpisodeIDs: []int64{episodeID}, Affected: 1, Detail: fmt.Sprintf("%s %d%%", stage, percent)})
	return nil
}

// Actions lists the audit log, newest first.
func (s *Service) Actions(ctx context.Context, limit, offset int) ([]store.Action, error) {
	if limit <= 0 || offset < 0 {
		return nil, fmt.Errorf("%w: limit must be positive and offset non-negative", ErrInvalidInput)
	}
	actions, err := s.actions.ListActions(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	return actions, nil
}

// record never fails the operation it audits.
func (s *Service) record(ctx context.Context, action store.Action) {
	id, err := s.ids.NewRawID()
	if err != nil {
		s.logger.Warn("audit id generation failed", zap.Error(err))
		return
	}
	action.ID = id
	action.At = s.clock.Now()
	if err := s.actions.RecordAction(ctx, action); err != nil {
		s.logger.Warn("audit record failed", zap.String("action", string(action.Kind)), zap.Error(err))
	}
}

// NormalizeEpisodeIDs rejects empty or non-positive sets and removes
// duplicates while keeping first-seen order.
func NormalizeEpisodeIDs(ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one episode id is required", ErrInvalidInput)
	}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return nil, fmt.Errorf("%w: episode id %d must be positive", ErrInvalidInput, id)
		}
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out, nil
}

// ValidateRSSURL trims raw and requires an absolute http(s) URL.
func ValidateRSSURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: rss url is required", ErrInvalidInput)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: rss url must be an absolute http(s) url", ErrInvalidInput)
	}
	return raw, nil
}

func validateID(name string, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidInput, name)
	}
	return nil
}
