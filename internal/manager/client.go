// Package manager is a typed client for the podcast-purifier manager API.
package manager

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/purifier-console/internal/metrics"
	"github.com/JakeFAU/purifier-console/internal/progress"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 8 << 20
)

// Client calls the manager's REST endpoints. It never retries; failures are
// returned to the caller.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *zap.Logger
}

// Options tweak a Client. The zero value is usable.
type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *zap.Logger
}

// New builds a client for the manager at baseURL (for example
// "http://localhost:8000").
func New(baseURL string, opts Options) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("manager base url is required")
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse manager base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("manager base url must be http or https, got %q", base.Scheme)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("manager base url %q has no host", baseURL)
	}
	base.Path = strings.TrimRight(base.Path, "/")
	base.RawQuery = ""
	base.Fragment = ""

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{base: base, http: httpClient, logger: logger}, nil
}

// BaseURL returns the normalized manager base URL.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// ProgressURL returns the websocket endpoint that pushes progress events.
func (c *Client) ProgressURL() (string, error) {
	return progress.EndpointURL(c.base.String())
}

// PurifiedFeedURL returns the public RSS URL the manager serves for a feed.
func (c *Client) PurifiedFeedURL(feedID int64) string {
	return c.resolve("/feed/"+strconv.FormatInt(feedID, 10), nil)
}

// Health checks the manager's liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, "health", http.MethodGet, "/health", nil, nil, &out); err != nil {
		return err
	}
	if out.Status != "healthy" {
		return fmt.Errorf("manager reports status %q", out.Status)
	}
	return nil
}

// ListFeeds returns every subscribed feed.
func (c *Client) ListFeeds(ctx context.Context) ([]Feed, error) {
	var feeds []Feed
	if err := c.do(ctx, "list_feeds", http.MethodGet, "/api/feeds", nil, nil, &feeds); err != nil {
		return nil, err
	}
	return feeds, nil
}

// CreateFeed subscribes to rssURL. The manager fetches the feed metadata and
// ingests its episodes before answering.
func (c *Client) CreateFeed(ctx context.Context, rssURL string) (Feed, error) {
	var feed Feed
	q := url.Values{"rss_url": {rssURL}}
	if err := c.do(ctx, "create_feed", http.MethodPost, "/api/feeds", q, nil, &feed); err != nil {
		return Feed{}, err
	}
	return feed, nil
}

// SetAutoProcess toggles whether new episodes of the feed are queued
// automatically.
func (c *Client) SetAutoProcess(ctx context.Context, feedID int64, enabled bool) (Feed, error) {
	var feed Feed
	q := url.Values{"auto_process": {strconv.FormatBool(enabled)}}
	path := feedPath(feedID) + "/auto-process"
	if err := c.do(ctx, "set_auto_process", http.MethodPatch, path, q, nil, &feed); err != nil {
		return Feed{}, err
	}
	return feed, nil
}

// DeleteFeed removes a feed and all its episodes.
func (c *Client) DeleteFeed(ctx context.Context, feedID int64) (DeleteFeedResult, error) {
	var out DeleteFeedResult
	if err := c.do(ctx, "delete_feed", http.MethodDelete, feedPath(feedID), nil, nil, &out); err != nil {
		return DeleteFeedResult{}, err
	}
	return out, nil
}

// IngestFeed asks the manager to re-read the feed now.
func (c *Client) IngestFeed(ctx context.Context, feedID int64) (IngestResult, error) {
	var out IngestResult
	if err := c.do(ctx, "ingest_feed", http.MethodPost, feedPath(feedID)+"/ingest", nil, nil, &out); err != nil {
		return IngestResult{}, err
	}
	return out, nil
}

// ListEpisodes fetches one page of the episode inbox.
func (c *Client) ListEpisodes(ctx context.Context, params ListEpisodesParams) (EpisodePage, error) {
	var page EpisodePage
	if err := c.do(ctx, "list_episodes", http.MethodGet, "/api/episodes", params.query(), nil, &page); err != nil {
		return EpisodePage{}, err
	}
	return page, nil
}

// QueueEpisodes dispatches discovered or failed episodes to the worker.
func (c *Client) QueueEpisodes(ctx context.Context, ids []int64) (QueueResult, error) {
	var out QueueResult
	if err := c.do(ctx, "queue_episodes", http.MethodPost, "/api/episodes/queue", nil, bulkRequest{EpisodeIDs: ids}, &out); err != nil {
		return QueueResult{}, err
	}
	return out, nil
}

// IgnoreEpisodes hides discovered or failed episodes from the inbox.
func (c *Client) IgnoreEpisodes(ctx context.Context, ids []int64) (IgnoreResult, error) {
	var out IgnoreResult
	if err := c.do(ctx, "ignore_episodes", http.MethodPost, "/api/episodes/ignore", nil, bulkRequest{EpisodeIDs: ids}, &out); err != nil {
		return IgnoreResult{}, err
	}
	return out, nil
}

// RestoreEpisodes moves ignored episodes back to discovered.
func (c *Client) RestoreEpisodes(ctx context.Context, ids []int64) (RestoreResult, error) {
	var out RestoreResult
	if err := c.do(ctx, "restore_episodes", http.MethodPost, "/api/episodes/unignore", nil, bulkRequest{EpisodeIDs: ids}, &out); err != nil {
		return RestoreResult{}, err
	}
	return out, nil
}

// ReportProgress posts a progress event the way a worker does; the manager
// broadcasts it to every progress subscriber.
func (c *Client) ReportProgress(ctx context.Context, episodeID int64, percent int, stage string) error {
	q := url.Values{
		"progress": {strconv.Itoa(percent)},
		"stage":    {stage},
	}
	path := "/api/progress/" + strconv.FormatInt(episodeID, 10)
	return c.do(ctx, "report_progress", http.MethodPost, path, q, nil, nil)
}

func feedPath(feedID int64) string {
	return "/api/feeds/" + strconv.FormatInt(feedID, 10)
}

func (p ListEpisodesParams) query() url.Values {
	q := url.Values{}
	if p.FeedID > 0 {
		q.Set("feed_id", strconv.FormatInt(p.FeedID, 10))
	}
	if p.Status != "" {
		q.Set("status", string(p.Status))
	}
	if p.ShowIgnored {
		q.Set("show_ignored", "true")
	}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(p.PageSize))
	}
	return q
}

func (c *Client) resolve(path string, q url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, op, method, path string, q url.Values, body, out any) (err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveManagerRequest(op, err, time.Since(start))
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path, q), reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}
	c.logger.Debug("manager request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: %w", op, parseAPIError(resp.StatusCode, data))
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
