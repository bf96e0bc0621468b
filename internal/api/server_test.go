package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/purifier-console/internal/config"
	"github.com/JakeFAU/purifier-console/internal/console"
	"github.com/JakeFAU/purifier-console/internal/manager"
	"github.com/JakeFAU/purifier-console/internal/progress"
	"github.com/JakeFAU/purifier-console/internal/store"
)

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(newFakeConsole(), newFakeProgress()), http.MethodGet, "/healthz", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		healthErr error
		state     progress.State
		pingErr   error
		want      int
	}{
		{name: "ready", state: progress.StateConnected, want: http.StatusOK},
		{name: "channel down", state: progress.StateConnecting, want: http.StatusServiceUnavailable},
		{name: "manager down", healthErr: errors.New("refused"), state: progress.StateConnected, want: http.StatusServiceUnavailable},
		{name: "audit down", state: progress.StateConnected, pingErr: errors.New("no db"), want: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newFakeConsole()
			c.healthErr = tt.healthErr
			p := newFakeProgress()
			p.state = tt.state
			srv := NewServer(Deps{
				Console:  c,
				Progress: p,
				Pingers:  []Pinger{pingFunc(func(context.Context) error { return tt.pingErr })},
				Logger:   zap.NewNop(),
			}, config.Config{})

			rec := serve(t, srv, http.MethodGet, "/readyz", "")

			require.Equal(t, tt.want, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.Equal(t, tt.state.String(), body["progress"])
		})
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(newFakeConsole(), newFakeProgress()), http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "purifier_progress_connected")
}

func TestServer_ListFeeds(t *testing.T) {
	t.Parallel()

	c := newFakeConsole()
	c.feeds = []manager.Feed{{ID: 1, Title: "Daily", RSSURL: "https://example.com/rss"}}

	rec := serve(t, newTestServer(c, newFakeProgress()), http.MethodGet, "/v1/feeds", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"title":"Daily"`)
}

func TestServer_CreateFeed(t *testing.T) {
	t.Parallel()

	c := newFakeConsole()
	rec := serve(t, newTestServer(c, newFakeProgress()), http.MethodPost, "/v1/feeds", `{"rss_url":"https://example.com/rss"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, []string{"create https://example.com/rss"}, c.calls())
}

func TestServer_CreateFeed_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantBody string
	}{
		{name: "invalid json", body: "{invalid", wantCode: http.StatusBadRequest, wantBody: "invalid JSON"},
		{name: "unknown field", body: `{"url":"x"}`, wantCode: http.StatusBadRequest, wantBody: "invalid JSON"},
		{
			name:     "rejected input",
			body:     `{"rss_url":""}`,
			err:      fmt.Errorf("%w: rss url is required", console.ErrInvalidInput),
			wantCode: http.StatusBadRequest,
			wantBody: "rss url is required",
		},
		{
			name:     "manager conflict",
			body:     `{"rss_url":"https://example.com/rss"}`,
			err:      &manager.APIError{StatusCode: http.StatusBadRequest, Detail: "Feed already exists"},
			wantCode: http.StatusBadRequest,
			wantBody: "Feed already exists",
		},
		{
			name:     "manager unreachable",
			body:     `{"rss_url":"https://example.com/rss"}`,
			err:      errors.New("dial tcp: connection refused"),
			wantCode: http.StatusBadGateway,
			wantBody: "manager unavailable",
		},
		{
			name:     "manager timeout",
			body:     `{"rss_url":"https://example.com/rss"}`,
			err:      fmt.Errorf("create feed: %w", context.DeadlineExceeded),
			wantCode: http.StatusGatewayTimeout,
			wantBody: "manager timed out",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newFakeConsole()
			c.err = tt.err

			rec := serve(t, newTestServer(c, newFakeProgress()), http.MethodPost, "/v1/feeds", tt.body)

			require.Equal(t, tt.wantCode, rec.Code)
			require.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestServer_FeedRoutes(t *testing.T) {
	t.Parallel()

	c := newFakeConsole()
	srv := newTestServer(c, newFakeProgress())

	require.Equal(t, http.StatusOK, serve(t, srv, http.MethodDelete, "/v1/feeds/3", "").Code)
	require.Equal(t, http.StatusOK, serve(t, srv, http.MethodPatch, "/v1/feeds/3/auto-process", `{"auto_process":true}`).Code)
	require.Equal(t, http.StatusOK, serve(t, srv, http.MethodPost, "/v1/feeds/3/ingest", "").Code)

	require.Equal(t, []string{"delete 3", "auto-process 3 true", "ingest 3"}, c.calls())
}

func TestServer_FeedRoutes_Validation(t *testing.T) {
	t.Parallel()

	c := newFakeConsole()
	srv := newTestServer(c, newFakeProgress())

	rec := serve(t, srv, http.MethodDelete, "/v1/feeds/abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, srv, http.MethodPatch, "/v1/feeds/3/auto-process", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "auto_process is required")

	require.Empty(t, c.calls())
}

func TestServer_DeleteFeed_NotFound(t *testing.T) {
	t.Parallel()

	c := newFakeConsole()
	c.err = &manager.APIError{StatusCode: http.StatusNotFound, Detail: "Feed not found"}

	rec := serve(t, newTestServer(c, newFakeProgress()), http.MethodDelete, "/v1/feeds/9", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.JSONEq(t, `{"error":"Feed not found"}`, rec.Body.String())
}

func TestServer_ListEpisodes_OverlaysActiveRows(t *testing.T) {
	t.Parallel()

	c := newFakeConsole()
	c.page = manager.EpisodePage{
		Items: []manager.Episode{
			{ID: 1, Status: manager.StatusQueued, Title: "running"},
			{ID: 2, Status: manager.StatusCleaned, Title: "done"},
		},
		Total: 2, Page: 1, PageSize: 25, TotalPages: 1,
	}
	p := newFakeProgress()
	p.state = progress.StateConnected
	p.events[1] = progress.Event{EpisodeID: 1, Progress: 55, Stage: "clean"}
	p.events[2] = progress.Event{EpisodeID: 2, Progress: 100, Stage: "complete"}

	rec := serve(t, newTestServer(c, p), http.MethodGet,
		"/v1/episodes?feed_id=4&status=QUEUED&show_ignored=true&page=2&page_size=10", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, manager.ListEpisodesParams{
		FeedID: 4, Status: manager.StatusQueued, ShowIgnored: true, Page: 2, PageSize: 10,
	}, c.lastParams)

	var body struct {
		Items []struct {
			ID       int64           `json:"id"`
			Progress *progress.Event `json:"progress"`
		} `json:"items"`
		Total     int  `json:"total"`
		Connected bool `json:"progress_connected"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 2)
	require.NotNil(t, body.Items[0].Progress)
	require.Equal(t, "clean", body.Items[0].Progress.Stage)
	require.Nil(t, body.Items[1].Progress)
	require.Equal(t, 2, body.Total)
	require.True(t, body.Connected)
}

func TestServer_ListEpisodes_InvalidQuery(t *testing.T) {
	t.Parallel()

	srv := newTestServer(newFakeConsole(), newFakeProgress())
	for _, query := range []string{"status=bogus", "feed_id=x", "page=0", "page_size=-1", "show_ignored=maybe"} {
		rec := serve(t, srv, http.MethodGet, "/v1/episodes?"+query, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestServer_BulkEpisodeActions(t *testing.T) {
	t.Parallel()

	c := newFakeConsole()
	srv := newTestServer(c, newFakeProgress())

	rec := serve(t, srv, http.MethodPost, "/v1/episodes/queue", `{"episode_ids":[1,2]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queued":2,"tasks":[]}`, rec.Body.String())

	require.Equal(t, http.StatusOK, serve(t, srv, http.MethodPost, "/v1/episodes/ignore", `{"episode_ids":[3]}`).Code)
	require.Equal(t, http.StatusOK, serve(t, srv, http.MethodPost, "/v1/episodes/restore", `{"episode_ids":[3]}`).Code)

	require.Equal(t, []string{"queue [1 2]", "ignore [3]", "restore [3]"}, c.calls())
}

func TestServer_ProgressSnapshot(t *testing.T) {
	t.Parallel()

	p := newFakeProgress()
	p.state = progress.StateConnected
	p.events[9] = progress.Event{EpisodeID: 9, Progress: 10, Stage: "download"}
	p.events[3] = progress.Event{EpisodeID: 3, Progress: 80, Stage: "transcribe"}

	rec := serve(t, newTestServer(newFakeConsole(), p), http.MethodGet, "/v1/progress", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"state":"connected","events":[`+
		`{"episode_id":3,"progress":80,"stage":"transcribe"},`+
		`{"episode_id":9,"progress":10,"stage":"download"}]}`, rec.Body.String())
}

func TestServer_EpisodeProgress(t *testing.T) {
	t.Parallel()

	p := newFakeProgress()
	p.events[3] = progress.Event{EpisodeID: 3, Progress: 80, Stage: "transcribe"}
	srv := newTestServer(newFakeConsole(), p)

	rec := serve(t, srv, http.MethodGet, "/v1/progress/3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"episode_id":3,"progress":80,"stage":"transcribe"}`, rec.Body.String())

	require.Equal(t, http.StatusNotFound, serve(t, srv, http.MethodGet, "/v1/progress/4", "").Code)
	require.Equal(t, http.StatusBadRequest, serve(t, srv, http.MethodGet, "/v1/progress/zero", "").Code)
}

func TestServer_ListActions(t *testing.T) {
	t.Parallel()

	c := newFakeConsole()
	srv := newTestServer(c, newFakeProgress())

	rec := serve(t, srv, http.MethodGet, "/v1/actions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"actions":[]}`, rec.Body.String())
	require.Equal(t, []string{"actions 50 0"}, c.calls())

	rec = serve(t, srv, http.MethodGet, "/v1/actions?limit=5000&offset=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "actions 500 10", c.calls()[1])

	require.Equal(t, http.StatusBadRequest, serve(t, srv, http.MethodGet, "/v1/actions?limit=-1", "").Code)
	require.Equal(t, http.StatusBadRequest, serve(t, srv, http.MethodGet, "/v1/actions?offset=x", "").Code)

	c.err = errors.New("db gone")
	require.Equal(t, http.StatusInternalServerError, serve(t, srv, http.MethodGet, "/v1/actions", "").Code)
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Auth: config.AuthConfig{Enabled: true, APIKey: "secret"}}
	srv := NewServer(Deps{Console: newFakeConsole(), Progress: newFakeProgress()}, cfg)

	rec := serve(t, srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, srv, http.MethodGet, "/healthz?api_key=secret", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	t.Parallel()

	srv := newTestServer(newFakeConsole(), newFakeProgress())

	rec := serve(t, srv, http.MethodGet, "/healthz", "")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	h := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	require.EqualError(t, err, "hijacker not supported")

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	require.NoError(t, err)
	require.NotNil(t, buf)
	require.NoError(t, conn.Close())
	require.NoError(t, h.CloseClient())
}

// --- helpers/fakes ---

func serve(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func newTestServer(c Console, p ProgressSource) *Server {
	return NewServer(Deps{Console: c, Progress: p, Logger: zap.NewNop()}, config.Config{})
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type fakeConsole struct {
	mu         sync.Mutex
	log        []string
	feeds      []manager.Feed
	page       manager.EpisodePage
	lastParams manager.ListEpisodesParams
	healthErr  error
	err        error
}

func newFakeConsole() *fakeConsole {
	return &fakeConsole{}
}

func (c *fakeConsole) record(format string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = append(c.log, fmt.Sprintf(format, args...))
	return c.err
}

func (c *fakeConsole) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

func (c *fakeConsole) Health(context.Context) error {
	return c.healthErr
}

func (c *fakeConsole) ListFeeds(context.Context) ([]manager.Feed, error) {
	if err := c.record("list feeds"); err != nil {
		return nil, err
	}
	return c.feeds, nil
}

func (c *fakeConsole) CreateFeed(_ context.Context, rssURL string) (manager.Feed, error) {
	if err := c.record("create %s", rssURL); err != nil {
		return manager.Feed{}, err
	}
	return manager.Feed{ID: 1, RSSURL: rssURL}, nil
}

func (c *fakeConsole) DeleteFeed(_ context.Context, feedID int64) (manager.DeleteFeedResult, error) {
	if err := c.record("delete %d", feedID); err != nil {
		return manager.DeleteFeedResult{}, err
	}
	return manager.DeleteFeedResult{Message: "Feed deleted"}, nil
}

func (c *fakeConsole) SetAutoProcess(_ context.Context, feedID int64, enabled bool) (manager.Feed, error) {
	if err := c.record("auto-process %d %t", feedID, enabled); err != nil {
		return manager.Feed{}, err
	}
	return manager.Feed{ID: feedID, AutoProcess: enabled}, nil
}

func (c *fakeConsole) IngestFeed(_ context.Context, feedID int64) (manager.IngestResult, error) {
	if err := c.record("ingest %d", feedID); err != nil {
		return manager.IngestResult{}, err
	}
	return manager.IngestResult{Message: "ok"}, nil
}

func (c *fakeConsole) ListEpisodes(_ context.Context, params manager.ListEpisodesParams) (manager.EpisodePage, error) {
	c.mu.Lock()
	c.lastParams = params
	c.mu.Unlock()
	if err := c.record("list episodes"); err != nil {
		return manager.EpisodePage{}, err
	}
	return c.page, nil
}

func (c *fakeConsole) QueueEpisodes(_ context.Context, ids []int64) (manager.QueueResult, error) {
	if err := c.record("queue %v", ids); err != nil {
		return manager.QueueResult{}, err
	}
	return manager.QueueResult{Queued: len(ids), Tasks: []manager.TaskRef{}}, nil
}

func (c *fakeConsole) IgnoreEpisodes(_ context.Context, ids []int64) (manager.IgnoreResult, error) {
	if err := c.record("ignore %v", ids); err != nil {
		return manager.IgnoreResult{}, err
	}
	return manager.IgnoreResult{Ignored: len(ids)}, nil
}

func (c *fakeConsole) RestoreEpisodes(_ context.Context, ids []int64) (manager.RestoreResult, error) {
	if err := c.record("restore %v", ids); err != nil {
		return manager.RestoreResult{}, err
	}
	return manager.RestoreResult{Restored: len(ids)}, nil
}

func (c *fakeConsole) Actions(_ context.Context, limit, offset int) ([]store.Action, error) {
	if err := c.record("actions %d %d", limit, offset); err != nil {
		return nil, err
	}
	return nil, nil
}

type fakeProgress struct {
	state  progress.State
	events map[int64]progress.Event
}

func newFakeProgress() *fakeProgress {
	return &fakeProgress{events: make(map[int64]progress.Event)}
}

func (p *fakeProgress) Progress(episodeID int64) (progress.Event, bool) {
	evt, ok := p.events[episodeID]
	return evt, ok
}

func (p *fakeProgress) Snapshot() map[int64]progress.Event {
	out := make(map[int64]progress.Event, len(p.events))
	for k, v := range p.events {
		out[k] = v
	}
	return out
}

func (p *fakeProgress) State() progress.State {
	return p.state
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
