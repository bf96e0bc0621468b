package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/JakeFAU/purifier-console/internal/episodes"
	"github.com/JakeFAU/purifier-console/internal/manager"
	"github.com/JakeFAU/purifier-console/internal/progress"
)

type episodePageResponse struct {
	Items      []episodes.Row `json:"items"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"page_size"`
	TotalPages int            `json:"total_pages"`
	// Connected tells clients whether the overlay is live or possibly stale.
	Connected bool `json:"progress_connected"`
}

type bulkRequest struct {
	EpisodeIDs []int64 `json:"episode_ids"`
}

// listEpisodes proxies the listing and attaches the latest progress event to
// rows the manager reports as active.
func (s *Server) listEpisodes(w http.ResponseWriter, r *http.Request) {
	params, err := parseEpisodeParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := s.console.ListEpisodes(r.Context(), params)
	if err != nil {
		s.writeUpstreamError(w, r, "list episodes", err)
		return
	}
	writeJSON(w, http.StatusOK, episodePageResponse{
		Items:      episodes.Overlay(page.Items, s.progress),
		Total:      page.Total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: page.TotalPages,
		Connected:  s.progress.State() == progress.StateConnected,
	})
}

func parseEpisodeParams(r *http.Request) (manager.ListEpisodesParams, error) {
	q := r.URL.Query()
	var params manager.ListEpisodesParams
	if raw := q.Get("feed_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return params, fmt.Errorf("invalid feed_id %q", raw)
		}
		params.FeedID = id
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status := manager.Status(strings.ToLower(raw))
		if !status.Valid() {
			return params, fmt.Errorf("invalid status %q", raw)
		}
		params.Status = status
	}
	if raw := q.Get("show_ignored"); raw != "" {
		show, err := strconv.ParseBool(raw)
		if err != nil {
			return params, fmt.Errorf("invalid show_ignored %q", raw)
		}
		params.ShowIgnored = show
	}
	var err error
	if params.Page, err = positiveInt(q.Get("page"), "page"); err != nil {
		return params, err
	}
	if params.PageSize, err = positiveInt(q.Get("page_size"), "page_size"); err != nil {
		return params, err
	}
	return params, nil
}

func positiveInt(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return val, nil
}

func (s *Server) queueEpisodes(w http.ResponseWriter, r *http.Request) {
	s.bulk(w, r, "queue episodes", func(ctx context.Context, ids []int64) (any, error) {
		return s.console.QueueEpisodes(ctx, ids)
	})
}

func (s *Server) ignoreEpisodes(w http.ResponseWriter, r *http.Request) {
	s.bulk(w, r, "ignore episodes", func(ctx context.Context, ids []int64) (any, error) {
		return s.console.IgnoreEpisodes(ctx, ids)
	})
}

func (s *Server) restoreEpisodes(w http.ResponseWriter, r *http.Request) {
	s.bulk(w, r, "restore episodes", func(ctx context.Context, ids []int64) (any, error) {
		return s.console.RestoreEpisodes(ctx, ids)
	})
}

func (s *Server) bulk(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	call func(ctx context.Context, ids []int64) (any, error),
) {
	var req bulkRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := call(r.Context(), req.EpisodeIDs)
	if err != nil {
		s.writeUpstreamError(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
