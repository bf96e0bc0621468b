package api

import (
	"net/http"

	"go.uber.org/zap"
)

type createFeedRequest struct {
	RSSURL string `json:"rss_url"`
}

type autoProcessRequest struct {
	AutoProcess *bool `json:"auto_process"`
}

func (s *Server) listFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.console.ListFeeds(r.Context())
	if err != nil {
		s.writeUpstreamError(w, r, "list feeds", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feeds": feeds})
}

func (s *Server) createFeed(w http.ResponseWriter, r *http.Request) {
	var req createFeedRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	feed, err := s.console.CreateFeed(r.Context(), req.RSSURL)
	if err != nil {
		s.writeUpstreamError(w, r, "create feed", err)
		return
	}
	s.logger.Info("feed subscribed", zap.Int64("feed_id", feed.ID), zap.String("rss_url", feed.RSSURL))
	writeJSON(w, http.StatusCreated, feed)
}

func (s *Server) deleteFeed(w http.ResponseWriter, r *http.Request) {
	feedID, err := pathID(r, "feed_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.console.DeleteFeed(r.Context(), feedID)
	if err != nil {
		s.writeUpstreamError(w, r, "delete feed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) setAutoProcess(w http.ResponseWriter, r *http.Request) {
	feedID, err := pathID(r, "feed_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req autoProcessRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.AutoProcess == nil {
		writeError(w, http.StatusBadRequest, "auto_process is required")
		return
	}
	feed, err := s.console.SetAutoProcess(r.Context(), feedID, *req.AutoProcess)
	if err != nil {
		s.writeUpstreamError(w, r, "set auto-process", err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

func (s *Server) ingestFeed(w http.ResponseWriter, r *http.Request) {
	feedID, err := pathID(r, "feed_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.console.IngestFeed(r.Context(), feedID)
	if err != nil {
		s.writeUpstreamError(w, r, "ingest feed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
