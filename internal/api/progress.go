package api

import (
	"net/http"
	"slices"

	"github.com/JakeFAU/purifier-console/internal/progress"
)

type progressSnapshotResponse struct {
	State  string           `json:"state"`
	Events []progress.Event `json:"events"`
}

// progressSnapshot returns the latest event per episode ordered by episode id.
func (s *Server) progressSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap := s.progress.Snapshot()
	events := make([]progress.Event, 0, len(snap))
	for _, evt := range snap {
		events = append(events, evt)
	}
	slices.SortFunc(events, func(a, b progress.Event) int {
		switch {
		case a.EpisodeID < b.EpisodeID:
			return -1
		case a.EpisodeID > b.EpisodeID:
			return 1
		}
		return 0
	})
	writeJSON(w, http.StatusOK, progressSnapshotResponse{
		State:  s.progress.State().String(),
		Events: events,
	})
}

func (s *Server) episodeProgress(w http.ResponseWriter, r *http.Request) {
	episodeID, err := pathID(r, "episode_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	evt, ok := s.progress.Progress(episodeID)
	if !ok {
		writeError(w, http.StatusNotFound, "no progress for episode")
		return
	}
	writeJSON(w, http.StatusOK, evt)
}
