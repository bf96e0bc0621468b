package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/purifier-console/internal/store"
)

const (
	defaultActionLimit = 50
	maxActionLimit     = 500
)

// listActions handles GET /v1/actions?limit=&offset=, newest first.
func (s *Server) listActions(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultActionLimit, maxActionLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	actions, err := s.console.Actions(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list actions failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list actions")
		return
	}
	if actions == nil {
		actions = []store.Action{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}
