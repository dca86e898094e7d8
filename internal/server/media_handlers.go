package server

import (
	"errors"
	"net/http"

	"echoself/internal/app"
	"echoself/pkg/domain"
)

func (s *Server) handleMediaStatus(w http.ResponseWriter, r *http.Request, _ string, _ domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	taskID := pathSuffix(r, "/media/status/")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "task id required")
		return
	}
	status, err := s.app.MediaTaskStatus(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, app.ErrMediaDisabled) {
			writeError(w, http.StatusNotImplemented, "media generation is not configured")
			return
		}
		writeError(w, http.StatusBadGateway, "task status check failed")
		return
	}
	writeJSON(w, http.StatusOK, status)
}
