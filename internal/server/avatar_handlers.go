package server

import (
	"errors"
	"net/http"
	"strings"

	"echoself/internal/app"
	"echoself/pkg/domain"
)

func (s *Server) handleAvatars(w http.ResponseWriter, r *http.Request, _ string, user domain.User) {
	switch r.Method {
	case http.MethodPost:
		s.handleAvatarCreate(w, r, user)
	case http.MethodGet:
		avatars, err := s.app.ListAvatars(user.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"avatars": avatars})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAvatarCreate(w http.ResponseWriter, r *http.Request, user domain.User) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'image' is required")
		return
	}
	defer file.Close()

	avatar, err := s.app.CreateAvatar(r.Context(), user.ID, r.FormValue("name"), header.Filename,
		file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, avatar)
}

// handleAvatarByID serves /avatars/{id}, /avatars/{id}/select and
// /avatars/{id}/voice.
func (s *Server) handleAvatarByID(w http.ResponseWriter, r *http.Request, _ string, user domain.User) {
	rest := pathSuffix(r, "/avatars/")
	if rest == "" {
		writeError(w, http.StatusBadRequest, "avatar id required")
		return
	}
	id, sub, _ := strings.Cut(rest, "/")

	switch sub {
	case "":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w)
			return
		}
		if err := s.app.DeleteAvatar(r.Context(), user.ID, id); err != nil {
			writeAvatarError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	case "select":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if err := s.app.SelectAvatar(user.ID, id); err != nil {
			writeAvatarError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "selected"})
	case "voice":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.handleVoiceTraining(w, r, user, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleVoiceTraining(w http.ResponseWriter, r *http.Request, user domain.User, avatarID string) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("sample")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'sample' is required")
		return
	}
	defer file.Close()

	taskID, err := s.app.TrainVoice(r.Context(), user.ID, avatarID, header.Filename,
		file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		if errors.Is(err, app.ErrMediaDisabled) {
			writeError(w, http.StatusNotImplemented, "voice cloning is not configured")
			return
		}
		writeAvatarError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"taskId": taskID})
}

// handleVoiceCloneStatus serves GET /voice/clone-status/{taskId}. The
// check that first sees completion attaches the clone id to the user.
func (s *Server) handleVoiceCloneStatus(w http.ResponseWriter, r *http.Request, _ string, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	taskID := pathSuffix(r, "/voice/clone-status/")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "task id required")
		return
	}
	status, err := s.app.VoiceCloneStatus(r.Context(), user.ID, taskID)
	if err != nil {
		if errors.Is(err, app.ErrMediaDisabled) {
			writeError(w, http.StatusNotImplemented, "voice cloning is not configured")
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func writeAvatarError(w http.ResponseWriter, err error) {
	if errors.Is(err, app.ErrAvatarNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}
