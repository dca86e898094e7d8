package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"echoself/internal/app"
	"echoself/internal/util"
	"echoself/pkg/domain"
)

type createConversationRequest struct {
	Title string `json:"title"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request, _ string, user domain.User) {
	switch r.Method {
	case http.MethodPost:
		var req createConversationRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		conversation, err := s.app.CreateConversation(user.ID, req.Title)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "create failed")
			return
		}
		writeJSON(w, http.StatusCreated, conversation)
	case http.MethodGet:
		items, err := s.app.ListConversations(user.ID, 0)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"conversations": items})
	default:
		methodNotAllowed(w)
	}
}

// handleConversationByID serves /conversations/{id} and
// /conversations/{id}/messages.
func (s *Server) handleConversationByID(w http.ResponseWriter, r *http.Request, _ string, user domain.User) {
	rest := pathSuffix(r, "/conversations/")
	if rest == "" {
		writeError(w, http.StatusNotFound, "conversation id required")
		return
	}
	id, sub, _ := strings.Cut(rest, "/")

	if sub == "messages" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.handleSendMessage(w, r, user, id)
		return
	}
	if sub != "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		conversation, messages, err := s.app.GetConversation(user.ID, id, 0)
		if err != nil {
			writeConversationError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"conversation": conversation, "messages": messages})
	case http.MethodDelete:
		if err := s.app.DeleteConversation(user.ID, id); err != nil {
			writeConversationError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, user domain.User, conversationID string) {
	if s.chatLimiter != nil && !s.chatLimiter.Allow(user.ID) {
		writeError(w, http.StatusTooManyRequests, "too many messages, slow down")
		return
	}
	var req sendMessageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	res, err := s.app.SendMessage(r.Context(), user.ID, conversationID, req.Content)
	if err != nil {
		if errors.Is(err, app.ErrConversationNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if errors.Is(err, app.ErrGeneration) {
			util.LoggerFromContext(r.Context()).Error("generation failed", "conversation_id", conversationID, "error", err)
			writeError(w, http.StatusBadGateway, "response generation failed")
			return
		}
		writeError(w, http.StatusInternalServerError, "send failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeConversationError(w http.ResponseWriter, err error) {
	if errors.Is(err, app.ErrConversationNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "conversation operation failed")
}
