package server

import (
	"net/http"
	"strconv"

	"echoself/pkg/domain"
)

// maxUploadBytes caps multipart document and image uploads.
const maxUploadBytes = 32 << 20

func (s *Server) handleKnowledge(w http.ResponseWriter, r *http.Request, _ string, user domain.User) {
	switch r.Method {
	case http.MethodPost:
		s.handleKnowledgeUpload(w, r, user)
	case http.MethodGet:
		if query := r.URL.Query().Get("q"); query != "" {
			topK, _ := strconv.Atoi(r.URL.Query().Get("topK"))
			hits, err := s.app.SearchKnowledge(r.Context(), user.ID, query, topK)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "search failed")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"results": hits})
			return
		}
		docs, err := s.app.ListKnowledge(user.ID, 0)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleKnowledgeUpload(w http.ResponseWriter, r *http.Request, user domain.User) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	count, err := s.app.UploadKnowledge(r.Context(), user.ID, header.Filename, file)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"filename": header.Filename, "chunks": count})
}

func (s *Server) handleKnowledgeByID(w http.ResponseWriter, r *http.Request, _ string, user domain.User) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	docID := pathSuffix(r, "/knowledge/")
	if docID == "" {
		writeError(w, http.StatusBadRequest, "document id required")
		return
	}
	if err := s.app.DeleteKnowledge(user.ID, docID); err != nil {
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
