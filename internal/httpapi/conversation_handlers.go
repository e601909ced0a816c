package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lanternrouter/lantern/internal/store"
)

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && err != io.EOF {
		return err
	}
	return nil
}

type createConversationRequest struct {
	Title   string  `json:"title"`
	TopicID *string `json:"topic_id,omitempty"`
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := store.ListFilters{}
	if topic := q.Get("topic_id"); topic != "" {
		filters.TopicID = &topic
	}
	if status := q.Get("status"); status != "" {
		st := store.Status(status)
		filters.Status = &st
	}

	limit, offset := pagination(q)
	convs, err := s.store.ListConversations(filters, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	title := req.Title
	if title == "" {
		title = "untitled conversation"
	}
	id, err := s.store.CreateConversation(title, req.TopicID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	conv, err := s.store.GetConversation(id)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	q := r.URL.Query()
	limit, offset := pagination(q)
	messages, err := s.store.GetMessages(id, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"conversation": conv, "messages": messages})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteConversation(id); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type appendMessageRequest struct {
	Role    store.Role `json:"role"`
	Content string     `json:"content"`
	Model   string     `json:"model,omitempty"`
}

func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req appendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Content == "" {
		respondError(w, http.StatusBadRequest, "content is required")
		return
	}
	if req.Role == "" {
		req.Role = store.RoleUser
	}

	var modelRef *string
	if req.Model != "" {
		modelRef = &req.Model
	}

	msgID, err := s.store.AppendMessage(id, req.Role, req.Content, modelRef)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": msgID})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		respondError(w, http.StatusBadRequest, "q is required")
		return
	}

	filters := store.SearchFilters{}
	if topic := q.Get("topic_id"); topic != "" {
		filters.TopicID = &topic
	}

	limit, _ := pagination(q)
	if limit == 0 {
		limit = 20
	}

	hits, err := s.store.SearchConversations(query, filters, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"results": hits})
}

type exportRequest struct {
	ConversationIDs []string `json:"conversation_ids,omitempty"`
	TopicID         *string  `json:"topic_id,omitempty"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	doc, err := s.store.ExportToJSON(req.ConversationIDs, req.TopicID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var doc store.ExportDocument
	if err := decodeJSON(r, &doc); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	ids, err := s.store.ImportFromJSON(doc)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"conversation_ids": ids})
}

func pagination(q map[string][]string) (limit, offset int) {
	if v := first(q, "limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := first(q, "offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			offset = n
		}
	}
	return limit, offset
}

func first(q map[string][]string, key string) string {
	vals, ok := q[key]
	if !ok || len(vals) == 0 {
		return ""
	}
	return vals[0]
}
