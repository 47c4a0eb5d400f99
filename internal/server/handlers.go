package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/toolkeeper/internal/ai"
	"github.com/hyperjump/toolkeeper/internal/auth"
	"github.com/hyperjump/toolkeeper/internal/config"
	"github.com/hyperjump/toolkeeper/internal/inventory"
	"github.com/hyperjump/toolkeeper/internal/models"
	"github.com/hyperjump/toolkeeper/internal/normalize"
	"github.com/hyperjump/toolkeeper/internal/search"
	"github.com/hyperjump/toolkeeper/internal/storage"
)

const maxBodyBytes = 1 << 20

// errorResponse is the body of every failed request. Kind and Fields are set for
// validation failures.
type errorResponse struct {
	Error  string   `json:"error"`
	Kind   string   `json:"kind,omitempty"`
	Fields []string `json:"fields,omitempty"`
}

type textRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var creds auth.Credentials
	if err := decodeBody(r, &creds); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.auth.Register(r.Context(), creds); err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"status": "registered"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds auth.Credentials
	if err := decodeBody(r, &creds); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, err := s.auth.Login(r.Context(), creds)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, token)
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := models.ListParams{
		Name:     q.Get("name"),
		Category: q.Get("category"),
		Location: q.Get("location"),
		Status:   q.Get("status"),
		Tags:     q.Get("tags"),
	}
	var err error
	if params.Limit, err = intParam(q.Get("limit")); err != nil {
		s.respondError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	if params.Offset, err = intParam(q.Get("offset")); err != nil {
		s.respondError(w, http.StatusBadRequest, "offset must be an integer")
		return
	}
	s.logger.Debug("list tools request", zap.Any("params", params))
	page, err := s.inventory.List(r.Context(), params)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetTool(w http.ResponseWriter, r *http.Request) {
	tool, err := s.inventory.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, tool)
}

func (s *Server) handleCreateTool(w http.ResponseWriter, r *http.Request) {
	input, err := decodeDocument(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}
	tool, err := s.inventory.Create(r.Context(), input)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, tool)
}

func (s *Server) handleUpdateTool(w http.ResponseWriter, r *http.Request) {
	input, err := decodeDocument(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}
	tool, err := s.inventory.Update(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, tool)
}

func (s *Server) handleDeleteTool(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete tool request", zap.String("id", id))
	if err := s.inventory.Delete(r.Context(), id); err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.inventory.Categories(r.Context())
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, categories)
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.inventory.Tags(r.Context())
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, tags)
}

func (s *Server) handleFacets(w http.ResponseWriter, r *http.Request) {
	facets, err := s.inventory.Facets(r.Context())
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, facets)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query))
	result, err := s.engine.Search(r.Context(), &req)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateFromText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeBody(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tool, err := s.inventory.CreateFromText(r.Context(), req.Text)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, tool)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := map[string]interface{}{}
	for _, collection := range []string{storage.CollectionTools, storage.CollectionCategories, storage.CollectionTags} {
		n, err := s.storage.Count(ctx, collection, nil)
		if err != nil {
			s.logger.Error("status: count failed", zap.String("collection", collection), zap.Error(err))
			s.respondFailure(w, err)
			return
		}
		resp[collection] = n
	}

	configInfo := map[string]interface{}{
		"storage_driver": s.config.Storage.Driver,
		"ai_enabled":     s.inventory.AIEnabled(),
		"ai_provider":    s.config.AI.Provider,
	}
	if s.config.Storage.Driver == config.DriverSQLite {
		configInfo["database_path"] = s.config.Storage.DatabasePath
		if size, err := storage.DatabaseSizeBytes(s.config.Storage.DatabasePath); err == nil {
			resp["disk_usage_bytes"] = size
		}
	}
	resp["config"] = configInfo
	s.respondJSON(w, http.StatusOK, resp)
}

// respondFailure maps domain errors to HTTP statuses.
func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	var (
		nerr *normalize.Error
		verr *auth.ValidationError
	)
	switch {
	case errors.As(err, &nerr):
		status := http.StatusBadRequest
		if !nerr.IsValidation() {
			status = http.StatusInternalServerError
			s.logger.Error("normalization failed", zap.Error(err))
		}
		s.respondJSON(w, status, errorResponse{Error: nerr.Error(), Kind: string(nerr.Kind), Fields: nerr.Fields})
	case errors.As(err, &verr):
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error(), Kind: string(normalize.InvalidFields), Fields: verr.Fields})
	case errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "tool not found")
	case errors.Is(err, search.ErrInvalidQuery), errors.Is(err, inventory.ErrEmptyText):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrUserExists):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ai.ErrMalformedResponse):
		s.logger.Warn("ai returned an unusable answer", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, "the AI service returned an unusable answer")
	case errors.Is(err, ai.ErrUnavailable):
		s.respondError(w, http.StatusServiceUnavailable, "AI service is not available")
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, errorResponse{Error: message})
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

// decodeDocument reads a JSON object body, keeping numbers as json.Number.
func decodeDocument(r *http.Request) (map[string]any, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	doc := make(map[string]any)
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("body is null")
	}
	return doc, nil
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
