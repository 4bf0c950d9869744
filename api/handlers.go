package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/poiesic/aisync/core"
	"github.com/poiesic/aisync/ingestion"
	"github.com/poiesic/aisync/parser"
)

type importRequest struct {
	Source      core.Source `json:"source"`
	JSONContent string      `json:"jsonContent"`
}

type searchRequest struct {
	Query   string `json:"query"`
	Limit   int    `json:"limit,omitempty"`
	AppName string `json:"appName,omitempty"`
	Source  string `json:"source,omitempty"`
}

type deleteConversationResponse struct {
	Success      bool `json:"success"`
	DeletedCount int  `json:"deletedCount"`
}

type deleteSourceResponse struct {
	DeletedCount int `json:"deletedCount"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) importExport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := core.ValidateSource(req.Source); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.syncer.SyncFromJSON(r.Context(), organization(r), req.Source, req.JSONContent)
	if err != nil {
		if result == nil {
			s.fail(w, err)
			return
		}
		// A failed sync still reports its result.
		writeJSON(w, s.status(err), result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	results, err := s.conversations.SearchConversations(r.Context(), organization(r), req.Query, ingestion.SearchOptions{
		Limit:   req.Limit,
		AppName: req.AppName,
		Source:  req.Source,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	if results == nil {
		results = []ingestion.SearchResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	opts := ingestion.ListOptions{
		Source:  query.Get("source"),
		AppName: query.Get("appName"),
	}
	var err error
	if opts.Skip, err = intParam(query.Get("skip")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid skip: "+err.Error())
		return
	}
	if opts.Take, err = intParam(query.Get("take")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid take: "+err.Error())
		return
	}

	conversations, err := s.conversations.GetConversations(r.Context(), organization(r), opts)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conversations)
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	detail, err := s.conversations.GetConversation(r.Context(), organization(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if detail == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.conversations.DeleteConversation(r.Context(), organization(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteConversationResponse{Success: true, DeletedCount: deleted})
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.conversations.GetSummary(r.Context(), organization(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) deleteSource(w http.ResponseWriter, r *http.Request) {
	source := core.Source(chi.URLParam(r, "source"))
	deleted, err := s.conversations.DeleteBySource(r.Context(), organization(r), source)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteSourceResponse{DeletedCount: deleted})
}

// status maps caller mistakes to 400 and everything else to 500.
func (s *Server) status(err error) int {
	switch {
	case errors.Is(err, core.ErrUnknownSource),
		errors.Is(err, parser.ErrUnsupportedSource),
		errors.Is(err, parser.ErrMalformedExport),
		errors.Is(err, ingestion.ErrEmptyQuery),
		errors.Is(err, ingestion.ErrConversationIDRequired):
		return http.StatusBadRequest
	}
	s.logger.Error("request failed", "err", err)
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	writeError(w, s.status(err), err.Error())
}

func intParam(value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("must not be negative")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
